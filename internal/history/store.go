package history

import "time"

func NewStore() *Store {
	return &Store{
		transcripts: make(map[string]*Transcript),
		now:         time.Now,
	}
}

// GetOrCreate returns the transcript for userID, registering an empty one on
// first contact. The store keeps exclusive ownership of the backing slice;
// callers only ever mutate through Transcript methods.
func (s *Store) GetOrCreate(userID string) *Transcript {
	s.mu.RLock()

	tr, ok := s.transcripts[userID]
	s.mu.RUnlock()

	if ok {
		return tr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tr, ok = s.transcripts[userID]; ok {
		return tr
	}

	tr = &Transcript{lastSeen: s.now()}
	s.transcripts[userID] = tr

	return tr
}

// Clear empties the transcript for userID. Idempotent; a user the store has
// never seen is left unregistered.
func (s *Store) Clear(userID string) {
	s.mu.RLock()
	tr, ok := s.transcripts[userID]
	s.mu.RUnlock()

	if ok {
		tr.Clear()
	}
}

// SweepIdle clears transcripts with no activity for at least maxIdle and
// returns how many were swept. History is ephemeral; this only bounds how
// long stale context lingers in memory.
func (s *Store) SweepIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.RLock()
	var stale []*Transcript
	for _, tr := range s.transcripts {
		tr.mu.Lock()
		if len(tr.turns) > 0 && tr.lastSeen.Before(cutoff) {
			stale = append(stale, tr)
		}
		tr.mu.Unlock()
	}
	s.mu.RUnlock()

	for _, tr := range stale {
		tr.Clear()
	}

	return len(stale)
}

// Acquire takes the per-user processing lock for the duration of one
// exchange. It blocks, so same-user requests queue in arrival order.
func (t *Transcript) Acquire() {
	t.processing.Lock()
}

func (t *Transcript) Release() {
	t.processing.Unlock()
}

func (t *Transcript) Append(turn Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
	t.lastSeen = time.Now()
}

// PopLast removes the most recently appended turn. Rollback path; safe on an
// empty transcript.
func (t *Transcript) PopLast() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.turns) > 0 {
		t.turns = t.turns[:len(t.turns)-1]
	}
}

func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
}

// EnforceBound evicts the oldest user/assistant pair until the transcript is
// within maxTurns. Evicting two turns at a time keeps pairing intact; a
// dangling assistant turn at the front would misalign the model context.
func (t *Transcript) EnforceBound(maxTurns int) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.turns) > maxTurns {
		t.turns = t.turns[2:]
	}
}

// Turns returns a copy of the transcript.
func (t *Transcript) Turns() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	copied := make([]Turn, len(t.turns))
	copy(copied, t.turns)

	return copied
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}
