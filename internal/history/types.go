package history

import (
	"sync"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxTurns keeps the last 5 exchanges (a user and an assistant turn each).
const DefaultMaxTurns = 10

type Turn struct {
	Role    string
	Content string
}

type Transcript struct {
	mu       sync.Mutex
	turns    []Turn
	lastSeen time.Time

	// processing serializes one full exchange (append, remote call,
	// commit or rollback) per user. Requests from the same user queue
	// behind it in arrival order.
	processing sync.Mutex
}

type Store struct {
	mu          sync.RWMutex
	transcripts map[string]*Transcript
	now         func() time.Time
}
