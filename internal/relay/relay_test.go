package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/argylelabs/telegpt/internal/history"
	"github.com/argylelabs/telegpt/internal/llm"
	"github.com/argylelabs/telegpt/internal/markdown"
	"github.com/argylelabs/telegpt/internal/render"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeClient struct {
	mu            sync.Mutex
	completeCalls int
	streamCalls   int

	response string
	err      error
	// gate, when set, blocks Complete until closed.
	gate chan struct{}

	chunks    []llm.Chunk
	streamErr error
}

func (c *fakeClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	c.completeCalls++
	gate := c.gate
	response := c.response
	err := c.err
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	if response == "" {
		return "", nil
	}

	// Echo the last user turn so commit order is observable.
	last := req.Messages[len(req.Messages)-1]
	return response + last.Content, nil
}

func (c *fakeClient) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	c.mu.Lock()
	c.streamCalls++
	c.mu.Unlock()

	if c.streamErr != nil {
		return nil, c.streamErr
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		for _, chunk := range c.chunks {
			out <- chunk
			if chunk.Err != nil {
				return
			}
		}
	}()

	return out, nil
}

type fakeEditor struct {
	mu    sync.Mutex
	edits []string
	errs  []error
}

func (e *fakeEditor) Edit(who, text string, formatted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edits = append(e.edits, text)
	if len(e.errs) == 0 {
		return nil
	}
	err := e.errs[0]
	e.errs = e.errs[1:]
	return err
}

func (e *fakeEditor) last() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.edits) == 0 {
		return ""
	}
	return e.edits[len(e.edits)-1]
}

type fakeSurface struct {
	mu           sync.Mutex
	editor       *fakeEditor
	replies      []string
	placeholders []string

	photo     []byte
	photoType string
	photoErr  error
}

func (s *fakeSurface) SendPlaceholder(who string) (render.Editor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeholders = append(s.placeholders, who)
	return s.editor, nil
}

func (s *fakeSurface) Reply(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, text)
	return nil
}

func (s *fakeSurface) DownloadPhoto(ctx context.Context) ([]byte, string, error) {
	return s.photo, s.photoType, s.photoErr
}

func newTestOrchestrator(client llm.Client) (*Orchestrator, *history.Store) {
	store := history.NewStore()
	o := New(store, client, nil, DefaultConfig())
	o.clock = &fakeClock{now: time.Unix(1000, 0)}
	return o, store
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{editor: &fakeEditor{}}
}

func TestChatCommitsExchange(t *testing.T) {
	client := &fakeClient{response: "re:"}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()

	o.Chat(context.Background(), surface, "u1", "hello")

	turns := store.GetOrCreate("u1").Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != history.RoleUser || turns[0].Content != "hello" {
		t.Errorf("user turn mismatch: %+v", turns[0])
	}
	if turns[1].Role != history.RoleAssistant || turns[1].Content != "re:hello" {
		t.Errorf("assistant turn mismatch: %+v", turns[1])
	}

	if len(surface.placeholders) != 1 || surface.placeholders[0] != WhoChat {
		t.Errorf("placeholder mismatch: %v", surface.placeholders)
	}
}

func TestClearCommand(t *testing.T) {
	client := &fakeClient{response: "re:"}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()

	o.Chat(context.Background(), surface, "u1", "hello")
	o.Chat(context.Background(), surface, "u1", "clear")

	if n := store.GetOrCreate("u1").Len(); n != 0 {
		t.Errorf("expected empty transcript after clear, got %d turns", n)
	}

	if client.completeCalls != 1 {
		t.Errorf("clear must not call the model; %d calls recorded", client.completeCalls)
	}

	if len(surface.replies) != 1 {
		t.Errorf("expected 1 clear acknowledgment, got %d", len(surface.replies))
	}
}

func TestChatEmptyResponseRollsBack(t *testing.T) {
	client := &fakeClient{response: "re:"}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()

	o.Chat(context.Background(), surface, "u1", "hello")

	client.mu.Lock()
	client.response = ""
	client.mu.Unlock()

	o.Chat(context.Background(), surface, "u1", "again")

	if n := store.GetOrCreate("u1").Len(); n != 2 {
		t.Errorf("expected pending turn rolled back (2 turns), got %d", n)
	}

	if got := surface.editor.last(); !strings.Contains(got, "ChatGPT did not answer.") {
		t.Errorf("expected did-not-answer message, got %q", got)
	}
}

func TestChatErrorRollsBack(t *testing.T) {
	client := &fakeClient{err: errors.New("boom")}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()

	o.Chat(context.Background(), surface, "u1", "hello")

	if n := store.GetOrCreate("u1").Len(); n != 0 {
		t.Errorf("expected rollback to empty transcript, got %d turns", n)
	}

	if got := surface.editor.last(); !strings.Contains(got, "answer wrong") {
		t.Errorf("expected answer wrong message, got %q", got)
	}
}

func TestChatProCommitsConvertedContent(t *testing.T) {
	client := &fakeClient{chunks: []llm.Chunk{{Delta: "hi "}, {Delta: "there"}}}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()

	o.ChatPro(context.Background(), surface, "u1", "hello")

	turns := store.GetOrCreate("u1").Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[1].Content != markdown.Convert("hi there") {
		t.Errorf("assistant turn not converted: %q", turns[1].Content)
	}

	if surface.placeholders[0] != WhoPro {
		t.Errorf("placeholder label: %v", surface.placeholders)
	}
}

func TestChatProStreamErrorClearsTranscript(t *testing.T) {
	client := &fakeClient{chunks: []llm.Chunk{{Delta: "a"}, {Delta: "b"}}}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()

	// Build up some committed history first.
	o.ChatPro(context.Background(), surface, "u1", "hello")
	if store.GetOrCreate("u1").Len() != 2 {
		t.Fatal("setup exchange did not commit")
	}

	client.mu.Lock()
	client.chunks = []llm.Chunk{{Delta: "a"}, {Delta: "b"}, {Err: errors.New("stream broke")}}
	client.mu.Unlock()

	o.ChatPro(context.Background(), surface, "u1", "again")

	if n := store.GetOrCreate("u1").Len(); n != 0 {
		t.Errorf("expected full clear after stream error, got %d turns", n)
	}

	if got := surface.editor.last(); !strings.Contains(got, "answer wrong") {
		t.Errorf("expected answer wrong message, got %q", got)
	}
}

func TestChatProStreamStartErrorClearsTranscript(t *testing.T) {
	client := &fakeClient{streamErr: errors.New("connect refused")}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()

	o.ChatPro(context.Background(), surface, "u1", "hello")

	if n := store.GetOrCreate("u1").Len(); n != 0 {
		t.Errorf("expected empty transcript, got %d turns", n)
	}
}

func TestChatProDeliveryFailureClearsTranscript(t *testing.T) {
	client := &fakeClient{chunks: []llm.Chunk{{Delta: "hi"}}}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()
	// Final render fails in both representations.
	surface.editor.errs = []error{
		errors.New("can't parse entities"),
		errors.New("message too long"),
	}

	o.ChatPro(context.Background(), surface, "u1", "hello")

	if n := store.GetOrCreate("u1").Len(); n != 0 {
		t.Errorf("expected clear after delivery failure, got %d turns", n)
	}
}

func TestChatProFinalizeUnchangedStillCommits(t *testing.T) {
	client := &fakeClient{chunks: []llm.Chunk{{Delta: "hi"}}}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()
	surface.editor.errs = []error{render.ErrNotModified}

	o.ChatPro(context.Background(), surface, "u1", "hello")

	if n := store.GetOrCreate("u1").Len(); n != 2 {
		t.Errorf("unchanged delivery must commit; got %d turns", n)
	}
}

func TestTranscriptBoundAcrossExchanges(t *testing.T) {
	client := &fakeClient{response: "re:"}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5", "q6"} {
		o.Chat(context.Background(), surface, "u1", q)
	}

	turns := store.GetOrCreate("u1").Turns()
	if len(turns) != 10 {
		t.Fatalf("expected bound of 10 turns, got %d", len(turns))
	}

	if turns[0].Content != "q2" {
		t.Errorf("expected oldest remaining exchange q2, got %q", turns[0].Content)
	}
	if turns[9].Content != "re:q6" {
		t.Errorf("expected newest turn re:q6, got %q", turns[9].Content)
	}

	// Always even after commits.
	if len(turns)%2 != 0 {
		t.Error("transcript length must stay even after commits")
	}
}

func TestSameUserExchangesSerialized(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{response: "re:", gate: gate}
	o, store := newTestOrchestrator(client)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Chat(context.Background(), newFakeSurface(), "u1", "first")
	}()

	// Wait until the first exchange holds the lock inside the remote call.
	for {
		client.mu.Lock()
		calls := client.completeCalls
		client.mu.Unlock()
		if calls == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Chat(context.Background(), newFakeSurface(), "u1", "second")
	}()

	// Give the second request a moment to queue, then release both.
	time.Sleep(10 * time.Millisecond)
	close(gate)
	wg.Wait()

	turns := store.GetOrCreate("u1").Turns()
	if len(turns) != 4 {
		t.Fatalf("expected 2 committed pairs, got %d turns", len(turns))
	}

	want := []string{"first", "re:first", "second", "re:second"}
	for i, w := range want {
		if turns[i].Content != w {
			t.Fatalf("turn %d = %q, want %q (history interleaved)", i, turns[i].Content, w)
		}
	}
}

func TestVisionDoesNotTouchHistory(t *testing.T) {
	client := &fakeClient{chunks: []llm.Chunk{{Delta: "a cat"}}}
	o, store := newTestOrchestrator(client)
	surface := newFakeSurface()
	surface.photo = []byte{0xff, 0xd8}
	surface.photoType = "image/jpeg"

	o.Vision(context.Background(), surface, "u1", "what is this")

	if n := store.GetOrCreate("u1").Len(); n != 0 {
		t.Errorf("vision exchange must not persist history, got %d turns", n)
	}

	if surface.placeholders[0] != WhoVision {
		t.Errorf("placeholder label: %v", surface.placeholders)
	}

	if got := surface.editor.last(); !strings.Contains(got, "a cat") {
		t.Errorf("expected streamed answer delivered, got %q", got)
	}
}

func TestVisionDownloadFailure(t *testing.T) {
	client := &fakeClient{}
	o, _ := newTestOrchestrator(client)
	surface := newFakeSurface()
	surface.photoErr = errors.New("http 404")

	o.Vision(context.Background(), surface, "u1", "what is this")

	if client.streamCalls != 0 {
		t.Error("model must not be called when the download fails")
	}

	if got := surface.editor.last(); !strings.Contains(got, "answer wrong") {
		t.Errorf("expected answer wrong, got %q", got)
	}
}

func TestVisionEmptyCaptionIgnored(t *testing.T) {
	client := &fakeClient{}
	o, _ := newTestOrchestrator(client)
	surface := newFakeSurface()

	o.Vision(context.Background(), surface, "u1", "   ")

	if len(surface.placeholders) != 0 {
		t.Error("empty caption must not start an exchange")
	}
}
