package llm

import "context"

type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
}

type ImageContent struct {
	Data      []byte
	MediaType string
}

type Message struct {
	Role    string
	Content string
	Images  []ImageContent
}

// Request carries one completion call. The relay picks Model and MaxTokens
// per path; the client never defaults them.
type Request struct {
	Model     string
	MaxTokens int
	Messages  []Message
}

// Chunk is one increment of a streamed response. A closed channel signals
// normal end-of-stream; a chunk with Err set signals a broken stream and is
// always the last value sent.
type Chunk struct {
	Delta string
	Err   error
}

type Client interface {
	// Complete blocks for a single full response.
	Complete(ctx context.Context, req Request) (string, error)
	// Stream starts an incremental completion and delivers deltas on the
	// returned channel.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}
