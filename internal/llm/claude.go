package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const maxRetries = 3
const baseDelay = 2 * time.Second

type claude struct {
	client       anthropic.Client
	apiKey       string
	streamClient *http.Client
}

// Raw wire types for the streaming endpoint; the relay reads deltas straight
// off the SSE feed instead of going through the SDK accumulator.
type claudeStreamRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []claudeRawMessage `json:"messages"`
	Stream    bool               `json:"stream"`
}

type claudeRawMessage struct {
	Role    string           `json:"role"`
	Content []claudeRawBlock `json:"content"`
}

type claudeRawBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *claudeRawSource `json:"source,omitempty"`
}

type claudeRawSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newClaude(apiKey string) Client {
	return &claude{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		apiKey: apiKey,
		streamClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: requestTimeout * time.Second,
			},
		},
	}
}

func (c *claude) Complete(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout*time.Second)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     req.Model,
		MaxTokens: int64(req.MaxTokens),
		Messages:  c.convertMessages(req.Messages),
	}

	var resp *anthropic.Message
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err = c.client.Messages.New(callCtx, params)
		if err == nil {
			break
		}
		if !isRetryableError(err) {
			return "", err
		}
		if attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<attempt)
			time.Sleep(delay)
		}
	}
	if err != nil {
		return "", err
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", nil
}

func isRetryableError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "529") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "Overloaded") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "502")
}

func (c *claude) convertMessages(messages []Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion

		for _, img := range msg.Images {
			blocks = append(blocks, anthropic.NewImageBlockBase64(
				img.MediaType,
				base64.StdEncoding.EncodeToString(img.Data),
			))
		}

		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}

		if len(blocks) > 0 {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}

	return result
}

// Stream uses the raw messages endpoint; the SDK's streaming surface is
// still in flux on this SDK version, and the relay only needs text deltas.
func (c *claude) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	rawReq := claudeStreamRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  c.convertMessagesRaw(req.Messages),
		Stream:    true,
	}

	jsonBody, err := json.Marshal(rawReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stream request: %w", err)
	}

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	out := make(chan Chunk)
	go c.readStream(resp.Body, out)

	return out, nil
}

func (c *claude) readStream(body io.ReadCloser, out chan<- Chunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		var event claudeStreamEvent
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			out <- Chunk{Err: fmt.Errorf("unmarshal stream event: %w", err)}
			return
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				out <- Chunk{Delta: event.Delta.Text}
			}
		case "message_stop":
			return
		case "error":
			msg := "stream error"
			if event.Error != nil {
				msg = event.Error.Message
			}
			out <- Chunk{Err: fmt.Errorf("api error: %s", msg)}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		out <- Chunk{Err: fmt.Errorf("read stream: %w", err)}
	}
}

func (c *claude) convertMessagesRaw(messages []Message) []claudeRawMessage {
	var result []claudeRawMessage

	for _, msg := range messages {
		var blocks []claudeRawBlock

		for _, img := range msg.Images {
			blocks = append(blocks, claudeRawBlock{
				Type: "image",
				Source: &claudeRawSource{
					Type:      "base64",
					MediaType: img.MediaType,
					Data:      base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}

		if msg.Content != "" {
			blocks = append(blocks, claudeRawBlock{Type: "text", Text: msg.Content})
		}

		if len(blocks) > 0 {
			result = append(result, claudeRawMessage{Role: msg.Role, Content: blocks})
		}
	}

	return result
}
