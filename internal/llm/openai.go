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
)

type openaiCompatible struct {
	apiKey  string
	baseURL string

	// client enforces the overall request timeout for blocking calls.
	// streamClient only bounds connection setup and response headers so a
	// long-lived stream is not cut off mid-body.
	client       *http.Client
	streamClient *http.Client
}

type openaiRequest struct {
	Model     string          `json:"model"`
	Messages  []openaiMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Stream    bool            `json:"stream,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openaiTextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openaiImagePart struct {
	Type     string         `json:"type"`
	ImageURL openaiImageURL `json:"image_url"`
}

type openaiImageURL struct {
	URL string `json:"url"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openaiStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func newOpenAICompatible(apiKey, baseURL string) Client {
	timeout := requestTimeout * time.Second
	return &openaiCompatible{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		streamClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
			},
		},
	}
}

func (o *openaiCompatible) convertMessages(messages []Message) []openaiMessage {
	result := make([]openaiMessage, 0, len(messages))

	for _, msg := range messages {
		if len(msg.Images) == 0 {
			result = append(result, openaiMessage{Role: msg.Role, Content: msg.Content})
			continue
		}

		parts := []any{openaiTextPart{Type: "text", Text: msg.Content}}
		for _, img := range msg.Images {
			mediaType := img.MediaType
			if mediaType == "" {
				mediaType = "image/jpeg"
			}
			parts = append(parts, openaiImagePart{
				Type: "image_url",
				ImageURL: openaiImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(img.Data)),
				},
			})
		}
		result = append(result, openaiMessage{Role: msg.Role, Content: parts})
	}

	return result
}

func (o *openaiCompatible) newRequest(ctx context.Context, req Request, stream bool) (*http.Request, error) {
	body := openaiRequest{
		Model:     req.Model,
		Messages:  o.convertMessages(req.Messages),
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	return httpReq, nil
}

func (o *openaiCompatible) Complete(ctx context.Context, req Request) (string, error) {
	httpReq, err := o.newRequest(ctx, req, false)
	if err != nil {
		return "", err
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var oaiResp openaiResponse

	if err := json.Unmarshal(body, &oaiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	if oaiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", oaiResp.Error.Message)
	}

	if len(oaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return oaiResp.Choices[0].Message.Content, nil
}

func (o *openaiCompatible) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	httpReq, err := o.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := o.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stream request: %w", err)
	}

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	out := make(chan Chunk)
	go o.readStream(resp.Body, out)

	return out, nil
}

// readStream parses server-sent events from the completions endpoint. The
// stream ends on "[DONE]", a null delta, or closed connection; transport
// failures surface as a final Chunk with Err set.
func (o *openaiCompatible) readStream(body io.ReadCloser, out chan<- Chunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return
		}

		var event openaiStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			out <- Chunk{Err: fmt.Errorf("unmarshal stream event: %w", err)}
			return
		}

		if len(event.Choices) == 0 {
			continue
		}

		delta := event.Choices[0].Delta.Content
		if delta == nil {
			return
		}

		out <- Chunk{Delta: *delta}
	}

	if err := scanner.Err(); err != nil {
		out <- Chunk{Err: fmt.Errorf("read stream: %w", err)}
	}
}
