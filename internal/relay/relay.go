// Package relay coordinates one exchange: transcript bookkeeping, the remote
// completion call, and incremental re-delivery of the response through the
// platform surface. All failure handling and rollback decisions live here.
package relay

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/argylelabs/telegpt/internal/history"
	"github.com/argylelabs/telegpt/internal/llm"
	"github.com/argylelabs/telegpt/internal/logger"
	"github.com/argylelabs/telegpt/internal/markdown"
	"github.com/argylelabs/telegpt/internal/render"
	"github.com/argylelabs/telegpt/internal/storage"
)

const clearCommand = "clear"

const clearedReply = "just cleared your chat messages history"

const answerWrong = "answer wrong"

type Orchestrator struct {
	store   *history.Store
	client  llm.Client
	archive *storage.Client
	cfg     Config

	// clock overrides the renderer clock in tests.
	clock render.Clock
}

func New(store *history.Store, client llm.Client, archive *storage.Client, cfg Config) *Orchestrator {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = history.DefaultMaxTurns
	}
	return &Orchestrator{
		store:   store,
		client:  client,
		archive: archive,
		cfg:     cfg,
	}
}

func (o *Orchestrator) renderer(editor render.Editor, who string) *render.Renderer {
	if o.clock != nil {
		return render.NewWithClock(editor, who, o.clock)
	}
	return render.New(editor, who)
}

// Chat runs a standard text exchange: blocking completion, no intermediate
// edits.
func (o *Orchestrator) Chat(ctx context.Context, surface Surface, userID, text string) {
	o.exchange(ctx, surface, userID, text, WhoChat, false)
}

// ChatPro runs an elevated-model text exchange with a streamed response.
func (o *Orchestrator) ChatPro(ctx context.Context, surface Surface, userID, text string) {
	o.exchange(ctx, surface, userID, text, WhoPro, true)
}

func (o *Orchestrator) exchange(ctx context.Context, surface Surface, userID, text, who string, streaming bool) {
	text = strings.TrimSpace(text)

	tr := o.store.GetOrCreate(userID)
	tr.Acquire()
	defer tr.Release()

	if text == clearCommand {
		if err := surface.Reply(clearedReply); err != nil {
			logger.Error("clear ack failed", "user", userID, "error", err)
		}
		tr.Clear()
		return
	}

	id := uuid.NewString()
	logger.Info("exchange started", "id", id, "user", userID, "who", who, "chars", len(text))

	editor, err := surface.SendPlaceholder(who)
	if err != nil {
		logger.Error("placeholder failed", "id", id, "error", err)
		return
	}
	r := o.renderer(editor, who)

	// PendingExchange: the user turn is appended optimistically and rolled
	// back (or the transcript cleared) on any failure path below.
	tr.Append(history.Turn{Role: history.RoleUser, Content: text})
	tr.EnforceBound(o.cfg.MaxTurns)

	req := llm.Request{
		Model:     o.cfg.ChatModel,
		MaxTokens: o.cfg.ChatMaxTokens,
		Messages:  toMessages(tr.Turns()),
	}
	if streaming {
		req.Model = o.cfg.ProModel
		req.MaxTokens = o.cfg.ProMaxTokens
	}

	if streaming {
		o.finishStreaming(ctx, id, tr, r, req)
	} else {
		o.finishBlocking(ctx, id, tr, r, who, req)
	}
}

func (o *Orchestrator) finishBlocking(ctx context.Context, id string, tr *history.Transcript, r *render.Renderer, who string, req llm.Request) {
	content, err := o.client.Complete(ctx, req)
	if err != nil {
		logger.Error("completion failed", "id", id, "error", err)
		r.Finalize(answerWrong)
		tr.PopLast()
		return
	}

	if content == "" {
		logger.Warn("empty completion", "id", id)
		r.Finalize(who + " did not answer.")
		tr.PopLast()
		return
	}

	r.Finalize(content)
	tr.Append(history.Turn{Role: history.RoleAssistant, Content: content})
	logger.Info("exchange committed", "id", id, "chars", len(content))
}

func (o *Orchestrator) finishStreaming(ctx context.Context, id string, tr *history.Transcript, r *render.Renderer, req llm.Request) {
	chunks, err := o.client.Stream(ctx, req)
	if err != nil {
		logger.Error("stream failed to start", "id", id, "error", err)
		r.Finalize(answerWrong)
		tr.Clear()
		return
	}

	var buf strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			// A broken stream leaves the shown message and the
			// transcript out of sync; drop the whole history rather
			// than track a divergent context.
			logger.Error("stream broken", "id", id, "error", chunk.Err)
			r.Finalize(answerWrong)
			tr.Clear()
			return
		}
		buf.WriteString(chunk.Delta)
		r.Throttle(buf.String())
	}

	if r.Finalize(buf.String()) == render.Failed {
		logger.Error("final delivery failed", "id", id)
		tr.Clear()
		return
	}

	// Stored content matches what the user saw, markup included.
	tr.Append(history.Turn{Role: history.RoleAssistant, Content: markdown.Convert(buf.String())})
	logger.Info("exchange committed", "id", id, "chars", buf.Len())
}

// Vision runs a single-shot captioned-image exchange against the elevated
// model. Nothing is written to history, so failures only affect the
// presented message.
func (o *Orchestrator) Vision(ctx context.Context, surface Surface, userID, caption string) {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return
	}

	id := uuid.NewString()
	logger.Info("vision exchange started", "id", id, "user", userID)

	editor, err := surface.SendPlaceholder(WhoVision)
	if err != nil {
		logger.Error("placeholder failed", "id", id, "error", err)
		return
	}
	r := o.renderer(editor, WhoVision)

	data, mediaType, err := surface.DownloadPhoto(ctx)
	if err != nil {
		logger.Error("photo download failed", "id", id, "error", err)
		r.Finalize(answerWrong)
		return
	}

	if o.archive != nil {
		go o.archivePhoto(id, data, mediaType)
	}

	req := llm.Request{
		Model:     o.cfg.ProModel,
		MaxTokens: o.cfg.VisionMaxTokens,
		Messages: []llm.Message{{
			Role:    history.RoleUser,
			Content: caption,
			Images:  []llm.ImageContent{{Data: data, MediaType: mediaType}},
		}},
	}

	chunks, err := o.client.Stream(ctx, req)
	if err != nil {
		logger.Error("stream failed to start", "id", id, "error", err)
		r.Finalize(answerWrong)
		return
	}

	var buf strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			logger.Error("stream broken", "id", id, "error", chunk.Err)
			r.Finalize(answerWrong)
			return
		}
		buf.WriteString(chunk.Delta)
		r.Throttle(buf.String())
	}

	r.Finalize(buf.String())
	logger.Info("vision exchange done", "id", id, "chars", buf.Len())
}

func (o *Orchestrator) archivePhoto(id string, data []byte, mediaType string) {
	ctx, cancel := context.WithTimeout(context.Background(), storage.UploadTimeout)
	defer cancel()

	if err := o.archive.Upload(ctx, id, data, mediaType); err != nil {
		logger.Warn("photo archive failed", "id", id, "error", err)
	}
}

func toMessages(turns []history.Turn) []llm.Message {
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		msgs[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return msgs
}
