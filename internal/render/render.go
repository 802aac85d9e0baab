// Package render turns a growing response buffer into rate-limited edits of
// the placeholder message sent at the start of an exchange.
package render

import (
	"errors"
	"time"

	"github.com/argylelabs/telegpt/internal/logger"
)

// MinInterval is the minimum gap between intermediate edits. Telegram
// rate-limits message edits aggressively; anything much below this starts
// returning 429s on long answers.
const MinInterval = 1700 * time.Millisecond

type Outcome int

const (
	Delivered Outcome = iota
	Unchanged
	Failed
)

// ErrNotModified is returned by editors when the platform rejects an edit
// because the content is identical to what the message already shows. This
// happens routinely during throttled polling and is not a failure.
var ErrNotModified = errors.New("message is not modified")

// Editor applies an in-place edit to the placeholder this renderer owns.
// The editor owns the platform markup dialect: with formatted set it
// converts text to the platform's formatted representation, otherwise it
// delivers plain text. Identical-content rejections surface as
// ErrNotModified.
type Editor interface {
	Edit(who, text string, formatted bool) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Renderer struct {
	editor      Editor
	who         string
	clock       Clock
	minInterval time.Duration
	lastText    string
	lastAt      time.Time
}

func New(editor Editor, who string) *Renderer {
	return NewWithClock(editor, who, systemClock{})
}

func NewWithClock(editor Editor, who string, clock Clock) *Renderer {
	return &Renderer{
		editor:      editor,
		who:         who,
		clock:       clock,
		minInterval: MinInterval,
		lastAt:      clock.Now(),
	}
}

// Throttle re-renders the accumulated buffer if the minimum interval has
// elapsed and the text changed since the last edit. Intermediate bodies go
// out unformatted: partial Markdown mid-stream is routinely malformed, and
// conversion is deferred to Finalize anyway.
func (r *Renderer) Throttle(text string) Outcome {
	if text == r.lastText {
		return Unchanged
	}

	now := r.clock.Now()
	if now.Sub(r.lastAt) < r.minInterval {
		return Unchanged
	}

	err := r.editor.Edit(r.who, text, false)
	if errors.Is(err, ErrNotModified) {
		return Unchanged
	}
	if err != nil {
		// Not fatal mid-stream; the final render decides the outcome.
		logger.Debug("intermediate edit failed", "error", err)
		return Failed
	}

	r.lastText = text
	r.lastAt = now

	return Delivered
}

// Finalize performs the closing render of the full buffer, unthrottled, with
// full markup conversion. If the platform rejects the formatted edit the
// same content is retried once as plain text; Failed means neither
// representation could be delivered.
func (r *Renderer) Finalize(text string) Outcome {
	err := r.editor.Edit(r.who, text, true)
	if err == nil {
		r.lastText = text
		return Delivered
	}
	if errors.Is(err, ErrNotModified) {
		return Unchanged
	}

	logger.Warn("formatted edit rejected, retrying plain", "error", err)

	err = r.editor.Edit(r.who, text, false)
	if err == nil {
		r.lastText = text
		return Delivered
	}
	if errors.Is(err, ErrNotModified) {
		return Unchanged
	}

	logger.Error("delivery failed", "error", err)

	return Failed
}
