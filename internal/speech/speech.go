// Package speech defines the streaming recognition contract used by the
// transcription side of the pipeline.
package speech

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrStreamExpired is returned by a RotatingSource once its stream has
// reached its maximum age. Recognizers pass it through so the caller can
// reopen a fresh stream immediately.
var ErrStreamExpired = errors.New("recognition stream reached its time limit")

// StreamConfig describes one streaming recognition call
type StreamConfig struct {
	SampleRate   int    // Hz, audio is 16-bit little-endian mono PCM
	LanguageCode string // BCP-47 code of the spoken language
	Punctuation  bool   // ask the service for automatic punctuation
}

// Result is one interim or final hypothesis from the service
type Result struct {
	Text  string
	Final bool
}

// AudioSource hands out audio for upload. Next blocks until data is
// available and returns io.EOF once the audio has ended.
type AudioSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// Recognizer runs a single streaming recognition call.
//
// Recognize uploads audio from src until src returns an error, delivering
// every hypothesis to onResult. When src ends with io.EOF or
// ErrStreamExpired the upload side is closed, outstanding results are
// drained and the source error is returned. Any other error means the call
// failed and may be retried with a new stream.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, cfg StreamConfig, src AudioSource, onResult func(Result)) error
}

// IsEndOfStream reports whether err ended a stream normally
func IsEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrStreamExpired)
}

// RotatingSource wraps an AudioSource and reports ErrStreamExpired once
// maxAge has elapsed since the stream started. The check happens before a
// read, so no audio is lost at the boundary.
type RotatingSource struct {
	src      AudioSource
	deadline time.Time
	now      func() time.Time
}

// NewRotatingSource limits src to maxAge. A non-positive maxAge disables
// the limit.
func NewRotatingSource(src AudioSource, maxAge time.Duration) *RotatingSource {
	r := &RotatingSource{src: src, now: time.Now}
	if maxAge > 0 {
		r.deadline = r.now().Add(maxAge)
	}
	return r
}

// Next implements AudioSource
func (r *RotatingSource) Next(ctx context.Context) ([]byte, error) {
	if !r.deadline.IsZero() && !r.now().Before(r.deadline) {
		return nil, ErrStreamExpired
	}
	if r.deadline.IsZero() {
		return r.src.Next(ctx)
	}

	// wake up at the deadline even when no audio arrives
	waitCtx, cancel := context.WithDeadline(ctx, r.deadline)
	defer cancel()
	b, err := r.src.Next(waitCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrStreamExpired
	}
	return b, err
}
