// Package pipeline runs transcription and translation side by side for one
// audio session and owns their lifecycle.
package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yegors/co-subtitles/internal/audio"
	"github.com/yegors/co-subtitles/internal/language"
	"github.com/yegors/co-subtitles/internal/speech"
	"github.com/yegors/co-subtitles/internal/translate"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// Import logger functions
var (
	String   = logger.String
	Int      = logger.Int
	Duration = logger.Duration
	Error    = logger.Error
)

// Config contains the coordinator timing settings
type Config struct {
	SampleRate     int
	Punctuation    bool
	PollInterval   time.Duration // translation poll cadence
	StreamLimit    time.Duration // recognition streams are reopened after this
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the standard settings
func DefaultConfig() Config {
	return Config{
		SampleRate:     audio.DefaultSampleRate,
		Punctuation:    true,
		PollInterval:   100 * time.Millisecond,
		StreamLimit:    296 * time.Second,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.StreamLimit < 0 {
		c.StreamLimit = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(d.MaxBackoff, c.InitialBackoff)
	}
	return c
}

// Languages is the language pair of a run
type Languages struct {
	Audio       language.Language
	Translation language.Language
}

// Run is the handle of one generation of transcription and translation
// units. It is returned by Start and stopped by Stop or by the next Start.
type Run struct {
	id     uint64
	langs  Languages
	cancel context.CancelFunc
	active atomic.Int32
	done   chan struct{}
}

// ID returns the generation number of the run
func (r *Run) ID() uint64 { return r.id }

// Languages returns the language pair of the run
func (r *Run) Languages() Languages { return r.langs }

// Running reports whether at least one unit is still active
func (r *Run) Running() bool { return r.active.Load() > 0 }

// Stop cancels the run and waits for both units. It is idempotent.
func (r *Run) Stop() {
	r.cancel()
	<-r.done
}

// Coordinator owns the transcript state of a session and the run writing
// to it.
type Coordinator struct {
	recognizer speech.Recognizer
	translator translate.Translator
	source     speech.AudioSource
	cfg        Config
	logger     *logger.Logger

	state TranscriptState

	mu   sync.Mutex
	run  *Run
	gens uint64
}

// NewCoordinator creates a coordinator reading audio from source
func NewCoordinator(rec speech.Recognizer, tr translate.Translator, source speech.AudioSource, cfg Config, log *logger.Logger) *Coordinator {
	return &Coordinator{
		recognizer: rec,
		translator: tr,
		source:     source,
		cfg:        cfg.withDefaults(),
		logger:     log.Named("pipeline"),
	}
}

// State returns the shared transcript state. Callers only read it.
func (c *Coordinator) State() *TranscriptState {
	return &c.state
}

// Start begins a new run. A run that is still active is stopped and joined
// first so two generations never write the state at the same time.
func (c *Coordinator) Start(ctx context.Context, langs Languages) *Run {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		c.run.Stop()
	}
	c.state.reset()

	c.gens++
	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		id:     c.gens,
		langs:  langs,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.run = run

	log := c.logger.With(
		logger.Int64("generation", int64(run.id)),
		String("audio_lang", langs.Audio.Code),
		String("transl_lang", langs.Translation.Code))
	log.Info("Starting pipeline",
		String("recognizer", c.recognizer.Name()),
		String("translator", c.translator.Name()))

	var wg sync.WaitGroup
	run.active.Store(2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer run.active.Add(-1)
		c.transcribe(runCtx, langs, log)
	}()
	go func() {
		defer wg.Done()
		defer run.active.Add(-1)
		c.translate(runCtx, langs, log)
	}()
	go func() {
		wg.Wait()
		cancel()
		close(run.done)
		log.Info("Pipeline stopped")
	}()

	return run
}

// Stop stops the current run, if any. Calling it again is a no-op.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		c.run.Stop()
	}
}

// Running reports whether the current run has an active unit
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != nil && c.run.Running()
}

// transcribe keeps a recognition stream open for as long as the run lives,
// reopening it when it expires or fails.
func (c *Coordinator) transcribe(ctx context.Context, langs Languages, log *logger.Logger) {
	log = log.Named("transcribe")
	streamCfg := speech.StreamConfig{
		SampleRate:   c.cfg.SampleRate,
		LanguageCode: langs.Audio.Code,
		Punctuation:  c.cfg.Punctuation,
	}
	onResult := func(r speech.Result) {
		// late results of a cancelled run are dropped
		if ctx.Err() != nil {
			return
		}
		c.state.setRaw(r.Text)
	}

	backoff := c.cfg.InitialBackoff
	streams := 0
	for {
		if ctx.Err() != nil {
			return
		}

		streams++
		src := speech.NewRotatingSource(c.source, c.cfg.StreamLimit)
		err := c.recognizer.Recognize(ctx, streamCfg, src, onResult)

		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.EOF):
			log.Info("Audio ended, transcription finished", Int("streams", streams))
			return
		case err == nil || errors.Is(err, speech.ErrStreamExpired):
			log.Debug("Recognition stream rotated", Int("streams", streams))
			backoff = c.cfg.InitialBackoff
			continue
		}

		log.Warn("Recognition stream failed, reopening",
			Error(err),
			Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

// translate polls the transcript and translates it whenever it changed.
func (c *Coordinator) translate(ctx context.Context, langs Languages, log *logger.Logger) {
	log = log.Named("translate")
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	same := langs.Audio.Code == langs.Translation.Code
	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		raw := c.state.Raw()
		if raw == last {
			continue
		}
		last = raw

		if same {
			c.state.setTranslated(raw)
			continue
		}

		out, err := c.translator.Translate(ctx, raw, langs.Audio.Code, langs.Translation.Code)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warn("Translation failed, showing source text", Error(err))
			out = raw
		}
		c.state.setTranslated(out)
	}
}
