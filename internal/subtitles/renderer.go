package subtitles

import (
	"time"

	"github.com/yegors/co-subtitles/internal/language"
)

// Panel kinds
const (
	KindTranscription = "transc"
	KindTranslation   = "transl"
)

// Refresh intervals. The slow one leaves room for the scroll animation after
// a line break, the fast one keeps live words responsive.
const (
	DefaultSlowInterval = 300 * time.Millisecond
	DefaultFastInterval = 100 * time.Millisecond
)

// RenderUpdate is what a presentation layer needs to draw one panel
type RenderUpdate struct {
	Kind              string  `json:"kind"`
	Title             string  `json:"title"`
	Frozen            string  `json:"frozen"`
	Live              string  `json:"live"`
	LineBreak         bool    `json:"line_break"`
	AnimationDuration float64 `json:"animation_duration"` // seconds
	VoiceLevel        float64 `json:"voice_level"`
}

// RendererConfig contains the render timing settings
type RendererConfig struct {
	WindowSize   int
	SlowInterval time.Duration
	FastInterval time.Duration
}

func (c RendererConfig) withDefaults() RendererConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.SlowInterval <= 0 {
		c.SlowInterval = DefaultSlowInterval
	}
	if c.FastInterval <= 0 {
		c.FastInterval = DefaultFastInterval
	}
	return c
}

type panel struct {
	kind       string
	title      string
	usesSpace  bool
	prevFrozen []string
}

func (p *panel) render(text string, size int) (RenderUpdate, bool) {
	w := Compute(Tokenize(text, p.usesSpace), p.prevFrozen, size)
	p.prevFrozen = w.Frozen
	return RenderUpdate{
		Kind:      p.kind,
		Title:     p.title,
		Frozen:    Join(w.Frozen, p.usesSpace),
		Live:      Join(w.Live, p.usesSpace),
		LineBreak: w.LineBreak,
	}, w.LineBreak
}

// Renderer turns the transcript and its translation into panel updates and
// picks the delay before the next tick. It keeps the frozen line of each
// panel between ticks and is not safe for concurrent use.
type Renderer struct {
	cfg    RendererConfig
	transc panel
	transl panel
}

// NewRenderer creates a renderer for a language pair
func NewRenderer(cfg RendererConfig, audioLang, translLang language.Language) *Renderer {
	return &Renderer{
		cfg: cfg.withDefaults(),
		transc: panel{
			kind:      KindTranscription,
			title:     audioLang.Name,
			usesSpace: audioLang.UsesSpace,
		},
		transl: panel{
			kind:      KindTranslation,
			title:     translLang.Name,
			usesSpace: translLang.UsesSpace,
		},
	}
}

// Tick renders both panels. The delay is the slow interval when either
// panel broke its line, the fast interval otherwise.
func (r *Renderer) Tick(raw, translated string, voice float64) (RenderUpdate, RenderUpdate, time.Duration) {
	transc, brokeTransc := r.transc.render(raw, r.cfg.WindowSize)
	transl, brokeTransl := r.transl.render(translated, r.cfg.WindowSize)

	anim := r.cfg.SlowInterval.Seconds()
	transc.AnimationDuration, transl.AnimationDuration = anim, anim
	transc.VoiceLevel, transl.VoiceLevel = voice, voice

	delay := r.cfg.FastInterval
	if brokeTransc || brokeTransl {
		delay = r.cfg.SlowInterval
	}
	return transc, transl, delay
}
