package subtitles

import (
	"context"
	"errors"
	"time"

	"github.com/yegors/co-subtitles/pkg/logger"
)

// Presenter draws render updates somewhere: a data channel, a websocket
// viewer or a terminal.
type Presenter interface {
	PresentSubtitles(transcription, translation RenderUpdate) error
	PresentVoice(level float64) error
}

// Presenters fans updates out to several presenters
type Presenters []Presenter

// PresentSubtitles implements Presenter
func (ps Presenters) PresentSubtitles(transcription, translation RenderUpdate) error {
	var errs []error
	for _, p := range ps {
		if err := p.PresentSubtitles(transcription, translation); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PresentVoice implements Presenter
func (ps Presenters) PresentVoice(level float64) error {
	var errs []error
	for _, p := range ps {
		if err := p.PresentVoice(level); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TextSource is read on every tick
type TextSource interface {
	Raw() string
	Translated() string
}

// LoopConfig wires a render loop to its collaborators
type LoopConfig struct {
	Renderer  *Renderer
	Source    TextSource
	Running   func() bool    // the loop ends once this reports false
	Volume    func() float64 // optional
	Presenter Presenter
	Logger    *logger.Logger
}

// RunLoop renders on a timer whose interval is chosen by the renderer
// after every tick. It returns when ctx is done or Running reports false.
func RunLoop(ctx context.Context, cfg LoopConfig) error {
	log := cfg.Logger.Named("render")
	timer := time.NewTimer(0)
	defer timer.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if !cfg.Running() {
			log.Debug("Pipeline no longer running, render loop done", logger.Int("ticks", ticks))
			return nil
		}

		var voice float64
		if cfg.Volume != nil {
			voice = cfg.Volume()
		}
		transc, transl, delay := cfg.Renderer.Tick(cfg.Source.Raw(), cfg.Source.Translated(), voice)
		if err := cfg.Presenter.PresentSubtitles(transc, transl); err != nil {
			log.Debug("Failed to present subtitles", logger.Error(err))
		}
		ticks++
		timer.Reset(delay)
	}
}

// RunVoiceLoop sends the volume level at a fixed interval until ctx is
// done.
func RunVoiceLoop(ctx context.Context, interval time.Duration, volume func() float64, p Presenter) {
	if interval <= 0 {
		interval = DefaultFastInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.PresentVoice(volume())
		}
	}
}
