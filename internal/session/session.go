package session

import (
	"context"
	"sync"
	"time"

	"github.com/yegors/co-subtitles/internal/audio"
	"github.com/yegors/co-subtitles/internal/pipeline"
	"github.com/yegors/co-subtitles/internal/subtitles"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// Session is one browser connection and everything running for it: the
// ingest stage, the transcription/translation pipeline and the render loops.
type Session struct {
	id      string
	langs   pipeline.Languages
	created time.Time
	cfg     Config
	logger  *logger.Logger

	queue    *audio.ChunkQueue
	ingester *audio.Ingester
	coord    *pipeline.Coordinator
	run      *pipeline.Run
	viewers  subtitles.Presenter // may be nil

	mu   sync.Mutex
	peer Peer

	ctx        context.Context
	cancel     context.CancelFunc
	attachOnce sync.Once
	closeOnce  sync.Once
	loops      sync.WaitGroup
}

// Info is a snapshot of a session for listings
type Info struct {
	ID                  string    `json:"id"`
	AudioLanguage       string    `json:"audio_language"`
	TranslationLanguage string    `json:"translation_language"`
	CreatedAt           time.Time `json:"created_at"`
	Running             bool      `json:"running"`
	Frames              int64     `json:"frames"`
	Chunks              int64     `json:"chunks"`
	QueuedChunks        int       `json:"queued_chunks"`
	Volume              float64   `json:"volume"`
	Transcript          string    `json:"transcript"`
	Translation         string    `json:"translation"`
}

func newSession(id string, langs pipeline.Languages, cfg Config, p Providers, viewers subtitles.Presenter, log *logger.Logger) *Session {
	log = log.With(String("session_id", id))
	queue := audio.NewChunkQueue()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:       id,
		langs:    langs,
		created:  time.Now(),
		cfg:      cfg,
		logger:   log,
		queue:    queue,
		ingester: audio.NewIngester(cfg.Ingest, queue, log),
		coord:    pipeline.NewCoordinator(p.Recognizer, p.Translator, queue, cfg.Pipeline, log),
		viewers:  viewers,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.run = s.coord.Start(ctx, langs)
	return s
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Languages returns the language pair
func (s *Session) Languages() pipeline.Languages { return s.langs }

// setPeer records the transport unless the session is already closing
func (s *Session) setPeer(p Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.peer = p
	return true
}

// Ingest feeds one decoded frame into the pipeline
func (s *Session) Ingest(f audio.Frame) error {
	return s.ingester.Ingest(f)
}

// Attach starts the render and voice loops towards p, plus the viewer hub
// when one is configured. Only the first call has an effect.
func (s *Session) Attach(p subtitles.Presenter) {
	s.attachOnce.Do(func() {
		presenter := subtitles.Presenters{p}
		if s.viewers != nil {
			presenter = append(presenter, s.viewers)
		}

		s.logger.Info("Presenter attached, starting render loops")
		s.loops.Add(2)
		go func() {
			defer s.loops.Done()
			err := subtitles.RunLoop(s.ctx, subtitles.LoopConfig{
				Renderer:  subtitles.NewRenderer(s.cfg.Renderer, s.langs.Audio, s.langs.Translation),
				Source:    s.coord.State(),
				Running:   s.run.Running,
				Volume:    s.ingester.Volume,
				Presenter: presenter,
				Logger:    s.logger,
			})
			if err != nil && s.ctx.Err() == nil {
				s.logger.Warn("Render loop ended", Error(err))
			}
		}()
		go func() {
			defer s.loops.Done()
			subtitles.RunVoiceLoop(s.ctx, s.cfg.VoiceInterval, s.ingester.Volume, presenter)
		}()
	})
}

// Close stops the pipeline, ends the audio queue, closes the peer and waits
// for the render loops. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.coord.Stop()
		s.queue.Close()

		s.mu.Lock()
		peer := s.peer
		s.mu.Unlock()
		if peer != nil {
			if err := peer.Close(); err != nil {
				s.logger.Warn("Failed to close peer", Error(err))
			}
		}
		s.loops.Wait()

		frames, chunks := s.ingester.Stats()
		s.logger.Info("Session closed",
			logger.Int64("frames", frames),
			logger.Int64("chunks", chunks),
			logger.Duration("duration", time.Since(s.created)))
	})
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	frames, chunks := s.ingester.Stats()
	state := s.coord.State()
	return Info{
		ID:                  s.id,
		AudioLanguage:       s.langs.Audio.Name,
		TranslationLanguage: s.langs.Translation.Name,
		CreatedAt:           s.created,
		Running:             s.run.Running(),
		Frames:              frames,
		Chunks:              chunks,
		QueuedChunks:        s.queue.Len(),
		Volume:              s.ingester.Volume(),
		Transcript:          state.Raw(),
		Translation:         state.Translated(),
	}
}
