// Package session keeps one pipeline per live browser connection and closes
// them when the connection drops or the server shuts down.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"

	"github.com/yegors/co-subtitles/internal/audio"
	"github.com/yegors/co-subtitles/internal/language"
	"github.com/yegors/co-subtitles/internal/pipeline"
	"github.com/yegors/co-subtitles/internal/speech"
	"github.com/yegors/co-subtitles/internal/subtitles"
	"github.com/yegors/co-subtitles/internal/translate"
	"github.com/yegors/co-subtitles/internal/webrtc"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// ErrUnknownLanguage is returned for an offer naming a language outside the
// catalogue
var ErrUnknownLanguage = errors.New("unknown language")

// Config contains the per-session settings
type Config struct {
	Ingest        audio.IngestConfig
	Pipeline      pipeline.Config
	Renderer      subtitles.RendererConfig
	VoiceInterval time.Duration
	DefaultAudio  string
	DefaultTransl string
}

// Providers are shared by all sessions
type Providers struct {
	Recognizer speech.Recognizer
	Translator translate.Translator
}

// Peer is the media transport of a session
type Peer interface {
	Answer(ctx context.Context, sdp, sdpType string) (pion.SessionDescription, error)
	Close() error
}

// PeerFactory creates the transport for a new session
type PeerFactory func(h webrtc.Handlers) (Peer, error)

// Viewers hands out a presenter per session, typically the websocket hub
type Viewers interface {
	Presenter(sessionID string) subtitles.Presenter
}

// OfferRequest is a browser offer with the requested language pair
type OfferRequest struct {
	SDP        string `json:"sdp"`
	Type       string `json:"type"`
	AudioLang  string `json:"audio_lang"`
	TranslLang string `json:"transl_lang"`
}

// OfferResponse is the answer returned to the browser
type OfferResponse struct {
	SDP       string `json:"sdp"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Manager tracks the live sessions
type Manager struct {
	cfg       Config
	providers Providers
	viewers   Viewers
	newPeer   PeerFactory
	logger    *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a session manager. viewers may be nil.
func NewManager(cfg Config, providers Providers, viewers Viewers, newPeer PeerFactory, log *logger.Logger) *Manager {
	if providers.Translator == nil {
		providers.Translator = translate.Identity{}
	}
	return &Manager{
		cfg:       cfg,
		providers: providers,
		viewers:   viewers,
		newPeer:   newPeer,
		logger:    log.Named("session"),
		sessions:  make(map[string]*Session),
	}
}

// WebRTCPeers returns a PeerFactory backed by pion
func WebRTCPeers(cfg webrtc.Config, log *logger.Logger) PeerFactory {
	return func(h webrtc.Handlers) (Peer, error) {
		p, err := webrtc.NewPeer(cfg, h, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func (m *Manager) resolve(name, fallback string) (language.Language, error) {
	if strings.TrimSpace(name) == "" {
		name = fallback
	}
	l, ok := language.Lookup(name)
	if !ok {
		return language.Language{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
	}
	return l, nil
}

// Offer starts a session for a browser offer and returns the answer
func (m *Manager) Offer(ctx context.Context, req OfferRequest) (OfferResponse, error) {
	audioLang, err := m.resolve(req.AudioLang, m.cfg.DefaultAudio)
	if err != nil {
		return OfferResponse{}, err
	}
	translLang, err := m.resolve(req.TranslLang, m.cfg.DefaultTransl)
	if err != nil {
		return OfferResponse{}, err
	}
	langs := pipeline.Languages{Audio: audioLang, Translation: translLang}

	id := uuid.NewString()
	var viewers subtitles.Presenter
	if m.viewers != nil {
		viewers = m.viewers.Presenter(id)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return OfferResponse{}, errors.New("session manager is shut down")
	}
	s := newSession(id, langs, m.cfg, m.providers, viewers, m.logger)
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	peer, err := m.newPeer(webrtc.Handlers{
		OnFrame: s.Ingest,
		OnDataChannel: func(p *webrtc.DataChannelPresenter) {
			s.Attach(p)
		},
		OnClosed: func() {
			m.logger.Info("Peer connection ended", String("session_id", id))
			m.Close(id)
		},
	})
	if err != nil {
		m.Close(id)
		return OfferResponse{}, fmt.Errorf("failed to create peer: %w", err)
	}
	if !s.setPeer(peer) {
		if err := peer.Close(); err != nil {
			m.logger.Warn("Failed to close peer", String("session_id", id), Error(err))
		}
		return OfferResponse{}, errors.New("session closed during negotiation")
	}

	answer, err := peer.Answer(ctx, req.SDP, req.Type)
	if err != nil {
		m.Close(id)
		return OfferResponse{}, fmt.Errorf("failed to answer offer: %w", err)
	}

	m.logger.Info("Session started",
		String("session_id", id),
		String("audio_lang", audioLang.Name),
		String("transl_lang", translLang.Name),
		String("recognizer", m.providers.Recognizer.Name()),
		String("translator", m.providers.Translator.Name()),
		Int("sessions", count))

	return OfferResponse{SDP: answer.SDP, Type: answer.Type.String(), SessionID: id}, nil
}

// Get returns a live session
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Info returns a snapshot of one live session
func (m *Manager) Info(id string) (Info, bool) {
	s, ok := m.Get(id)
	if !ok {
		return Info{}, false
	}
	return s.Info(), true
}

// List returns a snapshot of every live session, oldest first
func (m *Manager) List() []Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	slices.SortFunc(infos, func(a, b Info) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return infos
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends one session. Unknown ids are ignored.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll ends every session and refuses new offers
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
	m.logger.Info("All sessions closed", Int("count", len(sessions)))
}
