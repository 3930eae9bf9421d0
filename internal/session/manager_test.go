package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yegors/co-subtitles/internal/audio"
	"github.com/yegors/co-subtitles/internal/speech"
	"github.com/yegors/co-subtitles/internal/subtitles"
	"github.com/yegors/co-subtitles/internal/webrtc"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// countingRecognizer reports how many chunks it has heard
type countingRecognizer struct{}

func (countingRecognizer) Name() string { return "counting" }

func (countingRecognizer) Recognize(ctx context.Context, cfg speech.StreamConfig, src speech.AudioSource, onResult func(speech.Result)) error {
	var words []string
	for {
		if _, err := src.Next(ctx); err != nil {
			return err
		}
		words = append(words, fmt.Sprintf("mot%d", len(words)+1))
		onResult(speech.Result{Text: strings.Join(words, " ")})
	}
}

type upperTranslator struct{}

func (upperTranslator) Name() string { return "upper" }

func (upperTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	return strings.ToUpper(text), nil
}

type fakePeer struct {
	handlers  webrtc.Handlers
	answerErr error
	closeErr  error
	closed    atomic.Bool
}

func (p *fakePeer) Answer(ctx context.Context, sdp, sdpType string) (pion.SessionDescription, error) {
	if p.answerErr != nil {
		return pion.SessionDescription{}, p.answerErr
	}
	return pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "answer:" + sdp}, nil
}

func (p *fakePeer) Close() error {
	p.closed.Store(true)
	return p.closeErr
}

type peers struct {
	mu        sync.Mutex
	created   []*fakePeer
	answerErr error
	closeErr  error
	// hangUp ends the session before the factory returns
	hangUp bool
}

func (ps *peers) factory(h webrtc.Handlers) (Peer, error) {
	ps.mu.Lock()
	p := &fakePeer{handlers: h, answerErr: ps.answerErr, closeErr: ps.closeErr}
	ps.created = append(ps.created, p)
	hangUp := ps.hangUp
	ps.mu.Unlock()
	if hangUp {
		h.OnClosed()
	}
	return p, nil
}

func (ps *peers) last() *fakePeer {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.created[len(ps.created)-1]
}

type recordingPresenter struct {
	mu    sync.Mutex
	ticks []subtitles.SubtitleMessage
}

func (r *recordingPresenter) PresentSubtitles(transcription, translation subtitles.RenderUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, subtitles.NewSubtitleMessage(transcription, translation))
	return nil
}

func (r *recordingPresenter) PresentVoice(float64) error { return nil }

func (r *recordingPresenter) latest() (subtitles.SubtitleMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ticks) == 0 {
		return subtitles.SubtitleMessage{}, false
	}
	return r.ticks[len(r.ticks)-1], true
}

type viewerHub struct {
	mu   sync.Mutex
	byID map[string]*recordingPresenter
}

func (v *viewerHub) Presenter(id string) subtitles.Presenter {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.byID == nil {
		v.byID = make(map[string]*recordingPresenter)
	}
	p := &recordingPresenter{}
	v.byID[id] = p
	return p
}

func (v *viewerHub) get(id string) *recordingPresenter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.byID[id]
}

func testConfig() Config {
	cfg := Config{
		DefaultAudio:  "French (France)",
		DefaultTransl: "English (United States)",
		VoiceInterval: 10 * time.Millisecond,
	}
	cfg.Pipeline.PollInterval = 5 * time.Millisecond
	cfg.Renderer.FastInterval = 5 * time.Millisecond
	cfg.Renderer.SlowInterval = 10 * time.Millisecond
	return cfg
}

func newTestManager(ps *peers, hub Viewers) *Manager {
	return NewManager(testConfig(), Providers{Recognizer: countingRecognizer{}, Translator: upperTranslator{}}, hub, ps.factory, logger.NewNop())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func chunkFrame() audio.Frame {
	return audio.Frame{SampleRate: 16000, Channels: 1, Format: audio.FormatInt16, Int16: make([]int16, 1600)}
}

func TestOfferRunsPipelineToPresenters(t *testing.T) {
	ps := &peers{}
	hub := &viewerHub{}
	m := newTestManager(ps, hub)
	defer m.CloseAll()

	resp, err := m.Offer(context.Background(), OfferRequest{SDP: "v=0", Type: "offer"})
	if err != nil {
		t.Fatalf("Offer() = %v", err)
	}
	if resp.SessionID == "" || resp.Type != "answer" || resp.SDP != "answer:v=0" {
		t.Fatalf("Offer() = %+v", resp)
	}

	s, ok := m.Get(resp.SessionID)
	if !ok {
		t.Fatal("session not registered")
	}

	// one frame per recognizer read; frames queued together are uploaded
	// as a single buffer
	peer := ps.last()
	for i := 1; i <= 3; i++ {
		if err := peer.handlers.OnFrame(chunkFrame()); err != nil {
			t.Fatalf("OnFrame() = %v", err)
		}
		want := numbered(i)
		waitFor(t, want, func() bool { return s.Info().Transcript == want })
	}

	dc := &recordingPresenter{}
	s.Attach(dc)

	waitFor(t, "subtitles", func() bool {
		msg, ok := dc.latest()
		return ok && msg.Transc == "mot1 mot2 mot3" && msg.Transl == "MOT1 MOT2 MOT3"
	})
	msg, _ := dc.latest()
	if msg.TitleTransc != "French (France)" || msg.TitleTransl != "English (United States)" {
		t.Errorf("titles = %q, %q", msg.TitleTransc, msg.TitleTransl)
	}
	waitFor(t, "viewer ticks", func() bool {
		_, ok := hub.get(resp.SessionID).latest()
		return ok
	})

	info := m.List()
	if len(info) != 1 || info[0].Chunks != 3 || info[0].QueuedChunks != 0 || info[0].Transcript != "mot1 mot2 mot3" {
		t.Errorf("List() = %+v", info)
	}
	if got, ok := m.Info(resp.SessionID); !ok || got.ID != resp.SessionID {
		t.Errorf("Info() = %+v, %v", got, ok)
	}
	if _, ok := m.Info("missing"); ok {
		t.Error("Info() found an unknown session")
	}
}

func numbered(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("mot%d", i+1)
	}
	return strings.Join(words, " ")
}

func TestPeerCloseEndsSession(t *testing.T) {
	ps := &peers{}
	m := newTestManager(ps, nil)

	resp, err := m.Offer(context.Background(), OfferRequest{SDP: "v=0", Type: "offer", AudioLang: "es-ES", TranslLang: "Japanese (Japan)"})
	if err != nil {
		t.Fatal(err)
	}
	s, _ := m.Get(resp.SessionID)
	if s.Languages().Audio.Code != "es-ES" || s.Languages().Translation.Code != "ja-JP" {
		t.Errorf("languages = %+v", s.Languages())
	}
	s.Attach(&recordingPresenter{})

	peer := ps.last()
	peer.handlers.OnClosed()

	if m.Count() != 0 {
		t.Error("session still registered")
	}
	if !peer.closed.Load() {
		t.Error("peer not closed")
	}
	if s.Info().Running {
		t.Error("pipeline still running")
	}
	// a late close is harmless
	m.Close(resp.SessionID)
	s.Close()
}

func TestOfferUnknownLanguage(t *testing.T) {
	m := newTestManager(&peers{}, nil)
	_, err := m.Offer(context.Background(), OfferRequest{SDP: "v=0", Type: "offer", AudioLang: "Klingon"})
	if !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("Offer() = %v, want ErrUnknownLanguage", err)
	}
	if m.Count() != 0 {
		t.Error("session created for a rejected offer")
	}
}

func TestOfferAnswerFailure(t *testing.T) {
	ps := &peers{answerErr: errors.New("bad sdp")}
	m := newTestManager(ps, nil)
	if _, err := m.Offer(context.Background(), OfferRequest{SDP: "garbage", Type: "offer"}); err == nil {
		t.Fatal("Offer() succeeded")
	}
	if m.Count() != 0 {
		t.Error("failed session left registered")
	}
	if !ps.last().closed.Load() {
		t.Error("peer of failed session not closed")
	}
}

func TestOfferClosedDuringNegotiation(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ps := &peers{hangUp: true, closeErr: errors.New("transport already gone")}
	m := NewManager(testConfig(), Providers{Recognizer: countingRecognizer{}, Translator: upperTranslator{}}, nil, ps.factory, logger.FromZap(zap.New(core)))

	if _, err := m.Offer(context.Background(), OfferRequest{SDP: "v=0", Type: "offer"}); err == nil {
		t.Fatal("Offer() succeeded for a session closed during negotiation")
	}
	if m.Count() != 0 {
		t.Error("closed session left registered")
	}
	if !ps.last().closed.Load() {
		t.Error("orphaned peer not closed")
	}

	entries := logs.FilterMessage("Failed to close peer").All()
	if len(entries) != 1 {
		t.Fatalf("got %d close warnings, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["session_id"] == "" || fields["error"] != "transport already gone" {
		t.Errorf("warning fields = %v", fields)
	}
}

func TestCloseAllRefusesNewOffers(t *testing.T) {
	ps := &peers{}
	m := newTestManager(ps, nil)
	for i := 0; i < 3; i++ {
		if _, err := m.Offer(context.Background(), OfferRequest{SDP: "v=0", Type: "offer"}); err != nil {
			t.Fatal(err)
		}
	}
	m.CloseAll()
	if m.Count() != 0 {
		t.Errorf("%d sessions left", m.Count())
	}
	for _, p := range ps.created {
		if !p.closed.Load() {
			t.Error("peer left open")
		}
	}
	if _, err := m.Offer(context.Background(), OfferRequest{SDP: "v=0", Type: "offer"}); err == nil {
		t.Error("offer accepted after shutdown")
	}
}
