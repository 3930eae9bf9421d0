package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"

	"github.com/yegors/co-subtitles/internal/audio"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// DefaultICEServer is the STUN server configured by default
const DefaultICEServer = "stun:stun.l.google.com:19302"

// Config contains peer connection settings
type Config struct {
	ICEServers      []string // none means host candidates only
	IncludeLoopback bool     // offer loopback candidates, for local testing
}

// Handlers receive the media and lifecycle events of a peer
type Handlers struct {
	// OnFrame receives every decoded audio frame. An error ends the track
	// and closes the peer.
	OnFrame func(audio.Frame) error
	// OnDataChannel is called once a browser data channel is open
	OnDataChannel func(*DataChannelPresenter)
	// OnClosed is called once when the connection fails, disconnects or closes
	OnClosed func()
}

// Peer is one browser connection: an inbound audio track and a data channel
// back to the page.
type Peer struct {
	pc       *pion.PeerConnection
	handlers Handlers
	logger   *logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	notified atomic.Bool
}

// NewPeer creates a peer connection and registers its handlers
func NewPeer(cfg Config, h Handlers, log *logger.Logger) (*Peer, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}
	se := pion.SettingEngine{}
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)
	api := pion.NewAPI(pion.WithMediaEngine(m), pion.WithSettingEngine(se))

	var servers []pion.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []pion.ICEServer{{URLs: cfg.ICEServers}}
	}
	pc, err := api.NewPeerConnection(pion.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		pc:       pc,
		handlers: h,
		logger:   log.Named("webrtc"),
		ctx:      ctx,
		cancel:   cancel,
	}
	pc.OnTrack(p.onTrack)
	pc.OnDataChannel(p.onDataChannel)
	pc.OnConnectionStateChange(p.onStateChange)
	return p, nil
}

// Answer applies a browser offer and returns the local answer once ICE
// gathering is complete
func (p *Peer) Answer(ctx context.Context, sdp, sdpType string) (pion.SessionDescription, error) {
	offer := pion.SessionDescription{Type: pion.NewSDPType(sdpType), SDP: sdp}
	if offer.Type != pion.SDPTypeOffer {
		return pion.SessionDescription{}, fmt.Errorf("expected an offer, got %q", sdpType)
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return pion.SessionDescription{}, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return pion.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	gathered := pion.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return pion.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return pion.SessionDescription{}, ctx.Err()
	}
	return *p.pc.LocalDescription(), nil
}

// Close tears the connection down. It is safe to call more than once.
func (p *Peer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()
	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}

func (p *Peer) onTrack(track *pion.TrackRemote, _ *pion.RTPReceiver) {
	codec := track.Codec()
	log := p.logger.With(
		String("track_id", track.ID()),
		String("codec", codec.MimeType))

	if track.Kind() != pion.RTPCodecTypeAudio || codec.MimeType != pion.MimeTypeOpus {
		log.Warn("Ignoring unsupported track", String("kind", track.Kind().String()))
		return
	}
	log.Info("Audio track started",
		Int("clock_rate", int(codec.ClockRate)),
		Int("channels", int(codec.Channels)))

	go func() {
		read := func() (*rtp.Packet, error) {
			pkt, _, err := track.ReadRTP()
			return pkt, err
		}
		sink := p.handlers.OnFrame
		if sink == nil {
			sink = func(audio.Frame) error { return nil }
		}

		err := DecodeOpus(p.ctx, read, sink, log)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			log.Info("Audio track ended")
		case p.closed.Load():
		default:
			log.Error("Audio track failed, closing connection", Error(err))
			p.Close()
		}
	}()
}

func (p *Peer) onDataChannel(dc *pion.DataChannel) {
	p.logger.Info("Data channel opened by browser", String("label", dc.Label()))
	dc.OnOpen(func() {
		if p.handlers.OnDataChannel != nil {
			p.handlers.OnDataChannel(NewDataChannelPresenter(dc))
		}
	})
}

func (p *Peer) onStateChange(state pion.PeerConnectionState) {
	p.logger.Info("Connection state changed", String("state", state.String()))

	switch state {
	case pion.PeerConnectionStateFailed, pion.PeerConnectionStateDisconnected, pion.PeerConnectionStateClosed:
		if p.notified.CompareAndSwap(false, true) && p.handlers.OnClosed != nil {
			// outside the pion callback, which must not block on Close
			go p.handlers.OnClosed()
		}
	}
}
