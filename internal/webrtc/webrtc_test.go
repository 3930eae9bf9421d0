package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/hraban/opus.v2"

	"github.com/yegors/co-subtitles/internal/audio"
	"github.com/yegors/co-subtitles/internal/subtitles"
	"github.com/yegors/co-subtitles/pkg/logger"
)

func encodePackets(t *testing.T, n int) []*rtp.Packet {
	t.Helper()
	enc, err := opus.NewEncoder(OpusSampleRate, OpusChannels, opus.AppVoIP)
	if err != nil {
		t.Fatalf("NewEncoder() = %v", err)
	}
	pcm := make([]int16, 960*OpusChannels) // 20 ms
	for i := range pcm {
		pcm[i] = int16((i % 64) * 256)
	}

	var pkts []*rtp.Packet
	for i := 0; i < n; i++ {
		buf := make([]byte, 1000)
		size, err := enc.Encode(pcm, buf)
		if err != nil {
			t.Fatalf("Encode() = %v", err)
		}
		pkts = append(pkts, &rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: buf[:size],
		})
	}
	return pkts
}

func reader(pkts []*rtp.Packet) PacketReader {
	return func() (*rtp.Packet, error) {
		if len(pkts) == 0 {
			return nil, io.EOF
		}
		p := pkts[0]
		pkts = pkts[1:]
		return p, nil
	}
}

func TestDecodeOpusFeedsFrames(t *testing.T) {
	pkts := encodePackets(t, 3)
	// an empty payload is skipped
	pkts = append(pkts[:1], append([]*rtp.Packet{{}}, pkts[1:]...)...)

	var frames []audio.Frame
	err := DecodeOpus(context.Background(), reader(pkts), func(f audio.Frame) error {
		frames = append(frames, f)
		return nil
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("DecodeOpus() = %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for _, f := range frames {
		if f.SampleRate != 48000 || f.Channels != 2 || f.Format != audio.FormatInt16 {
			t.Errorf("frame header = %d Hz, %d ch, %s", f.SampleRate, f.Channels, f.Format)
		}
		if len(f.Int16) != 960*2 {
			t.Errorf("frame holds %d samples, want 1920", len(f.Int16))
		}
		if err := f.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	}
}

func TestDecodeOpusSkipsCorruptPackets(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	pkts := encodePackets(t, 2)
	// code 3 packet announcing zero frames
	bad := &rtp.Packet{Header: rtp.Header{SequenceNumber: 77}, Payload: []byte{0x03, 0x00}}
	pkts = append([]*rtp.Packet{bad}, pkts...)

	frames := 0
	err := DecodeOpus(context.Background(), reader(pkts), func(audio.Frame) error {
		frames++
		return nil
	}, logger.FromZap(zap.New(core)))
	if err != nil {
		t.Fatalf("DecodeOpus() = %v", err)
	}
	if frames != 2 {
		t.Errorf("got %d frames, want 2", frames)
	}

	entries := logs.FilterMessage("Skipping undecodable opus packet").All()
	if len(entries) != 1 {
		t.Fatalf("got %d corrupt packet logs, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["sequence"] != int64(77) || fields["corrupt_packets"] != int64(1) {
		t.Errorf("log fields = %v", fields)
	}
}

func TestDecodeOpusIntoIngester(t *testing.T) {
	q := audio.NewChunkQueue()
	in := audio.NewIngester(audio.IngestConfig{}, q, logger.NewNop())

	// 220 ms resamples to about 3500 samples, two full chunks
	if err := DecodeOpus(context.Background(), reader(encodePackets(t, 11)), in.Ingest, logger.NewNop()); err != nil {
		t.Fatalf("DecodeOpus() = %v", err)
	}
	if q.Len() != 2 {
		t.Errorf("queue holds %d chunks, want 2", q.Len())
	}
}

func TestDecodeOpusStopsOnSinkError(t *testing.T) {
	sinkErr := errors.New("rejected")
	err := DecodeOpus(context.Background(), reader(encodePackets(t, 2)), func(audio.Frame) error { return sinkErr }, logger.NewNop())
	if !errors.Is(err, sinkErr) {
		t.Errorf("DecodeOpus() = %v, want %v", err, sinkErr)
	}
}

func TestDecodeOpusReadError(t *testing.T) {
	err := DecodeOpus(context.Background(), func() (*rtp.Packet, error) { return nil, errors.New("srtp failure") }, func(audio.Frame) error { return nil }, logger.NewNop())
	if err == nil || errors.Is(err, io.EOF) {
		t.Errorf("DecodeOpus() = %v", err)
	}
}

func TestDecodeOpusCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := DecodeOpus(ctx, reader(encodePackets(t, 1)), func(audio.Frame) error { return nil }, logger.NewNop())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DecodeOpus() = %v", err)
	}
}

func TestAnswerRejectsNonOffer(t *testing.T) {
	p, err := NewPeer(Config{}, Handlers{}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if _, err := p.Answer(context.Background(), "v=0", "answer"); err == nil {
		t.Error("Answer() accepted an answer")
	}
}

// TestPeerDataChannelLoopback negotiates a real connection over loopback and
// checks that presenter messages reach the browser side.
func TestPeerDataChannelLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("negotiates a real peer connection")
	}

	presenters := make(chan *DataChannelPresenter, 1)
	closed := make(chan struct{})
	server, err := NewPeer(Config{IncludeLoopback: true}, Handlers{
		OnDataChannel: func(p *DataChannelPresenter) { presenters <- p },
		OnClosed:      func() { close(closed) },
	}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	se := pion.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	client, err := pion.NewAPI(pion.WithSettingEngine(se)).NewPeerConnection(pion.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	dc, err := client.CreateDataChannel("data", nil)
	if err != nil {
		t.Fatal(err)
	}
	received := make(chan []byte, 8)
	dc.OnMessage(func(msg pion.DataChannelMessage) { received <- msg.Data })

	offer, err := client.CreateOffer(nil)
	if err != nil {
		t.Fatal(err)
	}
	gathered := pion.GatheringCompletePromise(client)
	if err := client.SetLocalDescription(offer); err != nil {
		t.Fatal(err)
	}
	<-gathered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	answer, err := server.Answer(ctx, client.LocalDescription().SDP, "offer")
	if err != nil {
		t.Fatalf("Answer() = %v", err)
	}
	if err := client.SetRemoteDescription(answer); err != nil {
		t.Fatal(err)
	}

	var p *DataChannelPresenter
	select {
	case p = <-presenters:
	case <-ctx.Done():
		t.Fatal("data channel never opened")
	}
	if err := p.PresentVoice(0.5); err != nil {
		t.Fatalf("PresentVoice() = %v", err)
	}

	select {
	case data := <-received:
		var msg subtitles.VoiceMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != subtitles.MessageTypeVoice || msg.Level != 0.5 {
			t.Errorf("message = %+v", msg)
		}
	case <-ctx.Done():
		t.Fatal("no message on the data channel")
	}

	server.Close()
	select {
	case <-closed:
	case <-ctx.Done():
		t.Fatal("OnClosed not called after Close")
	}
}
