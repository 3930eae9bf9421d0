package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtp"
	"gopkg.in/hraban/opus.v2"

	"github.com/yegors/co-subtitles/internal/audio"
	"github.com/yegors/co-subtitles/pkg/logger"
)

// Opus always runs its clock at 48 kHz, whatever the capture rate was
const (
	OpusSampleRate = 48000
	OpusChannels   = 2

	// 120 ms is the longest Opus packet
	maxFrameSamples = OpusSampleRate * 120 / 1000
)

// PacketReader returns the next RTP packet of a track
type PacketReader func() (*rtp.Packet, error)

// DecodeOpus reads Opus RTP packets, decodes them to interleaved PCM16 and
// hands each decoded frame to sink. It returns nil when the track ends and
// the sink's error when a frame is rejected. Packets that fail to decode are
// skipped and logged at debug level.
func DecodeOpus(ctx context.Context, read PacketReader, sink func(audio.Frame) error, log *logger.Logger) error {
	dec, err := opus.NewDecoder(OpusSampleRate, OpusChannels)
	if err != nil {
		return fmt.Errorf("failed to create opus decoder: %w", err)
	}
	pcm := make([]int16, maxFrameSamples*OpusChannels)
	corrupt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read rtp packet: %w", err)
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			corrupt++
			log.Debug("Skipping undecodable opus packet",
				Error(err),
				Int("sequence", int(pkt.SequenceNumber)),
				Int("corrupt_packets", corrupt))
			continue
		}

		samples := make([]int16, n*OpusChannels)
		copy(samples, pcm[:n*OpusChannels])
		frame := audio.Frame{
			SampleRate: OpusSampleRate,
			Channels:   OpusChannels,
			Format:     audio.FormatInt16,
			Int16:      samples,
		}
		if err := sink(frame); err != nil {
			return err
		}
	}
}
