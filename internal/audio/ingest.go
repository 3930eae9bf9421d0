package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/yegors/co-subtitles/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// Defaults for recognition uploads: 16 kHz mono, 100 ms per chunk.
const (
	DefaultSampleRate = 16000
	DefaultChunkSize  = DefaultSampleRate / 10
	DefaultVolumeGain = 20.0
)

// IngestConfig contains settings for the ingest stage
type IngestConfig struct {
	SampleRate int     // Target sample rate in Hz
	ChunkSize  int     // Samples per emitted chunk
	VolumeGain float64 // Multiplier applied to the RMS before clamping
}

func (c IngestConfig) withDefaults() IngestConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = c.SampleRate / 10
	}
	if c.VolumeGain <= 0 {
		c.VolumeGain = DefaultVolumeGain
	}
	return c
}

// Ingester turns decoded frames into fixed-size recognition chunks and
// keeps a running volume estimate for the UI.
type Ingester struct {
	cfg    IngestConfig
	queue  *ChunkQueue
	logger *logger.Logger

	mu        sync.Mutex
	resampler *Resampler
	srcRate   int
	pending   []float64

	volume atomic.Uint64 // math.Float64bits
	frames atomic.Int64
	chunks atomic.Int64
}

// NewIngester creates an ingester writing to queue
func NewIngester(cfg IngestConfig, queue *ChunkQueue, logger *logger.Logger) *Ingester {
	cfg = cfg.withDefaults()
	return &Ingester{
		cfg:    cfg,
		queue:  queue,
		logger: logger.Named("ingest"),
	}
}

// Queue returns the queue chunks are pushed to
func (in *Ingester) Queue() *ChunkQueue {
	return in.queue
}

// Ingest normalizes, downmixes and resamples one frame, then emits as many
// full chunks as have accumulated. Malformed frames are returned as errors
// and leave the internal state untouched.
func (in *Ingester) Ingest(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	mono := f.toMono(f.toFloat())

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.resampler == nil || in.srcRate != f.SampleRate {
		if in.resampler != nil {
			in.logger.Info("Source sample rate changed, resetting resampler",
				Int("from", in.srcRate),
				Int("to", f.SampleRate))
		}
		in.resampler = NewResampler(f.SampleRate, in.cfg.SampleRate)
		in.srcRate = f.SampleRate
	}

	resampled := in.resampler.Process(mono)
	if len(resampled) > 0 {
		in.setVolume(rms(resampled) * in.cfg.VolumeGain)
	}
	in.pending = append(in.pending, resampled...)

	for len(in.pending) >= in.cfg.ChunkSize {
		chunk := quantize(in.pending[:in.cfg.ChunkSize])
		in.queue.Push(chunk)
		in.pending = append(in.pending[:0], in.pending[in.cfg.ChunkSize:]...)

		if n := in.chunks.Add(1); n%100 == 0 {
			in.logger.Debug("Emitted audio chunks", logger.Int64("chunks", n))
		}
	}
	in.frames.Add(1)
	return nil
}

// Volume returns the latest volume level in [0, 1]
func (in *Ingester) Volume() float64 {
	return math.Float64frombits(in.volume.Load())
}

// Stats returns the number of frames ingested and chunks emitted
func (in *Ingester) Stats() (frames, chunks int64) {
	return in.frames.Load(), in.chunks.Load()
}

func (in *Ingester) setVolume(v float64) {
	v = min(max(v, 0), 1)
	in.volume.Store(math.Float64bits(v))
}

func rms(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// quantize converts samples to 16-bit little-endian PCM, clipping anything
// outside [-1, 1].
func quantize(samples []float64) Chunk {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		s = min(max(s, -1), 1)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s*32767)))
	}
	return out
}

// DecodePCM16 converts little-endian 16-bit PCM back into samples. It is
// mostly useful for diagnostics and tests.
func DecodePCM16(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("odd PCM16 byte length %d", len(b))
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out, nil
}
