package audio

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/yegors/co-subtitles/pkg/logger"
)

func sine(rate, n int, freq, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestFrameValidate(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		ok    bool
	}{
		{"mono s16", Frame{SampleRate: 48000, Channels: 1, Int16: make([]int16, 960)}, true},
		{"stereo interleaved", Frame{SampleRate: 48000, Channels: 2, Int16: make([]int16, 1920)}, true},
		{"matrix", Frame{SampleRate: 48000, Channels: 2, Rows: 2, Cols: 960, Format: FormatFloat32, Float32: make([]float32, 1920)}, true},
		{"zero rate", Frame{SampleRate: 0, Channels: 1, Int16: make([]int16, 10)}, false},
		{"zero channels", Frame{SampleRate: 16000, Channels: 0}, false},
		{"odd interleaved", Frame{SampleRate: 48000, Channels: 2, Int16: make([]int16, 3)}, false},
		{"bad shape", Frame{SampleRate: 48000, Channels: 2, Rows: 2, Cols: 10, Int16: make([]int16, 19)}, false},
		{"unknown format", Frame{SampleRate: 48000, Channels: 1, Format: SampleFormat(9)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("Validate() = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestToFloatScaling(t *testing.T) {
	f := Frame{Format: FormatInt16, Int16: []int16{-32768, 16384}}
	if diff := cmp.Diff([]float64{-1, 0.5}, f.toFloat()); diff != "" {
		t.Errorf("int16 scaling (-want +got):\n%s", diff)
	}
	f = Frame{Format: FormatInt32, Int32: []int32{math.MinInt32, 1 << 30}}
	if diff := cmp.Diff([]float64{-1, 0.5}, f.toFloat()); diff != "" {
		t.Errorf("int32 scaling (-want +got):\n%s", diff)
	}
}

func TestToMonoAxisHeuristic(t *testing.T) {
	// 2 rows x 4 cols: rows are channels
	f := Frame{Channels: 2, Rows: 2, Cols: 4}
	got := f.toMono([]float64{1, 1, 1, 1, 0, 0, 0, 0})
	if diff := cmp.Diff([]float64{0.5, 0.5, 0.5, 0.5}, got); diff != "" {
		t.Errorf("channels-first (-want +got):\n%s", diff)
	}

	// 10 rows x 2 cols: too many rows to be channels, columns are
	samples := make([]float64, 20)
	for r := 0; r < 10; r++ {
		samples[2*r] = 1
	}
	f = Frame{Channels: 2, Rows: 10, Cols: 2}
	got = f.toMono(samples)
	if len(got) != 10 || got[0] != 0.5 {
		t.Errorf("channels-last = %v, want ten values of 0.5", got)
	}

	// interleaved stereo
	f = Frame{Channels: 2}
	got = f.toMono([]float64{1, 0, 0.5, 0.5})
	if diff := cmp.Diff([]float64{0.5, 0.5}, got); diff != "" {
		t.Errorf("interleaved (-want +got):\n%s", diff)
	}
}

func TestResamplerPassthrough(t *testing.T) {
	r := NewResampler(16000, 16000)
	in := []float64{0.1, 0.2, 0.3}
	if diff := cmp.Diff(in, r.Process(in)); diff != "" {
		t.Errorf("passthrough (-want +got):\n%s", diff)
	}
}

func TestResamplerOutputLength(t *testing.T) {
	tests := []struct{ in, out int }{
		{48000, 16000},
		{44100, 16000},
		{8000, 16000},
	}
	for _, tt := range tests {
		r := NewResampler(tt.in, tt.out)
		total := 0
		// one second in 10 ms frames
		for i := 0; i < 100; i++ {
			total += len(r.Process(make([]float64, tt.in/100)))
		}
		// the filter holds back up to half its length
		if total > tt.out || total < tt.out-tt.out/100 {
			t.Errorf("%d->%d: produced %d samples for one second", tt.in, tt.out, total)
		}
	}
}

func TestResamplerKeepsDCLevel(t *testing.T) {
	r := NewResampler(48000, 16000)
	in := make([]float64, 4800)
	for i := range in {
		in[i] = 0.5
	}
	r.Process(in)
	out := r.Process(in)
	for i, v := range out {
		if math.Abs(v-0.5) > 1e-3 {
			t.Fatalf("sample %d = %f, want 0.5", i, v)
		}
	}
}

func TestResamplerStreamingMatchesBatch(t *testing.T) {
	in := make([]float64, 4410)
	for i := range in {
		in[i] = math.Sin(float64(i) / 7)
	}

	batch := NewResampler(44100, 16000).Process(in)

	streamed := NewResampler(44100, 16000)
	var got []float64
	for i := 0; i < len(in); i += 441 {
		got = append(got, streamed.Process(in[i:i+441])...)
	}

	if len(got) != len(batch) {
		t.Fatalf("streamed %d samples, batch %d", len(got), len(batch))
	}
	for i := range got {
		if math.Abs(got[i]-batch[i]) > 1e-9 {
			t.Fatalf("sample %d differs: %f vs %f", i, got[i], batch[i])
		}
	}
}

func newTestIngester() (*Ingester, *ChunkQueue) {
	q := NewChunkQueue()
	return NewIngester(IngestConfig{}, q, logger.NewNop()), q
}

func TestIngestEmitsFixedChunks(t *testing.T) {
	in, q := newTestIngester()

	// 16 kHz mono: no resampling, 250 ms in 10 ms frames
	for i := 0; i < 25; i++ {
		f := Frame{SampleRate: 16000, Channels: 1, Int16: sine(16000, 160, 440, 0.3)}
		if err := in.Ingest(f); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}

	if got := q.Len(); got != 2 {
		t.Fatalf("queued %d chunks, want 2", got)
	}
	for i := 0; i < 2; i++ {
		c, err := q.Pop(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(c) != 2*DefaultChunkSize {
			t.Errorf("chunk %d has %d bytes, want %d", i, len(c), 2*DefaultChunkSize)
		}
	}
	frames, chunks := in.Stats()
	if frames != 25 || chunks != 2 {
		t.Errorf("Stats() = %d, %d", frames, chunks)
	}
}

func TestIngestResamplesStereo48k(t *testing.T) {
	in, q := newTestIngester()

	// 20 ms stereo Opus-sized frames for half a second
	for i := 0; i < 25; i++ {
		samples := make([]int16, 960*2)
		mono := sine(48000, 960, 300, 0.5)
		for j, s := range mono {
			samples[2*j] = s
			samples[2*j+1] = s
		}
		if err := in.Ingest(Frame{SampleRate: 48000, Channels: 2, Int16: samples}); err != nil {
			t.Fatal(err)
		}
	}
	// 0.5 s at 16 kHz is 8000 samples = 5 chunks minus filter latency
	if got := q.Len(); got != 4 {
		t.Errorf("queued %d chunks, want 4", got)
	}
}

func TestIngestRejectsMalformedFrame(t *testing.T) {
	in, q := newTestIngester()
	err := in.Ingest(Frame{SampleRate: 16000, Channels: 2, Int16: make([]int16, 3)})
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Ingest() = %v, want ErrMalformedFrame", err)
	}
	if q.Len() != 0 {
		t.Error("malformed frame must not emit chunks")
	}
}

func TestIngestVolume(t *testing.T) {
	in, _ := newTestIngester()

	if err := in.Ingest(Frame{SampleRate: 16000, Channels: 1, Int16: make([]int16, 160)}); err != nil {
		t.Fatal(err)
	}
	if v := in.Volume(); v != 0 {
		t.Errorf("silence volume = %f, want 0", v)
	}

	// RMS of a 0.01 amplitude sine is ~0.00707, times 20 is ~0.141
	if err := in.Ingest(Frame{SampleRate: 16000, Channels: 1, Int16: sine(16000, 1600, 400, 0.01)}); err != nil {
		t.Fatal(err)
	}
	if v := in.Volume(); math.Abs(v-0.1414) > 0.01 {
		t.Errorf("quiet volume = %f, want ~0.141", v)
	}

	if err := in.Ingest(Frame{SampleRate: 16000, Channels: 1, Int16: sine(16000, 1600, 400, 0.9)}); err != nil {
		t.Fatal(err)
	}
	if v := in.Volume(); v != 1 {
		t.Errorf("loud volume = %f, want clamped to 1", v)
	}
}

func TestQuantizeClips(t *testing.T) {
	pcm, err := DecodePCM16(quantize([]float64{2, -2, 0.5, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int16{32767, -32767, 16383, 0}, pcm); diff != "" {
		t.Errorf("quantize (-want +got):\n%s", diff)
	}
}

func TestChunkQueueFIFOAndClose(t *testing.T) {
	q := NewChunkQueue()
	q.Push(Chunk{1})
	q.Push(Chunk{2})
	q.Close()
	q.Push(Chunk{3})

	ctx := context.Background()
	for _, want := range []byte{1, 2} {
		c, err := q.Pop(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if c[0] != want {
			t.Errorf("Pop() = %v, want %d", c, want)
		}
	}
	if _, err := q.Pop(ctx); err != io.EOF {
		t.Errorf("Pop() after close = %v, want io.EOF", err)
	}
	if _, err := q.Pop(ctx); err != io.EOF {
		t.Errorf("Pop() is not sticky after close: %v", err)
	}
}

func TestChunkQueueNextJoinsBacklog(t *testing.T) {
	q := NewChunkQueue()
	q.Push(Chunk{1, 2})
	q.Push(Chunk{3})
	q.Push(Chunk{4, 5})

	got, err := q.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4, 5}, got); diff != "" {
		t.Errorf("Next() (-want +got):\n%s", diff)
	}
	if q.Len() != 0 {
		t.Errorf("queue not drained, %d left", q.Len())
	}
}

func TestChunkQueueCloseWakesBlockedReader(t *testing.T) {
	q := NewChunkQueue()
	done := make(chan error, 1)
	go func() {
		_, err := q.Next(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("Next() = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader still blocked after Close")
	}
}

func TestChunkQueueContextCancelWakesReader(t *testing.T) {
	q := NewChunkQueue()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Pop() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader still blocked after cancel")
	}
}

func TestPCM16ResamplerUpsamples(t *testing.T) {
	p := NewPCM16Resampler(16000, 24000)
	var total int
	for i := 0; i < 10; i++ {
		out, err := p.Process(quantize(make([]float64, 1600)))
		if err != nil {
			t.Fatal(err)
		}
		total += len(out) / 2
	}
	// one second in, a little under 24000 out because of the filter delay
	if total > 24000 || total < 23700 {
		t.Errorf("produced %d samples, want ~24000", total)
	}

	if _, err := p.Process([]byte{1, 2, 3}); err == nil {
		t.Error("odd-length PCM accepted")
	}
}

func TestPCM16ResamplerPassthrough(t *testing.T) {
	p := NewPCM16Resampler(16000, 16000)
	in := []byte{1, 0, 2, 0}
	out, err := p.Process(in)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("passthrough (-want +got):\n%s", diff)
	}
}
