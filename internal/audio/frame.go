package audio

import (
	"errors"
	"fmt"
)

// SampleFormat identifies how frame samples are encoded
type SampleFormat int

const (
	FormatInt16 SampleFormat = iota
	FormatInt32
	FormatFloat32
)

func (f SampleFormat) String() string {
	switch f {
	case FormatInt16:
		return "s16"
	case FormatInt32:
		return "s32"
	case FormatFloat32:
		return "flt"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ErrMalformedFrame is returned for frames that cannot be interpreted
var ErrMalformedFrame = errors.New("malformed audio frame")

// Frame is a decoded audio frame as delivered by the media transport.
//
// Samples are either a flat interleaved sequence (Rows and Cols zero) or a
// row-major Rows x Cols matrix whose channel axis is not known in advance.
// Only the slice matching Format is read.
type Frame struct {
	SampleRate int
	Channels   int // channel count of the source layout, 1 for mono
	Rows, Cols int
	Format     SampleFormat

	Int16   []int16
	Int32   []int32
	Float32 []float32
}

func (f *Frame) sampleCount() int {
	switch f.Format {
	case FormatInt16:
		return len(f.Int16)
	case FormatInt32:
		return len(f.Int32)
	case FormatFloat32:
		return len(f.Float32)
	}
	return 0
}

func (f *Frame) isMatrix() bool {
	return f.Rows != 0 || f.Cols != 0
}

// Validate reports why a frame cannot be ingested
func (f *Frame) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrMalformedFrame, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channel count %d", ErrMalformedFrame, f.Channels)
	}
	switch f.Format {
	case FormatInt16, FormatInt32, FormatFloat32:
	default:
		return fmt.Errorf("%w: unsupported sample format %s", ErrMalformedFrame, f.Format)
	}

	n := f.sampleCount()
	if f.isMatrix() {
		if f.Rows <= 0 || f.Cols <= 0 || f.Rows*f.Cols != n {
			return fmt.Errorf("%w: shape %dx%d does not hold %d samples", ErrMalformedFrame, f.Rows, f.Cols, n)
		}
		return nil
	}
	if n%f.Channels != 0 {
		return fmt.Errorf("%w: %d samples is not a multiple of %d channels", ErrMalformedFrame, n, f.Channels)
	}
	return nil
}

// toFloat converts integer PCM to normalized samples in [-1, 1).
func (f *Frame) toFloat() []float64 {
	switch f.Format {
	case FormatInt16:
		out := make([]float64, len(f.Int16))
		for i, s := range f.Int16 {
			out[i] = float64(s) / 32768.0
		}
		return out
	case FormatInt32:
		out := make([]float64, len(f.Int32))
		for i, s := range f.Int32 {
			out[i] = float64(s) / 2147483648.0
		}
		return out
	case FormatFloat32:
		out := make([]float64, len(f.Float32))
		for i, s := range f.Float32 {
			out[i] = float64(s)
		}
		return out
	}
	return nil
}

// maxChannelAxis is the largest axis length still treated as a channel axis.
const maxChannelAxis = 8

// toMono averages channels together.
//
// For matrix frames the channel axis is guessed: the first axis with at most
// maxChannelAxis entries is taken as channels. This is a heuristic and can
// pick the wrong axis for very short frames.
func (f *Frame) toMono(samples []float64) []float64 {
	if f.isMatrix() {
		if f.Rows <= maxChannelAxis {
			return meanRows(samples, f.Rows, f.Cols)
		}
		return meanCols(samples, f.Rows, f.Cols)
	}
	if f.Channels == 1 {
		return samples
	}
	// interleaved: reshape to (-1, channels) and average each row
	return meanCols(samples, len(samples)/f.Channels, f.Channels)
}

// meanRows averages along axis 0, yielding one value per column.
func meanRows(samples []float64, rows, cols int) []float64 {
	out := make([]float64, cols)
	for r := 0; r < rows; r++ {
		row := samples[r*cols : (r+1)*cols]
		for c, s := range row {
			out[c] += s
		}
	}
	for c := range out {
		out[c] /= float64(rows)
	}
	return out
}

// meanCols averages along axis 1, yielding one value per row.
func meanCols(samples []float64, rows, cols int) []float64 {
	out := make([]float64, rows)
	for r := 0; r < rows; r++ {
		var sum float64
		for _, s := range samples[r*cols : (r+1)*cols] {
			sum += s
		}
		out[r] = sum / float64(cols)
	}
	return out
}
