package audio

import "math"

// Resampler converts a stream between two sample rates with a polyphase FIR
// filter: upsample by up, low-pass, downsample by down. The filter design
// follows the usual resample_poly recipe (Kaiser window, beta 5, ten zero
// crossings per side) and the group delay is compensated so output stays
// aligned with input. State is kept across calls so consecutive frames join
// without edge artifacts.
type Resampler struct {
	up, down int
	taps     []float64

	history []float64 // unconsumed input, history[0] has index base
	base    int
	next    int // upsampled index of the next output sample
}

const kaiserBeta = 5.0

// NewResampler creates a resampler from inRate to outRate
func NewResampler(inRate, outRate int) *Resampler {
	g := gcd(inRate, outRate)
	up, down := outRate/g, inRate/g

	r := &Resampler{up: up, down: down}
	if up == 1 && down == 1 {
		return r
	}

	maxRate := max(up, down)
	halfLen := 10 * maxRate
	r.taps = lowpass(2*halfLen+1, 1.0/float64(maxRate))
	for i := range r.taps {
		r.taps[i] *= float64(up)
	}
	r.next = halfLen
	return r
}

// Ratio returns the reduced up/down factors
func (r *Resampler) Ratio() (up, down int) {
	return r.up, r.down
}

// Process consumes input samples and returns every output sample that can
// be computed so far.
func (r *Resampler) Process(in []float64) []float64 {
	if r.up == 1 && r.down == 1 {
		out := make([]float64, len(in))
		copy(out, in)
		return out
	}

	r.history = append(r.history, in...)
	total := r.base + len(r.history)

	numTaps := len(r.taps)
	var out []float64
	for r.next/r.up < total {
		t := r.next
		var acc float64
		for k := t % r.up; k < numTaps; k += r.up {
			if t-k < 0 {
				break
			}
			j := (t - k) / r.up
			if j < r.base {
				break
			}
			acc += r.taps[k] * r.history[j-r.base]
		}
		out = append(out, acc)
		r.next += r.down
	}

	// keep only the input the next output still reaches back to
	oldest := (r.next - numTaps + 1) / r.up
	if r.next-numTaps+1 < 0 {
		oldest = 0
	}
	if drop := oldest - r.base; drop > 0 {
		if drop > len(r.history) {
			drop = len(r.history)
		}
		r.history = append(r.history[:0], r.history[drop:]...)
		r.base += drop
	}
	return out
}

// lowpass designs a windowed-sinc low-pass filter with the given cutoff
// relative to Nyquist, normalised to unit DC gain.
func lowpass(numTaps int, cutoff float64) []float64 {
	taps := make([]float64, numTaps)
	mid := float64(numTaps-1) / 2
	i0Beta := besselI0(kaiserBeta)

	var sum float64
	for n := range taps {
		x := float64(n) - mid
		h := cutoff * sinc(cutoff*x)

		ratio := 2*float64(n)/float64(numTaps-1) - 1
		w := besselI0(kaiserBeta*math.Sqrt(1-ratio*ratio)) / i0Beta

		taps[n] = h * w
		sum += taps[n]
	}
	for n := range taps {
		taps[n] /= sum
	}
	return taps
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// besselI0 evaluates the zeroth order modified Bessel function of the first
// kind by its power series.
func besselI0(x float64) float64 {
	sum, term := 1.0, 1.0
	half := x / 2
	for k := 1; k < 50; k++ {
		term *= (half / float64(k)) * (half / float64(k))
		sum += term
		if term < sum*1e-16 {
			break
		}
	}
	return sum
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
