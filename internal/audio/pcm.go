package audio

// PCM16Resampler converts a stream of 16-bit little-endian mono PCM between
// sample rates, for providers that want a different rate than the chunks
// are produced at.
type PCM16Resampler struct {
	rs *Resampler
}

// NewPCM16Resampler creates a converter from inRate to outRate
func NewPCM16Resampler(inRate, outRate int) *PCM16Resampler {
	return &PCM16Resampler{rs: NewResampler(inRate, outRate)}
}

// Process converts one block of PCM. Output lags input by the filter delay.
func (p *PCM16Resampler) Process(b []byte) ([]byte, error) {
	pcm, err := DecodePCM16(b)
	if err != nil {
		return nil, err
	}
	if up, down := p.rs.Ratio(); up == 1 && down == 1 {
		return b, nil
	}
	samples := make([]float64, len(pcm))
	for i, s := range pcm {
		samples[i] = float64(s) / 32768.0
	}
	return quantize(p.rs.Process(samples)), nil
}
