package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/imbesat-rizvi/imperio/internal/errkind"
)

// Integer is the set of signed PCM sample types the converters accept.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64
}

// IntToFloat maps integer PCM samples to approximately [-1, 1] by dividing
// each sample by 2^(bitDepth-1).
func IntToFloat[T Integer](samples []T, bitDepth int) ([]float32, error) {
	if err := validateBitDepth[T](bitDepth); err != nil {
		return nil, err
	}

	absMax := float64(int64(1) << (bitDepth - 1))
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(float64(s) / absMax)
	}
	return out, nil
}

// FloatToInt scales float samples by 2^(bitDepth-1), clamps them to the
// signed range of bitDepth bits and rounds to the target integer type.
func FloatToInt[T Integer](samples []float32, bitDepth int) ([]T, error) {
	if err := validateBitDepth[T](bitDepth); err != nil {
		return nil, err
	}

	absMax := float64(int64(1) << (bitDepth - 1))
	lo, hi := -absMax, absMax-1
	out := make([]T, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * absMax)
		if v < lo {
			v = lo
		} else if v > hi {
			v = hi
		}
		out[i] = T(v)
	}
	return out, nil
}

// Resample converts samples recorded at sourceRate to targetRate using
// frequency-domain (FFT) resampling. The result has
// len(samples)*targetRate/sourceRate samples.
func Resample(samples []float64, sourceRate, targetRate int) ([]float64, error) {
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("resample %d Hz -> %d Hz: rates must be positive: %w",
			sourceRate, targetRate, errkind.ErrConfiguration)
	}

	n := len(samples)
	m := int(int64(n) * int64(targetRate) / int64(sourceRate))
	if n == 0 || m == 0 {
		return []float64{}, nil
	}
	if n == m {
		out := make([]float64, n)
		copy(out, samples)
		return out, nil
	}

	spectrum := fourier.NewFFT(n).Coefficients(nil, samples)

	// Keep the shared low band; the Nyquist bin of an even-length band is
	// split or folded so energy is preserved across the length change.
	resized := make([]complex128, m/2+1)
	shared := min(n, m)
	copy(resized, spectrum[:shared/2+1])
	if shared%2 == 0 {
		if m < n {
			resized[shared/2] *= 2
		} else {
			resized[shared/2] *= 0.5
		}
	}

	out := fourier.NewFFT(m).Sequence(nil, resized)
	scale := 1 / float64(n)
	for i := range out {
		out[i] *= scale
	}
	return out, nil
}

// ResamplePCM16 resamples little-endian 16-bit PCM bytes.
func ResamplePCM16(data []byte, sourceRate, targetRate int) ([]byte, error) {
	samples, err := PCM16ToSamples(data)
	if err != nil {
		return nil, err
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}

	resampled, err := Resample(in, sourceRate, targetRate)
	if err != nil {
		return nil, err
	}

	out := make([]int16, len(resampled))
	for i, v := range resampled {
		out[i] = int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
	}
	return SamplesToPCM16(out), nil
}

// PCM16ToSamples decodes little-endian 16-bit PCM bytes into samples.
func PCM16ToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm16 data length must be even (got %d bytes): %w",
			len(data), errkind.ErrMalformedFrame)
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// SamplesToPCM16 encodes samples as little-endian 16-bit PCM bytes.
func SamplesToPCM16(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

func validateBitDepth[T Integer](bitDepth int) error {
	width := min(intWidth[T](), 32)
	if bitDepth < 2 || bitDepth > width {
		return fmt.Errorf("bit depth must be between 2 and %d, got %d: %w",
			width, bitDepth, errkind.ErrConfiguration)
	}
	return nil
}

// intWidth returns the width in bits of T.
func intWidth[T Integer]() int {
	var x T = 1
	n := 0
	for x != 0 {
		x <<= 1
		n++
	}
	return n
}
