package analysis

import (
	"math"
	"math/cmplx"
)

// fft is a radix-2 Cooley-Tukey transform. Callers pad to a power of two.
func fft(data []float64) []complex128 {
	n := len(data)
	if n <= 1 {
		result := make([]complex128, n)
		for i := range data {
			result[i] = complex(data[i], 0)
		}
		return result
	}

	even := make([]float64, n/2)
	odd := make([]float64, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = data[2*i]
		odd[i] = data[2*i+1]
	}

	feven := fft(even)
	fodd := fft(odd)

	result := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		w := cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n)))
		result[k] = feven[k] + w*fodd[k]
		result[k+n/2] = feven[k] - w*fodd[k]
	}
	return result
}

// Spectrum returns the magnitude spectrum of data, zero-padded to the next
// power of two. Only the first half is meaningful for real input.
func Spectrum(data []float64) []float64 {
	n := 1
	for n < len(data) {
		n *= 2
	}
	padded := make([]float64, n)
	copy(padded, data)

	transformed := fft(padded)
	ps := make([]float64, len(transformed)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(transformed[i])
	}
	return ps
}
