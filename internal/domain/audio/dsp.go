package audio

import (
	"math"
	"math/cmplx"
	"slices"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
)

// periodicHann returns the DFT-even Hann window used for STFT analysis.
func periodicHann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// frameCount is the number of centred frames for n samples.
func frameCount(n, hop int) int { return 1 + n/hop }

const lanczosLobes = 8

// resample converts x from rate `from` to rate `to` with a Lanczos-windowed
// sinc kernel. The kernel cut-off follows the lower of the two Nyquist
// frequencies so downsampling does not alias.
func resample(x []float64, from, to int) []float64 {
	if from == to || len(x) == 0 {
		return slices.Clone(x)
	}
	ratio := float64(to) / float64(from)
	cutoff := math.Min(1, ratio)
	outLen := int(math.Round(float64(len(x)) * ratio))
	if outLen < 1 {
		outLen = 1
	}
	support := float64(lanczosLobes) / cutoff
	out := make([]float64, outLen)
	for i := range out {
		center := float64(i) / ratio
		lo := int(math.Ceil(center - support))
		hi := int(math.Floor(center + support))
		var acc, norm float64
		for j := max(lo, 0); j <= hi && j < len(x); j++ {
			d := (float64(j) - center) * cutoff
			w := sinc(d) * sinc(d/lanczosLobes)
			acc += x[j] * w
			norm += w
		}
		if norm != 0 {
			out[i] = acc / norm
		}
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// spectrogram is a centred, zero-padded STFT. frames[t][k] is bin k of
// frame t; mag holds the matching magnitudes.
type spectrogram struct {
	nFFT   int
	hop    int
	bins   int
	frames [][]complex64
	mag    [][]float32
}

func computeSTFT(x []float64, nFFT, hop int, win []float64, fft *fourier.FFT) *spectrogram {
	pad := nFFT / 2
	count := frameCount(len(x), hop)
	bins := nFFT/2 + 1
	s := &spectrogram{
		nFFT:   nFFT,
		hop:    hop,
		bins:   bins,
		frames: make([][]complex64, count),
		mag:    make([][]float32, count),
	}
	buf := make([]float64, nFFT)
	coeff := make([]complex128, bins)
	for t := 0; t < count; t++ {
		start := t*hop - pad
		for k := 0; k < nFFT; k++ {
			i := start + k
			v := 0.0
			if i >= 0 && i < len(x) {
				v = x[i]
			}
			buf[k] = v * win[k]
		}
		coeff = fft.Coefficients(coeff, buf)
		fr := make([]complex64, bins)
		mg := make([]float32, bins)
		for k, c := range coeff {
			fr[k] = complex64(c)
			mg[k] = float32(cmplx.Abs(c))
		}
		s.frames[t] = fr
		s.mag[t] = mg
	}
	return s
}

// reflectIndex maps i into [0, n) the way scipy's "reflect" mode does
// (d c b a | a b c d | d c b a).
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - 1 - i
		}
	}
	return i
}

// medianFilter writes the running median of src with an odd window k into
// dst. The window slides over a sorted buffer so each step costs O(k).
func medianFilter(dst, src []float64, k int) {
	n := len(src)
	if n == 0 {
		return
	}
	half := k / 2
	value := func(i int) float64 { return src[reflectIndex(i, n)] }

	window := make([]float64, k)
	for j := 0; j < k; j++ {
		window[j] = value(j - half)
	}
	sort.Float64s(window)

	for i := 0; i < n; i++ {
		dst[i] = window[half]
		if i+1 == n {
			break
		}
		out := value(i - half)
		in := value(i + half + 1)
		// drop the outgoing sample
		at := sort.SearchFloat64s(window, out)
		copy(window[at:], window[at+1:])
		window = window[:k-1]
		// insert the incoming one
		at = sort.SearchFloat64s(window, in)
		window = append(window, 0)
		copy(window[at+1:], window[at:])
		window[at] = in
	}
}

// softMask returns (x^p) / (x^p + ref^p), or 0 where both are zero.
func softMask(x, ref, power float64) float64 {
	z := math.Max(x, ref)
	if z < math.SmallestNonzeroFloat64 {
		return 0
	}
	m := math.Pow(x/z, power)
	r := math.Pow(ref/z, power)
	return m / (m + r)
}

// powerToDB converts values in place to decibels relative to 1.0, clamped
// at amin and limited to topDB below the maximum.
func powerToDB(vals []float64, amin, topDB float64) {
	peak := math.Inf(-1)
	for i, v := range vals {
		vals[i] = 10 * math.Log10(math.Max(amin, v))
		peak = math.Max(peak, vals[i])
	}
	floor := peak - topDB
	for i, v := range vals {
		if v < floor {
			vals[i] = floor
		}
	}
}
