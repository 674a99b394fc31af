package audio

import (
	"context"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/levitate/internal/domain/model"
)

// Analysis parameters.
const (
	DefaultSampleRate = 22050
	frameLength       = 2048
	hopLength         = 512
	hpssKernel        = 31
	hpssPower         = 2.0
	contrastBands     = 6
	contrastFMin      = 200.0
	contrastQuantile  = 0.02
	zeroThreshold     = 1e-10
	dbAmin            = 1e-10
	dbTopDB           = 80.0
)

// Option applies a configuration option to the Extractor.
type Option func(*Extractor)

// WithSampleRate sets the analysis rate every signal is resampled to.
func WithSampleRate(sr int) Option {
	return func(e *Extractor) {
		if sr > 0 {
			e.sampleRate = sr
		}
	}
}

// WithMaxDuration analyzes at most d of each signal. Zero keeps everything.
func WithMaxDuration(d time.Duration) Option {
	return func(e *Extractor) {
		if d >= 0 {
			e.maxDuration = d
		}
	}
}

// Extractor computes a model.FeatureVector from a Signal. It holds no
// per-call state and is safe for concurrent use.
type Extractor struct {
	sampleRate  int
	maxDuration time.Duration
}

// NewExtractor creates an Extractor with the given options.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{sampleRate: DefaultSampleRate}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SampleRate reports the analysis rate.
func (e *Extractor) SampleRate() int { return e.sampleRate }

// Extract derives the feature vector of sig. Empty signals, non-positive
// rates and non-finite samples are decode errors.
func (e *Extractor) Extract(ctx context.Context, sig Signal) (model.FeatureVector, error) {
	const op = "audio.extract"
	if sig.SampleRate <= 0 {
		return model.FeatureVector{}, decodeErrf(op, ErrBadSampleRate, "%d", sig.SampleRate)
	}
	if len(sig.Samples) == 0 {
		return model.FeatureVector{}, decodeErr(op, ErrEmptySignal)
	}
	for _, v := range sig.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.FeatureVector{}, decodeErr(op, ErrNonFinite)
		}
	}

	y := resample(sig.Samples, sig.SampleRate, e.sampleRate)
	if e.maxDuration > 0 {
		limit := int(e.maxDuration.Seconds() * float64(e.sampleRate))
		if limit > 0 && limit < len(y) {
			y = y[:limit]
		}
	}
	if err := ctx.Err(); err != nil {
		return model.FeatureVector{}, err
	}

	win := periodicHann(frameLength)
	fft := fourier.NewFFT(frameLength)
	spec := computeSTFT(y, frameLength, hopLength, win, fft)
	if err := ctx.Err(); err != nil {
		return model.FeatureVector{}, err
	}

	fv := model.FeatureVector{
		Tempo:            estimateTempo(onsetEnvelope(spec), float64(e.sampleRate)/hopLength),
		RMS:              meanRMS(y),
		SpectralCentroid: spectralCentroid(spec, e.sampleRate),
		SpectralContrast: spectralContrast(spec, e.sampleRate),
		ZeroCrossingRate: zeroCrossingRate(y),
	}
	// HPSS consumes the spectrogram.
	spec.mag = nil
	fv.HarmonicEnergy, fv.PercussiveEnergy = hpssEnergies(ctx, spec, len(y), win, fft)
	if err := ctx.Err(); err != nil {
		return model.FeatureVector{}, err
	}
	if !fv.Finite() {
		return model.FeatureVector{}, decodeErr(op, ErrNonFinite)
	}
	return fv, nil
}

// meanRMS averages the root-mean-square of zero-padded centred frames.
func meanRMS(y []float64) float64 {
	count := frameCount(len(y), hopLength)
	pad := frameLength / 2
	values := make([]float64, count)
	for t := 0; t < count; t++ {
		start := t*hopLength - pad
		var sum float64
		for k := 0; k < frameLength; k++ {
			if i := start + k; i >= 0 && i < len(y) {
				sum += y[i] * y[i]
			}
		}
		values[t] = math.Sqrt(sum / frameLength)
	}
	return stat.Mean(values, nil)
}

// zeroCrossingRate averages the fraction of sign changes per frame. Frames
// are centred with edge padding and near-zero samples count as positive.
func zeroCrossingRate(y []float64) float64 {
	count := frameCount(len(y), hopLength)
	pad := frameLength / 2
	at := func(i int) float64 {
		v := y[min(max(i, 0), len(y)-1)]
		if math.Abs(v) <= zeroThreshold {
			return 0
		}
		return v
	}
	values := make([]float64, count)
	for t := 0; t < count; t++ {
		start := t*hopLength - pad
		crossings := 0
		prev := math.Signbit(at(start))
		for k := 1; k < frameLength; k++ {
			cur := math.Signbit(at(start + k))
			if cur != prev {
				crossings++
			}
			prev = cur
		}
		values[t] = float64(crossings) / frameLength
	}
	return stat.Mean(values, nil)
}

func binFrequencies(bins, sampleRate int) []float64 {
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(sampleRate) / frameLength
	}
	return freqs
}

// spectralCentroid averages the magnitude-weighted mean frequency of each
// frame. Silent frames contribute zero.
func spectralCentroid(spec *spectrogram, sampleRate int) float64 {
	freqs := binFrequencies(spec.bins, sampleRate)
	values := make([]float64, len(spec.mag))
	for t, frame := range spec.mag {
		var num, den float64
		for k, m := range frame {
			num += freqs[k] * float64(m)
			den += float64(m)
		}
		if den > 0 {
			values[t] = num / den
		}
	}
	return stat.Mean(values, nil)
}

type band struct {
	lo, hi int // inclusive bin range used for the quantile size
	trim   bool
}

// contrastBandsFor splits the spectrum into octave bands starting at
// contrastFMin. Each band borrows the bin just below it; the last one
// extends to Nyquist.
func contrastBandsFor(freqs []float64) []band {
	edges := make([]float64, contrastBands+2)
	for i := 1; i < len(edges); i++ {
		edges[i] = contrastFMin * math.Pow(2, float64(i-1))
	}
	out := make([]band, 0, contrastBands+1)
	for k := 0; k <= contrastBands; k++ {
		lo, hi := -1, -1
		for b, f := range freqs {
			if f >= edges[k] && f <= edges[k+1] {
				if lo < 0 {
					lo = b
				}
				hi = b
			}
		}
		if lo < 0 {
			continue
		}
		if k > 0 && lo > 0 {
			lo--
		}
		if k == contrastBands {
			hi = len(freqs) - 1
		}
		out = append(out, band{lo: lo, hi: hi, trim: k < contrastBands})
	}
	return out
}

// spectralContrast averages, over bands and frames, the dB difference
// between the loudest and quietest quantile of each octave band.
func spectralContrast(spec *spectrogram, sampleRate int) float64 {
	bands := contrastBandsFor(binFrequencies(spec.bins, sampleRate))
	if len(bands) == 0 || len(spec.mag) == 0 {
		return 0
	}
	peaks := make([]float64, 0, len(bands)*len(spec.mag))
	valleys := make([]float64, 0, len(bands)*len(spec.mag))
	scratch := make([]float64, spec.bins)

	for _, frame := range spec.mag {
		for _, b := range bands {
			size := b.hi - b.lo + 1
			sub := scratch[:0]
			for k := b.lo; k <= b.hi; k++ {
				sub = append(sub, float64(frame[k]))
			}
			if b.trim && len(sub) > 1 {
				sub = sub[:len(sub)-1]
			}
			slices.Sort(sub)
			q := max(int(math.RoundToEven(contrastQuantile*float64(size))), 1)
			q = min(q, len(sub))
			valleys = append(valleys, stat.Mean(sub[:q], nil))
			peaks = append(peaks, stat.Mean(sub[len(sub)-q:], nil))
		}
	}

	powerToDB(peaks, dbAmin, dbTopDB)
	powerToDB(valleys, dbAmin, dbTopDB)
	floats.Sub(peaks, valleys)
	return stat.Mean(peaks, nil)
}

// hpssEnergies separates harmonic and percussive content with median
// filtering and soft masks, resynthesizes both by overlap-add and returns
// the mean absolute amplitude of each over the original length n.
// Magnitudes are taken from spec.frames, and every frame is released once
// it has been resynthesized.
func hpssEnergies(ctx context.Context, spec *spectrogram, n int, win []float64, fft *fourier.FFT) (float64, float64) {
	frames := len(spec.frames)
	bins := spec.bins
	if frames == 0 || n == 0 {
		return 0, 0
	}

	// harmonic estimate: median across time for every bin
	harm := make([][]float32, frames)
	for t := range harm {
		harm[t] = make([]float32, bins)
	}
	col := make([]float64, frames)
	colOut := make([]float64, frames)
	for k := 0; k < bins; k++ {
		for t := 0; t < frames; t++ {
			col[t] = magnitude(spec.frames[t][k])
		}
		medianFilter(colOut, col, hpssKernel)
		for t := 0; t < frames; t++ {
			harm[t][k] = float32(colOut[t])
		}
	}
	if ctx.Err() != nil {
		return 0, 0
	}

	nFFT, hop, pad := spec.nFFT, spec.hop, spec.nFFT/2
	row := make([]float64, bins)
	perc := make([]float64, bins)
	hc := make([]complex128, bins)
	pc := make([]complex128, bins)
	ht := make([]float64, nFFT)
	pt := make([]float64, nFFT)
	olaH := make([]float64, nFFT)
	olaP := make([]float64, nFFT)
	olaW := make([]float64, nFFT)
	pos := 0
	var sumH, sumP float64

	// finalize emits the first count buffered samples; no later frame can
	// touch them.
	finalize := func(count int) {
		for i := 0; i < count; i++ {
			if p := pos + i - pad; p >= 0 && p < n && olaW[i] > math.SmallestNonzeroFloat64 {
				sumH += math.Abs(olaH[i] / olaW[i])
				sumP += math.Abs(olaP[i] / olaW[i])
			}
		}
		for _, buf := range [][]float64{olaH, olaP, olaW} {
			copy(buf, buf[count:])
			clear(buf[len(buf)-count:])
		}
		pos += count
	}

	for t := 0; t < frames; t++ {
		for k := 0; k < bins; k++ {
			row[k] = magnitude(spec.frames[t][k])
		}
		medianFilter(perc, row, hpssKernel)
		for k := 0; k < bins; k++ {
			h := float64(harm[t][k])
			x := complex128(spec.frames[t][k])
			hc[k] = x * complex(softMask(h, perc[k], hpssPower), 0)
			pc[k] = x * complex(softMask(perc[k], h, hpssPower), 0)
		}
		ht = fft.Sequence(ht, hc)
		pt = fft.Sequence(pt, pc)
		for i := 0; i < nFFT; i++ {
			w := win[i]
			olaH[i] += ht[i] / float64(nFFT) * w
			olaP[i] += pt[i] / float64(nFFT) * w
			olaW[i] += w * w
		}
		spec.frames[t], harm[t] = nil, nil
		finalize(hop)
	}
	finalize(nFFT)

	return sumH / float64(n), sumP / float64(n)
}

func magnitude(c complex64) float64 {
	return math.Hypot(float64(real(c)), float64(imag(c)))
}
