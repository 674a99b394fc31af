package audio

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Tempo search range and prior.
const (
	minTempo     = 30.0
	maxTempo     = 320.0
	priorTempo   = 120.0
	priorOctaves = 1.0
	tempoStep    = 0.1
)

// onsetEnvelope is the positive log-power spectral flux per frame, averaged
// over bins. Log power is floored 80 dB below the loudest bin of the track.
func onsetEnvelope(spec *spectrogram) []float64 {
	frames := len(spec.mag)
	env := make([]float64, frames)
	if frames < 2 {
		return env
	}

	peak := math.Inf(-1)
	for _, frame := range spec.mag {
		for _, m := range frame {
			peak = math.Max(peak, logPower(m))
		}
	}
	floor := peak - dbTopDB

	prev := make([]float64, spec.bins)
	cur := make([]float64, spec.bins)
	for t, frame := range spec.mag {
		for k, m := range frame {
			cur[k] = math.Max(logPower(m), floor)
		}
		if t > 0 {
			var flux float64
			for k := range cur {
				if d := cur[k] - prev[k]; d > 0 {
					flux += d
				}
			}
			env[t] = flux / float64(spec.bins)
		}
		prev, cur = cur, prev
	}
	return env
}

func logPower(m float32) float64 {
	v := float64(m)
	return 10 * math.Log10(math.Max(v*v, dbAmin))
}

// estimateTempo picks the beat period that maximizes the autocorrelation of
// the onset envelope weighted by a log-normal prior around 120 BPM. The
// result is rounded to 0.1 BPM; tracks without any rhythmic energy yield 0.
func estimateTempo(env []float64, fps float64) float64 {
	if len(env) < 4 || floats.Max(env) <= 0 {
		return 0
	}

	smoothed := smooth(env)
	mean := stat.Mean(smoothed, nil)
	floats.AddConst(-mean, smoothed)

	maxLag := min(len(smoothed)-1, int(math.Ceil(60*fps/minTempo))+1)
	ac := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag; lag++ {
		var sum float64
		for i := 0; i+lag < len(smoothed); i++ {
			sum += smoothed[i] * smoothed[i+lag]
		}
		ac[lag] = sum / float64(len(smoothed)-lag)
	}
	if ac[0] <= 0 {
		return 0
	}

	best, bestScore := 0.0, 0.0
	for bpm := minTempo; bpm <= maxTempo+1e-9; bpm += tempoStep {
		lag := 60 * fps / bpm
		if lag < 1 || lag > float64(maxLag) {
			continue
		}
		lo := int(math.Floor(lag))
		frac := lag - float64(lo)
		v := ac[lo]
		if lo+1 <= maxLag {
			v += frac * (ac[lo+1] - ac[lo])
		}
		if v <= 0 {
			continue
		}
		dev := math.Log2(bpm/priorTempo) / priorOctaves
		score := v * math.Exp(-0.5*dev*dev)
		if score > bestScore {
			best, bestScore = bpm, score
		}
	}
	return math.Round(best*10) / 10
}

// smooth convolves x with a 5-tap Hann kernel.
func smooth(x []float64) []float64 {
	kernel := [...]float64{0.25, 0.75, 1, 0.75, 0.25}
	const half = len(kernel) / 2
	out := make([]float64, len(x))
	for i := range x {
		var acc, norm float64
		for j, w := range kernel {
			if k := i + j - half; k >= 0 && k < len(x) {
				acc += x[k] * w
				norm += w
			}
		}
		out[i] = acc / norm
	}
	return out
}
