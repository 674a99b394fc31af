// Package classify maps a track's feature vector to coarse energy and mood
// labels using fixed, ordered threshold rules.
package classify

import (
	"errors"

	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/pkg/errs"
)

// ErrNonFinite is returned for feature vectors containing NaN or Inf.
var ErrNonFinite = errors.New("feature vector contains non-finite values")

// Thresholds are the cut-offs used by the rules. All comparisons are strict.
type Thresholds struct {
	LowRMS         float64
	MediumRMS      float64
	WarmCentroid   float64
	TenseContrast  float64
	TenseZCR       float64
	BrightCentroid float64
}

// DefaultThresholds returns the calibrated production cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowRMS:         0.03,
		MediumRMS:      0.06,
		WarmCentroid:   2000,
		TenseContrast:  25,
		TenseZCR:       0.1,
		BrightCentroid: 3000,
	}
}

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithThresholds replaces the default cut-offs.
func WithThresholds(t Thresholds) Option {
	return func(c *Classifier) {
		c.t = t
	}
}

// Classifier is stateless apart from its thresholds and safe for concurrent use.
type Classifier struct {
	t Thresholds
}

// New creates a Classifier with default thresholds unless overridden.
func New(opts ...Option) *Classifier {
	c := &Classifier{t: DefaultThresholds()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Thresholds returns the cut-offs in use.
func (c *Classifier) Thresholds() Thresholds { return c.t }

// Classify labels fv. The first matching rule wins for each label; the
// last rule of each list always matches, so every finite vector is labelled.
func (c *Classifier) Classify(fv model.FeatureVector) (model.Labels, error) {
	if !fv.Finite() {
		return model.Labels{}, errs.WrapKind("classify", errs.ErrValidation, ErrNonFinite)
	}
	return model.Labels{Energy: c.energy(fv), Mood: c.mood(fv)}, nil
}

func (c *Classifier) energy(fv model.FeatureVector) model.Energy {
	switch {
	case fv.RMS < c.t.LowRMS && fv.PercussiveEnergy < fv.HarmonicEnergy:
		return model.EnergyLow
	case fv.RMS < c.t.MediumRMS:
		return model.EnergyMedium
	default:
		return model.EnergyHigh
	}
}

func (c *Classifier) mood(fv model.FeatureVector) model.Mood {
	switch {
	case fv.HarmonicEnergy > fv.PercussiveEnergy && fv.SpectralCentroid < c.t.WarmCentroid:
		return model.MoodWarm
	case fv.SpectralContrast > c.t.TenseContrast && fv.ZeroCrossingRate > c.t.TenseZCR:
		return model.MoodTense
	case fv.SpectralCentroid > c.t.BrightCentroid:
		return model.MoodBright
	default:
		return model.MoodDark
	}
}
