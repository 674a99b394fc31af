// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// Energy is the coarse loudness class of a track.
type Energy string

// Energy levels.
const (
	EnergyLow    Energy = "low"
	EnergyMedium Energy = "medium"
	EnergyHigh   Energy = "high"
)

// Valid reports whether e is one of the known levels.
func (e Energy) Valid() bool {
	switch e {
	case EnergyLow, EnergyMedium, EnergyHigh:
		return true
	}
	return false
}

// Mood is the coarse emotional class of a track.
type Mood string

// Moods.
const (
	MoodWarm   Mood = "emotional/warm"
	MoodTense  Mood = "tense/aggressive"
	MoodBright Mood = "bright/uplifting"
	MoodDark   Mood = "dark/cinematic"
)

// Valid reports whether m is one of the known moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodWarm, MoodTense, MoodBright, MoodDark:
		return true
	}
	return false
}

// FeatureVector summarizes a whole track. Every field is a mean over frames
// except Tempo, which is a single global estimate rounded to 0.1 BPM.
type FeatureVector struct {
	Tempo            float64 `json:"tempo"`
	RMS              float64 `json:"rms"`
	HarmonicEnergy   float64 `json:"harmonic_energy"`
	PercussiveEnergy float64 `json:"percussive_energy"`
	SpectralCentroid float64 `json:"spectral_centroid"`
	SpectralContrast float64 `json:"spectral_contrast"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`
}

// Finite reports whether every field is a finite number.
func (f FeatureVector) Finite() bool {
	for _, v := range [...]float64{
		f.Tempo, f.RMS, f.HarmonicEnergy, f.PercussiveEnergy,
		f.SpectralCentroid, f.SpectralContrast, f.ZeroCrossingRate,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Labels is the classifier output.
type Labels struct {
	Energy Energy `json:"energy"`
	Mood   Mood   `json:"mood"`
}

// Stage is a step of the generation pipeline.
type Stage string

// Pipeline stages in execution order. Uploading is skipped for inline output.
const (
	StageReceived    Stage = "received"
	StageFetching    Stage = "fetching"
	StageAnalyzing   Stage = "analyzing"
	StagePromptBuilt Stage = "prompt_built"
	StageGenerating  Stage = "generating"
	StageUploading   Stage = "uploading"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// Terminal reports whether no further transition can happen from s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// GenerationResult is the outcome of one successful generation. Exactly one
// of ImageBase64 and ImageURL is set.
type GenerationResult struct {
	ID          string
	SourceKey   string
	Features    FeatureVector
	Labels      Labels
	Prompt      string
	Seed        int64
	ImageBase64 string
	ImageURL    string
	ImageKey    string
	CreatedAt   time.Time
}

// AudioObject describes a stored track.
type AudioObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// GenerationRecord is the persisted summary of one generation attempt,
// successful or not. Stage is the last stage reached.
type GenerationRecord struct {
	ID        string        `json:"id"`
	SourceKey string        `json:"source_key"`
	Stage     Stage         `json:"stage"`
	Outcome   Stage         `json:"outcome"`
	Labels    Labels        `json:"labels"`
	Tempo     float64       `json:"tempo"`
	Prompt    string        `json:"prompt,omitempty"`
	Seed      int64         `json:"seed"`
	ImageKey  string        `json:"image_key,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	CreatedAt time.Time     `json:"created_at"`
}
