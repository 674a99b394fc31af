// Package prompt turns classifier labels and tempo into a text-to-image prompt.
package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/pkg/errs"
)

// Template slots.
const (
	SlotMoodStyle = "{mood_style}"
	SlotTempo     = "{tempo}"
	SlotLighting  = "{lighting}"
)

// DefaultTemplate is the landscape concept-art prompt.
const DefaultTemplate = `GAME CONCEPT ART of a vast open fantasy landscape.
Atmosphere: {mood_style}.
Motion synced with rhythm at {tempo} BPM.
Lighting: {lighting}.
Unreal Engine 5 style, AAA environment concept art.
Cinematic wide shot, ultra detailed, no text, no watermark.`

// FallbackMoodStyle is used for moods outside the known set.
const FallbackMoodStyle = "cinematic lighting"

var (
	// ErrTemplateSlot is returned when a template lacks a required slot.
	ErrTemplateSlot = errors.New("prompt template is missing a slot")
	// ErrUnknownEnergy signals labels that did not come from the classifier.
	ErrUnknownEnergy = errors.New("unknown energy level")
)

// Option applies a configuration option to the Synthesizer.
type Option func(*Synthesizer)

// WithTemplate replaces the default template. Empty values are ignored.
func WithTemplate(tpl string) Option {
	return func(s *Synthesizer) {
		if strings.TrimSpace(tpl) != "" {
			s.template = tpl
		}
	}
}

// Synthesizer renders prompts from a template. It is immutable after New.
type Synthesizer struct {
	template string
}

// New builds a Synthesizer and checks that the template has every slot.
func New(opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{template: DefaultTemplate}
	for _, opt := range opts {
		opt(s)
	}
	for _, slot := range []string{SlotMoodStyle, SlotTempo, SlotLighting} {
		if !strings.Contains(s.template, slot) {
			return nil, errs.WrapKind("prompt.new", errs.ErrValidation, fmt.Errorf("%w: %s", ErrTemplateSlot, slot))
		}
	}
	return s, nil
}

// Synthesize renders the prompt for labels at the given tempo. Tempo is
// printed with one decimal.
func (s *Synthesizer) Synthesize(labels model.Labels, tempo float64) (string, error) {
	lighting, err := Lighting(labels.Energy)
	if err != nil {
		return "", err
	}
	r := strings.NewReplacer(
		SlotMoodStyle, MoodStyle(labels.Mood),
		SlotTempo, strconv.FormatFloat(tempo, 'f', 1, 64),
		SlotLighting, lighting,
	)
	return r.Replace(s.template), nil
}

// MoodStyle returns the atmosphere phrase for a mood.
func MoodStyle(m model.Mood) string {
	switch m {
	case model.MoodWarm:
		return "warm sunset tones, soft glow, peaceful atmosphere"
	case model.MoodTense:
		return "stormy crimson skies, jagged silhouettes, restless energy"
	case model.MoodBright:
		return "vibrant colors, hopeful sky"
	case model.MoodDark:
		return "moody shadows, deep contrast"
	default:
		return FallbackMoodStyle
	}
}

// Lighting returns the lighting phrase for an energy level.
func Lighting(e model.Energy) (string, error) {
	switch e {
	case model.EnergyLow:
		return "soft ambient light", nil
	case model.EnergyMedium:
		return "cinematic balanced lighting", nil
	case model.EnergyHigh:
		return "dramatic volumetric lighting", nil
	default:
		return "", errs.WrapKind("prompt.lighting", errs.ErrInternal, fmt.Errorf("%w: %q", ErrUnknownEnergy, string(e)))
	}
}
