package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/okian/levitate/internal/domain/audio"
	"github.com/okian/levitate/internal/domain/classify"
	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/internal/domain/prompt"
)

// analysis is the output of the analyze command.
type analysis struct {
	File            string              `json:"file"`
	DurationSeconds float64             `json:"duration_seconds"`
	Features        model.FeatureVector `json:"features"`
	Labels          model.Labels        `json:"labels"`
	Prompt          string              `json:"prompt"`
}

func newAnalyzeCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>",
		Short: "Extract features, labels and the prompt from a local track",
		Long:  "Runs the analysis half of the pipeline locally. Nothing is uploaded and no image is generated.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := analyzeFile(cmd, state, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func analyzeFile(cmd *cobra.Command, state *rootState, path string) (analysis, error) {
	cfg := state.cfg
	sig, err := audio.DecodeFile(path)
	if err != nil {
		return analysis{}, fmt.Errorf("decode %s: %w", path, err)
	}
	fv, err := newExtractor(cfg).Extract(cmd.Context(), sig)
	if err != nil {
		return analysis{}, fmt.Errorf("extract features: %w", err)
	}
	labels, err := classify.New(classify.WithThresholds(thresholds(cfg))).Classify(fv)
	if err != nil {
		return analysis{}, fmt.Errorf("classify: %w", err)
	}
	synth, err := prompt.New(prompt.WithTemplate(cfg.Generation.PromptTemplate))
	if err != nil {
		return analysis{}, err
	}
	text, err := synth.Synthesize(labels, fv.Tempo)
	if err != nil {
		return analysis{}, fmt.Errorf("synthesize prompt: %w", err)
	}
	return analysis{
		File:            filepath.Base(path),
		DurationSeconds: sig.Duration().Seconds(),
		Features:        fv,
		Labels:          labels,
		Prompt:          text,
	}, nil
}
