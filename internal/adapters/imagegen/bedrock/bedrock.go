// Package bedrock generates images with an Amazon Titan image model through
// the Bedrock runtime.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/okian/levitate/internal/domain/imagegen"
	"github.com/okian/levitate/pkg/errs"
)

// DefaultModelID is the Titan text-to-image model used when none is set.
const DefaultModelID = "amazon.titan-image-generator-v2:0"

// Invoker is the subset of *bedrockruntime.Client the generator calls.
type Invoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Generator implements imagegen.Generator.
type Generator struct {
	client  Invoker
	modelID string
}

// Option configures a Generator.
type Option func(*Generator)

// WithModelID overrides the model.
func WithModelID(id string) Option {
	return func(g *Generator) {
		if id != "" {
			g.modelID = id
		}
	}
}

// New wraps an existing client.
func New(client Invoker, opts ...Option) *Generator {
	g := &Generator{client: client, modelID: DefaultModelID}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewFromRegion builds a client from the default AWS credential chain.
func NewFromRegion(ctx context.Context, region string, opts ...Option) (*Generator, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errs.WrapKind("bedrock.NewFromRegion", errs.ErrInternal, fmt.Errorf("load aws config: %w", err))
	}
	return New(bedrockruntime.NewFromConfig(cfg), opts...), nil
}

type textToImageParams struct {
	Text string `json:"text"`
}

type imageGenerationConfig struct {
	NumberOfImages int     `json:"numberOfImages"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	CfgScale       float64 `json:"cfgScale"`
	Seed           int64   `json:"seed"`
}

type titanRequest struct {
	TaskType              string                `json:"taskType"`
	TextToImageParams     textToImageParams     `json:"textToImageParams"`
	ImageGenerationConfig imageGenerationConfig `json:"imageGenerationConfig"`
}

// Generate invokes the model and returns the first image.
func (g *Generator) Generate(ctx context.Context, req imagegen.Request) ([]byte, error) {
	const op = "bedrock.Generate"
	if err := req.Validate(); err != nil {
		return nil, errs.Wrap(op, err)
	}

	body, err := json.Marshal(titanRequest{
		TaskType:          "TEXT_IMAGE",
		TextToImageParams: textToImageParams{Text: req.Prompt},
		ImageGenerationConfig: imageGenerationConfig{
			NumberOfImages: 1,
			Height:         req.Height,
			Width:          req.Width,
			CfgScale:       req.GuidanceScale,
			Seed:           req.Seed,
		},
	})
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrInternal, err)
	}

	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrRemote, fmt.Errorf("invoke %s: %w", g.modelID, err))
	}
	img, err := imagegen.DecodeImage(out.Body)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	return img, nil
}
