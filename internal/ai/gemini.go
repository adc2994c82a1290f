package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/pauljones0/flipscout/internal/models"
)

// GeminiEvaluator asks a Gemini model for a verdict using structured output.
type GeminiEvaluator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	config  *genai.GenerateContentConfig
}

func NewGeminiEvaluator(ctx context.Context, apiKey, modelID string, timeout time.Duration) (*GeminiEvaluator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini evaluator requires an API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiEvaluator{
		client:  client,
		model:   modelID,
		timeout: timeout,
		config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0.1),
			ResponseMIMEType: "application/json",
			ResponseSchema:   verdictSchema,
		},
	}, nil
}

var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"verdict": {
			Type:        genai.TypeString,
			Enum:        []string{"HOT", "GOOD", "FAIR", "BAD"},
			Description: "Profitability tier after costs.",
		},
		"estimated_market_value": {
			Type:        genai.TypeInteger,
			Description: "Conservative resale value in kr.",
		},
		"estimated_profit": {
			Type:        genai.TypeInteger,
			Description: "Resale value minus asking price minus transaction costs, in kr.",
		},
		"profit_percentage": {
			Type:        genai.TypeNumber,
			Description: "Profit as a percentage of the asking price.",
		},
		"comparison_count": {
			Type:        genai.TypeInteger,
			Description: "How many comparable sales the estimate rests on.",
		},
		"reason": {
			Type:        genai.TypeString,
			Description: "One sentence explaining the verdict.",
		},
	},
	Required: []string{"verdict", "estimated_market_value", "estimated_profit", "profit_percentage", "reason"},
}

func (g *GeminiEvaluator) Name() string { return "gemini" }

func (g *GeminiEvaluator) Evaluate(ctx context.Context, l models.Listing) (models.Verdict, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(l)), g.config)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("gemini generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return models.Verdict{}, fmt.Errorf("no response candidates from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return models.Verdict{}, fmt.Errorf("no text part in response")
	}
	return ParseVerdict(text.String())
}
