// Package ai judges whether a listing is worth buying to resell.
package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pauljones0/flipscout/internal/config"
	"github.com/pauljones0/flipscout/internal/models"
)

// Evaluator returns a verdict for one listing. Errors are the caller's cue to
// fall back to models.FallbackVerdict.
type Evaluator interface {
	Evaluate(ctx context.Context, l models.Listing) (models.Verdict, error)
	Name() string
}

// New builds the evaluator selected by cfg.Evaluator.
func New(ctx context.Context, cfg *config.Config, refs []models.ReferencePrice) (Evaluator, error) {
	var (
		ev  Evaluator
		err error
	)
	switch cfg.Evaluator {
	case "rules":
		ev = NewRuleEvaluator(refs)
	case "gemini":
		ev, err = NewGeminiEvaluator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EvaluatorTimeout)
	case "ollama":
		ev = NewOllamaEvaluator(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.EvaluatorTimeout)
	default:
		return nil, fmt.Errorf("unknown evaluator %q", cfg.Evaluator)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("Evaluator ready", "evaluator", ev.Name(), "reference_prices", len(refs))
	return ev, nil
}
