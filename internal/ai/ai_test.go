package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pauljones0/flipscout/internal/config"
	"github.com/pauljones0/flipscout/internal/models"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.Verdict
	}{
		{
			name: "plain json",
			text: `{"verdict":"HOT","estimated_market_value":6000,"estimated_profit":1800,"profit_percentage":45,"comparison_count":3,"reason":"Cheap 3080"}`,
			want: models.Verdict{Tier: models.TierHot, EstimatedValue: 6000, EstimatedProfit: 1800, ProfitPercentage: 45, ComparisonCount: 3, Rationale: "Cheap 3080"},
		},
		{
			name: "fenced with prose",
			text: "Here you go:\n```json\n{\"verdict\":\"good\",\"estimated_market_value\":\"5 500 kr\",\"estimated_profit\":\"800\",\"profit_percentage\":\"27.5%\",\"reason\":\"ok\"}\n```",
			want: models.Verdict{Tier: models.TierGood, EstimatedValue: 5500, EstimatedProfit: 800, ProfitPercentage: 27.5, Rationale: "ok"},
		},
		{
			name: "missing percentage and reason",
			text: `{"verdict":"FAIR","estimated_market_value":3000,"estimated_profit":300}`,
			want: models.Verdict{Tier: models.TierFair, EstimatedValue: 3000, EstimatedProfit: 300, Rationale: MissingReason},
		},
		{
			name: "unknown tier is bad",
			text: `{"verdict":"AMAZING","reason":"?"}`,
			want: models.Verdict{Tier: models.TierBad, Rationale: "?"},
		},
		{
			name: "thousands comma and negative profit",
			text: `{"verdict":"BAD","estimated_market_value":"1,500","estimated_profit":-700,"profit_percentage":null,"reason":"overpriced"}`,
			want: models.Verdict{Tier: models.TierBad, EstimatedValue: 1500, EstimatedProfit: -700, Rationale: "overpriced"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict(tt.text)
			if err != nil {
				t.Fatalf("ParseVerdict() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseVerdict() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseVerdict_Errors(t *testing.T) {
	for _, text := range []string{"", "I think this is a good deal", "{broken", `{"verdict": true}`} {
		if _, err := ParseVerdict(text); err == nil {
			t.Errorf("ParseVerdict(%q) should fail", text)
		}
	}
	if _, err := ParseVerdict("no json here"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		profit int
		pct    float64
		want   models.Tier
	}{
		{1800, 60, models.TierHot},
		{999, 80, models.TierGood}, // margin is there but the absolute profit is not
		{1000, 50, models.TierHot},
		{600, 30, models.TierGood},
		{400, 30, models.TierFair},
		{100, 10, models.TierFair},
		{50, 9.9, models.TierBad},
		{-500, -20, models.TierBad},
	}
	for _, tt := range tests {
		if got := Classify(tt.profit, tt.pct); got != tt.want {
			t.Errorf("Classify(%d, %.1f) = %s, want %s", tt.profit, tt.pct, got, tt.want)
		}
	}
}

func TestRuleEvaluator(t *testing.T) {
	ev := NewRuleEvaluator([]models.ReferencePrice{
		{Keyword: "RTX 3080", Value: 6000},
		{Keyword: "rtx 3080 ti", Value: 7500},
		{Keyword: "xeon", Value: 2500},
	})
	ctx := context.Background()

	tests := []struct {
		name       string
		title      string
		price      int
		wantTier   models.Tier
		wantValue  int
		wantProfit int
	}{
		{"hot", "ASUS RTX 3080 10GB", 3500, models.TierHot, 6000, 2300},
		{"longest keyword wins", "MSI RTX 3080 Ti Gaming", 5000, models.TierGood, 7500, 2300},
		{"fair", "Dell Xeon workstation", 2000, models.TierFair, 2500, 300},
		{"bad", "RTX 3080 Founders", 5900, models.TierBad, 6000, -100},
		{"no reference", "Logitech mouse", 200, models.TierBad, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ev.Evaluate(ctx, models.Listing{ID: "1", Title: tt.title, Price: tt.price})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if v.Tier != tt.wantTier || v.EstimatedValue != tt.wantValue || v.EstimatedProfit != tt.wantProfit {
				t.Errorf("Evaluate() = %+v, want tier %s value %d profit %d", v, tt.wantTier, tt.wantValue, tt.wantProfit)
			}
			if v.Rationale == "" {
				t.Error("verdict should carry a rationale")
			}
		})
	}
}

func TestRuleEvaluator_Errors(t *testing.T) {
	ev := NewRuleEvaluator(nil)
	if _, err := ev.Evaluate(context.Background(), models.Listing{ID: "1", Title: "RTX 3080"}); err == nil {
		t.Error("Evaluate() should reject a listing without a price")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ev.Evaluate(ctx, models.Listing{ID: "1", Title: "RTX 3080", Price: 100}); !errors.Is(err, context.Canceled) {
		t.Errorf("Evaluate() error = %v, want context.Canceled", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(models.Listing{Title: "RTX 3080 Founders", Price: 4500, URL: "https://www.blocket.se/annons/1"})
	for _, want := range []string{"RTX 3080 Founders", "4500 kr", "200 kr", "HOT", "estimated_market_value", "unknown"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestOllamaEvaluator(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaResponse{
			Response: `{"verdict":"GOOD","estimated_market_value":6000,"estimated_profit":900,"profit_percentage":25,"reason":"fair price"}`,
		})
	}))
	defer srv.Close()

	ev := NewOllamaEvaluator(srv.URL, "mistral", 5*time.Second)
	v, err := ev.Evaluate(context.Background(), models.Listing{ID: "1", Title: "RTX 3080 Founders", Price: 4900})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if v.Tier != models.TierGood || v.EstimatedProfit != 900 {
		t.Errorf("Evaluate() = %+v", v)
	}
	if got.Model != "mistral" || got.Format != "json" || got.Stream {
		t.Errorf("unexpected request body: %+v", got)
	}
	if got.Options.Temperature != 0.1 || got.Options.TopP != 0.9 {
		t.Errorf("unexpected sampling options: %+v", got.Options)
	}
}

func TestOllamaEvaluator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}},
		{"error field", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"model 'mistral' not found"}`))
		}},
		{"garbage answer", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"response":"sure, sounds like a deal"}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			ev := NewOllamaEvaluator(srv.URL, "mistral", 5*time.Second)
			if _, err := ev.Evaluate(context.Background(), models.Listing{ID: "1", Title: "RTX 3080", Price: 100}); err == nil {
				t.Error("Evaluate() should fail")
			}
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	ev, err := New(ctx, &config.Config{Evaluator: "rules"}, nil)
	if err != nil || ev.Name() != "rules" {
		t.Errorf("New(rules) = %v, %v", ev, err)
	}
	ev, err = New(ctx, &config.Config{Evaluator: "ollama", OllamaBaseURL: "http://localhost:11434", OllamaModel: "mistral"}, nil)
	if err != nil || ev.Name() != "ollama" {
		t.Errorf("New(ollama) = %v, %v", ev, err)
	}
	if _, err := New(ctx, &config.Config{Evaluator: "gemini"}, nil); err == nil {
		t.Error("New(gemini) without key should fail")
	}
	if _, err := New(ctx, &config.Config{Evaluator: "coinflip"}, nil); err == nil {
		t.Error("New() with unknown evaluator should fail")
	}
}
