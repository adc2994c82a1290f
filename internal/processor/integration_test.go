//go:build integration

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pauljones0/flipscout/internal/ai"
	"github.com/pauljones0/flipscout/internal/browser"
	"github.com/pauljones0/flipscout/internal/config"
	"github.com/pauljones0/flipscout/internal/models"
	"github.com/pauljones0/flipscout/internal/notifier"
	"github.com/pauljones0/flipscout/internal/scraper"
	"github.com/pauljones0/flipscout/internal/storage"
)

// Integration test that wires the real fetcher, extractor, seen-set, rule
// evaluator and notifier against a fake marketplace and a fake webhook.

func ad(id, title, price string) string {
	return fmt.Sprintf(`
<article class="sf-search-ad">
  <img src="/img/%[1]s.jpg">
  <h2><a class="sf-search-ad-link" href="/recommerce/forsale/item/%[1]s">%[2]s</a></h2>
  <div class="s-text-subtle"><span>Göteborg</span></div>
  <div class="font-bold"><span>%[3]s</span></div>
</article>`, id, title, price)
}

func TestIntegration_FullPipeline(t *testing.T) {
	var pageRequests []string
	marketplace := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pageRequests = append(pageRequests, r.URL.Query().Get("page"))
		if r.URL.Path != "/annonser/hela_sverige" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("page") != "" {
			fmt.Fprint(w, `<html><body><p>Inga annonser hittades</p></body></html>`)
			return
		}
		fmt.Fprint(w, "<html><body>"+
			ad("30000001", "RTX 3080 Founders Edition", "3 500 kr")+
			ad("30000002", "RTX 3080 Gaming OC 10GB", "5 600 kr")+
			ad("30000003", "GTX 1060 6GB", "900 kr")+
			"</body></html>")
	}))
	defer marketplace.Close()

	var (
		mu       sync.Mutex
		payloads []map[string]any
	)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]any
		json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer webhook.Close()

	dir := t.TempDir()
	searchesPath := filepath.Join(dir, "searches.json")
	searchesJSON := `{
  "searches": [{"name": "Gaming GPU", "query": "rtx 3080", "min_price": 100, "max_price": 6000, "max_pages": 3, "keywords": ["3080"]}],
  "reference_prices": [{"keyword": "rtx 3080", "value": 6000}]
}`
	if err := os.WriteFile(searchesPath, []byte(searchesJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		MarketplaceURL:    marketplace.URL,
		Source:            models.SourceBlocket,
		SearchesPath:      searchesPath,
		RetentionDays:     30,
		NavigationTimeout: 5 * time.Second,
		UserAgent:         "Mozilla/5.0 (integration)",
		Locale:            "sv-SE",
	}
	ctx := context.Background()

	searches, err := config.LoadSearches(cfg.SearchesPath)
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewSQLite(ctx, filepath.Join(dir, "seen.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	extractor, err := scraper.New(cfg.MarketplaceURL, cfg.Source, scraper.DefaultSelectors())
	if err != nil {
		t.Fatal(err)
	}
	opts := browser.Options{UserAgent: cfg.UserAgent, Locale: cfg.Locale, NavigationTimeout: cfg.NavigationTimeout, BlockMarkers: browser.DefaultBlockMarkers}
	fetcher := browser.NewStatic(opts, browser.NewSnapshotter(""))

	p := New(store, fetcher, extractor, ai.NewRuleEvaluator(searches.ReferencePrices), notifier.New(webhook.URL, 0), cfg)
	p.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	summary, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// 3080 at 3500: 6000-3500-200 = 2300 profit (65.7%) is HOT.
	// 3080 at 5600: 200 profit (3.6%) is BAD. The GTX has no keyword.
	if summary.Candidates != 3 || summary.Accepted != 2 || summary.Hot != 1 || summary.Notified != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.PagesFetched != 2 {
		t.Errorf("PagesFetched = %d, want 2 (second page is empty)", summary.PagesFetched)
	}
	if len(pageRequests) != 2 || pageRequests[1] != "2" {
		t.Errorf("page requests = %v", pageRequests)
	}

	mu.Lock()
	if len(payloads) != 2 {
		t.Fatalf("expected alert + summary payloads, got %d", len(payloads))
	}
	alert, _ := json.Marshal(payloads[0])
	mu.Unlock()
	if !strings.Contains(string(alert), "RTX 3080 Founders Edition") || !strings.Contains(string(alert), "HOT DEAL") {
		t.Errorf("unexpected alert payload: %s", alert)
	}

	for _, id := range []string{"30000001", "30000002"} {
		if seen, _ := store.IsSeen(ctx, id); !seen {
			t.Errorf("listing %s should be recorded", id)
		}
	}

	// A second run over the same page announces nothing new.
	summary, err = p.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Accepted != 0 || summary.Notified != 0 {
		t.Errorf("second run should be a no-op: %+v", summary)
	}
}

func TestIntegration_BlockedMarketplace(t *testing.T) {
	marketplace := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "<html><body>Access denied</body></html>")
	}))
	defer marketplace.Close()

	dir := t.TempDir()
	ctx := context.Background()
	store, err := storage.NewSQLite(ctx, filepath.Join(dir, "seen.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := &config.Config{MarketplaceURL: marketplace.URL, Source: models.SourceBlocket, RetentionDays: 30}
	extractor, err := scraper.New(cfg.MarketplaceURL, cfg.Source, scraper.DefaultSelectors())
	if err != nil {
		t.Fatal(err)
	}
	fetcher := browser.NewStatic(browser.Options{NavigationTimeout: 5 * time.Second, BlockMarkers: browser.DefaultBlockMarkers}, browser.NewSnapshotter(dir))

	p := New(store, fetcher, extractor, ai.NewRuleEvaluator(nil), notifier.New("", 0), cfg)
	p.searches = func() ([]models.SearchSpec, error) {
		return []models.SearchSpec{{Name: "GPU", Query: "rtx", MaxPrice: 5000, MaxPages: 3}}, nil
	}

	summary, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.PagesFetched != 0 || summary.Errors != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	shots, _ := filepath.Glob(filepath.Join(dir, "detection_*.html"))
	if len(shots) != 1 {
		t.Errorf("expected the blocked page to be saved, got %v", shots)
	}
}
