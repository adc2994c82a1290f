// Package browser renders marketplace search pages the way an ordinary visitor's
// browser would and reports blocks distinctly from empty results.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pauljones0/flipscout/internal/config"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
	consentPoll    = 250 * time.Millisecond

	diagnosticsTimeout = 10 * time.Second
)

// Fetcher returns the rendered HTML of one search result page.
// Page 1 starts a fresh visitor session; later pages reuse it.
type Fetcher interface {
	Fetch(ctx context.Context, searchURL string, page int) (string, error)
	Close() error
}

type Options struct {
	Headless          bool
	UserAgent         string
	Locale            string
	NavigationTimeout time.Duration
	RenderTimeout     time.Duration
	RenderSelector    string
	ConsentTimeout    time.Duration
	ConsentAttempts   int
	ConsentTexts      []string
	BlockMarkers      []string
	AllowedDomains    []string
}

// DefaultConsentTexts are the "accept all" button labels the cookie dialogs use.
var DefaultConsentTexts = []string{
	"Godkänn alla cookies",
	"Godkänn alla",
	"Acceptera alla",
	"Jag godkänner",
	"Accept all",
}

// OptionsFromConfig maps the environment config onto fetcher options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Headless:          cfg.Headless,
		UserAgent:         cfg.UserAgent,
		Locale:            cfg.Locale,
		NavigationTimeout: cfg.NavigationTimeout,
		RenderTimeout:     cfg.RenderTimeout,
		RenderSelector:    cfg.RenderSelector,
		ConsentTimeout:    cfg.ConsentTimeout,
		ConsentAttempts:   cfg.ConsentAttempts,
		ConsentTexts:      DefaultConsentTexts,
		BlockMarkers:      DefaultBlockMarkers,
	}
	if u, err := url.Parse(cfg.MarketplaceURL); err == nil && u.Hostname() != "" {
		host := u.Hostname()
		opts.AllowedDomains = []string{host, strings.TrimPrefix(host, "www.")}
	}
	return opts
}

// New starts the fetcher for the configured engine.
func New(cfg *config.Config) (Fetcher, error) {
	opts := OptionsFromConfig(cfg)
	snap := NewSnapshotter(cfg.DiagnosticsDir)
	switch cfg.BrowserEngine {
	case "playwright":
		return NewPlaywright(opts, snap)
	case "chromedp":
		return NewChromedp(opts, snap)
	case "static":
		return NewStatic(opts, snap), nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", cfg.BrowserEngine)
	}
}

// FailureKind classifies why a page could not be fetched.
type FailureKind int

const (
	FailureTimeout FailureKind = iota + 1
	FailureNetwork
	FailureDetected
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureNetwork:
		return "network_error"
	case FailureDetected:
		return "detected"
	default:
		return "unknown"
	}
}

// FetchFailure is returned by every Fetcher error path.
type FetchFailure struct {
	Kind   FailureKind
	URL    string
	Reason string
	Err    error
}

func (f *FetchFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("fetch %s: %s (%s): %v", f.URL, f.Kind, f.Reason, f.Err)
	}
	return fmt.Sprintf("fetch %s: %s (%s)", f.URL, f.Kind, f.Reason)
}

func (f *FetchFailure) Unwrap() error { return f.Err }

// IsDetected reports whether err is a block/challenge failure.
func IsDetected(err error) bool {
	var ff *FetchFailure
	return errors.As(err, &ff) && ff.Kind == FailureDetected
}

func detected(target, reason string) *FetchFailure {
	return &FetchFailure{Kind: FailureDetected, URL: target, Reason: reason}
}

// classify wraps an engine error, treating deadline expiry as a timeout.
func classify(target, reason string, err error, isTimeout func(error) bool) *FetchFailure {
	kind := FailureNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) || (isTimeout != nil && isTimeout(err)) {
		kind = FailureTimeout
	}
	return &FetchFailure{Kind: kind, URL: target, Reason: reason, Err: err}
}

// PageURL returns the URL of result page n of a search. Page 1 is the search URL itself.
func PageURL(searchURL string, page int) (string, error) {
	u, err := url.Parse(searchURL)
	if err != nil {
		return "", fmt.Errorf("invalid search URL %q: %w", searchURL, err)
	}
	if page <= 1 {
		return u.String(), nil
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func acceptLanguage(locale string) string {
	lang, _, _ := strings.Cut(locale, "-")
	if lang == "" || lang == "en" {
		return "en-US,en;q=0.9"
	}
	return fmt.Sprintf("%s,%s;q=0.8,en-US;q=0.5,en;q=0.3", locale, lang)
}

func ms(d time.Duration) *float64 {
	v := float64(d.Milliseconds())
	return &v
}
