package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/pauljones0/flipscout/internal/util"
)

// consentScript clicks the first button-like element whose text contains one of
// the accept labels. %s is a JSON array of lower-case labels.
const consentScript = `(() => {
  const wanted = %s;
  const nodes = document.querySelectorAll('button, a, [role="button"]');
  for (const n of nodes) {
    const text = (n.innerText || '').trim().toLowerCase();
    if (text && n.offsetParent !== null && wanted.some(w => text.includes(w))) {
      if (%t) { n.click(); }
      return true;
    }
  }
  return false;
})()`

const bodyTextScript = `document.body ? document.body.innerText : ''`

// ChromedpFetcher drives Chrome over the DevTools protocol. Each search gets a
// new browser context so cookies never carry over between searches.
type ChromedpFetcher struct {
	opts Options
	snap *Snapshotter

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabCtx        context.Context
	tabCancel     context.CancelFunc
}

func NewChromedp(opts Options, snap *Snapshotter) (*ChromedpFetcher, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", opts.Locale),
		chromedp.NoSandbox,
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	slog.Info("Browser started", "engine", "chromedp", "headless", opts.Headless)
	return &ChromedpFetcher{
		opts:          opts,
		snap:          snap,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func (f *ChromedpFetcher) Fetch(ctx context.Context, searchURL string, page int) (string, error) {
	target, err := PageURL(searchURL, page)
	if err != nil {
		return "", &FetchFailure{Kind: FailureNetwork, URL: searchURL, Reason: "bad url", Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if page <= 1 || f.tabCtx == nil {
		if err := f.newSession(); err != nil {
			return "", classify(target, "new session", err, nil)
		}
	}

	// Tab actions run on the tab's context; tie them to the caller's as well.
	runCtx, cancel := context.WithCancel(f.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	navCtx, navCancel := context.WithTimeout(runCtx, f.opts.NavigationTimeout)
	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(target))
	navCancel()
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Join(err, ctx.Err())
		} else if runCtx.Err() == nil {
			f.saveDiagnostics(runCtx)
		}
		return "", classify(target, "navigation", err, nil)
	}

	if page <= 1 {
		dismissConsent(runCtx, &chromedpConsent{f: f, ctx: runCtx}, f.opts.ConsentAttempts)
	}
	f.waitForListings(runCtx)

	status := 0
	if resp != nil {
		status = int(resp.Status)
	}
	var text string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(bodyTextScript, &text)); err != nil {
		slog.Debug("Failed to read page text", "error", err)
	}
	if reason, blocked := DetectBlock(status, text, f.opts.BlockMarkers); blocked {
		f.saveDiagnostics(runCtx)
		return "", detected(target, reason)
	}

	var content string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			err = errors.Join(err, ctx.Err())
		} else if runCtx.Err() == nil {
			f.saveDiagnostics(runCtx)
		}
		return "", classify(target, "read content", err, nil)
	}
	return content, nil
}

func (f *ChromedpFetcher) newSession() error {
	if f.tabCancel != nil {
		f.tabCancel()
		f.tabCtx, f.tabCancel = nil, nil
	}
	tabCtx, tabCancel := chromedp.NewContext(f.browserCtx, chromedp.WithNewBrowserContext())
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return fmt.Errorf("failed to open tab: %w", err)
	}
	f.tabCtx, f.tabCancel = tabCtx, tabCancel
	return nil
}

func (f *ChromedpFetcher) waitForListings(ctx context.Context) {
	if f.opts.RenderSelector == "" {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, f.opts.RenderTimeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(f.opts.RenderSelector, chromedp.ByQuery)); err != nil {
		slog.Debug("No listing containers after render wait", "selector", f.opts.RenderSelector, "error", err)
	}
}

func (f *ChromedpFetcher) saveDiagnostics(ctx context.Context) {
	if f.snap == nil || f.snap.dir == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, diagnosticsTimeout)
	defer cancel()
	var png []byte
	var html string
	if err := chromedp.Run(ctx,
		chromedp.FullScreenshot(&png, 90),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		slog.Debug("Capturing diagnostics failed", "error", err)
	}
	f.snap.Save(png, html)
}

func (f *ChromedpFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tabCancel != nil {
		f.tabCancel()
	}
	err := chromedp.Cancel(f.browserCtx)
	f.browserCancel()
	f.allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type chromedpConsent struct {
	f   *ChromedpFetcher
	ctx context.Context
}

func (c *chromedpConsent) run(click bool) bool {
	labels := make([]string, len(c.f.opts.ConsentTexts))
	for i, t := range c.f.opts.ConsentTexts {
		labels[i] = strings.ToLower(t)
	}
	encoded, _ := json.Marshal(labels)
	var found bool
	if err := chromedp.Run(c.ctx, chromedp.Evaluate(fmt.Sprintf(consentScript, encoded, click), &found)); err != nil {
		slog.Debug("Consent script failed", "error", err)
		return false
	}
	return found
}

func (c *chromedpConsent) clickConsent(ctx context.Context) bool {
	deadline := time.Now().Add(c.f.opts.ConsentTimeout)
	for {
		if c.run(true) {
			return true
		}
		if time.Now().After(deadline) || util.Sleep(ctx, consentPoll) != nil {
			return false
		}
	}
}

func (c *chromedpConsent) consentVisible(ctx context.Context) bool {
	if util.Sleep(ctx, consentPoll) != nil {
		return false
	}
	return c.run(false)
}

func (c *chromedpConsent) reload(ctx context.Context) error {
	reloadCtx, cancel := context.WithTimeout(ctx, c.f.opts.NavigationTimeout)
	defer cancel()
	return chromedp.Run(reloadCtx, chromedp.Reload())
}
