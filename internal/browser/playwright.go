package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pauljones0/flipscout/internal/util"
)

var chromiumArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-dev-shm-usage",
	"--no-sandbox",
}

// PlaywrightFetcher drives a headless Chromium through playwright. One browser
// process lives for the fetcher's lifetime; each search gets a fresh context.
type PlaywrightFetcher struct {
	opts Options
	snap *Snapshotter

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	session playwright.BrowserContext
	page    playwright.Page
}

func NewPlaywright(opts Options, snap *Snapshotter) (*PlaywrightFetcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     chromiumArgs,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}
	slog.Info("Browser started", "engine", "playwright", "headless", opts.Headless)
	return &PlaywrightFetcher{opts: opts, snap: snap, pw: pw, browser: browser}, nil
}

func (f *PlaywrightFetcher) Fetch(ctx context.Context, searchURL string, page int) (string, error) {
	target, err := PageURL(searchURL, page)
	if err != nil {
		return "", &FetchFailure{Kind: FailureNetwork, URL: searchURL, Reason: "bad url", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", classify(target, "cancelled", err, nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if page <= 1 || f.page == nil {
		if err := f.newSession(); err != nil {
			return "", classify(target, "new session", err, isPlaywrightTimeout)
		}
	}

	resp, err := f.page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   ms(boundedTimeout(ctx, f.opts.NavigationTimeout)),
	})
	if err != nil {
		if ctx.Err() == nil && !f.page.IsClosed() {
			f.saveDiagnostics()
		}
		return "", classify(target, "navigation", err, isPlaywrightTimeout)
	}

	if page <= 1 {
		dismissConsent(ctx, &playwrightConsent{f: f}, f.opts.ConsentAttempts)
	}
	f.waitForListings(ctx)

	status := 0
	if resp != nil {
		status = resp.Status()
	}
	text, _ := f.page.InnerText("body")
	if reason, blocked := DetectBlock(status, text, f.opts.BlockMarkers); blocked {
		f.saveDiagnostics()
		return "", detected(target, reason)
	}

	content, err := f.page.Content()
	if err != nil {
		if !f.page.IsClosed() {
			f.saveDiagnostics()
		}
		return "", classify(target, "read content", err, isPlaywrightTimeout)
	}
	if err := ctx.Err(); err != nil {
		return "", classify(target, "cancelled", err, nil)
	}
	return content, nil
}

func (f *PlaywrightFetcher) newSession() error {
	if f.session != nil {
		if err := f.session.Close(); err != nil {
			slog.Debug("Failed to close previous browser context", "error", err)
		}
		f.session, f.page = nil, nil
	}
	session, err := f.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:        playwright.String(f.opts.UserAgent),
		Locale:           playwright.String(f.opts.Locale),
		Viewport:         &playwright.Size{Width: viewportWidth, Height: viewportHeight},
		ExtraHttpHeaders: map[string]string{"Accept-Language": acceptLanguage(f.opts.Locale)},
	})
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := session.NewPage()
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("failed to open page: %w", err)
	}
	f.session, f.page = session, page
	return nil
}

// waitForListings gives client-side rendering a bounded chance to produce
// listing containers. A miss is not an error; the page may have no results.
func (f *PlaywrightFetcher) waitForListings(ctx context.Context) {
	if f.opts.RenderSelector == "" {
		return
	}
	err := f.page.Locator(f.opts.RenderSelector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: ms(boundedTimeout(ctx, f.opts.RenderTimeout)),
	})
	if err != nil {
		slog.Debug("No listing containers after render wait", "selector", f.opts.RenderSelector, "error", err)
	}
}

func (f *PlaywrightFetcher) saveDiagnostics() {
	if f.snap == nil || f.snap.dir == "" {
		return
	}
	png, err := f.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Timeout:  ms(diagnosticsTimeout),
	})
	if err != nil {
		slog.Debug("Screenshot failed", "error", err)
	}
	html, _ := f.page.Content()
	f.snap.Save(png, html)
}

func (f *PlaywrightFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	if f.session != nil {
		errs = append(errs, f.session.Close())
	}
	if f.browser != nil {
		errs = append(errs, f.browser.Close())
	}
	if f.pw != nil {
		errs = append(errs, f.pw.Stop())
	}
	return errors.Join(errs...)
}

type playwrightConsent struct {
	f *PlaywrightFetcher
}

func (c *playwrightConsent) visibleButton() playwright.Locator {
	for _, frame := range c.f.page.Frames() {
		for _, text := range c.f.opts.ConsentTexts {
			loc := frame.GetByText(text).First()
			if ok, _ := loc.IsVisible(); ok {
				return loc
			}
		}
	}
	return nil
}

func (c *playwrightConsent) clickConsent(ctx context.Context) bool {
	deadline := time.Now().Add(c.f.opts.ConsentTimeout)
	for {
		if btn := c.visibleButton(); btn != nil {
			if err := btn.Click(playwright.LocatorClickOptions{Timeout: ms(c.f.opts.ConsentTimeout)}); err != nil {
				slog.Debug("Consent click failed", "error", err)
			}
			return true
		}
		if time.Now().After(deadline) || util.Sleep(ctx, consentPoll) != nil {
			return false
		}
	}
}

func (c *playwrightConsent) consentVisible(ctx context.Context) bool {
	if util.Sleep(ctx, consentPoll) != nil {
		return false
	}
	return c.visibleButton() != nil
}

func (c *playwrightConsent) reload(ctx context.Context) error {
	_, err := c.f.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   ms(boundedTimeout(ctx, c.f.opts.NavigationTimeout)),
	})
	return err
}

func isPlaywrightTimeout(err error) bool {
	return errors.Is(err, playwright.ErrTimeout)
}

// boundedTimeout shortens d so an engine-level timeout never outlives ctx.
func boundedTimeout(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			if left < time.Millisecond {
				return time.Millisecond
			}
			return left
		}
	}
	return d
}
