package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gocolly/colly/v2"
)

// StaticFetcher fetches pages over plain HTTP without running scripts. It suits
// server-rendered markup and is what tests and the static engine use.
type StaticFetcher struct {
	opts Options
	snap *Snapshotter
}

func NewStatic(opts Options, snap *Snapshotter) *StaticFetcher {
	return &StaticFetcher{opts: opts, snap: snap}
}

func (f *StaticFetcher) Fetch(ctx context.Context, searchURL string, page int) (string, error) {
	target, err := PageURL(searchURL, page)
	if err != nil {
		return "", &FetchFailure{Kind: FailureNetwork, URL: searchURL, Reason: "bad url", Err: err}
	}

	c := colly.NewCollector(
		colly.UserAgent(f.opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	if len(f.opts.AllowedDomains) > 0 {
		c.AllowedDomains = f.opts.AllowedDomains
	}
	if f.opts.NavigationTimeout > 0 {
		c.SetRequestTimeout(f.opts.NavigationTimeout)
	}
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", acceptLanguage(f.opts.Locale))
	})

	var (
		status int
		body   []byte
	)
	c.OnResponse(func(r *colly.Response) {
		status, body = r.StatusCode, r.Body
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status, body = r.StatusCode, r.Body
		}
	})

	visitErr := c.Visit(target)
	html := string(body)
	if status != 0 {
		if reason, blocked := DetectBlock(status, VisibleText(html), f.opts.BlockMarkers); blocked {
			f.snap.Save(nil, html)
			return "", detected(target, reason)
		}
	}
	if visitErr != nil {
		if ctx.Err() != nil {
			visitErr = errors.Join(visitErr, ctx.Err())
		} else if html != "" {
			f.snap.Save(nil, html)
		}
		return "", classify(target, "request", visitErr, nil)
	}
	if status >= http.StatusBadRequest {
		f.snap.Save(nil, html)
		return "", classify(target, "request", fmt.Errorf("unexpected status %d", status), nil)
	}
	return html, nil
}

func (f *StaticFetcher) Close() error { return nil }
