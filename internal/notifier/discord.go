package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/pauljones0/flipscout/internal/models"
)

const (
	colorHot     = 0x00FF00
	colorGood    = 0x0099FF
	colorSummary = 0x808080

	maxTitleLength = 256
	maxFieldLength = 1024

	defaultRetryAfter = time.Second
	maxRetryAfter     = 60 * time.Second
)

type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
	now         func() time.Time
}

// New returns a webhook client that sends at most one message per interval.
func New(webhookURL string, interval time.Duration) *Client {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Client{
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(limit, 1),
		now:         time.Now,
	}
}

// Send posts a deal alert for a HOT or GOOD listing.
func (c *Client) Send(ctx context.Context, l models.Listing, v models.Verdict) error {
	if c.webhookURL == "" {
		return nil
	}
	return c.post(ctx, discordWebhookPayload{Embeds: []discordEmbed{formatDealEmbed(l, v, c.now())}})
}

// SendSummary posts the end-of-run tally.
func (c *Client) SendSummary(ctx context.Context, s models.RunSummary) error {
	if c.webhookURL == "" {
		return nil
	}
	return c.post(ctx, discordWebhookPayload{Embeds: []discordEmbed{formatSummaryEmbed(s, c.now())}})
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedThumbnail struct {
	URL string `json:"url,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Timestamp   string                 `json:"timestamp,omitempty"`
	Color       int                    `json:"color,omitempty"`
	Thumbnail   *discordEmbedThumbnail `json:"thumbnail,omitempty"`
	Fields      []discordEmbedField    `json:"fields,omitempty"`
	Footer      *discordEmbedFooter    `json:"footer,omitempty"`
}

func formatDealEmbed(l models.Listing, v models.Verdict, now time.Time) discordEmbed {
	color, label := colorGood, "✅ GOOD DEAL"
	if v.Tier == models.TierHot {
		color, label = colorHot, "🔥 HOT DEAL"
	}

	fields := []discordEmbedField{
		{Name: "Price", Value: formatKr(l.Price), Inline: true},
		{Name: "Estimated Profit", Value: fmt.Sprintf("%s (%.1f%%)", formatKr(v.EstimatedProfit), v.ProfitPercentage), Inline: true},
		{Name: "Market Value", Value: formatKr(v.EstimatedValue), Inline: true},
		{Name: "Source", Value: orDash(l.Source), Inline: true},
		{Name: "Search", Value: orDash(l.SearchTag), Inline: true},
		{Name: "Comparisons", Value: strconv.Itoa(v.ComparisonCount), Inline: true},
	}
	if l.Location != "" {
		fields = append(fields, discordEmbedField{Name: "Location", Value: l.Location, Inline: true})
	}
	fields = append(fields, discordEmbedField{Name: "AI Analysis", Value: truncate(orDash(v.Rationale), maxFieldLength)})

	embed := discordEmbed{
		Title:     truncate(label+": "+l.Title, maxTitleLength),
		URL:       l.URL,
		Timestamp: now.UTC().Format(time.RFC3339),
		Color:     color,
		Fields:    fields,
		Footer:    &discordEmbedFooter{Text: "flipscout"},
	}
	if l.Image != "" {
		embed.Thumbnail = &discordEmbedThumbnail{URL: l.Image}
	}
	return embed
}

func formatSummaryEmbed(s models.RunSummary, now time.Time) discordEmbed {
	description := fmt.Sprintf("No deals this scan (%d new listings checked)", s.Accepted)
	if s.Hot > 0 || s.Good > 0 {
		description = fmt.Sprintf("Found %d 🔥 HOT and %d ✅ GOOD deals out of %d new listings", s.Hot, s.Good, s.Accepted)
	}
	return discordEmbed{
		Title:       "📊 Scan complete",
		Description: description,
		Timestamp:   now.UTC().Format(time.RFC3339),
		Color:       colorSummary,
		Fields: []discordEmbedField{
			{Name: "Searches", Value: strconv.Itoa(s.Searches), Inline: true},
			{Name: "Pages", Value: strconv.Itoa(s.PagesFetched), Inline: true},
			{Name: "Candidates", Value: strconv.Itoa(s.Candidates), Inline: true},
			{Name: "Alerts Sent", Value: strconv.Itoa(s.Notified), Inline: true},
			{Name: "Purged", Value: strconv.FormatInt(s.Purged, 10), Inline: true},
			{Name: "Errors", Value: strconv.Itoa(s.Errors), Inline: true},
			{Name: "Duration", Value: s.Duration.Round(time.Second).String(), Inline: true},
		},
		Footer: &discordEmbedFooter{Text: "run " + s.RunID},
	}
}

// post sends payload once, honoring a single 429 with the server's requested wait.
func (c *Client) post(ctx context.Context, payload discordWebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		resp, respBody, err := c.do(ctx, body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		wait := retryBackoff(resp, respBody, attempt)
		if wait == 0 {
			return fmt.Errorf("discord status: %s, body: %s", resp.Status, bytes.TrimSpace(respBody))
		}
		slog.Warn("Discord rate limited, retrying once", "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) do(ctx context.Context, body []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return resp, respBody, nil
}

// retryBackoff returns how long to wait before retrying, or zero when the
// response must not be retried. Only the first 429 is retried.
func retryBackoff(resp *http.Response, body []byte, attempt int) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests || attempt > 0 {
		return 0
	}

	wait := defaultRetryAfter
	if secs, err := strconv.ParseFloat(strings.TrimSpace(resp.Header.Get("Retry-After")), 64); err == nil && secs > 0 {
		wait = time.Duration(secs * float64(time.Second))
	} else {
		var rl struct {
			RetryAfter float64 `json:"retry_after"`
		}
		if json.Unmarshal(body, &rl) == nil && rl.RetryAfter > 0 {
			wait = time.Duration(rl.RetryAfter * float64(time.Second))
		}
	}
	return min(wait, maxRetryAfter)
}

// formatKr renders 12345 as "12 345 kr".
func formatKr(n int) string {
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	digits := strconv.Itoa(n)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(d)
	}
	return sign + b.String() + " kr"
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
