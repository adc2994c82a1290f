package browser

import (
	"context"
	"log/slog"
)

type consentResult int

const (
	consentAbsent consentResult = iota
	consentDismissed
	consentStuck
)

// consentDriver is the engine-specific half of cookie-dialog handling.
type consentDriver interface {
	// clickConsent waits a bounded time for an accept button and clicks it.
	// It reports false when no button appeared.
	clickConsent(ctx context.Context) bool
	consentVisible(ctx context.Context) bool
	reload(ctx context.Context) error
}

// dismissConsent clicks through the cookie dialog, reloading the page and trying
// again while it stays up. Exhausting attempts is logged and never fatal.
func dismissConsent(ctx context.Context, d consentDriver, attempts int) consentResult {
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if !d.clickConsent(ctx) {
			if attempt == 1 {
				return consentAbsent
			}
			return consentDismissed
		}
		if !d.consentVisible(ctx) {
			slog.Debug("Dismissed consent dialog", "attempt", attempt)
			return consentDismissed
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}
		slog.Debug("Consent dialog still visible, reloading", "attempt", attempt)
		if err := d.reload(ctx); err != nil {
			slog.Warn("Reload after consent click failed", "error", err)
			break
		}
	}
	slog.Warn("Consent dialog could not be dismissed, continuing", "attempts", attempts)
	return consentStuck
}
