// Package access decides whether a user may start a new wizard run.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/mwrona/receiptor/internal/store"
)

// UsageStore reads the remaining-use counter for a user.
type UsageStore interface {
	GetLimit(ctx context.Context, userID string) int
}

// WindowStore reads the access-window expiry for a user.
type WindowStore interface {
	GetAccessExpiry(ctx context.Context, userID string) (time.Time, bool)
}

// Result is the outcome of an access check.
type Result struct {
	Allowed bool
	// Reason is the human-readable denial reason, empty when allowed.
	Reason string

	// WindowUnlimited is true when no expiry is on record.
	WindowUnlimited bool
	ExpiresAt       time.Time

	// Remaining is the recorded counter, store.Unlimited when none.
	Remaining int
}

// Gate combines the time-window gate and the usage-counter gate. Both
// must pass for a new wizard run to start.
type Gate struct {
	usage   UsageStore
	windows WindowStore
	now     func() time.Time
}

// NewGate creates a gate over the given stores.
func NewGate(usage UsageStore, windows WindowStore) *Gate {
	return &Gate{usage: usage, windows: windows, now: time.Now}
}

// Check reports whether the user may start a new wizard run. A missing
// expiry or counter record means unlimited access on that gate.
func (g *Gate) Check(ctx context.Context, userID string) Result {
	res := Result{Allowed: true, WindowUnlimited: true, Remaining: store.Unlimited}

	if expiry, ok := g.windows.GetAccessExpiry(ctx, userID); ok {
		res.WindowUnlimited = false
		res.ExpiresAt = expiry
		// An expiry equal to now counts as expired.
		if !g.now().Before(expiry) {
			res.Allowed = false
			res.Reason = fmt.Sprintf("access window expired on %s", expiry.Format("02/01/2006"))
			return res
		}
	}

	res.Remaining = g.usage.GetLimit(ctx, userID)
	if res.Remaining == 0 {
		res.Allowed = false
		res.Reason = "no uses remaining"
	}

	return res
}

// DaysLeft returns the whole days remaining in the window, rounded up.
// Zero or negative means the window is over.
func (g *Gate) DaysLeft(expiry time.Time) int {
	left := expiry.Sub(g.now())
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) > 0 {
		days++
	}
	return days
}
