package license

import (
	"math"
	"time"
)

type GraceState string

const (
	GraceValid   GraceState = "valid"
	GraceInGrace GraceState = "in_grace"
	GraceExpired GraceState = "expired"
)

// MaxGracePeriodDays bounds the grace window a license may carry.
const MaxGracePeriodDays = 3650

// Usable is true for Valid and InGrace.
func (g GraceState) Usable() bool {
	return g == GraceValid || g == GraceInGrace
}

// Classify places now against expiresAt and the grace window that follows it.
// Both window edges are inclusive.
func Classify(now, expiresAt time.Time, gracePeriodDays int) GraceState {
	if !now.After(expiresAt) {
		return GraceValid
	}
	if !now.After(GraceEndsAt(expiresAt, gracePeriodDays)) {
		return GraceInGrace
	}
	return GraceExpired
}

// DaysUntilExpiry is ceil((expiresAt - now) / 24h). Negative while in grace.
func DaysUntilExpiry(now, expiresAt time.Time) int {
	d := expiresAt.Sub(now)
	return int(math.Ceil(d.Hours() / 24))
}

// GraceEndsAt is the last instant at which the license is still usable.
func GraceEndsAt(expiresAt time.Time, gracePeriodDays int) time.Time {
	if gracePeriodDays < 0 {
		gracePeriodDays = 0
	}
	return expiresAt.AddDate(0, 0, gracePeriodDays)
}

func (l *License) GraceState(now time.Time) GraceState {
	return Classify(now, l.ExpiresAt, l.GracePeriodDays)
}

// RenewedExpiry extends from the later of the current expiry and now, so
// early renewals keep the unused remainder. months <= 0 means 12.
func RenewedExpiry(now, expiresAt time.Time, months int) time.Time {
	if months <= 0 {
		months = 12
	}
	base := expiresAt
	if now.After(base) {
		base = now
	}
	return base.AddDate(0, months, 0)
}
