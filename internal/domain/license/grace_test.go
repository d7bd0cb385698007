package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var refNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		graceDays int
		want      GraceState
	}{
		{"before expiry", refNow.Add(24 * time.Hour), 7, GraceValid},
		{"exactly at expiry", refNow, 7, GraceValid},
		{"three days into a seven day grace", refNow.Add(-3 * 24 * time.Hour), 7, GraceInGrace},
		{"last instant of grace", refNow.Add(-7 * 24 * time.Hour), 7, GraceInGrace},
		{"one day past grace", refNow.Add(-8 * 24 * time.Hour), 7, GraceExpired},
		{"no grace period", refNow.Add(-time.Second), 0, GraceExpired},
		{"negative grace treated as zero", refNow.Add(-time.Second), -5, GraceExpired},
		{"day-long lapse inside a very long grace", refNow.Add(-24 * time.Hour), 200000, GraceInGrace},
		{"day-long lapse inside the maximum grace", refNow.Add(-24 * time.Hour), MaxGracePeriodDays, GraceInGrace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(refNow, tt.expiresAt, tt.graceDays))
		})
	}
}

func TestGraceStateUsable(t *testing.T) {
	assert.True(t, GraceValid.Usable())
	assert.True(t, GraceInGrace.Usable())
	assert.False(t, GraceExpired.Usable())
}

func TestDaysUntilExpiry(t *testing.T) {
	assert.Equal(t, 1, DaysUntilExpiry(refNow, refNow.Add(time.Hour)))
	assert.Equal(t, 10, DaysUntilExpiry(refNow, refNow.Add(10*24*time.Hour)))
	assert.Equal(t, 0, DaysUntilExpiry(refNow, refNow))
	assert.Equal(t, -3, DaysUntilExpiry(refNow, refNow.Add(-3*24*time.Hour)))
	assert.Equal(t, -2, DaysUntilExpiry(refNow, refNow.Add(-(2*24+1)*time.Hour)))
}

func TestRenewedExpiry(t *testing.T) {
	t.Run("before expiry keeps the remainder", func(t *testing.T) {
		expires := refNow.Add(10 * 24 * time.Hour)
		assert.Equal(t, expires.AddDate(0, 1, 0), RenewedExpiry(refNow, expires, 1))
	})

	t.Run("after expiry starts from now", func(t *testing.T) {
		expires := refNow.Add(-30 * 24 * time.Hour)
		assert.Equal(t, refNow.AddDate(0, 12, 0), RenewedExpiry(refNow, expires, 12))
	})

	t.Run("non-positive months default to a year", func(t *testing.T) {
		assert.Equal(t, refNow.AddDate(1, 0, 0), RenewedExpiry(refNow, refNow, 0))
		assert.Equal(t, refNow.AddDate(1, 0, 0), RenewedExpiry(refNow, refNow, -3))
	})
}

func TestLicenseSlots(t *testing.T) {
	l := &License{MaxDevices: 2, ActivatedDevices: 1}
	assert.True(t, l.HasFreeSlot())

	l.ActivatedDevices = 2
	assert.False(t, l.HasFreeSlot())

	l.ActivatedDevices = 0
	l.ReleaseSlot()
	assert.Equal(t, 0, l.ActivatedDevices)
}

func TestGraceEndsAt(t *testing.T) {
	expiresAt := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)

	assert.Equal(t, expiresAt, GraceEndsAt(expiresAt, 0))
	assert.Equal(t, expiresAt, GraceEndsAt(expiresAt, -3))
	assert.Equal(t, time.Date(2025, 2, 7, 23, 59, 59, 0, time.UTC), GraceEndsAt(expiresAt, 7))

	far := GraceEndsAt(expiresAt, 200000)
	assert.True(t, far.After(expiresAt), "grace end must never precede expiry")
	assert.Equal(t, expiresAt.AddDate(0, 0, 200000), far)
}
