package service_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/device-license-service/internal/domain/company"
	"github.com/makkenzo/device-license-service/internal/domain/license"
	"github.com/makkenzo/device-license-service/internal/storage/memstorage"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fixture struct {
	repo      *memstorage.LicenseRepository
	companies *memstorage.CompanyRepository
	clock     *fakeClock
	company   *company.Company
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: baseTime}
	f := &fixture{
		repo:      memstorage.NewLicenseRepository(clock.Now),
		companies: memstorage.NewCompanyRepository(),
		clock:     clock,
		company: &company.Company{
			Name:           "Northwind Traders",
			Username:       "northwind",
			PasswordHash:   "$2a$10$abcdefghijklmnopqrstuu",
			Phone:          sql.NullString{String: "+1 555 0100", Valid: true},
			CurrencySymbol: sql.NullString{String: "$", Valid: true},
		},
	}
	f.companies.Put(f.company)
	return f
}

func (f *fixture) addLicense(t *testing.T, key string, maxDevices int, expiresAt time.Time, graceDays int) *license.License {
	t.Helper()
	lic := &license.License{
		LicenseKey:      key,
		CompanyID:       f.company.ID,
		Type:            license.TypeOffline,
		Status:          license.StatusActive,
		MaxDevices:      maxDevices,
		IssuedAt:        f.clock.Now(),
		ExpiresAt:       expiresAt,
		GracePeriodDays: graceDays,
	}
	id, err := f.repo.Create(context.Background(), lic)
	require.NoError(t, err)
	created, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return created
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *license.License {
	t.Helper()
	lic, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return lic
}

func (f *fixture) activeRows(t *testing.T, id uuid.UUID) int {
	t.Helper()
	acts, err := f.repo.ListActivations(context.Background(), id)
	require.NoError(t, err)
	n := 0
	for _, a := range acts {
		if a.IsActive {
			n++
		}
	}
	return n
}
