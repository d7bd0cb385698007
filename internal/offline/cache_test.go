package offline

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/makkenzo/device-license-service/internal/domain/license"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type recordingService struct {
	stops int
}

func (s *recordingService) Stop(ctx context.Context) error {
	s.stops++
	return nil
}

type flakyTenant struct {
	resets   int
	failures int
}

func (f *flakyTenant) Reset(ctx context.Context) error {
	f.resets++
	if f.failures > 0 {
		f.failures--
		return errors.New("database is locked")
	}
	return nil
}

var expiry = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func entry(key, company string) *Entry {
	return &Entry{
		LicenseKey:      key,
		CompanyID:       company + "-id",
		CompanyName:     company,
		Username:        "owner",
		PasswordHash:    "hash",
		LicenseType:     "offline",
		ExpiresAt:       expiry,
		GracePeriodDays: 7,
		Fingerprint:     "fp",
		ActivatedAt:     expiry.AddDate(-1, 0, 0),
		LastCheckIn:     expiry.AddDate(-1, 0, 0),
	}
}

func openCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"), zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCache_EmptyLoad(t *testing.T) {
	c := openCache(t)

	_, err := c.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoEntry)

	_, err = c.Evaluate(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestCache_FirstCommitDoesNotReset(t *testing.T) {
	svc := &recordingService{}
	tenant := &flakyTenant{}
	c := openCache(t, WithServiceController(svc), WithTenantDatabase(tenant))

	require.NoError(t, c.Commit(context.Background(), entry("AAAA-AAAA-AAAA-AAAA", "Acme")))

	got, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AAAA-AAAA-AAAA-AAAA", got.LicenseKey)
	assert.Equal(t, "Acme", got.CompanyName)
	assert.True(t, expiry.Equal(got.ExpiresAt))
	assert.Zero(t, svc.stops)
	assert.Zero(t, tenant.resets)
}

func TestCache_SameKeyPreservesTenant(t *testing.T) {
	tenant := &flakyTenant{}
	c := openCache(t, WithTenantDatabase(tenant))

	require.NoError(t, c.Commit(context.Background(), entry("AAAA-AAAA-AAAA-AAAA", "Acme")))
	renewed := entry("AAAA-AAAA-AAAA-AAAA", "Acme Renamed")
	renewed.ExpiresAt = expiry.AddDate(1, 0, 0)
	require.NoError(t, c.Commit(context.Background(), renewed))

	got, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Acme Renamed", got.CompanyName)
	assert.True(t, expiry.AddDate(1, 0, 0).Equal(got.ExpiresAt))
	assert.Zero(t, tenant.resets)
}

func TestCache_TenantSwitchResets(t *testing.T) {
	svc := &recordingService{}
	tenant := &flakyTenant{}
	c := openCache(t, WithServiceController(svc), WithTenantDatabase(tenant))

	require.NoError(t, c.Commit(context.Background(), entry("AAAA-AAAA-AAAA-AAAA", "Acme")))
	require.NoError(t, c.Commit(context.Background(), entry("BBBB-BBBB-BBBB-BBBB", "Globex")))

	got, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BBBB-BBBB-BBBB-BBBB", got.LicenseKey)
	assert.Equal(t, 1, svc.stops)
	assert.Equal(t, 1, tenant.resets)

	var rows int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM license_cache`).Scan(&rows))
	assert.Equal(t, 1, rows)
	pending, err := c.pendingIntent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestCache_TenantSwitchRetriesReset(t *testing.T) {
	tenant := &flakyTenant{failures: 1}
	c := openCache(t, WithTenantDatabase(tenant))

	require.NoError(t, c.Commit(context.Background(), entry("AAAA-AAAA-AAAA-AAAA", "Acme")))
	require.NoError(t, c.Commit(context.Background(), entry("BBBB-BBBB-BBBB-BBBB", "Globex")))

	assert.Equal(t, 2, tenant.resets)
	got, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BBBB-BBBB-BBBB-BBBB", got.LicenseKey)
}

func TestCache_UnfinishedResetIsRedone(t *testing.T) {
	tenant := &flakyTenant{}
	c := openCache(t, WithTenantDatabase(tenant))
	require.NoError(t, c.Commit(context.Background(), entry("AAAA-AAAA-AAAA-AAAA", "Acme")))

	tenant.failures = commitAttempts
	err := c.Commit(context.Background(), entry("BBBB-BBBB-BBBB-BBBB", "Globex"))
	require.Error(t, err)

	got, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AAAA-AAAA-AAAA-AAAA", got.LicenseKey)
	pending, err := c.pendingIntent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "BBBB-BBBB-BBBB-BBBB", pending.ToKey)

	// Even re-activating the old key must finish the interrupted reset.
	resetsBefore := tenant.resets
	require.NoError(t, c.Commit(context.Background(), entry("AAAA-AAAA-AAAA-AAAA", "Acme")))
	assert.Equal(t, resetsBefore+1, tenant.resets)

	pending, err = c.pendingIntent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestCache_Evaluate(t *testing.T) {
	c := openCache(t)
	require.NoError(t, c.Commit(context.Background(), entry("AAAA-AAAA-AAAA-AAAA", "Acme")))

	status, err := c.Evaluate(context.Background(), expiry.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, license.GraceValid, status.State)
	assert.Equal(t, 1, status.DaysUntilExpiry)

	status, err = c.Evaluate(context.Background(), expiry.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, license.GraceInGrace, status.State)
	assert.True(t, expiry.AddDate(0, 0, 7).Equal(status.GraceEndsAt))

	status, err = c.Evaluate(context.Background(), expiry.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Equal(t, license.GraceExpired, status.State)
	assert.False(t, status.State.Usable())
}

func TestEntry_CheckPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("open sesame"), bcrypt.MinCost)
	require.NoError(t, err)
	e := &Entry{PasswordHash: string(hash)}

	assert.NoError(t, e.CheckPassword("open sesame"))
	assert.Error(t, e.CheckPassword("wrong"))
}

func TestSQLiteTenantDatabase_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenant.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT); INSERT INTO products (name) VALUES ('widget');
		CREATE TABLE orders (id INTEGER PRIMARY KEY, product_id INTEGER REFERENCES products(id))`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	tenant := NewSQLiteTenantDatabase(path, []string{`CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT)`}, zap.NewNop())
	require.NoError(t, tenant.Reset(context.Background()))

	db, err = sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var products int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&products))
	assert.Zero(t, products)

	var tables int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'orders'`).Scan(&tables))
	assert.Zero(t, tables)
}

func TestSQLiteTenantDatabase_ResetReplaysSchemaFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenant.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE stale (id INTEGER PRIMARY KEY); INSERT INTO stale (id) VALUES (1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	schemaPath := filepath.Join(dir, "schema.sql")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`
CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE orders (id INTEGER PRIMARY KEY, product_id INTEGER REFERENCES products(id));
`), 0o600))

	schema, err := LoadSchemaFile(schemaPath)
	require.NoError(t, err)
	require.NoError(t, NewSQLiteTenantDatabase(path, schema, zap.NewNop()).Reset(context.Background()))

	db, err = sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var names []string
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"orders", "products"}, names)
}

func TestLoadSchemaFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSchemaFile(filepath.Join(dir, "missing.sql"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.sql")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	_, err = LoadSchemaFile(empty)
	assert.Error(t, err)
}

func TestPIDFileService_NoPIDFile(t *testing.T) {
	svc := NewPIDFileService(filepath.Join(t.TempDir(), "missing.pid"), zap.NewNop())
	assert.NoError(t, svc.Stop(context.Background()))
}
