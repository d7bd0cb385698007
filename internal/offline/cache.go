package offline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/makkenzo/device-license-service/internal/domain/license"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var ErrNoEntry = errors.New("offline cache is empty")

const commitAttempts = 3

const schema = `
CREATE TABLE IF NOT EXISTS license_cache (
	license_key       TEXT PRIMARY KEY,
	company_id        TEXT NOT NULL,
	company_name      TEXT NOT NULL,
	username          TEXT NOT NULL,
	password_hash     TEXT NOT NULL,
	phone             TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	logo_url          TEXT NOT NULL DEFAULT '',
	currency_symbol   TEXT NOT NULL DEFAULT '',
	page_permissions  TEXT NOT NULL DEFAULT '',
	license_type      TEXT NOT NULL,
	expires_at        TIMESTAMP NOT NULL,
	grace_period_days INTEGER NOT NULL,
	features          TEXT NOT NULL DEFAULT '',
	fingerprint       TEXT NOT NULL,
	activated_at      TIMESTAMP NOT NULL,
	last_check_in     TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS reset_intent (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	from_key   TEXT NOT NULL,
	to_key     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// Entry is the locally cached license and tenant snapshot.
type Entry struct {
	LicenseKey      string
	CompanyID       string
	CompanyName     string
	Username        string
	PasswordHash    string
	Phone           string
	Address         string
	LogoURL         string
	CurrencySymbol  string
	PagePermissions string
	LicenseType     string
	ExpiresAt       time.Time
	GracePeriodDays int
	Features        string
	Fingerprint     string
	ActivatedAt     time.Time
	LastCheckIn     time.Time
}

// CheckPassword verifies a tenant login against the cached bcrypt hash.
func (e *Entry) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(e.PasswordHash), []byte(password))
}

// ServiceController stops the locally running product before its database
// is reset.
type ServiceController interface {
	Stop(ctx context.Context) error
}

// TenantDatabase is the local per-tenant application database.
type TenantDatabase interface {
	Reset(ctx context.Context) error
}

type Option func(*Cache)

func WithTenantDatabase(t TenantDatabase) Option {
	return func(c *Cache) { c.tenant = t }
}

func WithServiceController(s ServiceController) Option {
	return func(c *Cache) { c.service = s }
}

type Cache struct {
	db      *sql.DB
	tenant  TenantDatabase
	service ServiceController
	logger  *zap.Logger
}

func Open(ctx context.Context, path string, logger *zap.Logger, opts ...Option) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open offline cache: %w", err)
	}
	// A single connection keeps SQLite writers serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping offline cache: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create offline cache tables: %w", err)
	}

	c := &Cache{db: db, logger: logger.Named("OfflineCache")}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Load(ctx context.Context) (*Entry, error) {
	var e Entry
	err := c.db.QueryRowContext(ctx, `
		SELECT license_key, company_id, company_name, username, password_hash,
		       phone, address, logo_url, currency_symbol, page_permissions,
		       license_type, expires_at, grace_period_days, features,
		       fingerprint, activated_at, last_check_in
		FROM license_cache LIMIT 1`).Scan(
		&e.LicenseKey, &e.CompanyID, &e.CompanyName, &e.Username, &e.PasswordHash,
		&e.Phone, &e.Address, &e.LogoURL, &e.CurrencySymbol, &e.PagePermissions,
		&e.LicenseType, &e.ExpiresAt, &e.GracePeriodDays, &e.Features,
		&e.Fingerprint, &e.ActivatedAt, &e.LastCheckIn,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoEntry
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read offline cache: %w", err)
	}
	return &e, nil
}

type intent struct {
	FromKey string
	ToKey   string
}

func (c *Cache) pendingIntent(ctx context.Context) (*intent, error) {
	var in intent
	err := c.db.QueryRowContext(ctx, `SELECT from_key, to_key FROM reset_intent WHERE id = 1`).Scan(&in.FromKey, &in.ToKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reset intent: %w", err)
	}
	return &in, nil
}

// Commit stores e as the only cached license. When the cache belongs to a
// different license key, or an earlier reset never finished, the local
// service is stopped and the tenant database reset first. The whole
// sequence is retried from the start on failure.
func (c *Cache) Commit(ctx context.Context, e *Entry) error {
	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		if err = c.commitOnce(ctx, e); err == nil {
			return nil
		}
		c.logger.Warn("Offline cache commit failed", zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (c *Cache) commitOnce(ctx context.Context, e *Entry) error {
	pending, err := c.pendingIntent(ctx)
	if err != nil {
		return err
	}

	current, err := c.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoEntry) {
		return err
	}

	switchTenant := current != nil && current.LicenseKey != e.LicenseKey
	if switchTenant || pending != nil {
		from := ""
		if current != nil {
			from = current.LicenseKey
		}
		if pending != nil {
			c.logger.Warn("Found unfinished tenant reset, redoing it",
				zap.String("from_key", pending.FromKey), zap.String("to_key", pending.ToKey))
			from = pending.FromKey
		}
		if err := c.resetTenant(ctx, from, e.LicenseKey); err != nil {
			return err
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM license_cache WHERE license_key <> ?`, e.LicenseKey); err != nil {
		return fmt.Errorf("failed to clear previous cache entry: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO license_cache (
			license_key, company_id, company_name, username, password_hash,
			phone, address, logo_url, currency_symbol, page_permissions,
			license_type, expires_at, grace_period_days, features,
			fingerprint, activated_at, last_check_in
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (license_key) DO UPDATE SET
			company_id = excluded.company_id,
			company_name = excluded.company_name,
			username = excluded.username,
			password_hash = excluded.password_hash,
			phone = excluded.phone,
			address = excluded.address,
			logo_url = excluded.logo_url,
			currency_symbol = excluded.currency_symbol,
			page_permissions = excluded.page_permissions,
			license_type = excluded.license_type,
			expires_at = excluded.expires_at,
			grace_period_days = excluded.grace_period_days,
			features = excluded.features,
			fingerprint = excluded.fingerprint,
			activated_at = excluded.activated_at,
			last_check_in = excluded.last_check_in`,
		e.LicenseKey, e.CompanyID, e.CompanyName, e.Username, e.PasswordHash,
		e.Phone, e.Address, e.LogoURL, e.CurrencySymbol, e.PagePermissions,
		e.LicenseType, e.ExpiresAt.UTC(), e.GracePeriodDays, e.Features,
		e.Fingerprint, e.ActivatedAt.UTC(), e.LastCheckIn.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reset_intent`); err != nil {
		return fmt.Errorf("failed to clear reset intent: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}

	c.logger.Info("Offline cache updated", zap.String("license_key", e.LicenseKey))
	return nil
}

// resetTenant records the intent before touching the tenant database, so an
// interrupted reset is finished on the next run.
func (c *Cache) resetTenant(ctx context.Context, fromKey, toKey string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO reset_intent (id, from_key, to_key, created_at) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET to_key = excluded.to_key`,
		fromKey, toKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record reset intent: %w", err)
	}

	c.logger.Info("Switching tenant, resetting local database",
		zap.String("from_key", fromKey), zap.String("to_key", toKey))

	if c.service != nil {
		if err := c.service.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop local service: %w", err)
		}
	}
	if c.tenant != nil {
		if err := c.tenant.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset tenant database: %w", err)
		}
	} else {
		c.logger.Warn("No tenant database configured, skipping reset")
	}
	return nil
}

type Status struct {
	Entry           *Entry
	State           license.GraceState
	DaysUntilExpiry int
	GraceEndsAt     time.Time
}

// Evaluate classifies the cached license against the local clock. It never
// touches the network.
func (c *Cache) Evaluate(ctx context.Context, now time.Time) (*Status, error) {
	e, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Entry:           e,
		State:           license.Classify(now, e.ExpiresAt, e.GracePeriodDays),
		DaysUntilExpiry: license.DaysUntilExpiry(now, e.ExpiresAt),
		GraceEndsAt:     license.GraceEndsAt(e.ExpiresAt, e.GracePeriodDays),
	}, nil
}
