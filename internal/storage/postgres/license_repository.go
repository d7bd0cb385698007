package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/device-license-service/internal/domain/license"
	"go.uber.org/zap"
)

const (
	licenseColumns = `
            id, license_key, company_id, license_type, status, max_devices,
            activated_devices, issued_at, expires_at, grace_period_days,
            features, notes, last_check_in, created_at, updated_at`

	activationColumns = `
            id, license_id, machine_fingerprint, machine_name, os_info,
            ip_address, is_active, activated_at, last_seen, deactivated_at`

	licenseKeyConstraint = "licenses_license_key_key"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type LicenseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLicenseRepository(db *pgxpool.Pool, logger *zap.Logger) *LicenseRepository {
	return &LicenseRepository{
		db:     db,
		logger: logger.Named("LicenseRepository"),
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) (uuid.UUID, error) {
	query := `
        INSERT INTO licenses (
            license_key, company_id, license_type, status, max_devices,
            activated_devices, issued_at, expires_at, grace_period_days,
            features, notes
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
        ) RETURNING id
    `
	var insertedID uuid.UUID

	err := r.db.QueryRow(ctx, query,
		lic.LicenseKey,
		lic.CompanyID,
		string(lic.Type),
		string(lic.Status),
		lic.MaxDevices,
		lic.ActivatedDevices,
		lic.IssuedAt,
		lic.ExpiresAt,
		lic.GracePeriodDays,
		lic.Features,
		lic.Notes,
	).Scan(&insertedID)

	if err != nil {
		if isUniqueViolation(err, licenseKeyConstraint) {
			r.logger.Warn("Attempted to create license with duplicate key",
				zap.String("constraint", licenseKeyConstraint),
			)
			return uuid.Nil, license.ErrDuplicateKey
		}

		r.logger.Error("Failed to create license in database", zap.Error(err))
		return uuid.Nil, classify(err, "create license")
	}

	r.logger.Info("License created successfully", zap.String("id", insertedID.String()))
	return insertedID, nil
}

func (r *LicenseRepository) FindByID(ctx context.Context, id uuid.UUID) (*license.License, error) {
	row := r.db.QueryRow(ctx, `SELECT`+licenseColumns+` FROM licenses WHERE id = $1`, id)
	return r.scanLicense(row)
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	row := r.db.QueryRow(ctx, `SELECT`+licenseColumns+` FROM licenses WHERE license_key = $1`, key)
	return r.scanLicense(row)
}

func (r *LicenseRepository) List(ctx context.Context, params license.ListParams) ([]*license.Summary, int64, error) {
	var companyArg, statusArg, limitArg any
	if params.CompanyID != nil {
		companyArg = *params.CompanyID
	}
	if params.Status != nil {
		statusArg = string(*params.Status)
	}
	if params.Limit > 0 {
		limitArg = params.Limit
	}

	var total int64
	countQuery := `
        SELECT COUNT(*) FROM licenses
        WHERE ($1::uuid IS NULL OR company_id = $1)
          AND ($2::text IS NULL OR status = $2)
    `
	if err := r.db.QueryRow(ctx, countQuery, companyArg, statusArg).Scan(&total); err != nil {
		r.logger.Error("Failed to count licenses", zap.Error(err))
		return nil, 0, classify(err, "count licenses")
	}

	query := `
        SELECT
            l.id, l.license_key, l.company_id, l.license_type, l.status, l.max_devices,
            l.activated_devices, l.issued_at, l.expires_at, l.grace_period_days,
            l.features, l.notes, l.last_check_in, l.created_at, l.updated_at,
            COUNT(a.id) FILTER (WHERE a.is_active) AS active_activations
        FROM licenses l
        LEFT JOIN license_activations a ON a.license_id = l.id
        WHERE ($1::uuid IS NULL OR l.company_id = $1)
          AND ($2::text IS NULL OR l.status = $2)
        GROUP BY l.id
        ORDER BY l.created_at DESC
        LIMIT $3 OFFSET $4
    `
	rows, err := r.db.Query(ctx, query, companyArg, statusArg, limitArg, params.Offset)
	if err != nil {
		r.logger.Error("Failed to query list of licenses", zap.Error(err))
		return nil, 0, classify(err, "list licenses")
	}
	defer rows.Close()

	summaries := make([]*license.Summary, 0)
	for rows.Next() {
		var s license.Summary
		var status, licType string
		err := rows.Scan(
			&s.ID,
			&s.LicenseKey,
			&s.CompanyID,
			&licType,
			&status,
			&s.MaxDevices,
			&s.ActivatedDevices,
			&s.IssuedAt,
			&s.ExpiresAt,
			&s.GracePeriodDays,
			&s.Features,
			&s.Notes,
			&s.LastCheckIn,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.ActiveActivations,
		)
		if err != nil {
			r.logger.Error("Failed to scan license row during list", zap.Error(err))
			return nil, 0, fmt.Errorf("database scan error during list: %w", err)
		}
		s.Status = license.LicenseStatus(status)
		s.Type = license.LicenseType(licType)
		summaries = append(summaries, &s)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating license rows", zap.Error(err))
		return nil, 0, classify(err, "iterate licenses")
	}

	return summaries, total, nil
}

func (r *LicenseRepository) ListActivations(ctx context.Context, licenseID uuid.UUID) ([]*license.Activation, error) {
	return listActivations(ctx, r.db, licenseID)
}

// InTx runs fn inside one READ COMMITTED transaction. Licenses are locked
// with SELECT ... FOR UPDATE; activation rows are only written while the
// owning license is locked, so they need no lock of their own.
func (r *LicenseRepository) InTx(ctx context.Context, fn func(tx license.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return classify(err, "begin transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(&pgTx{tx: tx, logger: r.logger}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return classify(err, "commit transaction")
	}
	return nil
}

func (r *LicenseRepository) scanLicense(row pgx.Row) (*license.License, error) {
	lic, err := scanLicenseRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrNotFound
		}
		r.logger.Error("Failed to scan license row", zap.Error(err))
		return nil, classify(err, "scan license")
	}
	return lic, nil
}

func scanLicenseRow(row pgx.Row) (*license.License, error) {
	var lic license.License
	var status, licType string
	err := row.Scan(
		&lic.ID,
		&lic.LicenseKey,
		&lic.CompanyID,
		&licType,
		&status,
		&lic.MaxDevices,
		&lic.ActivatedDevices,
		&lic.IssuedAt,
		&lic.ExpiresAt,
		&lic.GracePeriodDays,
		&lic.Features,
		&lic.Notes,
		&lic.LastCheckIn,
		&lic.CreatedAt,
		&lic.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lic.Status = license.LicenseStatus(status)
	lic.Type = license.LicenseType(licType)
	return &lic, nil
}

func scanActivationRow(row pgx.Row) (*license.Activation, error) {
	var a license.Activation
	err := row.Scan(
		&a.ID,
		&a.LicenseID,
		&a.MachineFingerprint,
		&a.MachineName,
		&a.OSInfo,
		&a.IPAddress,
		&a.IsActive,
		&a.ActivatedAt,
		&a.LastSeen,
		&a.DeactivatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func listActivations(ctx context.Context, q querier, licenseID uuid.UUID) ([]*license.Activation, error) {
	rows, err := q.Query(ctx,
		`SELECT`+activationColumns+` FROM license_activations WHERE license_id = $1 ORDER BY activated_at`,
		licenseID,
	)
	if err != nil {
		return nil, classify(err, "list activations")
	}
	defer rows.Close()

	out := make([]*license.Activation, 0)
	for rows.Next() {
		a, err := scanActivationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("database scan error during activation list: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate activations")
	}
	return out, nil
}

type pgTx struct {
	tx     pgx.Tx
	logger *zap.Logger
}

var _ license.Tx = (*pgTx)(nil)

func (t *pgTx) lock(ctx context.Context, where string, arg any) (*license.License, error) {
	row := t.tx.QueryRow(ctx, `SELECT`+licenseColumns+` FROM licenses WHERE `+where+` FOR UPDATE`, arg)
	lic, err := scanLicenseRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrNotFound
		}
		t.logger.Error("Failed to lock license row", zap.Error(err))
		return nil, classify(err, "lock license")
	}
	return lic, nil
}

func (t *pgTx) LockByKey(ctx context.Context, key string) (*license.License, error) {
	return t.lock(ctx, "license_key = $1", key)
}

func (t *pgTx) LockByID(ctx context.Context, id uuid.UUID) (*license.License, error) {
	return t.lock(ctx, "id = $1", id)
}

func (t *pgTx) Update(ctx context.Context, lic *license.License) error {
	query := `
        UPDATE licenses SET
            license_type = $1,
            status = $2,
            max_devices = $3,
            activated_devices = $4,
            expires_at = $5,
            grace_period_days = $6,
            features = $7,
            notes = $8,
            last_check_in = $9,
            updated_at = NOW()
        WHERE id = $10
    `
	cmdTag, err := t.tx.Exec(ctx, query,
		string(lic.Type),
		string(lic.Status),
		lic.MaxDevices,
		lic.ActivatedDevices,
		lic.ExpiresAt,
		lic.GracePeriodDays,
		lic.Features,
		lic.Notes,
		lic.LastCheckIn,
		lic.ID,
	)
	if err != nil {
		t.logger.Error("Failed to update license in database", zap.String("id", lic.ID.String()), zap.Error(err))
		return classify(err, "update license")
	}
	if cmdTag.RowsAffected() == 0 {
		t.logger.Warn("Attempted to update license, but no rows were affected", zap.String("id", lic.ID.String()))
		return license.ErrNotFound
	}
	return nil
}

func (t *pgTx) FindActivation(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*license.Activation, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT`+activationColumns+` FROM license_activations WHERE license_id = $1 AND machine_fingerprint = $2`,
		licenseID, fingerprint,
	)
	a, err := scanActivationRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrActivationNotFound
		}
		return nil, classify(err, "find activation")
	}
	return a, nil
}

func (t *pgTx) FindActivationByID(ctx context.Context, id uuid.UUID) (*license.Activation, error) {
	row := t.tx.QueryRow(ctx, `SELECT`+activationColumns+` FROM license_activations WHERE id = $1`, id)
	a, err := scanActivationRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrActivationNotFound
		}
		return nil, classify(err, "find activation by id")
	}
	return a, nil
}

func (t *pgTx) CreateActivation(ctx context.Context, a *license.Activation) (uuid.UUID, error) {
	query := `
        INSERT INTO license_activations (
            license_id, machine_fingerprint, machine_name, os_info, ip_address,
            is_active, activated_at, last_seen
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	var id uuid.UUID
	err := t.tx.QueryRow(ctx, query,
		a.LicenseID,
		a.MachineFingerprint,
		a.MachineName,
		a.OSInfo,
		a.IPAddress,
		a.IsActive,
		a.ActivatedAt,
		a.LastSeen,
	).Scan(&id)
	if err != nil {
		t.logger.Error("Failed to create activation", zap.String("license_id", a.LicenseID.String()), zap.Error(err))
		return uuid.Nil, classify(err, "create activation")
	}
	return id, nil
}

func (t *pgTx) UpdateActivation(ctx context.Context, a *license.Activation) error {
	query := `
        UPDATE license_activations SET
            machine_name = $1,
            os_info = $2,
            ip_address = $3,
            is_active = $4,
            activated_at = $5,
            last_seen = $6,
            deactivated_at = $7
        WHERE id = $8
    `
	cmdTag, err := t.tx.Exec(ctx, query,
		a.MachineName,
		a.OSInfo,
		a.IPAddress,
		a.IsActive,
		a.ActivatedAt,
		a.LastSeen,
		a.DeactivatedAt,
		a.ID,
	)
	if err != nil {
		t.logger.Error("Failed to update activation", zap.String("id", a.ID.String()), zap.Error(err))
		return classify(err, "update activation")
	}
	if cmdTag.RowsAffected() == 0 {
		return license.ErrActivationNotFound
	}
	return nil
}

func (t *pgTx) DeactivateAll(ctx context.Context, licenseID uuid.UUID, at time.Time) (int64, error) {
	cmdTag, err := t.tx.Exec(ctx,
		`UPDATE license_activations SET is_active = FALSE, deactivated_at = $1 WHERE license_id = $2 AND is_active`,
		at, licenseID,
	)
	if err != nil {
		t.logger.Error("Failed to deactivate license activations", zap.String("license_id", licenseID.String()), zap.Error(err))
		return 0, classify(err, "deactivate activations")
	}
	return cmdTag.RowsAffected(), nil
}
