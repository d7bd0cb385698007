package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/device-license-service/internal/domain/company"
	"go.uber.org/zap"
)

type CompanyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCompanyRepository(db *pgxpool.Pool, logger *zap.Logger) *CompanyRepository {
	return &CompanyRepository{
		db:     db,
		logger: logger.Named("CompanyRepository"),
	}
}

var _ company.Repository = (*CompanyRepository)(nil)

func (r *CompanyRepository) FindByID(ctx context.Context, id uuid.UUID) (*company.Company, error) {
	query := `
        SELECT id, name, username, password_hash, phone, address, logo_url,
               currency_symbol, page_permissions
        FROM companies
        WHERE id = $1
    `
	var c company.Company
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.Username,
		&c.PasswordHash,
		&c.Phone,
		&c.Address,
		&c.LogoURL,
		&c.CurrencySymbol,
		&c.PagePermissions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Company not found", zap.String("id", id.String()))
			return nil, company.ErrNotFound
		}
		r.logger.Error("Failed to find company", zap.String("id", id.String()), zap.Error(err))
		return nil, classify(err, "find company")
	}
	return &c, nil
}
