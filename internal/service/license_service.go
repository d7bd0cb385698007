package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/device-license-service/internal/config"
	"github.com/makkenzo/device-license-service/internal/domain/company"
	"github.com/makkenzo/device-license-service/internal/domain/license"
	"github.com/makkenzo/device-license-service/internal/handler/dto"
	"github.com/makkenzo/device-license-service/internal/ierr"
	"github.com/makkenzo/device-license-service/internal/metrics"
	"github.com/makkenzo/device-license-service/internal/util"
	"go.uber.org/zap"
)

type LicenseService struct {
	repo      license.Repository
	companies company.Repository
	keys      *util.KeyGenerator
	defaults  config.ActivationConfig
	now       Clock
	logger    *zap.Logger
}

func NewLicenseService(
	repo license.Repository,
	companies company.Repository,
	keys *util.KeyGenerator,
	defaults config.ActivationConfig,
	clock Clock,
	logger *zap.Logger,
) *LicenseService {
	if clock == nil {
		clock = systemClock
	}
	if defaults.KeyGenerationAttempts <= 0 {
		defaults.KeyGenerationAttempts = 5
	}
	if defaults.DefaultMaxDevices <= 0 {
		defaults.DefaultMaxDevices = 1
	}
	if defaults.DefaultTermMonths <= 0 {
		defaults.DefaultTermMonths = 12
	}
	if defaults.DefaultGraceDays < 0 {
		defaults.DefaultGraceDays = 0
	}
	return &LicenseService{
		repo:      repo,
		companies: companies,
		keys:      keys,
		defaults:  defaults,
		now:       clock,
		logger:    logger.Named("LicenseService"),
	}
}

// Now exposes the service clock so handlers render grace state consistently.
func (s *LicenseService) Now() time.Time {
	return s.now()
}

func (s *LicenseService) CreateLicense(ctx context.Context, req *dto.CreateLicenseRequest) (*license.License, error) {
	s.logger.Info("Attempting to create a new license", zap.String("company_id", req.CompanyID.String()))

	if _, err := s.companies.FindByID(ctx, req.CompanyID); err != nil {
		if errors.Is(err, company.ErrNotFound) {
			return nil, fmt.Errorf("%w: company %s does not exist", ierr.ErrValidation, req.CompanyID)
		}
		return nil, fmt.Errorf("failed to load company %s: %w", req.CompanyID, err)
	}

	now := s.now()
	newLicense := &license.License{
		CompanyID:       req.CompanyID,
		Type:            license.TypeOffline,
		Status:          license.StatusActive,
		MaxDevices:      s.defaults.DefaultMaxDevices,
		IssuedAt:        now,
		GracePeriodDays: s.defaults.DefaultGraceDays,
		Features:        license.NullString(req.Features),
		Notes:           license.NullString(req.Notes),
	}
	if req.LicenseType != nil {
		newLicense.Type = license.LicenseType(*req.LicenseType)
	}
	if req.MaxDevices != nil {
		newLicense.MaxDevices = *req.MaxDevices
	}
	if req.GracePeriodDays != nil {
		newLicense.GracePeriodDays = *req.GracePeriodDays
	}

	if !newLicense.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown license type %q", ierr.ErrValidation, newLicense.Type)
	}
	if newLicense.MaxDevices < 1 {
		return nil, fmt.Errorf("%w: max_devices must be at least 1", ierr.ErrValidation)
	}
	if err := validateGraceDays(newLicense.GracePeriodDays); err != nil {
		return nil, err
	}

	switch {
	case req.ExpiresAt != nil:
		if !req.ExpiresAt.After(now) {
			return nil, fmt.Errorf("%w: expires_at must be in the future", ierr.ErrValidation)
		}
		newLicense.ExpiresAt = req.ExpiresAt.UTC()
	case req.TermMonths != nil:
		if *req.TermMonths < 1 {
			return nil, fmt.Errorf("%w: term_months must be at least 1", ierr.ErrValidation)
		}
		newLicense.ExpiresAt = now.AddDate(0, *req.TermMonths, 0)
	default:
		newLicense.ExpiresAt = now.AddDate(0, s.defaults.DefaultTermMonths, 0)
	}

	insertedID, err := s.insertWithFreshKey(ctx, newLicense)
	if err != nil {
		return nil, err
	}

	createdLicense, err := s.repo.FindByID(ctx, insertedID)
	if err != nil {
		s.logger.Error("Failed to find newly created license by ID", zap.String("id", insertedID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve created license (id: %s): %w", insertedID, err)
	}

	metrics.LifecycleEvents.WithLabelValues("issue").Inc()
	s.logger.Info("License created successfully", zap.String("id", createdLicense.ID.String()), zap.String("key", createdLicense.LicenseKey))
	return createdLicense, nil
}

// insertWithFreshKey draws keys until the store accepts one. The unique
// constraint is the only authority on collisions.
func (s *LicenseService) insertWithFreshKey(ctx context.Context, lic *license.License) (uuid.UUID, error) {
	for attempt := 1; attempt <= s.defaults.KeyGenerationAttempts; attempt++ {
		key, err := s.keys.Generate()
		if err != nil {
			s.logger.Error("Failed to generate license key", zap.Error(err))
			return uuid.Nil, fmt.Errorf("%w: failed generating key: %v", ierr.ErrInternalServer, err)
		}
		lic.LicenseKey = key

		id, err := s.repo.Create(ctx, lic)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, license.ErrDuplicateKey) {
			s.logger.Error("Failed to create license via repository", zap.Error(err))
			if errors.Is(err, license.ErrTransient) {
				return uuid.Nil, fmt.Errorf("%w: %v", ierr.ErrTransientStore, err)
			}
			return uuid.Nil, fmt.Errorf("repository error during license creation: %w", err)
		}

		metrics.KeyCollisions.Inc()
		s.logger.Warn("Generated license key collided, drawing again", zap.Int("attempt", attempt))
	}
	return uuid.Nil, fmt.Errorf("%w: no unique license key after %d attempts", ierr.ErrConflict, s.defaults.KeyGenerationAttempts)
}

func (s *LicenseService) ListLicenses(ctx context.Context, req *dto.ListLicensesRequest) ([]*license.Summary, int64, error) {
	params := license.ListParams{
		Status: req.Status,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if req.CompanyID != "" {
		companyID, err := uuid.Parse(req.CompanyID)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: invalid company_id", ierr.ErrValidation)
		}
		params.CompanyID = &companyID
	}
	licenses, total, err := s.repo.List(ctx, params)
	if err != nil {
		s.logger.Error("Failed to list licenses", zap.Error(err))
		return nil, 0, fmt.Errorf("repository error listing licenses: %w", err)
	}
	s.logger.Debug("Licenses listed", zap.Int("count", len(licenses)), zap.Int64("total", total))
	return licenses, total, nil
}

func (s *LicenseService) GetLicense(ctx context.Context, id uuid.UUID) (*license.License, []*license.Activation, error) {
	lic, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return nil, nil, mapLicenseErr(err)
		}
		s.logger.Error("Failed to get license", zap.String("id", id.String()), zap.Error(err))
		return nil, nil, fmt.Errorf("repository error getting license %s: %w", id, err)
	}

	activations, err := s.repo.ListActivations(ctx, id)
	if err != nil {
		s.logger.Error("Failed to list activations", zap.String("license_id", id.String()), zap.Error(err))
		return nil, nil, fmt.Errorf("repository error listing activations for %s: %w", id, err)
	}
	return lic, activations, nil
}

// UpdateLicense applies administrator-supplied fields. It never touches the
// device counter except through a revocation, which cascades like Revoke.
func (s *LicenseService) UpdateLicense(ctx context.Context, id uuid.UUID, req *dto.UpdateLicenseRequest) (*license.License, error) {
	var lic *license.License

	err := runTx(ctx, s.repo, s.logger, "update_license", func(tx license.Tx) error {
		var err error
		lic, err = tx.LockByID(ctx, id)
		if err != nil {
			return err
		}

		if req.MaxDevices != nil {
			if *req.MaxDevices < lic.ActivatedDevices {
				return fmt.Errorf("%w: %d devices are active, remove devices before lowering max_devices to %d",
					ierr.ErrConflict, lic.ActivatedDevices, *req.MaxDevices)
			}
			lic.MaxDevices = *req.MaxDevices
		}
		if req.GracePeriodDays != nil {
			if err := validateGraceDays(*req.GracePeriodDays); err != nil {
				return err
			}
			lic.GracePeriodDays = *req.GracePeriodDays
		}
		if req.Features != nil {
			lic.Features = license.NullString(req.Features)
		}
		if req.Notes != nil {
			lic.Notes = license.NullString(req.Notes)
		}
		if req.ExpiresAt != nil {
			lic.ExpiresAt = req.ExpiresAt.UTC()
		}

		if req.Status != nil && *req.Status == license.StatusRevoked && lic.Status != license.StatusRevoked {
			_, err := applyRevocation(ctx, tx, lic, s.now())
			return err
		}
		if req.Status != nil {
			lic.Status = *req.Status
		}
		return tx.Update(ctx, lic)
	})
	if err != nil {
		err = mapLicenseErr(err)
		if errors.Is(err, ierr.ErrNotFound) || errors.Is(err, ierr.ErrConflict) || errors.Is(err, ierr.ErrValidation) {
			s.logger.Info("License update rejected", zap.String("id", id.String()), zap.Error(err))
		} else {
			s.logger.Error("Failed to update license", zap.String("id", id.String()), zap.Error(err))
		}
		return nil, err
	}

	metrics.LifecycleEvents.WithLabelValues("update").Inc()
	s.logger.Info("License updated successfully", zap.String("id", lic.ID.String()))
	return lic, nil
}

func validateGraceDays(days int) error {
	if days < 0 || days > license.MaxGracePeriodDays {
		return fmt.Errorf("%w: grace_period_days must be between 0 and %d", ierr.ErrValidation, license.MaxGracePeriodDays)
	}
	return nil
}
