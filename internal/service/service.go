package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/makkenzo/device-license-service/internal/domain/license"
	"github.com/makkenzo/device-license-service/internal/ierr"
	"go.uber.org/zap"
)

// Clock returns the current time. Services never call time.Now directly.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

const maxTxAttempts = 3

// runTx retries fn from scratch while the store reports a transient failure.
// Each attempt is a fresh transaction, so nothing from a failed attempt survives.
func runTx(ctx context.Context, repo license.Repository, logger *zap.Logger, op string, fn func(tx license.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = repo.InTx(ctx, fn)
		if err == nil || !errors.Is(err, license.ErrTransient) {
			return err
		}
		logger.Warn("Transient store failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %s: %v", ierr.ErrTransientStore, op, err)
}

// applyRevocation flips the license to revoked and deactivates every device
// bound to it. It must run inside the transaction that locked lic.
func applyRevocation(ctx context.Context, tx license.Tx, lic *license.License, now time.Time) (int64, error) {
	n, err := tx.DeactivateAll(ctx, lic.ID, now)
	if err != nil {
		return 0, err
	}
	lic.Status = license.StatusRevoked
	lic.ActivatedDevices = 0
	if err := tx.Update(ctx, lic); err != nil {
		return 0, err
	}
	return n, nil
}

func mapLicenseErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, license.ErrNotFound):
		return fmt.Errorf("%w: license", ierr.ErrNotFound)
	case errors.Is(err, license.ErrActivationNotFound):
		return fmt.Errorf("%w: activation", ierr.ErrNotFound)
	}
	return err
}
