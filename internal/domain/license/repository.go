package license

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("license not found")
	ErrActivationNotFound = errors.New("activation not found")
	ErrDuplicateKey       = errors.New("license key already exists")
	// ErrTransient marks store failures that left nothing written and may be retried.
	ErrTransient = errors.New("license store temporarily unavailable")
)

type ListParams struct {
	CompanyID *uuid.UUID
	Status    *LicenseStatus
	Limit     int
	Offset    int
}

// Repository is the read side plus the transactional entry point.
// Every mutation of License counters or Activation rows goes through InTx.
type Repository interface {
	Create(ctx context.Context, license *License) (uuid.UUID, error)
	FindByID(ctx context.Context, id uuid.UUID) (*License, error)
	FindByKey(ctx context.Context, key string) (*License, error)
	List(ctx context.Context, params ListParams) ([]*Summary, int64, error)
	ListActivations(ctx context.Context, licenseID uuid.UUID) ([]*Activation, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a unit of work. Lock* calls hold the license row until the
// transaction ends, which serializes concurrent activations of one license.
type Tx interface {
	LockByKey(ctx context.Context, key string) (*License, error)
	LockByID(ctx context.Context, id uuid.UUID) (*License, error)
	Update(ctx context.Context, license *License) error

	FindActivation(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*Activation, error)
	FindActivationByID(ctx context.Context, id uuid.UUID) (*Activation, error)
	CreateActivation(ctx context.Context, activation *Activation) (uuid.UUID, error)
	UpdateActivation(ctx context.Context, activation *Activation) error
	DeactivateAll(ctx context.Context, licenseID uuid.UUID, at time.Time) (int64, error)
}
