package company

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("company not found")

type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Company, error)
}
