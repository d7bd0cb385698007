package memstorage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/makkenzo/device-license-service/internal/domain/company"
)

type CompanyRepository struct {
	mu        sync.RWMutex
	companies map[uuid.UUID]*company.Company
}

func NewCompanyRepository() *CompanyRepository {
	return &CompanyRepository{
		companies: make(map[uuid.UUID]*company.Company),
	}
}

var _ company.Repository = (*CompanyRepository)(nil)

// Put inserts or replaces a company. Companies are owned by the ERP, so this
// only exists to seed development and test stores.
func (r *CompanyRepository) Put(c *company.Company) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
		c.ID = cp.ID
	}
	r.companies[cp.ID] = &cp
}

func (r *CompanyRepository) FindByID(ctx context.Context, id uuid.UUID) (*company.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.companies[id]
	if !ok {
		return nil, company.ErrNotFound
	}
	companyCopy := *c
	return &companyCopy, nil
}
