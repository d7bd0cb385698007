package memstorage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/device-license-service/internal/domain/license"
)

type state struct {
	licenses    map[uuid.UUID]*license.License
	byKey       map[string]uuid.UUID
	activations map[uuid.UUID]*license.Activation
}

func (s *state) clone() *state {
	c := &state{
		licenses:    make(map[uuid.UUID]*license.License, len(s.licenses)),
		byKey:       make(map[string]uuid.UUID, len(s.byKey)),
		activations: make(map[uuid.UUID]*license.Activation, len(s.activations)),
	}
	for id, l := range s.licenses {
		cp := *l
		c.licenses[id] = &cp
	}
	for k, id := range s.byKey {
		c.byKey[k] = id
	}
	for id, a := range s.activations {
		cp := *a
		c.activations[id] = &cp
	}
	return c
}

// LicenseRepository keeps licenses and activations in memory. A transaction
// holds the store mutex for its whole duration and works on a private copy
// that replaces the live state only when fn returns nil.
type LicenseRepository struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
	fault func(op string) error
}

func NewLicenseRepository(now func() time.Time) *LicenseRepository {
	if now == nil {
		now = time.Now
	}
	return &LicenseRepository{
		state: &state{
			licenses:    make(map[uuid.UUID]*license.License),
			byKey:       make(map[string]uuid.UUID),
			activations: make(map[uuid.UUID]*license.Activation),
		},
		now: now,
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

// SetFault installs a hook consulted before every write; a non-nil return
// fails that write.
func (r *LicenseRepository) SetFault(fn func(op string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fault = fn
}

func (r *LicenseRepository) checkFault(op string) error {
	if r.fault == nil {
		return nil
	}
	if err := r.fault(op); err != nil {
		return fmt.Errorf("%w: %s: %v", license.ErrTransient, op, err)
	}
	return nil
}

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkFault("create_license"); err != nil {
		return uuid.Nil, err
	}
	if _, exists := r.state.byKey[lic.LicenseKey]; exists {
		return uuid.Nil, license.ErrDuplicateKey
	}

	cp := *lic
	cp.ID = uuid.New()
	now := r.now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.state.licenses[cp.ID] = &cp
	r.state.byKey[cp.LicenseKey] = cp.ID
	return cp.ID, nil
}

func (r *LicenseRepository) FindByID(ctx context.Context, id uuid.UUID) (*license.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return findByID(r.state, id)
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return findByKey(r.state, key)
}

func (r *LicenseRepository) List(ctx context.Context, params license.ListParams) ([]*license.Summary, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := make(map[uuid.UUID]int)
	for _, a := range r.state.activations {
		if a.IsActive {
			active[a.LicenseID]++
		}
	}

	matched := make([]*license.Summary, 0, len(r.state.licenses))
	for _, l := range r.state.licenses {
		if params.CompanyID != nil && l.CompanyID != *params.CompanyID {
			continue
		}
		if params.Status != nil && l.Status != *params.Status {
			continue
		}
		matched = append(matched, &license.Summary{License: *l, ActiveActivations: active[l.ID]})
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if params.Offset > 0 {
		if params.Offset >= len(matched) {
			return []*license.Summary{}, total, nil
		}
		matched = matched[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}
	return matched, total, nil
}

func (r *LicenseRepository) ListActivations(ctx context.Context, licenseID uuid.UUID) ([]*license.Activation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*license.Activation, 0)
	for _, a := range r.state.activations {
		if a.LicenseID == licenseID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ActivatedAt.Before(out[j].ActivatedAt)
	})
	return out, nil
}

func (r *LicenseRepository) InTx(ctx context.Context, fn func(tx license.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := r.state.clone()
	if err := fn(&memTx{repo: r, state: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.state = staged
	return nil
}

type memTx struct {
	repo  *LicenseRepository
	state *state
}

func (t *memTx) LockByKey(ctx context.Context, key string) (*license.License, error) {
	return findByKey(t.state, key)
}

func (t *memTx) LockByID(ctx context.Context, id uuid.UUID) (*license.License, error) {
	return findByID(t.state, id)
}

func (t *memTx) Update(ctx context.Context, lic *license.License) error {
	if err := t.repo.checkFault("update_license"); err != nil {
		return err
	}
	cur, ok := t.state.licenses[lic.ID]
	if !ok {
		return license.ErrNotFound
	}
	cp := *lic
	cp.LicenseKey = cur.LicenseKey
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = t.repo.now()
	t.state.licenses[cp.ID] = &cp
	return nil
}

func (t *memTx) FindActivation(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*license.Activation, error) {
	for _, a := range t.state.activations {
		if a.LicenseID == licenseID && a.MachineFingerprint == fingerprint {
			cp := *a
			return &cp, nil
		}
	}
	return nil, license.ErrActivationNotFound
}

func (t *memTx) FindActivationByID(ctx context.Context, id uuid.UUID) (*license.Activation, error) {
	a, ok := t.state.activations[id]
	if !ok {
		return nil, license.ErrActivationNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) CreateActivation(ctx context.Context, a *license.Activation) (uuid.UUID, error) {
	if err := t.repo.checkFault("create_activation"); err != nil {
		return uuid.Nil, err
	}
	for _, existing := range t.state.activations {
		if existing.LicenseID == a.LicenseID && existing.MachineFingerprint == a.MachineFingerprint {
			return uuid.Nil, fmt.Errorf("activation for fingerprint already exists on license %s", a.LicenseID)
		}
	}
	cp := *a
	cp.ID = uuid.New()
	t.state.activations[cp.ID] = &cp
	return cp.ID, nil
}

func (t *memTx) UpdateActivation(ctx context.Context, a *license.Activation) error {
	if err := t.repo.checkFault("update_activation"); err != nil {
		return err
	}
	if _, ok := t.state.activations[a.ID]; !ok {
		return license.ErrActivationNotFound
	}
	cp := *a
	t.state.activations[cp.ID] = &cp
	return nil
}

func (t *memTx) DeactivateAll(ctx context.Context, licenseID uuid.UUID, at time.Time) (int64, error) {
	if err := t.repo.checkFault("deactivate_all"); err != nil {
		return 0, err
	}
	var n int64
	for _, a := range t.state.activations {
		if a.LicenseID == licenseID && a.IsActive {
			a.IsActive = false
			a.DeactivatedAt.Time = at
			a.DeactivatedAt.Valid = true
			n++
		}
	}
	return n, nil
}

func findByID(s *state, id uuid.UUID) (*license.License, error) {
	l, ok := s.licenses[id]
	if !ok {
		return nil, license.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func findByKey(s *state, key string) (*license.License, error) {
	id, ok := s.byKey[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	return findByID(s, id)
}
