// Package memory is an in-process entitlement and catalog store for local
// development and tests. A single mutex serialises every operation, which
// gives RegisterDevice the same count-and-admit atomicity as the postgres
// transaction.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelpass/pkg/domain"
	"reelpass/pkg/errors"
)

type Store struct {
	mu        sync.Mutex
	purchases map[uuid.UUID]*domain.Purchase
	devices   map[uuid.UUID][]*domain.PurchaseDevice
	movies    map[uuid.UUID]*domain.Movie
}

func NewStore() *Store {
	return &Store{
		purchases: make(map[uuid.UUID]*domain.Purchase),
		devices:   make(map[uuid.UUID][]*domain.PurchaseDevice),
		movies:    make(map[uuid.UUID]*domain.Movie),
	}
}

// Purchases returns the store as a purchase repository.
func (s *Store) Purchases() *PurchaseRepository { return &PurchaseRepository{s} }

// Devices returns the store as a device repository.
func (s *Store) Devices() *DeviceRepository { return &DeviceRepository{s} }

// Movies returns the store as a catalog repository.
func (s *Store) Movies() *MovieRepository { return &MovieRepository{s} }

func copyPurchase(p *domain.Purchase) *domain.Purchase {
	c := *p
	return &c
}

func copyDevice(d *domain.PurchaseDevice) *domain.PurchaseDevice {
	c := *d
	return &c
}

type PurchaseRepository struct{ s *Store }

func (r *PurchaseRepository) Create(ctx context.Context, p *domain.Purchase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.purchases[p.ID] = copyPurchase(p)
	return nil
}

func (r *PurchaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.purchases[id]
	if !ok {
		return nil, errors.ErrPurchaseNotFound
	}
	return copyPurchase(p), nil
}

func (r *PurchaseRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Purchase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Purchase
	for _, p := range r.s.purchases {
		if p.UserID == userID {
			out = append(out, copyPurchase(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return page(out, limit, offset), nil
}

func (r *PurchaseRepository) StartPlayback(ctx context.Context, id uuid.UUID, startedAt, expiresAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.purchases[id]
	if !ok {
		return false, errors.ErrPurchaseNotFound
	}
	if p.PlaybackStartedAt != nil || !p.IsActive || startedAt.After(p.ExpiresAt) {
		return false, nil
	}
	p.PlaybackStartedAt = &startedAt
	p.PlaybackExpiresAt = &expiresAt
	return true, nil
}

func (r *PurchaseRepository) Deactivate(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.purchases[id]
	if !ok {
		return errors.ErrPurchaseNotFound
	}
	if !p.IsActive {
		return nil
	}
	p.IsActive = false
	p.RevokedAt = &at
	if reason != "" {
		p.RevokedReason = &reason
	}
	return nil
}

type DeviceRepository struct{ s *Store }

func (r *DeviceRepository) RegisterDevice(ctx context.Context, purchaseID uuid.UUID, fingerprint, deviceName string, now time.Time) (*domain.RegistrationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.purchases[purchaseID]
	if !ok {
		return nil, errors.ErrPurchaseNotFound
	}

	active := 0
	var existing *domain.PurchaseDevice
	for _, d := range r.s.devices[purchaseID] {
		if !d.IsActive {
			continue
		}
		active++
		if d.DeviceFingerprint == fingerprint {
			existing = d
		}
	}

	if u := p.Usability(now); !u.Usable() {
		return &domain.RegistrationResult{
			Error:       "purchase not usable",
			Outcome:     domain.RegistrationNotUsable,
			DeviceCount: active,
			MaxDevices:  p.MaxDevices,
			Usability:   u,
		}, nil
	}

	if existing != nil {
		existing.LastUsedAt = now
		return &domain.RegistrationResult{
			Success:     true,
			Outcome:     domain.RegistrationReused,
			DeviceCount: active,
			MaxDevices:  p.MaxDevices,
			Device:      copyDevice(existing),
		}, nil
	}

	if active >= p.MaxDevices {
		return &domain.RegistrationResult{
			Error:       "device limit exceeded",
			Outcome:     domain.RegistrationLimitExceeded,
			DeviceCount: active,
			MaxDevices:  p.MaxDevices,
		}, nil
	}

	d := &domain.PurchaseDevice{
		ID:                uuid.New(),
		PurchaseID:        purchaseID,
		DeviceFingerprint: fingerprint,
		DeviceName:        deviceName,
		FirstUsedAt:       now,
		LastUsedAt:        now,
		IsActive:          true,
	}
	r.s.devices[purchaseID] = append(r.s.devices[purchaseID], d)
	return &domain.RegistrationResult{
		Success:     true,
		Outcome:     domain.RegistrationAdmitted,
		DeviceCount: active + 1,
		MaxDevices:  p.MaxDevices,
		Device:      copyDevice(d),
	}, nil
}

func (r *DeviceRepository) Deactivate(ctx context.Context, purchaseID, deviceID uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.devices[purchaseID] {
		if d.ID != deviceID {
			continue
		}
		if d.IsActive {
			d.IsActive = false
			d.DeactivatedAt = &at
		}
		return nil
	}
	return errors.ErrDeviceNotFound
}

func (r *DeviceRepository) FindActiveByPurchase(ctx context.Context, purchaseID uuid.UUID) ([]*domain.PurchaseDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.PurchaseDevice{}
	for _, d := range r.s.devices[purchaseID] {
		if d.IsActive {
			out = append(out, copyDevice(d))
		}
	}
	return out, nil
}

type MovieRepository struct{ s *Store }

// Put adds or replaces a catalog entry. The catalog is read-only to the
// service; Put exists for seeding.
func (r *MovieRepository) Put(m *domain.Movie) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *m
	r.s.movies[m.ID] = &c
}

func (r *MovieRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Movie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.movies[id]
	if !ok {
		return nil, errors.ErrMovieNotFound
	}
	c := *m
	return &c, nil
}

func (r *MovieRepository) List(ctx context.Context, f domain.MovieFilter) ([]*domain.Movie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Movie
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, m := range r.s.movies {
		switch {
		case f.Status != "" && m.Status != f.Status,
			f.Genre != "" && !strings.EqualFold(m.Genre, f.Genre),
			f.Language != "" && !strings.EqualFold(m.Language, f.Language),
			f.State != "" && !strings.EqualFold(m.State, f.State),
			q != "" && !strings.Contains(strings.ToLower(m.Title), q):
			continue
		}
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return page(out, f.Limit, f.Offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
