// Package entitlement governs purchase creation, playback windows and
// device registration.
package entitlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelpass/internal/fingerprint"
	"reelpass/internal/metrics"
	"reelpass/pkg/domain"
	"reelpass/pkg/logger"
	"reelpass/pkg/validator"
)

// PurchaseRepository persists purchases.
type PurchaseRepository interface {
	Create(ctx context.Context, p *domain.Purchase) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Purchase, error)
	// StartPlayback sets the playback window only if it is unset and the
	// start window is still open at now. It reports whether a row changed.
	StartPlayback(ctx context.Context, id uuid.UUID, startedAt, expiresAt time.Time) (bool, error)
	Deactivate(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
}

// DeviceRepository persists devices. RegisterDevice must run as one atomic
// unit per purchase.
type DeviceRepository interface {
	RegisterDevice(ctx context.Context, purchaseID uuid.UUID, fingerprint, deviceName string, now time.Time) (*domain.RegistrationResult, error)
	Deactivate(ctx context.Context, purchaseID, deviceID uuid.UUID, at time.Time) error
	FindActiveByPurchase(ctx context.Context, purchaseID uuid.UUID) ([]*domain.PurchaseDevice, error)
}

// MovieLookup resolves catalog entries.
type MovieLookup interface {
	GetMovie(ctx context.Context, id uuid.UUID) (*domain.Movie, error)
}

// TierCatalog resolves purchase tiers.
type TierCatalog interface {
	Get(id string) (domain.Tier, error)
	ForDevices(maxDevices int) (domain.Tier, error)
}

// Options tune a Service. Zero values select defaults.
type Options struct {
	QueryTimeout time.Duration
	Now          func() time.Time
}

type Service struct {
	purchases PurchaseRepository
	devices   DeviceRepository
	movies    MovieLookup
	tiers     TierCatalog
	metrics   *metrics.Entitlement
	logger    logger.Logger
	timeout   time.Duration
	now       func() time.Time
}

func NewService(
	purchases PurchaseRepository,
	devices DeviceRepository,
	movies MovieLookup,
	tiers TierCatalog,
	m *metrics.Entitlement,
	log logger.Logger,
	opts Options,
) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		purchases: purchases,
		devices:   devices,
		movies:    movies,
		tiers:     tiers,
		metrics:   m,
		logger:    log,
		timeout:   opts.QueryTimeout,
		now:       now,
	}
}

type CreatePurchaseRequest struct {
	MovieID    uuid.UUID `json:"movie_id" validate:"required"`
	TierID     string    `json:"tier_id" validate:"omitempty,max=32"`
	MaxDevices int       `json:"max_devices" validate:"omitempty,min=1,max=10"`
}

type DeviceInput struct {
	Fingerprint string              `json:"device_fingerprint" validate:"omitempty,fingerprint"`
	DeviceName  string              `json:"device_name" validate:"max=64"`
	Signals     fingerprint.Signals `json:"signals"`
	UserAgent   string              `json:"-"`
}

// resolve fills in a derived fingerprint and an inferred device name.
func (in DeviceInput) resolve() (fp, name string) {
	fp = strings.TrimSpace(in.Fingerprint)
	if fp == "" && !in.Signals.Empty() {
		if in.Signals.UserAgent == "" {
			in.Signals.UserAgent = in.UserAgent
		}
		fp = fingerprint.Derive(in.Signals)
	}
	name = strings.TrimSpace(in.DeviceName)
	if name == "" {
		ua := in.Signals.UserAgent
		if ua == "" {
			ua = in.UserAgent
		}
		name = fingerprint.DeviceName(ua)
	}
	return fp, validator.Sanitize(name)
}

// PurchaseView is a purchase with its evaluated state and active devices.
type PurchaseView struct {
	*domain.Purchase
	Usability     domain.Usability         `json:"usability"`
	ActiveDevices []*domain.PurchaseDevice `json:"active_devices"`
}

// PlaybackAuthorization is the result of AuthorizePlayback.
type PlaybackAuthorization struct {
	Purchase       *domain.Purchase           `json:"purchase"`
	Registration   *domain.RegistrationResult `json:"registration"`
	Usability      domain.Usability           `json:"usability"`
	AlreadyStarted bool                       `json:"already_started"`
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) fail(op string, err error, fields map[string]interface{}) error {
	err = storeErr(op, err)
	var perr *PersistenceError
	if errors.As(err, &perr) {
		s.metrics.StoreError(op)
		if fields == nil {
			fields = map[string]interface{}{}
		}
		fields["op"] = op
		fields["error"] = perr.Err.Error()
		fields["timeout"] = perr.Timeout()
		s.logger.Error("Entitlement store failure", fields)
	}
	return err
}

// EvaluateUsability is the pure five-state evaluation of a purchase.
func EvaluateUsability(p *domain.Purchase, now time.Time) domain.Usability {
	return p.Usability(now)
}

// Evaluate returns the purchase's state at the service clock.
func (s *Service) Evaluate(p *domain.Purchase) domain.Usability {
	return p.Usability(s.now())
}

// CreatePurchase issues a purchase for the caller with a 30-day start window.
func (s *Service) CreatePurchase(ctx context.Context, userID uuid.UUID, req *CreatePurchaseRequest) (*domain.Purchase, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	t, err := s.resolveTier(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	movie, err := s.movies.GetMovie(ctx, req.MovieID)
	if err != nil {
		return nil, s.fail("get_movie", err, map[string]interface{}{"movie_id": req.MovieID})
	}
	if !movie.Status.Purchasable() {
		return nil, ErrMovieNotPurchasable
	}

	now := s.now().UTC()
	p := &domain.Purchase{
		ID:            uuid.New(),
		UserID:        userID,
		MovieID:       movie.ID,
		TierID:        t.ID,
		PurchasedAt:   now,
		ExpiresAt:     now.Add(t.AccessWindow()),
		PlaybackHours: t.PlaybackHours,
		MaxDevices:    t.MaxDevices,
		IsActive:      true,
	}
	if err := s.purchases.Create(ctx, p); err != nil {
		return nil, s.fail("create_purchase", err, map[string]interface{}{"user_id": userID, "movie_id": movie.ID})
	}

	s.metrics.PurchaseCreated(t.ID)
	s.logger.Info("Purchase created", map[string]interface{}{
		"purchase_id": p.ID,
		"user_id":     userID,
		"movie_id":    movie.ID,
		"tier":        t.ID,
		"max_devices": p.MaxDevices,
		"expires_at":  p.ExpiresAt,
	})
	return p, nil
}

func (s *Service) resolveTier(req *CreatePurchaseRequest) (domain.Tier, error) {
	if req == nil || req.MovieID == uuid.Nil {
		return domain.Tier{}, ErrInvalidRequest
	}
	if req.TierID != "" {
		t, err := s.tiers.Get(req.TierID)
		if err != nil {
			return domain.Tier{}, errors.Join(ErrInvalidRequest, err)
		}
		if req.MaxDevices != 0 && req.MaxDevices != t.MaxDevices {
			return domain.Tier{}, ErrInvalidRequest
		}
		return t, nil
	}
	if req.MaxDevices < 1 {
		return domain.Tier{}, ErrInvalidRequest
	}
	t, err := s.tiers.ForDevices(req.MaxDevices)
	if err != nil {
		return domain.Tier{}, errors.Join(ErrInvalidRequest, err)
	}
	return t, nil
}

// loadOwned returns the purchase only if it belongs to userID.
func (s *Service) loadOwned(ctx context.Context, userID, purchaseID uuid.UUID) (*domain.Purchase, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	p, err := s.purchases.FindByID(ctx, purchaseID)
	if err != nil {
		return nil, s.fail("find_purchase", err, map[string]interface{}{"purchase_id": purchaseID})
	}
	if p.UserID != userID {
		return nil, ErrPurchaseNotFound
	}
	return p, nil
}

// GetPurchase returns the caller's purchase with its state and active devices.
func (s *Service) GetPurchase(ctx context.Context, userID, purchaseID uuid.UUID) (*PurchaseView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.loadOwned(ctx, userID, purchaseID)
	if err != nil {
		return nil, err
	}
	devices, err := s.devices.FindActiveByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, s.fail("list_devices", err, map[string]interface{}{"purchase_id": purchaseID})
	}
	return &PurchaseView{Purchase: p, Usability: p.Usability(s.now()), ActiveDevices: devices}, nil
}

// ListPurchases returns the caller's purchase history, newest first.
func (s *Service) ListPurchases(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*PurchaseView, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ps, err := s.purchases.FindByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, s.fail("list_purchases", err, map[string]interface{}{"user_id": userID})
	}
	now := s.now()
	views := make([]*PurchaseView, 0, len(ps))
	for _, p := range ps {
		views = append(views, &PurchaseView{Purchase: p, Usability: p.Usability(now)})
	}
	return views, nil
}

// BeginPlayback opens the playback window exactly once. On an already
// started purchase it returns the stored purchase unchanged together with
// ErrAlreadyStarted.
func (s *Service) BeginPlayback(ctx context.Context, userID, purchaseID uuid.UUID) (*domain.Purchase, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.loadOwned(ctx, userID, purchaseID)
	if err != nil {
		return nil, err
	}
	return s.beginPlayback(ctx, p)
}

func (s *Service) beginPlayback(ctx context.Context, p *domain.Purchase) (*domain.Purchase, error) {
	now := s.now().UTC()
	switch u := p.Usability(now); u {
	case domain.UsabilityInProgress, domain.UsabilityPlaybackWindowExpired:
		return p, ErrAlreadyStarted
	case domain.UsabilityNotYetStarted:
	default:
		return nil, &NotUsableError{Usability: u}
	}

	hours := p.PlaybackHours
	if hours <= 0 {
		t, err := s.tiers.Get(p.TierID)
		if err != nil {
			return nil, err
		}
		hours = t.PlaybackHours
	}
	expires := now.Add(time.Duration(hours) * time.Hour)

	changed, err := s.purchases.StartPlayback(ctx, p.ID, now, expires)
	if err != nil {
		return nil, s.fail("start_playback", err, map[string]interface{}{"purchase_id": p.ID})
	}
	if !changed {
		// Lost to a concurrent start or revocation; the store decides.
		current, err := s.purchases.FindByID(ctx, p.ID)
		if err != nil {
			return nil, s.fail("find_purchase", err, map[string]interface{}{"purchase_id": p.ID})
		}
		if current.Started() {
			return current, ErrAlreadyStarted
		}
		return nil, &NotUsableError{Usability: current.Usability(now)}
	}

	p.PlaybackStartedAt = &now
	p.PlaybackExpiresAt = &expires
	s.metrics.PlaybackStarted()
	s.logger.Info("Playback started", map[string]interface{}{
		"purchase_id":         p.ID,
		"playback_expires_at": expires,
	})
	return p, nil
}

// RegisterDevice admits the device to the purchase's active set under its
// device ceiling. Re-registering an active fingerprint consumes no slot.
func (s *Service) RegisterDevice(ctx context.Context, userID, purchaseID uuid.UUID, in DeviceInput) (*domain.RegistrationResult, error) {
	fp, name := in.resolve()
	if fp == "" {
		return nil, ErrInvalidRequest
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.loadOwned(ctx, userID, purchaseID); err != nil {
		return nil, err
	}
	return s.registerDevice(ctx, purchaseID, fp, name)
}

func (s *Service) registerDevice(ctx context.Context, purchaseID uuid.UUID, fp, name string) (*domain.RegistrationResult, error) {
	res, err := s.devices.RegisterDevice(ctx, purchaseID, fp, name, s.now().UTC())
	if err != nil {
		s.metrics.DeviceRegistration("error")
		return nil, s.fail("register_device", err, map[string]interface{}{"purchase_id": purchaseID})
	}
	s.metrics.DeviceRegistration(string(res.Outcome))

	fields := map[string]interface{}{
		"purchase_id":  purchaseID,
		"outcome":      res.Outcome,
		"device_count": res.DeviceCount,
		"max_devices":  res.MaxDevices,
	}
	switch res.Outcome {
	case domain.RegistrationLimitExceeded:
		s.logger.Warn("Device limit reached", fields)
		return res, &DeviceLimitError{Count: res.DeviceCount, Max: res.MaxDevices}
	case domain.RegistrationNotUsable:
		s.logger.Warn("Device registration on unusable purchase", fields)
		return res, &NotUsableError{Usability: res.Usability}
	}
	s.logger.Info("Device registered", fields)
	return res, nil
}

// AuthorizePlayback is called by a player before its first stream request:
// it registers the device and then opens the playback window if needed.
func (s *Service) AuthorizePlayback(ctx context.Context, userID, purchaseID uuid.UUID, in DeviceInput) (*PlaybackAuthorization, error) {
	fp, name := in.resolve()
	if fp == "" {
		return nil, ErrInvalidRequest
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.loadOwned(ctx, userID, purchaseID)
	if err != nil {
		return nil, err
	}
	reg, err := s.registerDevice(ctx, purchaseID, fp, name)
	if err != nil {
		return nil, err
	}

	started, err := s.beginPlayback(ctx, p)
	already := errors.Is(err, ErrAlreadyStarted)
	if err != nil && !already {
		return nil, err
	}
	return &PlaybackAuthorization{
		Purchase:       started,
		Registration:   reg,
		Usability:      started.Usability(s.now()),
		AlreadyStarted: already,
	}, nil
}

// DeactivateDevice frees the device's slot. Deactivating an inactive device
// is a no-op.
func (s *Service) DeactivateDevice(ctx context.Context, userID, purchaseID, deviceID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.loadOwned(ctx, userID, purchaseID); err != nil {
		return err
	}
	if err := s.devices.Deactivate(ctx, purchaseID, deviceID, s.now().UTC()); err != nil {
		return s.fail("deactivate_device", err, map[string]interface{}{"purchase_id": purchaseID, "device_id": deviceID})
	}
	s.logger.Info("Device deactivated", map[string]interface{}{"purchase_id": purchaseID, "device_id": deviceID})
	return nil
}

// ListDevices returns the active devices of the caller's purchase.
func (s *Service) ListDevices(ctx context.Context, userID, purchaseID uuid.UUID) ([]*domain.PurchaseDevice, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.loadOwned(ctx, userID, purchaseID); err != nil {
		return nil, err
	}
	devices, err := s.devices.FindActiveByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, s.fail("list_devices", err, map[string]interface{}{"purchase_id": purchaseID})
	}
	return devices, nil
}

// RevokePurchase administratively deactivates a purchase. Idempotent.
func (s *Service) RevokePurchase(ctx context.Context, purchaseID uuid.UUID, reason string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	reason = validator.Sanitize(reason)
	if err := s.purchases.Deactivate(ctx, purchaseID, reason, s.now().UTC()); err != nil {
		return s.fail("revoke_purchase", err, map[string]interface{}{"purchase_id": purchaseID})
	}
	s.logger.Warn("Purchase revoked", map[string]interface{}{"purchase_id": purchaseID, "reason": reason})
	return nil
}
