package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"reelpass/pkg/domain"
	"reelpass/pkg/errors"
)

const deviceColumns = `id, purchase_id, device_fingerprint, device_name,
	first_used_at, last_used_at, is_active, deactivated_at`

const uniqueViolation = "23505"

type DeviceRepository struct {
	db *sqlx.DB
}

func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// RegisterDevice admits a fingerprint under the purchase's ceiling in one
// transaction. The purchase row is locked FOR UPDATE, which serialises
// concurrent registrations against the same purchase.
func (r *DeviceRepository) RegisterDevice(ctx context.Context, purchaseID uuid.UUID, fingerprint, deviceName string, now time.Time) (*domain.RegistrationResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	p := &domain.Purchase{}
	err = tx.GetContext(ctx, p,
		`SELECT `+purchaseColumns+` FROM entitlement_schema.purchases WHERE id = $1 FOR UPDATE`, purchaseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrPurchaseNotFound
		}
		return nil, errors.Wrap(err, "failed to lock purchase")
	}

	var active int
	err = tx.GetContext(ctx, &active,
		`SELECT COUNT(*) FROM entitlement_schema.purchase_devices WHERE purchase_id = $1 AND is_active`, purchaseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count devices")
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

	existing := &domain.PurchaseDevice{}
	err = tx.GetContext(ctx, existing, `
		UPDATE entitlement_schema.purchase_devices SET last_used_at = $3
		WHERE purchase_id = $1 AND device_fingerprint = $2 AND is_active
		RETURNING `+deviceColumns, purchaseID, fingerprint, now)
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, errors.Wrap(err, "failed to commit device touch")
		}
		return &domain.RegistrationResult{
			Success:     true,
			Outcome:     domain.RegistrationReused,
			DeviceCount: active,
			MaxDevices:  p.MaxDevices,
			Device:      existing,
		}, nil
	case err != sql.ErrNoRows:
		return nil, errors.Wrap(err, "failed to touch device")
	}

	if active >= p.MaxDevices {
		return &domain.RegistrationResult{
			Error:       "device limit exceeded",
			Outcome:     domain.RegistrationLimitExceeded,
			DeviceCount: active,
			MaxDevices:  p.MaxDevices,
		}, nil
	}

	d := &domain.PurchaseDevice{}
	err = tx.GetContext(ctx, d, `
		INSERT INTO entitlement_schema.purchase_devices (
			id, purchase_id, device_fingerprint, device_name, first_used_at, last_used_at, is_active
		) VALUES ($1, $2, $3, $4, $5, $5, TRUE)
		RETURNING `+deviceColumns, uuid.New(), purchaseID, fingerprint, deviceName, now)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, errors.ErrConcurrentUpdate
		}
		return nil, errors.Wrap(err, "failed to insert device")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit device registration")
	}

	return &domain.RegistrationResult{
		Success:     true,
		Outcome:     domain.RegistrationAdmitted,
		DeviceCount: active + 1,
		MaxDevices:  p.MaxDevices,
		Device:      d,
	}, nil
}

func (r *DeviceRepository) Deactivate(ctx context.Context, purchaseID, deviceID uuid.UUID, at time.Time) error {
	query := `
		UPDATE entitlement_schema.purchase_devices SET
			is_active = FALSE,
			deactivated_at = $3
		WHERE purchase_id = $1 AND id = $2 AND is_active
	`
	result, err := r.db.ExecContext(ctx, query, purchaseID, deviceID, at)
	if err != nil {
		return errors.Wrap(err, "failed to deactivate device")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	err = r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM entitlement_schema.purchase_devices WHERE purchase_id = $1 AND id = $2)`,
		purchaseID, deviceID)
	if err != nil {
		return errors.Wrap(err, "failed to check device")
	}
	if !exists {
		return errors.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepository) FindActiveByPurchase(ctx context.Context, purchaseID uuid.UUID) ([]*domain.PurchaseDevice, error) {
	devices := []*domain.PurchaseDevice{}
	query := `SELECT ` + deviceColumns + ` FROM entitlement_schema.purchase_devices
		WHERE purchase_id = $1 AND is_active ORDER BY first_used_at`
	err := r.db.SelectContext(ctx, &devices, query, purchaseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find devices by purchase")
	}
	return devices, nil
}
