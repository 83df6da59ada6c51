package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"reelpass/pkg/domain"
	"reelpass/pkg/errors"
)

const purchaseColumns = `id, user_id, movie_id, tier_id, purchased_at, expires_at,
	playback_started_at, playback_expires_at, playback_hours, max_devices,
	is_active, revoked_at, revoked_reason`

type PurchaseRepository struct {
	db *sqlx.DB
}

func NewPurchaseRepository(db *sqlx.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) Create(ctx context.Context, p *domain.Purchase) error {
	query := `
		INSERT INTO entitlement_schema.purchases (
			id, user_id, movie_id, tier_id, purchased_at, expires_at,
			playback_hours, max_devices, is_active
		) VALUES (
			:id, :user_id, :movie_id, :tier_id, :purchased_at, :expires_at,
			:playback_hours, :max_devices, :is_active
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, p)
	return errors.Wrap(err, "failed to create purchase")
}

func (r *PurchaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error) {
	p := &domain.Purchase{}
	query := `SELECT ` + purchaseColumns + ` FROM entitlement_schema.purchases WHERE id = $1`
	err := r.db.GetContext(ctx, p, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrPurchaseNotFound
		}
		return nil, errors.Wrap(err, "failed to find purchase by id")
	}
	return p, nil
}

func (r *PurchaseRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Purchase, error) {
	if limit <= 0 {
		limit = 50
	}
	var purchases []*domain.Purchase
	query := `SELECT ` + purchaseColumns + ` FROM entitlement_schema.purchases
		WHERE user_id = $1 ORDER BY purchased_at DESC LIMIT $2 OFFSET $3`
	err := r.db.SelectContext(ctx, &purchases, query, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find purchases by user id")
	}
	return purchases, nil
}

// StartPlayback opens the playback window with a conditional update so that
// concurrent starts cannot reset or extend it.
func (r *PurchaseRepository) StartPlayback(ctx context.Context, id uuid.UUID, startedAt, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE entitlement_schema.purchases SET
			playback_started_at = $2,
			playback_expires_at = $3
		WHERE id = $1
			AND playback_started_at IS NULL
			AND is_active
			AND expires_at >= $2
	`
	result, err := r.db.ExecContext(ctx, query, id, startedAt, expiresAt)
	if err != nil {
		return false, errors.Wrap(err, "failed to start playback")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows == 1, nil
}

func (r *PurchaseRepository) Deactivate(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	query := `
		UPDATE entitlement_schema.purchases SET
			is_active = FALSE,
			revoked_at = $2,
			revoked_reason = NULLIF($3, '')
		WHERE id = $1 AND is_active
	`
	result, err := r.db.ExecContext(ctx, query, id, at, reason)
	if err != nil {
		return errors.Wrap(err, "failed to deactivate purchase")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	err = r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM entitlement_schema.purchases WHERE id = $1)`, id)
	if err != nil {
		return errors.Wrap(err, "failed to check purchase")
	}
	if !exists {
		return errors.ErrPurchaseNotFound
	}
	return nil
}
