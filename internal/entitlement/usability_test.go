package entitlement

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"reelpass/pkg/domain"
)

var t0 = time.Date(2026, 5, 10, 20, 0, 0, 0, time.UTC)

func newPurchase() *domain.Purchase {
	return &domain.Purchase{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		MovieID:       uuid.New(),
		TierID:        "duo",
		PurchasedAt:   t0,
		ExpiresAt:     t0.Add(30 * 24 * time.Hour),
		PlaybackHours: 48,
		MaxDevices:    2,
		IsActive:      true,
	}
}

func started(p *domain.Purchase, at time.Time) *domain.Purchase {
	exp := at.Add(time.Duration(p.PlaybackHours) * time.Hour)
	p.PlaybackStartedAt = &at
	p.PlaybackExpiresAt = &exp
	return p
}

func TestEvaluateUsability_PlaybackWindow(t *testing.T) {
	p := started(newPurchase(), t0)

	assert.Equal(t, t0.Add(48*time.Hour), *p.PlaybackExpiresAt)
	assert.Equal(t, domain.UsabilityInProgress, EvaluateUsability(p, t0.Add(47*time.Hour)))
	assert.Equal(t, domain.UsabilityInProgress, EvaluateUsability(p, t0.Add(48*time.Hour)), "boundary is inclusive")
	assert.Equal(t, domain.UsabilityPlaybackWindowExpired, EvaluateUsability(p, t0.Add(49*time.Hour)))
}

func TestEvaluateUsability_StartWindow(t *testing.T) {
	p := newPurchase()

	assert.Equal(t, domain.UsabilityNotYetStarted, EvaluateUsability(p, t0))
	assert.Equal(t, domain.UsabilityNotYetStarted, EvaluateUsability(p, p.ExpiresAt))
	assert.Equal(t, domain.UsabilityStartWindowExpired, EvaluateUsability(p, t0.Add(31*24*time.Hour)))
}

func TestEvaluateUsability_RevokedWins(t *testing.T) {
	p := started(newPurchase(), t0)
	p.IsActive = false

	for _, at := range []time.Time{t0.Add(-time.Hour), t0, t0.Add(time.Hour), t0.Add(90 * 24 * time.Hour)} {
		assert.Equal(t, domain.UsabilityRevoked, EvaluateUsability(p, at))
	}
	assert.Equal(t, domain.UsabilityRevoked, EvaluateUsability(&domain.Purchase{ExpiresAt: t0}, t0))
}

func TestEvaluateUsability_Monotonic(t *testing.T) {
	cases := map[string]*domain.Purchase{
		"unstarted":         newPurchase(),
		"started":           started(newPurchase(), t0.Add(10*24*time.Hour)),
		"last-second start": started(newPurchase(), t0.Add(30*24*time.Hour)),
	}

	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			terminal := false
			for at := t0; at.Before(t0.Add(40 * 24 * time.Hour)); at = at.Add(37 * time.Minute) {
				u := EvaluateUsability(p, at)
				if terminal {
					assert.False(t, u.Usable(), "usable again at %s", at)
				}
				if u.Terminal() {
					terminal = true
				}
			}
			assert.True(t, terminal)
		})
	}
}
