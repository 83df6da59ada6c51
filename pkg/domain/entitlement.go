// Package domain defines the purchase, device and catalog entities.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultAccessDays is the start window granted by every tier.
const DefaultAccessDays = 30

// Usability is the evaluated state of a purchase at a point in time.
type Usability string

const (
	UsabilityNotYetStarted         Usability = "not_yet_started"
	UsabilityStartWindowExpired    Usability = "start_window_expired"
	UsabilityInProgress            Usability = "in_progress"
	UsabilityPlaybackWindowExpired Usability = "playback_window_expired"
	UsabilityRevoked               Usability = "revoked"
)

// Usable reports whether playback may be granted in this state.
func (u Usability) Usable() bool {
	return u == UsabilityNotYetStarted || u == UsabilityInProgress
}

// Terminal reports whether no later evaluation can return a usable state.
func (u Usability) Terminal() bool {
	return !u.Usable()
}

// Purchase is a buyer's time-boxed, device-limited right to play one title.
type Purchase struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	MovieID           uuid.UUID  `json:"movie_id" db:"movie_id"`
	TierID            string     `json:"tier_id" db:"tier_id"`
	PurchasedAt       time.Time  `json:"purchased_at" db:"purchased_at"`
	ExpiresAt         time.Time  `json:"expires_at" db:"expires_at"`
	PlaybackStartedAt *time.Time `json:"playback_started_at,omitempty" db:"playback_started_at"`
	PlaybackExpiresAt *time.Time `json:"playback_expires_at,omitempty" db:"playback_expires_at"`
	PlaybackHours     int        `json:"playback_hours" db:"playback_hours"`
	MaxDevices        int        `json:"max_devices" db:"max_devices"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	RevokedReason     *string    `json:"revoked_reason,omitempty" db:"revoked_reason"`
}

// Started reports whether playback has begun.
func (p *Purchase) Started() bool {
	return p.PlaybackStartedAt != nil
}

// Usability evaluates the purchase at now. Revocation short-circuits every
// other state; window boundaries are inclusive.
func (p *Purchase) Usability(now time.Time) Usability {
	if !p.IsActive {
		return UsabilityRevoked
	}
	if p.PlaybackStartedAt == nil {
		if now.After(p.ExpiresAt) {
			return UsabilityStartWindowExpired
		}
		return UsabilityNotYetStarted
	}
	if p.PlaybackExpiresAt == nil || now.After(*p.PlaybackExpiresAt) {
		return UsabilityPlaybackWindowExpired
	}
	return UsabilityInProgress
}

// PurchaseDevice is one device admitted to a purchase's active set.
type PurchaseDevice struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	PurchaseID        uuid.UUID  `json:"purchase_id" db:"purchase_id"`
	DeviceFingerprint string     `json:"device_fingerprint" db:"device_fingerprint"`
	DeviceName        string     `json:"device_name" db:"device_name"`
	FirstUsedAt       time.Time  `json:"first_used_at" db:"first_used_at"`
	LastUsedAt        time.Time  `json:"last_used_at" db:"last_used_at"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	DeactivatedAt     *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`
}

// RegistrationOutcome classifies a device registration attempt.
type RegistrationOutcome string

const (
	RegistrationAdmitted      RegistrationOutcome = "admitted"
	RegistrationReused        RegistrationOutcome = "reused"
	RegistrationLimitExceeded RegistrationOutcome = "limit_exceeded"
	RegistrationNotUsable     RegistrationOutcome = "not_usable"
)

// RegistrationResult is the response of the atomic device registration.
type RegistrationResult struct {
	Success     bool                `json:"success"`
	Error       string              `json:"error,omitempty"`
	Outcome     RegistrationOutcome `json:"outcome"`
	DeviceCount int                 `json:"device_count"`
	MaxDevices  int                 `json:"max_devices"`
	Usability   Usability           `json:"usability,omitempty"`
	Device      *PurchaseDevice     `json:"device,omitempty"`
}
