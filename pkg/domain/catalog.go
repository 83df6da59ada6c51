package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovieStatus represents where a title sits in its release lifecycle.
type MovieStatus string

const (
	MovieStatusPremiere   MovieStatus = "premiere"
	MovieStatusComingSoon MovieStatus = "coming_soon"
	MovieStatusLibrary    MovieStatus = "library"
)

// Purchasable reports whether tickets can be sold for titles in this status.
func (s MovieStatus) Purchasable() bool {
	return s == MovieStatusPremiere || s == MovieStatusLibrary
}

// Movie is a read-only catalog entry.
type Movie struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Title          string          `json:"title" db:"title"`
	PosterURL      *string         `json:"poster_url,omitempty" db:"poster_url"`
	Price          decimal.Decimal `json:"price" db:"price"`
	Currency       string          `json:"currency" db:"currency"`
	Genre          string          `json:"genre" db:"genre"`
	Language       string          `json:"language" db:"language"`
	State          string          `json:"state" db:"state"`
	Status         MovieStatus     `json:"status" db:"status"`
	PremiereAt     *time.Time      `json:"premiere_at,omitempty" db:"premiere_at"`
	ReleaseAt      *time.Time      `json:"release_at,omitempty" db:"release_at"`
	AvailableUntil *time.Time      `json:"available_until,omitempty" db:"available_until"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// MovieFilter narrows a catalog listing. Empty fields match everything.
type MovieFilter struct {
	Status   MovieStatus `json:"status,omitempty"`
	Genre    string      `json:"genre,omitempty"`
	Language string      `json:"language,omitempty"`
	State    string      `json:"state,omitempty"`
	Query    string      `json:"query,omitempty"`
	Limit    int         `json:"limit"`
	Offset   int         `json:"offset"`
}

// Tier is a purchasable bundle of device and playback limits.
type Tier struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	MaxDevices    int             `json:"max_devices"`
	AccessDays    int             `json:"access_days"`
	PlaybackHours int             `json:"playback_hours"`
}

// AccessWindow is the start window as a duration.
func (t Tier) AccessWindow() time.Duration {
	return time.Duration(t.AccessDays) * 24 * time.Hour
}

// PlaybackWindow is the viewing window once playback has started.
func (t Tier) PlaybackWindow() time.Duration {
	return time.Duration(t.PlaybackHours) * time.Hour
}
