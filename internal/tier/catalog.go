// Package tier holds the static catalog of purchase tiers.
package tier

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"reelpass/pkg/config"
	"reelpass/pkg/domain"
)

var ErrUnknownTier = errors.New("unknown tier")

// Defaults are the tiers offered at checkout.
func Defaults(currency string) []domain.Tier {
	return []domain.Tier{
		{ID: "single", Name: "Single Screen", Price: decimal.NewFromInt(99), Currency: currency, MaxDevices: 1, AccessDays: domain.DefaultAccessDays, PlaybackHours: 48},
		{ID: "duo", Name: "Duo", Price: decimal.NewFromInt(149), Currency: currency, MaxDevices: 2, AccessDays: domain.DefaultAccessDays, PlaybackHours: 48},
		{ID: "family", Name: "Family", Price: decimal.NewFromInt(199), Currency: currency, MaxDevices: 3, AccessDays: domain.DefaultAccessDays, PlaybackHours: 72},
	}
}

// Catalog is an immutable set of tiers ordered by device ceiling.
type Catalog struct {
	tiers []domain.Tier
	byID  map[string]domain.Tier
}

// NewCatalog validates tiers and builds a catalog from them.
func NewCatalog(tiers []domain.Tier) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]domain.Tier, len(tiers))}
	for _, t := range tiers {
		switch {
		case t.ID == "":
			return nil, errors.New("tier id is required")
		case t.MaxDevices < 1:
			return nil, fmt.Errorf("tier %s: max devices must be at least 1", t.ID)
		case t.PlaybackHours < 1:
			return nil, fmt.Errorf("tier %s: playback hours must be at least 1", t.ID)
		case t.AccessDays < 1:
			return nil, fmt.Errorf("tier %s: access days must be at least 1", t.ID)
		case t.Price.IsNegative():
			return nil, fmt.Errorf("tier %s: price must not be negative", t.ID)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate tier %s", t.ID)
		}
		c.byID[t.ID] = t
		c.tiers = append(c.tiers, t)
	}
	sort.SliceStable(c.tiers, func(i, j int) bool {
		if c.tiers[i].MaxDevices != c.tiers[j].MaxDevices {
			return c.tiers[i].MaxDevices < c.tiers[j].MaxDevices
		}
		return c.tiers[i].PlaybackHours < c.tiers[j].PlaybackHours
	})
	return c, nil
}

// FromConfig builds the default catalog with configured currency and prices.
func FromConfig(cfg config.TierConfig) (*Catalog, error) {
	tiers := Defaults(cfg.Currency)
	for i := range tiers {
		raw, ok := cfg.Prices[tiers[i].ID]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("tier %s: invalid price %q: %w", tiers[i].ID, raw, err)
		}
		tiers[i].Price = price
	}
	return NewCatalog(tiers)
}

// List returns all tiers, smallest device ceiling first.
func (c *Catalog) List() []domain.Tier {
	out := make([]domain.Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

func (c *Catalog) Get(id string) (domain.Tier, error) {
	t, ok := c.byID[id]
	if !ok {
		return domain.Tier{}, fmt.Errorf("%w: %s", ErrUnknownTier, id)
	}
	return t, nil
}

// ForDevices returns the shortest-playback tier with exactly maxDevices.
func (c *Catalog) ForDevices(maxDevices int) (domain.Tier, error) {
	for _, t := range c.tiers {
		if t.MaxDevices == maxDevices {
			return t, nil
		}
	}
	return domain.Tier{}, fmt.Errorf("%w: no tier allows %d devices", ErrUnknownTier, maxDevices)
}
