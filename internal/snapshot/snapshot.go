// Package snapshot provides the read-mostly reference data every
// reconciliation pass works against: inventory counters, part/labor name
// catalogs, partner registries, and the markup setting. A Snapshot is
// immutable once built; Refresh produces a new one rather than mutating
// in place, so a caller can swap snapshots atomically.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/enum"
)

const cacheKey = "bengkelku:snapshot:reference"

// PartnerRef is the slice of a partner the engine needs at edit time.
// History ledgers are deliberately not loaded into the snapshot.
type PartnerRef struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	PayrollPercent decimal.Decimal `json:"payroll_percent"`
}

// Snapshot is one immutable view of the reference data.
type Snapshot struct {
	LoadedAt      time.Time                          `json:"loaded_at"`
	Items         map[uuid.UUID]domain.InventoryItem `json:"items"`
	PartNames     map[string]bool                    `json:"part_names"`
	LaborNames    map[string]bool                    `json:"labor_names"`
	Shops         map[string]PartnerRef              `json:"shops"`
	Workers       map[string]PartnerRef              `json:"workers"`
	MarkupPercent decimal.Decimal                    `json:"markup_percent"`
}

// Item looks up an inventory item by id.
func (s *Snapshot) Item(id uuid.UUID) (domain.InventoryItem, bool) {
	it, ok := s.Items[id]
	return it, ok
}

// Shop looks up a supplier shop by display name (normalized).
func (s *Snapshot) Shop(name string) (PartnerRef, bool) {
	p, ok := s.Shops[domain.NormalizeName(name)]
	return p, ok
}

// Worker looks up a worker by display name (normalized).
func (s *Snapshot) Worker(name string) (PartnerRef, bool) {
	p, ok := s.Workers[domain.NormalizeName(name)]
	return p, ok
}

// IsLabor reports whether the name appears in the labor catalog.
func (s *Snapshot) IsLabor(name string) bool {
	return s.LaborNames[domain.NormalizeName(name)]
}

// IsPart reports whether the name appears in the part catalog
// (which includes all inventory item names).
func (s *Snapshot) IsPart(name string) bool {
	return s.PartNames[domain.NormalizeName(name)]
}

// ReadStore is the subset of the store the loader reads.
type ReadStore interface {
	ListInventory(ctx context.Context) ([]domain.InventoryItem, error)
	ListPartners(ctx context.Context, kind string) ([]domain.Partner, error)
	ListCatalogNames(ctx context.Context, kind string) ([]string, error)
	GetSettings(ctx context.Context) (domain.Settings, error)
}

// Loader builds snapshots from the store, optionally read-through cached
// in redis. A nil redis client disables caching entirely.
type Loader struct {
	store ReadStore
	cache *redis.Client
	ttl   time.Duration
}

func NewLoader(store ReadStore, cache *redis.Client, ttl time.Duration) *Loader {
	return &Loader{store: store, cache: cache, ttl: ttl}
}

// Load returns the cached snapshot if present, otherwise builds a fresh
// one from the store and caches it. Cache failures fall back to the store.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	if l.cache != nil {
		raw, err := l.cache.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var snap Snapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				return &snap, nil
			}
			logrus.WithError(err).Warn("snapshot: discarding unreadable cache entry")
		} else if err != redis.Nil {
			logrus.WithError(err).Warn("snapshot: cache read failed, loading from store")
		}
	}
	return l.Refresh(ctx)
}

// Refresh builds a new snapshot from the store, bypassing and repopulating
// the cache. The previous snapshot held by callers is untouched.
func (l *Loader) Refresh(ctx context.Context) (*Snapshot, error) {
	items, err := l.store.ListInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	shops, err := l.store.ListPartners(ctx, enum.PartnerKindShop)
	if err != nil {
		return nil, fmt.Errorf("load shops: %w", err)
	}
	workers, err := l.store.ListPartners(ctx, enum.PartnerKindWorker)
	if err != nil {
		return nil, fmt.Errorf("load workers: %w", err)
	}
	partNames, err := l.store.ListCatalogNames(ctx, enum.LineKindPart)
	if err != nil {
		return nil, fmt.Errorf("load part catalog: %w", err)
	}
	laborNames, err := l.store.ListCatalogNames(ctx, enum.LineKindLabor)
	if err != nil {
		return nil, fmt.Errorf("load labor catalog: %w", err)
	}
	settings, err := l.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	snap := &Snapshot{
		LoadedAt:      time.Now(),
		Items:         make(map[uuid.UUID]domain.InventoryItem, len(items)),
		PartNames:     make(map[string]bool, len(partNames)+len(items)),
		LaborNames:    make(map[string]bool, len(laborNames)),
		Shops:         make(map[string]PartnerRef, len(shops)),
		Workers:       make(map[string]PartnerRef, len(workers)),
		MarkupPercent: settings.MarkupPercent,
	}
	for _, it := range items {
		snap.Items[it.ID] = it
		snap.PartNames[domain.NormalizeName(it.Name)] = true
	}
	for _, name := range partNames {
		snap.PartNames[domain.NormalizeName(name)] = true
	}
	for _, name := range laborNames {
		snap.LaborNames[domain.NormalizeName(name)] = true
	}
	for _, p := range shops {
		snap.Shops[domain.NormalizeName(p.Name)] = PartnerRef{ID: p.ID, Name: p.Name}
	}
	for _, p := range workers {
		snap.Workers[domain.NormalizeName(p.Name)] = PartnerRef{ID: p.ID, Name: p.Name, PayrollPercent: p.PayrollPercent}
	}

	if l.cache != nil {
		if raw, err := json.Marshal(snap); err == nil {
			if err := l.cache.Set(ctx, cacheKey, raw, l.ttl).Err(); err != nil {
				logrus.WithError(err).Warn("snapshot: cache write failed")
			}
		}
	}
	return snap, nil
}

// Invalidate drops the cached snapshot after reference data was written.
func (l *Loader) Invalidate(ctx context.Context) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Del(ctx, cacheKey).Err(); err != nil {
		logrus.WithError(err).Warn("snapshot: cache invalidate failed")
	}
}
