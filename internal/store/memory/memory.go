// Package memory implements store.Store with in-process maps. Used by unit
// tests and as the dev backend when DATABASE_URL is unset. Documents are
// deep-copied on the way in and out so callers never share mutable state.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	orders       map[uuid.UUID]domain.WorkOrder
	orderSeq     int
	inventory    map[uuid.UUID]domain.InventoryItem
	partners     map[string]map[uuid.UUID]domain.Partner // kind -> id -> partner
	catalogs     map[string][]string                     // kind -> names
	settings     domain.Settings
	usersByEmail map[string]domain.User
}

func New() *Store {
	return &Store{
		orders:       make(map[uuid.UUID]domain.WorkOrder),
		inventory:    make(map[uuid.UUID]domain.InventoryItem),
		partners:     make(map[string]map[uuid.UUID]domain.Partner),
		catalogs:     make(map[string][]string),
		settings:     domain.Settings{MarkupPercent: decimal.NewFromInt(20)},
		usersByEmail: make(map[string]domain.User),
	}
}

// --- Orders ---

func (s *Store) CreateOrder(_ context.Context, o domain.WorkOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return store.ErrAlreadyExists
	}
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (domain.WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.WorkOrder{}, store.ErrNotFound
	}
	return copyOrder(o), nil
}

func (s *Store) PutOrder(_ context.Context, o domain.WorkOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return store.ErrNotFound
	}
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *Store) ListOrders(_ context.Context, limit, offset int) ([]domain.WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]domain.WorkOrder, 0, len(s.orders))
	for _, o := range s.orders {
		all = append(all, copyOrder(o))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OpenedAt.After(all[j].OpenedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) NextOrderNumber(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderSeq++
	return s.orderSeq, nil
}

// --- Inventory ---

func (s *Store) ListInventory(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.InventoryItem, 0, len(s.inventory))
	for _, it := range s.inventory {
		items = append(items, copyItem(it))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	return items, nil
}

func (s *Store) GetInventoryItem(_ context.Context, id uuid.UUID) (domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.inventory[id]
	if !ok {
		return domain.InventoryItem{}, store.ErrNotFound
	}
	return copyItem(it), nil
}

func (s *Store) PutInventoryItem(_ context.Context, item domain.InventoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[item.ID] = copyItem(item)
	return nil
}

func (s *Store) UpdateInventoryUsage(_ context.Context, id uuid.UUID, consumed decimal.Decimal, linkedOrderID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.inventory[id]
	if !ok {
		return store.ErrNotFound
	}
	it.Consumed = consumed
	if linkedOrderID != nil {
		ref := *linkedOrderID
		it.LinkedOrderID = &ref
	} else {
		it.LinkedOrderID = nil
	}
	s.inventory[id] = it
	return nil
}

// --- Partners ---

func (s *Store) ListPartners(_ context.Context, kind string) ([]domain.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps := make([]domain.Partner, 0, len(s.partners[kind]))
	for _, p := range s.partners[kind] {
		ps = append(ps, copyPartner(p))
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return ps, nil
}

func (s *Store) GetPartner(_ context.Context, kind string, id uuid.UUID) (domain.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partners[kind][id]
	if !ok {
		return domain.Partner{}, store.ErrNotFound
	}
	return copyPartner(p), nil
}

func (s *Store) GetPartnerByName(_ context.Context, kind, name string) (domain.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := domain.NormalizeName(name)
	for _, p := range s.partners[kind] {
		if domain.NormalizeName(p.Name) == want {
			return copyPartner(p), nil
		}
	}
	return domain.Partner{}, store.ErrNotFound
}

func (s *Store) PutPartner(_ context.Context, p domain.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partners[p.Kind] == nil {
		s.partners[p.Kind] = make(map[uuid.UUID]domain.Partner)
	}
	s.partners[p.Kind][p.ID] = copyPartner(p)
	return nil
}

// --- Catalogs ---

func (s *Store) ListCatalogNames(_ context.Context, kind string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.catalogs[kind]...), nil
}

// AddCatalogName registers a known part/labor name. Duplicates are ignored.
func (s *Store) AddCatalogName(_ context.Context, kind, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.catalogs[kind] {
		if n == name {
			return nil
		}
	}
	s.catalogs[kind] = append(s.catalogs[kind], name)
	return nil
}

// --- Settings ---

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) PutSettings(_ context.Context, set domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = set
	return nil
}

// --- Users ---

func (s *Store) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.usersByEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, store.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.usersByEmail[key]; ok {
		return store.ErrAlreadyExists
	}
	s.usersByEmail[key] = u
	return nil
}

// --- Deep copies ---

func copyOrder(o domain.WorkOrder) domain.WorkOrder {
	out := o
	out.SettledAt = copyTimePtr(o.SettledAt)
	out.Lines = make([]domain.LineItem, len(o.Lines))
	for i, l := range o.Lines {
		out.Lines[i] = copyLine(l)
	}
	return out
}

func copyLine(l domain.LineItem) domain.LineItem {
	out := l
	out.SettledAt = copyTimePtr(l.SettledAt)
	if l.InventoryID != nil {
		id := *l.InventoryID
		out.InventoryID = &id
	}
	return out
}

func copyItem(it domain.InventoryItem) domain.InventoryItem {
	out := it
	if it.LinkedOrderID != nil {
		id := *it.LinkedOrderID
		out.LinkedOrderID = &id
	}
	return out
}

func copyPartner(p domain.Partner) domain.Partner {
	out := p
	out.History = make(domain.Ledger, len(p.History))
	for day, entries := range p.History {
		dst := make([]domain.LedgerEntry, len(entries))
		for i, e := range entries {
			ce := e
			ce.ClosedAt = copyTimePtr(e.ClosedAt)
			ce.Records = make([]domain.LedgerRecord, len(e.Records))
			for j, r := range e.Records {
				cr := r
				cr.SettledAt = copyTimePtr(r.SettledAt)
				ce.Records[j] = cr
			}
			dst[i] = ce
		}
		out.History[day] = dst
	}
	return out
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
