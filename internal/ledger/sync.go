package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/enum"
	"github.com/bengkelku/api/internal/reconcile"
	"github.com/bengkelku/api/internal/store"
)

// PartnerStore is the slice of the store the synchronizer needs.
type PartnerStore interface {
	GetPartnerByName(ctx context.Context, kind, name string) (domain.Partner, error)
	PutPartner(ctx context.Context, p domain.Partner) error
}

// Synchronizer keeps partner history ledgers a faithful mirror of an
// order's current line items. One instance serves parts-by-shop, another
// labor-by-worker; the worker variant additionally tracks record identity
// across counterparty reassignment so payroll amounts never double-count.
type Synchronizer struct {
	store PartnerStore
	kind  string
}

func NewShopSync(s PartnerStore) *Synchronizer {
	return &Synchronizer{store: s, kind: enum.PartnerKindShop}
}

func NewWorkerSync(s PartnerStore) *Synchronizer {
	return &Synchronizer{store: s, kind: enum.PartnerKindWorker}
}

// SyncOrder carries the order fields mirrored into every ledger entry.
type SyncOrder struct {
	ID       uuid.UUID
	Day      string
	ClosedAt *time.Time
	Client   string
	Vehicle  string
}

// Sync reconciles the (counterparty, day, order) entries against the
// current grouping. current and previous map normalized counterparty
// names to their line items. Partners are processed one at a time, in
// name order, so partial writes to the same document never interleave.
// A missing partner record is skipped with a notice; a store write
// failure aborts the sync.
func (s *Synchronizer) Sync(ctx context.Context, ord SyncOrder, current, previous map[string][]domain.LineItem) ([]string, error) {
	var notices []string

	// Reassigned records first: a line whose identity moved to a different
	// counterparty must be deleted from the old entry even when the old
	// counterparty still appears in current for unrelated lines.
	if s.kind == enum.PartnerKindWorker {
		ns, err := s.removeReassigned(ctx, ord, current, previous)
		notices = append(notices, ns...)
		if err != nil {
			return notices, err
		}
	}

	for _, key := range sortedKeys(current) {
		lines := current[key]
		partner, err := s.store.GetPartnerByName(ctx, s.kind, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				notices = append(notices, fmt.Sprintf("%s %q not found, history not updated", s.label(), lines[0].Counterparty))
				continue
			}
			return notices, fmt.Errorf("load %s %q: %w", s.label(), key, err)
		}

		if partner.History == nil {
			partner.History = make(domain.Ledger)
		}
		prevEntry, _ := partner.History.Entry(ord.Day, ord.ID)

		entry := domain.LedgerEntry{
			OrderID:  ord.ID,
			ClosedAt: ord.ClosedAt,
			Client:   ord.Client,
			Vehicle:  ord.Vehicle,
		}
		for _, line := range lines {
			entry.Records = append(entry.Records, s.buildRecord(line, prevEntry.Records, &notices))
		}
		entry.RecomputeTotal()

		partner.History.PutEntry(ord.Day, entry)
		if err := s.store.PutPartner(ctx, partner); err != nil {
			return notices, fmt.Errorf("save %s %q: %w", s.label(), partner.Name, err)
		}
	}

	// Counterparties present before but absent now lose their entry.
	for _, key := range sortedKeys(previous) {
		if _, ok := current[key]; ok {
			continue
		}
		partner, err := s.store.GetPartnerByName(ctx, s.kind, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				notices = append(notices, fmt.Sprintf("%s %q not found, stale history entry left behind", s.label(), key))
				continue
			}
			return notices, fmt.Errorf("load %s %q: %w", s.label(), key, err)
		}
		if _, ok := partner.History.Entry(ord.Day, ord.ID); !ok {
			continue
		}
		partner.History.RemoveEntry(ord.Day, ord.ID)
		if err := s.store.PutPartner(ctx, partner); err != nil {
			return notices, fmt.Errorf("save %s %q: %w", s.label(), partner.Name, err)
		}
	}

	return notices, nil
}

// buildRecord mirrors one line into a ledger record, inheriting the
// recorded-at (and settled-at) dates from the previous record it resolves
// to. Fuzzy matches are accepted but logged as a data-quality signal.
func (s *Synchronizer) buildRecord(line domain.LineItem, prevRecords []domain.LedgerRecord, notices *[]string) domain.LedgerRecord {
	rec := domain.LedgerRecord{
		RecordID:   line.RecordID,
		Name:       line.Name,
		Qty:        line.Qty,
		Price:      line.Price,
		Sum:        line.Sum,
		Payroll:    line.Payroll,
		RecordedAt: line.RecordedAt,
	}
	match := reconcile.ResolveIdentity(prevRecords, line.RecordID, line.Name)
	switch match.Kind {
	case reconcile.MatchNew:
		return rec
	case reconcile.MatchFuzzyName:
		logrus.WithFields(logrus.Fields{
			"kind":     s.kind,
			"line":     line.Name,
			"previous": match.Record.Name,
		}).Warn("ledger: record identity resolved by name prefix only")
		*notices = append(*notices, fmt.Sprintf("record %q matched previous %q by prefix only", line.Name, match.Record.Name))
	}
	rec.RecordedAt = match.Record.RecordedAt
	rec.SettledAt = match.Record.SettledAt
	return rec
}

// removeReassigned deletes single records whose identity now belongs to a
// different counterparty, recomputing the old entry's total and dropping
// the entry when it empties.
func (s *Synchronizer) removeReassigned(ctx context.Context, ord SyncOrder, current, previous map[string][]domain.LineItem) ([]string, error) {
	currentOwner := make(map[uuid.UUID]string)
	for key, lines := range current {
		for _, l := range lines {
			currentOwner[l.RecordID] = key
		}
	}

	// Record ids to delete, grouped per old counterparty.
	moved := make(map[string][]uuid.UUID)
	for key, lines := range previous {
		for _, l := range lines {
			owner, ok := currentOwner[l.RecordID]
			if ok && owner != key {
				moved[key] = append(moved[key], l.RecordID)
			}
		}
	}

	var notices []string
	for _, key := range sortedKeys(moved) {
		partner, err := s.store.GetPartnerByName(ctx, s.kind, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				notices = append(notices, fmt.Sprintf("%s %q not found, reassigned records left behind", s.label(), key))
				continue
			}
			return notices, fmt.Errorf("load %s %q: %w", s.label(), key, err)
		}
		entry, ok := partner.History.Entry(ord.Day, ord.ID)
		if !ok {
			continue
		}

		kept := entry.Records[:0:0]
		for _, r := range entry.Records {
			if !containsID(moved[key], r.RecordID) {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(entry.Records) {
			continue
		}
		if len(kept) == 0 {
			partner.History.RemoveEntry(ord.Day, ord.ID)
		} else {
			entry.Records = kept
			entry.RecomputeTotal()
			partner.History.PutEntry(ord.Day, entry)
		}
		if err := s.store.PutPartner(ctx, partner); err != nil {
			return notices, fmt.Errorf("save %s %q: %w", s.label(), partner.Name, err)
		}
	}
	return notices, nil
}

func (s *Synchronizer) label() string {
	if s.kind == enum.PartnerKindWorker {
		return "worker"
	}
	return "shop"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
