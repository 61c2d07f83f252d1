// Package ledger applies a save's normalized outcome to the two external
// ledgers: the shared inventory store and the per-partner history
// documents. Every pass re-derives its writes from current state, so a
// failed save can be retried without compensating rollbacks.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/store"
)

// ErrReferenceMissing marks a counterparty or inventory id that no longer
// exists. Absorbed with a user-visible notice, never fatal for the save.
var ErrReferenceMissing = errors.New("reference missing")

// InventoryStore is the slice of the store the updater needs.
type InventoryStore interface {
	GetInventoryItem(ctx context.Context, id uuid.UUID) (domain.InventoryItem, error)
	UpdateInventoryUsage(ctx context.Context, id uuid.UUID, consumed decimal.Decimal, linkedOrderID *uuid.UUID) error
}

// InventoryUpdater applies quantity deltas to the consumed counters and
// keeps each item's linked-order reference pointing at the order that
// currently holds it.
type InventoryUpdater struct {
	store InventoryStore
}

func NewInventoryUpdater(s InventoryStore) *InventoryUpdater {
	return &InventoryUpdater{store: s}
}

// Apply writes the reconciliation outcome for one order. current and
// previous are quantity totals per inventory id for the edited and the
// order-open state; deltas is their signed difference. Consumed counters
// are clamped at zero. Linkage updates ride along with the counter write
// so a dropped item's stale link cannot survive the save. A missing item
// is skipped with a notice; a failed write aborts the batch naming the
// item that caused it.
func (u *InventoryUpdater) Apply(ctx context.Context, orderID uuid.UUID, deltas, current, previous map[uuid.UUID]decimal.Decimal) ([]string, error) {
	ids := make(map[uuid.UUID]bool, len(current)+len(previous))
	for id := range current {
		ids[id] = true
	}
	for id := range previous {
		ids[id] = true
	}

	var notices []string
	for _, id := range sortedIDs(ids) {
		item, err := u.store.GetInventoryItem(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				notices = append(notices, fmt.Sprintf("inventory item %s no longer exists, skipped", id))
				continue
			}
			return notices, fmt.Errorf("inventory item %s: %w", id, err)
		}

		consumed := item.Consumed
		if delta, ok := deltas[id]; ok {
			consumed = consumed.Add(delta)
			if consumed.Sign() < 0 {
				consumed = decimal.Zero
			}
		}

		linked := item.LinkedOrderID
		if _, ok := current[id]; ok {
			linked = &orderID
		} else if linked != nil && *linked == orderID {
			// Dropped from this order; links owned by other orders are
			// left alone.
			linked = nil
		}

		if consumed.Equal(item.Consumed) && sameRef(linked, item.LinkedOrderID) {
			continue
		}
		if err := u.store.UpdateInventoryUsage(ctx, id, consumed, linked); err != nil {
			return notices, fmt.Errorf("inventory item %s (%s): %w", item.Code, id, err)
		}
	}
	return notices, nil
}

func sortedIDs(set map[uuid.UUID]bool) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func sameRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
