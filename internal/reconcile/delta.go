package reconcile

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ComputeDeltas compares per-inventory-id quantity totals captured when the
// order was opened against the current edit state and returns the signed
// change per id. Zero deltas are omitted, so saving an unchanged order
// yields an empty map. The result depends only on the two maps, never on
// iteration order.
func ComputeDeltas(previous, current map[uuid.UUID]decimal.Decimal) map[uuid.UUID]decimal.Decimal {
	deltas := make(map[uuid.UUID]decimal.Decimal)
	for id, cur := range current {
		d := cur.Sub(previous[id])
		if !d.IsZero() {
			deltas[id] = d
		}
	}
	for id, prev := range previous {
		if _, ok := current[id]; ok {
			continue
		}
		if !prev.IsZero() {
			deltas[id] = prev.Neg()
		}
	}
	return deltas
}
