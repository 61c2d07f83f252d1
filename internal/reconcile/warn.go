package reconcile

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/enum"
	"github.com/bengkelku/api/internal/snapshot"
)

// Warning is a per-row quantity or price problem. Warnings do not block a
// plain save; they block settlement unless the acting role may override.
type Warning struct {
	RecordID uuid.UUID `json:"record_id"`
	Field    string    `json:"field"`
	Message  string    `json:"message"`
}

// CheckQuantity warns when the proposed quantity would drive remaining
// stock negative. priorQty is the quantity already committed for this
// order and inventory id (zero for a line added this session):
//
//	remaining = onHand - (consumed + (inputQty - priorQty))
func CheckQuantity(item domain.InventoryItem, priorQty, inputQty decimal.Decimal) *Warning {
	delta := inputQty.Sub(priorQty)
	projected := item.Consumed.Add(delta)
	remaining := item.OnHand.Sub(projected)
	if remaining.Sign() >= 0 {
		return nil
	}
	shortfall := remaining.Neg()
	return &Warning{
		Field:   enum.WarningFieldQuantity,
		Message: fmt.Sprintf("%s: short %s %s of stock", item.Name, shortfall.String(), item.Unit),
	}
}

// MinPrice is the lowest allowed sale price for an inventory item:
// the base price marked up by the configured percent.
func MinPrice(basePrice, markupPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(markupPercent.Div(decimal.NewFromInt(100)))
	return basePrice.Mul(factor).Round(2)
}

// CheckPrice warns when a positive entered price undercuts the minimum
// markup price. A zero price is left alone (gratis lines are allowed).
func CheckPrice(item domain.InventoryItem, markupPercent, enteredPrice decimal.Decimal) *Warning {
	if enteredPrice.Sign() <= 0 {
		return nil
	}
	min := MinPrice(item.Price, markupPercent)
	if enteredPrice.GreaterThanOrEqual(min) {
		return nil
	}
	return &Warning{
		Field:   enum.WarningFieldPrice,
		Message: fmt.Sprintf("%s: price %s is below minimum %s", item.Name, enteredPrice.String(), min.String()),
	}
}

// CheckOrder runs both checks over every part line bound to an inventory
// id. openSnapshot carries the quantities committed when the order was
// opened for editing. Lines whose inventory id no longer resolves are
// skipped here; the ledger updater surfaces those separately.
func CheckOrder(snap *snapshot.Snapshot, openSnapshot map[uuid.UUID]decimal.Decimal, parts []domain.LineItem) []Warning {
	var warnings []Warning
	for _, line := range parts {
		if line.InventoryID == nil {
			continue
		}
		item, ok := snap.Item(*line.InventoryID)
		if !ok {
			continue
		}
		if w := CheckQuantity(item, openSnapshot[*line.InventoryID], line.Qty); w != nil {
			w.RecordID = line.RecordID
			warnings = append(warnings, *w)
		}
		if w := CheckPrice(item, snap.MarkupPercent, line.Price); w != nil {
			w.RecordID = line.RecordID
			warnings = append(warnings, *w)
		}
	}
	return warnings
}
