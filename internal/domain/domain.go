package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DayKeyFormat is the calendar-day key used by partner history ledgers.
const DayKeyFormat = "2006-01-02"

// InventoryItem is one row of the shared inventory ledger.
// Remaining stock is always OnHand - Consumed; Consumed is only ever
// adjusted through reconciliation deltas while the item is linked to
// an open order.
type InventoryItem struct {
	ID            uuid.UUID       `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	OnHand        decimal.Decimal `json:"on_hand"`
	Consumed      decimal.Decimal `json:"consumed"`
	Unit          string          `json:"unit"`
	ShopName      string          `json:"shop_name"`
	LinkedOrderID *uuid.UUID      `json:"linked_order_id"`
}

// Remaining returns the stock still available for this item.
func (i InventoryItem) Remaining() decimal.Decimal {
	return i.OnHand.Sub(i.Consumed)
}

// LineItem is one row of a work order: a consumed part or performed labor.
// RecordID is assigned once and preserved across edits; it ties the line
// to its partner-history record even if the counterparty changes.
type LineItem struct {
	RecordID     uuid.UUID       `json:"record_id"`
	Kind         string          `json:"kind"`
	Name         string          `json:"name"`
	InventoryID  *uuid.UUID      `json:"inventory_id,omitempty"`
	Counterparty string          `json:"counterparty"`
	Qty          decimal.Decimal `json:"qty"`
	Price        decimal.Decimal `json:"price"`
	Sum          decimal.Decimal `json:"sum"`
	Payroll      decimal.Decimal `json:"payroll"`
	RecordedAt   time.Time       `json:"recorded_at"`
	SettledAt    *time.Time      `json:"settled_at,omitempty"`
}

// WorkOrder is a single service transaction. Lines are mutable only while
// SettledAt is nil; Reopen clears SettledAt and re-derives the ledgers.
type WorkOrder struct {
	ID         uuid.UUID       `json:"id"`
	Number     string          `json:"number"`
	OpenedAt   time.Time       `json:"opened_at"`
	SettledAt  *time.Time      `json:"settled_at"`
	Client     string          `json:"client"`
	Vehicle    string          `json:"vehicle"`
	Lines      []LineItem      `json:"lines"`
	PartsTotal decimal.Decimal `json:"parts_total"`
	LaborTotal decimal.Decimal `json:"labor_total"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	CreatedBy  uuid.UUID       `json:"created_by"`
}

// Status reports the order lifecycle state.
func (o WorkOrder) Status() string {
	if o.SettledAt != nil {
		return "SETTLED"
	}
	return "OPEN"
}

// DayKey returns the history-ledger day bucket this order's records live
// under. Keyed by the open day so the bucket is stable across later saves.
func (o WorkOrder) DayKey() string {
	return o.OpenedAt.Format(DayKeyFormat)
}

// Partner is a counterparty: a supplier shop or a worker. Both carry the
// same nested history ledger; workers additionally carry a payroll percent.
type Partner struct {
	ID             uuid.UUID       `json:"id"`
	Kind           string          `json:"kind"`
	Name           string          `json:"name"`
	PayrollPercent decimal.Decimal `json:"payroll_percent"`
	History        Ledger          `json:"history"`
}

// LedgerRecord mirrors one order line inside a partner's history entry.
// RecordedAt and, for workers, SettledAt (payroll paid) must survive edits.
type LedgerRecord struct {
	RecordID   uuid.UUID       `json:"record_id"`
	Name       string          `json:"name"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Sum        decimal.Decimal `json:"sum"`
	Payroll    decimal.Decimal `json:"payroll"`
	RecordedAt time.Time       `json:"recorded_at"`
	SettledAt  *time.Time      `json:"settled_at,omitempty"`
}

// LedgerEntry is the per-day, per-order bucket in a partner's history.
// At most one entry exists per (partner, day, order); an entry whose
// record list becomes empty is removed, not kept as an empty shell.
type LedgerEntry struct {
	OrderID  uuid.UUID       `json:"order_id"`
	ClosedAt *time.Time      `json:"closed_at"`
	Client   string          `json:"client"`
	Vehicle  string          `json:"vehicle"`
	Records  []LedgerRecord  `json:"records"`
	Total    decimal.Decimal `json:"total"`
}

// RecomputeTotal recalculates the entry total from its records.
func (e *LedgerEntry) RecomputeTotal() {
	total := decimal.Zero
	for _, r := range e.Records {
		total = total.Add(r.Sum)
	}
	e.Total = total
}

// Ledger is a partner's nested history document, keyed by calendar day.
type Ledger map[string][]LedgerEntry

// Entry returns the entry for (day, order) and whether it exists.
func (l Ledger) Entry(day string, orderID uuid.UUID) (LedgerEntry, bool) {
	for _, e := range l[day] {
		if e.OrderID == orderID {
			return e, true
		}
	}
	return LedgerEntry{}, false
}

// PutEntry replaces the (day, order) entry, or appends it if absent.
func (l Ledger) PutEntry(day string, entry LedgerEntry) {
	entries := l[day]
	for i, e := range entries {
		if e.OrderID == entry.OrderID {
			entries[i] = entry
			return
		}
	}
	l[day] = append(entries, entry)
}

// RemoveEntry drops the (day, order) entry; empty days are deleted.
func (l Ledger) RemoveEntry(day string, orderID uuid.UUID) {
	entries := l[day]
	for i, e := range entries {
		if e.OrderID == orderID {
			l[day] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(l[day]) == 0 {
		delete(l, day)
	}
}

// Settings holds the tunables the validation engine reads.
type Settings struct {
	MarkupPercent decimal.Decimal `json:"markup_percent"`
}

// User is an authenticated operator of the system.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
}

// NormalizeName canonicalizes a display name for matching: trimmed,
// lowercased, inner whitespace collapsed to single spaces.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
