// Package reconcile holds the pure functions of the save pipeline: line
// normalization, per-inventory-id delta computation, record identity
// resolution, and the quantity/price warning checks. Nothing in this
// package touches the store; everything is derived from a reference
// snapshot plus the in-memory edit state, so re-running with the same
// inputs always yields the same outputs.
package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/enum"
	"github.com/bengkelku/api/internal/snapshot"
)

var (
	ErrInvalidQty         = errors.New("invalid qty")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidRecordID    = errors.New("invalid record_id")
	ErrInvalidInventoryID = errors.New("invalid inventory_id")
)

// Row is one line of the edit state as the UI hands it over.
// Numeric fields travel as strings (decimal wire format, as elsewhere
// in the API); RecordID is empty for lines the user just added.
type Row struct {
	RecordID     string `json:"record_id"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Counterparty string `json:"counterparty"`
	InventoryID  string `json:"inventory_id"`
	Qty          string `json:"qty"`
	Price        string `json:"price"`
}

// Normalized is the typed view of the current edit state.
type Normalized struct {
	All   []domain.LineItem
	Parts []domain.LineItem
	Labor []domain.LineItem
}

// Normalize converts edited rows into typed line items. Nameless rows are
// dropped. Classification prefers the row's explicit kind tag; otherwise
// membership in the labor catalog decides, with ambiguous names defaulting
// to part. Labor lines get a payroll amount derived from the worker's
// payroll percent. New lines are assigned a fresh record identity.
func Normalize(snap *snapshot.Snapshot, rows []Row, now time.Time) (Normalized, error) {
	var out Normalized
	for i, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			continue
		}

		qty, err := decimal.NewFromString(strings.TrimSpace(row.Qty))
		if err != nil {
			return Normalized{}, fmt.Errorf("row[%d]: %w", i, ErrInvalidQty)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(row.Price))
		if err != nil {
			return Normalized{}, fmt.Errorf("row[%d]: %w", i, ErrInvalidPrice)
		}

		recordID := uuid.Nil
		if row.RecordID != "" {
			recordID, err = uuid.Parse(row.RecordID)
			if err != nil {
				return Normalized{}, fmt.Errorf("row[%d]: %w", i, ErrInvalidRecordID)
			}
		}
		if recordID == uuid.Nil {
			recordID = uuid.New()
		}

		kind := classify(snap, row.Kind, name)

		line := domain.LineItem{
			RecordID:     recordID,
			Kind:         kind,
			Name:         name,
			Counterparty: strings.TrimSpace(row.Counterparty),
			Qty:          qty,
			Price:        price,
			Sum:          qty.Mul(price).Round(2),
			RecordedAt:   now,
		}

		switch kind {
		case enum.LineKindPart:
			if row.InventoryID != "" {
				invID, err := uuid.Parse(row.InventoryID)
				if err != nil {
					return Normalized{}, fmt.Errorf("row[%d]: %w", i, ErrInvalidInventoryID)
				}
				line.InventoryID = &invID
				// The originating shop on the inventory row wins over
				// whatever the grid carried.
				if item, ok := snap.Item(invID); ok && item.ShopName != "" {
					line.Counterparty = item.ShopName
				}
			}
			out.Parts = append(out.Parts, line)
		case enum.LineKindLabor:
			if worker, ok := snap.Worker(line.Counterparty); ok {
				line.Payroll = line.Sum.Mul(worker.PayrollPercent).Div(decimal.NewFromInt(100)).Round(2)
			}
			out.Labor = append(out.Labor, line)
		}
		out.All = append(out.All, line)
	}
	return out, nil
}

// classify picks part vs labor for a line. An explicit valid kind tag wins;
// the catalog fallback treats ambiguous names as parts.
func classify(snap *snapshot.Snapshot, kind, name string) string {
	switch kind {
	case enum.LineKindPart, enum.LineKindLabor:
		return kind
	}
	if snap.IsLabor(name) && !snap.IsPart(name) {
		return enum.LineKindLabor
	}
	return enum.LineKindPart
}

// Totals sums quantities per inventory id for the given part lines.
// This is the "current" side of a delta computation.
func Totals(parts []domain.LineItem) map[uuid.UUID]decimal.Decimal {
	totals := make(map[uuid.UUID]decimal.Decimal)
	for _, l := range parts {
		if l.InventoryID == nil {
			continue
		}
		totals[*l.InventoryID] = totals[*l.InventoryID].Add(l.Qty)
	}
	return totals
}

// GroupByCounterparty buckets lines by counterparty name for ledger sync.
// Lines with no counterparty are skipped; they have no ledger home.
func GroupByCounterparty(lines []domain.LineItem) map[string][]domain.LineItem {
	groups := make(map[string][]domain.LineItem)
	for _, l := range lines {
		if l.Counterparty == "" {
			continue
		}
		key := domain.NormalizeName(l.Counterparty)
		groups[key] = append(groups[key], l)
	}
	return groups
}
