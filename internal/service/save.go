// Package service owns the write sequence of a save operation. The
// orchestrator runs the steps strictly in order because each step reads
// state the previous one committed; there is no compensating rollback.
// A failed step surfaces its name so the caller can retry: every step
// re-derives its writes from current state, so re-running is safe.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/enum"
	"github.com/bengkelku/api/internal/ledger"
	"github.com/bengkelku/api/internal/reconcile"
	"github.com/bengkelku/api/internal/snapshot"
)

// Save pipeline steps, in execution order.
const (
	StepValidate  = "validate"
	StepOrder     = "order"
	StepInventory = "inventory"
	StepLedgers   = "ledgers"
	StepRefresh   = "refresh"
)

var (
	ErrOrderSettled      = errors.New("order is settled; reopen it first")
	ErrOrderNotSettled   = errors.New("order is not settled")
	ErrValidationBlocked = errors.New("unresolved warnings block settlement")
)

// PersistStepError names the pipeline step that failed so a retry can
// resume logically. Steps already committed stay committed.
type PersistStepError struct {
	Step string
	Err  error
}

func (e *PersistStepError) Error() string {
	return fmt.Sprintf("save step %s: %v", e.Step, e.Err)
}

func (e *PersistStepError) Unwrap() error { return e.Err }

// Store is the persistence surface the orchestrator writes through.
// Satisfied by store.Store implementations.
type Store interface {
	CreateOrder(ctx context.Context, o domain.WorkOrder) error
	GetOrder(ctx context.Context, id uuid.UUID) (domain.WorkOrder, error)
	PutOrder(ctx context.Context, o domain.WorkOrder) error
	NextOrderNumber(ctx context.Context) (int, error)
	GetPartner(ctx context.Context, kind string, id uuid.UUID) (domain.Partner, error)
	PutPartner(ctx context.Context, p domain.Partner) error
}

// Events receives notifications after successful writes. Satisfied by
// *ws.Hub; nil-safe via the noopEvents default.
type Events interface {
	Publish(event string, payload interface{})
}

type noopEvents struct{}

func (noopEvents) Publish(string, interface{}) {}

// Orchestrator runs the full save sequence for one order at a time:
// normalize, compute deltas, persist the order record, apply inventory
// deltas, sync both counterparty ledgers, refresh the snapshot, and
// recompute warnings.
type Orchestrator struct {
	store     Store
	inventory *ledger.InventoryUpdater
	shops     *ledger.Synchronizer
	workers   *ledger.Synchronizer
	loader    *snapshot.Loader
	events    Events
}

func NewOrchestrator(store Store, inv *ledger.InventoryUpdater, shops, workers *ledger.Synchronizer, loader *snapshot.Loader, events Events) *Orchestrator {
	if events == nil {
		events = noopEvents{}
	}
	return &Orchestrator{
		store:     store,
		inventory: inv,
		shops:     shops,
		workers:   workers,
		loader:    loader,
		events:    events,
	}
}

// SaveRequest is one save operation: the edited rows plus the quantity
// snapshot captured when the order was opened for editing.
type SaveRequest struct {
	OrderID       uuid.UUID
	Rows          []reconcile.Row
	OpenSnapshot  map[uuid.UUID]decimal.Decimal
	Settle        bool
	AllowOverride bool
}

// SaveResult is what the editing surface needs to re-render: the updated
// order with aggregate sums, per-row warnings recomputed against the
// refreshed snapshot, reference-missing notices, and the new open
// snapshot to diff the next save against.
type SaveResult struct {
	Order        domain.WorkOrder
	Warnings     []reconcile.Warning
	Notices      []string
	OpenSnapshot map[uuid.UUID]decimal.Decimal
	Flagged      bool
}

// Save runs the pipeline. The caller must ensure only one save per order
// is in flight; mid-save cancellation is not supported once the order
// record write has started.
func (o *Orchestrator) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	order, err := o.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.SettledAt != nil {
		return nil, ErrOrderSettled
	}

	snap, err := o.loader.Load(ctx)
	if err != nil {
		return nil, &PersistStepError{Step: StepValidate, Err: err}
	}

	norm, err := reconcile.Normalize(snap, req.Rows, time.Now())
	if err != nil {
		return nil, &PersistStepError{Step: StepValidate, Err: err}
	}

	warnings := reconcile.CheckOrder(snap, req.OpenSnapshot, norm.Parts)
	flagged := false
	if req.Settle && len(warnings) > 0 {
		if !req.AllowOverride {
			return &SaveResult{Order: order, Warnings: warnings, OpenSnapshot: req.OpenSnapshot}, ErrValidationBlocked
		}
		flagged = true
		logrus.WithFields(logrus.Fields{
			"order":    order.Number,
			"warnings": len(warnings),
		}).Warn("service: order settled with active warnings (override)")
	}

	// Previous groupings come from the last committed line items, captured
	// before the order record is overwritten below.
	prevParts := reconcile.GroupByCounterparty(filterKind(order.Lines, enum.LineKindPart))
	prevLabor := reconcile.GroupByCounterparty(filterKind(order.Lines, enum.LineKindLabor))
	curTotals := reconcile.Totals(norm.Parts)

	order.Lines = norm.All
	order.PartsTotal = sumOf(norm.Parts)
	order.LaborTotal = sumOf(norm.Labor)
	order.GrandTotal = order.PartsTotal.Add(order.LaborTotal)
	if req.Settle {
		now := time.Now()
		order.SettledAt = &now
	}

	if err := o.store.PutOrder(ctx, order); err != nil {
		return nil, &PersistStepError{Step: StepOrder, Err: err}
	}

	var notices []string
	deltas := reconcile.ComputeDeltas(req.OpenSnapshot, curTotals)
	ns, err := o.inventory.Apply(ctx, order.ID, deltas, curTotals, req.OpenSnapshot)
	notices = append(notices, ns...)
	if err != nil {
		return nil, &PersistStepError{Step: StepInventory, Err: err}
	}

	// Ledger sync reads the closure date just written to the order record.
	sord := ledger.SyncOrder{
		ID:       order.ID,
		Day:      order.DayKey(),
		ClosedAt: order.SettledAt,
		Client:   order.Client,
		Vehicle:  order.Vehicle,
	}
	ns, err = o.shops.Sync(ctx, sord, reconcile.GroupByCounterparty(norm.Parts), prevParts)
	notices = append(notices, ns...)
	if err != nil {
		return nil, &PersistStepError{Step: StepLedgers, Err: err}
	}
	ns, err = o.workers.Sync(ctx, sord, reconcile.GroupByCounterparty(norm.Labor), prevLabor)
	notices = append(notices, ns...)
	if err != nil {
		return nil, &PersistStepError{Step: StepLedgers, Err: err}
	}

	o.loader.Invalidate(ctx)
	fresh, err := o.loader.Refresh(ctx)
	if err != nil {
		return nil, &PersistStepError{Step: StepRefresh, Err: err}
	}

	event := "order.saved"
	if req.Settle {
		event = "order.settled"
	}
	o.events.Publish(event, order)

	return &SaveResult{
		Order:        order,
		Warnings:     reconcile.CheckOrder(fresh, curTotals, norm.Parts),
		Notices:      notices,
		OpenSnapshot: curTotals,
		Flagged:      flagged,
	}, nil
}

// Validate recomputes warnings for the proposed rows without writing
// anything. Used per-edit and once more in bulk before save.
func (o *Orchestrator) Validate(ctx context.Context, rows []reconcile.Row, openSnapshot map[uuid.UUID]decimal.Decimal) ([]reconcile.Warning, error) {
	snap, err := o.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	norm, err := reconcile.Normalize(snap, rows, time.Now())
	if err != nil {
		return nil, err
	}
	return reconcile.CheckOrder(snap, openSnapshot, norm.Parts), nil
}

// Settle marks the stored order closed without changing its lines, then
// mirrors the closure date into both ledgers. Active warnings block it
// unless the caller may override, in which case the result is flagged.
func (o *Orchestrator) Settle(ctx context.Context, orderID uuid.UUID, allowOverride bool) (*SaveResult, error) {
	order, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.SettledAt != nil {
		return nil, ErrOrderSettled
	}
	return o.Save(ctx, SaveRequest{
		OrderID:       orderID,
		Rows:          linesToRows(order.Lines),
		OpenSnapshot:  reconcile.Totals(filterKind(order.Lines, enum.LineKindPart)),
		Settle:        true,
		AllowOverride: allowOverride,
	})
}

// Reopen clears the settled timestamp and re-derives both ledgers so
// their mirrored closure dates clear too.
func (o *Orchestrator) Reopen(ctx context.Context, orderID uuid.UUID) (*SaveResult, error) {
	order, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.SettledAt == nil {
		return nil, fmt.Errorf("order %s: %w", order.Number, ErrOrderNotSettled)
	}

	order.SettledAt = nil
	if err := o.store.PutOrder(ctx, order); err != nil {
		return nil, &PersistStepError{Step: StepOrder, Err: err}
	}

	sord := ledger.SyncOrder{
		ID:      order.ID,
		Day:     order.DayKey(),
		Client:  order.Client,
		Vehicle: order.Vehicle,
	}
	parts := reconcile.GroupByCounterparty(filterKind(order.Lines, enum.LineKindPart))
	labor := reconcile.GroupByCounterparty(filterKind(order.Lines, enum.LineKindLabor))

	var notices []string
	ns, err := o.shops.Sync(ctx, sord, parts, parts)
	notices = append(notices, ns...)
	if err != nil {
		return nil, &PersistStepError{Step: StepLedgers, Err: err}
	}
	ns, err = o.workers.Sync(ctx, sord, labor, labor)
	notices = append(notices, ns...)
	if err != nil {
		return nil, &PersistStepError{Step: StepLedgers, Err: err}
	}

	o.events.Publish("order.reopened", order)
	return &SaveResult{
		Order:        order,
		Notices:      notices,
		OpenSnapshot: reconcile.Totals(filterKind(order.Lines, enum.LineKindPart)),
	}, nil
}

// NewOrder creates an empty open order with the next sequential number.
func (o *Orchestrator) NewOrder(ctx context.Context, client, vehicle string, createdBy uuid.UUID) (domain.WorkOrder, error) {
	num, err := o.store.NextOrderNumber(ctx)
	if err != nil {
		return domain.WorkOrder{}, fmt.Errorf("next order number: %w", err)
	}
	order := domain.WorkOrder{
		ID:        uuid.New(),
		Number:    fmt.Sprintf("WO-%04d", num),
		OpenedAt:  time.Now(),
		Client:    client,
		Vehicle:   vehicle,
		CreatedBy: createdBy,
	}
	if err := o.store.CreateOrder(ctx, order); err != nil {
		return domain.WorkOrder{}, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

// --- Helpers ---

func filterKind(lines []domain.LineItem, kind string) []domain.LineItem {
	var out []domain.LineItem
	for _, l := range lines {
		if l.Kind == kind {
			out = append(out, l)
		}
	}
	return out
}

func sumOf(lines []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Sum)
	}
	return total
}

func linesToRows(lines []domain.LineItem) []reconcile.Row {
	rows := make([]reconcile.Row, len(lines))
	for i, l := range lines {
		rows[i] = reconcile.Row{
			RecordID:     l.RecordID.String(),
			Kind:         l.Kind,
			Name:         l.Name,
			Counterparty: l.Counterparty,
			Qty:          l.Qty.String(),
			Price:        l.Price.String(),
		}
		if l.InventoryID != nil {
			rows[i].InventoryID = l.InventoryID.String()
		}
	}
	return rows
}
