package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/enum"
)

// PayrollSummary reports one payroll settlement run for a worker.
type PayrollSummary struct {
	Worker    domain.Partner
	Settled   int
	Total     decimal.Decimal
	SettledAt time.Time
}

// SettlePayroll stamps every unsettled record across the worker's history
// with the settlement time and returns the payroll total paid out. Records
// already settled are left untouched, so the operation is idempotent.
func (o *Orchestrator) SettlePayroll(ctx context.Context, workerID uuid.UUID) (*PayrollSummary, error) {
	worker, err := o.store.GetPartner(ctx, enum.PartnerKindWorker, workerID)
	if err != nil {
		return nil, fmt.Errorf("load worker: %w", err)
	}

	now := time.Now()
	sum := PayrollSummary{Worker: worker, Total: decimal.Zero, SettledAt: now}
	for day, entries := range worker.History {
		for i := range entries {
			for j := range entries[i].Records {
				rec := &entries[i].Records[j]
				if rec.SettledAt != nil {
					continue
				}
				ts := now
				rec.SettledAt = &ts
				sum.Settled++
				sum.Total = sum.Total.Add(rec.Payroll)
			}
		}
		worker.History[day] = entries
	}

	if sum.Settled == 0 {
		return &sum, nil
	}
	if err := o.store.PutPartner(ctx, worker); err != nil {
		return nil, fmt.Errorf("settle payroll for %s: %w", worker.Name, err)
	}
	sum.Worker = worker
	o.events.Publish("payroll.settled", sum)
	return &sum, nil
}
