package reconcile

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestComputeDeltas(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	prev := map[uuid.UUID]decimal.Decimal{
		a: d("2"),
		b: d("1"),
	}
	cur := map[uuid.UUID]decimal.Decimal{
		a: d("5"),   // increased
		c: d("0.5"), // new
		// b dropped
	}

	deltas := ComputeDeltas(prev, cur)

	if len(deltas) != 3 {
		t.Fatalf("deltas: got %d entries, want 3", len(deltas))
	}
	if !deltas[a].Equal(d("3")) {
		t.Errorf("delta[a]: got %s, want 3", deltas[a])
	}
	if !deltas[b].Equal(d("-1")) {
		t.Errorf("delta[b]: got %s, want -1", deltas[b])
	}
	if !deltas[c].Equal(d("0.5")) {
		t.Errorf("delta[c]: got %s, want 0.5", deltas[c])
	}
}

func TestComputeDeltasOmitsZero(t *testing.T) {
	a := uuid.New()
	prev := map[uuid.UUID]decimal.Decimal{a: d("2")}
	cur := map[uuid.UUID]decimal.Decimal{a: d("2.0")}

	if deltas := ComputeDeltas(prev, cur); len(deltas) != 0 {
		t.Errorf("expected empty delta map, got %v", deltas)
	}
}

func TestComputeDeltasIdempotent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	cur := map[uuid.UUID]decimal.Decimal{a: d("3"), b: d("7")}

	// After a save, the open snapshot equals the current totals;
	// re-running must produce nothing to apply.
	if deltas := ComputeDeltas(cur, cur); len(deltas) != 0 {
		t.Errorf("expected empty delta map, got %v", deltas)
	}
}

func TestComputeDeltasSumConservation(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	prev := map[uuid.UUID]decimal.Decimal{a: d("4"), b: d("2")}
	cur := map[uuid.UUID]decimal.Decimal{a: d("1"), b: d("9")}

	deltas := ComputeDeltas(prev, cur)

	sumDeltas, sumPrev, sumCur := decimal.Zero, decimal.Zero, decimal.Zero
	for _, v := range deltas {
		sumDeltas = sumDeltas.Add(v)
	}
	for _, v := range prev {
		sumPrev = sumPrev.Add(v)
	}
	for _, v := range cur {
		sumCur = sumCur.Add(v)
	}
	if !sumDeltas.Equal(sumCur.Sub(sumPrev)) {
		t.Errorf("sum(deltas)=%s, want %s", sumDeltas, sumCur.Sub(sumPrev))
	}
}
