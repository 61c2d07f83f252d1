package reconcile

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/enum"
)

func stockItem(onHand, consumed, price string) domain.InventoryItem {
	return domain.InventoryItem{
		ID:       uuid.New(),
		Name:     "Oil Filter",
		Price:    d(price),
		OnHand:   d(onHand),
		Consumed: d(consumed),
		Unit:     "pcs",
	}
}

func TestCheckQuantity(t *testing.T) {
	tests := []struct {
		name      string
		onHand    string
		consumed  string
		prior     string
		input     string
		wantWarn  bool
		wantShort string
	}{
		{"within stock", "10", "0", "2", "9", false, ""},
		{"exactly exhausts stock", "10", "0", "2", "12", false, ""},
		{"over stock", "10", "0", "2", "15", true, "3"},
		{"reduction never warns", "5", "5", "5", "2", false, ""},
		{"fresh line over stock", "1", "0", "0", "2.5", true, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := stockItem(tt.onHand, tt.consumed, "100")
			w := CheckQuantity(item, d(tt.prior), d(tt.input))
			if (w != nil) != tt.wantWarn {
				t.Fatalf("warn: got %v, want %v", w, tt.wantWarn)
			}
			if w != nil {
				if w.Field != enum.WarningFieldQuantity {
					t.Errorf("field: got %s", w.Field)
				}
				if !strings.Contains(w.Message, tt.wantShort) || !strings.Contains(w.Message, "pcs") {
					t.Errorf("message %q should state shortfall %s and unit", w.Message, tt.wantShort)
				}
			}
		})
	}
}

func TestMinPrice(t *testing.T) {
	if got := MinPrice(d("100"), d("20")); !got.Equal(d("120")) {
		t.Errorf("min price: got %s, want 120", got)
	}
	if got := MinPrice(d("33.33"), d("10")); !got.Equal(d("36.66")) {
		t.Errorf("min price: got %s, want 36.66", got)
	}
}

func TestCheckPrice(t *testing.T) {
	item := stockItem("10", "0", "100")
	markup := d("20")

	if w := CheckPrice(item, markup, d("110")); w == nil {
		t.Error("price 110 below minimum 120 should warn")
	} else if w.Field != enum.WarningFieldPrice {
		t.Errorf("field: got %s", w.Field)
	}
	if w := CheckPrice(item, markup, d("120")); w != nil {
		t.Errorf("price 120 at minimum should not warn: %v", w)
	}
	if w := CheckPrice(item, markup, d("0")); w != nil {
		t.Errorf("zero price is allowed: %v", w)
	}
}

func TestCheckOrder(t *testing.T) {
	itemID := uuid.New()
	snap := testSnapshot(itemID)
	openSnap := map[uuid.UUID]decimal.Decimal{itemID: d("2")}

	recordID := uuid.New()
	parts := []domain.LineItem{{
		RecordID:    recordID,
		Kind:        enum.LineKindPart,
		Name:        "Oil Filter",
		InventoryID: &itemID,
		Qty:         d("15"),
		Price:       d("110"),
	}}

	warnings := CheckOrder(snap, openSnap, parts)
	if len(warnings) != 2 {
		t.Fatalf("warnings: got %d, want quantity + price", len(warnings))
	}
	for _, w := range warnings {
		if w.RecordID != recordID {
			t.Errorf("warning not tied to row: %v", w)
		}
	}
}

func TestCheckOrderSkipsUnknownInventory(t *testing.T) {
	snap := testSnapshot(uuid.New())
	ghost := uuid.New()
	parts := []domain.LineItem{{
		RecordID:    uuid.New(),
		InventoryID: &ghost,
		Qty:         d("99"),
		Price:       d("1"),
	}}

	if warnings := CheckOrder(snap, nil, parts); len(warnings) != 0 {
		t.Errorf("unknown inventory id should be skipped, got %v", warnings)
	}
}
