package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bengkelku/api/internal/domain"
)

func TestResolveIdentityExactID(t *testing.T) {
	id := uuid.New()
	prev := []domain.LedgerRecord{
		{RecordID: uuid.New(), Name: "Oil Change"},
		{RecordID: id, Name: "Brake Service", RecordedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	m := ResolveIdentity(prev, id, "Completely Renamed")
	if m.Kind != MatchExactID {
		t.Fatalf("kind: got %s, want exact-id", m.Kind)
	}
	if m.Record.Name != "Brake Service" {
		t.Errorf("matched wrong record: %q", m.Record.Name)
	}
}

func TestResolveIdentityExactName(t *testing.T) {
	prev := []domain.LedgerRecord{
		{RecordID: uuid.New(), Name: "Brake  Service"},
	}

	m := ResolveIdentity(prev, uuid.New(), "brake service")
	if m.Kind != MatchExactName {
		t.Fatalf("kind: got %s, want exact-name", m.Kind)
	}
}

func TestResolveIdentityFuzzyPrefix(t *testing.T) {
	long := "replace front suspension arm bushings both sides"
	prev := []domain.LedgerRecord{
		{RecordID: uuid.New(), Name: long},
	}

	// Same first 30 normalized runes, different tail.
	edited := strings.ToUpper(long[:32]) + " left only"
	m := ResolveIdentity(prev, uuid.New(), edited)
	if m.Kind != MatchFuzzyName {
		t.Fatalf("kind: got %s, want fuzzy-name", m.Kind)
	}
}

func TestResolveIdentityNew(t *testing.T) {
	prev := []domain.LedgerRecord{
		{RecordID: uuid.New(), Name: "Oil Change"},
	}

	m := ResolveIdentity(prev, uuid.New(), "Wheel Alignment")
	if m.Kind != MatchNew {
		t.Fatalf("kind: got %s, want new", m.Kind)
	}
}

func TestResolveIdentityPrefersIDOverName(t *testing.T) {
	id := uuid.New()
	prev := []domain.LedgerRecord{
		{RecordID: uuid.New(), Name: "Oil Change"},
		{RecordID: id, Name: "Something Else"},
	}

	m := ResolveIdentity(prev, id, "Oil Change")
	if m.Kind != MatchExactID {
		t.Fatalf("kind: got %s, want exact-id", m.Kind)
	}
	if m.Record.RecordID != id {
		t.Error("matched by name even though identity was present")
	}
}
