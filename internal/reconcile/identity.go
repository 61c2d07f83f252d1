package reconcile

import (
	"github.com/google/uuid"

	"github.com/bengkelku/api/internal/domain"
)

// MatchKind tags how a line item was matched to a previous ledger record.
// Call sites log or flag the weaker kinds instead of silently accepting them.
type MatchKind int

const (
	MatchNew MatchKind = iota
	MatchExactID
	MatchExactName
	MatchFuzzyName
)

func (k MatchKind) String() string {
	switch k {
	case MatchExactID:
		return "exact-id"
	case MatchExactName:
		return "exact-name"
	case MatchFuzzyName:
		return "fuzzy-name"
	}
	return "new"
}

// fuzzyPrefixLen is the number of leading runes of a normalized name the
// last-resort match compares. Inherited behavior; kept as-is and only ever
// used to carry dates forward, never to merge quantities.
const fuzzyPrefixLen = 30

// Match is the outcome of resolving a line against previous records.
type Match struct {
	Kind   MatchKind
	Record domain.LedgerRecord
}

// ResolveIdentity finds the previous ledger record a line item corresponds
// to: exact record-identity match first, then exact normalized-name match,
// then a best-effort prefix match on the normalized name. The match exists
// solely to preserve recorded-at (and settled-at) timestamps across edits.
func ResolveIdentity(previous []domain.LedgerRecord, recordID uuid.UUID, name string) Match {
	for _, r := range previous {
		if r.RecordID == recordID {
			return Match{Kind: MatchExactID, Record: r}
		}
	}

	want := domain.NormalizeName(name)
	for _, r := range previous {
		if domain.NormalizeName(r.Name) == want {
			return Match{Kind: MatchExactName, Record: r}
		}
	}

	prefix := truncate(want, fuzzyPrefixLen)
	if prefix != "" {
		for _, r := range previous {
			if truncate(domain.NormalizeName(r.Name), fuzzyPrefixLen) == prefix {
				return Match{Kind: MatchFuzzyName, Record: r}
			}
		}
	}
	return Match{Kind: MatchNew}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
