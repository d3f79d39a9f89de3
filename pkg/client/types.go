package client

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// TransactionStatusCompleted is the only status retained by ingestion.
const TransactionStatusCompleted = "COMPLETED"

// Agent is an upstream agent record. Identity is AgentID; a fetched agent
// is never mutated.
type Agent struct {
	AgentID int64  `json:"agent_id"`
	Name    string `json:"name"`
	Mobile  int64  `json:"mobile"`
}

// Transaction is one settled upstream transaction. Values are immutable
// once created from an upstream record.
type Transaction struct {
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	Reversed         bool            `json:"reversed"`
	ShouldBeReversed bool            `json:"should_be_reversed"`
	AgentID          int64           `json:"agent_id"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Settled reports whether a transaction survives the ingestion filter:
// completed and not reversed in either direction.
func (t Transaction) Settled() bool {
	return t.Status == TransactionStatusCompleted && !t.Reversed && !t.ShouldBeReversed
}

// FilterSettled returns only the settled, non-reversed transactions.
// Applying it twice yields the same result as once.
func FilterSettled(transactions []Transaction) []Transaction {
	out := make([]Transaction, 0, len(transactions))
	for _, t := range transactions {
		if t.Settled() {
			out = append(out, t)
		}
	}
	return out
}

// Profile is the principal's upstream profile.
type Profile struct {
	Name   string `json:"name"`
	Mobile int64  `json:"mobile"`
}

// titleCase upper-cases the first letter of each word, matching how agent
// business names are displayed upstream.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := true
	for _, r := range s {
		if prevSpace {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		prevSpace = unicode.IsSpace(r)
	}
	return b.String()
}
