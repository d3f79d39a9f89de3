package aggregator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ichinga-Samuel/MonieWatch/pkg/client"
)

// DefaultTarget is the fallback performance target for a report when the
// caller does not supply one.
var DefaultTarget = decimal.NewFromInt(50000)

// Principal is the aggregator account whose credentials drive upstream
// fetches. Fields are plain and serializable so job payloads can carry one.
type Principal struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Mobile   int64  `json:"mobile"`
}

// Options narrows a draft build. Zero values select the defaults: dates
// default to today, the title to a templated string, and the target to
// DefaultTarget.
type Options struct {
	StartDate time.Time
	EndDate   time.Time
	Target    decimal.Decimal
	Title     string

	// Agents restricts the report to a pre-supplied roster, skipping the
	// upstream agent fetch entirely.
	Agents []client.Agent
}

// ReportDraft is the consolidated aggregation result, ready for rendering,
// upload, and email. It is assembled once and never mutated: downstream
// changes construct a new draft.
type ReportDraft struct {
	Title        string               `json:"title"`
	Agents       []client.Agent       `json:"agents"`
	Transactions []client.Transaction `json:"transactions"`
	Target       decimal.Decimal      `json:"target"`
	StartDate    time.Time            `json:"start_date"`
	EndDate      time.Time            `json:"end_date"`
}

// Total sums the draft's transaction amounts.
func (d *ReportDraft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, t := range d.Transactions {
		total = total.Add(t.Amount)
	}
	return total
}

// dedupeAgents keeps the first occurrence per AgentID, preserving order.
func dedupeAgents(agents []client.Agent) []client.Agent {
	seen := make(map[int64]struct{}, len(agents))
	out := make([]client.Agent, 0, len(agents))
	for _, a := range agents {
		if _, ok := seen[a.AgentID]; ok {
			continue
		}
		seen[a.AgentID] = struct{}{}
		out = append(out, a)
	}
	return out
}

// defaultTitle builds the templated report title for a principal and start
// date, e.g. "Transactions Report for Ada Nwosu Friday, March 14 2025".
func defaultTitle(name string, startDate time.Time) string {
	return "Transactions Report for " + name + " " + startDate.Format("Monday, January 02 2006")
}
