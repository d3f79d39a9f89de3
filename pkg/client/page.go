package client

import (
	"time"

	"github.com/shopspring/decimal"
)

// Upstream response codes.
const (
	responseCodeOK           = "20000"
	responseCodeInvalidGrant = "invalid_grant"
)

// pageEnvelope is the shared shape of paginated upstream responses. Both
// the agents and consolidated-transactions endpoints use it; unused record
// slices simply stay empty. An envelope is ephemeral: multi-page fetches
// merge later pages into page 1's envelope and discard them.
type pageEnvelope struct {
	ResponseCode             string              `json:"responseCode"`
	TotalPages               int                 `json:"totalPages"`
	Agents                   []agentRecord       `json:"agents"`
	ConsolidatedTransactions []transactionRecord `json:"consolidatedTransactions"`
	Profile                  *profileRecord      `json:"profile"`

	// DroppedPages counts pages that exhausted retries during a multi-page
	// fetch. Always zero for a complete result; callers can tell a partial
	// merge from a genuinely small one.
	DroppedPages int `json:"-"`
}

// merge appends another page's records. Record order within each page is
// preserved; order across pages carries no upstream meaning.
func (e *pageEnvelope) merge(other *pageEnvelope) {
	if other == nil {
		return
	}
	e.Agents = append(e.Agents, other.Agents...)
	e.ConsolidatedTransactions = append(e.ConsolidatedTransactions, other.ConsolidatedTransactions...)
}

// agentRecord is the upstream wire shape of an agent.
type agentRecord struct {
	ID           int64  `json:"id"`
	BusinessName string `json:"businessName"`
	MobileNumber int64  `json:"mobileNumber"`
}

func (r agentRecord) toAgent() Agent {
	return Agent{
		AgentID: r.ID,
		Name:    titleCase(r.BusinessName),
		Mobile:  r.MobileNumber,
	}
}

// transactionRecord is the upstream wire shape of a transaction.
type transactionRecord struct {
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	Reversed         bool            `json:"reversed"`
	ShouldBeReversed bool            `json:"shouldBeReversed"`
	AgentID          int64           `json:"agentId"`
	TransactionTime  time.Time       `json:"transactionTime"`
}

func (r transactionRecord) toTransaction() Transaction {
	return Transaction{
		Reference:        r.Reference,
		Amount:           r.Amount,
		Status:           r.Status,
		Reversed:         r.Reversed,
		ShouldBeReversed: r.ShouldBeReversed,
		AgentID:          r.AgentID,
		Timestamp:        r.TransactionTime,
	}
}

// profileRecord is the upstream wire shape of the principal's profile.
type profileRecord struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	MobileNumber int64  `json:"mobileNumber"`
}

// authEnvelope is the response shape of the token exchange.
type authEnvelope struct {
	ResponseCode string `json:"responseCode"`
	TokenData    struct {
		AccessToken string `json:"access_token"`
	} `json:"tokenData"`
}
