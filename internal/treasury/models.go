package treasury

import (
	"time"

	id "custodia/pkg/domain"
)

// Proposal is a quorum-gated request to move pooled treasury funds into a
// project's escrow vault. Signatures expire with the proposal.
type Proposal struct {
	ID        id.ProposalID
	ProjectID id.ProjectID
	Amount    id.Amount
	Purpose   string
	Signers   map[id.AccountID]bool
	Executed  bool
	CreatedAt time.Time
}

// SignatureCount returns the number of distinct signers collected so far.
func (p Proposal) SignatureCount() int { return len(p.Signers) }

// Totals is a snapshot of the treasury's lifetime counters.
type Totals struct {
	// Deposited accumulates every accepted deposit.
	Deposited id.Amount
	// Allocated accumulates every executed allocation.
	Allocated id.Amount
}
