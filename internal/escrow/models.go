package escrow

import (
	"time"

	id "custodia/pkg/domain"
)

// Transaction is a manager's request to release escrowed funds to a
// recipient once the matching fiat transfer is attested. It settles exactly
// once, when oracle confirmations reach the consensus threshold.
type Transaction struct {
	ID        id.EscrowTxID
	Amount    id.Amount
	Recipient id.AccountID
	Purpose   string
	// Confirmations records which oracles attested the fiat transfer.
	Confirmations map[id.AccountID]bool
	Released      bool
	CreatedAt     time.Time
	ReleasedAt    time.Time
}

// ConfirmationCount returns the number of distinct confirming oracles.
func (t Transaction) ConfirmationCount() int { return len(t.Confirmations) }

// Vault is the escrow view of one project: its account, its manager, and the
// running totals of everything that flowed through it.
type Vault struct {
	ProjectID id.ProjectID
	Account   id.AccountID
	Manager   id.AccountID
	// TotalEscrowed is the sum of pending, unreleased transactions. The
	// vault's uncommitted balance is its asset balance minus this.
	TotalEscrowed  id.Amount
	TotalAllocated id.Amount
	TotalDisbursed id.Amount
	TotalReturned  id.Amount
}
