package registry

import (
	"time"

	"custodia/internal/asset"
	id "custodia/pkg/domain"
)

// Project is a registered recipient of treasury allocations. Its vault
// account is derived deterministically from the project id and manager, so
// auditors can compute it before creation lands.
type Project struct {
	ID          id.ProjectID
	Vault       id.AccountID
	Manager     id.AccountID
	MetadataRef string
	Active      bool
	CreatedAt   time.Time
	// TotalAllocated accumulates every executed allocation. It never
	// decreases, including after deactivation.
	TotalAllocated id.Amount
}

// EmergencyWithdrawal is a multisig proposal to move custody funds to a
// recovery address while the system is paused. Signatures expire with the
// proposal; an expired proposal can never execute.
type EmergencyWithdrawal struct {
	ID        id.WithdrawalID
	Amount    id.Amount
	Recipient id.AccountID
	Signers   map[id.AccountID]bool
	Executed  bool
	CreatedAt time.Time
}

// SignatureCount returns the number of distinct signers collected so far.
func (w EmergencyWithdrawal) SignatureCount() int { return len(w.Signers) }

// ActionKind names the governance operations that must pass the timelock.
type ActionKind string

const (
	// KindDeactivateProject stops future allocations to a project.
	KindDeactivateProject ActionKind = "deactivate_project"
	// KindUpdateFundingToken swaps the funding asset reference.
	KindUpdateFundingToken ActionKind = "update_funding_token"
)

// TimelockAction is a queued governance change. It becomes executable only
// after the timelock delay has fully elapsed.
type TimelockAction struct {
	ID       id.ActionID
	Kind     ActionKind
	QueuedAt time.Time
	Executed bool

	// ProjectID is set for KindDeactivateProject.
	ProjectID id.ProjectID
	// Token is set for KindUpdateFundingToken.
	Token asset.Fungible
}
