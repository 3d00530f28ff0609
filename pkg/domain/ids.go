// Package domain holds the typed identifiers and value objects shared across
// the custody services. IDs are distinct types so a project id can never be
// passed where an account is expected; construct them via the Parse functions
// at trust boundaries.
package domain

import (
	"strconv"

	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

// AccountID identifies any party the platform moves value for or on behalf
// of: donors, managers, oracles, emergency signers, recipients, and the
// service accounts held by the treasury and escrow vaults.
type AccountID uuid.UUID

// ZeroAccount is the nil account. Operations reject it everywhere.
var ZeroAccount AccountID

func (a AccountID) String() string { return uuid.UUID(a).String() }

// IsZero reports whether the account is the nil UUID.
func (a AccountID) IsZero() bool { return uuid.UUID(a) == uuid.Nil }

// ParseAccountID constructs an AccountID from external input.
//
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil
// UUID; no other errors are expected.
func ParseAccountID(s string) (AccountID, error) {
	if s == "" {
		return ZeroAccount, dErrors.New(dErrors.CodeInvalidInput, "account id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ZeroAccount, dErrors.New(dErrors.CodeInvalidInput, "account id is not a valid UUID")
	}
	if u == uuid.Nil {
		return ZeroAccount, dErrors.New(dErrors.CodeInvalidInput, "account id cannot be the nil UUID")
	}
	return AccountID(u), nil
}

// NewAccountID mints a fresh random account id. Used by provisioning and
// tests; external callers always arrive with an existing id.
func NewAccountID() AccountID { return AccountID(uuid.New()) }

// vaultNamespace salts deterministic vault derivation so a vault account can
// never collide with an externally supplied account id.
var vaultNamespace = uuid.MustParse("f1b4c1de-7a20-4a54-9c6f-02d9f00c5a31")

// VaultAccountID deterministically derives the escrow vault account for a
// project. The address is reproducible off-band from (projectID, manager),
// which lets auditors precompute a vault's identity before creation lands.
func VaultAccountID(projectID ProjectID, manager AccountID) AccountID {
	m := uuid.UUID(manager)
	name := make([]byte, 0, 8+16)
	name = strconv.AppendUint(name, uint64(projectID), 10)
	name = append(name, m[:]...)
	return AccountID(uuid.NewSHA1(vaultNamespace, name))
}

// ProjectID is the monotonic identity the registry assigns a project.
type ProjectID uint64

// ProposalID identifies a treasury allocation proposal.
type ProposalID uint64

// WithdrawalID identifies an emergency withdrawal proposal.
type WithdrawalID uint64

// ActionID identifies a queued timelock action.
type ActionID uint64

// EscrowTxID identifies an escrow transaction within one project vault.
type EscrowTxID uint64

// ParseProjectID parses a route parameter into a ProjectID.
func ParseProjectID(s string) (ProjectID, error) {
	n, err := parseID(s, "project id")
	return ProjectID(n), err
}

// ParseProposalID parses a route parameter into a ProposalID.
func ParseProposalID(s string) (ProposalID, error) {
	n, err := parseID(s, "proposal id")
	return ProposalID(n), err
}

// ParseWithdrawalID parses a route parameter into a WithdrawalID.
func ParseWithdrawalID(s string) (WithdrawalID, error) {
	n, err := parseID(s, "withdrawal id")
	return WithdrawalID(n), err
}

// ParseActionID parses a route parameter into an ActionID.
func ParseActionID(s string) (ActionID, error) {
	n, err := parseID(s, "action id")
	return ActionID(n), err
}

// ParseEscrowTxID parses a route parameter into an EscrowTxID.
func ParseEscrowTxID(s string) (EscrowTxID, error) {
	n, err := parseID(s, "transaction id")
	return EscrowTxID(n), err
}

func parseID(s, what string) (uint64, error) {
	if s == "" {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", what)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "%s must be a positive integer", what)
	}
	return n, nil
}
