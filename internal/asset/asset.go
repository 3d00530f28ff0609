// Package asset defines the fungible funding-token port the custody core
// depends on. The real token lives off-platform; the core only queries
// balances, moves units between accounts it controls, and validates the
// token's precision.
package asset

//go:generate mockgen -source=asset.go -destination=mocks/mocks.go -package=mocks Fungible

import (
	"context"
	"sync"

	id "custodia/pkg/domain"
)

// Fungible is the stable-valued funding asset.
type Fungible interface {
	// BalanceOf returns the asset units held by the account.
	BalanceOf(ctx context.Context, account id.AccountID) (id.Amount, error)
	// Transfer moves units from an account the caller controls.
	Transfer(ctx context.Context, from, to id.AccountID, amount id.Amount) error
	// TransferFrom pulls units a holder made available to the platform.
	TransferFrom(ctx context.Context, from, to id.AccountID, amount id.Amount) error
	// Decimals reports the token's precision. The core requires 6.
	Decimals(ctx context.Context) (int, error)
}

// Source holds the current funding-token reference. The registry swaps it
// through the timelock path; every service resolves the token per operation
// so a swap takes effect immediately and atomically.
type Source struct {
	mu    sync.RWMutex
	token Fungible
}

func NewSource(token Fungible) *Source {
	return &Source{token: token}
}

// Token returns the current funding asset.
func (s *Source) Token() Fungible {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Replace swaps the funding asset reference. Registry timelock path only.
func (s *Source) Replace(token Fungible) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}
