package asset

import (
	"context"
	"errors"
	"sync"

	id "custodia/pkg/domain"
)

// ErrInsufficientFunds is returned when a transfer exceeds the sender's
// balance. Callers revalidate sufficiency before moving funds, so hitting it
// indicates a caller bug rather than a user error.
var ErrInsufficientFunds = errors.New("asset: insufficient funds")

// Memory is the in-process stand-in for the funding token, used in wiring
// without an external token and throughout the tests. Approvals are out of
// scope; TransferFrom behaves like Transfer.
type Memory struct {
	mu       sync.RWMutex
	decimals int
	balances map[id.AccountID]id.Amount
}

func NewMemory(decimals int) *Memory {
	return &Memory{
		decimals: decimals,
		balances: make(map[id.AccountID]id.Amount),
	}
}

func (m *Memory) BalanceOf(_ context.Context, account id.AccountID) (id.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account], nil
}

func (m *Memory) Transfer(_ context.Context, from, to id.AccountID, amount id.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[from] < amount {
		return ErrInsufficientFunds
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

func (m *Memory) TransferFrom(ctx context.Context, from, to id.AccountID, amount id.Amount) error {
	return m.Transfer(ctx, from, to, amount)
}

func (m *Memory) Decimals(_ context.Context) (int, error) {
	return m.decimals, nil
}

// Issue credits an account out of thin air. Provisioning and test helper.
func (m *Memory) Issue(account id.AccountID, amount id.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}
