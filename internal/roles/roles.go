// Package roles is the capability service every operation queries before
// mutating state. Grants stay centralized and auditable here rather than
// inlined per entry point.
package roles

import (
	"sync"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// Capability is an abstract role gating a class of operations.
type Capability string

const (
	CapAdmin           Capability = "admin"
	CapEmergencySigner Capability = "emergency-signer"
	CapOracle          Capability = "oracle"
	CapProjectManager  Capability = "project-manager"
	CapTreasurer       Capability = "treasurer"
	CapAllocator       Capability = "allocator"
	CapMinter          Capability = "minter"
	CapBurner          Capability = "burner"
	CapPauser          Capability = "pauser"
)

// Service answers has(caller, capability) for every component.
type Service struct {
	mu     sync.RWMutex
	grants map[id.AccountID]map[Capability]bool
}

func NewService() *Service {
	return &Service{grants: make(map[id.AccountID]map[Capability]bool)}
}

// Has reports whether the account holds the capability.
func (s *Service) Has(account id.AccountID, cap Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[account][cap]
}

// Require returns a Forbidden error when the account lacks the capability.
func (s *Service) Require(account id.AccountID, cap Capability) error {
	if account.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
	}
	if !s.Has(account, cap) {
		return dErrors.Newf(dErrors.CodeForbidden, "caller lacks %s capability", cap)
	}
	return nil
}

// Grant gives the account a capability. Idempotent.
func (s *Service) Grant(account id.AccountID, cap Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[account] == nil {
		s.grants[account] = make(map[Capability]bool)
	}
	s.grants[account][cap] = true
}

// Revoke removes a capability from the account. Idempotent.
func (s *Service) Revoke(account id.AccountID, cap Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caps := s.grants[account]; caps != nil {
		delete(caps, cap)
		if len(caps) == 0 {
			delete(s.grants, account)
		}
	}
}

// Holders returns how many accounts currently hold the capability.
func (s *Service) Holders(cap Capability) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, caps := range s.grants {
		if caps[cap] {
			n++
		}
	}
	return n
}
