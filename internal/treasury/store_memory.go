package treasury

import (
	"context"
	"sort"
	"sync"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// MemoryStore keeps allocation proposals in process memory with monotonic
// ids. Records are returned by value with copied signer maps.
type MemoryStore struct {
	mu        sync.RWMutex
	next      uint64
	proposals map[id.ProposalID]Proposal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{proposals: make(map[id.ProposalID]Proposal)}
}

func (s *MemoryStore) CreateProposal(_ context.Context, p Proposal) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	p.ID = id.ProposalID(s.next)
	if p.Signers == nil {
		p.Signers = make(map[id.AccountID]bool)
	}
	s.proposals[p.ID] = p
	return copyProposal(p), nil
}

func (s *MemoryStore) Proposal(_ context.Context, proposalID id.ProposalID) (Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[proposalID]
	if !ok {
		return Proposal{}, sentinel.ErrNotFound
	}
	return copyProposal(p), nil
}

func (s *MemoryStore) UpdateProposal(_ context.Context, p Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proposals[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.proposals[p.ID] = copyProposal(p)
	return nil
}

func (s *MemoryStore) ListProposals(_ context.Context) ([]Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, copyProposal(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyProposal(p Proposal) Proposal {
	signers := make(map[id.AccountID]bool, len(p.Signers))
	for k, v := range p.Signers {
		signers[k] = v
	}
	p.Signers = signers
	return p
}
