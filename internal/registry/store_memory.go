package registry

import (
	"context"
	"sort"
	"sync"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// MemoryStore keeps registry records in process memory with monotonic ids.
// Records are returned by value with copied maps so callers cannot alias
// store state.
type MemoryStore struct {
	mu sync.RWMutex

	nextProject    uint64
	nextWithdrawal uint64
	nextAction     uint64

	projects    map[id.ProjectID]Project
	withdrawals map[id.WithdrawalID]EmergencyWithdrawal
	actions     map[id.ActionID]TimelockAction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:    make(map[id.ProjectID]Project),
		withdrawals: make(map[id.WithdrawalID]EmergencyWithdrawal),
		actions:     make(map[id.ActionID]TimelockAction),
	}
}

func (s *MemoryStore) CreateProject(_ context.Context, p Project) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProject++
	p.ID = id.ProjectID(s.nextProject)
	s.projects[p.ID] = p
	return p, nil
}

func (s *MemoryStore) Project(_ context.Context, projectID id.ProjectID) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return Project{}, sentinel.ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) UpdateProject(_ context.Context, p Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.projects[p.ID] = p
	return nil
}

func (s *MemoryStore) ListProjects(_ context.Context) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateWithdrawal(_ context.Context, w EmergencyWithdrawal) (EmergencyWithdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWithdrawal++
	w.ID = id.WithdrawalID(s.nextWithdrawal)
	if w.Signers == nil {
		w.Signers = make(map[id.AccountID]bool)
	}
	s.withdrawals[w.ID] = w
	return copyWithdrawal(w), nil
}

func (s *MemoryStore) Withdrawal(_ context.Context, withdrawalID id.WithdrawalID) (EmergencyWithdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.withdrawals[withdrawalID]
	if !ok {
		return EmergencyWithdrawal{}, sentinel.ErrNotFound
	}
	return copyWithdrawal(w), nil
}

func (s *MemoryStore) UpdateWithdrawal(_ context.Context, w EmergencyWithdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.withdrawals[w.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.withdrawals[w.ID] = copyWithdrawal(w)
	return nil
}

func (s *MemoryStore) CreateAction(_ context.Context, a TimelockAction) (TimelockAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAction++
	a.ID = id.ActionID(s.nextAction)
	s.actions[a.ID] = a
	return a, nil
}

func (s *MemoryStore) Action(_ context.Context, actionID id.ActionID) (TimelockAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[actionID]
	if !ok {
		return TimelockAction{}, sentinel.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) UpdateAction(_ context.Context, a TimelockAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.actions[a.ID] = a
	return nil
}

func copyWithdrawal(w EmergencyWithdrawal) EmergencyWithdrawal {
	signers := make(map[id.AccountID]bool, len(w.Signers))
	for k, v := range w.Signers {
		signers[k] = v
	}
	w.Signers = signers
	return w
}
