package treasury

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps proposals in process memory.
type MemoryStore struct {
	*MutexLocker

	mu        sync.RWMutex
	seq       int64
	proposals map[int64]*Proposal
	order     []int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		MutexLocker: NewMutexLocker(),
		proposals:   make(map[int64]*Proposal),
	}
}

func (s *MemoryStore) Create(_ context.Context, d Draft) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	p := newProposal(s.seq, d)
	s.proposals[p.ID] = p
	s.order = append(s.order, p.ID)
	return p.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}

	return p.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	proposals := make([]*Proposal, 0, len(s.order))
	for _, id := range s.order {
		proposals = append(proposals, s.proposals[id].Clone())
	}

	return proposals, nil
}

func (s *MemoryStore) AppendSignature(_ context.Context, id int64, owner, signature string, at time.Time) (*Proposal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, false, ErrNotFound
	}

	added := p.appendSignature(owner, signature, at)
	return p.Clone(), added, nil
}

func (s *MemoryStore) SetExecutionOutcome(_ context.Context, id int64, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.proposals[id]; ok {
		p.applyOutcome(o)
	}

	return nil
}
