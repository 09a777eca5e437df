package treasury

import (
	"context"
	"time"
)

// Locker grants exclusive access to a single proposal. The returned unlock
// func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, id int64) (unlock func(), err error)
}

// ProposalStore holds proposals. It has no business logic besides id
// assignment; every returned proposal is a copy owned by the caller.
//
// Callers must hold Lock(id) across any read-modify-write sequence on a
// single proposal.
type ProposalStore interface {
	Locker

	Create(ctx context.Context, d Draft) (*Proposal, error)
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id int64) (*Proposal, error)
	// List returns every proposal in creation order.
	List(ctx context.Context) ([]*Proposal, error)
	// AppendSignature is idempotent per owner; the bool reports whether the
	// signature was appended. at stamps the signature.
	AppendSignature(ctx context.Context, id int64, owner, signature string, at time.Time) (*Proposal, bool, error)
	// SetExecutionOutcome is a no-op for unknown ids.
	SetExecutionOutcome(ctx context.Context, id int64, o Outcome) error
}

type lockedStore struct {
	ProposalStore
	locker Locker
}

func (s *lockedStore) Lock(ctx context.Context, id int64) (func(), error) {
	return s.locker.Lock(ctx, id)
}

// WithLocker replaces the store's own per-proposal locking, typically with a
// RedisLocker so several processes can share one store.
func WithLocker(store ProposalStore, locker Locker) ProposalStore {
	return &lockedStore{
		ProposalStore: store,
		locker:        locker,
	}
}
