package treasury

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/yiplee/go-cache"
)

var (
	proposalPrefix = []byte("p:")
	sequenceKey    = []byte("s:proposal")
)

const sequenceBandwidth = 16

// BadgerStore persists proposals in badger. Ids come from a badger sequence,
// so they keep increasing across restarts (leased but unused ids are skipped).
type BadgerStore struct {
	*MutexLocker

	db        *badger.DB
	seq       *badger.Sequence
	proposals *cache.Cache[int64, *Proposal]
}

func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	seq, err := db.GetSequence(sequenceKey, sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("get proposal sequence failed: %w", err)
	}

	return &BadgerStore{
		MutexLocker: NewMutexLocker(),
		db:          db,
		seq:         seq,
		proposals:   cache.New[int64, *Proposal](),
	}, nil
}

// Close releases the leased id range. The db itself is owned by the caller.
func (s *BadgerStore) Close() error {
	return s.seq.Release()
}

func (s *BadgerStore) Create(_ context.Context, d Draft) (*Proposal, error) {
	n, err := s.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("next proposal id failed: %w", err)
	}

	p := newProposal(int64(n)+1, d)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return saveProposal(txn, p)
	}); err != nil {
		return nil, err
	}

	s.proposals.Set(p.ID, p.Clone())
	return p, nil
}

func (s *BadgerStore) Get(_ context.Context, id int64) (*Proposal, error) {
	if p, ok := s.proposals.Get(id); ok {
		return p.Clone(), nil
	}

	var p *Proposal
	if err := s.db.View(func(txn *badger.Txn) (err error) {
		p, err = findProposal(txn, id)
		return err
	}); err != nil {
		return nil, err
	}

	s.proposals.Set(id, p.Clone())
	return p, nil
}

func (s *BadgerStore) List(_ context.Context) ([]*Proposal, error) {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	return listProposals(txn)
}

func (s *BadgerStore) AppendSignature(_ context.Context, id int64, owner, signature string, at time.Time) (*Proposal, bool, error) {
	var (
		p     *Proposal
		added bool
	)

	if err := s.db.Update(func(txn *badger.Txn) (err error) {
		p, err = findProposal(txn, id)
		if err != nil {
			return err
		}

		if added = p.appendSignature(owner, signature, at); !added {
			return nil
		}

		return saveProposal(txn, p)
	}); err != nil {
		return nil, false, err
	}

	s.proposals.Set(id, p.Clone())
	return p, added, nil
}

func (s *BadgerStore) SetExecutionOutcome(_ context.Context, id int64, o Outcome) error {
	var p *Proposal

	err := s.db.Update(func(txn *badger.Txn) (err error) {
		p, err = findProposal(txn, id)
		if err != nil {
			return err
		}

		p.applyOutcome(o)
		return saveProposal(txn, p)
	})

	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	}

	s.proposals.Set(id, p.Clone())
	return nil
}

func saveProposal(txn *badger.Txn, p *Proposal) error {
	pk := buildIndexKey(proposalPrefix, p.ID)

	b, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}

	return txn.SetEntry(badger.NewEntry(pk, b))
}

func findProposal(txn *badger.Txn, id int64) (*Proposal, error) {
	item, err := txn.Get(buildIndexKey(proposalPrefix, id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	var p Proposal
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	}); err != nil {
		return nil, err
	}

	return &p, nil
}

func listProposals(txn *badger.Txn) ([]*Proposal, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 100
	it := txn.NewIterator(opts)
	defer it.Close()

	var proposals []*Proposal
	for it.Seek(proposalPrefix); it.ValidForPrefix(proposalPrefix); it.Next() {
		item := it.Item()

		var id int64
		if err := decodeIndexKey(item.Key(), proposalPrefix, &id); err != nil {
			return nil, fmt.Errorf("decode proposal key failed: %w", err)
		}

		var p Proposal
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		}); err != nil {
			return nil, err
		}

		if p.ID != id {
			return nil, fmt.Errorf("proposal key %d holds proposal %d", id, p.ID)
		}

		proposals = append(proposals, &p)
	}

	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].ID < proposals[j].ID
	})

	return proposals, nil
}
