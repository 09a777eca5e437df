package treasury

import (
	"context"
	"sync"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MutexLocker is an in-process keyed mutex. Locks on different ids never
// block each other.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[int64]*keyLock
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{
		locks: make(map[int64]*keyLock),
	}
}

func (l *MutexLocker) Lock(ctx context.Context, id int64) (func(), error) {
	l.mu.Lock()
	k, ok := l.locks[id]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[id] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, k)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.ch
			l.release(id, k)
		})
	}, nil
}

func (l *MutexLocker) release(id int64, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k.refs--
	if k.refs == 0 {
		delete(l.locks, id)
	}
}
