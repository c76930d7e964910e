package payment

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
)

// Unlock releases a held keyed lock.
type Unlock func()

// KeyedLock serializes concurrent reconciliation attempts for the same
// payment reference. TryAcquire never blocks: a held key returns ok=false
// and the caller surfaces Busy instead of queueing a live user session.
type KeyedLock interface {
	TryAcquire(ctx context.Context, key string) (unlock Unlock, ok bool, err error)
}

// MemoryLock is a process-local keyed lock, used in tests and single-node
// deployments.
type MemoryLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLock creates a new in-process keyed lock
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{held: make(map[string]struct{})}
}

// TryAcquire takes the key if free; ok=false if another caller holds it
func (l *MemoryLock) TryAcquire(_ context.Context, key string) (Unlock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[key]; taken {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return unlock, true, nil
}

// AdvisoryLock is a PostgreSQL advisory-lock backed keyed lock, giving
// mutual exclusion across processes. Each acquisition pins a dedicated
// connection so the unlock runs on the same session that took the lock.
type AdvisoryLock struct {
	db *sql.DB
}

// NewAdvisoryLock creates an advisory lock over the shared database
func NewAdvisoryLock(db *sql.DB) *AdvisoryLock {
	return &AdvisoryLock{db: db}
}

// TryAcquire attempts pg_try_advisory_lock on a hash of the key
func (l *AdvisoryLock) TryAcquire(ctx context.Context, key string) (Unlock, bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to pin connection for lock: %w", err)
	}

	id := lockID(key)

	var got bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&got); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !got {
		conn.Close()
		return nil, false, nil
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// Background context: the lock must be released even when the
			// request context is already cancelled. Closing the connection
			// releases the lock anyway, as a last resort.
			_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, id)
			conn.Close()
		})
	}
	return unlock, true, nil
}

// lockID maps a lock key to the advisory lock keyspace.
func lockID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}
