package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
)

// lockEntry is one customer's mutex. The buffered channel lets waiters give up on ctx.
type lockEntry struct {
	held chan struct{}
	refs int
}

// CustomerLocker is an in-process lock keyed by customer id. Entries exist only while
// someone holds or waits for them.
type CustomerLocker struct {
	mu      sync.Mutex
	locks   map[string]*lockEntry
	timeout time.Duration
	logger  *slog.Logger
}

// NewCustomerLocker creates a locker whose waits give up after timeout (0 waits for ctx only)
func NewCustomerLocker(timeout time.Duration, logger *slog.Logger) *CustomerLocker {
	return &CustomerLocker{
		locks:   make(map[string]*lockEntry),
		timeout: timeout,
		logger:  logger,
	}
}

// Lock acquires the customer's lock. The returned unlock is safe to call more than once.
func (l *CustomerLocker) Lock(ctx context.Context, customerID string) (func(), error) {
	entry := l.acquireRef(customerID)

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	select {
	case entry.held <- struct{}{}:
	case <-waitCtx.Done():
		l.releaseRef(customerID, entry)
		l.logger.Warn("Timed out waiting for customer lock", "customer_id", customerID, "error", waitCtx.Err())
		return nil, fmt.Errorf("customer %s is busy: %w", customerID, ledger.ErrConflict)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.held
			l.releaseRef(customerID, entry)
		})
	}, nil
}

// Held reports how many customers currently have a lock entry
func (l *CustomerLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *CustomerLocker) acquireRef(customerID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[customerID]
	if !ok {
		entry = &lockEntry{held: make(chan struct{}, 1)}
		l.locks[customerID] = entry
	}
	entry.refs++
	return entry
}

func (l *CustomerLocker) releaseRef(customerID string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, customerID)
	}
}
