package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mycelium-customer-ledger/internal/domain/customer"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/platform/persistence"
)

// LedgerServiceImpl runs every mutation as: customer lock, then one database transaction that
// locks the customer's balance row, writes the entry, recomputes the affected suffix, saves
// the DebtIndex and enqueues the change event.
type LedgerServiceImpl struct {
	txRunner      persistence.TxRunner
	ledgerRepo    ledger.Repository
	debtIndex     customer.DebtIndex
	directory     customer.Directory
	locker        CustomerLocker
	outboxManager OutboxManager
	logger        *slog.Logger
	txTimeout     time.Duration
	now           Clock
}

// LedgerServiceConfig holds the engine's tunables
type LedgerServiceConfig struct {
	TransactionTimeout time.Duration
	Clock              Clock
}

func NewLedgerService(
	txRunner persistence.TxRunner,
	ledgerRepo ledger.Repository,
	debtIndex customer.DebtIndex,
	directory customer.Directory,
	locker CustomerLocker,
	outboxManager OutboxManager,
	cfg LedgerServiceConfig,
	logger *slog.Logger,
) *LedgerServiceImpl {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &LedgerServiceImpl{
		txRunner:      txRunner,
		ledgerRepo:    ledgerRepo,
		debtIndex:     debtIndex,
		directory:     directory,
		locker:        locker,
		outboxManager: outboxManager,
		logger:        logger,
		txTimeout:     cfg.TransactionTimeout,
		now:           now,
	}
}

// txScope is the set of repositories bound to one transaction
type txScope struct {
	tx      pgx.Tx
	entries ledger.Repository
	index   customer.DebtIndex
}

// recomputeResult is what a suffix recompute leaves behind
type recomputeResult struct {
	suffix  []*ledger.Entry
	changed int
	final   int64
}

// CreateEntry inserts an entry at its canonical position and returns it with its running balance
func (s *LedgerServiceImpl) CreateEntry(ctx context.Context, req CreateEntryRequest) (*ledger.Entry, error) {
	logger := s.requestLogger(req.CorrelationID).With("customer_id", req.Params.CustomerID, "source", string(req.Source))

	if req.Params.ReferenceID != "" && req.Source != ledger.SourceSalesBridge {
		return nil, ledger.ValidationError{Field: "reference_id", Reason: "is set only by the sales bridge"}
	}

	entry, err := ledger.NewEntry(req.Params, s.now().UTC())
	if err != nil {
		logger.Warn("Rejected ledger entry", "error", err)
		return nil, err
	}

	// LockBalance reports an unknown customer, so existence is checked under the lock
	err = s.mutate(ctx, entry.CustomerID, "create ledger entry", func(ctx context.Context, scope txScope) error {
		balance, err := scope.index.LockBalance(ctx, entry.CustomerID)
		if err != nil {
			return err
		}

		if entry.HasReference() {
			linked, err := scope.entries.ListByReference(ctx, entry.CustomerID, *entry.ReferenceID)
			if err != nil {
				return err
			}
			if err := checkSaleEvent(entry, linked, req.ClampToRemaining); err != nil {
				return err
			}
		}

		entry.SequenceNo = balance.NextSequence()
		base, err := scope.entries.BalanceBefore(ctx, entry.CustomerID, entry.Position())
		if err != nil {
			return err
		}
		entry.RunningBalance = base + entry.Delta()

		if err := scope.entries.Insert(ctx, entry); err != nil {
			return err
		}

		result, err := s.foldFrom(ctx, scope, entry.CustomerID, entry.Position(), base)
		if err != nil {
			return err
		}

		balance.CurrentBalance = result.final
		balance.EntryCount++
		balance.UpdatedAt = entry.CreatedAt
		if err := scope.index.Save(ctx, balance); err != nil {
			return err
		}

		return s.outboxManager.Enqueue(ctx, scope.tx, &ledger.ChangeEvent{
			EventID:         uuid.New(),
			Type:            ledger.EventEntryCreated,
			CustomerID:      entry.CustomerID,
			EntryID:         entry.ID,
			After:           entry.Clone(),
			RecomputedCount: result.changed + 1,
			CurrentBalance:  result.final,
			Source:          req.Source,
			CorrelationID:   req.CorrelationID,
			OccurredAt:      entry.CreatedAt,
		})
	})
	if err != nil {
		s.logFailure(logger, "Failed to create ledger entry", err)
		return nil, err
	}

	logger.Info("Ledger entry created",
		"entry_id", entry.ID.String(),
		"transaction_type", string(entry.Type),
		"amount", entry.Amount,
		"running_balance", entry.RunningBalance)
	return entry, nil
}

// UpdateEntry changes the mutable fields of an entry. A change whose values match the stored
// ones writes nothing. The entry keeps its sequence number.
func (s *LedgerServiceImpl) UpdateEntry(ctx context.Context, req UpdateEntryRequest) (*ledger.Entry, error) {
	logger := s.requestLogger(req.CorrelationID).With("entry_id", req.EntryID, "source", string(req.Source))

	id, err := parseEntryID(req.EntryID)
	if err != nil {
		return nil, err
	}
	if err := req.Changes.Validate(); err != nil {
		logger.Warn("Rejected ledger entry update", "error", err)
		return nil, err
	}

	current, err := s.ledgerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, ledger.WrapStorage("get ledger entry", err)
	}
	logger = logger.With("customer_id", current.CustomerID)

	var result *ledger.Entry
	err = s.mutate(ctx, current.CustomerID, "update ledger entry", func(ctx context.Context, scope txScope) error {
		balance, err := scope.index.LockBalance(ctx, current.CustomerID)
		if err != nil {
			return err
		}

		// re-read under the lock; the entry may have changed or vanished since
		before, err := scope.entries.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := checkSaleLink(before, req.Source); err != nil {
			return err
		}

		after, changed, err := before.Apply(req.Changes, s.now().UTC())
		if err != nil {
			return err
		}
		if !changed {
			result = before
			return nil
		}

		if err := scope.entries.Update(ctx, after); err != nil {
			return err
		}

		recomputed, err := s.recompute(ctx, scope, after.CustomerID, ledger.MinPosition(before.Position(), after.Position()))
		if err != nil {
			return err
		}
		if e := findEntry(recomputed.suffix, after.ID); e != nil {
			after.RunningBalance = e.RunningBalance
		}

		balance.CurrentBalance = recomputed.final
		balance.UpdatedAt = after.UpdatedAt
		if err := scope.index.Save(ctx, balance); err != nil {
			return err
		}

		result = after
		return s.outboxManager.Enqueue(ctx, scope.tx, &ledger.ChangeEvent{
			EventID:         uuid.New(),
			Type:            ledger.EventEntryUpdated,
			CustomerID:      after.CustomerID,
			EntryID:         after.ID,
			Before:          before,
			After:           after.Clone(),
			RecomputedCount: recomputed.changed,
			CurrentBalance:  recomputed.final,
			Source:          req.Source,
			CorrelationID:   req.CorrelationID,
			OccurredAt:      after.UpdatedAt,
		})
	})
	if err != nil {
		s.logFailure(logger, "Failed to update ledger entry", err)
		return nil, err
	}

	logger.Info("Ledger entry updated", "running_balance", result.RunningBalance)
	return result, nil
}

// DeleteEntry removes an entry and recomputes everything after its former position
func (s *LedgerServiceImpl) DeleteEntry(ctx context.Context, req DeleteEntryRequest) error {
	logger := s.requestLogger(req.CorrelationID).With("entry_id", req.EntryID, "source", string(req.Source))

	id, err := parseEntryID(req.EntryID)
	if err != nil {
		return err
	}

	current, err := s.ledgerRepo.GetByID(ctx, id)
	if err != nil {
		return ledger.WrapStorage("get ledger entry", err)
	}
	logger = logger.With("customer_id", current.CustomerID)

	err = s.mutate(ctx, current.CustomerID, "delete ledger entry", func(ctx context.Context, scope txScope) error {
		balance, err := scope.index.LockBalance(ctx, current.CustomerID)
		if err != nil {
			return err
		}

		before, err := scope.entries.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := checkSaleLink(before, req.Source); err != nil {
			return err
		}

		if err := scope.entries.Delete(ctx, id); err != nil {
			return err
		}

		recomputed, err := s.recompute(ctx, scope, before.CustomerID, before.Position())
		if err != nil {
			return err
		}

		now := s.now().UTC()
		balance.CurrentBalance = recomputed.final
		if balance.EntryCount > 0 {
			balance.EntryCount--
		}
		balance.UpdatedAt = now
		if err := scope.index.Save(ctx, balance); err != nil {
			return err
		}

		return s.outboxManager.Enqueue(ctx, scope.tx, &ledger.ChangeEvent{
			EventID:         uuid.New(),
			Type:            ledger.EventEntryDeleted,
			CustomerID:      before.CustomerID,
			EntryID:         before.ID,
			Before:          before,
			RecomputedCount: recomputed.changed,
			CurrentBalance:  recomputed.final,
			Source:          req.Source,
			CorrelationID:   req.CorrelationID,
			OccurredAt:      now,
		})
	})
	if err != nil {
		s.logFailure(logger, "Failed to delete ledger entry", err)
		return err
	}

	logger.Info("Ledger entry deleted")
	return nil
}

// GetLedger reads with one statement, so it sees a committed snapshot and never a
// partially recomputed suffix. It takes no lock.
func (s *LedgerServiceImpl) GetLedger(ctx context.Context, customerID string, filter ledger.ListFilter) ([]*ledger.Entry, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	entries, err := s.ledgerRepo.ListByCustomer(ctx, customerID, filter)
	if err != nil {
		s.logger.Error("Failed to list ledger", "customer_id", customerID, "error", err)
		return nil, ledger.WrapStorage("list ledger", err)
	}
	return entries, nil
}

// GetCustomersWithDebt reads the DebtIndex; it never scans ledgers
func (s *LedgerServiceImpl) GetCustomersWithDebt(ctx context.Context) ([]customer.Debtor, error) {
	debtors, err := s.debtIndex.ListDebtors(ctx)
	if err != nil {
		s.logger.Error("Failed to list debtors", "error", err)
		return nil, ledger.WrapStorage("list debtors", err)
	}
	return debtors, nil
}

// mutate runs fn under the customer lock inside one transaction bounded by the engine's
// transaction timeout. Any error rolls the whole mutation back.
func (s *LedgerServiceImpl) mutate(ctx context.Context, customerID, op string, fn func(ctx context.Context, scope txScope) error) error {
	unlock, err := s.locker.Lock(ctx, customerID)
	if err != nil {
		return err
	}
	defer unlock()

	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	err = s.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, txScope{
			tx:      tx,
			entries: s.ledgerRepo.WithTx(tx),
			index:   s.debtIndex.WithTx(tx),
		})
	})
	return classifyError(op, err)
}

// recompute folds the suffix starting at start from the balance just before it and writes
// back only the balances that changed
func (s *LedgerServiceImpl) recompute(ctx context.Context, scope txScope, customerID string, start ledger.Position) (*recomputeResult, error) {
	base, err := scope.entries.BalanceBefore(ctx, customerID, start)
	if err != nil {
		return nil, err
	}
	return s.foldFrom(ctx, scope, customerID, start, base)
}

// foldFrom is recompute with the balance before start already known
func (s *LedgerServiceImpl) foldFrom(ctx context.Context, scope txScope, customerID string, start ledger.Position, base int64) (*recomputeResult, error) {
	suffix, err := scope.entries.ListFrom(ctx, customerID, start)
	if err != nil {
		return nil, err
	}

	changed, final := ledger.Recalculate(base, suffix)
	if len(changed) > 0 {
		if err := scope.entries.UpdateRunningBalances(ctx, changed); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("Recomputed ledger suffix",
		"customer_id", customerID,
		"from_date", start.Date.Format(ledger.DateLayout),
		"from_sequence", start.SequenceNo,
		"suffix_len", len(suffix),
		"rewritten", len(changed))

	return &recomputeResult{suffix: suffix, changed: len(changed), final: final}, nil
}

func (s *LedgerServiceImpl) ensureCustomer(ctx context.Context, customerID string) error {
	exists, err := s.directory.Exists(ctx, customerID)
	if err != nil {
		return ledger.WrapStorage("look up customer", err)
	}
	if !exists {
		return ledger.ErrCustomerNotFound{CustomerID: customerID}
	}
	return nil
}

func (s *LedgerServiceImpl) requestLogger(correlationID string) *slog.Logger {
	if correlationID != "" {
		return s.logger.With("correlation_id", correlationID)
	}
	return s.logger
}

// logFailure logs caller mistakes at warn and everything else at error
func (s *LedgerServiceImpl) logFailure(logger *slog.Logger, msg string, err error) {
	if errors.Is(err, ledger.ErrStorage) {
		logger.Error(msg, "error", err)
		return
	}
	logger.Warn(msg, "error", err)
}

// classifyError maps transaction failures onto the domain categories
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if persistence.IsRetryable(err) {
		return fmt.Errorf("%s: %w: %v", op, ledger.ErrConflict, err)
	}
	return ledger.WrapStorage(op, err)
}

// checkSaleEvent rejects a sale event posted twice and keeps the reversals of a sale within
// its amount. With clamp, a reversal larger than what is left is cut down to the remainder.
func checkSaleEvent(entry *ledger.Entry, linked []*ledger.Entry, clamp bool) error {
	if existing := ledger.FindPostedEvent(linked, entry.Type, entry.EventKey()); existing != nil {
		return ledger.ErrDuplicateReference{
			CustomerID:      entry.CustomerID,
			ReferenceID:     *entry.ReferenceID,
			EventRef:        entry.EventKey(),
			TransactionType: entry.Type,
			ExistingEntryID: existing.ID,
		}
	}
	if !entry.Type.IsReversal() {
		return nil
	}

	remaining := ledger.SummarizeSale(linked).Remaining()
	if entry.Amount <= remaining {
		return nil
	}
	if clamp && remaining > 0 {
		entry.Amount = remaining
		return nil
	}
	return ledger.ErrReversalExceedsSale{
		CustomerID:  entry.CustomerID,
		ReferenceID: *entry.ReferenceID,
		Requested:   entry.Amount,
		Remaining:   remaining,
	}
}

// checkSaleLink keeps sale-linked entries under the sales bridge's control
func checkSaleLink(e *ledger.Entry, source ledger.Source) error {
	if e.HasReference() && source != ledger.SourceSalesBridge {
		return ledger.ErrSaleLinkedEntry{EntryID: e.ID, ReferenceID: *e.ReferenceID}
	}
	return nil
}

func parseEntryID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ledger.ValidationError{Field: "entry_id", Reason: "must be a UUID"}
	}
	return id, nil
}

func findEntry(entries []*ledger.Entry, id uuid.UUID) *ledger.Entry {
	for _, e := range entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}
