package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/panjf2000/ants/v2"

	"github.com/mycelium-customer-ledger/internal/domain/customer"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/platform/persistence"
)

// Report is the outcome of verifying, and possibly repairing, one customer
type Report struct {
	CustomerID        string            `json:"customer_id"`
	EntryCount        int               `json:"entry_count"`
	Mismatches        []ledger.Mismatch `json:"mismatches"`
	ExpectedBalance   int64             `json:"expected_balance"`
	IndexedBalance    int64             `json:"indexed_balance"`
	IndexedEntryCount int64             `json:"indexed_entry_count"`
	MaxSequenceNo     int64             `json:"max_sequence_no"`
	LastSequenceNo    int64             `json:"last_sequence_no"`
	Repaired          bool              `json:"repaired"`
	CheckedAt         time.Time         `json:"checked_at"`
}

// Consistent reports whether cached balances, the DebtIndex and the sequence counter all agree with the entries
func (r *Report) Consistent() bool {
	return len(r.Mismatches) == 0 &&
		r.ExpectedBalance == r.IndexedBalance &&
		int64(r.EntryCount) == r.IndexedEntryCount &&
		r.LastSequenceNo >= r.MaxSequenceNo
}

// Failure is a customer that could not be checked
type Failure struct {
	CustomerID string `json:"customer_id"`
	Error      string `json:"error"`
}

// Summary aggregates a run over every customer. Reports holds only the inconsistent customers.
type Summary struct {
	Customers    int       `json:"customers"`
	Inconsistent int       `json:"inconsistent"`
	Repaired     int       `json:"repaired"`
	Reports      []*Report `json:"reports"`
	Failures     []Failure `json:"failures"`
}

// ReconciliationServiceImpl recomputes ledgers from zero and compares or rewrites the caches
type ReconciliationServiceImpl struct {
	txRunner      persistence.TxRunner
	ledgerRepo    ledger.Repository
	debtIndex     customer.DebtIndex
	directory     customer.Directory
	locker        CustomerLocker
	outboxManager OutboxManager
	poolSize      int
	logger        *slog.Logger
	now           Clock
}

func NewReconciliationService(
	txRunner persistence.TxRunner,
	ledgerRepo ledger.Repository,
	debtIndex customer.DebtIndex,
	directory customer.Directory,
	locker CustomerLocker,
	outboxManager OutboxManager,
	poolSize int,
	logger *slog.Logger,
) *ReconciliationServiceImpl {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &ReconciliationServiceImpl{
		txRunner:      txRunner,
		ledgerRepo:    ledgerRepo,
		debtIndex:     debtIndex,
		directory:     directory,
		locker:        locker,
		outboxManager: outboxManager,
		poolSize:      poolSize,
		logger:        logger,
		now:           time.Now,
	}
}

// VerifyCustomer is read-only. It holds the customer lock so writers in this process cannot
// interleave between reading the entries and the DebtIndex row.
func (s *ReconciliationServiceImpl) VerifyCustomer(ctx context.Context, customerID string) (*Report, error) {
	if err := s.ensureCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, customerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var report *Report
	err = s.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		balance, err := s.debtIndex.WithTx(tx).Get(ctx, customerID)
		if err != nil {
			return err
		}
		entries, err := s.ledgerRepo.WithTx(tx).ListFrom(ctx, customerID, ledger.Position{})
		if err != nil {
			return err
		}
		report = s.buildReport(customerID, entries, balance)
		return nil
	})
	if err != nil {
		return nil, classifyError("verify ledger", err)
	}

	if !report.Consistent() {
		s.logger.Warn("Ledger inconsistency detected",
			"customer_id", customerID,
			"mismatches", len(report.Mismatches),
			"expected_balance", report.ExpectedBalance,
			"indexed_balance", report.IndexedBalance)
	}
	return report, nil
}

// RepairCustomer rewrites every wrong running balance, the DebtIndex row and a lagging
// sequence counter in one transaction. The report describes the state found before repair.
func (s *ReconciliationServiceImpl) RepairCustomer(ctx context.Context, customerID string) (*Report, error) {
	if err := s.ensureCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, customerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var report *Report
	err = s.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		index := s.debtIndex.WithTx(tx)
		entries := s.ledgerRepo.WithTx(tx)

		balance, err := index.LockBalance(ctx, customerID)
		if err != nil {
			return err
		}
		all, err := entries.ListFrom(ctx, customerID, ledger.Position{})
		if err != nil {
			return err
		}

		report = s.buildReport(customerID, all, balance)
		if report.Consistent() {
			return nil
		}

		changed, final := ledger.Recalculate(0, all)
		if len(changed) > 0 {
			if err := entries.UpdateRunningBalances(ctx, changed); err != nil {
				return err
			}
		}

		balance.CurrentBalance = final
		balance.EntryCount = int64(len(all))
		if balance.LastSequenceNo < report.MaxSequenceNo {
			balance.LastSequenceNo = report.MaxSequenceNo
		}
		balance.UpdatedAt = report.CheckedAt
		if err := index.Save(ctx, balance); err != nil {
			return err
		}

		report.Repaired = true
		return s.outboxManager.Enqueue(ctx, tx, &ledger.ChangeEvent{
			EventID:         uuid.New(),
			Type:            ledger.EventLedgerRepaired,
			CustomerID:      customerID,
			RecomputedCount: len(changed),
			CurrentBalance:  final,
			Source:          ledger.SourceRepair,
			OccurredAt:      report.CheckedAt,
		})
	})
	if err != nil {
		s.logger.Error("Failed to repair ledger", "customer_id", customerID, "error", err)
		return nil, classifyError("repair ledger", err)
	}

	if report.Repaired {
		s.logger.Info("Ledger repaired",
			"customer_id", customerID,
			"rewritten", len(report.Mismatches),
			"balance", report.ExpectedBalance)
	}
	return report, nil
}

// VerifyAll checks every customer that has entries or a DebtIndex row
func (s *ReconciliationServiceImpl) VerifyAll(ctx context.Context) (*Summary, error) {
	return s.fanOut(ctx, s.VerifyCustomer)
}

// RepairAll repairs every inconsistent customer
func (s *ReconciliationServiceImpl) RepairAll(ctx context.Context) (*Summary, error) {
	return s.fanOut(ctx, s.RepairCustomer)
}

func (s *ReconciliationServiceImpl) fanOut(ctx context.Context, check func(context.Context, string) (*Report, error)) (*Summary, error) {
	customerIDs, err := s.debtIndex.ListCustomerIDs(ctx)
	if err != nil {
		return nil, ledger.WrapStorage("list customers", err)
	}

	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciliation worker pool: %w", err)
	}
	defer pool.Release()

	summary := &Summary{
		Customers: len(customerIDs),
		Reports:   []*Report{},
		Failures:  []Failure{},
	}
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(customerID string, report *Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			summary.Failures = append(summary.Failures, Failure{CustomerID: customerID, Error: err.Error()})
			return
		}
		if !report.Consistent() {
			summary.Inconsistent++
			summary.Reports = append(summary.Reports, report)
		}
		if report.Repaired {
			summary.Repaired++
		}
	}

	for _, id := range customerIDs {
		customerID := id
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			report, err := check(ctx, customerID)
			record(customerID, report, err)
		})
		if submitErr != nil {
			wg.Done()
			record(customerID, nil, fmt.Errorf("failed to submit to worker pool: %w", submitErr))
		}
	}
	wg.Wait()

	s.logger.Info("Reconciliation finished",
		"customers", summary.Customers,
		"inconsistent", summary.Inconsistent,
		"repaired", summary.Repaired,
		"failures", len(summary.Failures))
	return summary, nil
}

func (s *ReconciliationServiceImpl) buildReport(customerID string, entries []*ledger.Entry, balance *customer.Balance) *Report {
	mismatches, final := ledger.Verify(entries)
	if mismatches == nil {
		mismatches = []ledger.Mismatch{}
	}

	var maxSeq int64
	for _, e := range entries {
		if e.SequenceNo > maxSeq {
			maxSeq = e.SequenceNo
		}
	}

	return &Report{
		CustomerID:        customerID,
		EntryCount:        len(entries),
		Mismatches:        mismatches,
		ExpectedBalance:   final,
		IndexedBalance:    balance.CurrentBalance,
		IndexedEntryCount: balance.EntryCount,
		MaxSequenceNo:     maxSeq,
		LastSequenceNo:    balance.LastSequenceNo,
		CheckedAt:         s.now().UTC(),
	}
}

func (s *ReconciliationServiceImpl) ensureCustomer(ctx context.Context, customerID string) error {
	exists, err := s.directory.Exists(ctx, customerID)
	if err != nil {
		return ledger.WrapStorage("look up customer", err)
	}
	if !exists {
		return ledger.ErrCustomerNotFound{CustomerID: customerID}
	}
	return nil
}
