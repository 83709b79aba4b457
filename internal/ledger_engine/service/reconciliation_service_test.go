package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/ledger_engine/components"
	"github.com/mycelium-customer-ledger/internal/ledger_engine/service"
)

func newTestReconciliation(store *memStore) *service.ReconciliationServiceImpl {
	logger := newTestLogger()
	return service.NewReconciliationService(
		store,
		memLedgerRepo{store},
		memDebtIndex{store},
		memDirectory{store},
		components.NewCustomerLocker(time.Second, logger),
		components.NewOutboxManager(memOutboxRepo{store}, logger),
		4,
		logger,
	)
}

func seedLedger(t *testing.T, store *memStore, customerID string) []*ledger.Entry {
	t.Helper()
	svc := newTestService(t, store)
	return []*ledger.Entry{
		create(t, svc, customerID, "2024-01-01", ledger.TypeCarryForward, 5000),
		create(t, svc, customerID, "2024-01-02", ledger.TypeSale, 1500),
		create(t, svc, customerID, "2024-01-03", ledger.TypePayment, 2000),
	}
}

func TestReconciliationService_VerifyCustomer(t *testing.T) {
	t.Run("ConsistentLedger", func(t *testing.T) {
		store := newMemStore("C-1")
		seedLedger(t, store, "C-1")
		rec := newTestReconciliation(store)

		report, err := rec.VerifyCustomer(context.Background(), "C-1")
		require.NoError(t, err)
		assert.True(t, report.Consistent())
		assert.Equal(t, 3, report.EntryCount)
		assert.Equal(t, int64(4500), report.ExpectedBalance)
		assert.Equal(t, int64(4500), report.IndexedBalance)
		assert.Empty(t, report.Mismatches)
		assert.False(t, report.Repaired)
	})

	t.Run("DetectsCorruptedBalance", func(t *testing.T) {
		store := newMemStore("C-1")
		entries := seedLedger(t, store, "C-1")
		store.corrupt(entries[1].ID, 1)
		rec := newTestReconciliation(store)

		eventsBefore := len(store.events())
		report, err := rec.VerifyCustomer(context.Background(), "C-1")
		require.NoError(t, err)
		assert.False(t, report.Consistent())
		require.Len(t, report.Mismatches, 1)
		assert.Equal(t, entries[1].ID.String(), report.Mismatches[0].EntryID)
		assert.Equal(t, int64(1), report.Mismatches[0].Cached)
		assert.Equal(t, int64(6500), report.Mismatches[0].Expected)

		assert.Equal(t, int64(1), balances(store, "C-1")[1], "verification must not write")
		assert.Len(t, store.events(), eventsBefore)
	})

	t.Run("UnknownCustomer", func(t *testing.T) {
		rec := newTestReconciliation(newMemStore())
		_, err := rec.VerifyCustomer(context.Background(), "nobody")
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

func TestReconciliationService_RepairCustomer(t *testing.T) {
	t.Run("RewritesBalancesAndIndex", func(t *testing.T) {
		store := newMemStore("C-1")
		entries := seedLedger(t, store, "C-1")
		store.corrupt(entries[0].ID, 0)
		store.corrupt(entries[2].ID, 99)
		store.mu.Lock()
		store.balances["C-1"].CurrentBalance = 99
		store.balances["C-1"].LastSequenceNo = 1
		store.mu.Unlock()

		rec := newTestReconciliation(store)
		report, err := rec.RepairCustomer(context.Background(), "C-1")
		require.NoError(t, err)
		assert.True(t, report.Repaired)
		assert.Len(t, report.Mismatches, 2)
		assert.Equal(t, int64(99), report.IndexedBalance, "report describes the state before repair")

		assert.Equal(t, []int64{5000, 6500, 4500}, balances(store, "C-1"))
		requireConsistent(t, store, "C-1")
		assert.Equal(t, int64(3), store.balance("C-1").LastSequenceNo)

		events := store.events()
		last := events[len(events)-1]
		assert.Equal(t, ledger.EventLedgerRepaired, last.Type)
		assert.Equal(t, ledger.SourceRepair, last.Source)
		assert.Equal(t, int64(4500), last.CurrentBalance)

		again, err := rec.VerifyCustomer(context.Background(), "C-1")
		require.NoError(t, err)
		assert.True(t, again.Consistent())
	})

	t.Run("ConsistentLedgerIsLeftAlone", func(t *testing.T) {
		store := newMemStore("C-1")
		seedLedger(t, store, "C-1")
		eventsBefore := len(store.events())

		report, err := newTestReconciliation(store).RepairCustomer(context.Background(), "C-1")
		require.NoError(t, err)
		assert.False(t, report.Repaired)
		assert.Len(t, store.events(), eventsBefore)
	})

	t.Run("FailedRepairRollsBack", func(t *testing.T) {
		store := newMemStore("C-1")
		entries := seedLedger(t, store, "C-1")
		store.corrupt(entries[0].ID, 0)
		store.fail("Save", errors.New("disk full"))

		_, err := newTestReconciliation(store).RepairCustomer(context.Background(), "C-1")
		assert.ErrorIs(t, err, ledger.ErrStorage)
		assert.Equal(t, int64(0), balances(store, "C-1")[0])
	})
}

func TestReconciliationService_FanOut(t *testing.T) {
	store := newMemStore("C-1", "C-2", "C-3", "C-4")
	broken := seedLedger(t, store, "C-1")
	seedLedger(t, store, "C-2")
	seedLedger(t, store, "C-3")
	store.corrupt(broken[2].ID, 7)
	rec := newTestReconciliation(store)

	summary, err := rec.VerifyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Customers)
	assert.Equal(t, 1, summary.Inconsistent)
	assert.Equal(t, 0, summary.Repaired)
	require.Len(t, summary.Reports, 1)
	assert.Equal(t, "C-1", summary.Reports[0].CustomerID)
	assert.Empty(t, summary.Failures)

	summary, err = rec.RepairAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Repaired)

	summary, err = rec.VerifyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Inconsistent)
	for _, id := range []string{"C-1", "C-2", "C-3"} {
		requireConsistent(t, store, id)
	}
}

var _ service.ReconciliationService = (*service.ReconciliationServiceImpl)(nil)
