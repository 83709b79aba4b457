package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mycelium-customer-ledger/internal/domain/customer"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var balanceColumns = []string{"customer_id", "current_balance", "last_sequence_no", "entry_count", "updated_at"}

func TestDebtIndexRepository_LockBalance(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DebtIndexRepository{querier: mock, logger: newTestLogger()}
	now := time.Now().UTC()

	t.Run("creates then locks the row", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO customer_balances \(customer_id\)`).WithArgs("C-1").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery(`FROM customer_balances\s+WHERE customer_id = \$1\s+FOR UPDATE`).WithArgs("C-1").
			WillReturnRows(pgxmock.NewRows(balanceColumns).AddRow("C-1", int64(80000), int64(2), int64(2), now))

		b, err := repo.LockBalance(ctx, "C-1")
		require.NoError(t, err)
		assert.Equal(t, &customer.Balance{CustomerID: "C-1", CurrentBalance: 80000, LastSequenceNo: 2, EntryCount: 2, UpdatedAt: now}, b)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown customer", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO customer_balances \(customer_id\)`).WithArgs("C-404").
			WillReturnError(&pgconn.PgError{Code: "23503"})

		_, err := repo.LockBalance(ctx, "C-404")
		assert.ErrorIs(t, err, ledger.ErrCustomerNotFound{CustomerID: "C-404"})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock timeout surfaces the pg error", func(t *testing.T) {
		lockErr := &pgconn.PgError{Code: "55P03"}
		mock.ExpectExec(`INSERT INTO customer_balances`).WithArgs("C-1").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery(`FOR UPDATE`).WithArgs("C-1").WillReturnError(lockErr)

		_, err := repo.LockBalance(ctx, "C-1")
		var pgErr *pgconn.PgError
		require.ErrorAs(t, err, &pgErr)
		assert.Equal(t, "55P03", pgErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDebtIndexRepository_Save(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DebtIndexRepository{querier: mock, logger: newTestLogger()}
	b := &customer.Balance{CustomerID: "C-1", CurrentBalance: 10000, LastSequenceNo: 4, EntryCount: 4, UpdatedAt: time.Now().UTC()}

	mock.ExpectExec(`UPDATE customer_balances\s+SET current_balance = \$1`).
		WithArgs(b.CurrentBalance, b.LastSequenceNo, b.EntryCount, b.UpdatedAt, b.CustomerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.Save(ctx, b))

	mock.ExpectExec(`UPDATE customer_balances`).
		WithArgs(b.CurrentBalance, b.LastSequenceNo, b.EntryCount, b.UpdatedAt, b.CustomerID).
		WillReturnError(errors.New("disk full"))
	assert.ErrorContains(t, repo.Save(ctx, b), "failed to save balance")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebtIndexRepository_Get(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DebtIndexRepository{querier: mock, logger: newTestLogger()}

	mock.ExpectQuery(`FROM customer_balances\s+WHERE customer_id = \$1`).WithArgs("C-9").
		WillReturnError(pgx.ErrNoRows)

	b, err := repo.Get(ctx, "C-9")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.CurrentBalance)
	assert.Equal(t, "C-9", b.CustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebtIndexRepository_ListDebtors(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DebtIndexRepository{querier: mock, logger: newTestLogger()}

	t.Run("non-zero balances largest first", func(t *testing.T) {
		mock.ExpectQuery(`WHERE b.current_balance <> 0\s+ORDER BY b.current_balance DESC`).
			WillReturnRows(pgxmock.NewRows([]string{"customer_id", "customer_name", "mobile_number", "current_balance"}).
				AddRow("C-2", "박지성", "010-2222-3333", int64(120000)).
				AddRow("C-7", "김연아", "010-7777-8888", int64(-5000)))

		debtors, err := repo.ListDebtors(ctx)
		require.NoError(t, err)
		assert.Equal(t, []customer.Debtor{
			{CustomerID: "C-2", CustomerName: "박지성", MobileNumber: "010-2222-3333", CurrentBalance: 120000},
			{CustomerID: "C-7", CustomerName: "김연아", MobileNumber: "010-7777-8888", CurrentBalance: -5000},
		}, debtors)
		assert.True(t, debtors[0].Owes())
		assert.False(t, debtors[1].Owes())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty list is not nil", func(t *testing.T) {
		mock.ExpectQuery(`WHERE b.current_balance <> 0`).
			WillReturnRows(pgxmock.NewRows([]string{"customer_id", "customer_name", "mobile_number", "current_balance"}))

		debtors, err := repo.ListDebtors(ctx)
		require.NoError(t, err)
		assert.NotNil(t, debtors)
		assert.Empty(t, debtors)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDebtIndexRepository_ListCustomerIDs(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &DebtIndexRepository{querier: mock, logger: newTestLogger()}

	mock.ExpectQuery(`SELECT customer_id FROM customer_balances\s+UNION`).
		WillReturnRows(pgxmock.NewRows([]string{"customer_id"}).AddRow("C-1").AddRow("C-2"))

	ids, err := repo.ListCustomerIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C-1", "C-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &CustomerRepository{querier: mock, logger: newTestLogger()}

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM customers WHERE customer_id = \$1\)`).WithArgs("C-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	exists, err := repo.Exists(ctx, "C-1")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(`FROM customers\s+WHERE customer_id = \$1`).WithArgs("C-1").
		WillReturnRows(pgxmock.NewRows([]string{"customer_id", "customer_name", "mobile_number"}).AddRow("C-1", "홍길동", "010-1234-5678"))
	c, err := repo.GetByID(ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, &customer.Customer{ID: "C-1", Name: "홍길동", MobileNumber: "010-1234-5678"}, c)

	mock.ExpectQuery(`FROM customers\s+WHERE customer_id = \$1`).WithArgs("C-404").WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(ctx, "C-404")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
