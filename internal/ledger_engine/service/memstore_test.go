package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mycelium-customer-ledger/internal/domain/customer"
	"github.com/mycelium-customer-ledger/internal/domain/ledger"
	"github.com/mycelium-customer-ledger/internal/domain/outbox"
)

// memStore is an in-memory stand-in for the Postgres schema. Transactions are serialized and
// a failed transaction restores the snapshot taken when it began.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	customers map[string]customer.Customer
	entries   map[uuid.UUID]*ledger.Entry
	balances  map[string]*customer.Balance
	outbox    []*outbox.Message

	// failures maps an operation name to the error it returns
	failures map[string]error
	commits  int
}

func newMemStore(customerIDs ...string) *memStore {
	s := &memStore{
		customers: make(map[string]customer.Customer),
		entries:   make(map[uuid.UUID]*ledger.Entry),
		balances:  make(map[string]*customer.Balance),
		failures:  make(map[string]error),
	}
	for _, id := range customerIDs {
		s.customers[id] = customer.Customer{ID: id, Name: "name-" + id, MobileNumber: "010-0000-" + id}
	}
	return s
}

type memSnapshot struct {
	entries  map[uuid.UUID]*ledger.Entry
	balances map[string]*customer.Balance
	outbox   []*outbox.Message
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		entries:  make(map[uuid.UUID]*ledger.Entry, len(s.entries)),
		balances: make(map[string]*customer.Balance, len(s.balances)),
		outbox:   append([]*outbox.Message(nil), s.outbox...),
	}
	for id, e := range s.entries {
		snap.entries[id] = e.Clone()
	}
	for id, b := range s.balances {
		c := *b
		snap.balances[id] = &c
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = snap.entries
	s.balances = snap.balances
	s.outbox = snap.outbox
}

func (s *memStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *memStore) injected(op string) error {
	return s.failures[op]
}

// ExecuteTx implements persistence.TxRunner
func (s *memStore) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.restore(snap)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	return nil
}

// canonical returns clones of the customer's entries in canonical order
func (s *memStore) canonical(customerID string) []*ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ledger.Entry
	for _, e := range s.entries {
		if e.CustomerID == customerID {
			out = append(out, e.Clone())
		}
	}
	ledger.SortCanonical(out)
	return out
}

func (s *memStore) balance(customerID string) customer.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[customerID]; ok {
		return *b
	}
	return customer.Balance{CustomerID: customerID}
}

func (s *memStore) events() []*ledger.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ledger.ChangeEvent, 0, len(s.outbox))
	for _, m := range s.outbox {
		event, err := m.ChangeEvent()
		if err != nil {
			panic(err)
		}
		out = append(out, event)
	}
	return out
}

// corrupt overwrites a cached running balance behind the engine's back
func (s *memStore) corrupt(id uuid.UUID, runningBalance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id].RunningBalance = runningBalance
}

// memLedgerRepo implements ledger.Repository
type memLedgerRepo struct{ s *memStore }

func (r memLedgerRepo) WithTx(pgx.Tx) ledger.Repository { return r }

func (r memLedgerRepo) Insert(_ context.Context, e *ledger.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("Insert"); err != nil {
		return err
	}
	if _, ok := r.s.customers[e.CustomerID]; !ok {
		return ledger.ErrCustomerNotFound{CustomerID: e.CustomerID}
	}
	for _, other := range r.s.entries {
		if other.CustomerID != e.CustomerID {
			continue
		}
		if other.SequenceNo == e.SequenceNo {
			return fmt.Errorf("duplicate sequence %d for customer %s", e.SequenceNo, e.CustomerID)
		}
		if e.HasReference() && other.HasReference() && other.Type == e.Type && other.EventKey() == e.EventKey() {
			return ledger.ErrDuplicateReference{CustomerID: e.CustomerID, ReferenceID: *e.ReferenceID, EventRef: e.EventKey(), TransactionType: e.Type}
		}
	}
	r.s.entries[e.ID] = e.Clone()
	return nil
}

func (r memLedgerRepo) Update(_ context.Context, e *ledger.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("Update"); err != nil {
		return err
	}
	if _, ok := r.s.entries[e.ID]; !ok {
		return ledger.ErrEntryNotFound{EntryID: e.ID}
	}
	r.s.entries[e.ID] = e.Clone()
	return nil
}

func (r memLedgerRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("Delete"); err != nil {
		return err
	}
	if _, ok := r.s.entries[id]; !ok {
		return ledger.ErrEntryNotFound{EntryID: id}
	}
	delete(r.s.entries, id)
	return nil
}

func (r memLedgerRepo) GetByID(_ context.Context, id uuid.UUID) (*ledger.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.entries[id]
	if !ok {
		return nil, ledger.ErrEntryNotFound{EntryID: id}
	}
	return e.Clone(), nil
}

func (r memLedgerRepo) FindByReference(_ context.Context, customerID string, txType ledger.TransactionType, referenceID string) (*ledger.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.entries {
		if e.CustomerID == customerID && e.Type == txType && e.HasReference() && *e.ReferenceID == referenceID {
			return e.Clone(), nil
		}
	}
	return nil, nil
}

func (r memLedgerRepo) ListByReference(_ context.Context, customerID string, referenceID string) ([]*ledger.Entry, error) {
	out := []*ledger.Entry{}
	for _, e := range r.s.canonical(customerID) {
		if e.HasReference() && *e.ReferenceID == referenceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memLedgerRepo) BalanceBefore(_ context.Context, customerID string, pos ledger.Position) (int64, error) {
	var balance int64
	for _, e := range r.s.canonical(customerID) {
		if !e.Position().Less(pos) {
			break
		}
		balance = e.RunningBalance
	}
	return balance, nil
}

func (r memLedgerRepo) ListFrom(_ context.Context, customerID string, pos ledger.Position) ([]*ledger.Entry, error) {
	out := []*ledger.Entry{}
	for _, e := range r.s.canonical(customerID) {
		if !e.Position().Less(pos) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memLedgerRepo) ListByCustomer(_ context.Context, customerID string, filter ledger.ListFilter) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, e := range r.s.canonical(customerID) {
		if filter.StartDate != nil && (e.TransactionDate.Before(*filter.StartDate) || e.TransactionDate.After(*filter.EndDate)) {
			continue
		}
		out = append(out, e)
	}
	return ledger.ReverseCanonical(out), nil
}

func (r memLedgerRepo) UpdateRunningBalances(_ context.Context, entries []*ledger.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	// partial writes before the failure are left for the rollback to undo
	for i, e := range entries {
		if err := r.s.injected("UpdateRunningBalances"); err != nil && i == len(entries)/2 {
			return err
		}
		stored, ok := r.s.entries[e.ID]
		if !ok {
			return fmt.Errorf("updated %d of %d entries", i, len(entries))
		}
		stored.RunningBalance = e.RunningBalance
	}
	return nil
}

// memDebtIndex implements customer.DebtIndex
type memDebtIndex struct{ s *memStore }

func (d memDebtIndex) WithTx(pgx.Tx) customer.DebtIndex { return d }

func (d memDebtIndex) LockBalance(_ context.Context, customerID string) (*customer.Balance, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if err := d.s.injected("LockBalance"); err != nil {
		return nil, err
	}
	if _, ok := d.s.customers[customerID]; !ok {
		return nil, ledger.ErrCustomerNotFound{CustomerID: customerID}
	}
	b, ok := d.s.balances[customerID]
	if !ok {
		b = &customer.Balance{CustomerID: customerID}
		d.s.balances[customerID] = b
	}
	c := *b
	return &c, nil
}

func (d memDebtIndex) Save(_ context.Context, b *customer.Balance) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if err := d.s.injected("Save"); err != nil {
		return err
	}
	c := *b
	d.s.balances[b.CustomerID] = &c
	return nil
}

func (d memDebtIndex) Get(_ context.Context, customerID string) (*customer.Balance, error) {
	b := d.s.balance(customerID)
	return &b, nil
}

func (d memDebtIndex) ListDebtors(_ context.Context) ([]customer.Debtor, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	debtors := []customer.Debtor{}
	for id, b := range d.s.balances {
		if b.CurrentBalance == 0 {
			continue
		}
		c := d.s.customers[id]
		debtors = append(debtors, customer.Debtor{
			CustomerID:     id,
			CustomerName:   c.Name,
			MobileNumber:   c.MobileNumber,
			CurrentBalance: b.CurrentBalance,
		})
	}
	sort.Slice(debtors, func(i, j int) bool {
		if debtors[i].CurrentBalance != debtors[j].CurrentBalance {
			return debtors[i].CurrentBalance > debtors[j].CurrentBalance
		}
		return debtors[i].CustomerName < debtors[j].CustomerName
	})
	return debtors, nil
}

func (d memDebtIndex) ListCustomerIDs(_ context.Context) ([]string, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	seen := map[string]bool{}
	for id := range d.s.balances {
		seen[id] = true
	}
	for _, e := range d.s.entries {
		seen[e.CustomerID] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// memDirectory implements customer.Directory
type memDirectory struct{ s *memStore }

func (d memDirectory) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	c, ok := d.s.customers[id]
	if !ok {
		return nil, ledger.ErrCustomerNotFound{CustomerID: id}
	}
	return &c, nil
}

func (d memDirectory) Exists(_ context.Context, id string) (bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if err := d.s.injected("Exists"); err != nil {
		return false, err
	}
	_, ok := d.s.customers[id]
	return ok, nil
}

// memOutboxRepo implements outbox.Repository
type memOutboxRepo struct{ s *memStore }

func (o memOutboxRepo) WithTx(pgx.Tx) outbox.Repository { return o }

func (o memOutboxRepo) Create(_ context.Context, m *outbox.Message) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if err := o.s.injected("OutboxCreate"); err != nil {
		return err
	}
	m.ID = int64(len(o.s.outbox) + 1)
	o.s.outbox = append(o.s.outbox, m)
	return nil
}

func (o memOutboxRepo) GetPending(context.Context, int) ([]*outbox.Message, error) {
	return nil, errors.New("not used by the engine")
}

func (o memOutboxRepo) MarkProcessed(context.Context, int64) error {
	return errors.New("not used by the engine")
}

func (o memOutboxRepo) SaveFailure(context.Context, *outbox.Message) error {
	return errors.New("not used by the engine")
}
