package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error categories callers branch on. Every typed error below matches exactly one of them via errors.Is.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	ErrStorage              = errors.New("storage failure")
	ErrConflict             = errors.New("concurrent modification, retry")
)

// ValidationError rejects a request before anything is written
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ErrEntryNotFound indicates a missing ledger entry
type ErrEntryNotFound struct {
	EntryID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + e.EntryID.String()
}

// Is matches ErrNotFound, and any ErrEntryNotFound when the target id is uuid.Nil
func (e ErrEntryNotFound) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	return t.EntryID == uuid.Nil || e.EntryID == t.EntryID
}

// ErrCustomerNotFound indicates a customer unknown to the directory
type ErrCustomerNotFound struct {
	CustomerID string
}

func (e ErrCustomerNotFound) Error() string {
	return "customer not found: " + e.CustomerID
}

func (e ErrCustomerNotFound) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	t, ok := target.(ErrCustomerNotFound)
	if !ok {
		return false
	}
	return t.CustomerID == "" || e.CustomerID == t.CustomerID
}

// ErrSaleLinkedEntry rejects manual edits of entries posted by the sales bridge
type ErrSaleLinkedEntry struct {
	EntryID     uuid.UUID
	ReferenceID string
}

func (e ErrSaleLinkedEntry) Error() string {
	return fmt.Sprintf("entry %s is linked to sale %s and can only change through sale events", e.EntryID, e.ReferenceID)
}

func (e ErrSaleLinkedEntry) Is(target error) bool {
	return target == ErrReferentialIntegrity
}

// ErrDuplicateReference indicates the sale event was already posted for this customer
type ErrDuplicateReference struct {
	CustomerID      string
	ReferenceID     string
	EventRef        string
	TransactionType TransactionType
	ExistingEntryID uuid.UUID
}

func (e ErrDuplicateReference) Error() string {
	return fmt.Sprintf("%s entry for reference %s (event %s) already exists for customer %s",
		e.TransactionType, e.ReferenceID, e.EventRef, e.CustomerID)
}

func (e ErrDuplicateReference) Is(target error) bool {
	if target == ErrReferentialIntegrity {
		return true
	}
	_, ok := target.(ErrDuplicateReference)
	return ok
}

// ErrReversalExceedsSale rejects a cancellation or return larger than what is left of the sale
type ErrReversalExceedsSale struct {
	CustomerID  string
	ReferenceID string
	Requested   int64
	Remaining   int64
}

func (e ErrReversalExceedsSale) Error() string {
	return fmt.Sprintf("reversal of %d exceeds the %d left of sale %s for customer %s",
		e.Requested, e.Remaining, e.ReferenceID, e.CustomerID)
}

func (e ErrReversalExceedsSale) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	_, ok := target.(ErrReversalExceedsSale)
	return ok
}

// StorageError wraps a persistence failure. The mutation it interrupted was rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// WrapStorage tags err as a storage failure unless it already carries a domain category
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrReferentialIntegrity) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
