package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format of transaction dates
const DateLayout = "2006-01-02"

// MaxAmount bounds a single entry so that folds over long histories cannot overflow int64
const MaxAmount int64 = 1_000_000_000_000_000

// Entry is one line of a customer's ledger. Amount is an unsigned magnitude; its balance
// effect comes from Type. RunningBalance is a cache of the fold up to and including this entry.
type Entry struct {
	ID              uuid.UUID       `json:"entry_id" bson:"entry_id"`
	CustomerID      string          `json:"customer_id" bson:"customer_id"`
	TransactionDate time.Time       `json:"transaction_date" bson:"transaction_date"`
	SequenceNo      int64           `json:"sequence_no" bson:"sequence_no"`
	Type            TransactionType `json:"transaction_type" bson:"transaction_type"`
	Amount          int64           `json:"amount" bson:"amount"`
	Description     string          `json:"description" bson:"description"`
	ReferenceID     *string         `json:"reference_id,omitempty" bson:"reference_id,omitempty"`
	EventRef        *string         `json:"event_ref,omitempty" bson:"event_ref,omitempty"`
	RunningBalance  int64           `json:"running_balance" bson:"running_balance"`
	CreatedAt       time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" bson:"updated_at"`
}

// NewEntryParams carries the caller-supplied fields of a new entry
type NewEntryParams struct {
	CustomerID      string
	TransactionDate time.Time
	Type            TransactionType
	Amount          int64
	Description     string
	ReferenceID     string
	// EventRef identifies the sale event that posted the entry; it defaults to ReferenceID.
	// Entries of one kind for one sale must differ in EventRef.
	EventRef string
}

// Validate checks the params without touching storage
func (p NewEntryParams) Validate() error {
	if strings.TrimSpace(p.CustomerID) == "" {
		return ValidationError{Field: "customer_id", Reason: "must not be empty"}
	}
	if p.TransactionDate.IsZero() {
		return ValidationError{Field: "transaction_date", Reason: "must be a calendar date"}
	}
	if !p.Type.Valid() {
		return ValidationError{Field: "transaction_type", Reason: fmt.Sprintf("unknown transaction type %q", p.Type)}
	}
	if err := validateAmount(p.Amount); err != nil {
		return err
	}
	if p.ReferenceID != "" && !p.Type.SaleLinked() {
		return ValidationError{Field: "reference_id", Reason: "only sale, sale cancellation and return entries reference a sale"}
	}
	if p.EventRef != "" && p.ReferenceID == "" {
		return ValidationError{Field: "event_ref", Reason: "requires a reference_id"}
	}
	return nil
}

// NewEntry builds an unsequenced entry from validated params
func NewEntry(p NewEntryParams, now time.Time) (*Entry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	description := strings.TrimSpace(p.Description)
	if description == "" {
		description = p.Type.DefaultDescription()
	}

	var ref, eventRef *string
	if p.ReferenceID != "" {
		r, ev := p.ReferenceID, p.EventRef
		if ev == "" {
			ev = r
		}
		ref, eventRef = &r, &ev
	}

	return &Entry{
		ID:              uuid.New(),
		CustomerID:      p.CustomerID,
		TransactionDate: TruncateDate(p.TransactionDate),
		Type:            p.Type,
		Amount:          p.Amount,
		Description:     description,
		ReferenceID:     ref,
		EventRef:        eventRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// EntryChanges lists the mutable fields of an entry. Nil fields are left as they are.
type EntryChanges struct {
	TransactionDate *time.Time
	Type            *TransactionType
	Amount          *int64
	Description     *string
}

// Validate checks only the fields that are set
func (c EntryChanges) Validate() error {
	if c.TransactionDate != nil && c.TransactionDate.IsZero() {
		return ValidationError{Field: "transaction_date", Reason: "must be a calendar date"}
	}
	if c.Type != nil && !c.Type.Valid() {
		return ValidationError{Field: "transaction_type", Reason: fmt.Sprintf("unknown transaction type %q", *c.Type)}
	}
	if c.Amount != nil {
		if err := validateAmount(*c.Amount); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of e with the changes applied and whether anything differs.
// ID, customer, sequence number and reference never change.
func (e *Entry) Apply(c EntryChanges, now time.Time) (*Entry, bool, error) {
	if err := c.Validate(); err != nil {
		return nil, false, err
	}

	next := e.Clone()
	if c.TransactionDate != nil {
		next.TransactionDate = TruncateDate(*c.TransactionDate)
	}
	if c.Type != nil {
		next.Type = *c.Type
	}
	if c.Amount != nil {
		next.Amount = *c.Amount
	}
	if c.Description != nil {
		next.Description = strings.TrimSpace(*c.Description)
		if next.Description == "" {
			next.Description = next.Type.DefaultDescription()
		}
	}
	if next.ReferenceID != nil && !next.Type.SaleLinked() {
		return nil, false, ValidationError{Field: "transaction_type", Reason: "sale-linked entry must keep a sale kind"}
	}

	changed := !next.TransactionDate.Equal(e.TransactionDate) ||
		next.Type != e.Type ||
		next.Amount != e.Amount ||
		next.Description != e.Description
	if changed {
		next.UpdatedAt = now
	}
	return next, changed, nil
}

// Position is the entry's key in canonical order
func (e *Entry) Position() Position {
	return Position{Date: e.TransactionDate, SequenceNo: e.SequenceNo}
}

// Delta is the signed balance effect of the entry
func (e *Entry) Delta() int64 {
	return SignedDelta(e.Type, e.Amount)
}

// HasReference reports whether the entry was posted for a sale
func (e *Entry) HasReference() bool {
	return e.ReferenceID != nil && *e.ReferenceID != ""
}

// EventKey is the sale event the entry was posted for, or "" for manual entries
func (e *Entry) EventKey() string {
	if e.EventRef != nil && *e.EventRef != "" {
		return *e.EventRef
	}
	if e.ReferenceID != nil {
		return *e.ReferenceID
	}
	return ""
}

// Clone returns a deep copy
func (e *Entry) Clone() *Entry {
	c := *e
	if e.ReferenceID != nil {
		r := *e.ReferenceID
		c.ReferenceID = &r
	}
	if e.EventRef != nil {
		r := *e.EventRef
		c.EventRef = &r
	}
	return &c
}

// Position orders entries by (transaction date, sequence number)
type Position struct {
	Date       time.Time
	SequenceNo int64
}

// Less reports whether p sorts strictly before o
func (p Position) Less(o Position) bool {
	if !p.Date.Equal(o.Date) {
		return p.Date.Before(o.Date)
	}
	return p.SequenceNo < o.SequenceNo
}

// MinPosition returns the earlier of two positions
func MinPosition(a, b Position) Position {
	if b.Less(a) {
		return b
	}
	return a
}

// ParseDate parses a YYYY-MM-DD calendar date
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, ValidationError{Field: "transaction_date", Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", raw)}
	}
	return d, nil
}

// TruncateDate drops the time of day, keeping the calendar date in UTC
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}
	if amount > MaxAmount {
		return ValidationError{Field: "amount", Reason: "exceeds the maximum entry amount"}
	}
	return nil
}
