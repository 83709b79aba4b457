package ledger

import "sort"

// SortCanonical orders entries ascending by (transaction date, sequence number)
func SortCanonical(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Position().Less(entries[j].Position())
	})
}

// Recalculate folds the signed deltas of suffix forward from base, the running balance
// of the entry just before the suffix (0 when the suffix starts the ledger). suffix must
// be in canonical order. It rewrites RunningBalance in place and returns the entries whose
// cached balance changed together with the balance after the last entry.
func Recalculate(base int64, suffix []*Entry) (changed []*Entry, final int64) {
	balance := base
	for _, e := range suffix {
		balance += e.Delta()
		if e.RunningBalance != balance {
			e.RunningBalance = balance
			changed = append(changed, e)
		}
	}
	return changed, balance
}

// Mismatch describes an entry whose cached balance disagrees with the fold
type Mismatch struct {
	Entry    *Entry `json:"-"`
	EntryID  string `json:"entry_id"`
	Cached   int64  `json:"cached"`
	Expected int64  `json:"expected"`
}

// Verify folds the whole canonical history from zero and reports every entry whose
// cached running balance differs, plus the balance the ledger should end on.
// entries are not modified.
func Verify(entries []*Entry) (mismatches []Mismatch, final int64) {
	ordered := make([]*Entry, len(entries))
	copy(ordered, entries)
	SortCanonical(ordered)

	var balance int64
	for _, e := range ordered {
		balance += e.Delta()
		if e.RunningBalance != balance {
			mismatches = append(mismatches, Mismatch{
				Entry:    e,
				EntryID:  e.ID.String(),
				Cached:   e.RunningBalance,
				Expected: balance,
			})
		}
	}
	return mismatches, balance
}

// ReverseCanonical returns a copy of the entries most-recent-first, the order
// get_ledger hands to callers so that the first element carries the current balance.
func ReverseCanonical(entries []*Entry) []*Entry {
	ordered := make([]*Entry, len(entries))
	copy(ordered, entries)
	SortCanonical(ordered)
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	return ordered
}
