/*
ledger.go - Embedded per-student attendance ledger

INVARIANTS:
  1. At most one LedgerEntry per calendar day.
  2. The latest write for a day is authoritative; prior statuses are not kept.
  3. UpsertDay and FindDay use the same Day equality, so a read always finds
     what a write stored.

Entries are mutated in place and never removed through this package.
*/
package attendance

import "sort"

// FindDay returns the entry for day, or nil.
func FindDay(ledger []LedgerEntry, day Day) *LedgerEntry {
	if i := indexOfDay(ledger, day); i >= 0 {
		return &ledger[i]
	}
	return nil
}

// UpsertDay overwrites the entry for day or appends a new one. The returned
// slice may share its backing array with ledger.
func UpsertDay(ledger []LedgerEntry, day Day, status Status, markedBy TeacherID) []LedgerEntry {
	if i := indexOfDay(ledger, day); i >= 0 {
		ledger[i].Status = status
		ledger[i].MarkedBy = markedBy
		return ledger
	}
	return append(ledger, LedgerEntry{Day: day, Status: status, MarkedBy: markedBy})
}

func indexOfDay(ledger []LedgerEntry, day Day) int {
	for i := range ledger {
		if ledger[i].Day.Equal(day) {
			return i
		}
	}
	return -1
}

// SortNewestFirst returns a copy of entries ordered by day descending.
func SortNewestFirst(entries []LedgerEntry) []LedgerEntry {
	out := make([]LedgerEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Day.After(out[j].Day)
	})
	return out
}

// EntriesBetween returns entries whose day is in [from, to].
func EntriesBetween(ledger []LedgerEntry, from, to Day) []LedgerEntry {
	var out []LedgerEntry
	for _, e := range ledger {
		if !e.Day.Before(from) && !e.Day.After(to) {
			out = append(out, e)
		}
	}
	return out
}
