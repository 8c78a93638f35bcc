/*
allocator.go - FIFO lot consumption planning

PURPOSE:
  Decides which lots fund a deduction. Both a per-payer correction and a
  cross-payer spend use the same rule: oldest lot first, take as much as
  the lot holds or as much as is still outstanding, whichever is smaller.

PLAN, THEN COMMIT:
  Allocate never mutates its input. It returns an Allocation (a list of
  Draws) which the caller commits through a Store only when there is no
  shortfall. A failed request therefore leaves lots and balances untouched.

ELIGIBILITY:
  A lot is offered to the allocator only if:
  1. It is not exhausted (Remaining > 0)
  2. The LotFilter accepts it (ForPayer, AllLots)

EXAMPLE:
  Lots: A/t1=100, B/t2=300, A/t3=200
  Allocate(lots, AllLots, 250)
    → Draws: A/t1 -100, B/t2 -150
    → ByPayer: [{A 100} {B 150}]
  Allocate(lots, ForPayer("A"), 250)
    → Draws: A/t1 -100, A/t3 -150

SEE ALSO:
  - rewards/ledger.go: Commits allocations
  - store.go: Consume applies Draws
*/
package generic

import "sort"

// =============================================================================
// LOT FILTERS
// =============================================================================

// LotFilter selects which lots are eligible for an allocation.
type LotFilter func(Lot) bool

// AllLots makes every lot eligible regardless of payer.
func AllLots(Lot) bool { return true }

// ForPayer restricts eligibility to a single payer's lots.
func ForPayer(payer PayerID) LotFilter {
	return func(l Lot) bool { return l.Payer == payer }
}

// SortFIFO orders lots oldest-first. Equal timestamps keep insertion order.
func SortFIFO(lots []Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		return lots[i].Before(lots[j])
	})
}

// =============================================================================
// ALLOCATION
// =============================================================================

// Allocation is the outcome of planning a deduction.
type Allocation struct {
	Requested Points
	Allocated Points
	Draws     []Draw
}

// Complete reports whether the request was covered in full.
func (a Allocation) Complete() bool { return a.Allocated == a.Requested }

// ByPayer totals the draws per payer, in order of each payer's first draw.
// Amounts are positive.
func (a Allocation) ByPayer() []PayerDelta {
	index := make(map[PayerID]int)
	var out []PayerDelta
	for _, d := range a.Draws {
		i, ok := index[d.Payer]
		if !ok {
			i = len(out)
			index[d.Payer] = i
			out = append(out, PayerDelta{Payer: d.Payer})
		}
		out[i].Points += d.Amount
	}
	return out
}

// Allocate plans the FIFO consumption of amount points from lots.
//
// lots may be in any order; a sorted copy is walked. Exhausted lots and lots
// rejected by filter are skipped. The walk stops as soon as amount is
// covered, so younger lots are untouched by a partial draw on an older one.
// A non-positive amount yields an empty, complete allocation.
func Allocate(lots []Lot, filter LotFilter, amount Points) Allocation {
	alloc := Allocation{Requested: amount}
	if amount <= 0 {
		alloc.Requested = 0
		return alloc
	}
	if filter == nil {
		filter = AllLots
	}

	ordered := make([]Lot, len(lots))
	copy(ordered, lots)
	SortFIFO(ordered)

	outstanding := amount
	for _, lot := range ordered {
		if outstanding == 0 {
			break
		}
		if lot.Exhausted() || !filter(lot) {
			continue
		}
		take := lot.Remaining.Min(outstanding)
		alloc.Draws = append(alloc.Draws, Draw{LotID: lot.ID, Payer: lot.Payer, Amount: take})
		alloc.Allocated += take
		outstanding -= take
	}
	return alloc
}

// Available sums the remaining points of the lots filter accepts.
func Available(lots []Lot, filter LotFilter) Points {
	if filter == nil {
		filter = AllLots
	}
	var total Points
	for _, lot := range lots {
		if !lot.Exhausted() && filter(lot) {
			total += lot.Remaining
		}
	}
	return total
}
