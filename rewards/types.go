/*
Package rewards provides the points Ledger: earn, correct, and spend reward
points funded by multiple payers, consumed oldest-first.

PURPOSE:
  A user's points come from several payers (partners who fund the rewards).
  The application needs two answers at any time:
  - How many points does each payer currently back?
  - When points are spent, which payers paid for them?

EXAMPLE FLOW:
  1. DANNON funds 300 points on Oct 31
  2. UNILEVER funds 200 points on Oct 31, later in the day
  3. DANNON corrects -200 on Oct 31, 15:00  (its own oldest lot first)
  4. Spend 250 → DANNON -100, UNILEVER -150
  5. Balances: DANNON 0, UNILEVER 50

SEE ALSO:
  - ledger.go: The Ledger
  - generic/: Lots, allocator, store interfaces
*/
package rewards

import (
	"github.com/warp/points-engine/generic"
)

// =============================================================================
// RECEIPT - Who funded a spend
// =============================================================================

// Receipt lists the per-payer debits of one spend, in order of first debit.
// Every Points value is negative; payers that contributed nothing are absent.
type Receipt []generic.PayerDelta

// Map returns the receipt as payer → points debited.
func (r Receipt) Map() map[generic.PayerID]generic.Points {
	out := make(map[generic.PayerID]generic.Points, len(r))
	for _, d := range r {
		out[d.Payer] += d.Points
	}
	return out
}

// Total is the sum of the debits (negative).
func (r Receipt) Total() generic.Points {
	var total generic.Points
	for _, d := range r {
		total += d.Points
	}
	return total
}
