/*
Package generic provides the core lot bookkeeping engine.

PURPOSE:
  This package contains payer-agnostic types and algorithms for tracking
  points that are earned in time-stamped batches ("lots") and consumed
  oldest-first. The rewards package builds the Ledger on top of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Points: A signed integer quantity of points
  - PayerID: Opaque identifier of whoever funded a lot
  - Lot: One earned batch with a mutable remaining count
  - Draw: One planned deduction from a single lot
  - PayerDelta: A per-payer net change (spend receipts, balance updates)

DESIGN PRINCIPLES:
  1. Integer precision: Points are int64, never floats
  2. Type Safety: Strong typing for IDs prevents mixing payers and lots
  3. FIFO: Lots are ordered by EarnedAt, ties broken by Seq (insertion order)
  4. Non-negative: A lot's Remaining never drops below zero

USAGE:
  lot := generic.Lot{
      ID:        "lot-1",
      Payer:     "DANNON",
      Remaining: 300,
      EarnedAt:  generic.Normalize(ts),
  }

SEE ALSO:
  - allocator.go: FIFO consumption planning
  - store.go: Lot Store + Balance Table persistence interface
  - errors.go: Error taxonomy
*/
package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// POINTS
// =============================================================================

// Points is a signed quantity of reward points.
type Points int64

func (p Points) IsPositive() bool { return p > 0 }
func (p Points) IsNegative() bool { return p < 0 }
func (p Points) IsZero() bool     { return p == 0 }
func (p Points) Neg() Points      { return -p }
func (p Points) Min(o Points) Points {
	if p < o {
		return p
	}
	return o
}

// CheckedAdd returns p+o and false when the sum leaves the int64 range.
func (p Points) CheckedAdd(o Points) (Points, bool) {
	sum := p + o
	if (o > 0 && sum < p) || (o < 0 && sum > p) {
		return sum, false
	}
	return sum, true
}

func (p Points) String() string { return fmt.Sprintf("%d", int64(p)) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PayerID string
type LotID string

// =============================================================================
// LOT - One earned batch of points
// =============================================================================

// Lot is one earned batch of points not yet fully consumed.
//
// INVARIANTS:
//   - Remaining >= 0. Only ever decreases after creation.
//   - EarnedAt is UTC and immutable; it establishes FIFO order.
//   - Seq is assigned by the Store on insert and breaks EarnedAt ties.
type Lot struct {
	ID        LotID
	Payer     PayerID
	Remaining Points
	EarnedAt  time.Time
	Seq       uint64
}

// Exhausted reports whether the lot has nothing left to offer.
func (l Lot) Exhausted() bool { return l.Remaining <= 0 }

// Before reports whether l precedes other in FIFO order.
func (l Lot) Before(other Lot) bool {
	if l.EarnedAt.Equal(other.EarnedAt) {
		return l.Seq < other.Seq
	}
	return l.EarnedAt.Before(other.EarnedAt)
}

// =============================================================================
// DRAW - Planned deduction from a single lot
// =============================================================================

// Draw records how many points to take from one lot.
// Amount is always positive.
type Draw struct {
	LotID  LotID
	Payer  PayerID
	Amount Points
}

// =============================================================================
// PAYER DELTA
// =============================================================================

// PayerDelta is a net change to one payer's balance.
type PayerDelta struct {
	Payer  PayerID
	Points Points
}
