/*
ledger.go - The points Ledger

PURPOSE:
  Tracks a rewards-points balance per payer and answers, at any moment,
  both the total per payer and which payers funded a spend. Points are
  earned in lots and always consumed oldest-first.

OPERATIONS:
  RecordOrCorrect(payer, points, earnedAt)
    points > 0:  earn   - append a lot, balance += points
    points == 0: no-op earn - no lot, balance entry created at +0
    points < 0:  correction - deduct -points from this payer's lots FIFO,
                 balance -= deducted. Fails with InsufficientPointsForPayer
                 and changes nothing when the payer's lots fall short.
    An earn that would overflow the payer's total fails with
    BalanceOverflow.

  Spend(points)
    Deduct from all payers' lots FIFO regardless of payer. Returns the
    per-payer debits (negative) in order of first debit. Fails with
    InvalidAmount (points <= 0) or InsufficientTotalPoints.

  Balances()  - copy of the Balance Table
  Reset()     - clear everything
  Lots()      - FIFO-ordered copy of open lots

CONSISTENCY:
  Balance Table entries only ever move by the deltas actually applied to
  lots in the same transaction, so for every payer that has earned:
    balances[payer] == sum(remaining of payer's lots)
  Spend checks availability against the lots themselves; the check and the
  consumption cannot disagree.

CONCURRENCY:
  One mutex guards every operation, reads included, for its full duration.
  Operations are serializable and never observe a half-applied write.
  No I/O beyond the Store happens under the lock.

ERRORS:
  The Ledger never logs or retries. Every failure is returned.

SEE ALSO:
  - generic/allocator.go: FIFO planning
  - generic/store.go: Store contract
  - api/handlers.go: HTTP surface
*/
package rewards

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/points-engine/generic"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger owns the Lot Store and Balance Table.
type Ledger struct {
	mu    sync.Mutex
	store generic.TxStore
	newID func() generic.LotID
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithIDGenerator overrides how lot IDs are minted.
func WithIDGenerator(fn func() generic.LotID) Option {
	return func(l *Ledger) { l.newID = fn }
}

// NewLedger creates a Ledger over store.
func NewLedger(store generic.TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		newID: func() generic.LotID { return generic.LotID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordOrCorrect records an earn (points >= 0) or a correction (points < 0)
// for payer. earnedAt is normalized to UTC.
func (l *Ledger) RecordOrCorrect(ctx context.Context, payer generic.PayerID, points generic.Points, earnedAt time.Time) error {
	if payer == "" {
		return generic.ErrInvalidPayer
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.WithTx(ctx, func(s generic.Store) error {
		if points.IsNegative() {
			return correct(ctx, s, payer, points.Neg())
		}
		if err := checkHeadroom(ctx, s, payer, points); err != nil {
			return err
		}
		if points.IsPositive() {
			lot := generic.Lot{
				ID:        l.newID(),
				Payer:     payer,
				Remaining: points,
				EarnedAt:  generic.Normalize(earnedAt),
			}
			if _, err := s.AddLot(ctx, lot); err != nil {
				return err
			}
		}
		return s.AdjustBalance(ctx, payer, points)
	})
}

// checkHeadroom rejects an earn that would overflow payer's total.
func checkHeadroom(ctx context.Context, s generic.Store, payer generic.PayerID, points generic.Points) error {
	balances, err := s.Balances(ctx)
	if err != nil {
		return err
	}
	if _, ok := balances[payer].CheckedAdd(points); !ok {
		return &generic.OverflowError{Payer: payer, Balance: balances[payer], Points: points}
	}
	return nil
}

// correct removes amount points from payer's own lots, oldest first.
func correct(ctx context.Context, s generic.Store, payer generic.PayerID, amount generic.Points) error {
	lots, err := s.Lots(ctx)
	if err != nil {
		return err
	}

	// Negating math.MinInt64 leaves it negative. No payer can hold that many.
	if !amount.IsPositive() {
		return &generic.InsufficientPointsError{
			Payer:     payer,
			Available: generic.Available(lots, generic.ForPayer(payer)),
			Requested: amount,
		}
	}

	alloc := generic.Allocate(lots, generic.ForPayer(payer), amount)
	if !alloc.Complete() {
		return &generic.InsufficientPointsError{
			Payer:     payer,
			Available: alloc.Allocated,
			Requested: amount,
		}
	}

	if err := s.Consume(ctx, alloc.Draws); err != nil {
		return err
	}
	if err := s.AdjustBalance(ctx, payer, alloc.Allocated.Neg()); err != nil {
		return err
	}
	_, err = s.Purge(ctx)
	return err
}

// Spend consumes points across every payer's lots, oldest first, and returns
// who funded it.
func (l *Ledger) Spend(ctx context.Context, points generic.Points) (Receipt, error) {
	if !points.IsPositive() {
		return nil, &generic.AmountError{Requested: points}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var receipt Receipt
	err := l.store.WithTx(ctx, func(s generic.Store) error {
		lots, err := s.Lots(ctx)
		if err != nil {
			return err
		}

		alloc := generic.Allocate(lots, generic.AllLots, points)
		if !alloc.Complete() {
			return &generic.InsufficientPointsError{
				Available: alloc.Allocated,
				Requested: points,
			}
		}

		if err := s.Consume(ctx, alloc.Draws); err != nil {
			return err
		}

		receipt = make(Receipt, 0, len(alloc.Draws))
		for _, contribution := range alloc.ByPayer() {
			debit := contribution.Points.Neg()
			if err := s.AdjustBalance(ctx, contribution.Payer, debit); err != nil {
				return err
			}
			receipt = append(receipt, generic.PayerDelta{Payer: contribution.Payer, Points: debit})
		}

		_, err = s.Purge(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Balances returns a snapshot of every payer's total.
func (l *Ledger) Balances(ctx context.Context) (map[generic.PayerID]generic.Points, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Balances(ctx)
}

// Lots returns the open lots in FIFO order.
func (l *Ledger) Lots(ctx context.Context) ([]generic.Lot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Lots(ctx)
}

// Reset clears all lots and balances.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Reset(ctx)
}
