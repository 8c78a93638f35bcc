/*
store.go - Persistence interface for lots and balances

PURPOSE:
  Defines the interface between the Ledger and whatever holds its state.
  A Store owns two structures:
  - Lot Store:     Open lots (payer, remaining, earned-at)
  - Balance Table: Per-payer running totals

  Both live behind the same interface so a backend can change them in one
  atomic unit.

KEY INTERFACES:
  Store:   Lot + balance reads and writes
  TxStore: Store plus WithTx for all-or-nothing commits

ORDERING CONTRACT:
  Lots() returns open lots in FIFO order: EarnedAt ascending, then Seq.
  AddLot assigns Seq so equal timestamps keep insertion order.

NON-NEGATIVE CONTRACT:
  Consume must reject a Draw larger than the lot's Remaining with
  ErrNegativeRemaining, and an unknown lot with ErrLotNotFound. Inside
  WithTx that error rolls back every write made by the callback.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory (default)
  - store/sqlite/sqlite.go:  SQLite scratch store

SEE ALSO:
  - rewards/ledger.go: The only writer
  - allocator.go: Produces the Draws passed to Consume
*/
package generic

import "context"

// =============================================================================
// STORE - Lot Store + Balance Table
// =============================================================================

type Store interface {
	// AddLot inserts a new lot and returns it with Seq assigned.
	AddLot(ctx context.Context, lot Lot) (Lot, error)

	// Lots returns every open lot in FIFO order.
	Lots(ctx context.Context) ([]Lot, error)

	// Consume decrements lots by the given draws.
	Consume(ctx context.Context, draws []Draw) error

	// Purge removes lots with nothing remaining and reports how many.
	Purge(ctx context.Context) (int, error)

	// Balances returns a copy of the Balance Table.
	Balances(ctx context.Context) (map[PayerID]Points, error)

	// AdjustBalance adds delta to payer's total, creating it at 0 if absent.
	AdjustBalance(ctx context.Context, payer PayerID, delta Points) error

	// Reset clears lots and balances.
	Reset(ctx context.Context) error
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Store is rolled back.
	// If fn returns nil, the writes are committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
