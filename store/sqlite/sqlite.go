/*
Package sqlite provides a SQLite-backed implementation of generic.TxStore.

PURPOSE:
  Holds the Lot Store and Balance Table in SQLite instead of Go maps. The
  points engine keeps no state across restarts: the server resets this
  store on startup, and ":memory:" is the default path. The backend exists
  so the same Ledger can run on a SQL engine with real transactions.

INTERFACES IMPLEMENTED:
  generic.Store:   Lot + balance persistence
  generic.TxStore: WithTx over a SQL transaction

KEY TABLES:
  lots:     seq (FIFO tie-break), id, payer, remaining,
            earned_at (unix seconds), earned_nanos (0..999999999)
  balances: payer, total

INVARIANTS ENFORCED BY SCHEMA:
  - remaining >= 0 (CHECK constraint, plus an explicit guard in Consume)
  - one balance row per payer (PRIMARY KEY)

INDEXES:
  - idx_lots_fifo: (earned_at, earned_nanos, seq) for the FIFO scan (hot path)
  - idx_lots_payer: (payer, earned_at, earned_nanos, seq) for corrections

  Timestamps are split into seconds and nanos because a single UnixNano
  key only covers the years 1678 to 2262.

CONCURRENCY:
  A single connection is used so ":memory:" is one database and so WithTx
  serializes writers. Reads inside WithTx go through the SQL transaction.

USAGE:
  store, err := sqlite.New(":memory:")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := rewards.NewLedger(store)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/points-engine/generic"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements generic.TxStore using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS lots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		payer TEXT NOT NULL,
		remaining INTEGER NOT NULL CHECK (remaining >= 0),
		earned_at INTEGER NOT NULL,
		earned_nanos INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_lots_fifo
		ON lots(earned_at, earned_nanos, seq);
	CREATE INDEX IF NOT EXISTS idx_lots_payer
		ON lots(payer, earned_at, earned_nanos, seq);

	CREATE TABLE IF NOT EXISTS balances (
		payer TEXT PRIMARY KEY,
		total INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE (generic.Store interface)
// =============================================================================

func (s *Store) AddLot(ctx context.Context, lot generic.Lot) (generic.Lot, error) {
	return addLot(ctx, s.db, lot)
}

func (s *Store) Lots(ctx context.Context) ([]generic.Lot, error) {
	return queryLots(ctx, s.db)
}

func (s *Store) Consume(ctx context.Context, draws []generic.Draw) error {
	return s.WithTx(ctx, func(tx generic.Store) error {
		return tx.Consume(ctx, draws)
	})
}

func (s *Store) Purge(ctx context.Context) (int, error) {
	return purge(ctx, s.db)
}

func (s *Store) Balances(ctx context.Context) (map[generic.PayerID]generic.Points, error) {
	return queryBalances(ctx, s.db)
}

func (s *Store) AdjustBalance(ctx context.Context, payer generic.PayerID, delta generic.Points) error {
	return adjustBalance(ctx, s.db, payer, delta)
}

// Reset clears all lots and balances.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(tx generic.Store) error {
		return tx.Reset(ctx)
	})
}

var _ generic.TxStore = (*Store)(nil)

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AddLot(ctx context.Context, lot generic.Lot) (generic.Lot, error) {
	return addLot(ctx, ts.tx, lot)
}

func (ts *txStore) Lots(ctx context.Context) ([]generic.Lot, error) {
	return queryLots(ctx, ts.tx)
}

func (ts *txStore) Consume(ctx context.Context, draws []generic.Draw) error {
	for _, d := range draws {
		if d.Amount < 0 {
			return generic.ErrNegativeRemaining
		}
		res, err := ts.tx.ExecContext(ctx,
			`UPDATE lots SET remaining = remaining - ? WHERE id = ? AND remaining >= ?`,
			int64(d.Amount), string(d.LotID), int64(d.Amount))
		if err != nil {
			return fmt.Errorf("failed to consume lot %s: %w", d.LotID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to consume lot %s: %w", d.LotID, err)
		}
		if n == 1 {
			continue
		}
		var exists int
		err = ts.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lots WHERE id = ?`, string(d.LotID)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to look up lot %s: %w", d.LotID, err)
		}
		if exists == 0 {
			return generic.ErrLotNotFound
		}
		return generic.ErrNegativeRemaining
	}
	return nil
}

func (ts *txStore) Purge(ctx context.Context) (int, error) {
	return purge(ctx, ts.tx)
}

func (ts *txStore) Balances(ctx context.Context) (map[generic.PayerID]generic.Points, error) {
	return queryBalances(ctx, ts.tx)
}

func (ts *txStore) AdjustBalance(ctx context.Context, payer generic.PayerID, delta generic.Points) error {
	return adjustBalance(ctx, ts.tx, payer, delta)
}

func (ts *txStore) Reset(ctx context.Context) error {
	for _, table := range []string{"lots", "balances"} {
		if _, err := ts.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func addLot(ctx context.Context, db querier, lot generic.Lot) (generic.Lot, error) {
	lot.EarnedAt = generic.Normalize(lot.EarnedAt)
	res, err := db.ExecContext(ctx,
		`INSERT INTO lots (id, payer, remaining, earned_at, earned_nanos) VALUES (?, ?, ?, ?, ?)`,
		string(lot.ID), string(lot.Payer), int64(lot.Remaining),
		lot.EarnedAt.Unix(), lot.EarnedAt.Nanosecond())
	if err != nil {
		return lot, fmt.Errorf("failed to add lot: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return lot, fmt.Errorf("failed to read lot seq: %w", err)
	}
	lot.Seq = uint64(seq)
	return lot, nil
}

func queryLots(ctx context.Context, db querier) ([]generic.Lot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq, id, payer, remaining, earned_at, earned_nanos
		FROM lots
		WHERE remaining > 0
		ORDER BY earned_at ASC, earned_nanos ASC, seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var lots []generic.Lot
	for rows.Next() {
		var (
			lot       generic.Lot
			seq       int64
			id        string
			payer     string
			remaining int64
			earnedAt  int64
			nanos     int64
		)
		if err := rows.Scan(&seq, &id, &payer, &remaining, &earnedAt, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lot.Seq = uint64(seq)
		lot.ID = generic.LotID(id)
		lot.Payer = generic.PayerID(payer)
		lot.Remaining = generic.Points(remaining)
		lot.EarnedAt = time.Unix(earnedAt, nanos).UTC()
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func purge(ctx context.Context, db querier) (int, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM lots WHERE remaining = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge lots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge lots: %w", err)
	}
	return int(n), nil
}

func queryBalances(ctx context.Context, db querier) (map[generic.PayerID]generic.Points, error) {
	rows, err := db.QueryContext(ctx, `SELECT payer, total FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[generic.PayerID]generic.Points)
	for rows.Next() {
		var (
			payer string
			total int64
		)
		if err := rows.Scan(&payer, &total); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances[generic.PayerID(payer)] = generic.Points(total)
	}
	return balances, rows.Err()
}

func adjustBalance(ctx context.Context, db querier, payer generic.PayerID, delta generic.Points) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO balances (payer, total) VALUES (?, ?)
		ON CONFLICT(payer) DO UPDATE SET total = total + excluded.total
	`, string(payer), int64(delta))
	if err != nil {
		return fmt.Errorf("failed to adjust balance for %s: %w", payer, err)
	}
	return nil
}
