package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/points-engine/generic"
	"github.com/warp/points-engine/generic/store"
)

var t0 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func addLot(t *testing.T, m *store.Memory, id, payer string, points int64, at time.Time) generic.Lot {
	t.Helper()
	l, err := m.AddLot(context.Background(), generic.Lot{
		ID:        generic.LotID(id),
		Payer:     generic.PayerID(payer),
		Remaining: generic.Points(points),
		EarnedAt:  at,
	})
	require.NoError(t, err)
	return l
}

func lotIDs(lots []generic.Lot) []generic.LotID {
	ids := make([]generic.LotID, len(lots))
	for i, l := range lots {
		ids[i] = l.ID
	}
	return ids
}

func TestMemory_LotsInFIFOOrder(t *testing.T) {
	// GIVEN: Lots inserted out of time order, two sharing a timestamp
	// WHEN: Reading lots
	// THEN: Oldest first; equal timestamps keep insertion order

	m := store.NewMemory()
	ctx := context.Background()

	addLot(t, m, "late", "A", 10, t0.Add(2*time.Hour))
	addLot(t, m, "tie-1", "B", 10, t0.Add(time.Hour))
	addLot(t, m, "early", "A", 10, t0)
	addLot(t, m, "tie-2", "C", 10, t0.Add(time.Hour))

	lots, err := m.Lots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []generic.LotID{"early", "tie-1", "tie-2", "late"}, lotIDs(lots))
}

func TestMemory_AddLotNormalizesAndAssignsSeq(t *testing.T) {
	m := store.NewMemory()
	zone := time.FixedZone("UTC+2", 2*60*60)

	first := addLot(t, m, "l1", "A", 10, time.Date(2024, 1, 1, 2, 0, 0, 0, zone))
	second := addLot(t, m, "l2", "A", 10, t0)

	assert.Equal(t, time.UTC, first.EarnedAt.Location())
	assert.True(t, first.EarnedAt.Equal(t0))
	assert.Less(t, first.Seq, second.Seq)
}

func TestMemory_ConsumeRejectsOverdraw(t *testing.T) {
	// GIVEN: A lot with 10 remaining
	// WHEN: A batch draws 6 twice from it
	// THEN: The batch fails and nothing changes

	m := store.NewMemory()
	ctx := context.Background()
	addLot(t, m, "l1", "A", 10, t0)

	err := m.Consume(ctx, []generic.Draw{
		{LotID: "l1", Payer: "A", Amount: 6},
		{LotID: "l1", Payer: "A", Amount: 6},
	})
	assert.ErrorIs(t, err, generic.ErrNegativeRemaining)

	lots, _ := m.Lots(ctx)
	require.Len(t, lots, 1)
	assert.Equal(t, generic.Points(10), lots[0].Remaining)

	err = m.Consume(ctx, []generic.Draw{{LotID: "missing", Amount: 1}})
	assert.ErrorIs(t, err, generic.ErrLotNotFound)
}

func TestMemory_PurgeRemovesExhaustedLots(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	addLot(t, m, "l1", "A", 10, t0)
	addLot(t, m, "l2", "A", 10, t0.Add(time.Hour))

	require.NoError(t, m.Consume(ctx, []generic.Draw{{LotID: "l1", Amount: 10}}))

	removed, err := m.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	lots, _ := m.Lots(ctx)
	assert.Equal(t, []generic.LotID{"l2"}, lotIDs(lots))
}

func TestMemory_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: One lot and a balance
	// WHEN: A transaction writes, then fails
	// THEN: Every write is undone

	m := store.NewMemory()
	ctx := context.Background()
	addLot(t, m, "l1", "A", 10, t0)
	require.NoError(t, m.AdjustBalance(ctx, "A", 10))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(s generic.Store) error {
		if _, err := s.AddLot(ctx, generic.Lot{ID: "l2", Payer: "B", Remaining: 5, EarnedAt: t0}); err != nil {
			return err
		}
		if err := s.Consume(ctx, []generic.Draw{{LotID: "l1", Amount: 10}}); err != nil {
			return err
		}
		if _, err := s.Purge(ctx); err != nil {
			return err
		}
		if err := s.AdjustBalance(ctx, "A", -10); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	lots, _ := m.Lots(ctx)
	require.Len(t, lots, 1)
	assert.Equal(t, generic.LotID("l1"), lots[0].ID)
	assert.Equal(t, generic.Points(10), lots[0].Remaining)

	balances, _ := m.Balances(ctx)
	assert.Equal(t, map[generic.PayerID]generic.Points{"A": 10}, balances)
}

func TestMemory_BalancesIsACopy(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.AdjustBalance(ctx, "A", 5))

	balances, _ := m.Balances(ctx)
	balances["A"] = 1000

	again, _ := m.Balances(ctx)
	assert.Equal(t, generic.Points(5), again["A"])
}

func TestMemory_Reset(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	addLot(t, m, "l1", "A", 10, t0)
	require.NoError(t, m.AdjustBalance(ctx, "A", 10))

	require.NoError(t, m.Reset(ctx))

	lots, _ := m.Lots(ctx)
	balances, _ := m.Balances(ctx)
	assert.Empty(t, lots)
	assert.Empty(t, balances)
}
