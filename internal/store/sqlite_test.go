package store

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorenew/internal/domain"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNextTaskIDStartsAtZeroAndIncrements(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	var got []domain.TaskID
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InTx(ctx, func(tx Tx) error {
			id, err := tx.NextTaskID(ctx)
			got = append(got, id)
			return err
		}))
	}
	assert.Equal(t, []domain.TaskID{0, 1, 2, 3, 4}, got)

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		next, err := tx.PeekTaskID(ctx)
		assert.Equal(t, domain.TaskID(5), next)
		return err
	}))
}

func TestNextTaskIDConcurrentAllocationsNeverCollide(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	const n = 40

	var mu sync.Mutex
	var ids []int
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(tx Tx) error {
				id, err := tx.NextTaskID(ctx)
				if err != nil {
					return err
				}
				mu.Lock()
				ids = append(ids, int(id))
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sort.Ints(ids)
	require.Len(t, ids, n)
	for i, id := range ids {
		assert.Equal(t, i, id)
	}
}

func TestRolledBackAllocationIsNotConsumed(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Tx) error {
		_, err := tx.NextTaskID(ctx)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		id, err := tx.NextTaskID(ctx)
		assert.Equal(t, domain.TaskID(0), id)
		return err
	}))
}

func TestTaskInsertGetDuplicate(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	entry := domain.TaskEntry{Frequency: "0 0 * * *", DomainName: "example.arch"}

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		_, err := tx.GetTask(ctx, 0)
		assert.ErrorIs(t, err, domain.ErrUnknownTaskID)

		require.NoError(t, tx.InsertTask(ctx, 0, entry))
		err = tx.InsertTask(ctx, 0, domain.TaskEntry{Frequency: "x", DomainName: "y"})
		assert.ErrorIs(t, err, domain.ErrDuplicateTaskID)

		got, err := tx.GetTask(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, entry, got)
		return nil
	}))
}

func TestListTasksPages(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		for i := 0; i < 5; i++ {
			require.NoError(t, tx.InsertTask(ctx, domain.TaskID(i), domain.TaskEntry{Frequency: "@daily", DomainName: "n.arch"}))
		}
		first, err := tx.ListTasks(ctx, nil, 2)
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, domain.TaskID(0), first[0].ID)

		after := first[1].ID
		rest, err := tx.ListTasks(ctx, &after, 10)
		require.NoError(t, err)
		require.Len(t, rest, 3)
		assert.Equal(t, domain.TaskID(2), rest[0].ID)
		return nil
	}))
}

func TestItemsAndCounters(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		_, err := tx.LoadConfig(ctx)
		assert.ErrorIs(t, err, domain.ErrNotInstantiated)
		_, err = tx.IncrementCount(ctx)
		assert.ErrorIs(t, err, domain.ErrNotInstantiated)

		cfg := domain.Config{NativeDenom: "aarch", TaskCreationAmount: domain.NewAmount(10), RefillThreshold: domain.NewAmount(3)}
		require.NoError(t, tx.SaveConfig(ctx, cfg))
		got, err := tx.LoadConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, "aarch", got.NativeDenom)
		assert.True(t, got.TaskCreationAmount.Equal(domain.NewAmount(10)))

		require.NoError(t, tx.SaveAdmin(ctx, "admin"))
		admin, err := tx.LoadAdmin(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Addr("admin"), admin)

		require.NoError(t, tx.SaveCount(ctx, 41))
		n, err := tx.IncrementCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(42), n)

		require.NoError(t, tx.SaveCount(ctx, 2147483647))
		_, err = tx.IncrementCount(ctx)
		assert.ErrorIs(t, err, errCountOverflow)
		return nil
	}))
}

func TestDefaultIDs(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		_, err := tx.GetDefaultID(ctx, "archway1a")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, tx.PutDefaultID(ctx, "archway1a", "one.arch"))
		require.NoError(t, tx.PutDefaultID(ctx, "archway1a", "two.arch"))
		name, err := tx.GetDefaultID(ctx, "archway1a")
		require.NoError(t, err)
		assert.Equal(t, "two.arch", name)
		return nil
	}))
}
