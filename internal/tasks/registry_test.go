package tasks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autorenew/internal/domain"
	"autorenew/internal/store"
)

func withRegistry(t *testing.T, fn func(ctx context.Context, r Registry)) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "tasks.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		fn(ctx, New(tx))
		return nil
	}))
}

func TestAllocateSequence(t *testing.T) {
	withRegistry(t, func(ctx context.Context, r Registry) {
		for want := domain.TaskID(0); want < 10; want++ {
			got, err := r.Allocate(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})
}

func TestResolveBeforeBindFails(t *testing.T) {
	withRegistry(t, func(ctx context.Context, r Registry) {
		id, err := r.Allocate(ctx)
		require.NoError(t, err)
		_, err = r.Resolve(ctx, id)
		assert.ErrorIs(t, err, domain.ErrUnknownTaskID)
	})
}

func TestBindResolveAndDuplicate(t *testing.T) {
	withRegistry(t, func(ctx context.Context, r Registry) {
		id, err := r.Allocate(ctx)
		require.NoError(t, err)
		entry := domain.TaskEntry{Frequency: "0 0 * * *", DomainName: "example.arch"}
		require.NoError(t, r.Bind(ctx, id, entry))

		got, err := r.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entry, got)

		err = r.Bind(ctx, id, domain.TaskEntry{Frequency: "@hourly", DomainName: "other.arch"})
		assert.ErrorIs(t, err, domain.ErrDuplicateTaskID)

		got, err = r.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "example.arch", got.DomainName)
	})
}

func TestBindRejectsEmptyFields(t *testing.T) {
	withRegistry(t, func(ctx context.Context, r Registry) {
		assert.ErrorIs(t, r.Bind(ctx, 0, domain.TaskEntry{Frequency: "@daily"}), domain.ErrInvalidName)
		assert.ErrorIs(t, r.Bind(ctx, 0, domain.TaskEntry{DomainName: "a.arch"}), domain.ErrInvalidSchedule)
	})
}

func TestListClampsLimit(t *testing.T) {
	withRegistry(t, func(ctx context.Context, r Registry) {
		for i := 0; i < MaxPageLimit+5; i++ {
			id, err := r.Allocate(ctx)
			require.NoError(t, err)
			require.NoError(t, r.Bind(ctx, id, domain.TaskEntry{Frequency: "@daily", DomainName: "a.arch"}))
		}
		page, err := r.List(ctx, nil, 0)
		require.NoError(t, err)
		assert.Len(t, page, DefaultPageLimit)

		page, err = r.List(ctx, nil, 1000)
		require.NoError(t, err)
		assert.Len(t, page, MaxPageLimit)
	})
}
