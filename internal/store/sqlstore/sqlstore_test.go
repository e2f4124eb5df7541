package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/db"
	"huddle/internal/migrate"
	"huddle/internal/store"
	"huddle/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), t.TempDir(), 5*time.Second)
		require.NoError(t, err)
		return s
	})
}

func TestReopenKeepsRecords(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()

	s, err := Open(ctx, ws, time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.Create(store.BucketReview, "task_9", []byte(`{"id":"task_9"}`))
	}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, ws, time.Second)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		data, err := tx.Get(store.BucketReview, "task_9")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"task_9"}`, string(data))
		return nil
	}))
}

func TestMigrationsApplied(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	s, err := Open(ctx, ws, time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	conn, err := db.Open(db.Config{Workspace: ws})
	require.NoError(t, err)
	defer conn.Close()
	migrations, err := migrate.Load()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	v, err := migrate.Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)

	// Re-running is a no-op.
	require.NoError(t, migrate.Migrate(ctx, conn))
}
