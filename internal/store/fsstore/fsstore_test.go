package fsstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/domain"
	"huddle/internal/store"
	"huddle/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		if err := tx.Create(store.BucketInProgress, "task_1", []byte(`{}`)); err != nil {
			return err
		}
		if err := tx.Put(store.BucketInbox, "ceo_1", []byte(`{}`)); err != nil {
			return err
		}
		return tx.Put(store.BucketReports, "daily_2024-05-01", []byte(`{}`))
	}))

	for _, p := range []string{
		"tasks/in_progress/task_1.json",
		"ceo-office/inbox/ceo_1.json",
		"reports/daily_2024-05-01.json",
	} {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(p)))
		assert.NoError(t, err, p)
	}
}

func TestListSkipsForeignFiles(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	dir := filepath.Join(root, Dir(store.BucketSpecs))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".widget.json.123.tmp"), []byte(`{`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`hi`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.json"), []byte(`{}`), 0o644))

	require.NoError(t, s.View(context.Background(), func(tx store.Tx) error {
		recs, err := tx.List(store.BucketSpecs)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "widget", recs[0].ID)
		return nil
	}))
}

func TestLockTimeoutIsUnavailable(t *testing.T) {
	root := t.TempDir()
	holder, err := Open(root)
	require.NoError(t, err)
	waiter, err := Open(root, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- holder.Update(context.Background(), func(tx store.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err = waiter.View(context.Background(), func(tx store.Tx) error { return nil })
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, waiter.View(context.Background(), func(tx store.Tx) error { return nil }))
}

func TestCanceledContextWritesNothing(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	err = s.Update(ctx, func(tx store.Tx) error {
		if err := tx.Put(store.BucketSpecs, "widget", []byte(`{}`)); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.NoError(t, s.View(context.Background(), func(tx store.Tx) error {
		_, err := tx.Get(store.BucketSpecs, "widget")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	}))
}

func TestLockFreedWhenHolderDies(t *testing.T) {
	path := filepath.Join(t.TempDir(), lockName)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	l, err := acquire(ctx, path, true)
	require.NoError(t, err)
	// Closing the handle without release is what a crashed process leaves behind.
	require.NoError(t, l.f.Close())

	again, err := acquire(ctx, path, true)
	require.NoError(t, err)
	again.release()
}

// seedMove stores task_1 in in_progress and specs/widget, the starting point for the commit tests.
func seedMove(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(tx store.Tx) error {
		if err := tx.Put(store.BucketInProgress, "task_1", []byte(`{"v":1}`)); err != nil {
			return err
		}
		return tx.Put(store.BucketSpecs, "widget", []byte(`{"v":1}`))
	}))
}

func moveAndTouch(tx store.Tx) error {
	if err := tx.Put(store.BucketSpecs, "widget", []byte(`{"v":2}`)); err != nil {
		return err
	}
	if err := tx.Put(store.BucketReview, "task_1", []byte(`{"v":2}`)); err != nil {
		return err
	}
	if err := tx.Delete(store.BucketInProgress, "task_1"); err != nil {
		return err
	}
	return tx.Put(store.BucketNotifications, "n1", []byte(`{}`))
}

func assertUntouched(t *testing.T, root string, s *Store) {
	t.Helper()
	require.NoError(t, s.View(context.Background(), func(tx store.Tx) error {
		data, err := tx.Get(store.BucketInProgress, "task_1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(data))
		_, err = tx.Get(store.BucketReview, "task_1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		data, err = tx.Get(store.BucketSpecs, "widget")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(data))
		return nil
	}))
	for _, b := range []store.Bucket{store.BucketReview, store.BucketSpecs} {
		entries, err := os.ReadDir(filepath.Join(root, Dir(b)))
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left in %s: %s", b, e.Name())
		}
	}
}

func TestCommitFailureWritingLeavesNoTrace(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs symlinks")
	}
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)
	seedMove(t, s)

	dir := filepath.Join(root, Dir(store.BucketNotifications))
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), dir))

	err = s.Update(context.Background(), moveAndTouch)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assertUntouched(t, root, s)
}

func TestCommitFailureApplyingRollsBack(t *testing.T) {
	cases := map[string]func(){
		"rename": func() {
			calls := 0
			rename = func(from, to string) error {
				calls++
				if calls == 2 {
					return errors.New("disk full")
				}
				return os.Rename(from, to)
			}
		},
		"remove": func() {
			remove = func(string) error { return errors.New("read-only file system") }
		},
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Cleanup(func() { rename, remove = os.Rename, os.Remove })
			root := t.TempDir()
			s, err := Open(root)
			require.NoError(t, err)
			seedMove(t, s)

			breakIt()
			err = s.Update(context.Background(), moveAndTouch)
			require.ErrorIs(t, err, domain.ErrStoreUnavailable)
			rename, remove = os.Rename, os.Remove

			assertUntouched(t, root, s)
			require.NoError(t, s.View(context.Background(), func(tx store.Tx) error {
				_, err := tx.Get(store.BucketNotifications, "n1")
				assert.ErrorIs(t, err, domain.ErrNotFound)
				return nil
			}))
		})
	}
}
