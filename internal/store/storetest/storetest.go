// Package storetest holds the behavioral suite every store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/domain"
	"huddle/internal/store"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) store.Store

func Run(t *testing.T, open Opener) {
	t.Run("CreateGetList", func(t *testing.T) { testCreateGetList(t, open(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, open(t)) })
	t.Run("PutOverwrites", func(t *testing.T) { testPutOverwrites(t, open(t)) })
	t.Run("MissingKeys", func(t *testing.T) { testMissingKeys(t, open(t)) })
	t.Run("FailedUpdateWritesNothing", func(t *testing.T) { testFailedUpdate(t, open(t)) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, open(t)) })
	t.Run("ViewIsReadOnly", func(t *testing.T) { testViewReadOnly(t, open(t)) })
	t.Run("InvalidKeys", func(t *testing.T) { testInvalidKeys(t, open(t)) })
	t.Run("MoveVisibleOnce", func(t *testing.T) { testMoveVisibleOnce(t, open(t)) })
	t.Run("ConcurrentTakeOnce", func(t *testing.T) { testConcurrentTakeOnce(t, open(t)) })
	t.Run("ConcurrentCreateOnce", func(t *testing.T) { testConcurrentCreateOnce(t, open(t)) })
}

func put(t *testing.T, s store.Store, b store.Bucket, id, body string) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(tx store.Tx) error {
		return tx.Put(b, id, []byte(body))
	}))
}

func get(s store.Store, b store.Bucket, id string) ([]byte, error) {
	var out []byte
	err := s.View(context.Background(), func(tx store.Tx) error {
		data, err := tx.Get(b, id)
		out = data
		return err
	})
	return out, err
}

func list(t *testing.T, s store.Store, b store.Bucket) []store.Record {
	t.Helper()
	var out []store.Record
	require.NoError(t, s.View(context.Background(), func(tx store.Tx) error {
		recs, err := tx.List(b)
		out = recs
		return err
	}))
	return out
}

func testCreateGetList(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		if err := tx.Create(store.BucketPending, "task_b", []byte(`{"id":"task_b"}`)); err != nil {
			return err
		}
		return tx.Create(store.BucketPending, "task_a", []byte(`{"id":"task_a"}`))
	}))

	data, err := get(s, store.BucketPending, "task_a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"task_a"}`, string(data))

	recs := list(t, s, store.BucketPending)
	require.Len(t, recs, 2)
	assert.Equal(t, "task_a", recs[0].ID)
	assert.Equal(t, "task_b", recs[1].ID)
	assert.Empty(t, list(t, s, store.BucketCompleted))
}

func testCreateDuplicate(t *testing.T, s store.Store) {
	defer s.Close()
	put(t, s, store.BucketSpecs, "widget", `{"v":1}`)
	err := s.Update(context.Background(), func(tx store.Tx) error {
		return tx.Create(store.BucketSpecs, "widget", []byte(`{"v":2}`))
	})
	require.ErrorIs(t, err, domain.ErrDuplicateID)

	data, err := get(s, store.BucketSpecs, "widget")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(data))
}

func testPutOverwrites(t *testing.T, s store.Store) {
	defer s.Close()
	put(t, s, store.BucketStatus, "qa", `{"state":"idle"}`)
	put(t, s, store.BucketStatus, "qa", `{"state":"busy"}`)
	data, err := get(s, store.BucketStatus, "qa")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"busy"}`, string(data))
	assert.Len(t, list(t, s, store.BucketStatus), 1)
}

func testMissingKeys(t *testing.T, s store.Store) {
	defer s.Close()
	_, err := get(s, store.BucketMessages, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = s.Update(context.Background(), func(tx store.Tx) error {
		return tx.Delete(store.BucketMessages, "nope")
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testFailedUpdate(t *testing.T, s store.Store) {
	defer s.Close()
	boom := errors.New("boom")
	err := s.Update(context.Background(), func(tx store.Tx) error {
		if err := tx.Put(store.BucketPending, "task_1", []byte(`{}`)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = get(s, store.BucketPending, "task_1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, list(t, s, store.BucketPending))
}

func testReadYourWrites(t *testing.T, s store.Store) {
	defer s.Close()
	put(t, s, store.BucketPending, "task_1", `{"status":"pending"}`)
	require.NoError(t, s.Update(context.Background(), func(tx store.Tx) error {
		require.NoError(t, tx.Put(store.BucketInProgress, "task_1", []byte(`{"status":"in_progress"}`)))
		require.NoError(t, tx.Delete(store.BucketPending, "task_1"))

		_, err := tx.Get(store.BucketPending, "task_1")
		require.ErrorIs(t, err, domain.ErrNotFound)
		recs, err := tx.List(store.BucketInProgress)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.JSONEq(t, `{"status":"in_progress"}`, string(recs[0].Data))
		return nil
	}))
	assert.Empty(t, list(t, s, store.BucketPending))
	assert.Len(t, list(t, s, store.BucketInProgress), 1)
}

func testViewReadOnly(t *testing.T, s store.Store) {
	defer s.Close()
	err := s.View(context.Background(), func(tx store.Tx) error {
		return tx.Put(store.BucketSpecs, "x", []byte(`{}`))
	})
	require.ErrorIs(t, err, store.ErrReadOnly)
}

func testInvalidKeys(t *testing.T, s store.Store) {
	defer s.Close()
	for _, id := range []string{"", "..", "a/b", `a\b`, ".hidden"} {
		err := s.Update(context.Background(), func(tx store.Tx) error {
			return tx.Put(store.BucketSpecs, id, []byte(`{}`))
		})
		assert.ErrorIs(t, err, domain.ErrInvalid, "id %q", id)
	}
	err := s.Update(context.Background(), func(tx store.Tx) error {
		return tx.Put(store.Bucket("archive"), "x", []byte(`{}`))
	})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

// A record moved between buckets is seen exactly once by every concurrent reader.
func testMoveVisibleOnce(t *testing.T, s store.Store) {
	defer s.Close()
	put(t, s, store.BucketPending, "task_1", `{}`)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var bad atomic.Int32
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = s.View(ctx, func(tx store.Tx) error {
					n := 0
					for _, b := range store.TaskBuckets {
						recs, err := tx.List(b)
						if err != nil {
							return err
						}
						n += len(recs)
					}
					if n != 1 {
						bad.Add(1)
					}
					return nil
				})
			}
		}()
	}

	from, to := store.BucketPending, store.BucketInProgress
	for i := 0; i < 40; i++ {
		require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
			data, err := tx.Get(from, "task_1")
			if err != nil {
				return err
			}
			if err := tx.Put(to, "task_1", data); err != nil {
				return err
			}
			return tx.Delete(from, "task_1")
		}))
		from, to = to, from
	}
	close(stop)
	wg.Wait()
	assert.Zero(t, bad.Load(), "readers observed a record in zero or two buckets")
}

// Concurrent get-and-delete of one record succeeds for exactly one caller.
func testConcurrentTakeOnce(t *testing.T, s store.Store) {
	defer s.Close()
	put(t, s, store.BucketMessages, "qa_1", `{}`)

	var wg sync.WaitGroup
	var took, missed atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(context.Background(), func(tx store.Tx) error {
				if _, err := tx.Get(store.BucketMessages, "qa_1"); err != nil {
					return err
				}
				return tx.Delete(store.BucketMessages, "qa_1")
			})
			switch {
			case err == nil:
				took.Add(1)
			case errors.Is(err, domain.ErrNotFound):
				missed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, took.Load())
	assert.EqualValues(t, 7, missed.Load())
}

func testConcurrentCreateOnce(t *testing.T, s store.Store) {
	defer s.Close()
	var wg sync.WaitGroup
	var created, dup atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Update(context.Background(), func(tx store.Tx) error {
				return tx.Create(store.BucketPending, "task_x", []byte(fmt.Sprintf(`{"n":%d}`, i)))
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, domain.ErrDuplicateID):
				dup.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, 7, dup.Load())
}
