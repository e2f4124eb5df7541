package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/domain"
	"huddle/internal/store"
	"huddle/internal/store/fsstore"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := fsstore.Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func update(t *testing.T, s store.Store, fn func(r Repo) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(tx store.Tx) error { return fn(New(tx)) }))
}

func view(t *testing.T, s store.Store, fn func(r Repo) error) {
	t.Helper()
	require.NoError(t, s.View(context.Background(), func(tx store.Tx) error { return fn(New(tx)) }))
}

func task(id string, st domain.TaskStatus, updated time.Time) domain.Task {
	return domain.Task{ID: id, Title: id, AssignedTo: "qa", Status: st, Priority: 3, CreatedAt: t0, UpdatedAt: updated}
}

func TestInsertTaskRejectsIDInAnyBucket(t *testing.T) {
	s := newStore(t)
	update(t, s, func(r Repo) error { return r.InsertTask(task("task_1", domain.StatusBlocked, t0)) })

	err := s.Update(context.Background(), func(tx store.Tx) error {
		return New(tx).InsertTask(task("task_1", domain.StatusPending, t0))
	})
	require.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestFindTaskPrefersNewestCopy(t *testing.T) {
	s := newStore(t)
	older := task("task_1", domain.StatusPending, t0)
	newerCopy := task("task_1", domain.StatusInProgress, t0.Add(time.Minute))
	update(t, s, func(r Repo) error {
		data, _ := encode(older)
		if err := r.Tx.Put(store.BucketPending, "task_1", data); err != nil {
			return err
		}
		data, _ = encode(newerCopy)
		return r.Tx.Put(store.BucketInProgress, "task_1", data)
	})

	view(t, s, func(r Repo) error {
		loc, err := r.FindTask("task_1")
		require.NoError(t, err)
		assert.Equal(t, store.BucketInProgress, loc.Bucket)
		assert.Equal(t, domain.StatusInProgress, loc.Task.Status)
		assert.Equal(t, []store.Bucket{store.BucketPending}, loc.Stale)

		tasks, err := r.ListTasks(domain.StatusPending)
		require.NoError(t, err)
		assert.Empty(t, tasks, "stale pending copy must not be listed")
		return nil
	})

	update(t, s, func(r Repo) error {
		loc, err := r.FindTask("task_1")
		if err != nil {
			return err
		}
		next := loc.Task
		next.Status = domain.StatusReview
		return r.SaveTask(loc, next)
	})
	view(t, s, func(r Repo) error {
		for _, b := range []store.Bucket{store.BucketPending, store.BucketInProgress} {
			_, err := r.Tx.Get(b, "task_1")
			assert.ErrorIs(t, err, domain.ErrNotFound, string(b))
		}
		loc, err := r.FindTask("task_1")
		require.NoError(t, err)
		assert.Equal(t, store.BucketReview, loc.Bucket)
		assert.Empty(t, loc.Stale)
		return nil
	})
}

func TestFindTaskMissing(t *testing.T) {
	s := newStore(t)
	view(t, s, func(r Repo) error {
		_, err := r.FindTask("nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
}

func TestMessagesForMatchesRecipientExactly(t *testing.T) {
	s := newStore(t)
	update(t, s, func(r Repo) error {
		for i, to := range []string{"qa", "qa_lead", "qa"} {
			m := domain.Message{
				ID:        to + "_" + time.Duration(i).String(),
				ToAgent:   to,
				Timestamp: t0.Add(time.Duration(-i) * time.Second),
			}
			if err := r.InsertMessage(m); err != nil {
				return err
			}
		}
		return nil
	})
	view(t, s, func(r Repo) error {
		ms, err := r.MessagesFor("qa")
		require.NoError(t, err)
		require.Len(t, ms, 2)
		assert.True(t, ms[0].Timestamp.Before(ms[1].Timestamp))
		for _, m := range ms {
			assert.Equal(t, "qa", m.ToAgent)
		}
		return nil
	})
}

func TestCorruptRecordsAreSkipped(t *testing.T) {
	s := newStore(t)
	update(t, s, func(r Repo) error {
		if err := r.Tx.Put(store.BucketStatus, "broken", []byte(`{not json`)); err != nil {
			return err
		}
		return r.PutStatus(domain.AgentStatus{Agent: "qa", State: "idle"})
	})
	var skipped []string
	require.NoError(t, s.View(context.Background(), func(tx store.Tx) error {
		r := Repo{Tx: tx, Corrupt: func(b store.Bucket, id string, err error) { skipped = append(skipped, id) }}
		sts, err := r.ListStatus()
		require.NoError(t, err)
		require.Len(t, sts, 1)
		assert.Equal(t, "qa", sts[0].Agent)
		return nil
	}))
	assert.Equal(t, []string{"broken"}, skipped)
}

func TestFindTaskCorruptCopy(t *testing.T) {
	s := newStore(t)
	update(t, s, func(r Repo) error {
		if err := r.Tx.Put(store.BucketPending, "task_bad", []byte(`{not json`)); err != nil {
			return err
		}
		if err := r.Tx.Put(store.BucketPending, "task_1", []byte(`{broken`)); err != nil {
			return err
		}
		return r.Tx.Put(store.BucketReview, "task_1", []byte(`{"id":"task_1","title":"t","assigned_to":"qa","priority":3}`))
	})
	view(t, s, func(r Repo) error {
		_, err := r.FindTask("task_bad")
		require.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.Equal(t, domain.KindStoreUnavailable, domain.KindOf(err))

		var skipped []store.Bucket
		r.Corrupt = func(b store.Bucket, id string, err error) { skipped = append(skipped, b) }
		loc, err := r.FindTask("task_1")
		require.NoError(t, err)
		assert.Equal(t, store.BucketReview, loc.Bucket)
		assert.Equal(t, []store.Bucket{store.BucketPending}, skipped)
		return nil
	})
}

func TestReportsAndNotifications(t *testing.T) {
	s := newStore(t)
	update(t, s, func(r Repo) error {
		for _, d := range []string{"2024-05-02", "2024-05-01"} {
			if err := r.PutReport(domain.Report{Date: d}); err != nil {
				return err
			}
		}
		if err := r.InsertNotification(domain.Notification{ID: "n1", Priority: domain.PriorityInfo, CreatedAt: t0}); err != nil {
			return err
		}
		return r.InsertNotification(domain.Notification{ID: "n2", Priority: domain.PriorityHigh, CreatedAt: t0.Add(time.Second)})
	})
	view(t, s, func(r Repo) error {
		dates, err := r.ReportDates()
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-05-01", "2024-05-02"}, dates)

		rep, err := r.GetReport("2024-05-02")
		require.NoError(t, err)
		assert.Equal(t, "2024-05-02", rep.Date)

		ns, err := r.ListNotifications()
		require.NoError(t, err)
		require.Len(t, ns, 2)
		assert.Equal(t, "n2", ns[0].ID)
		return nil
	})
}

func TestSameDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	late := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	assert.True(t, SameDay(late, "2024-05-02", loc))
	assert.False(t, SameDay(late, "2024-05-01", loc))
}
