package repo

import (
	"errors"
	"fmt"
	"sort"

	"huddle/internal/domain"
	"huddle/internal/store"
)

// TaskLocation is where a task currently lives. Stale lists buckets holding an older copy left by an
// interrupted move.
type TaskLocation struct {
	Task   domain.Task
	Bucket store.Bucket
	Stale  []store.Bucket
}

// newer decides between two copies of one task. Ties go to the copy found later in lifecycle order.
func newer(candidate, current domain.Task) bool {
	return !candidate.UpdatedAt.Before(current.UpdatedAt)
}

func decodeTask(b store.Bucket, id string, data []byte) (domain.Task, error) {
	var t domain.Task
	if err := decode(b, id, data, &t); err != nil {
		return t, err
	}
	t.ID = id
	t.Status = domain.TaskStatus(b)
	return t, nil
}

// FindTask locates a task across all status buckets. The bucket is authoritative for Status. Copies
// that fail to decode are skipped; if no copy decodes the error is a store-unavailable one.
func (r Repo) FindTask(id string) (TaskLocation, error) {
	var loc TaskLocation
	var badErr error
	found := false
	for _, b := range store.TaskBuckets {
		data, err := r.Tx.Get(b, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return loc, err
		}
		t, err := decodeTask(b, id, data)
		if err != nil {
			r.corrupt(b, id, err)
			if badErr == nil {
				badErr = err
			}
			continue
		}
		switch {
		case !found:
			loc.Task, loc.Bucket, found = t, b, true
		case newer(t, loc.Task):
			loc.Stale = append(loc.Stale, loc.Bucket)
			loc.Task, loc.Bucket = t, b
		default:
			loc.Stale = append(loc.Stale, b)
		}
	}
	if !found && badErr != nil {
		return loc, badErr
	}
	if !found {
		return loc, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return loc, nil
}

// TaskExists reports whether any status bucket holds id, even an undecodable copy.
func (r Repo) TaskExists(id string) (bool, error) {
	for _, b := range store.TaskBuckets {
		_, err := r.Tx.Get(b, id)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return false, err
		}
	}
	return false, nil
}

// InsertTask writes a new task into its status bucket, failing if the id exists in any bucket.
func (r Repo) InsertTask(t domain.Task) error {
	exists, err := r.TaskExists(t.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("task %s: %w", t.ID, domain.ErrDuplicateID)
	}
	data, err := encode(t)
	if err != nil {
		return err
	}
	return r.Tx.Create(store.ForStatus(t.Status), t.ID, data)
}

// SaveTask writes t into the bucket for t.Status and removes every other copy recorded in loc.
func (r Repo) SaveTask(loc TaskLocation, t domain.Task) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	dest := store.ForStatus(t.Status)
	if err := r.Tx.Put(dest, t.ID, data); err != nil {
		return err
	}
	for _, b := range append([]store.Bucket{loc.Bucket}, loc.Stale...) {
		if b == dest {
			continue
		}
		if err := r.Tx.Delete(b, t.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return nil
}

// ListTasks returns tasks in the given statuses (all when none given), oldest first. Every bucket is
// scanned so a stale copy never shadows the task's current status.
func (r Repo) ListTasks(statuses ...domain.TaskStatus) ([]domain.Task, error) {
	want := map[domain.TaskStatus]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	byID := map[string]domain.Task{}
	for _, b := range store.TaskBuckets {
		err := r.listDecoded(b, func(rec store.Record) error {
			t, err := decodeTask(b, rec.ID, rec.Data)
			if err != nil {
				return err
			}
			if cur, ok := byID[t.ID]; !ok || newer(t, cur) {
				byID[t.ID] = t
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	out := make([]domain.Task, 0, len(byID))
	for _, t := range byID {
		if len(want) == 0 || want[t.Status] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
