package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"huddle/internal/domain"
	"huddle/internal/repo"
	"huddle/internal/store"
	"huddle/internal/store/fsstore"
)

func TestAppendIsTimeOrdered(t *testing.T) {
	s, err := fsstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	w := Writer{Now: func() time.Time { now = now.Add(time.Millisecond); return now }}

	err = s.Update(context.Background(), func(tx store.Tx) error {
		r := repo.New(tx)
		for _, msg := range []string{"first", "second", "third"} {
			if _, err := w.Append(r, domain.PriorityNormal, msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	err = s.View(context.Background(), func(tx store.Tx) error {
		recs, err := tx.List(store.BucketNotifications)
		if err != nil {
			return err
		}
		ns, err := repo.New(tx).ListNotifications()
		if err != nil {
			return err
		}
		if len(recs) != 3 || len(ns) != 3 {
			t.Fatalf("expected 3 notifications, got %d", len(recs))
		}
		if ns[0].Message != "third" || ns[2].Message != "first" {
			t.Fatalf("unexpected order %v", ns)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAppendValidates(t *testing.T) {
	s, err := fsstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	err = s.Update(context.Background(), func(tx store.Tx) error {
		_, err := Writer{}.Append(repo.New(tx), "urgent-ish", "hello")
		return err
	})
	if !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid priority error, got %v", err)
	}
}
