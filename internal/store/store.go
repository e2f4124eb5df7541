// Package store defines the durable, bucketed record store every other component writes through.
//
// Records are opaque byte documents addressed by (bucket, id). Callers group reads in View and
// mutations in Update; an Update whose callback fails writes nothing.
package store

import (
	"context"
	"fmt"
	"strings"

	"huddle/internal/domain"
)

type Bucket string

const (
	BucketPending    Bucket = Bucket(domain.StatusPending)
	BucketInProgress Bucket = Bucket(domain.StatusInProgress)
	BucketReview     Bucket = Bucket(domain.StatusReview)
	BucketCompleted  Bucket = Bucket(domain.StatusCompleted)
	BucketBlocked    Bucket = Bucket(domain.StatusBlocked)

	BucketMessages      Bucket = "messages"
	BucketSpecs         Bucket = "specs"
	BucketStatus        Bucket = "status"
	BucketNotifications Bucket = "notifications"
	BucketReports       Bucket = "reports"
	BucketInbox         Bucket = "supervisory-inbox"
	BucketDecisions     Bucket = "supervisory-decisions"
)

// TaskBuckets holds one bucket per task status, in lifecycle order.
var TaskBuckets = []Bucket{BucketPending, BucketInProgress, BucketReview, BucketCompleted, BucketBlocked}

// Buckets lists every bucket a backend must support.
var Buckets = append(append([]Bucket{}, TaskBuckets...),
	BucketMessages, BucketSpecs, BucketStatus, BucketNotifications, BucketReports, BucketInbox, BucketDecisions)

// ForStatus returns the bucket that holds tasks in status s.
func ForStatus(s domain.TaskStatus) Bucket { return Bucket(s) }

func (b Bucket) Valid() bool {
	for _, known := range Buckets {
		if b == known {
			return true
		}
	}
	return false
}

// IsTask reports whether b is a task status bucket.
func (b Bucket) IsTask() bool {
	for _, tb := range TaskBuckets {
		if b == tb {
			return true
		}
	}
	return false
}

type Record struct {
	ID   string
	Data []byte
}

// Tx is a unit of work against the store. A Tx obtained from View rejects writes.
type Tx interface {
	Get(bucket Bucket, id string) ([]byte, error)
	List(bucket Bucket) ([]Record, error)
	Put(bucket Bucket, id string, data []byte) error
	Create(bucket Bucket, id string, data []byte) error
	Delete(bucket Bucket, id string) error
}

type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// CheckKey validates a (bucket, id) pair. Ids end up in file names, so path separators are rejected.
func CheckKey(bucket Bucket, id string) error {
	if !bucket.Valid() {
		return fmt.Errorf("%w: unknown bucket %q", domain.ErrInvalid, bucket)
	}
	if id == "" || id == "." || id == ".." {
		return fmt.Errorf("%w: record id %q", domain.ErrInvalid, id)
	}
	if strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: record id %q contains reserved characters", domain.ErrInvalid, id)
	}
	return nil
}

// ErrReadOnly is returned when a write is attempted inside View.
var ErrReadOnly = fmt.Errorf("%w: write in read-only transaction", domain.ErrInvalid)

// Unavailable wraps a backend failure as a store-unavailable error.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}
