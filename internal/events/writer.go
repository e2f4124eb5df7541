// Package events appends supervisory notifications as part of a store transaction.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"huddle/internal/domain"
	"huddle/internal/repo"
)

// idLayout sorts lexically in time order.
const idLayout = "20060102T150405.000000000"

type Writer struct {
	Now func() time.Time
}

// NewID returns a time-ordered notification id.
func NewID(now time.Time) string {
	return now.UTC().Format(idLayout) + "_" + uuid.NewString()[:8]
}

// Append writes an immutable notification through r.
func (w Writer) Append(r repo.Repo, priority, message string) (domain.Notification, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if !domain.ValidNotificationPriority(priority) {
		return domain.Notification{}, fmt.Errorf("%w: notification priority %q", domain.ErrInvalid, priority)
	}
	if message == "" {
		return domain.Notification{}, fmt.Errorf("%w: notification message required", domain.ErrInvalid)
	}
	now := w.Now().UTC()
	n := domain.Notification{ID: NewID(now), Priority: priority, Message: message, CreatedAt: now}
	if err := r.InsertNotification(n); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}
