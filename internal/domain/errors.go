package domain

import "errors"

// Error kinds. Every failure returned by the core wraps exactly one of these.
var (
	ErrDuplicateID         = errors.New("duplicate id")
	ErrNotFound            = errors.New("not found")
	ErrPermission          = errors.New("permission denied")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrNotifierUnavailable = errors.New("notifier unavailable")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInvalid             = errors.New("invalid input")
)

// Kind names an error kind for exit codes and API error bodies.
type Kind string

const (
	KindNone                Kind = ""
	KindDuplicateID         Kind = "duplicate_id"
	KindNotFound            Kind = "not_found"
	KindPermission          Kind = "permission_denied"
	KindStoreUnavailable    Kind = "store_unavailable"
	KindNotifierUnavailable Kind = "notifier_unavailable"
	KindInvalidTransition   Kind = "invalid_transition"
	KindInvalid             Kind = "invalid_input"
	KindInternal            Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrPermission, KindPermission},
	{ErrNotFound, KindNotFound},
	{ErrDuplicateID, KindDuplicateID},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrInvalid, KindInvalid},
	{ErrStoreUnavailable, KindStoreUnavailable},
	{ErrNotifierUnavailable, KindNotifierUnavailable},
}

// KindOf classifies err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
