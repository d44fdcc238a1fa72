package storage

import "context"

// Outcome is the result of a successful delete.
//
// OutcomeAbsent is only reported by backends that can observe absence. S3
// DeleteObject succeeds for a missing key, so S3 locations usually report
// OutcomeDeleted whether or not the object existed.
type Outcome int

const (
	// OutcomeDeleted means an artifact existed and was removed.
	OutcomeDeleted Outcome = iota
	// OutcomeAbsent means nothing was there; the post-condition already held.
	OutcomeAbsent
)

func (o Outcome) String() string {
	if o == OutcomeAbsent {
		return "absent"
	}
	return "deleted"
}

// Backend deletes artifacts in one storage system.
//
// Delete must be idempotent: a missing artifact is OutcomeAbsent with a nil
// error. Connectivity or authentication failures must wrap
// ErrBackendUnavailable.
type Backend interface {
	Delete(ctx context.Context, loc Location) (Outcome, error)
}

// Opener acquires a Backend for the lifetime of one invalidation run.
//
// If the returned Backend implements io.Closer it is closed when the run's
// Session is closed.
type Opener func(ctx context.Context) (Backend, error)
