// Package storage deletes task artifacts across heterogeneous backends.
//
// A Dispatcher maps location scheme prefixes (e.g. "s3://") to backend
// openers; any location without a registered prefix is a local filesystem
// path. A Session scopes opened backends to a single invalidation run.
//
// Deletion is idempotent on every backend: an absent artifact is a success
// reported as OutcomeAbsent.
package storage
