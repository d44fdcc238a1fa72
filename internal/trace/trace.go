package trace

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// InvalidationTrace is the deterministic record of one invalidation run: the
// closure it covered and one event per logical decision.
//
// Two runs over the same closure that take the same decisions produce
// byte-identical canonical JSON, whatever order the events were recorded in.
// Timestamps, run ids and error text are never part of a trace.
type InvalidationTrace struct {
	ClosureHash string       `json:"closureHash"`
	Events      []TraceEvent `json:"events"`
}

// TraceEventKind discriminates trace events. Values are serialized verbatim.
type TraceEventKind string

const (
	EventRunAborted      TraceEventKind = "RunAborted"
	EventDeletionPlanned TraceEventKind = "DeletionPlanned"
	EventArtifactDeleted TraceEventKind = "ArtifactDeleted"
	EventArtifactAbsent  TraceEventKind = "ArtifactAbsent"
	EventTaskSkipped     TraceEventKind = "TaskSkipped"
	EventTaskFailed      TraceEventKind = "TaskFailed"
)

// Reason codes carried by TaskSkipped, TaskFailed and RunAborted events.
const (
	ReasonNonDeletableOutput = "NonDeletableOutput"
	ReasonMalformedLocation  = "MalformedLocation"
	ReasonDeleteFailed       = "DeleteFailed"
	ReasonBackendUnavailable = "BackendUnavailable"
	ReasonCancelled          = "Cancelled"
)

// kindRank orders events of the same task. Unknown kinds sort last.
var kindRank = map[TraceEventKind]int{
	EventRunAborted:      0,
	EventDeletionPlanned: 1,
	EventArtifactDeleted: 2,
	EventArtifactAbsent:  3,
	EventTaskSkipped:     4,
	EventTaskFailed:      5,
}

func rank(k TraceEventKind) int {
	if r, ok := kindRank[k]; ok {
		return r
	}
	return len(kindRank)
}

// TraceEvent is one decision about one task, or about the run when TaskID is
// empty (RunAborted).
type TraceEvent struct {
	Kind     TraceEventKind `json:"kind"`
	TaskID   string         `json:"taskId,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Location string         `json:"location,omitempty"`
}

func compareEvents(a, b TraceEvent) int {
	return cmp.Or(
		cmp.Compare(a.TaskID, b.TaskID),
		cmp.Compare(rank(a.Kind), rank(b.Kind)),
		cmp.Compare(a.Reason, b.Reason),
		cmp.Compare(a.Location, b.Location),
	)
}

// Validate reports the first structural problem in t.
func (t *InvalidationTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.ClosureHash == "" {
		return errors.New("trace: closureHash is required")
	}
	for i, e := range t.Events {
		switch {
		case e.Kind == "":
			return fmt.Errorf("trace: events[%d]: kind is required", i)
		case e.Kind != EventRunAborted && e.TaskID == "":
			return fmt.Errorf("trace: events[%d]: taskId is required for %s", i, e.Kind)
		}
	}
	return nil
}

// Canonicalize sorts events by task, then kind, reason and location.
// Run-level events have no task and come first.
func (t *InvalidationTrace) Canonicalize() {
	if t == nil {
		return
	}
	slices.SortStableFunc(t.Events, compareEvents)
}

// CanonicalJSON encodes a canonicalized copy of t. The receiver's event order
// is left untouched.
func (t InvalidationTrace) CanonicalJSON() ([]byte, error) {
	c := InvalidationTrace{
		ClosureHash: t.ClosureHash,
		Events:      append(make([]TraceEvent, 0, len(t.Events)), t.Events...),
	}
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// Hash returns the sha256 hex digest of the canonical JSON.
func (t InvalidationTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
