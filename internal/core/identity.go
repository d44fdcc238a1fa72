package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"reflect"
)

// TaskID is the structural identity of a task.
//
// Two tasks with the same kind and the same parameter mapping have the same
// TaskID, however they were constructed. Parameter declaration order does not
// contribute.
type TaskID string

// String returns the string representation of the TaskID.
func (id TaskID) String() string { return string(id) }

// Short returns the first 12 hex characters, for log lines.
func (id TaskID) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// IdentityOf computes the TaskID of a node.
//
// Components are written in a fixed order, each length-prefixed:
//  1. kind
//  2. parameter count
//  3. for each parameter sorted by name: name, value
func IdentityOf(n Node) TaskID {
	h := sha256.New()

	WriteField(h, []byte(n.Kind()))

	params := n.Params().Sorted()
	WriteCount(h, len(params))
	for _, p := range params {
		WriteField(h, []byte(p.Name))
		WriteField(h, []byte(p.Value))
	}

	return TaskID(hex.EncodeToString(h.Sum(nil)))
}

// Describe renders a node as Kind(a=x, b=y) for humans.
func Describe(n Node) string {
	if IsNil(n) {
		return "<nil>"
	}
	return n.Kind() + "(" + n.Params().String() + ")"
}

// IsNil reports whether n is nil, including a nil pointer stored in a
// non-nil interface.
func IsNil(n Node) bool {
	if n == nil {
		return true
	}
	v := reflect.ValueOf(n)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// WriteField writes data to h behind an 8-byte big-endian length prefix.
func WriteField(h hash.Hash, data []byte) {
	h.Write(binary.BigEndian.AppendUint64(nil, uint64(len(data))))
	h.Write(data)
}

// WriteCount writes n as a 4-byte big-endian field.
func WriteCount(h hash.Hash, n int) {
	WriteField(h, binary.BigEndian.AppendUint32(nil, uint32(n)))
}
