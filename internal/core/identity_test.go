package core

import (
	"crypto/sha256"
	"hash"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_StructuralEquality(t *testing.T) {
	t.Run("Should give independently built tasks with equal kind and params the same id", func(t *testing.T) {
		a1 := NewTask("TaskA", Params{{Name: "param", Value: "x"}}, WithOutput(SingleOutput(NewTarget("a.pkl"))))
		a2 := NewTask("TaskA", Params{{Name: "param", Value: "x"}})

		assert.Equal(t, IdentityOf(a1), IdentityOf(a2))
	})

	t.Run("Should ignore parameter declaration order", func(t *testing.T) {
		t1 := NewTask("TaskA", Params{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}})
		t2 := NewTask("TaskA", Params{{Name: "b", Value: "2"}, {Name: "a", Value: "1"}})

		assert.Equal(t, IdentityOf(t1), IdentityOf(t2))
	})

	t.Run("Should distinguish differing parameter values", func(t *testing.T) {
		x := NewTask("TaskA", Params{{Name: "param", Value: "x"}})
		y := NewTask("TaskA", Params{{Name: "param", Value: "y"}})

		assert.NotEqual(t, IdentityOf(x), IdentityOf(y))
	})

	t.Run("Should distinguish differing kinds with equal params", func(t *testing.T) {
		a := NewTask("TaskA", Params{{Name: "param", Value: "x"}})
		b := NewTask("TaskB", Params{{Name: "param", Value: "x"}})

		assert.NotEqual(t, IdentityOf(a), IdentityOf(b))
	})

	t.Run("Should not be fooled by field boundary shifts", func(t *testing.T) {
		t1 := NewTask("Task", Params{{Name: "ab", Value: "c"}})
		t2 := NewTask("Task", Params{{Name: "a", Value: "bc"}})

		assert.NotEqual(t, IdentityOf(t1), IdentityOf(t2))
	})
}

func TestIdentity_Short(t *testing.T) {
	id := IdentityOf(NewTask("TaskA", nil))
	require.Len(t, id.String(), 64)
	assert.Equal(t, id.String()[:12], id.Short())
	assert.Equal(t, "abc", TaskID("abc").Short())
}

func TestDescribe(t *testing.T) {
	task := NewTask("TaskB", Params{{Name: "param", Value: "y"}, {Name: "n", Value: "1"}})
	assert.Equal(t, "TaskB(param=y, n=1)", Describe(task))
	assert.Equal(t, "<nil>", Describe(nil))
	assert.Equal(t, "<nil>", Describe((*Task)(nil)))
}

func TestIsNil(t *testing.T) {
	var missing *Task
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil(missing))
	assert.False(t, IsNil(NewTask("TaskA", nil)))
}

func TestWriteField(t *testing.T) {
	h := &recordingHash{Hash: sha256.New()}
	WriteField(h, []byte("ab"))
	WriteCount(h, 3)

	assert.Equal(t, []byte{
		0, 0, 0, 0, 0, 0, 0, 2, 'a', 'b',
		0, 0, 0, 0, 0, 0, 0, 4, 0, 0, 0, 3,
	}, h.written)
}

type recordingHash struct {
	hash.Hash
	written []byte
}

func (h *recordingHash) Write(p []byte) (int, error) {
	h.written = append(h.written, p...)
	return h.Hash.Write(p)
}
