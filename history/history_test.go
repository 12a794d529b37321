package history_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/echosdaw/echos/history"
)

type store map[string]int

// set assigns a value and remembers the previous one.
type set struct {
	s       store
	key     string
	value   int
	old     int
	hadOld  bool
	failing bool
}

var errBroken = errors.New("broken")

func (o *set) Description() string { return fmt.Sprintf("set %s=%d", o.key, o.value) }

func (o *set) Execute(context.Context) error {
	if o.failing {
		return errBroken
	}
	o.old, o.hadOld = o.s[o.key]
	o.s[o.key] = o.value
	return nil
}

func (o *set) Undo(context.Context) error {
	if o.hadOld {
		o.s[o.key] = o.old
	} else {
		delete(o.s, o.key)
	}
	return nil
}

// drag is a set that merges with later drags of the same key.
type drag struct{ set }

func (o *drag) CanMerge(other history.Operation) bool {
	d, ok := other.(*drag)
	return ok && d.key == o.key
}

func (o *drag) Merge(other history.Operation) { o.value = other.(*drag).value }

// nested executes another command through the manager from inside its own
// execution.
type nested struct {
	m     *history.Manager
	inner history.Operation
}

func (o *nested) Description() string { return "nested" }
func (o *nested) Execute(ctx context.Context) error {
	_, err := o.m.Execute(ctx, o.inner)
	return err
}
func (o *nested) Undo(context.Context) error { return nil }

func newManager(t *testing.T, size int) *history.Manager {
	return history.NewManager(size, zaptest.NewLogger(t))
}

func TestExecuteUndoRedo(t *testing.T) {
	ctx := context.Background()
	s := store{}
	m := newManager(t, 10)
	cmd, err := m.Execute(ctx, &set{s: s, key: "a", value: 1})
	require.NoError(t, err)
	require.Equal(t, history.Executed, cmd.State())
	require.Equal(t, 1, s["a"])

	require.NoError(t, m.Undo(ctx))
	require.Equal(t, history.Undone, cmd.State())
	require.NotContains(t, s, "a")
	require.True(t, m.CanRedo())

	require.NoError(t, m.Redo(ctx))
	require.Equal(t, 1, s["a"])
	require.ErrorIs(t, m.Redo(ctx), history.ErrNothingToRedo)

	_, err = m.Execute(ctx, &set{s: s, key: "b", value: 2})
	require.NoError(t, err)
	require.NoError(t, m.Undo(ctx))
	_, err = m.Execute(ctx, &set{s: s, key: "c", value: 3})
	require.NoError(t, err)
	require.False(t, m.CanRedo(), "a new command clears the redo stack")

	st := m.Stats()
	require.Equal(t, uint64(3), st.Executed)
	require.Equal(t, uint64(2), st.Undone)
	require.Equal(t, uint64(1), st.Redone)
}

func TestCommandLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store{}
	c := history.NewCommand(&set{s: s, key: "a", value: 1})
	require.Equal(t, history.Created, c.State())
	require.ErrorIs(t, c.Undo(ctx), history.ErrNotExecuted)
	require.NoError(t, c.Execute(ctx))
	s["a"] = 5
	require.NoError(t, c.Execute(ctx), "executing twice is a no-op")
	require.Equal(t, 5, s["a"])

	f := history.NewCommand(&set{s: s, key: "x", failing: true})
	require.ErrorIs(t, f.Execute(ctx), errBroken)
	require.Equal(t, history.Failed, f.State())
	require.ErrorIs(t, f.Err(), errBroken)
}

func TestFailedCommandIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, 10)
	_, err := m.Execute(ctx, &set{s: store{}, key: "a", failing: true})
	require.ErrorIs(t, err, errBroken)
	require.False(t, m.CanUndo())
	require.Equal(t, uint64(1), m.Stats().Failed)
	require.ErrorIs(t, m.Undo(ctx), history.ErrNothingToUndo)
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := store{}
	m := newManager(t, 2)
	for i, k := range []string{"a", "b", "c"} {
		_, err := m.Execute(ctx, &set{s: s, key: k, value: i})
		require.NoError(t, err)
	}
	require.Equal(t, []string{"set b=1", "set c=2"}, m.UndoHistory())
	require.Equal(t, uint64(1), m.Stats().Evicted)
}

func TestMergeRestoresValueBeforeFirst(t *testing.T) {
	ctx := context.Background()
	s := store{"gain": 0}
	m := newManager(t, 10)
	for _, v := range []int{1, 2, 3} {
		_, err := m.Execute(ctx, &drag{set{s: s, key: "gain", value: v}})
		require.NoError(t, err)
	}
	require.Equal(t, 3, s["gain"])
	require.Len(t, m.UndoHistory(), 1)
	require.Equal(t, uint64(2), m.Stats().Merged)
	require.NoError(t, m.Undo(ctx))
	require.Equal(t, 0, s["gain"])
	require.NoError(t, m.Redo(ctx))
	require.Equal(t, 3, s["gain"])

	_, err := m.Execute(ctx, &drag{set{s: s, key: "pan", value: 1}})
	require.NoError(t, err)
	require.Len(t, m.UndoHistory(), 2, "a different key does not merge")
}

func TestMacroIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := store{"a": 1}
	m := newManager(t, 10)
	mac := history.NewMacro("batch",
		&set{s: s, key: "a", value: 10},
		&set{s: s, key: "b", value: 20},
		&set{s: s, key: "c", failing: true},
		&set{s: s, key: "d", value: 40},
	)
	_, err := m.Execute(ctx, mac)
	require.ErrorIs(t, err, errBroken)
	require.Equal(t, store{"a": 1}, s)
	require.False(t, m.CanUndo())

	ok := history.NewMacro("ok", &set{s: s, key: "a", value: 2}, &set{s: s, key: "b", value: 3})
	_, err = m.Execute(ctx, ok)
	require.NoError(t, err)
	require.Equal(t, store{"a": 2, "b": 3}, s)
	require.NoError(t, m.Undo(ctx))
	require.Equal(t, store{"a": 1}, s)
}

func TestRecordedMacro(t *testing.T) {
	ctx := context.Background()
	s := store{}
	m := newManager(t, 10)
	m.BeginMacro("outer")
	_, err := m.Execute(ctx, &set{s: s, key: "a", value: 1})
	require.NoError(t, err)
	require.False(t, m.CanUndo(), "undo is unavailable while recording")
	require.ErrorIs(t, m.Undo(ctx), history.ErrMacroRecording)

	m.BeginMacro("inner")
	_, err = m.Execute(ctx, &set{s: s, key: "b", value: 2})
	require.NoError(t, err)
	_, err = m.Execute(ctx, &set{s: s, key: "z", failing: true})
	require.ErrorIs(t, err, errBroken)
	require.Equal(t, 2, m.Recording())
	inner, err := m.EndMacro()
	require.NoError(t, err)
	require.Equal(t, 1, inner.Operation().(*history.Macro).Len(), "failed sub-commands are not recorded")

	outer, err := m.EndMacro()
	require.NoError(t, err)
	require.Equal(t, 2, outer.Operation().(*history.Macro).Len())
	require.Equal(t, []string{"outer"}, m.UndoHistory())

	require.NoError(t, m.Undo(ctx))
	require.Empty(t, s)
	require.NoError(t, m.Redo(ctx))
	require.Equal(t, store{"a": 1, "b": 2}, s)

	_, err = m.EndMacro()
	require.ErrorIs(t, err, history.ErrNoMacro)
}

func TestCancelMacro(t *testing.T) {
	ctx := context.Background()
	s := store{"a": 1}
	m := newManager(t, 10)
	m.BeginMacro("edit")
	_, err := m.Execute(ctx, &set{s: s, key: "a", value: 5})
	require.NoError(t, err)
	_, err = m.Execute(ctx, &set{s: s, key: "b", value: 6})
	require.NoError(t, err)
	require.NoError(t, m.CancelMacro(ctx))
	require.Equal(t, store{"a": 1}, s)
	require.False(t, m.CanUndo())
	require.ErrorIs(t, m.CancelMacro(ctx), history.ErrNoMacro)

	m.BeginMacro("empty")
	cmd, err := m.EndMacro()
	require.NoError(t, err)
	require.Nil(t, cmd)
	require.False(t, m.CanUndo())
}

func TestReentrantExecution(t *testing.T) {
	ctx := context.Background()
	s := store{}
	m := newManager(t, 10)
	_, err := m.Execute(ctx, &nested{m: m, inner: &set{s: s, key: "a", value: 1}})
	require.NoError(t, err)
	require.Equal(t, 1, s["a"])
	require.Len(t, m.UndoHistory(), 2)
	m.Clear()
	require.False(t, m.CanUndo())
	require.Zero(t, m.Stats().UndoDepth)
}
