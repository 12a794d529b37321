// Package history implements undoable commands and the undo/redo history
// that records them.
//
// An Operation is the undoable piece of work. A Command wraps one operation
// with its lifecycle (created, executed, undone or failed) and the Manager
// keeps executed commands on bounded undo and redo stacks. Several commands
// can be recorded as one undo step with BeginMacro/EndMacro, or built up
// front with NewMacro.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotExecuted    = errors.New("command has not been executed")
	ErrNothingToUndo  = errors.New("nothing to undo")
	ErrNothingToRedo  = errors.New("nothing to redo")
	ErrNoMacro        = errors.New("no macro is being recorded")
	ErrMacroRecording = errors.New("a macro is being recorded")
)

type (
	// Operation is a reversible change of some state. Undo must restore
	// everything Execute changed. Execute is called again to redo after an
	// Undo.
	Operation interface {
		Execute(ctx context.Context) error
		Undo(ctx context.Context) error
		Description() string
	}

	// Merger is implemented by operations that can absorb a later
	// operation, so that a continuous edit (dragging a knob, nudging the
	// tempo) takes a single undo step. Merge is called after other has been
	// executed; the receiver keeps what it needs to undo to the state before
	// itself and takes the new value from other.
	Merger interface {
		CanMerge(other Operation) bool
		Merge(other Operation)
	}

	// State is the lifecycle position of a Command.
	State int

	Command struct {
		id      uuid.UUID
		op      Operation
		state   State
		err     error
		created time.Time
	}
)

const (
	Created State = iota
	Executed
	Undone
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Executed:
		return "executed"
	case Undone:
		return "undone"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func NewCommand(op Operation) *Command {
	return &Command{id: uuid.New(), op: op, created: time.Now()}
}

func (c *Command) ID() uuid.UUID        { return c.id }
func (c *Command) Operation() Operation { return c.op }
func (c *Command) Description() string  { return c.op.Description() }
func (c *Command) State() State         { return c.state }
func (c *Command) Created() time.Time   { return c.created }

// Err is the error of the last failed Execute or Undo, if any.
func (c *Command) Err() error { return c.err }

// Execute runs the operation. Executing an executed command does nothing.
// On failure the command moves to Failed and keeps the error.
func (c *Command) Execute(ctx context.Context) error {
	if c.state == Executed {
		return nil
	}
	if err := c.op.Execute(ctx); err != nil {
		c.state = Failed
		c.err = fmt.Errorf("%s: %w", c.op.Description(), err)
		return c.err
	}
	c.state = Executed
	c.err = nil
	return nil
}

// Undo reverts an executed command. A failing undo leaves the command
// executed and records the error.
func (c *Command) Undo(ctx context.Context) error {
	if c.state != Executed {
		return fmt.Errorf("undo %s (%v): %w", c.op.Description(), c.state, ErrNotExecuted)
	}
	if err := c.op.Undo(ctx); err != nil {
		c.err = fmt.Errorf("undo %s: %w", c.op.Description(), err)
		return c.err
	}
	c.state = Undone
	return nil
}

func (c *Command) String() string {
	return fmt.Sprintf("%s [%v]", c.op.Description(), c.state)
}
