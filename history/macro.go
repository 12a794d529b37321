package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Macro is an operation made of commands that execute and undo as one.
type Macro struct {
	description string
	commands    []*Command
	log         *zap.Logger
}

var _ Operation = (*Macro)(nil)

// NewMacro groups ops into one operation. Executing it is all or nothing:
// if one op fails, the ones before it are undone in reverse order.
func NewMacro(description string, ops ...Operation) *Macro {
	m := &Macro{description: description, log: zap.NewNop()}
	for _, op := range ops {
		m.commands = append(m.commands, NewCommand(op))
	}
	return m
}

func (m *Macro) Description() string { return m.description }

// Commands are the sub-commands in execution order.
func (m *Macro) Commands() []*Command { return m.commands }

func (m *Macro) Len() int { return len(m.commands) }

func (m *Macro) Execute(ctx context.Context) error {
	for i, c := range m.commands {
		if err := c.Execute(ctx); err != nil {
			m.rollback(ctx, m.commands[:i])
			return fmt.Errorf("macro %q: %w", m.description, err)
		}
	}
	return nil
}

// Undo undoes every sub-command in reverse order. A sub-command that fails
// to undo is logged and skipped.
func (m *Macro) Undo(ctx context.Context) error {
	m.rollback(ctx, m.commands)
	return nil
}

func (m *Macro) rollback(ctx context.Context, commands []*Command) {
	for i := len(commands) - 1; i >= 0; i-- {
		if commands[i].State() != Executed {
			continue
		}
		if err := commands[i].Undo(ctx); err != nil {
			m.log.Warn("macro undo continues past a failed step",
				zap.String("macro", m.description), zap.Error(err))
		}
	}
}

func (m *Macro) append(c *Command) { m.commands = append(m.commands, c) }
