package history

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const DefaultMaxSize = 100

type (
	// Manager keeps the undo and redo stacks.
	//
	// Execution is serialized by a lock that is re-entrant through the
	// context: an operation may execute further commands on the same manager
	// as long as it passes on the context it was given.
	Manager struct {
		exec sync.Mutex // held while commands run

		mu     sync.Mutex // guards the fields below
		undo   []*Command
		redo   []*Command
		macros []*Macro
		max    int
		stats  Stats

		log *zap.Logger
	}

	Stats struct {
		Executed   uint64
		Undone     uint64
		Redone     uint64
		Merged     uint64
		Failed     uint64
		Evicted    uint64
		UndoDepth  int
		RedoDepth  int
		MacroDepth int
	}

	lockKey struct{}
)

// NewManager creates a history keeping at most maxSize undo steps. A
// non-positive maxSize means DefaultMaxSize.
func NewManager(maxSize int, log *zap.Logger) *Manager {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{max: maxSize, log: log.Named("history")}
}

func (m *Manager) lock(ctx context.Context) (context.Context, func()) {
	if ctx.Value(lockKey{}) == m {
		return ctx, func() {}
	}
	m.exec.Lock()
	return context.WithValue(ctx, lockKey{}, m), m.exec.Unlock
}

// Execute runs op as a new command and records it. While a macro is being
// recorded the command joins the macro instead. If the command on top of
// the undo stack can merge op, op is executed and folded into it. A failed
// command is returned together with its error and is not recorded.
func (m *Manager) Execute(ctx context.Context, op Operation) (*Command, error) {
	ctx, unlock := m.lock(ctx)
	defer unlock()
	cmd := NewCommand(op)
	if mac, ok := m.recording(); ok {
		if err := cmd.Execute(ctx); err != nil {
			m.failed(cmd, err)
			return cmd, err
		}
		mac.append(cmd)
		m.count(func(s *Stats) { s.Executed++ })
		return cmd, nil
	}
	if top := m.mergeTarget(op); top != nil {
		if err := cmd.Execute(ctx); err != nil {
			m.failed(cmd, err)
			return cmd, err
		}
		top.op.(Merger).Merge(op)
		m.mu.Lock()
		m.redo = m.redo[:0]
		m.stats.Merged++
		m.mu.Unlock()
		return top, nil
	}
	if err := cmd.Execute(ctx); err != nil {
		m.failed(cmd, err)
		return cmd, err
	}
	m.mu.Lock()
	m.push(cmd)
	m.redo = m.redo[:0]
	m.stats.Executed++
	m.mu.Unlock()
	return cmd, nil
}

func (m *Manager) mergeTarget(op Operation) *Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undo) == 0 {
		return nil
	}
	top := m.undo[len(m.undo)-1]
	mg, ok := top.op.(Merger)
	if !ok || top.state != Executed || !mg.CanMerge(op) {
		return nil
	}
	return top
}

// push adds cmd to the undo stack, evicting the oldest entry past the
// maximum size. m.mu must be held.
func (m *Manager) push(cmd *Command) {
	m.undo = append(m.undo, cmd)
	if n := len(m.undo) - m.max; n > 0 {
		clear(m.undo[:n])
		m.undo = m.undo[n:]
		m.stats.Evicted += uint64(n)
	}
}

func (m *Manager) failed(cmd *Command, err error) {
	m.count(func(s *Stats) { s.Failed++ })
	m.log.Warn("command failed", zap.String("command", cmd.Description()), zap.Error(err))
}

func (m *Manager) count(f func(*Stats)) {
	m.mu.Lock()
	f(&m.stats)
	m.mu.Unlock()
}

func (m *Manager) recording() (*Macro, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.macros) == 0 {
		return nil, false
	}
	return m.macros[len(m.macros)-1], true
}

// Undo undoes the most recent command and moves it to the redo stack. If
// undoing fails the command stays where it was.
func (m *Manager) Undo(ctx context.Context) error {
	ctx, unlock := m.lock(ctx)
	defer unlock()
	cmd, err := m.pop(&m.undo, ErrNothingToUndo)
	if err != nil {
		return err
	}
	if err := cmd.Undo(ctx); err != nil {
		m.mu.Lock()
		m.undo = append(m.undo, cmd)
		m.mu.Unlock()
		m.log.Warn("undo failed", zap.String("command", cmd.Description()), zap.Error(err))
		return err
	}
	m.mu.Lock()
	m.redo = append(m.redo, cmd)
	m.stats.Undone++
	m.mu.Unlock()
	return nil
}

// Redo executes the most recently undone command again.
func (m *Manager) Redo(ctx context.Context) error {
	ctx, unlock := m.lock(ctx)
	defer unlock()
	cmd, err := m.pop(&m.redo, ErrNothingToRedo)
	if err != nil {
		return err
	}
	if err := cmd.Execute(ctx); err != nil {
		m.mu.Lock()
		m.redo = append(m.redo, cmd)
		m.mu.Unlock()
		m.log.Warn("redo failed", zap.String("command", cmd.Description()), zap.Error(err))
		return err
	}
	m.mu.Lock()
	m.push(cmd)
	m.stats.Redone++
	m.mu.Unlock()
	return nil
}

func (m *Manager) pop(stack *[]*Command, empty error) (*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.macros) > 0 {
		return nil, ErrMacroRecording
	}
	if len(*stack) == 0 {
		return nil, empty
	}
	cmd := (*stack)[len(*stack)-1]
	(*stack)[len(*stack)-1] = nil
	*stack = (*stack)[:len(*stack)-1]
	return cmd, nil
}

// BeginMacro starts recording. Until the matching EndMacro, executed
// commands are collected into one undo step. Macros nest: a macro begun
// while another records becomes a single step of its parent.
func (m *Manager) BeginMacro(description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mac := NewMacro(description)
	mac.log = m.log
	m.macros = append(m.macros, mac)
}

// EndMacro finishes the innermost macro and records it, either on the undo
// stack or in the parent macro. An empty macro is dropped and EndMacro
// returns a nil command.
func (m *Manager) EndMacro() (*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.macros) == 0 {
		return nil, ErrNoMacro
	}
	mac := m.macros[len(m.macros)-1]
	m.macros = m.macros[:len(m.macros)-1]
	if mac.Len() == 0 {
		return nil, nil
	}
	cmd := NewCommand(mac)
	cmd.state = Executed
	if len(m.macros) > 0 {
		m.macros[len(m.macros)-1].append(cmd)
		return cmd, nil
	}
	m.push(cmd)
	m.redo = m.redo[:0]
	return cmd, nil
}

// CancelMacro stops the innermost macro and undoes what it recorded.
func (m *Manager) CancelMacro(ctx context.Context) error {
	ctx, unlock := m.lock(ctx)
	defer unlock()
	m.mu.Lock()
	if len(m.macros) == 0 {
		m.mu.Unlock()
		return ErrNoMacro
	}
	mac := m.macros[len(m.macros)-1]
	m.macros = m.macros[:len(m.macros)-1]
	m.mu.Unlock()
	if err := mac.Undo(ctx); err != nil {
		return fmt.Errorf("cancel macro %q: %w", mac.Description(), err)
	}
	return nil
}

// CanUndo and CanRedo report whether Undo and Redo have something to do.
// Both are false while a macro is being recorded.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.macros) == 0 && len(m.undo) > 0
}

func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.macros) == 0 && len(m.redo) > 0
}

// UndoHistory lists the descriptions of the undo stack, oldest first.
func (m *Manager) UndoHistory() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return descriptions(m.undo)
}

// RedoHistory lists the descriptions of the redo stack, the next redo last.
func (m *Manager) RedoHistory() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return descriptions(m.redo)
}

func descriptions(cmds []*Command) []string {
	ret := make([]string, len(cmds))
	for i, c := range cmds {
		ret[i] = c.Description()
	}
	return ret
}

// Recording reports how many macros are being recorded.
func (m *Manager) Recording() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.macros)
}

// Clear forgets every command, including macros being recorded. Nothing is
// undone.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.undo)
	clear(m.redo)
	m.undo, m.redo, m.macros = m.undo[:0], m.redo[:0], nil
}

func (m *Manager) MaxSize() int { return m.max }

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.UndoDepth, s.RedoDepth, s.MacroDepth = len(m.undo), len(m.redo), len(m.macros)
	return s
}
