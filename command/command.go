// Package command holds the undoable edits of a project. Every type
// implements history.Operation and addresses tracks, clips, inserts and
// parameters by id, so a command stays valid when the objects it touched are
// removed and restored by other commands.
package command

import (
	"fmt"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/project"
)

func track(p *project.Project, id string) (*project.Track, error) {
	t, ok := p.Track(id)
	if !ok {
		return nil, fmt.Errorf("track %v: %w", id, echos.ErrNodeNotFound)
	}
	return t, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
