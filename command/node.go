package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/history"
	"github.com/echosdaw/echos/project"
)

// CreateTrack adds a track. The id is chosen when the command is created so
// that later commands can address the track before it exists.
type CreateTrack struct {
	project *project.Project
	id      string
	kind    echos.NodeKind
	name    string
	removed *project.RemovedNode
}

func NewCreateTrack(p *project.Project, kind echos.NodeKind, name string) *CreateTrack {
	return &CreateTrack{project: p, id: uuid.NewString(), kind: kind, name: name}
}

func (c *CreateTrack) TrackID() string { return c.id }

func (c *CreateTrack) Execute(context.Context) error {
	r := c.project.Router()
	if c.removed != nil {
		if err := r.RestoreNode(*c.removed); err != nil {
			return err
		}
		c.removed = nil
		return nil
	}
	_, err := r.AddTrackWithID(c.id, c.kind, c.name)
	return err
}

func (c *CreateTrack) Undo(context.Context) error {
	rm, err := c.project.Router().RemoveNode(c.id)
	if err != nil {
		return err
	}
	c.removed = &rm
	return nil
}

func (c *CreateTrack) Description() string {
	return fmt.Sprintf("Create %v track %q", c.kind, c.name)
}

// NewInstrumentTrack creates an instrument track with pluginID as its
// instrument, as one undo step.
func NewInstrumentTrack(p *project.Project, name, pluginID string) (*history.Macro, *CreateTrack) {
	create := NewCreateTrack(p, echos.InstrumentNode, name)
	insert := NewAddInsert(p, create.TrackID(), "", pluginID, 0)
	return history.NewMacro(fmt.Sprintf("Create instrument track %q", name), create, insert), create
}

type RenameNode struct {
	project *project.Project
	trackID string
	name    string
	old     string
}

func NewRenameNode(p *project.Project, trackID, name string) *RenameNode {
	return &RenameNode{project: p, trackID: trackID, name: name}
}

func (c *RenameNode) Execute(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	c.old = t.Name()
	t.SetName(c.name)
	return nil
}

func (c *RenameNode) Undo(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	t.SetName(c.old)
	return nil
}

func (c *RenameNode) Description() string { return fmt.Sprintf("Rename to %q", c.name) }

// DeleteNode removes a track with its connections and the sends feeding it.
// Undo restores all of them.
type DeleteNode struct {
	project *project.Project
	trackID string
	removed project.RemovedNode
}

func NewDeleteNode(p *project.Project, trackID string) *DeleteNode {
	return &DeleteNode{project: p, trackID: trackID}
}

func (c *DeleteNode) Execute(context.Context) error {
	rm, err := c.project.Router().RemoveNode(c.trackID)
	if err != nil {
		return err
	}
	c.removed = rm
	return nil
}

func (c *DeleteNode) Undo(context.Context) error {
	return c.project.Router().RestoreNode(c.removed)
}

func (c *DeleteNode) Description() string {
	if c.removed.Track != nil {
		return fmt.Sprintf("Delete track %q", c.removed.Track.Name())
	}
	return "Delete track"
}

// AddInsert puts a plugin into a track's insert chain.
type AddInsert struct {
	project    *project.Project
	trackID    string
	instanceID string
	pluginID   string
	index      int
	insert     *project.Insert
}

// NewAddInsert creates the command. An empty instanceID gets a new one.
func NewAddInsert(p *project.Project, trackID, instanceID, pluginID string, index int) *AddInsert {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return &AddInsert{project: p, trackID: trackID, instanceID: instanceID, pluginID: pluginID, index: index}
}

func (c *AddInsert) InstanceID() string { return c.instanceID }

func (c *AddInsert) Execute(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	if c.insert == nil {
		if c.insert, err = t.NewInsert(c.instanceID, c.pluginID); err != nil {
			return err
		}
	}
	_, err = t.AddInsert(c.insert, c.index)
	return err
}

func (c *AddInsert) Undo(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	_, _, err = t.RemoveInsert(c.instanceID)
	return err
}

func (c *AddInsert) Description() string { return fmt.Sprintf("Add %s", c.pluginID) }

type RemoveInsert struct {
	project    *project.Project
	trackID    string
	instanceID string
	insert     *project.Insert
	index      int
}

func NewRemoveInsert(p *project.Project, trackID, instanceID string) *RemoveInsert {
	return &RemoveInsert{project: p, trackID: trackID, instanceID: instanceID}
}

func (c *RemoveInsert) Execute(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	c.insert, c.index, err = t.RemoveInsert(c.instanceID)
	return err
}

func (c *RemoveInsert) Undo(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	_, err = t.AddInsert(c.insert, c.index)
	return err
}

func (c *RemoveInsert) Description() string {
	if c.insert != nil {
		return fmt.Sprintf("Remove %s", c.insert.PluginID())
	}
	return "Remove insert"
}

type MoveInsert struct {
	project    *project.Project
	trackID    string
	instanceID string
	index      int
	old        int
}

func NewMoveInsert(p *project.Project, trackID, instanceID string, index int) *MoveInsert {
	return &MoveInsert{project: p, trackID: trackID, instanceID: instanceID, index: index}
}

func (c *MoveInsert) Execute(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	c.old, err = t.MoveInsert(c.instanceID, c.index)
	return err
}

func (c *MoveInsert) Undo(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	_, err = t.MoveInsert(c.instanceID, c.old)
	return err
}

func (c *MoveInsert) Description() string { return fmt.Sprintf("Move insert to %d", c.index) }

type SetInsertEnabled struct {
	project    *project.Project
	trackID    string
	instanceID string
	enabled    bool
	old        bool
}

func NewSetInsertEnabled(p *project.Project, trackID, instanceID string, enabled bool) *SetInsertEnabled {
	return &SetInsertEnabled{project: p, trackID: trackID, instanceID: instanceID, enabled: enabled}
}

func (c *SetInsertEnabled) insert() (*project.Insert, error) {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return nil, err
	}
	ins, _, ok := t.Insert(c.instanceID)
	if !ok {
		return nil, fmt.Errorf("insert %v on %v: %w", c.instanceID, c.trackID, project.ErrInsertNotFound)
	}
	return ins, nil
}

func (c *SetInsertEnabled) Execute(context.Context) error {
	ins, err := c.insert()
	if err != nil {
		return err
	}
	c.old = ins.Enabled()
	ins.SetEnabled(c.enabled)
	return nil
}

func (c *SetInsertEnabled) Undo(context.Context) error {
	ins, err := c.insert()
	if err != nil {
		return err
	}
	ins.SetEnabled(c.old)
	return nil
}

func (c *SetInsertEnabled) Description() string {
	if c.enabled {
		return "Enable insert"
	}
	return "Bypass insert"
}
