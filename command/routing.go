package command

import (
	"context"
	"fmt"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/project"
)

type Connect struct {
	project *project.Project
	conn    echos.Connection
}

func NewConnect(p *project.Project, c echos.Connection) *Connect {
	return &Connect{project: p, conn: c.Normalize()}
}

func (c *Connect) Execute(context.Context) error { return c.project.Router().Connect(c.conn) }
func (c *Connect) Undo(context.Context) error    { return c.project.Router().Disconnect(c.conn) }
func (c *Connect) Description() string           { return fmt.Sprintf("Connect %v", c.conn) }

type Disconnect struct {
	project *project.Project
	conn    echos.Connection
}

func NewDisconnect(p *project.Project, c echos.Connection) *Disconnect {
	return &Disconnect{project: p, conn: c.Normalize()}
}

func (c *Disconnect) Execute(context.Context) error { return c.project.Router().Disconnect(c.conn) }
func (c *Disconnect) Undo(context.Context) error    { return c.project.Router().Connect(c.conn) }
func (c *Disconnect) Description() string           { return fmt.Sprintf("Disconnect %v", c.conn) }

// CreateSend adds a send from one track to the input of another.
type CreateSend struct {
	project  *project.Project
	trackID  string
	target   string
	levelDB  float64
	preFader bool
	send     *project.Send
}

func NewCreateSend(p *project.Project, trackID, target string, levelDB float64, preFader bool) *CreateSend {
	return &CreateSend{project: p, trackID: trackID, target: target, levelDB: levelDB, preFader: preFader}
}

// Send is the created send, nil before the first execution.
func (c *CreateSend) Send() *project.Send { return c.send }

func (c *CreateSend) Execute(context.Context) error {
	r := c.project.Router()
	if c.send != nil {
		return r.RestoreSend(c.send)
	}
	s, err := r.AddSend(c.trackID, c.target, c.levelDB, c.preFader)
	if err != nil {
		return err
	}
	c.send = s
	return nil
}

func (c *CreateSend) Undo(context.Context) error {
	_, err := c.project.Router().RemoveSend(c.trackID, c.send.ID())
	return err
}

func (c *CreateSend) Description() string { return "Create send" }

type DeleteSend struct {
	project *project.Project
	trackID string
	sendID  string
	send    *project.Send
}

func NewDeleteSend(p *project.Project, trackID, sendID string) *DeleteSend {
	return &DeleteSend{project: p, trackID: trackID, sendID: sendID}
}

func (c *DeleteSend) Execute(context.Context) error {
	s, err := c.project.Router().RemoveSend(c.trackID, c.sendID)
	if err != nil {
		return err
	}
	c.send = s
	return nil
}

func (c *DeleteSend) Undo(context.Context) error { return c.project.Router().RestoreSend(c.send) }
func (c *DeleteSend) Description() string        { return "Delete send" }
