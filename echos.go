// Package echos holds the data types shared by the render graph, the engine
// and the domain model: audio buffers, the tempo/time-signature timeline,
// clips and notes, ports and connections, and the plugin host interfaces.
package echos

import "errors"

var (
	ErrNodeNotFound        = errors.New("node not found")
	ErrNodeExists          = errors.New("node already exists")
	ErrPortNotFound        = errors.New("port not found")
	ErrPortMismatch        = errors.New("ports are not compatible")
	ErrDuplicateConnection = errors.New("connection already exists")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrCycle               = errors.New("connection would create a cycle")
	ErrPluginNotFound      = errors.New("plugin not found")
	ErrInvalidTimeline     = errors.New("invalid timeline state")
)
