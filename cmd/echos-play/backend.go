package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/config"
	"github.com/echosdaw/echos/engine"
	"github.com/echosdaw/echos/oto"
)

var errNoBackend = errors.New("no audio backend configured")

func openDevice(backend string, e *engine.Engine, log *zap.Logger) (echos.AudioDevice, error) {
	switch backend {
	case config.BackendOto:
		return oto.Open(e, 0, log)
	case config.BackendPortAudio:
		return openPortAudio(e, log)
	case config.BackendNone:
		return nil, errNoBackend
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}
