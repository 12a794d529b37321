//go:build !portaudio

package main

import (
	"errors"

	"go.uber.org/zap"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/engine"
)

func openPortAudio(*engine.Engine, *zap.Logger) (echos.AudioDevice, error) {
	return nil, errors.New("built without portaudio support, rebuild with -tags portaudio")
}
