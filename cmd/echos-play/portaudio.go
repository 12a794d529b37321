//go:build portaudio

package main

import (
	"go.uber.org/zap"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/engine"
	"github.com/echosdaw/echos/portaudio"
)

func openPortAudio(e *engine.Engine, log *zap.Logger) (echos.AudioDevice, error) {
	return portaudio.Open(e, e.SampleRate(), e.BlockSize(), log)
}
