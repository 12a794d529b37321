//go:build !cgo

package midiin

import (
	"go.uber.org/zap"

	"github.com/echosdaw/echos"
)

// Input is never opened without cgo.
type Input struct{}

func Devices() ([]string, error) { return nil, ErrNoDriver }

func Open(string, func(echos.MIDIEvent), *zap.Logger) (*Input, error) { return nil, ErrNoDriver }

func (*Input) Name() string { return "" }
func (*Input) Close() error { return nil }
