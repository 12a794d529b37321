//go:build cgo

package midiin

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"

	"github.com/echosdaw/echos"
)

// Input is an open MIDI input port.
type Input struct {
	driver *rtmididrv.Driver
	in     drivers.In
	stop   func()
	log    *zap.Logger
}

// Devices lists the names of the MIDI input ports.
func Devices() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDriver, err)
	}
	defer drv.Close()
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// Open listens to the first input port whose name starts with prefix and
// calls f with the events of its note messages. f runs on the driver's
// goroutine.
func Open(prefix string, f func(echos.MIDIEvent), log *zap.Logger) (*Input, error) {
	if log == nil {
		log = zap.NewNop()
	}
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDriver, err)
	}
	ins, err := drv.Ins()
	if err != nil {
		drv.Close()
		return nil, err
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), prefix) {
			continue
		}
		if err := in.Open(); err != nil {
			drv.Close()
			return nil, fmt.Errorf("opening MIDI input %v failed: %w", in, err)
		}
		stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
			if e, ok := Event(msg); ok {
				f(e)
			}
		})
		if err != nil {
			in.Close()
			drv.Close()
			return nil, fmt.Errorf("listening to MIDI input %v failed: %w", in, err)
		}
		i := &Input{driver: drv, in: in, stop: stop, log: log.Named("midiin")}
		i.log.Info("listening", zap.String("device", in.String()))
		return i, nil
	}
	drv.Close()
	return nil, fmt.Errorf("no MIDI input starting with %q", prefix)
}

func (i *Input) Name() string { return i.in.String() }

func (i *Input) Close() error {
	i.stop()
	if i.in.IsOpen() {
		i.in.Close()
	}
	return i.driver.Close()
}
