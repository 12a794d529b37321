//go:build portaudio

// Package portaudio drives an audio source from a PortAudio callback stream
// on the default output device.
package portaudio

import (
	"fmt"
	"time"

	pa "github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/echosdaw/echos"
)

type Device struct {
	stream *pa.Stream
	source echos.AudioSource
	log    *zap.Logger
}

var _ echos.AudioDevice = (*Device)(nil)

// Open initializes PortAudio and opens a stereo stream that calls
// source.Process for every block. The stream is not started.
func Open(source echos.AudioSource, sampleRate, blockSize int, log *zap.Logger) (*Device, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("unable to set up portaudio: %w", err)
	}
	d := &Device{source: source, log: log.Named("portaudio")}
	out, err := pa.DefaultOutputDevice()
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("no default output device: %w", err)
	}
	d.stream, err = pa.OpenDefaultStream(0, 2, float64(sampleRate), blockSize, d.callback)
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("unable to open portaudio stream: %w", err)
	}
	d.log.Info("stream opened",
		zap.String("device", out.Name),
		zap.Int("sample_rate", sampleRate),
		zap.Duration("latency", d.Latency()))
	return d, nil
}

func (d *Device) callback(out [][]float32, _ pa.StreamCallbackTimeInfo, flags pa.StreamCallbackFlags) {
	d.source.Process(echos.AudioBuffer{out[0], out[1]}, echos.CallbackStatus{
		Underflow: flags&pa.OutputUnderflow != 0,
	})
}

func (d *Device) Start() error { return d.stream.Start() }
func (d *Device) Stop() error  { return d.stream.Stop() }

func (d *Device) Latency() time.Duration { return d.stream.Info().OutputLatency }

func (d *Device) Close() error {
	err := d.stream.Close()
	if terr := pa.Terminate(); err == nil {
		err = terr
	}
	return err
}
