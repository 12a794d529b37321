// Package oto plays an engine on the default audio device through oto. The
// device pulls interleaved float32 frames from the engine's Read method, so
// the engine's audio callback runs on oto's reader goroutine.
package oto

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/engine"
)

const bytesPerFrame = 2 * 4 // stereo float32

var _ echos.AudioDevice = (*Output)(nil)

type Output struct {
	context    *oto.Context
	player     *oto.Player
	sampleRate int
	log        *zap.Logger
}

// Open prepares an output pulling audio from e; Start begins playback.
// bufferSize is the device buffer, zero means oto's default. Only one output
// can be opened per process.
func Open(e *engine.Engine, bufferSize time.Duration, log *zap.Logger) (*Output, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   e.SampleRate(),
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	p := ctx.NewPlayer(e)
	p.SetBufferSize(e.BlockSize() * bytesPerFrame * 2)
	o := &Output{context: ctx, player: p, sampleRate: e.SampleRate(), log: log.Named("oto")}
	o.log.Info("output opened", zap.Int("sample_rate", e.SampleRate()), zap.Int("block_size", e.BlockSize()))
	return o, nil
}

func (o *Output) Start() error {
	if err := o.context.Resume(); err != nil {
		return fmt.Errorf("cannot resume oto context: %w", err)
	}
	o.player.Play()
	return nil
}

func (o *Output) Stop() error {
	o.player.Pause()
	return nil
}

// Latency is the duration of the audio buffered in the player.
func (o *Output) Latency() time.Duration {
	frames := o.player.BufferedSize() / bytesPerFrame
	return time.Duration(frames) * time.Second / time.Duration(o.sampleRate)
}

// Err reports a failure of the device, if any.
func (o *Output) Err() error {
	if err := o.context.Err(); err != nil {
		return err
	}
	return o.player.Err()
}

// Close stops playback and suspends the device.
func (o *Output) Close() error {
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	if err := o.context.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}
