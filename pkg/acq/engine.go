// Package acq runs timed acquisitions on a board: sample buffer
// accounting, wavetables and transient captures.
package acq

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/slab.go/pkg/board"
	"github.com/robotalks/slab.go/pkg/comm"
	fx "github.com/robotalks/slab.go/pkg/framework"
)

// Sample period limits accepted by the host.
const (
	MinSampleTime = 5e-6
	MaxSampleTime = 100.0
)

// DefaultSettle is the idle time before step and wave measurements.
const DefaultSettle = time.Second

// Engine runs acquisitions over a ready Session.
type Engine struct {
	s *board.Session
}

// New creates an Engine.
func New(s *board.Session) *Engine {
	return &Engine{s: s}
}

// Session returns the underlying session.
func (e *Engine) Session() *board.Session {
	return e.s
}

// Free returns buffer samples not taken by wavetables.
func (e *Engine) Free() int {
	d := e.s.Device()
	return e.s.Capabilities().BufferSize - d.Primary.Points - d.Secondary.Points
}

// CheckSpace fails when samples*channels exceed the free buffer.
func (e *Engine) CheckSpace(samples, channels int) error {
	required := samples * channels
	if free := e.Free(); required > free {
		return &CapacityError{Requested: required, Free: free, Capacity: e.s.Capabilities().BufferSize}
	}
	return nil
}

// SetSampleTime sets the sample period in seconds and returns the period
// accepted by the board.
func (e *Engine) SetSampleTime(st float64) (float64, error) {
	if err := e.s.Ready("set sample time"); err != nil {
		return 0, err
	}
	if st > MaxSampleTime {
		return 0, comm.Preconditionf("set sample time", "sample time %gs too high", st)
	}
	if st < MinSampleTime {
		return 0, comm.Preconditionf("set sample time", "sample time %gs too low", st)
	}
	c := e.s.Conn()
	c.StartCommand(comm.OpSampleTime)
	accepted, err := c.SendFloat(st)
	if err != nil {
		return 0, err
	}
	if err := c.SendCRC(); err != nil {
		return 0, err
	}
	if err := c.CheckACK(); err != nil {
		return 0, err
	}
	if err := c.CheckCRC(); err != nil {
		return 0, err
	}
	e.s.Device().SampleTime = accepted
	glog.V(1).Infof("sample time set to %gs", accepted)
	return accepted, nil
}

// SampleTime returns the current sample period.
func (e *Engine) SampleTime() float64 {
	return e.s.Device().SampleTime
}

// SetTransientStorage configures how many samples of how many ADCs a
// capture records.
func (e *Engine) SetTransientStorage(samples, channels int) error {
	const op = "set transient storage"
	if err := e.s.Ready(op); err != nil {
		return err
	}
	maxChannels := e.s.ADCCount()
	if maxChannels > 4 {
		maxChannels = 4
	}
	if channels < 1 || channels > maxChannels {
		return comm.Preconditionf(op, "invalid number of ADCs %d", channels)
	}
	if samples < 1 || samples > 65535 {
		return comm.Preconditionf(op, "invalid number of samples %d", samples)
	}
	if err := e.CheckSpace(samples, channels); err != nil {
		return err
	}
	if err := e.s.Conn().Do(comm.OpStorage, comm.Byte(channels), comm.Byte(0), comm.U16(samples)); err != nil {
		return err
	}
	e.s.Device().Storage = board.Storage{Samples: samples, Channels: channels, Explicit: true}
	glog.V(1).Infof("storage set to %d samples of %d ADCs", samples, channels)
	return nil
}

// TranStore is an alias of SetTransientStorage.
func (e *Engine) TranStore(samples, channels int) error {
	return e.SetTransientStorage(samples, channels)
}

// checkCapture verifies the storage still fits next to the wavetables.
func (e *Engine) checkCapture(op string) error {
	if err := e.s.Ready(op); err != nil {
		return err
	}
	st := e.s.Device().Storage
	return e.CheckSpace(st.Samples, st.Channels)
}

func (e *Engine) settle(ctx context.Context, d time.Duration) error {
	return fx.Sleep(ctx, d)
}

// restore runs fn unless the session was dropped, its error only replaces
// a nil err.
func (e *Engine) restore(err *error, what string, fn func() error) {
	if e.s.State() != board.Ready {
		return
	}
	if rerr := fn(); rerr != nil {
		if *err == nil {
			*err = rerr
		} else {
			glog.Warningf("restore %s: %v", what, rerr)
		}
	}
}
