package acq

import (
	"context"
	"time"

	"github.com/golang/glog"
	"periph.io/x/periph/conn/physic"

	"github.com/robotalks/slab.go/pkg/board"
	"github.com/robotalks/slab.go/pkg/comm"
)

// WaveInfo describes a loaded wavetable. An empty upload unloads the
// table: Points is zero and Idle and the frequencies are left zero.
type WaveInfo struct {
	Points int
	// Idle is the first value in volts, only meaningful when Loaded.
	Idle float64
	// Free is the buffer space left by both wavetables.
	Free int
	// MinFrequency and MaxFrequency bound the wave frequency reachable
	// with the board sample period limits.
	MinFrequency physic.Frequency
	MaxFrequency physic.Frequency
	// Frequency is the wave frequency at the current sample period.
	Frequency physic.Frequency
}

// Loaded reports whether the upload left a playable table.
func (w *WaveInfo) Loaded() bool {
	return w.Points > 0
}

// WaveConfig defines a wave response measurement.
type WaveConfig struct {
	// Cycles are full waves played before the capture starts.
	Cycles int
	// Settle is the time at the idle value before the first wave.
	Settle time.Duration
	// Dual also plays the secondary wavetable on DAC 2.
	Dual bool
}

// PlayConfig defines wave generation without capture.
type PlayConfig struct {
	// Cycles to play, zero plays until halted on the board.
	Cycles int
	Settle time.Duration
	Dual   bool
}

// DefaultWaveConfig returns the default wave response settings.
func DefaultWaveConfig() WaveConfig {
	return WaveConfig{Settle: DefaultSettle}
}

// DefaultPlayConfig returns the default wave play settings.
func DefaultPlayConfig() PlayConfig {
	return PlayConfig{Cycles: 1, Settle: DefaultSettle}
}

func hertz(hz float64) physic.Frequency {
	return physic.Frequency(hz * float64(physic.Hertz))
}

func toHertz(f physic.Frequency) float64 {
	return float64(f) / float64(physic.Hertz)
}

// LoadWavetable uploads a wavetable in volts. The primary table drives
// DAC 1 and discards the secondary table, the secondary drives DAC 2.
func (e *Engine) LoadWavetable(volts []float64, second bool) (*WaveInfo, error) {
	const op = "load wavetable"
	if err := e.s.Ready(op); err != nil {
		return nil, err
	}
	caps := e.s.Capabilities()
	dev := e.s.Device()
	size, dac := len(volts), 1
	if second {
		dac = 2
		if caps.DACs < 2 {
			return nil, comm.Preconditionf(op, "secondary wavetable requires 2 DACs")
		}
	}
	if size > 65535 {
		return nil, comm.Preconditionf(op, "wavetable of %d points too big", size)
	}
	free := caps.BufferSize
	if second {
		free -= dev.Primary.Points
	}
	if dev.Storage.Explicit {
		free -= dev.Storage.Samples * dev.Storage.Channels
	}
	if size > free {
		if free < 0 {
			free = 0
		}
		return nil, &CapacityError{Requested: size, Free: free, Capacity: caps.BufferSize}
	}
	fields := make([]comm.Field, 0, size+1)
	fields = append(fields, comm.U16(size))
	for _, v := range volts {
		ratio, err := e.s.VoltageToRatio(v)
		if err != nil {
			return nil, err
		}
		counts, err := board.RatioToCounts(e.s.DACRatio(dac, ratio))
		if err != nil {
			return nil, err
		}
		fields = append(fields, comm.U16(counts))
	}
	opcode := comm.OpLoadWave
	if second {
		opcode = comm.OpLoadWave2
	}
	if err := e.s.Conn().Do(opcode, fields...); err != nil {
		return nil, err
	}
	table := board.WaveTable{Points: size}
	if size > 0 {
		table.Idle = volts[0]
	}
	if second {
		dev.Secondary = table
	} else {
		dev.Primary = table
		dev.Secondary = board.WaveTable{}
	}
	info := &WaveInfo{Points: size, Idle: table.Idle, Free: e.Free()}
	if size > 0 {
		info.MinFrequency = hertz(1 / (float64(size) * caps.MaxSamplePeriod))
		info.MaxFrequency = hertz(1 / (float64(size) * caps.MinSamplePeriod))
		info.Frequency = hertz(1 / (float64(size) * dev.SampleTime))
		glog.V(1).Infof("%d point wave loaded, frequency between %s and %s, current %s",
			size, info.MinFrequency, info.MaxFrequency, info.Frequency)
	}
	glog.V(1).Infof("remaining buffer space is %d samples", info.Free)
	return info, nil
}

// SetWaveFrequency sets the sample period so the primary wave plays at
// the frequency and returns the frequency reached.
func (e *Engine) SetWaveFrequency(f physic.Frequency) (physic.Frequency, error) {
	const op = "set wave frequency"
	if err := e.s.Ready(op); err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, comm.Preconditionf(op, "frequency must be positive")
	}
	primary := e.s.Device().Primary
	if !primary.Loaded() {
		return 0, comm.Preconditionf(op, "no wave loaded")
	}
	caps := e.s.Capabilities()
	points := float64(primary.Points)
	st := 1 / (points * toHertz(f))
	if st < caps.MinSamplePeriod {
		return 0, comm.Preconditionf(op, "frequency %s too high", f)
	}
	if st > caps.MaxSamplePeriod {
		return 0, comm.Preconditionf(op, "frequency %s too low", f)
	}
	accepted, err := e.SetSampleTime(st)
	if err != nil {
		return 0, err
	}
	actual := hertz(1 / (accepted * points))
	glog.V(1).Infof("wave frequency set to %s", actual)
	return actual, nil
}

func (e *Engine) checkWaves(op string, dual bool) error {
	dev := e.s.Device()
	if !dev.Primary.Loaded() {
		return comm.Preconditionf(op, "wavetable not loaded")
	}
	if dual && !dev.Secondary.Loaded() {
		return comm.Preconditionf(op, "secondary wavetable not loaded")
	}
	return nil
}

func checkCycles(op string, cycles int) error {
	if cycles < 0 || cycles > 65535 {
		return comm.Preconditionf(op, "invalid number of waves %d", cycles)
	}
	return nil
}

// park sets the DACs at the idle values and waits.
func (e *Engine) park(ctx context.Context, settle time.Duration, dual bool) error {
	dev := e.s.Device()
	if err := e.s.SetVoltage(1, dev.Primary.Idle); err != nil {
		return err
	}
	if dual {
		if err := e.s.SetVoltage(2, dev.Secondary.Idle); err != nil {
			return err
		}
	}
	return e.settle(ctx, settle)
}

func (e *Engine) unpark(dual bool) func() error {
	dev := *e.s.Device()
	return func() error {
		if err := e.s.SetVoltage(1, dev.Primary.Idle); err != nil {
			return err
		}
		if dual {
			return e.s.SetVoltage(2, dev.Secondary.Idle)
		}
		return nil
	}
}

// WaveResponse plays the primary wave on DAC 1, and the secondary on
// DAC 2 when dual, and captures the configured storage after Cycles waves.
func (e *Engine) WaveResponse(ctx context.Context, conf WaveConfig) (res *Result, err error) {
	const op = "wave response"
	if err := e.checkCapture(op); err != nil {
		return nil, err
	}
	if err := e.checkWaves(op, conf.Dual); err != nil {
		return nil, err
	}
	if err := checkCycles(op, conf.Cycles); err != nil {
		return nil, err
	}
	defer e.restore(&err, "idle values", e.unpark(conf.Dual))
	if err := e.park(ctx, conf.Settle, conf.Dual); err != nil {
		return nil, err
	}
	opcode := comm.OpWaveResponse
	if conf.Dual {
		opcode = comm.OpDualWaveResponse
	}
	return e.capture(ctx, opcode, false, nil, nil, comm.U16(conf.Cycles))
}

// SingleWaveResponse plays the primary wave and captures one ADC only,
// regardless of the storage channel count.
func (e *Engine) SingleWaveResponse(ctx context.Context, channel int, conf WaveConfig) (res *Result, err error) {
	const op = "single wave response"
	if err := e.s.Ready(op); err != nil {
		return nil, err
	}
	if channel < 1 || channel > e.s.ADCCount() {
		return nil, comm.Preconditionf(op, "invalid channel %d", channel)
	}
	if err := e.CheckSpace(e.s.Device().Storage.Samples, 1); err != nil {
		return nil, err
	}
	if err := e.checkWaves(op, false); err != nil {
		return nil, err
	}
	if err := checkCycles(op, conf.Cycles); err != nil {
		return nil, err
	}
	defer e.restore(&err, "idle values", e.unpark(false))
	if err := e.park(ctx, conf.Settle, false); err != nil {
		return nil, err
	}
	return e.capture(ctx, comm.OpSingleWaveResponse, false, nil, []int{channel},
		comm.Byte(channel), comm.U16(conf.Cycles))
}

// WavePlay generates waves without capture.
func (e *Engine) WavePlay(ctx context.Context, conf PlayConfig) (err error) {
	const op = "wave play"
	if err := e.s.Ready(op); err != nil {
		return err
	}
	if err := e.checkWaves(op, conf.Dual); err != nil {
		return err
	}
	if err := checkCycles(op, conf.Cycles); err != nil {
		return err
	}
	defer e.restore(&err, "idle values", e.unpark(conf.Dual))
	if err := e.park(ctx, conf.Settle, conf.Dual); err != nil {
		return err
	}
	opcode := comm.OpWavePlay
	if conf.Dual {
		opcode = comm.OpDualWavePlay
	}
	return e.s.Exchange(ctx, op, func(c *comm.Conn) error {
		glog.V(1).Infof("%s: playing %d waves", opcode, conf.Cycles)
		if err := c.Request(opcode, comm.U16(conf.Cycles)); err != nil {
			return err
		}
		if err := c.CheckStatus(false); err != nil {
			return err
		}
		return c.CheckCRC()
	})
}
