package acq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/periph/conn/physic"

	"github.com/robotalks/slab.go/pkg/acq"
	"github.com/robotalks/slab.go/pkg/board"
	"github.com/robotalks/slab.go/pkg/board/boardtest"
	"github.com/robotalks/slab.go/pkg/cal"
	"github.com/robotalks/slab.go/pkg/comm"
)

func newEngine(t *testing.T) (*acq.Engine, *boardtest.Board) {
	b := boardtest.New()
	s, err := boardtest.Connect(b)
	require.NoError(t, err)
	b.ClearFrames()
	return acq.New(s), b
}

func counts(t *testing.T, v float64) int {
	c, err := board.RatioToCounts(v / 3.3)
	require.NoError(t, err)
	return c
}

func isPrecondition(err error) bool {
	var perr *comm.PreconditionError
	return errors.As(err, &perr)
}

func TestSetSampleTime(t *testing.T) {
	e, b := newEngine(t)
	st, err := e.SetSampleTime(0.00123456)
	require.NoError(t, err)
	assert.InDelta(t, 0.001235, st, 1e-12)
	assert.Equal(t, st, e.SampleTime())
	assert.Equal(t, st, b.SamplePeriod())

	b.ClearFrames()
	_, err = e.SetSampleTime(1e-6)
	assert.True(t, isPrecondition(err))
	_, err = e.SetSampleTime(101)
	assert.True(t, isPrecondition(err))
	assert.Empty(t, b.Frames())
	assert.Equal(t, st, e.SampleTime())
}

func TestSetTransientStorage(t *testing.T) {
	e, b := newEngine(t)
	require.NoError(t, e.SetTransientStorage(100, 2))
	samples, channels := b.Storage()
	assert.Equal(t, 100, samples)
	assert.Equal(t, 2, channels)
	assert.Equal(t, board.Storage{Samples: 100, Channels: 2, Explicit: true}, e.Session().Device().Storage)

	b.ClearFrames()
	assert.True(t, isPrecondition(e.SetTransientStorage(100, 5)))
	assert.True(t, isPrecondition(e.SetTransientStorage(0, 1)))
	var cerr *acq.CapacityError
	require.True(t, errors.As(e.TranStore(2501, 2), &cerr))
	assert.Equal(t, 5002, cerr.Requested)
	assert.Equal(t, 5000, cerr.Free)
	assert.Empty(t, b.Frames())
}

func TestTransientStorageNextToWavetable(t *testing.T) {
	b := boardtest.New()
	b.Info.BufferSize = 1000
	s, err := boardtest.Connect(b)
	require.NoError(t, err)
	e := acq.New(s)
	volts := make([]float64, 100)
	for i := range volts {
		volts[i] = 1
	}
	info, err := e.LoadWavetable(volts, false)
	require.NoError(t, err)
	assert.Equal(t, 100, info.Points)

	b.ClearFrames()
	var cerr *acq.CapacityError
	require.True(t, errors.As(e.SetTransientStorage(950, 1), &cerr))
	assert.Equal(t, 950, cerr.Requested)
	assert.Equal(t, 900, cerr.Free)
	assert.Equal(t, 1000, cerr.Capacity)
	assert.Empty(t, b.Frames())

	require.NoError(t, e.SetTransientStorage(900, 1))
	assert.Equal(t, board.Storage{Samples: 900, Channels: 1, Explicit: true}, s.Device().Storage)
}

func TestTransientAsync(t *testing.T) {
	e, _ := newEngine(t)
	s := e.Session()
	require.NoError(t, s.SetVoltage(1, 1.65))
	_, err := e.SetSampleTime(0.0001)
	require.NoError(t, err)
	require.NoError(t, e.SetTransientStorage(10, 2))
	res, err := e.TransientAsync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.ADCs)
	require.Len(t, res.Time, 10)
	assert.Zero(t, res.Time[0])
	assert.InDelta(t, 0.0009, res.Time[9], 1e-12)
	require.Len(t, res.Channels, 2)
	for i := range res.Time {
		assert.InDelta(t, 1.65, res.Channels[0][i], 1e-9)
		assert.Zero(t, res.Channels[1][i])
	}
	assert.Equal(t, board.Ready, s.State())
}

func TestTransientCalibrated(t *testing.T) {
	e, b := newEngine(t)
	s := e.Session()
	table := cal.Table{{Reference: 0, Measured: 0}, {Reference: 0.5, Measured: 0.25}, {Reference: 1, Measured: 1}}
	require.NoError(t, s.SetADCTables([]cal.Table{table}, false))
	b.Sample = func(n, i, samples int) int { return 16384 }
	require.NoError(t, e.SetTransientStorage(4, 1))
	res, err := e.TransientAsync(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.65, res.Channels[0][3], 1e-9)
}

func TestTransientFaults(t *testing.T) {
	e, b := newEngine(t)
	s := e.Session()
	require.NoError(t, e.SetTransientStorage(10, 1))

	b.Status = comm.StatusOverrun
	_, err := e.TransientAsync(context.Background())
	var fault *comm.DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, comm.StatusOverrun, fault.Status)
	assert.Equal(t, comm.OpTransientAsync, fault.Op)
	assert.Equal(t, board.Ready, s.State())

	// the stream is still in sync
	res, err := e.TransientAsync(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Time, 10)

	b.Status = comm.StatusHalted
	_, err = e.TransientAsync(context.Background())
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, comm.StatusHalted, fault.Status)

	_, err = s.ReadVoltage(1)
	assert.NoError(t, err)
}

func TestTransientNotReady(t *testing.T) {
	e, b := newEngine(t)
	require.NoError(t, e.Session().Disconnect())
	_, err := e.TransientAsync(context.Background())
	assert.True(t, isPrecondition(err))
	assert.Empty(t, b.Frames())
}

func TestTransientTriggered(t *testing.T) {
	e, b := newEngine(t)
	require.NoError(t, e.SetTransientStorage(100, 1))
	conf := acq.TriggerConfig{Level: 1.65, Edge: acq.Falling, Timeout: 3 * time.Second}
	res, err := e.TransientTriggered(context.Background(), conf)
	require.NoError(t, err)
	assert.Equal(t, []byte{'G', 0x00, 0x80, 1, 3}, b.LastFrame(comm.OpTransientTriggered)[:5])
	require.Len(t, res.Time, 100)
	assert.Zero(t, res.Time[49])
	assert.InDelta(t, -0.049, res.Time[0], 1e-12)

	b.Status = comm.StatusTimeout
	_, err = e.TransientTriggered(context.Background(), conf)
	var fault *comm.DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, comm.StatusTimeout, fault.Status)
	assert.Equal(t, board.Ready, e.Session().State())

	b.ClearFrames()
	conf.Timeout = 256 * time.Second
	_, err = e.TransientTriggered(context.Background(), conf)
	assert.True(t, isPrecondition(err))
	conf.Timeout = 500 * time.Millisecond
	_, err = e.TransientTriggered(context.Background(), conf)
	assert.True(t, isPrecondition(err))
	conf.Timeout = 1500 * time.Millisecond
	_, err = e.TransientTriggered(context.Background(), conf)
	assert.True(t, isPrecondition(err))
	conf.Timeout, conf.Edge = 0, acq.Edge(2)
	_, err = e.TransientTriggered(context.Background(), conf)
	assert.True(t, isPrecondition(err))
	conf.Edge, conf.Level = acq.Rising, 4
	_, err = e.TransientTriggered(context.Background(), conf)
	assert.True(t, isPrecondition(err))
	assert.Empty(t, b.Frames())
}

func TestTriggerLevelCalibrated(t *testing.T) {
	e, b := newEngine(t)
	table := cal.Table{{Reference: 0, Measured: 0}, {Reference: 0.5, Measured: 0.25}, {Reference: 1, Measured: 1}}
	require.NoError(t, e.Session().SetADCTables([]cal.Table{table}, false))
	require.NoError(t, e.SetTransientStorage(10, 1))
	_, err := e.TransientTriggered(context.Background(), acq.TriggerConfig{Level: 1.65})
	require.NoError(t, err)
	// a calibrated half scale is a raw quarter scale
	assert.Equal(t, []byte{'G', 0x00, 0x40, 0, 0}, b.LastFrame(comm.OpTransientTriggered)[:5])
}

func TestStepResponse(t *testing.T) {
	e, b := newEngine(t)
	require.NoError(t, e.SetTransientStorage(50, 1))
	b.ClearFrames()
	res, err := e.StepResponse(context.Background(), acq.StepConfig{Start: 0.5, End: 2})
	require.NoError(t, err)
	require.Len(t, res.Time, 50)
	assert.Zero(t, res.Time[10])
	frame := b.LastFrame(comm.OpStepResponse)
	end := counts(t, 2)
	assert.Equal(t, []byte{'P', byte(end), byte(end >> 8)}, frame[:3])
	assert.Equal(t, counts(t, 0.5), b.DAC(1))

	ops := b.Received()
	require.True(t, len(ops) >= 6)
	assert.Equal(t, []comm.Opcode{comm.OpWriteDAC, comm.OpReadADC, comm.OpReadADC, comm.OpReadADC, comm.OpReadADC, comm.OpStepResponse}, ops[:6])

	b.Status = comm.StatusOverrun
	require.NoError(t, e.Session().SetVoltage(1, 3))
	_, err = e.StepResponse(context.Background(), acq.StepConfig{Start: 1, End: 2})
	var fault *comm.DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, counts(t, 1), b.DAC(1))

	_, err = e.StepResponse(context.Background(), acq.StepConfig{Start: 1, End: 3.5})
	assert.True(t, isPrecondition(err))
}

func TestStepResponseCalibratedEnd(t *testing.T) {
	e, b := newEngine(t)
	table := cal.Table{{Reference: 0, Measured: 0}, {Reference: 0.25, Measured: 0.5}, {Reference: 1, Measured: 1}}
	require.NoError(t, e.Session().SetDACTables([]cal.Table{table}, false))
	require.NoError(t, e.SetTransientStorage(10, 1))
	_, err := e.StepResponse(context.Background(), acq.StepConfig{Start: 0, End: 1.65})
	require.NoError(t, err)
	assert.Equal(t, []byte{'P', 0x00, 0x40}, b.LastFrame(comm.OpStepResponse)[:3])
}

func TestLoadWavetable(t *testing.T) {
	e, b := newEngine(t)
	info, err := e.LoadWavetable([]float64{0, 1.65, 3.3, 1.65}, false)
	require.NoError(t, err)
	primary, secondary := b.Waves()
	assert.Equal(t, []int{0, 32768, 65535, 32768}, primary)
	assert.Empty(t, secondary)
	assert.Equal(t, 4, info.Points)
	assert.Zero(t, info.Idle)
	assert.Equal(t, 4996, info.Free)
	assert.InDelta(t, float64(250*physic.Hertz), float64(info.Frequency), 1e3)
	assert.Equal(t, board.WaveTable{Points: 4}, e.Session().Device().Primary)

	info, err = e.LoadWavetable(make([]float64, 100), false)
	require.NoError(t, err)
	assert.InDelta(t, float64(10*physic.Hertz), float64(info.Frequency), 1e3)
	assert.InDelta(t, float64(500*physic.Hertz), float64(info.MaxFrequency), 1e3)
	assert.InDelta(t, float64(10*physic.MilliHertz), float64(info.MinFrequency), 1e3)

	b.ClearFrames()
	_, err = e.LoadWavetable([]float64{1, 4}, false)
	assert.True(t, isPrecondition(err))
	assert.Empty(t, b.Frames())
}

func TestLoadEmptyWavetable(t *testing.T) {
	e, b := newEngine(t)
	info, err := e.LoadWavetable([]float64{1, 2}, false)
	require.NoError(t, err)
	assert.True(t, info.Loaded())
	assert.Equal(t, 1.0, info.Idle)

	info, err = e.LoadWavetable(nil, false)
	require.NoError(t, err)
	assert.False(t, info.Loaded())
	assert.Zero(t, info.Idle)
	assert.Zero(t, info.Frequency)
	assert.Zero(t, info.MaxFrequency)
	assert.Equal(t, 5000, info.Free)
	primary, _ := b.Waves()
	assert.Empty(t, primary)
	assert.False(t, e.Session().Device().Primary.Loaded())
	_, err = e.WaveResponse(context.Background(), acq.WaveConfig{Cycles: 1})
	assert.True(t, isPrecondition(err))
}

func TestWavetableSpace(t *testing.T) {
	e, b := newEngine(t)
	_, err := e.LoadWavetable(make([]float64, 3000), false)
	require.NoError(t, err)
	var cerr *acq.CapacityError
	_, err = e.LoadWavetable(make([]float64, 2500), true)
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 2000, cerr.Free)

	idle := []float64{2, 1, 0}
	info, err := e.LoadWavetable(idle, true)
	require.NoError(t, err)
	assert.Equal(t, 1997, info.Free)
	assert.Equal(t, 2.0, e.Session().Device().Secondary.Idle)
	_, secondary := b.Waves()
	assert.Len(t, secondary, 3)

	require.True(t, errors.As(e.SetTransientStorage(1000, 2), &cerr))
	require.NoError(t, e.SetTransientStorage(1000, 1))
	_, err = e.LoadWavetable(make([]float64, 1001), true)
	require.True(t, errors.As(err, &cerr))

	// a new primary table discards the secondary one
	_, err = e.LoadWavetable(make([]float64, 10), false)
	require.NoError(t, err)
	assert.False(t, e.Session().Device().Secondary.Loaded())
	_, secondary = b.Waves()
	assert.Empty(t, secondary)
	assert.Equal(t, 4990, e.Free())

	_, err = e.LoadWavetable(make([]float64, 4001), false)
	require.True(t, errors.As(err, &cerr))
}

func TestCaptureSpace(t *testing.T) {
	e, b := newEngine(t)
	_, err := e.LoadWavetable(make([]float64, 4500), false)
	require.NoError(t, err)
	b.ClearFrames()
	_, err = e.TransientAsync(context.Background())
	var cerr *acq.CapacityError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 500, cerr.Free)
	assert.Empty(t, b.Frames())
}

func TestSecondaryNeedsTwoDACs(t *testing.T) {
	b := boardtest.New()
	b.Info.DACs = 1
	b.DACPins = b.DACPins[:1]
	s, err := boardtest.Connect(b)
	require.NoError(t, err)
	e := acq.New(s)
	_, err = e.LoadWavetable([]float64{1, 2}, true)
	assert.True(t, isPrecondition(err))
}

func TestSetWaveFrequency(t *testing.T) {
	e, b := newEngine(t)
	_, err := e.SetWaveFrequency(50 * physic.Hertz)
	assert.True(t, isPrecondition(err))

	_, err = e.LoadWavetable(make([]float64, 100), false)
	require.NoError(t, err)
	f, err := e.SetWaveFrequency(50 * physic.Hertz)
	require.NoError(t, err)
	assert.InDelta(t, float64(50*physic.Hertz), float64(f), 1e3)
	assert.InDelta(t, 0.0002, b.SamplePeriod(), 1e-12)

	_, err = e.SetWaveFrequency(1 * physic.KiloHertz)
	assert.True(t, isPrecondition(err))
	_, err = e.SetWaveFrequency(physic.MilliHertz)
	assert.True(t, isPrecondition(err))
}

func TestWaveResponse(t *testing.T) {
	e, b := newEngine(t)
	ctx := context.Background()
	conf := acq.WaveConfig{Cycles: 2}
	_, err := e.WaveResponse(ctx, conf)
	assert.True(t, isPrecondition(err))

	_, err = e.LoadWavetable([]float64{1, 2, 3, 2}, false)
	require.NoError(t, err)
	require.NoError(t, e.SetTransientStorage(20, 1))
	b.ClearFrames()
	res, err := e.WaveResponse(ctx, conf)
	require.NoError(t, err)
	assert.Len(t, res.Time, 20)
	assert.Zero(t, res.Time[0])
	assert.Equal(t, []byte{'V', 2, 0}, b.LastFrame(comm.OpWaveResponse)[:3])
	assert.Equal(t, counts(t, 1), b.DAC(1))

	conf.Dual = true
	_, err = e.WaveResponse(ctx, conf)
	assert.True(t, isPrecondition(err))
	_, err = e.LoadWavetable([]float64{0.5, 1, 1.5, 1}, true)
	require.NoError(t, err)
	require.NoError(t, e.Session().SetVoltage(2, 3))
	_, err = e.WaveResponse(ctx, conf)
	require.NoError(t, err)
	assert.NotNil(t, b.LastFrame(comm.OpDualWaveResponse))
	assert.Equal(t, counts(t, 0.5), b.DAC(2))

	conf.Cycles = 70000
	_, err = e.WaveResponse(ctx, conf)
	assert.True(t, isPrecondition(err))
}

func TestSingleWaveResponse(t *testing.T) {
	e, b := newEngine(t)
	ctx := context.Background()
	_, err := e.LoadWavetable([]float64{1, 2, 3, 2}, false)
	require.NoError(t, err)
	require.NoError(t, e.SetTransientStorage(20, 3))
	res, err := e.SingleWaveResponse(ctx, 3, acq.WaveConfig{Cycles: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, res.ADCs)
	require.Len(t, res.Channels, 1)
	assert.Len(t, res.Channels[0], 20)
	assert.Equal(t, []byte{'X', 3, 1, 0}, b.LastFrame(comm.OpSingleWaveResponse)[:4])

	_, err = e.SingleWaveResponse(ctx, 5, acq.WaveConfig{})
	assert.True(t, isPrecondition(err))
}

func TestWavePlay(t *testing.T) {
	e, b := newEngine(t)
	ctx := context.Background()
	_, err := e.LoadWavetable([]float64{1, 2, 3, 2}, false)
	require.NoError(t, err)
	require.NoError(t, e.WavePlay(ctx, acq.PlayConfig{Cycles: 0}))
	assert.Equal(t, []byte{'Q', 0, 0}, b.LastFrame(comm.OpWavePlay)[:3])
	assert.Equal(t, counts(t, 1), b.DAC(1))

	b.Status = comm.StatusHalted
	err = e.WavePlay(ctx, acq.PlayConfig{Cycles: 1})
	var fault *comm.DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, comm.StatusHalted, fault.Status)

	assert.True(t, isPrecondition(e.WavePlay(ctx, acq.PlayConfig{Dual: true})))
	_, err = e.LoadWavetable([]float64{2, 1}, true)
	require.NoError(t, err)
	require.NoError(t, e.WavePlay(ctx, acq.PlayConfig{Cycles: 5, Dual: true}))
	assert.Equal(t, []byte{'q', 5, 0}, b.LastFrame(comm.OpDualWavePlay)[:3])
	assert.Equal(t, counts(t, 2), b.DAC(2))
}

func TestCaptureCancel(t *testing.T) {
	e, b := newEngine(t)
	require.NoError(t, e.SetTransientStorage(10, 1))
	b.Stall = map[comm.Opcode]bool{comm.OpTransientAsync: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.TransientAsync(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, board.Disconnected, e.Session().State())
}
