package board_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"periph.io/x/periph/conn/gpio"

	"github.com/robotalks/slab.go/pkg/board"
	"github.com/robotalks/slab.go/pkg/board/boardtest"
	"github.com/robotalks/slab.go/pkg/cal"
	"github.com/robotalks/slab.go/pkg/comm"
)

func connect(t *testing.T, b *boardtest.Board) *board.Session {
	s, err := boardtest.Connect(b)
	require.NoError(t, err)
	require.Equal(t, board.Ready, s.State())
	return s
}

func TestConnectHandshake(t *testing.T) {
	b := boardtest.New()
	s := connect(t, b)
	caps := s.Capabilities()
	assert.Equal(t, "SLab Test Board v1", caps.Firmware)
	assert.Equal(t, 2, caps.DACs)
	assert.Equal(t, 4, caps.ADCs)
	assert.Equal(t, 8, caps.DIOs)
	assert.Equal(t, 5000, caps.BufferSize)
	assert.InDelta(t, 3.3, caps.Vref, 1e-9)
	assert.InDelta(t, 3.3, caps.Vdd, 1e-9)
	assert.InDelta(t, 2e-5, caps.MinSamplePeriod, 1e-12)
	assert.InDelta(t, 1, caps.MaxSamplePeriod, 1e-9)
	assert.Equal(t, 12, caps.ADCBits)
	assert.True(t, caps.AtReset)
	assert.Equal(t, []string{"A2", "D13"}, caps.DACPins)
	assert.Equal(t, []string{"A0", "A1", "A4", "A5"}, caps.ADCPins)
	assert.Len(t, caps.DIOPins, 8)
	assert.Equal(t, []comm.Opcode{comm.OpMagic, comm.OpFirmware, comm.OpInfo, comm.OpPins}, b.Received())
	assert.Equal(t, "fake0", s.PortName())
	assert.Equal(t, board.DefaultDCReadings, s.DCReadings())
	assert.Equal(t, board.DefaultSampleTime, s.Device().SampleTime)
	assert.Zero(t, s.Warnings())
	assert.Contains(t, caps.String(), "4 ADCs with 12 bits")
}

func TestConnectResetsBoard(t *testing.T) {
	b := boardtest.New()
	b.AtReset = false
	connect(t, b)
	ops := b.Received()
	assert.Equal(t, comm.OpSoftReset, ops[len(ops)-1])

	b = boardtest.New()
	b.AtReset = false
	ports := boardtest.Ports{"fake0": b}
	conf := ports.Config()
	conf.Port, conf.AutoReset = "fake0", false
	s := board.New(conf)
	require.NoError(t, s.Connect(context.Background()))
	assert.NotContains(t, b.Received(), comm.OpSoftReset)
}

func TestAutodetect(t *testing.T) {
	silent, wrong, good := boardtest.New(), boardtest.New(), boardtest.New()
	silent.Silent = true
	wrong.BadMagic = true
	ports := boardtest.Ports{"a": silent, "b": wrong, "c": good}
	conf := ports.Config()
	conf.MachineID = "host"
	var states []board.State
	conf.OnStateChange = func(st board.State) { states = append(states, st) }
	s := board.New(conf)
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, "c", s.PortName())
	assert.Equal(t, []board.State{board.Connected, board.Ready}, states)
	assert.True(t, silent.Closed())
	assert.True(t, wrong.Closed())

	last, err := cal.LoadPort(conf.Store, "host")
	require.NoError(t, err)
	assert.Equal(t, "c", last)
	_, err = cal.LoadPort(conf.Store, "other")
	assert.True(t, errors.Is(err, cal.ErrNotFound))

	require.NoError(t, s.Disconnect())
	assert.Equal(t, board.Disconnected, s.State())
	assert.True(t, good.Closed())

	// the last good port is tried first
	silent.ClearFrames()
	wrong.ClearFrames()
	s = board.New(conf)
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, "c", s.PortName())
	assert.Empty(t, silent.Frames())
	assert.Empty(t, wrong.Frames())
}

func TestAutodetectNoBoard(t *testing.T) {
	silent := boardtest.New()
	silent.Silent = true
	ports := boardtest.Ports{"a": silent}
	s := board.New(ports.Config())
	err := s.Connect(context.Background())
	var lerr *comm.LinkError
	require.True(t, errors.As(err, &lerr))
	assert.True(t, errors.Is(err, comm.ErrAutodetect))
	assert.Equal(t, board.Disconnected, s.State())
}

func TestConnectExplicitPort(t *testing.T) {
	b := boardtest.New()
	b.BadMagic = true
	_, err := boardtest.Connect(b)
	assert.True(t, errors.Is(err, comm.ErrBadMagic))
	assert.True(t, b.Closed())

	ports := boardtest.Ports{}
	conf := ports.Config()
	conf.Port = "missing"
	s := board.New(conf)
	var lerr *comm.LinkError
	require.True(t, errors.As(s.Connect(context.Background()), &lerr))
	assert.Equal(t, "missing", lerr.Port)
}

func TestConnectBadPinList(t *testing.T) {
	b := boardtest.New()
	b.ShortPins = true
	ports := boardtest.Ports{"p": b}
	conf := ports.Config()
	conf.Port = "p"
	var states []board.State
	conf.OnStateChange = func(st board.State) { states = append(states, st) }
	s := board.New(conf)
	err := s.Connect(context.Background())
	var perr *comm.ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.True(t, errors.Is(err, comm.ErrPinList))
	assert.Equal(t, []board.State{board.Connected, board.Disconnected}, states)
	assert.True(t, b.Closed())
}

func TestConnectCorruptInfo(t *testing.T) {
	b := boardtest.New()
	b.CorruptInfo = true
	s := connect(t, b)
	assert.Equal(t, 1, s.Warnings())
	assert.Equal(t, 4, s.ADCCount())
}

func TestConnectTruncatedInfo(t *testing.T) {
	b := boardtest.New()
	// reset flag and checksum missing
	b.TruncateInfo = 2
	s := connect(t, b)
	assert.Equal(t, 1, s.Warnings())
	caps := s.Capabilities()
	assert.Equal(t, 4, caps.ADCs)
	assert.Equal(t, 8, caps.DIOs)
	assert.Len(t, caps.DIOPins, 8)
	assert.False(t, caps.AtReset)
	assert.Equal(t, serial.NoTimeout, b.ReadTimeout())
	v, err := s.ReadVoltage(1)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestReconnect(t *testing.T) {
	b := boardtest.New()
	ports := boardtest.Ports{"fake0": b}
	conf := ports.Config()
	conf.Port = "fake0"
	var states []board.State
	conf.OnStateChange = func(st board.State) { states = append(states, st) }
	s := board.New(conf)
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, []board.State{board.Connected, board.Ready}, states)

	states = nil
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, board.Ready, s.State())
	assert.Equal(t, []board.State{board.Disconnected, board.Connected, board.Ready}, states)

	states = nil
	require.NoError(t, s.Disconnect())
	assert.Equal(t, []board.State{board.Disconnected}, states)
	var perr *comm.PreconditionError
	assert.True(t, errors.As(s.Disconnect(), &perr))
	assert.Len(t, states, 1)
}

func TestNotReady(t *testing.T) {
	s := board.New(board.Config{})
	var perr *comm.PreconditionError
	_, err := s.ReadVoltage(1)
	assert.True(t, errors.As(err, &perr))
	assert.True(t, errors.As(s.SetVoltage(1, 1), &perr))
	assert.True(t, errors.As(s.DIOWrite(1, gpio.High), &perr))
}

func TestVoltages(t *testing.T) {
	b := boardtest.New()
	s := connect(t, b)
	require.NoError(t, s.SetVoltage(1, 1.65))
	assert.Equal(t, 32768, b.DAC(1))
	v, err := s.ReadVoltage(1)
	require.NoError(t, err)
	assert.InDelta(t, 1.65, v, 1e-9)
	// ADCs beyond the DACs follow DAC 1
	v, err = s.ReadVoltage(3)
	require.NoError(t, err)
	assert.InDelta(t, 1.65, v, 1e-9)

	require.NoError(t, s.SetVoltage(2, 0.825))
	d, err := s.ReadDifferential(1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.825, d, 1e-9)
	d, err = s.ReadDifferential(0, 2)
	require.NoError(t, err)
	assert.InDelta(t, -0.825, d, 1e-9)
	i, err := s.Current(1000, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.000825, i, 1e-12)
	_, err = s.Current(0, 1, 2)
	assert.Error(t, err)

	require.NoError(t, s.Zero())
	assert.Zero(t, b.DAC(1))
	assert.Zero(t, b.DAC(2))
}

func TestVoltageLimits(t *testing.T) {
	b := boardtest.New()
	s := connect(t, b)
	b.ClearFrames()
	var perr *comm.PreconditionError
	assert.True(t, errors.As(s.SetVoltage(1, 3.4), &perr))
	assert.True(t, errors.As(s.SetVoltage(1, -0.1), &perr))
	assert.True(t, errors.As(s.SetVoltage(3, 1), &perr))
	_, err := s.ReadVoltage(5)
	assert.True(t, errors.As(err, &perr))
	assert.True(t, errors.As(s.WriteChannel(1, 1.01), &perr))
	assert.Empty(t, b.Frames())
	// tolerance around the range is clamped
	require.NoError(t, s.SetVoltage(1, 3.302))
	assert.Equal(t, 65535, b.DAC(1))
}

func TestRatioCounts(t *testing.T) {
	c, err := board.RatioToCounts(0.5)
	require.NoError(t, err)
	assert.Equal(t, 32768, c)
	c, err = board.RatioToCounts(-0.0005)
	require.NoError(t, err)
	assert.Zero(t, c)
	_, err = board.RatioToCounts(1.002)
	assert.Error(t, err)
	assert.Equal(t, 0.25, board.CountsToRatio(16384))
}

func TestRemoteReject(t *testing.T) {
	b := boardtest.New()
	s := connect(t, b)
	b.Reject = map[comm.Opcode]bool{comm.OpWriteDAC: true}
	var rerr *comm.RemoteRejectedError
	require.True(t, errors.As(s.SetVoltage(1, 1), &rerr))
	assert.Equal(t, comm.OpWriteDAC, rerr.Op)
	assert.Equal(t, board.Ready, s.State())
}

func TestCalibrationLoad(t *testing.T) {
	b := boardtest.New()
	ports := boardtest.Ports{"p": b}
	conf := ports.Config()
	conf.Port = "p"
	adc := cal.Table{{Reference: 0, Measured: 0}, {Reference: 0.5, Measured: 0.25}, {Reference: 1, Measured: 1}}
	dac := cal.Table{{Reference: 0, Measured: 0}, {Reference: 0.25, Measured: 0.5}, {Reference: 1, Measured: 1}}
	require.NoError(t, cal.SaveTables(conf.Store, cal.ADCCalibration, []cal.Table{adc}))
	require.NoError(t, cal.SaveTables(conf.Store, cal.DACCalibration, []cal.Table{nil, dac}))
	require.NoError(t, cal.SaveVoltages(conf.Store, 3.25, 3.2))
	s := board.New(conf)
	require.NoError(t, s.Connect(context.Background()))

	assert.Equal(t, 3.25, s.Vdd())
	assert.Equal(t, 3.2, s.Vref())
	require.Len(t, s.ADCTables(), 4)
	require.Len(t, s.DACTables(), 2)
	assert.False(t, s.DACTables()[0].Calibrated())

	require.NoError(t, s.WriteChannel(1, 0.25))
	raw, err := s.ReadChannel(1)
	require.NoError(t, err)
	assert.Equal(t, 0.25, raw)
	v, err := s.ReadADC(1)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-9)
	// uncalibrated ADC 3 reads the raw ratio
	v, err = s.ReadADC(3)
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)

	require.NoError(t, s.WriteDAC(2, 0.5))
	assert.Equal(t, 16384, b.DAC(2))
	assert.InDelta(t, 0.25, s.ReverseADCRatio(1, 0.5), 1e-9)
}

func TestSetSupplyVoltages(t *testing.T) {
	b := boardtest.New()
	ports := boardtest.Ports{"p": b}
	conf := ports.Config()
	conf.Port = "p"
	s := board.New(conf)
	require.NoError(t, s.Connect(context.Background()))
	var perr *comm.PreconditionError
	assert.True(t, errors.As(s.SetVdd(2.9, true), &perr))
	assert.True(t, errors.As(s.SetVref(1, true), &perr))
	require.NoError(t, s.SetVdd(3.31, false))
	require.NoError(t, s.SetVref(3.29, true))
	vdd, vref, err := cal.LoadVoltages(conf.Store)
	require.NoError(t, err)
	assert.Equal(t, 3.31, vdd)
	assert.Equal(t, 3.29, vref)
}

func TestDCReadings(t *testing.T) {
	b := boardtest.New()
	s := connect(t, b)
	prev, err := s.SetDCReadings(100)
	require.NoError(t, err)
	assert.Equal(t, board.DefaultDCReadings, prev)
	assert.Equal(t, 100, b.Readings())
	_, err = s.SetDCReadings(0)
	assert.Error(t, err)
	require.NoError(t, s.SoftReset())
	assert.Equal(t, board.DefaultDCReadings, s.DCReadings())
	assert.Equal(t, board.DefaultDCReadings, b.Readings())
}

func TestDigitalIO(t *testing.T) {
	b := boardtest.New()
	s := connect(t, b)
	require.NoError(t, s.SetDIOMode(1, board.ModeOutput))
	require.NoError(t, s.DIOWrite(1, gpio.High))
	level, mode := b.DIO(1)
	assert.Equal(t, 1, level)
	assert.Equal(t, int(board.ModeOutput), mode)

	require.NoError(t, s.SetDIOMode(2, board.PullMode(gpio.PullUp)))
	_, mode = b.DIO(2)
	assert.Equal(t, int(board.ModePullUp), mode)
	b.SetDIO(2, 1)
	l, err := s.DIORead(2)
	require.NoError(t, err)
	assert.Equal(t, gpio.High, l)
	b.SetDIO(2, 0)
	l, err = s.DIORead(2)
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, l)

	var perr *comm.PreconditionError
	assert.True(t, errors.As(s.SetDIOMode(9, board.ModeInput), &perr))
	assert.True(t, errors.As(s.SetDIOMode(1, board.DIOMode(13)), &perr))
}

func TestSweep(t *testing.T) {
	b := boardtest.New()
	s := connect(t, b)
	conf := cal.SweepConfig{DAC: 1, Start: 0, Stop: 1, Step: 0.25}
	res, err := s.Sweep(context.Background(), conf)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75}, res.Set)
	require.Len(t, res.Channels, 4)
	for n, v := range res.Set {
		assert.InDelta(t, v, res.Channels[0][n], 1e-4)
		assert.InDelta(t, v, res.Channels[3][n], 1e-4)
	}
	_, err = s.Sweep(context.Background(), cal.SweepConfig{DAC: 3, Stop: 1, Step: 0.1})
	assert.Error(t, err)
}

func TestLive(t *testing.T) {
	b := boardtest.New()
	s := connect(t, b)
	require.NoError(t, s.SetVoltage(1, 1))
	var samples []board.LiveSample
	err := s.Live(context.Background(), board.LiveConfig{Channels: []int{1, 3}, Interval: time.Millisecond},
		func(sample board.LiveSample) error {
			samples = append(samples, sample)
			if len(samples) == 3 {
				return board.ErrStop
			}
			return nil
		})
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, []int{1, 3}, samples[0].Channels)
	assert.InDelta(t, 1, samples[2].Voltages[1], 1e-4)
	assert.Error(t, s.Live(context.Background(), board.LiveConfig{Channels: []int{5}}, nil))
}

func TestExchangeCancel(t *testing.T) {
	b := boardtest.New()
	s := connect(t, b)
	b.Stall = map[comm.Opcode]bool{comm.OpTransientAsync: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Exchange(ctx, "transient", func(c *comm.Conn) error {
		return c.Do(comm.OpTransientAsync)
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, board.Disconnected, s.State())
	assert.True(t, b.Closed())
	assert.Nil(t, s.Conn())
}
