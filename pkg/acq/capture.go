package acq

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/slab.go/pkg/board"
	"github.com/robotalks/slab.go/pkg/comm"
)

// Result is a captured set of sample vectors.
type Result struct {
	// Time of each sample in seconds.
	Time []float64
	// Channels holds voltages, Channels[i] was read on ADC ADCs[i].
	Channels [][]float64
	ADCs     []int
}

// Edge selects the trigger slope.
type Edge int

// Trigger edges.
const (
	Rising  Edge = 0
	Falling Edge = 1
)

// MaxTriggerTimeout is the longest trigger timeout.
const MaxTriggerTimeout = 255 * time.Second

// TriggerConfig defines a triggered transient.
type TriggerConfig struct {
	// Level is the trigger voltage on ADC 1.
	Level float64
	Edge  Edge
	// Timeout in whole seconds, zero waits forever.
	Timeout time.Duration
}

// StepConfig defines a step response on DAC 1.
type StepConfig struct {
	Start float64
	End   float64
	// Settle is the time at Start before the step.
	Settle time.Duration
}

// DefaultStepConfig returns a StepConfig with the default settle time.
func DefaultStepConfig(start, end float64) StepConfig {
	return StepConfig{Start: start, End: end, Settle: DefaultSettle}
}

// readCapture reads the capture payload after an OK status.
// adcs maps payload channels to ADC numbers, nil means 1..n.
func (e *Engine) readCapture(c *comm.Conn, offset func(samples int) int, adcs []int) (*Result, error) {
	na, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	nd, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	if nd != 0 {
		return nil, &comm.ProtocolError{Op: c.Op(), Err: ErrDigitalCapture}
	}
	if adcs == nil {
		for n := 1; n <= int(na); n++ {
			adcs = append(adcs, n)
		}
	}
	if len(adcs) != int(na) || int(na) > e.s.ADCCount() {
		return nil, &comm.ProtocolError{Op: c.Op(), Err: ErrChannelCount}
	}
	n, err := c.ReadU16()
	if err != nil {
		return nil, err
	}
	samples := int(n)
	st := e.s.Device().SampleTime
	shift := 0
	if offset != nil {
		shift = offset(samples)
	}
	res := &Result{
		Time:     make([]float64, samples),
		Channels: make([][]float64, na),
		ADCs:     adcs,
	}
	for i := range res.Time {
		res.Time[i] = float64(i-shift) * st
	}
	vref := e.s.Vref()
	for ch, adc := range adcs {
		vals := make([]float64, samples)
		for i := range vals {
			v, err := c.ReadU16()
			if err != nil {
				return nil, err
			}
			vals[i] = e.s.ADCRatio(adc, board.CountsToRatio(int(v))) * vref
		}
		res.Channels[ch] = vals
	}
	if err := c.CheckCRC(); err != nil {
		return nil, err
	}
	glog.V(1).Infof("%s: received %d samples of %d ADCs", c.Op(), samples, na)
	return res, nil
}

// capture runs a capture command and reads its result.
func (e *Engine) capture(ctx context.Context, op comm.Opcode, allowTimeout bool, offset func(int) int, adcs []int, fields ...comm.Field) (*Result, error) {
	var res *Result
	err := e.s.Exchange(ctx, op.String(), func(c *comm.Conn) error {
		glog.V(1).Infof("%s: measuring", op)
		if err := c.Request(op, fields...); err != nil {
			return err
		}
		if err := c.CheckStatus(allowTimeout); err != nil {
			return err
		}
		var err error
		res, err = e.readCapture(c, offset, adcs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// TransientAsync captures the configured storage without trigger.
func (e *Engine) TransientAsync(ctx context.Context) (*Result, error) {
	if err := e.checkCapture("transient"); err != nil {
		return nil, err
	}
	return e.capture(ctx, comm.OpTransientAsync, false, nil, nil)
}

// TransientTriggered captures the configured storage centered on a
// trigger crossing of ADC 1.
func (e *Engine) TransientTriggered(ctx context.Context, conf TriggerConfig) (*Result, error) {
	const op = "triggered transient"
	if err := e.checkCapture(op); err != nil {
		return nil, err
	}
	if conf.Timeout < 0 || conf.Timeout > MaxTriggerTimeout {
		return nil, comm.Preconditionf(op, "timeout %v out of 0..255s", conf.Timeout)
	}
	if conf.Timeout%time.Second != 0 {
		return nil, comm.Preconditionf(op, "timeout %v is not a whole number of seconds", conf.Timeout)
	}
	if conf.Edge != Rising && conf.Edge != Falling {
		return nil, comm.Preconditionf(op, "invalid edge %d", conf.Edge)
	}
	ratio, err := e.s.VoltageToRatio(conf.Level)
	if err != nil {
		return nil, err
	}
	counts, err := board.RatioToCounts(e.s.ReverseADCRatio(1, ratio))
	if err != nil {
		return nil, err
	}
	center := func(samples int) int { return samples/2 - 1 }
	return e.capture(ctx, comm.OpTransientTriggered, true, center, nil,
		comm.U16(counts), comm.Byte(conf.Edge), comm.Byte(int(conf.Timeout/time.Second)))
}

// StepResponse holds DAC 1 at Start, then steps it to End while
// capturing. DAC 1 is returned to Start afterwards.
func (e *Engine) StepResponse(ctx context.Context, conf StepConfig) (res *Result, err error) {
	const op = "step response"
	if err := e.checkCapture(op); err != nil {
		return nil, err
	}
	if _, err := e.s.VoltageToRatio(conf.Start); err != nil {
		return nil, err
	}
	endRatio, err := e.s.VoltageToRatio(conf.End)
	if err != nil {
		return nil, err
	}
	counts, err := board.RatioToCounts(e.s.DACRatio(1, endRatio))
	if err != nil {
		return nil, err
	}
	if err := e.s.SetVoltage(1, conf.Start); err != nil {
		return nil, err
	}
	defer e.restore(&err, "DAC 1", func() error {
		return e.s.SetVoltage(1, conf.Start)
	})
	if err := e.settle(ctx, conf.Settle); err != nil {
		return nil, err
	}
	// precharge ADC inputs, readings are discarded
	for n := 1; n <= e.s.ADCCount(); n++ {
		if _, err := e.s.ReadADC(n); err != nil {
			return nil, err
		}
	}
	step := func(samples int) int { return samples / 5 }
	return e.capture(ctx, comm.OpStepResponse, false, step, nil, comm.U16(counts))
}
