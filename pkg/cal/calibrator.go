package cal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/slab.go/pkg/framework"
)

const (
	// CalibrationReadings is the DC average count used while calibrating.
	CalibrationReadings = 1000
	// CheckReadings is the DC average count used by the check stage.
	CheckReadings = 400
	// DefaultSettle is the delay between setting a DAC and reading ADCs.
	DefaultSettle = 100 * time.Millisecond
)

// ManualPoints are the raw DAC1 ratios measured by the operator.
var ManualPoints = []float64{0, 0.02, 0.1, 0.5, 0.9, 0.98, 1}

// Instrument is the board surface needed by calibration.
type Instrument interface {
	DACCount() int
	ADCCount() int
	Vref() float64
	SetVdd(v float64, persist bool) error
	SetVref(v float64, persist bool) error
	SetDCReadings(n int) (int, error)
	ReadChannel(n int) (float64, error)
	WriteChannel(n int, ratio float64) error
	ReadADC(n int) (float64, error)
	WriteDAC(n int, ratio float64) error
	ReadVoltage(n int) (float64, error)
	SetVoltage(n int, v float64) error
	Zero() error
	ADCTables() []Table
	DACTables() []Table
	SetADCTables(tables []Table, persist bool) error
	SetDACTables(tables []Table, persist bool) error
}

// Operator interacts with the person performing the calibration.
type Operator interface {
	// Notify shows a message.
	Notify(msg string)
	// Confirm waits until the operator is ready, ErrAborted cancels.
	Confirm(msg string) error
	// ReadVoltage asks for a value read on an external voltmeter.
	ReadVoltage(prompt string) (float64, error)
}

// Calibrator runs the calibration stages against an Instrument.
// Stages must run in order: Manual, ADC, DAC, Check.
type Calibrator struct {
	Instrument Instrument
	Operator   Operator
	// Settle is the delay after each DAC change, DefaultSettle if zero.
	Settle time.Duration
	// Tolerance is the maximum deviation in volts accepted by Check,
	// zero disables verification.
	Tolerance float64
}

// CheckResult holds the final calibration curves.
// Channels[i] is the voltage read on ADC i+1 for each Set voltage, ADCs
// without a matching DAC follow DAC 1.
type CheckResult struct {
	Set      []float64
	Channels [][]float64
}

func (c *Calibrator) settle() time.Duration {
	if c.Settle > 0 {
		return c.Settle
	}
	return DefaultSettle
}

func (c *Calibrator) notify(format string, args ...interface{}) {
	if c.Operator != nil {
		c.Operator.Notify(fmt.Sprintf(format, args...))
	}
}

func (c *Calibrator) confirm(msg string) error {
	if c.Operator == nil {
		return nil
	}
	return c.Operator.Confirm(msg)
}

func (c *Calibrator) withReadings(n int, fn func() error) (err error) {
	prev, err := c.Instrument.SetDCReadings(n)
	if err != nil {
		return err
	}
	defer func() {
		if _, rerr := c.Instrument.SetDCReadings(prev); rerr != nil {
			if err == nil {
				err = rerr
			} else {
				glog.Warningf("restore DC readings: %v", rerr)
			}
		}
	}()
	return fn()
}

// Manual calibrates DAC 1, Vdd and Vref against an external voltmeter.
func (c *Calibrator) Manual(ctx context.Context) error {
	if c.Operator == nil {
		return &CalibrationError{Stage: "manual", Reason: "operator required"}
	}
	c.notify("Manual calibration of DAC 1, a voltmeter is required")
	vdd, err := c.Operator.ReadVoltage("Put the voltmeter between Vdd and GND")
	if err != nil {
		return err
	}
	return c.withReadings(CalibrationReadings, func() error {
		voltages := make([]float64, len(ManualPoints))
		for i, x := range ManualPoints {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.Instrument.WriteChannel(1, x); err != nil {
				return err
			}
			v, err := c.Operator.ReadVoltage(fmt.Sprintf("DAC 1 output voltage at ratio %g", x))
			if err != nil {
				return err
			}
			if i > 0 {
				if err := CheckMonotonic("manual", 1, i, voltages[i-1], v); err != nil {
					return err
				}
			}
			voltages[i] = v
		}
		vref := voltages[len(voltages)-1]
		if half := voltages[3] * 2; half > vref {
			vref = half
		}
		if err := c.Instrument.SetVdd(vdd, false); err != nil {
			return err
		}
		if err := c.Instrument.SetVref(vref, true); err != nil {
			return err
		}
		table := make(Table, len(ManualPoints))
		for i, x := range ManualPoints {
			table[i] = Pair{Reference: x, Measured: voltages[i] / vref}
		}
		tables := resize(c.Instrument.DACTables(), c.Instrument.DACCount())
		tables[0] = table
		if err := c.Instrument.SetDACTables(tables, true); err != nil {
			return err
		}
		glog.Infof("manual calibration done: vdd=%g vref=%g", vdd, vref)
		return nil
	})
}

// ADC calibrates every ADC against calibrated DAC 1.
// All ADC inputs must be wired to DAC 1.
func (c *Calibrator) ADC(ctx context.Context) error {
	if err := c.confirm("Connect DAC 1 to all ADC inputs"); err != nil {
		return err
	}
	nadc := c.Instrument.ADCCount()
	return c.withReadings(CalibrationReadings, func() error {
		tables := make([]Table, nadc)
		for i := 0; i <= 10; i++ {
			x := float64(i) / 10
			glog.V(2).Infof("ADC calibration at %g", x)
			if err := c.Instrument.WriteDAC(1, x); err != nil {
				return err
			}
			if err := fx.Sleep(ctx, c.settle()); err != nil {
				return err
			}
			for ch := 1; ch <= nadc; ch++ {
				v, err := c.Instrument.ReadChannel(ch)
				if err != nil {
					return err
				}
				tables[ch-1] = append(tables[ch-1], Pair{Reference: x, Measured: v})
			}
		}
		if err := checkTables("ADC", tables); err != nil {
			return err
		}
		return c.Instrument.SetADCTables(tables, true)
	})
}

// DAC calibrates every DAC against the ADC with the same number.
func (c *Calibrator) DAC(ctx context.Context) error {
	if err := c.confirm("Connect each DAC output to the ADC input with the same number"); err != nil {
		return err
	}
	ndac := c.Instrument.DACCount()
	return c.withReadings(CalibrationReadings, func() error {
		tables := make([]Table, ndac)
		for i := 0; i <= 10; i++ {
			x := float64(i) / 10
			glog.V(2).Infof("DAC calibration at %g", x)
			for ch := 1; ch <= ndac; ch++ {
				if err := c.Instrument.WriteChannel(ch, x); err != nil {
					return err
				}
			}
			if err := fx.Sleep(ctx, c.settle()); err != nil {
				return err
			}
			for ch := 1; ch <= ndac; ch++ {
				v, err := c.Instrument.ReadADC(ch)
				if err != nil {
					return err
				}
				tables[ch-1] = append(tables[ch-1], Pair{Reference: x, Measured: v})
			}
		}
		if err := checkTables("DAC", tables); err != nil {
			return err
		}
		return c.Instrument.SetDACTables(tables, true)
	})
}

// Check sweeps every DAC against its ADC, leaves the DACs at 1V while the
// operator inspects the outputs, then zeroes them.
func (c *Calibrator) Check(ctx context.Context) (*CheckResult, error) {
	if err := c.confirm("Keep each DAC output connected to the ADC input with the same number"); err != nil {
		return nil, err
	}
	var res *CheckResult
	err := c.withReadings(CheckReadings, func() error {
		ndac, nadc := c.Instrument.DACCount(), c.Instrument.ADCCount()
		sweep := SweepConfig{
			Start:  0.1,
			Stop:   c.Instrument.Vref() - 0.1,
			Step:   0.2,
			Settle: c.settle(),
		}
		sweeps := make([]*SweepResult, ndac)
		for i := range sweeps {
			sweep.DAC = i + 1
			r, err := Sweep(ctx, c.Instrument, sweep)
			if err != nil {
				return err
			}
			sweeps[i] = r
		}
		res = &CheckResult{Set: sweeps[0].Set, Channels: make([][]float64, nadc)}
		for ch := 1; ch <= nadc; ch++ {
			src := sweeps[0]
			if ch <= ndac {
				src = sweeps[ch-1]
			}
			res.Channels[ch-1] = src.Channels[ch-1]
		}
		for ch := 1; ch <= ndac; ch++ {
			if err := c.Instrument.SetVoltage(ch, 1); err != nil {
				return err
			}
		}
		c.notify("DAC outputs are now at 1V")
		if err := c.confirm("Press return to zero the DAC outputs"); err != nil {
			return err
		}
		return c.Instrument.Zero()
	})
	if err != nil {
		return res, err
	}
	return res, c.verify(res)
}

func (c *Calibrator) verify(res *CheckResult) error {
	if c.Tolerance <= 0 {
		return nil
	}
	var errs fx.AggregatedError
	for n, vals := range res.Channels {
		for i, v := range vals {
			if d := math.Abs(v - res.Set[i]); d > c.Tolerance {
				errs.Add(&CalibrationError{
					Stage:   "check",
					Channel: n + 1,
					Index:   i,
					Reason:  fmt.Sprintf("read %.3fV for %.3fV", v, res.Set[i]),
				})
				break
			}
		}
	}
	return errs.Aggregate()
}

func checkTables(stage string, tables []Table) error {
	for n, t := range tables {
		for i := 1; i < len(t); i++ {
			if err := CheckMonotonic(stage, n+1, i, t[i-1].Measured, t[i].Measured); err != nil {
				return err
			}
		}
	}
	return nil
}

func resize(tables []Table, n int) []Table {
	out := make([]Table, n)
	copy(out, tables)
	return out
}
