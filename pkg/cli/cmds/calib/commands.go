package calib

import (
	"bytes"
	"context"
	"fmt"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/slab.go/pkg/cal"
	"github.com/robotalks/slab.go/pkg/cli/sh"
)

func calibrator(c *ishell.Context) *cal.Calibrator {
	s := sh.ShellFrom(c)
	return &cal.Calibrator{
		Instrument: s.Session,
		Operator:   sh.OperatorFrom(c),
		Settle:     s.Config.Settle,
	}
}

func stage(fn func(ctx context.Context, calib *cal.Calibrator) error) func(c *ishell.Context) {
	return sh.MustBeConnected(func(c *ishell.Context) {
		if err := fn(context.TODO(), calibrator(c)); err != nil {
			c.Err(err)
			return
		}
		c.Println("OK")
	})
}

// FormatCheck prints the check stage curves as a table.
func FormatCheck(res *cal.CheckResult) string {
	var w bytes.Buffer
	fmt.Fprint(&w, "   set")
	for n := range res.Channels {
		fmt.Fprintf(&w, "   ADC%d", n+1)
	}
	fmt.Fprintln(&w)
	for i, v := range res.Set {
		fmt.Fprintf(&w, "%6.3f", v)
		for _, vals := range res.Channels {
			fmt.Fprintf(&w, " %6.3f", vals[i])
		}
		fmt.Fprintln(&w)
	}
	return w.String()
}

var (
	// ManualCmd runs the manual calibration of DAC 1, Vdd and Vref.
	ManualCmd = ishell.Cmd{
		Name: "cal1",
		Help: "manual calibration of DAC 1 with a voltmeter",
		Func: stage(func(ctx context.Context, calib *cal.Calibrator) error {
			return calib.Manual(ctx)
		}),
	}

	// ADCCmd runs the ADC calibration.
	ADCCmd = ishell.Cmd{
		Name: "cal2",
		Help: "ADC calibration against DAC 1",
		Func: stage(func(ctx context.Context, calib *cal.Calibrator) error {
			return calib.ADC(ctx)
		}),
	}

	// DACCmd runs the DAC calibration.
	DACCmd = ishell.Cmd{
		Name: "cal3",
		Help: "DAC calibration against the ADCs",
		Func: stage(func(ctx context.Context, calib *cal.Calibrator) error {
			return calib.DAC(ctx)
		}),
	}

	// CheckCmd verifies the calibration.
	CheckCmd = ishell.Cmd{
		Name: "cal4",
		Help: "[TOLERANCE] check the calibration",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			calib := calibrator(c)
			if len(c.Args) > 0 {
				if _, err := fmt.Sscanf(c.Args[0], "%g", &calib.Tolerance); err != nil {
					c.Err(fmt.Errorf("invalid tolerance %q", c.Args[0]))
					return
				}
			}
			res, err := calib.Check(context.TODO())
			if res != nil {
				sh.ShellFrom(c).Print(c, res, FormatCheck(res))
			}
			if err != nil {
				c.Err(err)
			}
		}),
	}

	// ZeroCmd sets all DACs to zero.
	ZeroCmd = ishell.Cmd{
		Name: "zero",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if err := sh.ShellFrom(c).Session.Zero(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
)

func init() {
	sh.AddCmds(
		&ManualCmd,
		&ADCCmd,
		&DACCmd,
		&CheckCmd,
		&ZeroCmd,
	)
}
