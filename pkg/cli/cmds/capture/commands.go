package capture

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"
	"periph.io/x/periph/conn/physic"

	"github.com/robotalks/slab.go/pkg/acq"
	"github.com/robotalks/slab.go/pkg/cli/sh"
	"github.com/robotalks/slab.go/pkg/wave"
)

func engine(c *ishell.Context) *acq.Engine {
	return acq.New(sh.ShellFrom(c).Session)
}

func floatArgs(c *ishell.Context, min int) ([]float64, error) {
	if len(c.Args) < min {
		return nil, fmt.Errorf("%d arguments expected", min)
	}
	vals := make([]float64, len(c.Args))
	for n, arg := range c.Args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid argument %q", arg)
		}
		vals[n] = v
	}
	return vals, nil
}

// FormatResult prints a capture as columns of time and voltages.
func FormatResult(res *acq.Result) string {
	var w bytes.Buffer
	fmt.Fprint(&w, "time")
	for _, n := range res.ADCs {
		fmt.Fprintf(&w, ",ADC%d", n)
	}
	fmt.Fprintln(&w)
	for i, t := range res.Time {
		fmt.Fprintf(&w, "%g", t)
		for _, vals := range res.Channels {
			fmt.Fprintf(&w, ",%.4f", vals[i])
		}
		fmt.Fprintln(&w)
	}
	return w.String()
}

func printResult(c *ishell.Context, res *acq.Result, err error) {
	if err != nil {
		c.Err(err)
		return
	}
	sh.ShellFrom(c).Print(c, res, FormatResult(res))
}

var (
	// PeriodCmd sets the sample period.
	PeriodCmd = ishell.Cmd{
		Name: "period",
		Help: "SECONDS",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, err := floatArgs(c, 1)
			if err != nil {
				c.Err(err)
				return
			}
			st, err := engine(c).SetSampleTime(args[0])
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("sample period %g s\n", st)
		}),
	}

	// StorageCmd configures transient storage.
	StorageCmd = ishell.Cmd{
		Name: "storage",
		Help: "SAMPLES [ADCS]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, err := floatArgs(c, 1)
			if err != nil {
				c.Err(err)
				return
			}
			channels := 1
			if len(args) > 1 {
				channels = int(args[1])
			}
			if err := engine(c).SetTransientStorage(int(args[0]), channels); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// TransientCmd captures an untriggered transient.
	TransientCmd = ishell.Cmd{
		Name:    "transient",
		Aliases: []string{"tran"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			res, err := engine(c).TransientAsync(context.TODO())
			printResult(c, res, err)
		}),
	}

	// TriggerCmd captures a transient triggered on ADC 1.
	TriggerCmd = ishell.Cmd{
		Name: "trigger",
		Help: "LEVEL [FALLING] [TIMEOUT]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, err := floatArgs(c, 1)
			if err != nil {
				c.Err(err)
				return
			}
			conf := acq.TriggerConfig{Level: args[0]}
			if len(args) > 1 && args[1] != 0 {
				conf.Edge = acq.Falling
			}
			if len(args) > 2 {
				conf.Timeout = time.Duration(args[2] * float64(time.Second))
			}
			res, err := engine(c).TransientTriggered(context.TODO(), conf)
			printResult(c, res, err)
		}),
	}

	// StepCmd captures a step response of DAC 1.
	StepCmd = ishell.Cmd{
		Name: "step",
		Help: "START END",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, err := floatArgs(c, 2)
			if err != nil {
				c.Err(err)
				return
			}
			res, err := engine(c).StepResponse(context.TODO(), acq.DefaultStepConfig(args[0], args[1]))
			printResult(c, res, err)
		}),
	}

	// SineCmd loads a sine wavetable on DAC 1.
	SineCmd = ishell.Cmd{
		Name: "sine",
		Help: "V1 V2 POINTS [HZ]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			args, err := floatArgs(c, 3)
			if err != nil {
				c.Err(err)
				return
			}
			volts, err := wave.Sine(args[0], args[1], int(args[2]), 0)
			if err != nil {
				c.Err(err)
				return
			}
			e := engine(c)
			info, err := e.LoadWavetable(volts, false)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%d points, frequency %s to %s, free buffer %d\n",
				info.Points, info.MinFrequency, info.MaxFrequency, info.Free)
			if len(args) > 3 {
				f, err := e.SetWaveFrequency(physic.Frequency(args[3] * float64(physic.Hertz)))
				if err != nil {
					c.Err(err)
					return
				}
				c.Printf("wave frequency %s\n", f)
			}
		}),
	}

	// WaveCmd captures the response to the loaded wave.
	WaveCmd = ishell.Cmd{
		Name: "wave",
		Help: "[CYCLES]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			conf := acq.DefaultWaveConfig()
			if len(c.Args) > 0 {
				n, err := strconv.Atoi(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				conf.Cycles = n
			}
			res, err := engine(c).WaveResponse(context.TODO(), conf)
			printResult(c, res, err)
		}),
	}

	// PlayCmd plays the loaded wave.
	PlayCmd = ishell.Cmd{
		Name: "play",
		Help: "[CYCLES]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			conf := acq.DefaultPlayConfig()
			if len(c.Args) > 0 {
				n, err := strconv.Atoi(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				conf.Cycles = n
			}
			if err := engine(c).WavePlay(context.TODO(), conf); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
)

func init() {
	sh.AddCmds(
		&PeriodCmd,
		&StorageCmd,
		&TransientCmd,
		&TriggerCmd,
		&StepCmd,
		&SineCmd,
		&WaveCmd,
		&PlayCmd,
	)
}
