package analog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"
	"periph.io/x/periph/conn/gpio"

	"github.com/robotalks/slab.go/pkg/board"
	"github.com/robotalks/slab.go/pkg/cli/sh"
)

func intArg(c *ishell.Context, n int) (int, error) {
	if len(c.Args) <= n {
		return 0, fmt.Errorf("missing argument %d", n+1)
	}
	return strconv.Atoi(c.Args[n])
}

func floatArg(c *ishell.Context, n int) (float64, error) {
	if len(c.Args) <= n {
		return 0, fmt.Errorf("missing argument %d", n+1)
	}
	return strconv.ParseFloat(c.Args[n], 64)
}

var (
	// ReadCmd reads an ADC voltage.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "ADC",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			n, err := intArg(c, 0)
			if err != nil {
				c.Err(err)
				return
			}
			v, err := sh.ShellFrom(c).Session.ReadVoltage(n)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("ADC%d: %.4f V\n", n, v)
		}),
	}

	// SetCmd sets a DAC voltage.
	SetCmd = ishell.Cmd{
		Name:    "set",
		Aliases: []string{"s"},
		Help:    "DAC VOLTS",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			n, err := intArg(c, 0)
			if err != nil {
				c.Err(err)
				return
			}
			v, err := floatArg(c, 1)
			if err != nil {
				c.Err(err)
				return
			}
			if err := sh.ShellFrom(c).Session.SetVoltage(n, v); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// LiveCmd prints all ADC voltages periodically.
	LiveCmd = ishell.Cmd{
		Name: "live",
		Help: "[SAMPLES] print all ADC voltages every 200ms",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			count := 10
			if len(c.Args) > 0 {
				var err error
				if count, err = intArg(c, 0); err != nil {
					c.Err(err)
					return
				}
			}
			conf := board.LiveConfig{Interval: 200 * time.Millisecond}
			err := sh.ShellFrom(c).Session.Live(context.TODO(), conf, func(sample board.LiveSample) error {
				for i, n := range sample.Channels {
					c.Printf("ADC%d: %.3f V  ", n, sample.Voltages[i])
				}
				c.Println()
				if count--; count <= 0 {
					return board.ErrStop
				}
				return nil
			})
			if err != nil {
				c.Err(err)
			}
		}),
	}

	// DIOCmd reads or drives a digital line.
	DIOCmd = ishell.Cmd{
		Name: "dio",
		Help: "LINE [0|1]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			s := sh.ShellFrom(c).Session
			line, err := intArg(c, 0)
			if err != nil {
				c.Err(err)
				return
			}
			if len(c.Args) < 2 {
				if err := s.SetDIOMode(line, board.ModeInput); err != nil {
					c.Err(err)
					return
				}
				level, err := s.DIORead(line)
				if err != nil {
					c.Err(err)
					return
				}
				c.Printf("DIO%d: %s\n", line, level)
				return
			}
			level := gpio.Level(c.Args[1] == "1")
			if err := s.SetDIOMode(line, board.ModeOutput); err != nil {
				c.Err(err)
				return
			}
			if err := s.DIOWrite(line, level); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
)

func init() {
	sh.AddCmds(
		&ReadCmd,
		&SetCmd,
		&LiveCmd,
		&DIOCmd,
	)
}
