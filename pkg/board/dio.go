package board

import (
	"periph.io/x/periph/conn/gpio"

	"github.com/robotalks/slab.go/pkg/comm"
)

// DIOMode is the configuration of a digital line.
type DIOMode int

// Digital line modes.
const (
	ModeInput     DIOMode = 10
	ModePullUp    DIOMode = 11
	ModePullDown  DIOMode = 12
	ModeOutput    DIOMode = 20
	ModeOpenDrain DIOMode = 21
)

// PullMode returns the input mode for a pull setting.
func PullMode(pull gpio.Pull) DIOMode {
	switch pull {
	case gpio.PullUp:
		return ModePullUp
	case gpio.PullDown:
		return ModePullDown
	default:
		return ModeInput
	}
}

func (m DIOMode) valid() bool {
	switch m {
	case ModeInput, ModePullUp, ModePullDown, ModeOutput, ModeOpenDrain:
		return true
	}
	return false
}

func (s *Session) checkLine(op string, line int) error {
	if err := s.Ready(op); err != nil {
		return err
	}
	if line < 1 || line > s.caps.DIOs {
		return comm.Preconditionf(op, "invalid digital I/O line %d", line)
	}
	return nil
}

// SetDIOMode configures a digital line.
func (s *Session) SetDIOMode(line int, mode DIOMode) error {
	if err := s.checkLine("DIO mode", line); err != nil {
		return err
	}
	if !mode.valid() {
		return comm.Preconditionf("DIO mode", "invalid mode %d", mode)
	}
	return s.conn.Do(comm.OpDIOMode, comm.Byte(line), comm.Byte(mode))
}

// DIOWrite drives a digital line.
func (s *Session) DIOWrite(line int, level gpio.Level) error {
	if err := s.checkLine("DIO write", line); err != nil {
		return err
	}
	v := 0
	if level == gpio.High {
		v = 1
	}
	return s.conn.Do(comm.OpDIOWrite, comm.Byte(line), comm.Byte(v))
}

// DIORead reads a digital line.
func (s *Session) DIORead(line int) (gpio.Level, error) {
	if err := s.checkLine("DIO read", line); err != nil {
		return gpio.Low, err
	}
	c := s.conn
	if err := c.Request(comm.OpDIORead, comm.Byte(line)); err != nil {
		return gpio.Low, err
	}
	b, err := c.ReadByte()
	if err != nil {
		return gpio.Low, err
	}
	if err := c.CheckCRC(); err != nil {
		return gpio.Low, err
	}
	return gpio.Level(b != 0), nil
}
