package board

import (
	"errors"
	"io"
	"strings"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/slab.go/pkg/cal"
	"github.com/robotalks/slab.go/pkg/comm"
)

func (s *Session) handshake() error {
	c := s.conn
	c.StartCommand(comm.OpFirmware)
	if err := c.Flush(); err != nil {
		return err
	}
	firmware, err := c.ReadLine('\n')
	if err != nil {
		return err
	}
	// line ends with "\n\r"
	if _, err := c.ReadRaw(); err != nil {
		return err
	}
	caps := Capabilities{Firmware: strings.TrimSpace(firmware)}
	if err := s.readInfo(&caps); err != nil {
		return err
	}
	if err := s.readPins(&caps); err != nil {
		return err
	}
	s.caps = caps
	s.vdd, s.vref = caps.Vdd, caps.Vref
	s.adcTables = make([]cal.Table, caps.ADCs)
	s.dacTables = make([]cal.Table, caps.DACs)
	if caps.AtReset {
		glog.V(1).Info("board at reset state")
	} else {
		glog.V(1).Info("board out of reset state")
	}
	return nil
}

// readInfo reads the fixed capability block under the probe timeout. A
// block of the wrong size is logged and flushed.
func (s *Session) readInfo(caps *Capabilities) (rerr error) {
	c := s.conn
	if err := s.port.SetReadTimeout(s.conf.ProbeTimeout); err != nil {
		return &comm.LinkError{Port: s.portName, Err: err}
	}
	defer func() {
		if err := s.port.SetReadTimeout(serial.NoTimeout); err != nil && rerr == nil {
			rerr = &comm.LinkError{Port: s.portName, Err: err}
		}
	}()
	if err := c.Request(comm.OpInfo); err != nil {
		return err
	}
	var err error
	readByte := func() int {
		if err != nil {
			return 0
		}
		var b byte
		b, err = c.ReadByte()
		return int(b)
	}
	readU16 := func() int {
		if err != nil {
			return 0
		}
		var v uint16
		v, err = c.ReadU16()
		return int(v)
	}
	readFloat := func() float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = c.ReadFloat()
		return v
	}
	caps.DACs = readByte()
	caps.ADCs = readByte()
	caps.BufferSize = readU16()
	caps.MaxSamplePeriod = readFloat()
	caps.MinSamplePeriod = readFloat()
	caps.Vdd = readFloat()
	caps.MaxResponseFrequency = readFloat()
	caps.Vref = readFloat()
	caps.DACBits = readByte()
	caps.ADCBits = readByte()
	caps.DIOs = readByte()
	caps.AtReset = readByte() != 0
	if err == nil {
		err = c.CheckCRC()
	}
	if err != nil {
		if !shortReply(err) {
			var perr *comm.ProtocolError
			if !errors.As(err, &perr) {
				return err
			}
		}
		s.warnf("unexpected board data: %v", err)
		return c.DiscardInput()
	}
	return nil
}

// shortReply reports a read that ran out of input.
func shortReply(err error) bool {
	return errors.Is(err, comm.ErrTimeout) || errors.Is(err, io.EOF)
}

func (s *Session) readPins(caps *Capabilities) error {
	c := s.conn
	if err := c.Request(comm.OpPins); err != nil {
		return err
	}
	var err error
	if caps.DACPins, err = s.readPinNames(caps.DACs); err != nil {
		return err
	}
	if caps.ADCPins, err = s.readPinNames(caps.ADCs); err != nil {
		return err
	}
	if caps.DIOPins, err = s.readPinNames(caps.DIOs); err != nil {
		return err
	}
	end, err := c.ReadByte()
	if err != nil {
		return err
	}
	if end != '$' {
		return &comm.ProtocolError{Op: comm.OpPins, Err: comm.ErrPinList}
	}
	if err := c.CheckCRC(); err != nil {
		return err
	}
	return c.DiscardInput()
}

func (s *Session) readPinNames(count int) ([]string, error) {
	names := make([]string, 0, count)
	var name []byte
	for len(names) < count {
		b, err := s.conn.ReadByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case '$':
			return nil, &comm.ProtocolError{Op: comm.OpPins, Err: comm.ErrPinList}
		case '|':
			names = append(names, string(name))
			name = name[:0]
		default:
			name = append(name, b)
		}
	}
	return names, nil
}
