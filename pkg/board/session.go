package board

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/slab.go/pkg/cal"
	"github.com/robotalks/slab.go/pkg/comm"
	fx "github.com/robotalks/slab.go/pkg/framework"
)

// Session is the connection to one board.
// A Session is not safe for concurrent use.
type Session struct {
	conf Config

	state    State
	port     Port
	portName string
	conn     *comm.Conn
	caps     Capabilities
	device   DeviceState
	readings int
	warnings int

	vdd       float64
	vref      float64
	adcTables []cal.Table
	dacTables []cal.Table
}

// New creates a disconnected Session.
func New(conf Config) *Session {
	def := DefaultConfig()
	if conf.BaudRate == 0 {
		conf.BaudRate = def.BaudRate
	}
	if conf.Store == nil {
		conf.Store = def.Store
	}
	if conf.Opener == nil {
		conf.Opener = def.Opener
	}
	if conf.Lister == nil {
		conf.Lister = def.Lister
	}
	if conf.ProbeTimeout == 0 {
		conf.ProbeTimeout = def.ProbeTimeout
	}
	return &Session{conf: conf}
}

// State returns the connection state.
func (s *Session) State() State {
	return s.state
}

// PortName returns the port of the current connection.
func (s *Session) PortName() string {
	return s.portName
}

// Capabilities returns the board capabilities.
func (s *Session) Capabilities() Capabilities {
	return s.caps
}

// Device returns the mirrored board configuration.
func (s *Session) Device() *DeviceState {
	return &s.device
}

// DACCount returns the number of DACs.
func (s *Session) DACCount() int {
	return s.caps.DACs
}

// ADCCount returns the number of ADCs.
func (s *Session) ADCCount() int {
	return s.caps.ADCs
}

// Warnings returns the number of warnings since connect.
func (s *Session) Warnings() int {
	return s.warnings
}

// Conn returns the protocol connection, nil when disconnected.
func (s *Session) Conn() *comm.Conn {
	return s.conn
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	glog.V(1).Infof("session %s -> %s", s.state, state)
	s.state = state
	if s.conf.OnStateChange != nil {
		s.conf.OnStateChange(state)
	}
}

func (s *Session) warnf(format string, args ...interface{}) {
	s.warnings++
	glog.Warningf(format, args...)
}

// Ready fails with a PreconditionError unless the session is Ready.
func (s *Session) Ready(op string) error {
	if s.state != Ready {
		return comm.Preconditionf(op, "not connected to board")
	}
	return nil
}

// Connect finds a board, performs the handshake and loads calibration.
// An open session is disconnected first.
func (s *Session) Connect(ctx context.Context) error {
	if s.state != Disconnected {
		glog.Info("already connected, disconnecting")
		s.Disconnect()
	}
	port, name, err := s.open(ctx)
	if err != nil {
		return err
	}
	s.port, s.portName = port, name
	s.conn = comm.NewConn(name, port)
	s.warnings = 0
	s.setState(Connected)
	if err := cal.SavePort(s.conf.Store, name, s.conf.MachineID); err != nil {
		glog.Warningf("save last port: %v", err)
	}
	if err := s.handshake(); err != nil {
		s.drop()
		return err
	}
	s.loadCalibration()
	s.device = resetDeviceState()
	s.readings = DefaultDCReadings
	if !s.caps.AtReset && s.conf.AutoReset {
		glog.Info("board out of reset state, resetting")
		if err := s.conn.Do(comm.OpSoftReset); err != nil {
			s.drop()
			return err
		}
	}
	s.setState(Ready)
	glog.Infof("connected to %s on %s", s.caps.Firmware, name)
	return nil
}

// Disconnect closes the connection.
func (s *Session) Disconnect() error {
	if s.state == Disconnected {
		return comm.Preconditionf("disconnect", "not connected to board")
	}
	s.drop()
	if s.warnings > 0 {
		glog.Infof("%d warnings since connect", s.warnings)
	}
	return nil
}

func (s *Session) drop() {
	if s.port != nil {
		if err := s.port.Close(); err != nil {
			glog.V(1).Infof("close %s: %v", s.portName, err)
		}
	}
	s.port, s.conn = nil, nil
	s.setState(Disconnected)
}

func (s *Session) open(ctx context.Context) (Port, string, error) {
	if s.conf.Port != "" {
		port, err := s.conf.Opener(s.conf.Port, s.conf.BaudRate)
		if err != nil {
			return nil, "", &comm.LinkError{Port: s.conf.Port, Err: fmt.Errorf("cannot open connection: %w", err)}
		}
		if err := s.probe(port, s.conf.Port); err != nil {
			port.Close()
			return nil, "", err
		}
		return port, s.conf.Port, nil
	}
	return s.detect(ctx)
}

func (s *Session) candidates() []string {
	var names []string
	seen := make(map[string]bool)
	if last, err := cal.LoadPort(s.conf.Store, s.conf.MachineID); err == nil {
		glog.V(1).Infof("trying last valid port %s", last)
		names = append(names, last)
		seen[last] = true
	}
	listed, err := s.conf.Lister()
	if err != nil {
		glog.Warningf("list ports: %v", err)
	}
	for _, name := range listed {
		if !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	return names
}

func (s *Session) detect(ctx context.Context) (Port, string, error) {
	for _, name := range s.candidates() {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		glog.V(2).Infof("testing port %s", name)
		port, err := s.conf.Opener(name, s.conf.BaudRate)
		if err != nil {
			glog.V(2).Infof("open %s: %v", name, err)
			continue
		}
		if err := s.probe(port, name); err != nil {
			glog.V(2).Infof("probe %s: %v", name, err)
			port.Close()
			continue
		}
		glog.Infof("board detected at port %s", name)
		return port, name, nil
	}
	return nil, "", &comm.LinkError{Err: comm.ErrAutodetect}
}

// probe checks the magic bytes under the probe timeout.
func (s *Session) probe(port Port, name string) error {
	if err := port.SetReadTimeout(s.conf.ProbeTimeout); err != nil {
		return &comm.LinkError{Port: name, Err: err}
	}
	c := comm.NewConn(name, port)
	if err := c.DiscardInput(); err != nil {
		return err
	}
	if err := c.Request(comm.OpMagic); err != nil {
		return badMagic(err)
	}
	for _, expected := range comm.Magic {
		b, err := c.ReadByte()
		if err != nil {
			return err
		}
		if b != expected {
			return &comm.ProtocolError{Op: comm.OpMagic, Err: comm.ErrBadMagic}
		}
	}
	if err := c.CheckCRC(); err != nil {
		return err
	}
	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		return &comm.LinkError{Port: name, Err: err}
	}
	return nil
}

// badMagic reports any unexpected reply to the magic request as a wrong
// peer, transport failures are kept.
func badMagic(err error) error {
	var lerr *comm.LinkError
	if errors.As(err, &lerr) {
		return err
	}
	return &comm.ProtocolError{Op: comm.OpMagic, Err: comm.ErrBadMagic}
}

// Exchange runs a blocking protocol exchange. If ctx ends first the port
// is closed to unblock it and the session drops to Disconnected.
func (s *Session) Exchange(ctx context.Context, op string, fn func(c *comm.Conn) error) error {
	if err := s.Ready(op); err != nil {
		return err
	}
	conn := s.conn
	port := &abortCloser{Closer: s.port}
	err := fx.RunWithContextCloser(ctx, port, func() error {
		return fn(conn)
	})
	if port.aborted {
		glog.Warningf("%s aborted, board needs reconnection", op)
		s.port = nil
		s.drop()
	}
	return err
}

// abortCloser records that an exchange closed the port on cancellation.
type abortCloser struct {
	io.Closer
	aborted bool
}

func (c *abortCloser) Close() error {
	c.aborted = true
	return c.Closer.Close()
}
