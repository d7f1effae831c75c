// Package board manages a session with a lab board: discovery, handshake,
// connection state, and DC analog and digital I/O.
package board

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/robotalks/slab.go/pkg/cal"
)

// State is the connection state of a Session.
type State int

// Session states.
const (
	Disconnected State = iota
	Connected
	Ready
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config defines how a Session finds and talks to a board.
type Config struct {
	// Port is the port name, empty to autodetect.
	Port     string
	BaudRate int
	// Store keeps the last good port and calibration artifacts.
	Store cal.Store
	// MachineID tags the persisted last good port.
	MachineID string
	Opener    Opener
	Lister    Lister
	// ProbeTimeout bounds the magic exchange on each candidate port.
	ProbeTimeout time.Duration
	// AutoReset soft resets a board found out of its reset state.
	AutoReset bool
	// OnStateChange observes every state transition.
	OnStateChange func(State)
}

// DefaultConfig returns the configuration for a real serial board.
func DefaultConfig() Config {
	return Config{
		BaudRate:     DefaultBaudRate,
		Store:        cal.NewMemStore(),
		Opener:       OpenSerial,
		Lister:       EnumeratePorts,
		ProbeTimeout: 500 * time.Millisecond,
		AutoReset:    true,
	}
}

// Capabilities is the board description obtained at handshake.
type Capabilities struct {
	Firmware   string
	DACs       int
	ADCs       int
	BufferSize int
	// MaxSamplePeriod and MinSamplePeriod bound the sample period in
	// seconds, the minimum applies to asynchronous transients.
	MaxSamplePeriod float64
	MinSamplePeriod float64
	Vdd             float64
	// MaxResponseFrequency is the highest sample frequency for frequency
	// response measurements in Hz.
	MaxResponseFrequency float64
	Vref                 float64
	DACBits              int
	ADCBits              int
	DIOs                 int
	// AtReset reports the board was in its reset state at handshake.
	AtReset bool
	DACPins []string
	ADCPins []string
	DIOPins []string
}

// String formats the capabilities for display.
func (c *Capabilities) String() string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "Board: %s\n", c.Firmware)
	fmt.Fprintf(&w, "  Reference Vref voltage: %g V\n", c.Vref)
	fmt.Fprintf(&w, "  Power Vdd voltage: %g V\n", c.Vdd)
	fmt.Fprintf(&w, "  %d DACs with %d bits\n", c.DACs, c.DACBits)
	fmt.Fprintf(&w, "  %d ADCs with %d bits\n", c.ADCs, c.ADCBits)
	fmt.Fprintf(&w, "  %d digital I/O lines\n", c.DIOs)
	fmt.Fprintf(&w, "  DAC pins: %s\n", strings.Join(c.DACPins, " "))
	fmt.Fprintf(&w, "  ADC pins: %s\n", strings.Join(c.ADCPins, " "))
	fmt.Fprintf(&w, "  DIO pins: %s\n", strings.Join(c.DIOPins, " "))
	fmt.Fprintf(&w, "  Buffer size: %d samples\n", c.BufferSize)
	fmt.Fprintf(&w, "  Maximum sample period: %g s\n", c.MaxSamplePeriod)
	fmt.Fprintf(&w, "  Minimum sample period for async transients: %g s\n", c.MinSamplePeriod)
	fmt.Fprintf(&w, "  Maximum sample frequency for frequency response: %g Hz\n", c.MaxResponseFrequency)
	return w.String()
}

// WaveTable mirrors a wavetable loaded on the board.
type WaveTable struct {
	Points int
	// Idle is the first value, where the output rests around playback.
	Idle float64
}

// Loaded reports whether the table holds points.
func (w WaveTable) Loaded() bool {
	return w.Points > 0
}

// Storage mirrors the transient storage configuration.
type Storage struct {
	Samples  int
	Channels int
	// Explicit is set once storage is configured by the host.
	Explicit bool
}

// DeviceState mirrors board configuration kept across commands.
type DeviceState struct {
	SampleTime float64
	Storage    Storage
	Primary    WaveTable
	Secondary  WaveTable
}

// Board defaults after a reset.
const (
	DefaultSampleTime     = 0.001
	DefaultDCReadings     = 10
	DefaultStorageSamples = 1000
)

func resetDeviceState() DeviceState {
	return DeviceState{
		SampleTime: DefaultSampleTime,
		Storage:    Storage{Samples: DefaultStorageSamples, Channels: 1},
	}
}

// Used returns buffer samples taken by wavetables and storage.
func (d *DeviceState) Used() int {
	return d.Primary.Points + d.Secondary.Points + d.Storage.Samples*d.Storage.Channels
}
