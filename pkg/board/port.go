package board

import (
	"io"
	"runtime"
	"sort"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate is the firmware link speed.
const DefaultBaudRate = 38400

// Port is a serial transport to the board.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// Opener opens a named port.
type Opener func(name string, baudRate int) (Port, error)

// Lister returns candidate port names for autodetection.
type Lister func() ([]string, error)

// OpenSerial opens a serial port with the board line settings.
func OpenSerial(name string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	// Nucleo boards on Linux need DTR low and RTS high.
	if runtime.GOOS == "linux" {
		if err := port.SetDTR(false); err != nil {
			port.Close()
			return nil, err
		}
		if err := port.SetRTS(true); err != nil {
			port.Close()
			return nil, err
		}
	}
	return port, nil
}

// EnumeratePorts lists serial ports, USB ports first.
func EnumeratePorts() ([]string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil || len(details) == 0 {
		return serial.GetPortsList()
	}
	sort.SliceStable(details, func(i, j int) bool {
		return details[i].IsUSB && !details[j].IsUSB
	})
	names := make([]string, len(details))
	for n, d := range details {
		names[n] = d.Name
	}
	return names, nil
}
