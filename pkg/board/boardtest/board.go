// Package boardtest provides an in memory board speaking the wire protocol.
package boardtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/robotalks/slab.go/pkg/board"
	"github.com/robotalks/slab.go/pkg/comm"
)

// ErrClosed is returned by a closed Board.
var ErrClosed = errors.New("port closed")

// Info is the capability set reported by a Board.
type Info struct {
	DACs, ADCs, DIOs int
	BufferSize       int
	MaxSamplePeriod  float64
	MinSamplePeriod  float64
	Vdd              float64
	MaxResponse      float64
	Vref             float64
	DACBits, ADCBits int
}

// Board emulates the firmware. Each Write must carry one complete frame,
// which is what comm.Conn produces.
type Board struct {
	Firmware string
	Info     Info
	DACPins  []string
	ADCPins  []string
	DIOPins  []string
	AtReset  bool

	// BadMagic answers the magic request with wrong bytes.
	BadMagic bool
	// Silent never answers.
	Silent bool
	// CorruptInfo breaks the capability checksum.
	CorruptInfo bool
	// TruncateInfo drops trailing bytes of the capability reply.
	TruncateInfo int
	// ShortPins ends the pin list before the last DIO name.
	ShortPins bool
	// Reject answers NACK to the opcodes.
	Reject map[comm.Opcode]bool
	// Stall accepts the opcodes and never answers, reads block until Close.
	Stall map[comm.Opcode]bool
	// Status is reported by the next transient command, then cleared.
	Status comm.Status
	// ADC returns the counts read on ADC n given the DAC counts.
	// The default reads DAC n, ADCs beyond the DACs read DAC 1.
	ADC func(n int, dacs []int) int
	// Sample returns sample i of a capture on ADC n.
	// The default repeats the DC value.
	Sample func(n, i, samples int) int

	mu       sync.Mutex
	cond     *sync.Cond
	rx       bytes.Buffer
	closed   bool
	stalled  bool
	timeout  time.Duration
	frames   [][]byte
	dacs     []int
	dioModes []int
	dio      []int
	readings int
	period   float64
	samples  int
	channels int
	wave1    []int
	wave2    []int
}

// New creates a Board with 2 DACs, 4 ADCs and 8 digital lines at reset.
func New() *Board {
	b := &Board{
		Firmware: "SLab Test Board v1",
		Info: Info{
			DACs:            2,
			ADCs:            4,
			DIOs:            8,
			BufferSize:      5000,
			MaxSamplePeriod: 1,
			MinSamplePeriod: 2e-5,
			Vdd:             3.3,
			MaxResponse:     10000,
			Vref:            3.3,
			DACBits:         12,
			ADCBits:         12,
		},
		DACPins: []string{"A2", "D13"},
		ADCPins: []string{"A0", "A1", "A4", "A5"},
		DIOPins: []string{"D2", "D3", "D4", "D5", "D6", "D7", "D8", "D9"},
		AtReset: true,
	}
	b.cond = sync.NewCond(&b.mu)
	b.reset()
	return b
}

func (b *Board) reset() {
	b.dacs = make([]int, b.Info.DACs)
	b.dioModes = make([]int, b.Info.DIOs)
	b.dio = make([]int, b.Info.DIOs)
	b.readings = board.DefaultDCReadings
	b.period = board.DefaultSampleTime
	b.samples, b.channels = board.DefaultStorageSamples, 1
	b.wave1, b.wave2 = nil, nil
}

// Open reopens a closed Board keeping its state.
func (b *Board) Open() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed, b.stalled = false, false
	b.rx.Reset()
}

// Read implements io.Reader. An empty buffer reads as io.EOF.
func (b *Board) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.stalled && !b.closed && b.rx.Len() == 0 {
		b.cond.Wait()
	}
	if b.closed {
		return 0, ErrClosed
	}
	if b.rx.Len() == 0 {
		return 0, io.EOF
	}
	return b.rx.Read(p)
}

// Write implements io.Writer.
func (b *Board) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	frame := append([]byte(nil), p...)
	b.frames = append(b.frames, frame)
	if !b.Silent {
		b.handle(frame)
	}
	b.cond.Broadcast()
	return len(p), nil
}

// Close implements io.Closer.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
	return nil
}

// ResetInputBuffer drops pending replies.
func (b *Board) ResetInputBuffer() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rx.Reset()
	return nil
}

// ReadTimeout returns the last read timeout set by the host.
func (b *Board) ReadTimeout() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeout
}

// SetReadTimeout records the timeout.
func (b *Board) SetReadTimeout(t time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = t
	return nil
}

// Closed reports whether the port is closed.
func (b *Board) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Frames returns every frame received.
func (b *Board) Frames() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.frames...)
}

// Received returns the opcodes received.
func (b *Board) Received() []comm.Opcode {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := make([]comm.Opcode, len(b.frames))
	for n, f := range b.frames {
		ops[n] = comm.Opcode(f[0])
	}
	return ops
}

// LastFrame returns the last frame with the opcode, nil if none.
func (b *Board) LastFrame(op comm.Opcode) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	for n := len(b.frames) - 1; n >= 0; n-- {
		if comm.Opcode(b.frames[n][0]) == op {
			return b.frames[n]
		}
	}
	return nil
}

// ClearFrames forgets received frames.
func (b *Board) ClearFrames() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
}

// DAC returns the counts on DAC n.
func (b *Board) DAC(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dacs[n-1]
}

// SetDIO sets the input level of a line.
func (b *Board) SetDIO(line, v int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dio[line-1] = v
}

// DIO returns the level and mode of a line.
func (b *Board) DIO(line int) (level, mode int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dio[line-1], b.dioModes[line-1]
}

// Readings returns the DC average count.
func (b *Board) Readings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readings
}

// SamplePeriod returns the sample period in seconds.
func (b *Board) SamplePeriod() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.period
}

// Storage returns the transient storage configuration.
func (b *Board) Storage() (samples, channels int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples, b.channels
}

// Waves returns copies of the loaded wavetables in counts.
func (b *Board) Waves() (primary, secondary []int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.wave1...), append([]int(nil), b.wave2...)
}

// Ports is a set of named boards implementing board.Opener and
// board.Lister.
type Ports map[string]*Board

// Open implements board.Opener.
func (p Ports) Open(name string, baudRate int) (board.Port, error) {
	b, ok := p[name]
	if !ok {
		return nil, errors.New("no such port " + name)
	}
	b.Open()
	return b, nil
}

// List implements board.Lister.
func (p Ports) List() ([]string, error) {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Config returns a session configuration using the ports.
func (p Ports) Config() board.Config {
	conf := board.DefaultConfig()
	conf.Opener = p.Open
	conf.Lister = p.List
	conf.ProbeTimeout = 10 * time.Millisecond
	return conf
}

// Connect returns a ready session on a single board.
func Connect(b *Board) (*board.Session, error) {
	ports := Ports{"fake0": b}
	conf := ports.Config()
	conf.Port = "fake0"
	s := board.New(conf)
	return s, s.Connect(context.Background())
}
