package comm

import (
	"bufio"
	"errors"
	"io"
)

// Conn frames commands over a byte stream and tracks running checksums.
// Outbound bytes are buffered until SendCRC or Flush so each command is a
// single write on the transport.
type Conn struct {
	// Name identifies the transport in errors.
	Name string

	rw    io.ReadWriter
	r     *bufio.Reader
	out   []byte
	op    Opcode
	crcTx byte
	crcRx byte
}

// InputResetter is implemented by transports able to drop pending input.
type InputResetter interface {
	ResetInputBuffer() error
}

// NewConn wraps a transport.
func NewConn(name string, rw io.ReadWriter) *Conn {
	return &Conn{Name: name, rw: rw, r: bufio.NewReader(rw)}
}

// Op returns the opcode of the command in progress.
func (c *Conn) Op() Opcode {
	return c.op
}

// StartCommand resets both checksums and queues the opcode.
func (c *Conn) StartCommand(op Opcode) {
	c.op = op
	c.crcTx, c.crcRx = 0, 0
	c.out = c.out[:0]
	c.put(byte(op))
}

func (c *Conn) put(b byte) {
	c.out = append(c.out, b)
	c.crcTx ^= b
}

// SendByte queues a byte parameter.
func (c *Conn) SendByte(v int) error {
	if v < 0 || v > 255 {
		return &ProtocolError{Op: c.op, Err: ErrOutOfRange}
	}
	c.put(byte(v))
	return nil
}

// SendU16 queues a 16-bit parameter, low byte first.
func (c *Conn) SendU16(v int) error {
	if v < 0 || v > 65535 {
		return &ProtocolError{Op: c.op, Err: ErrOutOfRange}
	}
	c.put(byte(v))
	c.put(byte(v >> 8))
	return nil
}

// SendFloat queues a positive real and returns the value as encoded.
func (c *Conn) SendFloat(v float64) (float64, error) {
	exp, mant, err := EncodeFloat(v)
	if err != nil {
		return 0, &PreconditionError{Op: c.op.String(), Reason: "invalid real parameter", Err: err}
	}
	c.put(exp)
	c.put(byte(mant))
	c.put(byte(mant >> 8))
	return DecodeFloat(exp, mant), nil
}

// SendCRC appends the checksum and writes the command.
func (c *Conn) SendCRC() error {
	c.out = append(c.out, c.crcTx)
	return c.Flush()
}

// Flush writes queued bytes without a checksum.
func (c *Conn) Flush() error {
	if len(c.out) == 0 {
		return nil
	}
	_, err := c.rw.Write(c.out)
	c.out = c.out[:0]
	if err != nil {
		return &LinkError{Port: c.Name, Err: err}
	}
	return nil
}

// ReadRaw reads one byte without updating the checksum.
func (c *Conn) ReadRaw() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.ErrNoProgress) {
			err = ErrTimeout
		}
		return 0, &LinkError{Port: c.Name, Err: err}
	}
	return b, nil
}

// ReadByte reads one byte.
func (c *Conn) ReadByte() (byte, error) {
	b, err := c.ReadRaw()
	if err != nil {
		return 0, err
	}
	c.crcRx ^= b
	return b, nil
}

// ReadU16 reads a 16-bit value, low byte first.
func (c *Conn) ReadU16() (uint16, error) {
	low, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	high, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint16(low) | uint16(high)<<8, nil
}

// ReadFloat reads an encoded real.
func (c *Conn) ReadFloat() (float64, error) {
	exp, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	mant, err := c.ReadU16()
	if err != nil {
		return 0, err
	}
	return DecodeFloat(exp, mant), nil
}

// CheckCRC reads the reply checksum and compares it.
func (c *Conn) CheckCRC() error {
	crc, err := c.ReadRaw()
	if err != nil {
		return err
	}
	if crc != c.crcRx {
		return &ProtocolError{Op: c.op, Err: ErrRxCRC}
	}
	return nil
}

// DiscardInput drops any pending input.
func (c *Conn) DiscardInput() error {
	c.r.Reset(c.rw)
	if r, ok := c.rw.(InputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return &LinkError{Port: c.Name, Err: err}
		}
	}
	return nil
}
