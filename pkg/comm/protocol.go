package comm

// Field is a command parameter.
type Field interface {
	send(c *Conn) error
}

// Byte is a single byte parameter.
type Byte int

// U16 is a 16-bit parameter.
type U16 int

// Float is a positive real parameter.
type Float float64

func (f Byte) send(c *Conn) error {
	return c.SendByte(int(f))
}

func (f U16) send(c *Conn) error {
	return c.SendU16(int(f))
}

func (f Float) send(c *Conn) error {
	_, err := c.SendFloat(float64(f))
	return err
}

// CheckACK reads the reply sentinel.
// NACK and CRC-ERROR carry their own checksum which is verified first.
func (c *Conn) CheckACK() error {
	resp, err := c.ReadByte()
	if err != nil {
		return err
	}
	switch resp {
	case ACK:
		return nil
	case NACK:
		if err := c.CheckCRC(); err != nil {
			return err
		}
		return &RemoteRejectedError{Op: c.op}
	case ECRC:
		if err := c.CheckCRC(); err != nil {
			return err
		}
		return &ProtocolError{Op: c.op, Err: ErrTxCRC}
	default:
		return &ProtocolError{Op: c.op, Err: ErrUnknownResponse}
	}
}

// Send starts a command and writes it with its parameters and checksum.
// Parameters are validated before anything is written.
func (c *Conn) Send(op Opcode, fields ...Field) error {
	c.StartCommand(op)
	for _, f := range fields {
		if err := f.send(c); err != nil {
			c.out = c.out[:0]
			return err
		}
	}
	return c.SendCRC()
}

// Request sends a command and checks the reply sentinel.
// The caller reads the payload and calls CheckCRC.
func (c *Conn) Request(op Opcode, fields ...Field) error {
	if err := c.Send(op, fields...); err != nil {
		return err
	}
	return c.CheckACK()
}

// Do sends a command whose reply carries no payload.
func (c *Conn) Do(op Opcode, fields ...Field) error {
	if err := c.Request(op, fields...); err != nil {
		return err
	}
	return c.CheckCRC()
}

// CheckStatus reads the status byte of a transient command.
// Known fault codes are followed by the reply checksum, unknown codes are
// returned immediately and the stream is left as is.
func (c *Conn) CheckStatus(allowTimeout bool) error {
	b, err := c.ReadByte()
	if err != nil {
		return err
	}
	status := Status(b)
	switch {
	case status == StatusOK:
		return nil
	case status == StatusOverrun, status == StatusHalted, status == StatusTimeout && allowTimeout:
		if err := c.CheckCRC(); err != nil {
			return err
		}
	}
	return &DeviceFault{Op: c.op, Status: status}
}

// ReadLine reads raw bytes up to a terminator, excluded.
func (c *Conn) ReadLine(term byte) (string, error) {
	var buf []byte
	for {
		b, err := c.ReadRaw()
		if err != nil {
			return string(buf), err
		}
		if b == term {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}
