package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrRxCRC indicates a checksum mismatch on the board to host link.
	ErrRxCRC = errors.New("CRC error in board to host link")
	// ErrTxCRC indicates the board reported a checksum mismatch on the
	// host to board link.
	ErrTxCRC = errors.New("CRC error in host to board link")
	// ErrUnknownResponse indicates an unexpected reply sentinel.
	ErrUnknownResponse = errors.New("unknown board response")
	// ErrBadMagic indicates the peer is not a supported board.
	ErrBadMagic = errors.New("bad magic from board")
	// ErrOutOfRange indicates a value outside its wire domain.
	ErrOutOfRange = errors.New("value out of range")
	// ErrPinList indicates a malformed pin list.
	ErrPinList = errors.New("malformed pin list")
	// ErrNotRepresentable indicates a real that cannot be encoded.
	ErrNotRepresentable = errors.New("value not representable")
	// ErrTimeout indicates no data arrived before the read timeout.
	ErrTimeout = errors.New("read timeout")
	// ErrAutodetect indicates no candidate port answered as a board.
	ErrAutodetect = errors.New("no board found")
)

// LinkError reports a failure of the serial transport.
type LinkError struct {
	Port string
	Err  error
}

// Error implements error.
func (e *LinkError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("link error: %v", e.Err)
	}
	return fmt.Sprintf("link error on %s: %v", e.Port, e.Err)
}

// Unwrap returns the cause.
func (e *LinkError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a malformed or unexpected exchange.
// The byte stream may be out of sync after it, the session should be
// reconnected.
type ProtocolError struct {
	Op  Opcode
	Err error
}

// Error implements error.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %v", e.Op, e.Err)
}

// Unwrap returns the cause.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// RemoteRejectedError is returned when the board answers NACK.
type RemoteRejectedError struct {
	Op Opcode
}

// Error implements error.
func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("remote error in %s: bad command parameters", e.Op)
}

// DeviceFault carries a non-OK status reported by a transient command.
type DeviceFault struct {
	Op     Opcode
	Status Status
}

// Error implements error.
func (e *DeviceFault) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// PreconditionError is raised before any I/O when an operation cannot run.
type PreconditionError struct {
	Op     string
	Reason string
	Err    error
}

// Error implements error.
func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Unwrap returns the cause.
func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// Preconditionf creates a PreconditionError.
func Preconditionf(op, format string, args ...interface{}) error {
	return &PreconditionError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
