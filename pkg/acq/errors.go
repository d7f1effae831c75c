package acq

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelCount indicates a capture with an unexpected channel count.
	ErrChannelCount = errors.New("unexpected channel count")
	// ErrDigitalCapture indicates digital samples in a capture.
	ErrDigitalCapture = errors.New("digital capture not supported")
)

// CapacityError reports a request exceeding the shared sample buffer.
type CapacityError struct {
	Requested int
	Free      int
	Capacity  int
}

// Error implements error.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("not enough buffer space: %d samples requested, only %d of %d free",
		e.Requested, e.Free, e.Capacity)
}
