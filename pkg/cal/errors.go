package cal

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a missing artifact.
	ErrNotFound = errors.New("artifact not found")
	// ErrAborted indicates the operator aborted a calibration stage.
	ErrAborted = errors.New("calibration aborted")
)

// CalibrationError reports a calibration stage failure on a channel.
type CalibrationError struct {
	Stage   string
	Channel int
	Index   int
	Reason  string
}

// Error implements error.
func (e *CalibrationError) Error() string {
	if e.Channel > 0 {
		return fmt.Sprintf("%s calibration: channel %d point %d: %s", e.Stage, e.Channel, e.Index, e.Reason)
	}
	return fmt.Sprintf("%s calibration: point %d: %s", e.Stage, e.Index, e.Reason)
}

// CheckMonotonic fails when cur is below prev, which means a bad
// connection or a damaged channel.
func CheckMonotonic(stage string, channel, index int, prev, cur float64) error {
	if cur < prev {
		return &CalibrationError{
			Stage:   stage,
			Channel: channel,
			Index:   index,
			Reason:  fmt.Sprintf("non monotonic reading %g after %g", cur, prev),
		}
	}
	return nil
}
