package board

import (
	"context"
	"time"

	fx "github.com/robotalks/slab.go/pkg/framework"
)

// ErrStop ends Live without error when returned by its callback.
var ErrStop = fx.ErrStop

// LiveConfig selects the ADCs and the period of live readings.
type LiveConfig struct {
	// Channels defaults to every ADC.
	Channels []int
	// Interval defaults to 200ms.
	Interval time.Duration
}

// LiveSample is one set of live readings.
type LiveSample struct {
	Time     time.Time
	Channels []int
	Voltages []float64
}

// Live reads voltages periodically until ctx is done or fn returns an
// error. Cancellation is only observed between readings.
func (s *Session) Live(ctx context.Context, conf LiveConfig, fn func(LiveSample) error) error {
	if err := s.Ready("live"); err != nil {
		return err
	}
	channels := conf.Channels
	if len(channels) == 0 {
		for n := 1; n <= s.caps.ADCs; n++ {
			channels = append(channels, n)
		}
	}
	for _, n := range channels {
		if err := s.checkADC("live", n); err != nil {
			return err
		}
	}
	interval := conf.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return fx.Every(ctx, interval, func() error {
		sample := LiveSample{Time: time.Now(), Channels: channels, Voltages: make([]float64, len(channels))}
		for i, n := range channels {
			v, err := s.ReadVoltage(n)
			if err != nil {
				return err
			}
			sample.Voltages[i] = v
		}
		return fn(sample)
	})
}
