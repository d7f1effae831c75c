package cal

import (
	"context"
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/slab.go/pkg/comm"
	fx "github.com/robotalks/slab.go/pkg/framework"
)

// SweepInstrument is the board surface used by a DC sweep.
type SweepInstrument interface {
	DACCount() int
	ADCCount() int
	Vref() float64
	SetVoltage(n int, v float64) error
	ReadVoltage(n int) (float64, error)
}

// SweepConfig describes a DC sweep of one DAC.
// Set voltages run from Start up to, excluding, Stop.
type SweepConfig struct {
	DAC    int
	Start  float64
	Stop   float64
	Step   float64
	Settle time.Duration
}

// DefaultSweepConfig returns the default step and settle time.
func DefaultSweepConfig(dac int, start, stop float64) SweepConfig {
	return SweepConfig{DAC: dac, Start: start, Stop: stop, Step: 0.1, Settle: DefaultSettle}
}

// SweepResult holds the voltages read on every ADC at each set voltage.
type SweepResult struct {
	Set      []float64
	Channels [][]float64
}

// Sweep sets the DAC to each voltage of the range and reads all ADCs.
func Sweep(ctx context.Context, inst SweepInstrument, conf SweepConfig) (*SweepResult, error) {
	vref := inst.Vref()
	switch {
	case conf.DAC < 1 || conf.DAC > inst.DACCount():
		return nil, comm.Preconditionf("sweep", "invalid DAC %d", conf.DAC)
	case conf.Start < 0 || conf.Stop < 0:
		return nil, comm.Preconditionf("sweep", "voltage cannot be below 0V")
	case conf.Start > vref || conf.Stop > vref:
		return nil, comm.Preconditionf("sweep", "voltage cannot be over Vref %gV", vref)
	case conf.Step <= 0:
		return nil, comm.Preconditionf("sweep", "invalid step %g", conf.Step)
	}
	nadc := inst.ADCCount()
	res := &SweepResult{Channels: make([][]float64, nadc)}
	points := int(math.Ceil((conf.Stop - conf.Start) / conf.Step))
	for i := 0; i < points; i++ {
		x := conf.Start + float64(i)*conf.Step
		glog.V(2).Infof("DAC %d at %gV", conf.DAC, x)
		if err := inst.SetVoltage(conf.DAC, x); err != nil {
			return nil, err
		}
		if err := fx.Sleep(ctx, conf.Settle); err != nil {
			return nil, err
		}
		res.Set = append(res.Set, x)
		for ch := 1; ch <= nadc; ch++ {
			v, err := inst.ReadVoltage(ch)
			if err != nil {
				return nil, err
			}
			res.Channels[ch-1] = append(res.Channels[ch-1], v)
		}
	}
	glog.V(1).Infof("sweep of DAC %d done, %d points", conf.DAC, points)
	return res, nil
}
