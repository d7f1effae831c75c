package board

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/slab.go/pkg/cal"
	"github.com/robotalks/slab.go/pkg/comm"
)

// ratio limits accepted around the 0..1 range.
const (
	ratioLow  = -0.001
	ratioHigh = 1.001
)

// RatioToCounts converts a ratio into 16-bit DAC counts.
func RatioToCounts(ratio float64) (int, error) {
	if ratio < ratioLow || ratio > ratioHigh {
		return 0, comm.Preconditionf("ratio", "ratiometric value %g out of 0..1", ratio)
	}
	return clampCounts(int(ratio * 65536)), nil
}

// CountsToRatio converts 16-bit ADC counts into a ratio.
func CountsToRatio(counts int) float64 {
	return float64(clampCounts(counts)) / 65536
}

func clampCounts(v int) int {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return v
}

// VoltageToRatio converts a voltage into a ratio of Vref.
func (s *Session) VoltageToRatio(v float64) (float64, error) {
	if v < ratioLow {
		return 0, comm.Preconditionf("voltage", "voltage %gV below 0V", v)
	}
	if v > s.vref*ratioHigh {
		return 0, comm.Preconditionf("voltage", "voltage %gV above Vref %gV", v, s.vref)
	}
	return v / s.vref, nil
}

func (s *Session) checkADC(op string, n int) error {
	if err := s.Ready(op); err != nil {
		return err
	}
	if n < 1 || n > s.caps.ADCs {
		return comm.Preconditionf(op, "invalid ADC number %d", n)
	}
	return nil
}

func (s *Session) checkDAC(op string, n int) error {
	if err := s.Ready(op); err != nil {
		return err
	}
	if n < 1 || n > s.caps.DACs {
		return comm.Preconditionf(op, "invalid DAC number %d", n)
	}
	return nil
}

// ReadChannel reads the raw ratio of an ADC.
func (s *Session) ReadChannel(n int) (float64, error) {
	if err := s.checkADC("read channel", n); err != nil {
		return 0, err
	}
	c := s.conn
	if err := c.Request(comm.OpReadADC, comm.Byte(n)); err != nil {
		return 0, err
	}
	v, err := c.ReadU16()
	if err != nil {
		return 0, err
	}
	if err := c.CheckCRC(); err != nil {
		return 0, err
	}
	return CountsToRatio(int(v)), nil
}

// WriteChannel writes a raw ratio to a DAC.
func (s *Session) WriteChannel(n int, ratio float64) error {
	if err := s.checkDAC("write channel", n); err != nil {
		return err
	}
	counts, err := RatioToCounts(ratio)
	if err != nil {
		return err
	}
	return s.conn.Do(comm.OpWriteDAC, comm.Byte(n), comm.U16(counts))
}

// ReadADC reads the calibrated ratio of an ADC.
func (s *Session) ReadADC(n int) (float64, error) {
	v, err := s.ReadChannel(n)
	if err != nil {
		return 0, err
	}
	return s.adcTables[n-1].Correct(v), nil
}

// WriteDAC writes a calibrated ratio to a DAC.
func (s *Session) WriteDAC(n int, ratio float64) error {
	if err := s.checkDAC("write DAC", n); err != nil {
		return err
	}
	return s.WriteChannel(n, s.dacTables[n-1].Correct(ratio))
}

// DACRatio returns the raw ratio to write for a calibrated ratio.
func (s *Session) DACRatio(n int, ratio float64) float64 {
	if n < 1 || n > len(s.dacTables) {
		return ratio
	}
	return s.dacTables[n-1].Correct(ratio)
}

// ADCRatio returns the calibrated ratio for a raw ADC ratio.
func (s *Session) ADCRatio(n int, ratio float64) float64 {
	if n < 1 || n > len(s.adcTables) {
		return ratio
	}
	return s.adcTables[n-1].Correct(ratio)
}

// ReverseADCRatio returns the raw ADC ratio expected for a calibrated one.
func (s *Session) ReverseADCRatio(n int, ratio float64) float64 {
	if n < 1 || n > len(s.adcTables) {
		return ratio
	}
	return s.adcTables[n-1].Inverse().Correct(ratio)
}

// SetVoltage sets a DAC output voltage.
func (s *Session) SetVoltage(n int, v float64) error {
	if err := s.checkDAC("set voltage", n); err != nil {
		return err
	}
	ratio, err := s.VoltageToRatio(v)
	if err != nil {
		return err
	}
	return s.WriteDAC(n, ratio)
}

// ReadVoltage reads an ADC voltage referred to GND.
func (s *Session) ReadVoltage(n int) (float64, error) {
	v, err := s.ReadADC(n)
	if err != nil {
		return 0, err
	}
	return v * s.vref, nil
}

// ReadDifferential reads the voltage between two ADCs, channel 0 is GND.
func (s *Session) ReadDifferential(pos, neg int) (float64, error) {
	var p, n float64
	var err error
	if pos != 0 {
		if p, err = s.ReadVoltage(pos); err != nil {
			return 0, err
		}
	}
	if neg != 0 {
		if n, err = s.ReadVoltage(neg); err != nil {
			return 0, err
		}
	}
	return p - n, nil
}

// Current returns the current through a resistor r between two ADCs.
func (s *Session) Current(r float64, pos, neg int) (float64, error) {
	if r == 0 {
		return 0, comm.Preconditionf("current", "resistor cannot be zero")
	}
	v, err := s.ReadDifferential(pos, neg)
	if err != nil {
		return 0, err
	}
	return v / r, nil
}

// Zero sets every DAC to raw ratio 0.
func (s *Session) Zero() error {
	if err := s.Ready("zero"); err != nil {
		return err
	}
	for n := 1; n <= s.caps.DACs; n++ {
		if err := s.WriteChannel(n, 0); err != nil {
			return err
		}
	}
	return nil
}

// SetDCReadings sets how many readings the board averages for each DC
// read and returns the previous count.
func (s *Session) SetDCReadings(n int) (int, error) {
	if err := s.Ready("set DC readings"); err != nil {
		return 0, err
	}
	if n < 1 || n > 65535 {
		return 0, comm.Preconditionf("set DC readings", "readings %d out of 1..65535", n)
	}
	if err := s.conn.Do(comm.OpDCReadings, comm.U16(n)); err != nil {
		return 0, err
	}
	prev := s.readings
	s.readings = n
	return prev, nil
}

// DCReadings returns the current DC average count.
func (s *Session) DCReadings() int {
	return s.readings
}

// Sweep runs a DC sweep of one DAC reading every ADC.
func (s *Session) Sweep(ctx context.Context, conf cal.SweepConfig) (*cal.SweepResult, error) {
	if err := s.Ready("sweep"); err != nil {
		return nil, err
	}
	return cal.Sweep(ctx, s, conf)
}

// SoftReset returns the board to its power up state.
func (s *Session) SoftReset() error {
	if err := s.Ready("soft reset"); err != nil {
		return err
	}
	if err := s.conn.Do(comm.OpSoftReset); err != nil {
		return err
	}
	s.device = resetDeviceState()
	s.readings = DefaultDCReadings
	glog.Info("board at reset state")
	return nil
}
