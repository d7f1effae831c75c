package board

import (
	"errors"

	"github.com/golang/glog"

	"github.com/robotalks/slab.go/pkg/cal"
	"github.com/robotalks/slab.go/pkg/comm"
)

// MinSupplyVoltage is the lowest accepted Vdd and Vref.
const MinSupplyVoltage = 3.0

var _ cal.Instrument = (*Session)(nil)

// Vdd returns the supply voltage.
func (s *Session) Vdd() float64 {
	return s.vdd
}

// Vref returns the reference voltage of DACs and ADCs.
func (s *Session) Vref() float64 {
	return s.vref
}

// SetVdd sets the supply voltage, persist saves the voltage pair.
func (s *Session) SetVdd(v float64, persist bool) error {
	if err := s.Ready("set Vdd"); err != nil {
		return err
	}
	if v < MinSupplyVoltage {
		return comm.Preconditionf("set Vdd", "Vdd %gV too low", v)
	}
	s.vdd = v
	if persist {
		return s.saveVoltages()
	}
	return nil
}

// SetVref sets the reference voltage, persist saves the voltage pair.
func (s *Session) SetVref(v float64, persist bool) error {
	if err := s.Ready("set Vref"); err != nil {
		return err
	}
	if v < MinSupplyVoltage {
		return comm.Preconditionf("set Vref", "Vref %gV too low", v)
	}
	s.vref = v
	if persist {
		return s.saveVoltages()
	}
	return nil
}

func (s *Session) saveVoltages() error {
	glog.V(1).Infof("saving Vdd %g and Vref %g", s.vdd, s.vref)
	return cal.SaveVoltages(s.conf.Store, s.vdd, s.vref)
}

// ADCTables returns a copy of the ADC calibration tables.
func (s *Session) ADCTables() []cal.Table {
	return append([]cal.Table(nil), s.adcTables...)
}

// DACTables returns a copy of the DAC calibration tables.
func (s *Session) DACTables() []cal.Table {
	return append([]cal.Table(nil), s.dacTables...)
}

// SetADCTables installs ADC calibration tables, one per ADC.
func (s *Session) SetADCTables(tables []cal.Table, persist bool) error {
	s.adcTables = fit(tables, s.caps.ADCs)
	if persist {
		return cal.SaveTables(s.conf.Store, cal.ADCCalibration, s.adcTables)
	}
	return nil
}

// SetDACTables installs DAC calibration tables, one per DAC.
func (s *Session) SetDACTables(tables []cal.Table, persist bool) error {
	s.dacTables = fit(tables, s.caps.DACs)
	if persist {
		return cal.SaveTables(s.conf.Store, cal.DACCalibration, s.dacTables)
	}
	return nil
}

func fit(tables []cal.Table, n int) []cal.Table {
	out := make([]cal.Table, n)
	copy(out, tables)
	return out
}

// loadCalibration loads persisted artifacts, missing ones are skipped.
func (s *Session) loadCalibration() {
	store := s.conf.Store
	if tables, err := cal.LoadTables(store, cal.ADCCalibration); err == nil {
		s.adcTables = fit(tables, s.caps.ADCs)
		glog.Info("ADC calibration data loaded")
	} else {
		logLoad("ADC calibration", err)
	}
	if tables, err := cal.LoadTables(store, cal.DACCalibration); err == nil {
		s.dacTables = fit(tables, s.caps.DACs)
		glog.Info("DAC calibration data loaded")
	} else {
		logLoad("DAC calibration", err)
	}
	if vdd, vref, err := cal.LoadVoltages(store); err == nil && vdd > 0 && vref > 0 {
		s.vdd, s.vref = vdd, vref
		glog.Infof("Vdd %gV and Vref %gV loaded from calibration", vdd, vref)
	} else if err != nil {
		logLoad("voltage calibration", err)
	}
}

func logLoad(what string, err error) {
	if errors.Is(err, cal.ErrNotFound) {
		glog.Infof("no %s data found", what)
		return
	}
	glog.Warningf("load %s: %v", what, err)
}
