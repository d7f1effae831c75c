package comm

import "fmt"

// Opcode is the single byte identifying a board command.
type Opcode byte

// Board commands.
const (
	// OpMagic requests the 4 magic bytes.
	OpMagic Opcode = 'M'
	// OpFirmware requests the newline terminated firmware string.
	OpFirmware Opcode = 'F'
	// OpInfo requests board capabilities.
	OpInfo Opcode = 'I'
	// OpPins requests pin names.
	OpPins Opcode = 'L'
	// OpReadADC reads one ADC channel.
	OpReadADC Opcode = 'A'
	// OpWriteDAC writes one DAC channel.
	OpWriteDAC Opcode = 'D'
	// OpDCReadings sets the number of readings averaged per DC read.
	OpDCReadings Opcode = 'N'
	// OpSampleTime sets the sample period.
	OpSampleTime Opcode = 'R'
	// OpStorage configures transient storage.
	OpStorage Opcode = 'S'
	// OpTransientAsync captures an untriggered transient.
	OpTransientAsync Opcode = 'Y'
	// OpTransientTriggered captures a triggered transient.
	OpTransientTriggered Opcode = 'G'
	// OpStepResponse captures a step response.
	OpStepResponse Opcode = 'P'
	// OpLoadWave uploads the primary wavetable.
	OpLoadWave Opcode = 'W'
	// OpLoadWave2 uploads the secondary wavetable.
	OpLoadWave2 Opcode = 'w'
	// OpWaveResponse plays the primary wave and captures.
	OpWaveResponse Opcode = 'V'
	// OpDualWaveResponse plays both waves and captures.
	OpDualWaveResponse Opcode = 'v'
	// OpSingleWaveResponse plays the primary wave and captures one channel.
	OpSingleWaveResponse Opcode = 'X'
	// OpWavePlay plays the primary wave without capture.
	OpWavePlay Opcode = 'Q'
	// OpDualWavePlay plays both waves without capture.
	OpDualWavePlay Opcode = 'q'
	// OpSoftReset resets the board to its power up state.
	OpSoftReset Opcode = 'E'
	// OpDIOMode sets the mode of a digital line.
	OpDIOMode Opcode = 'H'
	// OpDIOWrite writes a digital line.
	OpDIOWrite Opcode = 'J'
	// OpDIORead reads a digital line.
	OpDIORead Opcode = 'K'
)

var opcodeNames = map[Opcode]string{
	OpMagic:              "magic",
	OpFirmware:           "firmware",
	OpInfo:               "info",
	OpPins:               "pins",
	OpReadADC:            "adc-read",
	OpWriteDAC:           "dac-write",
	OpDCReadings:         "dc-readings",
	OpSampleTime:         "sample-time",
	OpStorage:            "storage",
	OpTransientAsync:     "transient",
	OpTransientTriggered: "triggered-transient",
	OpStepResponse:       "step-response",
	OpLoadWave:           "load-wave",
	OpLoadWave2:          "load-wave2",
	OpWaveResponse:       "wave-response",
	OpDualWaveResponse:   "dual-wave-response",
	OpSingleWaveResponse: "single-wave-response",
	OpWavePlay:           "wave-play",
	OpDualWavePlay:       "dual-wave-play",
	OpSoftReset:          "soft-reset",
	OpDIOMode:            "dio-mode",
	OpDIOWrite:           "dio-write",
	OpDIORead:            "dio-read",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return fmt.Sprintf("%s(%c)", name, byte(o))
	}
	return fmt.Sprintf("opcode(%d)", byte(o))
}

// Reply sentinels.
const (
	ACK  byte = 181
	NACK byte = 226
	ECRC byte = 37
)

// Magic is the answer of a supported board to OpMagic.
var Magic = [4]byte{56, 41, 18, 1}

// Status is the completion code of transient commands.
type Status byte

// Transient status codes.
const (
	StatusOK      Status = 0
	StatusOverrun Status = 1
	StatusTimeout Status = 2
	StatusHalted  Status = 3
)

// Known reports whether s is a defined status code.
func (s Status) Known() bool {
	return s <= StatusHalted
}

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOverrun:
		return "sample overrun"
	case StatusTimeout:
		return "trigger timeout"
	case StatusHalted:
		return "halted from board"
	default:
		return fmt.Sprintf("unknown status %d", byte(s))
	}
}
