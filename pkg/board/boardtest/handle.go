package boardtest

import (
	"github.com/robotalks/slab.go/pkg/comm"
)

func xor(p []byte) byte {
	var crc byte
	for _, b := range p {
		crc ^= b
	}
	return crc
}

func u16(p []byte) int {
	return int(p[0]) | int(p[1])<<8
}

type reply []byte

func (r reply) byte(v int) reply {
	return append(r, byte(v))
}

func (r reply) u16(v int) reply {
	return append(r, byte(v), byte(v>>8))
}

func (r reply) float(v float64) reply {
	exp, mant, err := comm.EncodeFloat(v)
	if err != nil {
		panic(err)
	}
	return append(r, exp, byte(mant), byte(mant>>8))
}

// paramSize returns the parameter bytes of fixed size commands.
func paramSize(op comm.Opcode) (int, bool) {
	switch op {
	case comm.OpMagic, comm.OpInfo, comm.OpPins, comm.OpSoftReset, comm.OpTransientAsync:
		return 0, true
	case comm.OpReadADC, comm.OpDIORead:
		return 1, true
	case comm.OpDCReadings, comm.OpStepResponse, comm.OpWaveResponse, comm.OpDualWaveResponse,
		comm.OpWavePlay, comm.OpDualWavePlay, comm.OpDIOMode, comm.OpDIOWrite:
		return 2, true
	case comm.OpWriteDAC, comm.OpSampleTime, comm.OpSingleWaveResponse:
		return 3, true
	case comm.OpStorage, comm.OpTransientTriggered:
		return 4, true
	}
	return 0, false
}

func (b *Board) send(r reply) {
	b.rx.Write(r)
}

func (b *Board) sendCRC(r reply) {
	b.rx.Write(append(r, xor(r)))
}

func (b *Board) nack() {
	b.sendCRC(reply{comm.NACK})
}

func (b *Board) handle(frame []byte) {
	op := comm.Opcode(frame[0])
	if op == comm.OpFirmware && len(frame) == 1 {
		b.send(reply(b.Firmware + "\n\r"))
		return
	}
	body, crc := frame[:len(frame)-1], frame[len(frame)-1]
	if xor(body) != crc {
		b.sendCRC(reply{comm.ECRC})
		return
	}
	params := body[1:]
	if op == comm.OpLoadWave || op == comm.OpLoadWave2 {
		if len(params) < 2 || len(params) != 2+2*u16(params) {
			b.nack()
			return
		}
	} else if size, ok := paramSize(op); !ok || size != len(params) {
		b.nack()
		return
	}
	if b.Reject[op] {
		b.nack()
		return
	}
	if b.Stall[op] {
		b.stalled = true
		return
	}
	ack := reply{comm.ACK}
	switch op {
	case comm.OpMagic:
		magic := comm.Magic
		if b.BadMagic {
			magic = [4]byte{1, 2, 3, 4}
		}
		b.sendCRC(append(ack, magic[:]...))
	case comm.OpInfo:
		b.info(ack)
	case comm.OpPins:
		b.pins(ack)
	case comm.OpSoftReset:
		b.reset()
		b.AtReset = true
		b.sendCRC(ack)
	case comm.OpReadADC:
		n := int(params[0])
		if n < 1 || n > b.Info.ADCs {
			b.nack()
			return
		}
		b.AtReset = false
		b.sendCRC(ack.u16(b.adc(n)))
	case comm.OpWriteDAC:
		n := int(params[0])
		if n < 1 || n > b.Info.DACs {
			b.nack()
			return
		}
		b.AtReset = false
		b.dacs[n-1] = u16(params[1:])
		b.sendCRC(ack)
	case comm.OpDCReadings:
		b.readings = u16(params)
		b.sendCRC(ack)
	case comm.OpSampleTime:
		b.period = comm.DecodeFloat(params[0], uint16(u16(params[1:])))
		b.sendCRC(ack)
	case comm.OpStorage:
		b.channels, b.samples = int(params[0]), u16(params[2:])
		b.sendCRC(ack)
	case comm.OpLoadWave, comm.OpLoadWave2:
		wave := make([]int, u16(params))
		for n := range wave {
			wave[n] = u16(params[2+2*n:])
		}
		if op == comm.OpLoadWave {
			b.wave1, b.wave2 = wave, nil
		} else {
			b.wave2 = wave
		}
		b.sendCRC(ack)
	case comm.OpTransientAsync, comm.OpTransientTriggered, comm.OpStepResponse,
		comm.OpWaveResponse, comm.OpDualWaveResponse:
		b.capture(ack, b.storageADCs())
	case comm.OpSingleWaveResponse:
		n := int(params[0])
		if n < 1 || n > b.Info.ADCs {
			b.nack()
			return
		}
		b.capture(ack, []int{n})
	case comm.OpWavePlay, comm.OpDualWavePlay:
		b.sendCRC(ack.byte(int(b.takeStatus())))
	case comm.OpDIOMode:
		line := int(params[0])
		if line < 1 || line > b.Info.DIOs {
			b.nack()
			return
		}
		b.dioModes[line-1] = int(params[1])
		b.sendCRC(ack)
	case comm.OpDIOWrite:
		line := int(params[0])
		if line < 1 || line > b.Info.DIOs {
			b.nack()
			return
		}
		b.dio[line-1] = int(params[1])
		b.sendCRC(ack)
	case comm.OpDIORead:
		line := int(params[0])
		if line < 1 || line > b.Info.DIOs {
			b.nack()
			return
		}
		b.sendCRC(ack.byte(b.dio[line-1]))
	default:
		b.nack()
	}
}

func (b *Board) info(r reply) {
	i := b.Info
	r = r.byte(i.DACs).byte(i.ADCs).u16(i.BufferSize).
		float(i.MaxSamplePeriod).float(i.MinSamplePeriod).float(i.Vdd).
		float(i.MaxResponse).float(i.Vref).
		byte(i.DACBits).byte(i.ADCBits).byte(i.DIOs)
	if b.AtReset {
		r = r.byte(1)
	} else {
		r = r.byte(0)
	}
	crc := xor(r)
	if b.CorruptInfo {
		crc ^= 0xff
	}
	r = append(r, crc)
	if n := b.TruncateInfo; n > 0 {
		if n > len(r) {
			n = len(r)
		}
		r = r[:len(r)-n]
	}
	b.send(r)
}

func (b *Board) pins(r reply) {
	var names []string
	names = append(names, b.DACPins...)
	names = append(names, b.ADCPins...)
	dio := b.DIOPins
	if b.ShortPins && len(dio) > 0 {
		dio = dio[:len(dio)-1]
	}
	names = append(names, dio...)
	for _, name := range names {
		r = append(r, name...)
		r = append(r, '|')
	}
	b.sendCRC(append(r, '$'))
}

func (b *Board) adc(n int) int {
	if b.ADC != nil {
		return b.ADC(n, append([]int(nil), b.dacs...))
	}
	if n <= len(b.dacs) {
		return b.dacs[n-1]
	}
	return b.dacs[0]
}

func (b *Board) storageADCs() []int {
	adcs := make([]int, b.channels)
	for n := range adcs {
		adcs[n] = n + 1
	}
	return adcs
}

func (b *Board) takeStatus() comm.Status {
	status := b.Status
	b.Status = comm.StatusOK
	return status
}

func (b *Board) capture(r reply, adcs []int) {
	if status := b.takeStatus(); status != comm.StatusOK {
		b.sendCRC(r.byte(int(status)))
		return
	}
	r = r.byte(int(comm.StatusOK)).byte(len(adcs)).byte(0).u16(b.samples)
	for _, n := range adcs {
		for i := 0; i < b.samples; i++ {
			if b.Sample != nil {
				r = r.u16(b.Sample(n, i, b.samples))
			} else {
				r = r.u16(b.adc(n))
			}
		}
	}
	b.sendCRC(r)
}
