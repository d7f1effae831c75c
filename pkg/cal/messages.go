package cal

import (
	"github.com/golang/protobuf/proto"
)

// PairMessage is the persisted form of a Pair.
type PairMessage struct {
	Reference float64 `protobuf:"fixed64,1,opt,name=reference,proto3" json:"reference,omitempty"`
	Measured  float64 `protobuf:"fixed64,2,opt,name=measured,proto3" json:"measured,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *PairMessage) ProtoMessage() {}

// Reset implements proto.Message.
func (m *PairMessage) Reset() { *m = PairMessage{} }

// String implements proto.Message.
func (m *PairMessage) String() string { return proto.CompactTextString(m) }

// TableMessage is the persisted form of a Table.
type TableMessage struct {
	Pairs []*PairMessage `protobuf:"bytes,1,rep,name=pairs,proto3" json:"pairs,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *TableMessage) ProtoMessage() {}

// Reset implements proto.Message.
func (m *TableMessage) Reset() { *m = TableMessage{} }

// String implements proto.Message.
func (m *TableMessage) String() string { return proto.CompactTextString(m) }

// TablesMessage holds one table per channel.
type TablesMessage struct {
	Tables []*TableMessage `protobuf:"bytes,1,rep,name=tables,proto3" json:"tables,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *TablesMessage) ProtoMessage() {}

// Reset implements proto.Message.
func (m *TablesMessage) Reset() { *m = TablesMessage{} }

// String implements proto.Message.
func (m *TablesMessage) String() string { return proto.CompactTextString(m) }

// VoltagesMessage holds supply and reference voltages.
type VoltagesMessage struct {
	Vdd  float64 `protobuf:"fixed64,1,opt,name=vdd,proto3" json:"vdd,omitempty"`
	Vref float64 `protobuf:"fixed64,2,opt,name=vref,proto3" json:"vref,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *VoltagesMessage) ProtoMessage() {}

// Reset implements proto.Message.
func (m *VoltagesMessage) Reset() { *m = VoltagesMessage{} }

// String implements proto.Message.
func (m *VoltagesMessage) String() string { return proto.CompactTextString(m) }

// PortMessage records the last port a board answered on.
type PortMessage struct {
	Port      string `protobuf:"bytes,1,opt,name=port,proto3" json:"port,omitempty"`
	MachineID string `protobuf:"bytes,2,opt,name=machine_id,proto3" json:"machine_id,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *PortMessage) ProtoMessage() {}

// Reset implements proto.Message.
func (m *PortMessage) Reset() { *m = PortMessage{} }

// String implements proto.Message.
func (m *PortMessage) String() string { return proto.CompactTextString(m) }

// MarshalTables encodes per-channel tables.
func MarshalTables(tables []Table) ([]byte, error) {
	msg := &TablesMessage{Tables: make([]*TableMessage, len(tables))}
	for n, t := range tables {
		tm := &TableMessage{Pairs: make([]*PairMessage, len(t))}
		for i, p := range t {
			tm.Pairs[i] = &PairMessage{Reference: p.Reference, Measured: p.Measured}
		}
		msg.Tables[n] = tm
	}
	return proto.Marshal(msg)
}

// UnmarshalTables decodes per-channel tables.
func UnmarshalTables(data []byte) ([]Table, error) {
	var msg TablesMessage
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	tables := make([]Table, len(msg.Tables))
	for n, tm := range msg.Tables {
		if len(tm.Pairs) == 0 {
			continue
		}
		t := make(Table, len(tm.Pairs))
		for i, p := range tm.Pairs {
			t[i] = Pair{Reference: p.Reference, Measured: p.Measured}
		}
		tables[n] = t
	}
	return tables, nil
}

// LoadTables loads per-channel tables of an artifact kind.
func LoadTables(s Store, kind Kind) ([]Table, error) {
	data, err := s.Load(kind)
	if err != nil {
		return nil, err
	}
	return UnmarshalTables(data)
}

// SaveTables persists per-channel tables under an artifact kind.
func SaveTables(s Store, kind Kind, tables []Table) error {
	data, err := MarshalTables(tables)
	if err != nil {
		return err
	}
	return s.Save(kind, data)
}

// LoadVoltages loads the Vdd and Vref pair.
func LoadVoltages(s Store) (vdd, vref float64, err error) {
	data, err := s.Load(Voltages)
	if err != nil {
		return 0, 0, err
	}
	var msg VoltagesMessage
	if err := proto.Unmarshal(data, &msg); err != nil {
		return 0, 0, err
	}
	return msg.Vdd, msg.Vref, nil
}

// SaveVoltages persists the Vdd and Vref pair.
func SaveVoltages(s Store, vdd, vref float64) error {
	data, err := proto.Marshal(&VoltagesMessage{Vdd: vdd, Vref: vref})
	if err != nil {
		return err
	}
	return s.Save(Voltages, data)
}

// LoadPort returns the last good port recorded on this machine.
// A port recorded on another machine is reported as ErrNotFound.
func LoadPort(s Store, machineID string) (string, error) {
	data, err := s.Load(LastPort)
	if err != nil {
		return "", err
	}
	var msg PortMessage
	if err := proto.Unmarshal(data, &msg); err != nil {
		return "", err
	}
	if msg.MachineID != machineID || msg.Port == "" {
		return "", ErrNotFound
	}
	return msg.Port, nil
}

// SavePort records a good port for this machine.
func SavePort(s Store, port, machineID string) error {
	data, err := proto.Marshal(&PortMessage{Port: port, MachineID: machineID})
	if err != nil {
		return err
	}
	return s.Save(LastPort, data)
}
