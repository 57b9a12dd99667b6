package proto

import "github.com/fbbus/connector"

// MessageKind tags which of the inbound message shapes a parsed Message
// carries.
type MessageKind int

const (
	MessagePong MessageKind = iota
	MessageRegisterValue
	MessageMultiRegisterValue
	MessageRegisterStructure
	MessageDiscoverReply
)

// RegisterValueMessage carries a single register's raw value bytes,
// produced by a read reply, a write echo, or a spontaneous REPORT.
// The caller (receiver package) decodes Raw against the register's
// declared data type, since the wire slot here is a fixed 4-byte scalar
// regardless of the register's actual width.
type RegisterValueMessage struct {
	Opcode fbbus.Opcode // which wire message produced this record
	Kind   fbbus.RegisterKind
	Address uint16
	Raw    []byte
}

// MultiRegisterValueMessage carries the per-register raw value bytes for a
// contiguous run, already sliced into one fixed 4-byte slot per register.
type MultiRegisterValueMessage struct {
	Kind  fbbus.RegisterKind
	Start uint16
	Raw   [][]byte
}

// RegisterStructureMessage carries one register's declared structure as
// reported by the device during pairing's per-device interrogation phase.
type RegisterStructureMessage struct {
	Kind      fbbus.RegisterKind
	Address   uint16
	DataType  fbbus.DataType
	Settable  bool
	Queryable bool
	Name      string // populated for ATTRIBUTE only
}

// DiscoverReplyMessage carries one device's self-description, as returned
// by a DISCOVER broadcast.
type DiscoverReplyMessage struct {
	CurrentAddress         byte
	MaxPacketLength        uint16
	SerialNumber           string
	HardwareVersion        string
	HardwareModel          string
	HardwareManufacturer   string
	FirmwareVersion        string
	FirmwareManufacturer   string
	InputRegisterCount     uint16
	OutputRegisterCount    uint16
	AttributeRegisterCount uint16
}

// Message is a typed, fully decoded inbound wire message. SourceAddress
// comes from the transport layer, never from the payload itself. Exactly
// one of the pointer fields matching Kind is populated.
type Message struct {
	Kind          MessageKind
	SourceAddress byte

	RegisterValue      *RegisterValueMessage
	MultiRegisterValue *MultiRegisterValueMessage
	RegisterStructure  *RegisterStructureMessage
	DiscoverReply      *DiscoverReplyMessage
}
