package fbbus

import "fmt"

// ProtocolVersion identifies the FB BUS wire format revision carried in
// byte 0 of every payload.
type ProtocolVersion byte

// V1 is the only protocol version this engine speaks.
const V1 ProtocolVersion = 0x01

// Opcode identifies the kind of packet carried in byte 1 of every payload.
type Opcode byte

// The fixed set of opcodes the engine builds or parses. Naming follows the
// newer *_VALUE/*_STRUCTURE convention; the source's older *_SINGLE_REGISTER
// naming is not carried forward.
const (
	OpcodePing                         Opcode = 0x01
	OpcodePong                         Opcode = 0x02
	OpcodeException                    Opcode = 0x03
	OpcodeDiscover                     Opcode = 0x04
	OpcodeReadSingleRegisterValue      Opcode = 0x05
	OpcodeReadMultipleRegistersValues  Opcode = 0x06
	OpcodeWriteSingleRegisterValue     Opcode = 0x07
	OpcodeWriteMultipleRegistersValues Opcode = 0x08
	OpcodeReportSingleRegisterValue    Opcode = 0x09
	OpcodeReadSingleRegisterStructure  Opcode = 0x0A

	// OpcodeUnknown classifies any numeric value not in the set above.
	OpcodeUnknown Opcode = 0xFF
)

var opcodeNames = map[Opcode]string{
	OpcodePing:                         "PING",
	OpcodePong:                         "PONG",
	OpcodeException:                    "EXCEPTION",
	OpcodeDiscover:                     "DISCOVER",
	OpcodeReadSingleRegisterValue:      "READ_SINGLE_REGISTER_VALUE",
	OpcodeReadMultipleRegistersValues:  "READ_MULTIPLE_REGISTERS_VALUES",
	OpcodeWriteSingleRegisterValue:     "WRITE_SINGLE_REGISTER_VALUE",
	OpcodeWriteMultipleRegistersValues: "WRITE_MULTIPLE_REGISTERS_VALUES",
	OpcodeReportSingleRegisterValue:    "REPORT_SINGLE_REGISTER_VALUE",
	OpcodeReadSingleRegisterStructure:  "READ_SINGLE_REGISTER_STRUCTURE",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(o))
}

// ParseOpcode classifies a numeric wire value, returning OpcodeUnknown for
// anything the engine doesn't recognize rather than an error — callers that
// need a hard failure (the parser) reject OpcodeUnknown explicitly.
func ParseOpcode(v byte) Opcode {
	o := Opcode(v)
	if _, ok := opcodeNames[o]; ok {
		return o
	}
	return OpcodeUnknown
}

// RegisterKind identifies one of the three register banks a device exposes.
type RegisterKind byte

const (
	RegisterKindInput     RegisterKind = 0x01
	RegisterKindOutput    RegisterKind = 0x02
	RegisterKindAttribute RegisterKind = 0x03

	RegisterKindUnknown RegisterKind = 0xFF
)

var registerKindNames = map[RegisterKind]string{
	RegisterKindInput:     "INPUT",
	RegisterKindOutput:    "OUTPUT",
	RegisterKindAttribute: "ATTRIBUTE",
}

func (k RegisterKind) String() string {
	if n, ok := registerKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(k))
}

// ParseRegisterKind classifies a numeric wire value, returning
// RegisterKindUnknown for anything unrecognized.
func ParseRegisterKind(v byte) RegisterKind {
	k := RegisterKind(v)
	if _, ok := registerKindNames[k]; ok {
		return k
	}
	return RegisterKindUnknown
}

// Writable reports whether user code may set an expected value on a
// register of this kind. INPUT registers are read-only.
func (k RegisterKind) Writable() bool {
	return k == RegisterKindOutput || k == RegisterKindAttribute
}

// ConnectionState is a device's communication lifecycle state, distinct
// from its register values.
type ConnectionState byte

const (
	StateUnknown ConnectionState = iota
	StateInit
	StateRunning
	StateStopped
	StateConnected
	StateDisconnected
	StateLost
	StateAlert
)

var connectionStateNames = map[ConnectionState]string{
	StateUnknown:      "unknown",
	StateInit:         "init",
	StateRunning:      "running",
	StateStopped:      "stopped",
	StateConnected:    "connected",
	StateDisconnected: "disconnected",
	StateLost:         "lost",
	StateAlert:        "alert",
}

func (s ConnectionState) String() string {
	if n, ok := connectionStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", byte(s))
}

// connectionStateCodes mirrors the numeric codes a device understands on
// the wire for its "state" attribute. Only a write to that well-known
// attribute ever crosses this mapping (see proto.BuildWriteStateAttribute).
var connectionStateCodes = map[ConnectionState]byte{
	StateUnknown:      0,
	StateInit:         1,
	StateRunning:      2,
	StateStopped:      3,
	StateConnected:    4,
	StateDisconnected: 5,
	StateLost:         6,
	StateAlert:        7,
}

// StateCode returns the numeric value a device expects for this state in
// its "state" attribute register. Reports ok=false for states that are
// gateway-only bookkeeping (currently none are excluded, kept for symmetry
// with DataType's own ok-returning accessors).
func (s ConnectionState) StateCode() (byte, bool) {
	v, ok := connectionStateCodes[s]
	return v, ok
}

// AttributeNameState and AttributeNameAddress are well-known ATTRIBUTE
// register names with protocol-level meaning beyond plain storage.
const (
	AttributeNameState           = "state"
	AttributeNameAddress         = "address"
	AttributeNameMaxPacketLength = "max_packet_length"
)

// UnassignedAddress is the reserved device address meaning "not yet
// assigned a bus address".
const UnassignedAddress byte = 255

// GatewayAddress is the reserved address of the gateway itself.
const GatewayAddress byte = 254

// MinDeviceAddress and MaxDeviceAddress bound the assignable device address
// range (1..253 inclusive); 254 and 255 are reserved.
const (
	MinDeviceAddress byte = 1
	MaxDeviceAddress byte = 253
)
