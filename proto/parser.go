package proto

import (
	"github.com/fbbus/connector"
)

// RegisterTypeResolver looks up the declared data type of a register by
// its (kind, address), the way the registry does. The multi-register
// value parser calls it once per register in the run both to validate the
// register exists and to confirm its data type is supported for a bulk
// decode; an unknown register or an unsupported data type aborts the
// whole reply (spec: "no partial application").
type RegisterTypeResolver func(kind fbbus.RegisterKind, address uint16) (dataType fbbus.DataType, ok bool)

// knownOpcodes is the full opcode set validate checks payload[1] against —
// every opcode in fbbus' enum, not just the ones Parse recognizes below.
var knownOpcodes = map[fbbus.Opcode]struct{}{
	fbbus.OpcodePing:                         {},
	fbbus.OpcodePong:                         {},
	fbbus.OpcodeException:                    {},
	fbbus.OpcodeDiscover:                     {},
	fbbus.OpcodeReadSingleRegisterValue:      {},
	fbbus.OpcodeReadMultipleRegistersValues:  {},
	fbbus.OpcodeWriteSingleRegisterValue:     {},
	fbbus.OpcodeWriteMultipleRegistersValues: {},
	fbbus.OpcodeReportSingleRegisterValue:    {},
	fbbus.OpcodeReadSingleRegisterStructure:  {},
}

// Validate is the first parse stage: payload length, protocol version byte
// and opcode membership. A failing payload must be dropped without
// mutating any state — callers never proceed to Parse on a Validate error.
func Validate(payload []byte) error {
	if len(payload) < 2 {
		return fbbus.ErrLengthMismatch
	}
	if fbbus.ProtocolVersion(payload[0]) != fbbus.V1 {
		return fbbus.ErrInvalidVersion
	}
	if _, ok := knownOpcodes[fbbus.Opcode(payload[1])]; !ok {
		return fbbus.ErrUnknownOpcode
	}
	return nil
}

func be16(hi, lo byte) uint16 { return uint16(hi)<<8 | uint16(lo) }

// Parse validates payload and, for the subset of opcodes the engine
// expects inbound (PONG, REPORT_SINGLE_REGISTER_VALUE, read/write replies,
// register structure replies, discover replies), decodes it into a typed
// Message. sourceAddr comes from the transport, never from the payload.
// resolve is consulted only when parsing a multi-register reply.
func Parse(payload []byte, sourceAddr byte, resolve RegisterTypeResolver) (*Message, error) {
	if err := Validate(payload); err != nil {
		return nil, &fbbus.ParseError{Opcode: fbbus.ParseOpcode(safeByte(payload, 1)), Err: err}
	}
	op := fbbus.Opcode(payload[1])
	switch op {
	case fbbus.OpcodePong:
		return parsePong(payload, sourceAddr)
	case fbbus.OpcodeReportSingleRegisterValue, fbbus.OpcodeReadSingleRegisterValue, fbbus.OpcodeWriteSingleRegisterValue:
		return parseSingleRegisterValue(payload, sourceAddr, op)
	case fbbus.OpcodeReadMultipleRegistersValues:
		return parseMultiRegisterValues(payload, sourceAddr, resolve)
	case fbbus.OpcodeReadSingleRegisterStructure:
		return parseRegisterStructure(payload, sourceAddr)
	case fbbus.OpcodeDiscover:
		return parseDiscoverReply(payload, sourceAddr)
	default:
		return nil, &fbbus.ParseError{Opcode: op, Err: fbbus.ErrUnknownOpcode}
	}
}

func safeByte(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0
}

func parsePong(payload []byte, sourceAddr byte) (*Message, error) {
	if len(payload) != 2 {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodePong, Err: fbbus.ErrLengthMismatch}
	}
	return &Message{Kind: MessagePong, SourceAddress: sourceAddr}, nil
}

// parseSingleRegisterValue parses the shared 9-byte shape behind a read
// reply, a write echo and a spontaneous report:
//
//	0   protocol version
//	1   opcode
//	2   register kind
//	3-4 register address (big-endian)
//	5-8 register value (4-byte little-endian slot)
func parseSingleRegisterValue(payload []byte, sourceAddr byte, op fbbus.Opcode) (*Message, error) {
	if len(payload) != 9 {
		return nil, &fbbus.ParseError{Opcode: op, Err: fbbus.ErrLengthMismatch}
	}
	kind := fbbus.ParseRegisterKind(payload[2])
	if kind == fbbus.RegisterKindUnknown {
		return nil, &fbbus.ParseError{Opcode: op, Err: fbbus.ErrUnsupportedDataType}
	}
	addr := be16(payload[3], payload[4])
	raw := make([]byte, 4)
	copy(raw, payload[5:9])
	return &Message{
		Kind:          MessageRegisterValue,
		SourceAddress: sourceAddr,
		RegisterValue: &RegisterValueMessage{Opcode: op, Kind: kind, Address: addr, Raw: raw},
	}, nil
}

// parseMultiRegisterValues parses:
//
//	0   protocol version
//	1   opcode
//	2   register kind
//	3-4 start address (big-endian)
//	5   register count (single byte)
//	6-n register values, 4 bytes each, in address order
func parseMultiRegisterValues(payload []byte, sourceAddr byte, resolve RegisterTypeResolver) (*Message, error) {
	if len(payload) < 6 {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeReadMultipleRegistersValues, Err: fbbus.ErrLengthMismatch}
	}
	kind := fbbus.ParseRegisterKind(payload[2])
	if kind == fbbus.RegisterKindUnknown {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeReadMultipleRegistersValues, Err: fbbus.ErrUnsupportedDataType}
	}
	start := be16(payload[3], payload[4])
	count := int(payload[5])
	body := payload[6:]
	if len(body) < count*4 {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeReadMultipleRegistersValues, Err: fbbus.ErrLengthMismatch}
	}
	if resolve == nil {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeReadMultipleRegistersValues, Err: fbbus.ErrUnknownRegister}
	}
	raw := make([][]byte, count)
	for i := 0; i < count; i++ {
		addr := start + uint16(i)
		dt, ok := resolve(kind, addr)
		if !ok {
			return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeReadMultipleRegistersValues, Err: fbbus.ErrUnknownRegister}
		}
		if dt.IsText() || dt == fbbus.DataTypeUnknown {
			return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeReadMultipleRegistersValues, Err: fbbus.ErrUnsupportedDataType}
		}
		chunk := make([]byte, 4)
		copy(chunk, body[i*4:i*4+4])
		raw[i] = chunk
	}
	return &Message{
		Kind:               MessageMultiRegisterValue,
		SourceAddress:      sourceAddr,
		MultiRegisterValue: &MultiRegisterValueMessage{Kind: kind, Start: start, Raw: raw},
	}, nil
}

// parseRegisterStructure parses:
//
//	0    protocol version
//	1    opcode
//	2    register kind
//	3-4  register address (big-endian)
//	5    declared data type
//
// ATTRIBUTE only, trailing:
//
//	6-7  settable flag (0xFF00 == true, big-endian u16)
//	8-9  queryable flag (0xFF00 == true, big-endian u16)
//	10   name length
//	11-n name bytes
func parseRegisterStructure(payload []byte, sourceAddr byte) (*Message, error) {
	if len(payload) < 6 {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeReadSingleRegisterStructure, Err: fbbus.ErrLengthMismatch}
	}
	kind := fbbus.ParseRegisterKind(payload[2])
	if kind == fbbus.RegisterKindUnknown {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeReadSingleRegisterStructure, Err: fbbus.ErrUnsupportedDataType}
	}
	addr := be16(payload[3], payload[4])
	dt := fbbus.ParseDataType(payload[5])

	msg := &RegisterStructureMessage{Kind: kind, Address: addr, DataType: dt}
	if kind == fbbus.RegisterKindAttribute {
		if len(payload) < 11 {
			return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeReadSingleRegisterStructure, Err: fbbus.ErrLengthMismatch}
		}
		msg.Settable = be16(payload[6], payload[7]) == 0xFF00
		msg.Queryable = be16(payload[8], payload[9]) == 0xFF00
		nameLen := int(payload[10])
		if len(payload) < 11+nameLen {
			return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeReadSingleRegisterStructure, Err: fbbus.ErrLengthMismatch}
		}
		msg.Name = string(payload[11 : 11+nameLen])
	}
	return &Message{Kind: MessageRegisterStructure, SourceAddress: sourceAddr, RegisterStructure: msg}, nil
}

// parseDiscoverReply parses the DISCOVER broadcast reply:
//
//	0    protocol version
//	1    opcode
//	2    current address
//	3    max packet length
//	4    serial number length, then bytes
//	...  hardware version, hardware model, hardware manufacturer,
//	     firmware version, firmware manufacturer — each length-prefixed
//	last 3 bytes: input/output/attribute register bank sizes
//
// Spec requires at least 22 bytes before the variable-length fields
// resolve. The floor is checked first, so a shorter reply is rejected
// even when its fields would parse (six one-byte text fields make a
// 19-byte reply).
func parseDiscoverReply(payload []byte, sourceAddr byte) (*Message, error) {
	if len(payload) < 22 {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeDiscover, Err: fbbus.ErrLengthMismatch}
	}
	r := &DiscoverReplyMessage{
		CurrentAddress:  payload[2],
		MaxPacketLength: uint16(payload[3]),
	}
	pos := 4
	var err error
	if r.SerialNumber, pos, err = readText(payload, pos); err != nil {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeDiscover, Err: err}
	}
	if r.HardwareVersion, pos, err = readText(payload, pos); err != nil {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeDiscover, Err: err}
	}
	if r.HardwareModel, pos, err = readText(payload, pos); err != nil {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeDiscover, Err: err}
	}
	if r.HardwareManufacturer, pos, err = readText(payload, pos); err != nil {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeDiscover, Err: err}
	}
	if r.FirmwareVersion, pos, err = readText(payload, pos); err != nil {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeDiscover, Err: err}
	}
	if r.FirmwareManufacturer, pos, err = readText(payload, pos); err != nil {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeDiscover, Err: err}
	}
	if pos+3 > len(payload) {
		return nil, &fbbus.ParseError{Opcode: fbbus.OpcodeDiscover, Err: fbbus.ErrLengthMismatch}
	}
	r.InputRegisterCount = uint16(payload[pos])
	r.OutputRegisterCount = uint16(payload[pos+1])
	r.AttributeRegisterCount = uint16(payload[pos+2])
	return &Message{Kind: MessageDiscoverReply, SourceAddress: sourceAddr, DiscoverReply: r}, nil
}

// readText reads one length-prefixed ASCII field starting at pos, returning
// the decoded string and the position immediately following it.
func readText(payload []byte, pos int) (string, int, error) {
	if pos >= len(payload) {
		return "", pos, fbbus.ErrLengthMismatch
	}
	n := int(payload[pos])
	pos++
	if pos+n > len(payload) {
		return "", pos, fbbus.ErrLengthMismatch
	}
	return string(payload[pos : pos+n]), pos + n, nil
}
