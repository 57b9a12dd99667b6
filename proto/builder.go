// Package proto builds and parses FB BUS v1 wire payloads: the frame
// builder (spec component C3) and the two-stage validator/parser
// (component C4). Payloads never carry a sender address; that comes from
// the transport layer alongside the bytes.
package proto

import (
	"fmt"

	"github.com/fbbus/connector"
)

// header writes the two-byte [version, opcode] preamble every outbound
// payload starts with.
func header(op fbbus.Opcode) []byte {
	return []byte{byte(fbbus.V1), byte(op)}
}

func putUint16BE(addr uint16) (hi, lo byte) {
	return byte(addr >> 8), byte(addr)
}

// BuildPing builds a PING payload. Carries no trailing bytes.
func BuildPing() []byte {
	return header(fbbus.OpcodePing)
}

// BuildDiscover builds a DISCOVER broadcast payload. Carries no trailing
// bytes.
func BuildDiscover() []byte {
	return header(fbbus.OpcodeDiscover)
}

// BuildReadSingleRegisterValue builds a request to read one register.
func BuildReadSingleRegisterValue(kind fbbus.RegisterKind, address uint16) []byte {
	hi, lo := putUint16BE(address)
	return append(header(fbbus.OpcodeReadSingleRegisterValue), byte(kind), hi, lo)
}

// BuildReadMultipleRegistersValues builds a request to read a contiguous
// run of count registers starting at start, all of the same kind.
func BuildReadMultipleRegistersValues(kind fbbus.RegisterKind, start, count uint16) []byte {
	sHi, sLo := putUint16BE(start)
	cHi, cLo := putUint16BE(count)
	return append(header(fbbus.OpcodeReadMultipleRegistersValues), byte(kind), sHi, sLo, cHi, cLo)
}

// BuildReadSingleRegisterStructure builds a request for a register's
// declared structure (data type, name, settable/queryable flags). serial is
// included when addressing a device that hasn't been assigned a bus
// address yet (pairing's per-device phase uses broadcast + serial framing
// in that case).
func BuildReadSingleRegisterStructure(kind fbbus.RegisterKind, address uint16, serial string) ([]byte, error) {
	if len(serial) > 255 {
		return nil, &fbbus.BuildError{Opcode: fbbus.OpcodeReadSingleRegisterStructure, Err: fmt.Errorf("serial number too long")}
	}
	hi, lo := putUint16BE(address)
	buf := append(header(fbbus.OpcodeReadSingleRegisterStructure), byte(kind), hi, lo)
	if serial != "" {
		buf = append(buf, byte(len(serial)))
		buf = append(buf, []byte(serial)...)
	}
	return buf, nil
}

// BuildWriteSingleRegisterValue builds a write request. It fails explicitly
// (a *fbbus.BuildError wrapping fbbus.ErrValueNotEncodable) when value
// doesn't admit the register's declared data type rather than truncating
// or coercing it.
func BuildWriteSingleRegisterValue(kind fbbus.RegisterKind, address uint16, dt fbbus.DataType, value fbbus.Value, serial string) ([]byte, error) {
	data, ok := fbbus.EncodeValue(dt, value)
	if !ok {
		return nil, &fbbus.BuildError{Opcode: fbbus.OpcodeWriteSingleRegisterValue, Err: fbbus.ErrValueNotEncodable}
	}
	if len(serial) > 255 {
		return nil, &fbbus.BuildError{Opcode: fbbus.OpcodeWriteSingleRegisterValue, Err: fmt.Errorf("serial number too long")}
	}
	hi, lo := putUint16BE(address)
	buf := append(header(fbbus.OpcodeWriteSingleRegisterValue), byte(kind), hi, lo)
	buf = append(buf, data...)
	if serial != "" {
		buf = append(buf, byte(len(serial)))
		buf = append(buf, []byte(serial)...)
	}
	return buf, nil
}

// BuildWriteStateAttribute builds a write to the well-known "state"
// ATTRIBUTE register. The connection-state symbol is mapped to its
// numeric wire code and encoded as UCHAR before building, per spec §4.3's
// special case — callers never hand a raw byte to BuildWriteSingleRegisterValue
// for this register.
func BuildWriteStateAttribute(address uint16, state fbbus.ConnectionState, serial string) ([]byte, error) {
	code, ok := state.StateCode()
	if !ok {
		return nil, &fbbus.BuildError{Opcode: fbbus.OpcodeWriteSingleRegisterValue, Err: fmt.Errorf("state %s has no wire code", state)}
	}
	return BuildWriteSingleRegisterValue(fbbus.RegisterKindAttribute, address, fbbus.DataTypeUChar, fbbus.IntValue(int64(code)), serial)
}
