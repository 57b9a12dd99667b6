// Package fbbus implements the wire-level building blocks of the FB BUS v1
// protocol: opcodes, register kinds, data types and the typed value codec
// used to pack/unpack register contents to and from little-endian byte runs.
//
// Higher level concerns — frame building/parsing, the device/register
// registry, the transport scheduler, the publisher and pairing state
// machines — live in the sibling packages (proto, registry, transport,
// publisher, pairing, receiver) and are composed by Connector in engine.go.
package fbbus
