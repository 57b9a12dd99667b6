// Package registry is the in-memory device and register store (spec
// component C5): two UUID-keyed tables, their secondary indices, and the
// change-event bus that lets the surrounding platform observe mutations.
package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fbbus/connector"
)

// Device is one paired peripheral on the bus.
type Device struct {
	ID           uuid.UUID
	SerialNumber string
	Address      byte // 1-253, or fbbus.UnassignedAddress
	Enabled      bool

	HardwareVersion      string
	HardwareModel        string
	HardwareManufacturer string
	FirmwareVersion      string
	FirmwareManufacturer string

	State ConnectionState

	LastPacketSentAt time.Time
	WaitingFor       *fbbus.Opcode // nil means no outstanding request
	TransmitAttempts int
	LostAt           time.Time

	SamplingPeriod time.Duration
	ReadingKind    fbbus.RegisterKind
	ReadingAddress uint16
	ReadingActive  bool
	LastReadAt     time.Time
}

// ConnectionState is an alias so callers of this package don't need to
// import fbbus just to name a device's state.
type ConnectionState = fbbus.ConnectionState

// Register is one numbered slot in a device's INPUT, OUTPUT or ATTRIBUTE
// bank.
type Register struct {
	ID       uuid.UUID
	DeviceID uuid.UUID
	Kind     fbbus.RegisterKind
	Address  uint16
	DataType fbbus.DataType

	ActualValue     fbbus.Value
	ExpectedValue   fbbus.Value
	ExpectedPending time.Time // zero value means "none"

	Name string // ATTRIBUTE only
}

// Identifier renders the property identifier the persistent store expects:
// a well-known attribute keeps its own name, everything else gets a
// "<kind>_<NN>" channel identifier with a 1-based bank address.
func (r *Register) Identifier() string {
	if r.Kind == fbbus.RegisterKindAttribute && r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%s_%02d", strings.ToLower(r.Kind.String()), r.Address+1)
}
