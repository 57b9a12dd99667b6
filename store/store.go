// Package store defines the persistent-device-store contract consumed
// on startup (spec §6): an out-of-scope collaborator, given a concrete
// Go shape here so Connector.Start can seed the registry from
// whatever the host actually persists devices in.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fbbus/connector"
	"github.com/fbbus/connector/registry"
)

// StoredProperty is one register as the host's persistent store last
// saw it. Identifier follows spec §6's pattern: a well-known attribute
// name (state, address, max_packet_length, ...) for device static
// properties, or `<prefix>_<NN>` (1-based bank address) for channel
// properties.
type StoredProperty struct {
	Identifier string
	DataType   fbbus.DataType
	Settable   bool
	Queryable  bool
	Value      fbbus.Value
}

// StoredDevice is one device as the host's persistent store last saw
// it.
type StoredDevice struct {
	SerialNumber         string
	HardwareVersion      string
	HardwareModel        string
	HardwareManufacturer string
	FirmwareVersion      string
	FirmwareManufacturer string
	Enabled              bool
	Properties           []StoredProperty
}

// DevicesRepository enumerates the devices belonging to this
// connector. Connector.Start calls LoadDevices exactly once, at
// startup, to seed the in-memory registry.
type DevicesRepository interface {
	LoadDevices(ctx context.Context) ([]StoredDevice, error)
}

// Seed populates reg with every device and register a DevicesRepository
// returns. It's a one-shot load, not a sync: subsequent changes flow
// the other way, through the registry's own event bus.
func Seed(reg *registry.Registry, devices []StoredDevice) error {
	for _, sd := range devices {
		address := fbbus.UnassignedAddress
		for _, prop := range sd.Properties {
			if prop.Identifier == fbbus.AttributeNameAddress {
				address = decodeAddressHint(prop.Value)
			}
		}

		dev, err := reg.CreateDevice(&registry.Device{
			SerialNumber:         sd.SerialNumber,
			Address:              address,
			Enabled:              sd.Enabled,
			HardwareVersion:      sd.HardwareVersion,
			HardwareModel:        sd.HardwareModel,
			HardwareManufacturer: sd.HardwareManufacturer,
			FirmwareVersion:      sd.FirmwareVersion,
			FirmwareManufacturer: sd.FirmwareManufacturer,
			State:                fbbus.StateUnknown,
		})
		if err != nil {
			return fmt.Errorf("seed device %s: %w", sd.SerialNumber, err)
		}

		attributeAddr := uint16(0)
		for _, prop := range sd.Properties {
			kind, addr, name := parseIdentifier(prop.Identifier, &attributeAddr)
			_, err := reg.CreateRegister(&registry.Register{
				DeviceID:    dev.ID,
				Kind:        kind,
				Address:     addr,
				DataType:    prop.DataType,
				ActualValue: prop.Value,
				Name:        name,
			})
			if err != nil {
				return fmt.Errorf("seed register %s/%s: %w", sd.SerialNumber, prop.Identifier, err)
			}
		}
	}
	return nil
}

// parseIdentifier reverses Register.Identifier(): a recognized
// `<kind>_<NN>` pattern yields that kind and 0-based address;
// anything else is a well-known ATTRIBUTE name, assigned the next free
// slot in the attribute bank (its address is never looked up directly,
// only by name, so any stable allocation works).
func parseIdentifier(identifier string, nextAttributeAddr *uint16) (fbbus.RegisterKind, uint16, string) {
	if kind, n, ok := splitChannelIdentifier(identifier); ok {
		return kind, n, ""
	}
	addr := *nextAttributeAddr
	*nextAttributeAddr++
	return fbbus.RegisterKindAttribute, addr, identifier
}

func splitChannelIdentifier(identifier string) (fbbus.RegisterKind, uint16, bool) {
	prefix, suffix, found := strings.Cut(identifier, "_")
	if !found {
		return 0, 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 {
		return 0, 0, false
	}
	switch prefix {
	case "input":
		return fbbus.RegisterKindInput, uint16(n - 1), true
	case "output":
		return fbbus.RegisterKindOutput, uint16(n - 1), true
	default:
		return 0, 0, false
	}
}

// decodeAddressHint reads the bus address out of a loaded "address"
// attribute value, falling back to unassigned on anything unexpected.
func decodeAddressHint(v fbbus.Value) byte {
	if v.Kind != fbbus.ValueInt {
		return fbbus.UnassignedAddress
	}
	if v.Int < 0 || v.Int > 255 {
		return fbbus.UnassignedAddress
	}
	return byte(v.Int)
}
