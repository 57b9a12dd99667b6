package registry

import "github.com/fbbus/connector"

// PropertySnapshot is one register rendered into the shape the
// persistent store expects on sync.
type PropertySnapshot struct {
	ID         string
	Identifier string
	DataType   fbbus.DataType
	Settable   bool
	Queryable  bool
	Value      fbbus.Value
}

// DeviceSnapshot is one device plus all its registers, rendered into the
// shape the persistent store expects on sync.
type DeviceSnapshot struct {
	ID                   string
	SerialNumber         string
	HardwareVersion      string
	HardwareModel        string
	HardwareManufacturer string
	FirmwareVersion      string
	FirmwareManufacturer string
	Enabled              bool
	Properties           []PropertySnapshot
}

// Snapshot renders the full registry into the host-sync shape described
// in spec §6's persistent-store contract. Settable mirrors the register
// kind's own writability except for INPUT, which is never settable;
// queryable is true for every register this engine can read back (all of
// them — there is no write-only register kind in this core).
func (r *Registry) Snapshot() []DeviceSnapshot {
	devices := r.Devices()
	out := make([]DeviceSnapshot, 0, len(devices))
	for _, d := range devices {
		regs := r.RegistersByDevice(d.ID)
		props := make([]PropertySnapshot, 0, len(regs))
		for _, reg := range regs {
			props = append(props, PropertySnapshot{
				ID:         reg.ID.String(),
				Identifier: reg.Identifier(),
				DataType:   reg.DataType,
				Settable:   reg.Kind.Writable(),
				Queryable:  true,
				Value:      reg.ActualValue,
			})
		}
		out = append(out, DeviceSnapshot{
			ID:                   d.ID.String(),
			SerialNumber:         d.SerialNumber,
			HardwareVersion:      d.HardwareVersion,
			HardwareModel:        d.HardwareModel,
			HardwareManufacturer: d.HardwareManufacturer,
			FirmwareVersion:      d.FirmwareVersion,
			FirmwareManufacturer: d.FirmwareManufacturer,
			Enabled:              d.Enabled,
			Properties:           props,
		})
	}
	return out
}
