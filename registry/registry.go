package registry

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fbbus/connector"
)

var (
	// ErrDuplicateSerial signals CreateDevice called with a serial number
	// already held by another device.
	ErrDuplicateSerial = errors.New("registry: duplicate serial number")
	// ErrAddressInUse signals an address assignment that collides with
	// another enabled device.
	ErrAddressInUse = errors.New("registry: address already in use")
	// ErrDuplicateRegister signals CreateRegister called for a
	// (device, kind, address) already populated.
	ErrDuplicateRegister = errors.New("registry: duplicate register")
	// ErrNotFound signals a lookup or mutator referencing an unknown id.
	ErrNotFound = errors.New("registry: not found")
)

// Registry holds the device and register tables plus their secondary
// indices, and owns the Bus every mutation is reported through.
type Registry struct {
	mu  mutex
	bus *Bus

	devices   map[uuid.UUID]*Device
	registers map[uuid.UUID]*Register

	deviceByAddress map[byte]uuid.UUID
	deviceBySerial  map[string]uuid.UUID
	registerByBank  map[registerBankKey]uuid.UUID
	registerByName  map[registerNameKey]uuid.UUID
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{
		mu:              newMutex(),
		bus:             newBus(),
		devices:         make(map[uuid.UUID]*Device),
		registers:       make(map[uuid.UUID]*Register),
		deviceByAddress: make(map[byte]uuid.UUID),
		deviceBySerial:  make(map[string]uuid.UUID),
		registerByBank:  make(map[registerBankKey]uuid.UUID),
		registerByName:  make(map[registerNameKey]uuid.UUID),
	}
}

// Bus returns the change-event bus devices and registers report through.
func (r *Registry) Bus() *Bus { return r.bus }

// CreateDevice inserts d, assigning an ID if it's the zero UUID. Fails if
// the serial number is already registered.
func (r *Registry) CreateDevice(d *Device) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.deviceBySerial[d.SerialNumber]; exists {
		return nil, ErrDuplicateSerial
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Address != fbbus.UnassignedAddress && d.Enabled {
		if _, taken := r.deviceByAddress[d.Address]; taken {
			return nil, ErrAddressInUse
		}
	}
	r.devices[d.ID] = d
	r.deviceBySerial[d.SerialNumber] = d.ID
	if d.Address != fbbus.UnassignedAddress && d.Enabled {
		r.deviceByAddress[d.Address] = d.ID
	}
	r.bus.Publish(Event{Kind: EventDeviceCreated, Device: d})
	return d, nil
}

// CreateRegister inserts reg, assigning an ID if it's the zero UUID. Fails
// if the owning device is unknown or the (device, kind, address) triple is
// already populated.
func (r *Registry) CreateRegister(reg *Register) (*Register, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[reg.DeviceID]; !ok {
		return nil, ErrNotFound
	}
	bankKey := registerBankKey{device: reg.DeviceID, kind: reg.Kind, addr: reg.Address}
	if _, exists := r.registerByBank[bankKey]; exists {
		return nil, ErrDuplicateRegister
	}
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	r.registers[reg.ID] = reg
	r.registerByBank[bankKey] = reg.ID
	if reg.Kind == fbbus.RegisterKindAttribute && reg.Name != "" {
		r.registerByName[registerNameKey{device: reg.DeviceID, name: reg.Name}] = reg.ID
	}
	r.bus.Publish(Event{Kind: EventRegisterCreated, Register: reg})
	return reg, nil
}

// DeviceByID looks up a device by its primary key.
func (r *Registry) DeviceByID(id uuid.UUID) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	return d, ok
}

// DeviceByAddress looks up an enabled device by its current bus address.
func (r *Registry) DeviceByAddress(addr byte) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.deviceByAddress[addr]
	if !ok {
		return nil, false
	}
	return r.devices[id], true
}

// DeviceBySerial looks up a device by its unique serial number.
func (r *Registry) DeviceBySerial(serial string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.deviceBySerial[serial]
	if !ok {
		return nil, false
	}
	return r.devices[id], true
}

// RegisterByID looks up a register by its primary key.
func (r *Registry) RegisterByID(id uuid.UUID) (*Register, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registers[id]
	return reg, ok
}

// RegisterByBank looks up a register by (device, kind, address).
func (r *Registry) RegisterByBank(device uuid.UUID, kind fbbus.RegisterKind, addr uint16) (*Register, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.registerByBank[registerBankKey{device: device, kind: kind, addr: addr}]
	if !ok {
		return nil, false
	}
	return r.registers[id], true
}

// RegisterByName looks up an ATTRIBUTE register by its declared name.
func (r *Registry) RegisterByName(device uuid.UUID, name string) (*Register, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.registerByName[registerNameKey{device: device, name: name}]
	if !ok {
		return nil, false
	}
	return r.registers[id], true
}

// Devices returns a stable snapshot slice of every device, safe to range
// over even if a mutator runs concurrently with the caller's iteration.
func (r *Registry) Devices() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// RegistersByDevice returns every register owned by deviceID, across all
// three banks.
func (r *Registry) RegistersByDevice(deviceID uuid.UUID) []*Register {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Register, 0)
	for _, reg := range r.registers {
		if reg.DeviceID == deviceID {
			out = append(out, reg)
		}
	}
	return out
}

// RegistersByBank returns deviceID's registers of the given kind, sorted
// by address — the order the publisher's write scan and bulk-read
// planning both depend on.
func (r *Registry) RegistersByBank(deviceID uuid.UUID, kind fbbus.RegisterKind) []*Register {
	r.mu.Lock()
	out := make([]*Register, 0)
	for _, reg := range r.registers {
		if reg.DeviceID == deviceID && reg.Kind == kind {
			out = append(out, reg)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// SetActualValue assigns v to register's actual value. If v equals the
// pending expected value, the expected value and its pending timestamp
// are cleared atomically in the same call — the write is considered
// confirmed.
func (r *Registry) SetActualValue(registerID uuid.UUID, v fbbus.Value) error {
	r.mu.Lock()
	reg, ok := r.registers[registerID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	reg.ActualValue = v
	if v.Equal(reg.ExpectedValue) {
		reg.ExpectedValue = fbbus.NoneValue()
		reg.ExpectedPending = time.Time{}
	}
	r.mu.Unlock()

	kind := EventRegisterActualValueChanged
	if reg.Kind == fbbus.RegisterKindAttribute {
		kind = EventAttributeActualValueChanged
	}
	r.bus.Publish(Event{Kind: kind, Register: reg})
	return nil
}

// SetExpectedValue assigns v as the register's expected value. A non-none
// v clears any pending timestamp, letting the publisher pick up the write
// on its next pass.
func (r *Registry) SetExpectedValue(registerID uuid.UUID, v fbbus.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registers[registerID]
	if !ok {
		return ErrNotFound
	}
	reg.ExpectedValue = v
	if !v.IsNone() {
		reg.ExpectedPending = time.Time{}
	}
	return nil
}

// MarkExpectedPending stamps a register's expected value as submitted,
// called by the publisher right after a write goes out over the
// transport.
func (r *Registry) MarkExpectedPending(registerID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registers[registerID]
	if !ok {
		return ErrNotFound
	}
	reg.ExpectedPending = at
	return nil
}

// SetState assigns a device's connection state and emits a single update
// event.
func (r *Registry) SetState(deviceID uuid.UUID, s fbbus.ConnectionState) error {
	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	d.State = s
	r.mu.Unlock()
	r.bus.Publish(Event{Kind: EventDeviceUpdated, Device: d})
	return nil
}

// SetEnabled toggles a device's enabled flag, updating the address index
// accordingly.
func (r *Registry) SetEnabled(deviceID uuid.UUID, enabled bool) error {
	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	d.Enabled = enabled
	if enabled && d.Address != fbbus.UnassignedAddress {
		r.deviceByAddress[d.Address] = d.ID
	} else {
		delete(r.deviceByAddress, d.Address)
	}
	r.mu.Unlock()
	r.bus.Publish(Event{Kind: EventDeviceUpdated, Device: d})
	return nil
}

// AssignAddress moves a device onto a new bus address, failing if another
// enabled device already holds it.
func (r *Registry) AssignAddress(deviceID uuid.UUID, addr byte) error {
	r.mu.Lock()
	d, ok := r.devices[deviceID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if holder, taken := r.deviceByAddress[addr]; taken && holder != deviceID {
		r.mu.Unlock()
		return ErrAddressInUse
	}
	delete(r.deviceByAddress, d.Address)
	d.Address = addr
	if d.Enabled && addr != fbbus.UnassignedAddress {
		r.deviceByAddress[addr] = d.ID
	}
	r.mu.Unlock()
	r.bus.Publish(Event{Kind: EventDeviceUpdated, Device: d})
	return nil
}

// SetWaitingFor sets or clears a device's single outstanding-request slot.
// Setting a concrete opcode stamps last-packet-sent and increments the
// transmit attempt counter; clearing it (op == nil) leaves both as-is.
func (r *Registry) SetWaitingFor(deviceID uuid.UUID, op *fbbus.Opcode, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	d.WaitingFor = op
	if op != nil {
		d.LastPacketSentAt = now
		d.TransmitAttempts++
	}
	return nil
}

// ResetCommunication clears a device's outstanding-request slot and
// transmit attempt counter, the way a successful reply or a LOST
// transition does.
func (r *Registry) ResetCommunication(deviceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	d.WaitingFor = nil
	d.TransmitAttempts = 0
	return nil
}

// SetReadingRegister moves a device's bulk-read cursor onto (kind, addr).
func (r *Registry) SetReadingRegister(deviceID uuid.UUID, kind fbbus.RegisterKind, addr uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	d.ReadingKind = kind
	d.ReadingAddress = addr
	d.ReadingActive = true
	return nil
}

// ResetReadingRegister clears a device's bulk-read cursor. When
// refreshLastRead is true, last-read-timestamp is also stamped to now —
// the publisher does this once a full sweep across all banks completes.
func (r *Registry) ResetReadingRegister(deviceID uuid.UUID, refreshLastRead bool, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	d.ReadingActive = false
	d.ReadingKind = 0
	d.ReadingAddress = 0
	if refreshLastRead {
		d.LastReadAt = now
	}
	return nil
}
