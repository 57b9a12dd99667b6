// Package pairing implements the discovery/pairing state machine (spec
// component C8): broadcasting DISCOVER, walking one discovered device
// at a time through register-structure discovery, and finalizing it
// into the registry with either a fresh address or a RUNNING state.
package pairing

import (
	"log/slog"
	"time"

	"github.com/fbbus/connector"
	"github.com/fbbus/connector/proto"
	"github.com/fbbus/connector/registry"
)

// Sender is the transport surface pairing submits requests through.
// Unlike the publisher, pairing also broadcasts.
type Sender interface {
	SendUnicast(addr byte, payload []byte, waitMs int) error
	Broadcast(payload []byte, waitMs int) error
}

// DiscoveredDevice is one device found during the broadcast phase,
// still outside the registry's own tables until it's finalized. The
// receiver constructs one of these per DISCOVER reply.
type DiscoveredDevice struct {
	Address              byte
	MaxPacketLength      int
	SerialNumber         string
	HardwareVersion      string
	HardwareModel        string
	HardwareManufacturer string
	FirmwareVersion      string
	FirmwareManufacturer string
	InputRegistersSize   int
	OutputRegistersSize  int
	AttributeRegisters   int
}

// pendingRegister tracks one register of the candidate under
// discovery; DataType stays Unknown until a structure reply fills it
// in.
type pendingRegister struct {
	kind     fbbus.RegisterKind
	address  uint16
	dataType fbbus.DataType
	name     string
}

// Engine drives the three-phase pairing state machine described in
// spec §4.8. A single Engine instance owns the whole process; only one
// candidate device is ever worked at a time.
type Engine struct {
	registry *registry.Registry
	sender   Sender
	logger   *slog.Logger
	now      func() time.Time

	enabled bool

	discovered     []*DiscoveredDevice
	discoveredSeen map[string]bool

	current          *DiscoveredDevice
	currentRegisters []*pendingRegister

	broadcastFinished bool
	lastSend          time.Time
	waitingForReply   bool

	discoveryAttempts int
	deviceAttempts    int
	totalAttempts     int
}

// New builds a disabled Engine. Call Enable to start a discovery pass.
func New(reg *registry.Registry, sender Sender, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: reg, sender: sender, logger: logger, now: time.Now, discoveredSeen: map[string]bool{}}
}

// Enabled reports whether pairing is currently running. The top-level
// tick uses this to decide whether the publisher should be skipped.
func (e *Engine) Enabled() bool { return e.enabled }

// Enable resets all pairing state and starts a fresh broadcast phase.
func (e *Engine) Enable() {
	e.enabled = true
	e.resetPointers()
	e.logger.Debug("pairing mode activated")
}

// Disable stops pairing and clears all in-flight candidate state.
func (e *Engine) Disable() {
	e.enabled = false
	e.resetPointers()
	e.logger.Debug("pairing mode deactivated")
}

func (e *Engine) resetPointers() {
	e.discovered = nil
	e.discoveredSeen = map[string]bool{}
	e.current = nil
	e.currentRegisters = nil
	e.broadcastFinished = false
	e.waitingForReply = false
	e.discoveryAttempts = 0
	e.deviceAttempts = 0
	e.totalAttempts = 0
	e.lastSend = time.Time{}
}

// AppendDevice records a DISCOVER reply. Duplicates by serial number
// are ignored, matching the broadcast phase's accumulation rule.
func (e *Engine) AppendDevice(c DiscoveredDevice) {
	if e.discoveredSeen[c.SerialNumber] {
		return
	}
	e.discoveredSeen[c.SerialNumber] = true
	cp := c
	e.discovered = append(e.discovered, &cp)
	e.logger.Debug("discovered device", "serial", c.SerialNumber, "address", c.Address)
}

// AppendRegisterStructure feeds a READ_SINGLE_REGISTER_STRUCTURE reply
// into the current candidate's discovery set. name is only meaningful
// for ATTRIBUTE registers; settable/queryable are derived later from
// the register's kind (see registry.Registry.Snapshot) rather than
// stored here.
func (e *Engine) AppendRegisterStructure(kind fbbus.RegisterKind, address uint16, dataType fbbus.DataType, name string) {
	if e.current == nil {
		return
	}
	for _, r := range e.currentRegisters {
		if r.kind == kind && r.address == address {
			r.dataType = dataType
			r.name = name
			e.waitingForReply = false
			return
		}
	}
}

// Tick advances the pairing state machine by at most one action, per
// spec §4.8.
func (e *Engine) Tick() {
	if !e.enabled {
		return
	}

	if e.totalAttempts >= MaxTotalTransmitAttempts {
		e.logger.Warn("pairing exceeded total transmit attempts, disabling")
		e.Disable()
		return
	}

	if !e.broadcastFinished {
		e.tickBroadcastPhase()
		return
	}

	if e.current != nil {
		e.tickDevicePhase()
	}
}

func (e *Engine) tickBroadcastPhase() {
	now := e.now()
	if e.discoveryAttempts < MaxDiscoveryAttempts {
		if e.lastSend.IsZero() || now.Sub(e.lastSend) >= DiscoveryBroadcastDelay {
			e.discoveryAttempts++
			e.totalAttempts++
			e.lastSend = now
			e.logger.Debug("broadcasting discover")
			if err := e.sender.Broadcast(proto.BuildDiscover(), int(BroadcastWaitingDelay/time.Millisecond)); err != nil {
				e.logger.Warn("discover broadcast failed", "error", err)
			}
		}
		return
	}

	e.broadcastFinished = true
	e.processNextCandidate()
}

// processNextCandidate pops one discovered device and either abandons
// pairing (queue empty) or prepares it for register discovery.
func (e *Engine) processNextCandidate() {
	e.deviceAttempts = 0
	e.totalAttempts = 0
	e.current = nil
	e.currentRegisters = nil
	e.waitingForReply = false

	if len(e.discovered) == 0 {
		e.logger.Info("no device left to pair, disabling pairing")
		e.Disable()
		return
	}

	next := e.discovered[0]
	e.discovered = e.discovered[1:]

	existing, found := e.registry.DeviceBySerial(next.SerialNumber)
	if !found {
		if next.Address != fbbus.UnassignedAddress {
			if conflict, ok := e.registry.DeviceByAddress(next.Address); ok && conflict.SerialNumber != next.SerialNumber {
				e.logger.Warn("discovered device address is already assigned, skipping", "serial", next.SerialNumber, "address", next.Address)
				e.processNextCandidate()
				return
			}
		}
	} else {
		if next.Address != fbbus.UnassignedAddress {
			if conflict, ok := e.registry.DeviceByAddress(next.Address); ok && conflict.ID != existing.ID {
				e.logger.Warn("device address is assigned to another device, skipping", "serial", next.SerialNumber, "address", next.Address)
				e.processNextCandidate()
				return
			}
		}
		_ = e.registry.SetState(existing.ID, fbbus.StateInit)
	}

	e.current = next
	e.currentRegisters = buildPendingRegisters(next)
	e.logger.Debug("prepared device for pairing", "serial", next.SerialNumber, "address", next.Address)
}

func buildPendingRegisters(c *DiscoveredDevice) []*pendingRegister {
	var regs []*pendingRegister
	for i := 0; i < c.InputRegistersSize; i++ {
		regs = append(regs, &pendingRegister{kind: fbbus.RegisterKindInput, address: uint16(i), dataType: fbbus.DataTypeUnknown})
	}
	for i := 0; i < c.OutputRegistersSize; i++ {
		regs = append(regs, &pendingRegister{kind: fbbus.RegisterKindOutput, address: uint16(i), dataType: fbbus.DataTypeUnknown})
	}
	for i := 0; i < c.AttributeRegisters; i++ {
		regs = append(regs, &pendingRegister{kind: fbbus.RegisterKindAttribute, address: uint16(i), dataType: fbbus.DataTypeUnknown})
	}
	return regs
}

func (e *Engine) tickDevicePhase() {
	now := e.now()
	if e.deviceAttempts >= MaxDeviceAttempts || now.Sub(e.lastSend) >= MaxPairingDelay {
		e.logger.Warn("pairing could not be finished, moving to next device", "serial", e.current.SerialNumber)
		e.processNextCandidate()
		return
	}

	if e.waitingForReply {
		return
	}

	pending := e.nextUnknownRegister()
	if pending != nil {
		e.sendRegisterStructureRequest(pending)
		return
	}

	e.finalizeCurrent()
}

func (e *Engine) nextUnknownRegister() *pendingRegister {
	for _, r := range e.currentRegisters {
		if r.dataType == fbbus.DataTypeUnknown {
			return r
		}
	}
	return nil
}

func (e *Engine) sendRegisterStructureRequest(r *pendingRegister) {
	serial := ""
	if e.current.Address == fbbus.UnassignedAddress {
		serial = e.current.SerialNumber
	}
	payload, err := proto.BuildReadSingleRegisterStructure(r.kind, r.address, serial)
	if err != nil {
		e.logger.Warn("could not build register structure request", "error", err)
		e.processNextCandidate()
		return
	}

	e.deviceAttempts++
	e.totalAttempts++
	e.lastSend = e.now()
	e.waitingForReply = true

	if e.current.Address == fbbus.UnassignedAddress {
		_ = e.sender.Broadcast(payload, int(BroadcastWaitingDelay/time.Millisecond))
	} else {
		_ = e.sender.SendUnicast(e.current.Address, payload, 0)
	}
}

// finalizeCurrent persists the device and its registers, then either
// assigns it a fresh bus address or flips it into RUNNING state,
// matching the two branches of spec §4.8's finalize phase.
func (e *Engine) finalizeCurrent() {
	dev, regs, err := e.persistCurrent()
	if err != nil {
		e.logger.Warn("could not persist discovered device", "serial", e.current.SerialNumber, "error", err)
		e.processNextCandidate()
		return
	}

	if e.current.Address == fbbus.UnassignedAddress {
		e.assignFreshAddress(dev, regs)
	} else {
		e.activateDevice(dev, regs)
	}

	e.processNextCandidate()
}

func (e *Engine) persistCurrent() (*registry.Device, []*registry.Register, error) {
	c := e.current

	dev, found := e.registry.DeviceBySerial(c.SerialNumber)
	if !found {
		created, err := e.registry.CreateDevice(&registry.Device{
			SerialNumber:         c.SerialNumber,
			Address:              c.Address,
			Enabled:              true,
			HardwareVersion:      c.HardwareVersion,
			HardwareModel:        c.HardwareModel,
			HardwareManufacturer: c.HardwareManufacturer,
			FirmwareVersion:      c.FirmwareVersion,
			FirmwareManufacturer: c.FirmwareManufacturer,
			State:                fbbus.StateInit,
		})
		if err != nil {
			return nil, nil, err
		}
		dev = created
	}

	var created []*registry.Register
	for _, r := range e.currentRegisters {
		if existing, ok := e.registry.RegisterByBank(dev.ID, r.kind, r.address); ok {
			created = append(created, existing)
			continue
		}
		name := r.name
		if r.kind != fbbus.RegisterKindAttribute {
			name = ""
		}
		reg, err := e.registry.CreateRegister(&registry.Register{
			DeviceID: dev.ID,
			Kind:     r.kind,
			Address:  r.address,
			DataType: r.dataType,
			Name:     name,
		})
		if err != nil {
			return nil, nil, err
		}
		created = append(created, reg)
	}
	return dev, created, nil
}

func (e *Engine) assignFreshAddress(dev *registry.Device, regs []*registry.Register) {
	addrReg := findAttribute(regs, fbbus.AttributeNameAddress)
	if addrReg == nil {
		e.logger.Warn("register carrying device address could not be found, pairing abandoned", "serial", dev.SerialNumber)
		return
	}

	freeAddr, ok := e.freeAddress()
	if !ok {
		e.logger.Warn("no free bus address available, pairing abandoned", "serial", dev.SerialNumber)
		return
	}

	payload, err := proto.BuildWriteSingleRegisterValue(addrReg.Kind, addrReg.Address, addrReg.DataType, fbbus.IntValue(int64(freeAddr)), dev.SerialNumber)
	if err != nil {
		e.logger.Warn("new device address could not be encoded, pairing abandoned", "serial", dev.SerialNumber, "error", err)
		return
	}

	_ = e.sender.Broadcast(payload, int(BroadcastWaitingDelay/time.Millisecond))
	e.logger.Debug("assigned new device address", "serial", dev.SerialNumber, "address", freeAddr)
}

func (e *Engine) activateDevice(dev *registry.Device, regs []*registry.Register) {
	stateReg := findAttribute(regs, fbbus.AttributeNameState)
	if stateReg == nil {
		e.logger.Warn("register carrying device state could not be found, pairing abandoned", "serial", dev.SerialNumber)
		return
	}

	payload, err := proto.BuildWriteStateAttribute(stateReg.Address, fbbus.StateRunning, "")
	if err != nil {
		e.logger.Warn("state write could not be encoded", "serial", dev.SerialNumber, "error", err)
		return
	}
	if err := e.sender.SendUnicast(dev.Address, payload, 0); err != nil {
		e.logger.Warn("state write submission failed", "serial", dev.SerialNumber, "error", err)
	}
}

func findAttribute(regs []*registry.Register, name string) *registry.Register {
	for _, r := range regs {
		if r.Kind == fbbus.RegisterKindAttribute && r.Name == name {
			return r
		}
	}
	return nil
}

// freeAddress scans the registry for the lowest address in
// 1..=MaxDeviceAddress not already held by a known device.
func (e *Engine) freeAddress() (byte, bool) {
	used := make(map[byte]bool)
	for _, d := range e.registry.Devices() {
		used[d.Address] = true
	}
	for a := fbbus.MinDeviceAddress; a <= fbbus.MaxDeviceAddress; a++ {
		if !used[byte(a)] {
			return byte(a), true
		}
	}
	return 0, false
}
