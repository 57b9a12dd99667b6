// Package receiver implements the inbound dispatch router (spec
// component C9): a parsed proto.Message is routed by kind into
// registry mutations or into the pairing engine, depending on what it
// carries.
package receiver

import (
	"log/slog"
	"time"

	"github.com/fbbus/connector"
	"github.com/fbbus/connector/pairing"
	"github.com/fbbus/connector/proto"
	"github.com/fbbus/connector/registry"
)

// Pairing is the subset of the pairing engine the receiver feeds.
type Pairing interface {
	AppendDevice(d pairing.DiscoveredDevice)
	AppendRegisterStructure(kind fbbus.RegisterKind, address uint16, dataType fbbus.DataType, name string)
}

// Receiver routes parsed messages into the registry and the pairing
// engine. It never touches the transport layer directly.
type Receiver struct {
	registry *registry.Registry
	pairing  Pairing
	logger   *slog.Logger
}

// New builds a Receiver bound to reg and the pairing engine p.
func New(reg *registry.Registry, p Pairing, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{registry: reg, pairing: p, logger: logger}
}

// Handle routes one parsed message, as delivered by the transport
// scheduler's inbound handler, attributing it to the device addressed
// by senderAddr.
func (r *Receiver) Handle(msg *proto.Message, senderAddr byte) {
	switch msg.Kind {
	case proto.MessagePong:
		r.handlePong(senderAddr)
	case proto.MessageRegisterValue:
		r.handleRegisterValue(senderAddr, msg.RegisterValue)
	case proto.MessageMultiRegisterValue:
		r.handleMultiRegisterValue(senderAddr, msg.MultiRegisterValue)
	case proto.MessageRegisterStructure:
		r.handleRegisterStructure(senderAddr, msg.RegisterStructure)
	case proto.MessageDiscoverReply:
		r.handleDiscoverReply(senderAddr, msg.DiscoverReply)
	default:
		r.logger.Debug("unhandled message kind", "kind", msg.Kind)
	}
}

func (r *Receiver) handlePong(senderAddr byte) {
	dev, ok := r.registry.DeviceByAddress(senderAddr)
	if !ok {
		return
	}
	_ = r.registry.ResetCommunication(dev.ID)
}

func (r *Receiver) handleRegisterValue(senderAddr byte, m *proto.RegisterValueMessage) {
	dev, ok := r.registry.DeviceByAddress(senderAddr)
	if !ok {
		r.logger.Warn("register value from unknown device", "address", senderAddr)
		return
	}
	reg, ok := r.registry.RegisterByBank(dev.ID, m.Kind, m.Address)
	if !ok {
		r.logger.Warn("register value for unknown register", "device_id", dev.ID, "kind", m.Kind, "address", m.Address)
		return
	}
	value, ok := fbbus.DecodeValue(reg.DataType, m.Raw)
	if !ok {
		r.logger.Warn("register value could not be decoded", "register_id", reg.ID)
		return
	}
	if err := r.registry.SetActualValue(reg.ID, value); err != nil {
		r.logger.Warn("could not apply actual value", "register_id", reg.ID, "error", err)
		return
	}
	if m.Opcode == fbbus.OpcodeReportSingleRegisterValue {
		_ = r.registry.ResetReadingRegister(dev.ID, false, time.Time{})
	}
	_ = r.registry.ResetCommunication(dev.ID)
}

func (r *Receiver) handleMultiRegisterValue(senderAddr byte, m *proto.MultiRegisterValueMessage) {
	dev, ok := r.registry.DeviceByAddress(senderAddr)
	if !ok {
		r.logger.Warn("multi register value from unknown device", "address", senderAddr)
		return
	}
	for i, raw := range m.Raw {
		addr := m.Start + uint16(i)
		reg, ok := r.registry.RegisterByBank(dev.ID, m.Kind, addr)
		if !ok {
			r.logger.Warn("multi register value for unknown register", "device_id", dev.ID, "kind", m.Kind, "address", addr)
			continue
		}
		value, ok := fbbus.DecodeValue(reg.DataType, raw)
		if !ok {
			r.logger.Warn("multi register value could not be decoded", "register_id", reg.ID)
			continue
		}
		if err := r.registry.SetActualValue(reg.ID, value); err != nil {
			r.logger.Warn("could not apply actual value", "register_id", reg.ID, "error", err)
		}
	}
	_ = r.registry.ResetCommunication(dev.ID)
}

func (r *Receiver) handleRegisterStructure(senderAddr byte, m *proto.RegisterStructureMessage) {
	// During pairing the device may still be unaddressed; the pairing
	// engine matches structure replies against its own pending set by
	// (kind, address) regardless of device identity.
	r.pairing.AppendRegisterStructure(m.Kind, m.Address, m.DataType, m.Name)

	if dev, ok := r.registry.DeviceByAddress(senderAddr); ok {
		_ = r.registry.ResetCommunication(dev.ID)
	}
}

func (r *Receiver) handleDiscoverReply(_ byte, m *proto.DiscoverReplyMessage) {
	r.pairing.AppendDevice(pairing.DiscoveredDevice{
		Address:              m.CurrentAddress,
		MaxPacketLength:      int(m.MaxPacketLength),
		SerialNumber:         m.SerialNumber,
		HardwareVersion:      m.HardwareVersion,
		HardwareModel:        m.HardwareModel,
		HardwareManufacturer: m.HardwareManufacturer,
		FirmwareVersion:      m.FirmwareVersion,
		FirmwareManufacturer: m.FirmwareManufacturer,
		InputRegistersSize:   int(m.InputRegisterCount),
		OutputRegistersSize:  int(m.OutputRegisterCount),
		AttributeRegisters:   int(m.AttributeRegisterCount),
	})
}
