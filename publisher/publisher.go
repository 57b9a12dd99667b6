// Package publisher implements the per-device polling and write state
// machine (spec component C7): for every device, at most one action
// fires per tick, in a fixed priority order.
package publisher

import (
	"log/slog"
	"time"

	"github.com/fbbus/connector"
	"github.com/fbbus/connector/proto"
	"github.com/fbbus/connector/registry"
)

// Sender is the transport surface the publisher submits requests
// through. Only unicast is used — the publisher never addresses a
// device it doesn't already have a bus address for.
type Sender interface {
	SendUnicast(addr byte, payload []byte, waitMs int) error
}

// Publisher drives one tick of polling/writing across every device in
// the registry.
type Publisher struct {
	registry *registry.Registry
	sender   Sender
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a Publisher bound to reg and sender.
func New(reg *registry.Registry, sender Sender, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{registry: reg, sender: sender, logger: logger, now: time.Now}
}

// Tick processes every device once, each independently and in at most
// one action, per spec §4.7's priority checklist.
func (p *Publisher) Tick() {
	for _, d := range p.registry.Devices() {
		if !d.Enabled {
			continue
		}
		p.processDevice(d)
	}
}

func (p *Publisher) processDevice(d *registry.Device) {
	now := p.now()

	addrReg, ok := p.registry.RegisterByName(d.ID, fbbus.AttributeNameAddress)
	if !ok {
		p.logger.Warn("device has no address attribute, disabling", "device_id", d.ID, "serial", d.SerialNumber)
		_ = p.registry.SetEnabled(d.ID, false)
		return
	}

	if d.TransmitAttempts >= MaxTransmitAttempts {
		if d.State != fbbus.StateLost {
			p.logger.Warn("device exceeded transmit attempts, marking lost", "device_id", d.ID)
			_ = p.registry.SetState(d.ID, fbbus.StateLost)
		} else {
			_ = p.registry.ResetCommunication(d.ID)
		}
		return
	}

	if d.State == fbbus.StateLost {
		if now.Sub(d.LastPacketSentAt) >= PingDelay {
			p.send(d, fbbus.OpcodePing, proto.BuildPing())
		}
		return
	}

	if d.WaitingFor != nil && now.Sub(d.LastPacketSentAt) < PacketResponseDelay {
		return
	}

	if d.State == fbbus.StateUnknown {
		stateReg, ok := p.registry.RegisterByName(d.ID, fbbus.AttributeNameState)
		if !ok {
			p.logger.Warn("device has no state attribute", "device_id", d.ID)
			return
		}
		payload := proto.BuildReadSingleRegisterValue(fbbus.RegisterKindAttribute, stateReg.Address)
		p.send(d, fbbus.OpcodeReadSingleRegisterValue, payload)
		return
	}

	if d.State != fbbus.StateRunning {
		return
	}

	if p.tryWrite(d) {
		return
	}
	p.tryRead(d)
}

func (p *Publisher) tryWrite(d *registry.Device) bool {
	for _, kind := range []fbbus.RegisterKind{fbbus.RegisterKindOutput, fbbus.RegisterKindAttribute} {
		for _, reg := range p.registry.RegistersByBank(d.ID, kind) {
			if reg.ExpectedValue.IsNone() || !reg.ExpectedPending.IsZero() {
				continue
			}
			payload, err := proto.BuildWriteSingleRegisterValue(reg.Kind, reg.Address, reg.DataType, reg.ExpectedValue, "")
			if err != nil {
				p.logger.Warn("expected value not encodable, canceling write", "register_id", reg.ID, "error", err)
				_ = p.registry.SetExpectedValue(reg.ID, fbbus.NoneValue())
				return true
			}
			now := p.now()
			if sendErr := p.sender.SendUnicast(d.Address, payload, 0); sendErr != nil {
				p.logger.Warn("write submission failed", "device_id", d.ID, "error", sendErr)
				_ = p.registry.ResetCommunication(d.ID)
				continue
			}
			_ = p.registry.MarkExpectedPending(reg.ID, now)
			op := fbbus.OpcodeWriteSingleRegisterValue
			_ = p.registry.SetWaitingFor(d.ID, &op, now)
			return true
		}
	}
	return false
}

func (p *Publisher) tryRead(d *registry.Device) {
	now := p.now()
	if now.Sub(d.LastReadAt) < p.samplingPeriod(d) {
		return
	}

	kind, addr, active := d.ReadingKind, d.ReadingAddress, d.ReadingActive
	if !active {
		kind, addr = fbbus.RegisterKindInput, 0
	}

	for {
		bank := p.registry.RegistersByBank(d.ID, kind)
		if len(bank) == 0 || int(addr) >= len(bank) {
			next, ok := nextReadableBank(kind)
			if !ok {
				_ = p.registry.ResetReadingRegister(d.ID, true, now)
				return
			}
			kind, addr = next, 0
			continue
		}

		maxReadable := p.maxReadable(d)
		count := len(bank) - int(addr)
		if count > maxReadable {
			count = maxReadable
		}
		if count <= 0 {
			_ = p.registry.SetReadingRegister(d.ID, kind, addr)
			return
		}
		payload := proto.BuildReadMultipleRegistersValues(kind, addr, uint16(count))
		_ = p.registry.SetReadingRegister(d.ID, kind, addr+uint16(count))
		p.send(d, fbbus.OpcodeReadMultipleRegistersValues, payload)
		return
	}
}

// nextReadableBank advances INPUT -> OUTPUT -> exhausted. ATTRIBUTE is
// never bulk-read.
func nextReadableBank(kind fbbus.RegisterKind) (fbbus.RegisterKind, bool) {
	switch kind {
	case fbbus.RegisterKindInput:
		return fbbus.RegisterKindOutput, true
	default:
		return 0, false
	}
}

func (p *Publisher) samplingPeriod(d *registry.Device) time.Duration {
	if d.SamplingPeriod > 0 {
		return d.SamplingPeriod
	}
	return DefaultSamplingPeriod
}

// maxReadable implements "read at most (max_packet_length - 8) / 4
// registers per packet", max_packet_length coming from the device's own
// "max_packet_length" attribute, defaulting to 80.
func (p *Publisher) maxReadable(d *registry.Device) int {
	maxPacketLength := DefaultMaxPacketLength
	if reg, ok := p.registry.RegisterByName(d.ID, fbbus.AttributeNameMaxPacketLength); ok {
		if reg.ActualValue.Kind == fbbus.ValueInt {
			maxPacketLength = int(reg.ActualValue.Int)
		}
	}
	n := (maxPacketLength - 8) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func (p *Publisher) send(d *registry.Device, expect fbbus.Opcode, payload []byte) {
	now := p.now()
	if err := p.sender.SendUnicast(d.Address, payload, 0); err != nil {
		p.logger.Warn("transport submission failed", "device_id", d.ID, "error", err)
		_ = p.registry.ResetCommunication(d.ID)
		return
	}
	_ = p.registry.SetWaitingFor(d.ID, &expect, now)
}
