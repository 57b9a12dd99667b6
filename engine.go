package fbbus

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/GoAethereal/cancel"
	"github.com/google/uuid"

	"github.com/fbbus/connector/pairing"
	"github.com/fbbus/connector/proto"
	"github.com/fbbus/connector/publisher"
	"github.com/fbbus/connector/receiver"
	"github.com/fbbus/connector/registry"
	"github.com/fbbus/connector/store"
	"github.com/fbbus/connector/transport"
)

// ErrNotInitialized signals a Start/Handle/Stop call before Initialize
// has built the registry.
var ErrNotInitialized = errors.New("fbbus: connector not initialized")

// ErrNotStarted signals a Handle call before Start has opened the link.
var ErrNotStarted = errors.New("fbbus: connector not started")

// Connector is the host-facing facade (spec component C11): it owns
// every subsystem and sequences one tick exactly the way spec.md §5
// describes (receive -> parse -> dispatch -> pairing-or-publish ->
// transport pump). The host drives it by calling Handle repeatedly;
// there is no cooperative cancellation inside a tick, only between
// them.
type Connector struct {
	repo   store.DevicesRepository
	logger *slog.Logger

	settings Settings
	registry *registry.Registry

	life cancel.Context

	link      *transport.Serial
	scheduler *transport.Scheduler
	publisher *publisher.Publisher
	pairing   *pairing.Engine
	receiver  *receiver.Receiver
}

// New builds an uninitialized Connector. repo may be nil, in which
// case Start skips seeding and the registry begins empty.
func New(repo store.DevicesRepository, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{repo: repo, logger: logger}
}

// Initialize validates settings and builds a fresh, empty registry.
// It does not touch the serial link; that happens in Start.
func (c *Connector) Initialize(settings Settings) error {
	if err := settings.Verify(); err != nil {
		return err
	}
	c.settings = settings
	c.registry = registry.New()
	return nil
}

// Start opens the serial link at the configured address/baud/
// interface, wires the publisher/pairing/receiver around it, seeds the
// registry from the injected DevicesRepository (if any), enables
// pairing and launches the scheduler's background reader. It is the
// one documented Fatal error path: a failure here leaves the
// Connector unusable until Start is retried.
func (c *Connector) Start() error {
	if c.registry == nil {
		return ErrNotInitialized
	}

	link, err := transport.OpenSerial(c.settings.Interface, c.settings.BaudRate)
	if err != nil {
		return err
	}
	c.link = link

	c.life = cancel.New()
	c.scheduler = transport.New(c.settings.Address, link, c.logger)
	c.publisher = publisher.New(c.registry, c.scheduler, c.logger)
	c.pairing = pairing.New(c.registry, c.scheduler, c.logger)
	c.receiver = receiver.New(c.registry, c.pairing, c.logger)

	if c.repo != nil {
		devices, err := c.repo.LoadDevices(c.life)
		if err != nil {
			c.link.Close()
			return fmt.Errorf("fbbus: load devices: %w", err)
		}
		if err := store.Seed(c.registry, devices); err != nil {
			c.link.Close()
			return fmt.Errorf("fbbus: seed registry: %w", err)
		}
	}

	c.pairing.Enable()
	c.scheduler.Start()
	return nil
}

// Stop cancels the lifecycle signal, stops the reader goroutine,
// releases the serial link and drives every device back to
// StateUnknown, per spec.md §5's guaranteed-release-on-stop
// requirement. Safe to call on a Connector that was never started.
func (c *Connector) Stop() error {
	if c.life != nil {
		c.life.Cancel()
	}
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	var err error
	if c.link != nil {
		err = c.link.Close()
	}
	if c.registry != nil {
		for _, d := range c.registry.Devices() {
			_ = c.registry.SetState(d.ID, StateUnknown)
		}
	}
	return err
}

// Done reports the Connector's lifecycle signal, closed once Stop has
// been called. A host loop may select on it the way the teacher's
// Serve watches ctx.Done() to know when to stop accepting work. Nil
// until Start has run.
func (c *Connector) Done() <-chan struct{} {
	if c.life == nil {
		return nil
	}
	return c.life.Done()
}

// Handle runs exactly one tick: drain whatever the scheduler's
// background reader queued since the last call (parsing and
// dispatching each frame through the receiver), then advance either
// the pairing engine or the publisher, whichever the mutual-exclusion
// rule in spec.md §5 selects for this tick.
func (c *Connector) Handle() error {
	if c.scheduler == nil {
		return ErrNotStarted
	}

	if _, err := c.scheduler.Tick(c.dispatch); err != nil {
		return err
	}

	if c.pairing.Enabled() {
		c.pairing.Tick()
	} else {
		c.publisher.Tick()
	}
	return nil
}

// HasUnfinishedTasks reports whether the Connector has outbound work
// in flight: an active pairing pass, or any device awaiting a reply.
func (c *Connector) HasUnfinishedTasks() bool {
	if c.pairing != nil && c.pairing.Enabled() {
		return true
	}
	if c.registry == nil {
		return false
	}
	for _, d := range c.registry.Devices() {
		if d.WaitingFor != nil {
			return true
		}
	}
	return false
}

// WriteProperty queues expected as the new expected value of the
// register identified by registerID. The publisher picks it up and
// submits the write on a later tick.
func (c *Connector) WriteProperty(registerID uuid.UUID, expected Value) error {
	if c.registry == nil {
		return ErrNotInitialized
	}
	return c.registry.SetExpectedValue(registerID, expected)
}

// dispatch is the scheduler's InboundHandler: it parses one payload
// and routes the resulting message through the receiver, attributing
// it to the device at senderAddr.
func (c *Connector) dispatch(payload []byte, length int, senderAddr byte) {
	msg, err := proto.Parse(payload[:length], senderAddr, c.resolveRegisterType(senderAddr))
	if err != nil {
		c.logger.Warn("dropping frame", "source", senderAddr, "error", err)
		return
	}
	c.receiver.Handle(msg, senderAddr)
}

// resolveRegisterType looks up a register's declared data type by
// bank position on the device that sent the frame, the way the
// registry itself keys registers: (device, kind, address).
func (c *Connector) resolveRegisterType(senderAddr byte) proto.RegisterTypeResolver {
	return func(kind RegisterKind, address uint16) (DataType, bool) {
		dev, ok := c.registry.DeviceByAddress(senderAddr)
		if !ok {
			return 0, false
		}
		reg, ok := c.registry.RegisterByBank(dev.ID, kind, address)
		if !ok {
			return 0, false
		}
		return reg.DataType, true
	}
}
