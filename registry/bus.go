package registry

import (
	"github.com/google/uuid"

	"github.com/fbbus/connector"
)

// EventKind tags the structural change an Event describes.
type EventKind int

const (
	EventDeviceCreated EventKind = iota
	EventDeviceUpdated
	EventRegisterCreated
	EventRegisterUpdated
	EventAttributeActualValueChanged
	EventRegisterActualValueChanged
)

// Event is the single record type every subscriber receives. Exactly one
// of Device/Register is populated depending on Kind.
type Event struct {
	Kind     EventKind
	Device   *Device
	Register *Register
}

// mutex is a channel-backed lock, the teacher's preferred shape for a
// guard that composes cleanly with select statements.
type mutex chan struct{}

func newMutex() mutex {
	m := make(mutex, 1)
	m <- struct{}{}
	return m
}

func (m mutex) Lock()   { <-m }
func (m mutex) Unlock() { m <- struct{}{} }

// Bus is a synchronous fan-out of registry events. Subscribers are
// invoked in subscription order on the goroutine that triggered the
// mutation; they must not block.
type Bus struct {
	mu   mutex
	subs []func(Event)
}

func newBus() *Bus {
	return &Bus{mu: newMutex()}
}

// Subscribe registers fn to receive every future event. There is no
// unsubscribe; the engine's subscriber set is fixed at wiring time.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish fans e out to every subscriber, in subscription order.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := make([]func(Event), len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}

// registerBankKey and registerNameKey back the register indices in
// Registry; deviceKey names the UUID key of the device tables.
type deviceKey = uuid.UUID

type registerBankKey struct {
	device uuid.UUID
	kind   fbbus.RegisterKind
	addr   uint16
}

type registerNameKey struct {
	device uuid.UUID
	name   string
}
