package publisher_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbbus/connector"
	"github.com/fbbus/connector/publisher"
	"github.com/fbbus/connector/registry"
)

type fakeSender struct {
	sent    [][]byte
	targets []byte
	fail    bool
}

func (f *fakeSender) SendUnicast(addr byte, payload []byte, waitMs int) error {
	if f.fail {
		return assert.AnError
	}
	f.targets = append(f.targets, addr)
	f.sent = append(f.sent, payload)
	return nil
}

func newPairedDevice(t *testing.T, r *registry.Registry, addr byte, state fbbus.ConnectionState) *registry.Device {
	t.Helper()
	d, err := r.CreateDevice(&registry.Device{SerialNumber: "SN", Address: addr, Enabled: true, State: state})
	require.NoError(t, err)
	_, err = r.CreateRegister(&registry.Register{DeviceID: d.ID, Kind: fbbus.RegisterKindAttribute, Address: 0, DataType: fbbus.DataTypeUChar, Name: fbbus.AttributeNameAddress})
	require.NoError(t, err)
	_, err = r.CreateRegister(&registry.Register{DeviceID: d.ID, Kind: fbbus.RegisterKindAttribute, Address: 1, DataType: fbbus.DataTypeUChar, Name: fbbus.AttributeNameState})
	require.NoError(t, err)
	return d
}

func TestProcessDeviceDisablesWithoutAddressAttribute(t *testing.T) {
	r := registry.New()
	d, err := r.CreateDevice(&registry.Device{SerialNumber: "SN", Address: 5, Enabled: true})
	require.NoError(t, err)
	sender := &fakeSender{}
	pub := publisher.New(r, sender, nil)
	pub.Tick()

	got, _ := r.DeviceByID(d.ID)
	assert.False(t, got.Enabled)
	assert.Empty(t, sender.sent)
}

func TestProcessDeviceQueriesStateWhenUnknown(t *testing.T) {
	r := registry.New()
	d := newPairedDevice(t, r, 5, fbbus.StateUnknown)
	sender := &fakeSender{}
	pub := publisher.New(r, sender, nil)
	pub.Tick()

	require.Len(t, sender.sent, 1)
	assert.Equal(t, byte(5), sender.targets[0])
	got, _ := r.DeviceByID(d.ID)
	require.NotNil(t, got.WaitingFor)
	assert.Equal(t, fbbus.OpcodeReadSingleRegisterValue, *got.WaitingFor)
}

func TestProcessDeviceGatingSkipsWhileAwaitingReply(t *testing.T) {
	r := registry.New()
	d := newPairedDevice(t, r, 5, fbbus.StateUnknown)
	sender := &fakeSender{}
	pub := publisher.New(r, sender, nil)
	pub.Tick()
	require.Len(t, sender.sent, 1)

	pub.Tick() // still inside PacketResponseDelay
	assert.Len(t, sender.sent, 1, "gated tick must not send again")

	got, _ := r.DeviceByID(d.ID)
	_ = got
}

func TestProcessDeviceEscalatesToLostThenProbes(t *testing.T) {
	r := registry.New()
	d := newPairedDevice(t, r, 7, fbbus.StateRunning)
	op := fbbus.OpcodeReadSingleRegisterValue
	require.NoError(t, r.SetWaitingFor(d.ID, &op, time.Now().Add(-time.Hour)))
	for i := 0; i < publisher.MaxTransmitAttempts-1; i++ {
		require.NoError(t, r.SetWaitingFor(d.ID, &op, time.Now().Add(-time.Hour)))
	}

	sender := &fakeSender{}
	pub := publisher.New(r, sender, nil)
	pub.Tick()

	got, _ := r.DeviceByID(d.ID)
	assert.Equal(t, fbbus.StateLost, got.State)

	pub.Tick() // already LOST: communication counters are reset
	pub.Tick() // LOST and PingDelay elapsed since the last send: probe
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []byte{byte(fbbus.V1), byte(fbbus.OpcodePing)}, sender.sent[0])
}

func TestProcessDeviceWritesOutputBeforeReading(t *testing.T) {
	r := registry.New()
	d := newPairedDevice(t, r, 5, fbbus.StateRunning)
	out, err := r.CreateRegister(&registry.Register{DeviceID: d.ID, Kind: fbbus.RegisterKindOutput, Address: 0, DataType: fbbus.DataTypeUInt})
	require.NoError(t, err)
	require.NoError(t, r.SetExpectedValue(out.ID, fbbus.IntValue(9)))

	sender := &fakeSender{}
	pub := publisher.New(r, sender, nil)
	pub.Tick()

	require.Len(t, sender.sent, 1)
	got, _ := r.RegisterByID(out.ID)
	assert.False(t, got.ExpectedPending.IsZero())
}

func TestProcessDeviceCancelsUnencodableWrite(t *testing.T) {
	r := registry.New()
	d := newPairedDevice(t, r, 5, fbbus.StateRunning)
	out, err := r.CreateRegister(&registry.Register{DeviceID: d.ID, Kind: fbbus.RegisterKindOutput, Address: 0, DataType: fbbus.DataTypeBoolean})
	require.NoError(t, err)
	require.NoError(t, r.SetExpectedValue(out.ID, fbbus.StringValue("nope")))

	sender := &fakeSender{}
	pub := publisher.New(r, sender, nil)
	pub.Tick()

	got, _ := r.RegisterByID(out.ID)
	assert.True(t, got.ExpectedValue.IsNone())
	assert.Empty(t, sender.sent)
}
