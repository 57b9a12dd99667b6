package receiver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbbus/connector"
	"github.com/fbbus/connector/pairing"
	"github.com/fbbus/connector/proto"
	"github.com/fbbus/connector/receiver"
	"github.com/fbbus/connector/registry"
)

type fakePairing struct {
	devices    []pairing.DiscoveredDevice
	structures int
}

func (f *fakePairing) AppendDevice(d pairing.DiscoveredDevice) {
	f.devices = append(f.devices, d)
}

func (f *fakePairing) AppendRegisterStructure(kind fbbus.RegisterKind, address uint16, dataType fbbus.DataType, name string) {
	f.structures++
}

func TestHandlePongResetsCommunication(t *testing.T) {
	r := registry.New()
	d, err := r.CreateDevice(&registry.Device{SerialNumber: "SN", Address: 5, Enabled: true, TransmitAttempts: 3})
	require.NoError(t, err)

	rec := receiver.New(r, &fakePairing{}, nil)
	rec.Handle(&proto.Message{Kind: proto.MessagePong}, 5)

	got, _ := r.DeviceByID(d.ID)
	assert.Equal(t, 0, got.TransmitAttempts)
}

func TestHandleRegisterValueAppliesDecodedValue(t *testing.T) {
	r := registry.New()
	d, err := r.CreateDevice(&registry.Device{SerialNumber: "SN", Address: 5, Enabled: true})
	require.NoError(t, err)
	reg, err := r.CreateRegister(&registry.Register{DeviceID: d.ID, Kind: fbbus.RegisterKindInput, Address: 3, DataType: fbbus.DataTypeUInt})
	require.NoError(t, err)

	raw, ok := fbbus.EncodeValue(fbbus.DataTypeUInt, fbbus.IntValue(42))
	require.True(t, ok)

	rec := receiver.New(r, &fakePairing{}, nil)
	rec.Handle(&proto.Message{
		Kind: proto.MessageRegisterValue,
		RegisterValue: &proto.RegisterValueMessage{
			Opcode:  fbbus.OpcodeReadSingleRegisterValue,
			Kind:    fbbus.RegisterKindInput,
			Address: 3,
			Raw:     raw,
		},
	}, 5)

	got, _ := r.RegisterByID(reg.ID)
	assert.Equal(t, int64(42), got.ActualValue.Int)
}

func TestHandleMultiRegisterValueAppliesAllInOrder(t *testing.T) {
	r := registry.New()
	d, err := r.CreateDevice(&registry.Device{SerialNumber: "SN", Address: 5, Enabled: true})
	require.NoError(t, err)
	r0, err := r.CreateRegister(&registry.Register{DeviceID: d.ID, Kind: fbbus.RegisterKindInput, Address: 0, DataType: fbbus.DataTypeUChar})
	require.NoError(t, err)
	r1, err := r.CreateRegister(&registry.Register{DeviceID: d.ID, Kind: fbbus.RegisterKindInput, Address: 1, DataType: fbbus.DataTypeUShort})
	require.NoError(t, err)

	raw0, _ := fbbus.EncodeValue(fbbus.DataTypeUChar, fbbus.IntValue(1))
	raw1, _ := fbbus.EncodeValue(fbbus.DataTypeUShort, fbbus.IntValue(300))

	rec := receiver.New(r, &fakePairing{}, nil)
	rec.Handle(&proto.Message{
		Kind: proto.MessageMultiRegisterValue,
		MultiRegisterValue: &proto.MultiRegisterValueMessage{
			Kind:  fbbus.RegisterKindInput,
			Start: 0,
			Raw:   [][]byte{raw0, raw1},
		},
	}, 5)

	got0, _ := r.RegisterByID(r0.ID)
	got1, _ := r.RegisterByID(r1.ID)
	assert.Equal(t, int64(1), got0.ActualValue.Int)
	assert.Equal(t, int64(300), got1.ActualValue.Int)
}

func TestHandleRegisterStructureFeedsPairing(t *testing.T) {
	r := registry.New()
	fp := &fakePairing{}
	rec := receiver.New(r, fp, nil)
	rec.Handle(&proto.Message{
		Kind: proto.MessageRegisterStructure,
		RegisterStructure: &proto.RegisterStructureMessage{
			Kind:     fbbus.RegisterKindAttribute,
			Address:  0,
			DataType: fbbus.DataTypeUChar,
			Name:     fbbus.AttributeNameAddress,
		},
	}, 255)
	assert.Equal(t, 1, fp.structures)
}

func TestHandleDiscoverReplyFeedsPairing(t *testing.T) {
	r := registry.New()
	fp := &fakePairing{}
	rec := receiver.New(r, fp, nil)
	rec.Handle(&proto.Message{
		Kind: proto.MessageDiscoverReply,
		DiscoverReply: &proto.DiscoverReplyMessage{
			CurrentAddress:     fbbus.UnassignedAddress,
			SerialNumber:       "SN-ABC",
			InputRegisterCount: 1,
		},
	}, 255)
	require.Len(t, fp.devices, 1)
	assert.Equal(t, "SN-ABC", fp.devices[0].SerialNumber)
}
