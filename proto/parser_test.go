package proto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbbus/connector"
	"github.com/fbbus/connector/proto"
)

func TestParseRejectsShortPayload(t *testing.T) {
	_, err := proto.Parse(proto.BuildPing()[:1], 0, nil)
	assert.ErrorIs(t, err, fbbus.ErrLengthMismatch)
}

func TestParsePongValid(t *testing.T) {
	payload := []byte{byte(fbbus.V1), byte(fbbus.OpcodePong)}
	msg, err := proto.Parse(payload, 0x05, nil)
	require.NoError(t, err)
	assert.Equal(t, proto.MessagePong, msg.Kind)
	assert.EqualValues(t, 0x05, msg.SourceAddress)
}

func TestParseSingleRegisterValue(t *testing.T) {
	payload := []byte{
		byte(fbbus.V1), byte(fbbus.OpcodeReadSingleRegisterValue),
		byte(fbbus.RegisterKindInput),
		0x00, 0x07,
		0x2A, 0x00, 0x00, 0x00,
	}
	msg, err := proto.Parse(payload, 0x02, nil)
	require.NoError(t, err)
	require.Equal(t, proto.MessageRegisterValue, msg.Kind)
	assert.Equal(t, fbbus.RegisterKindInput, msg.RegisterValue.Kind)
	assert.EqualValues(t, 7, msg.RegisterValue.Address)
	v, ok := fbbus.DecodeValue(fbbus.DataTypeUInt, msg.RegisterValue.Raw)
	require.True(t, ok)
	assert.EqualValues(t, 42, v.Int)
}

func TestParseSingleRegisterValueWrongLength(t *testing.T) {
	payload := []byte{byte(fbbus.V1), byte(fbbus.OpcodeReadSingleRegisterValue), byte(fbbus.RegisterKindInput)}
	_, err := proto.Parse(payload, 0, nil)
	require.Error(t, err)
	var perr *fbbus.ParseError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, fbbus.ErrLengthMismatch)
}

func TestParseMultiRegisterValues(t *testing.T) {
	payload := []byte{
		byte(fbbus.V1), byte(fbbus.OpcodeReadMultipleRegistersValues),
		byte(fbbus.RegisterKindInput),
		0x00, 0x01,
		0x02, // count
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
	}
	resolve := func(kind fbbus.RegisterKind, addr uint16) (fbbus.DataType, bool) {
		return fbbus.DataTypeUInt, true
	}
	msg, err := proto.Parse(payload, 0x03, resolve)
	require.NoError(t, err)
	require.Equal(t, proto.MessageMultiRegisterValue, msg.Kind)
	require.Len(t, msg.MultiRegisterValue.Raw, 2)
	v0, _ := fbbus.DecodeValue(fbbus.DataTypeUInt, msg.MultiRegisterValue.Raw[0])
	v1, _ := fbbus.DecodeValue(fbbus.DataTypeUInt, msg.MultiRegisterValue.Raw[1])
	assert.EqualValues(t, 1, v0.Int)
	assert.EqualValues(t, 2, v1.Int)
}

func TestParseMultiRegisterValuesUnknownRegisterAbortsWhole(t *testing.T) {
	payload := []byte{
		byte(fbbus.V1), byte(fbbus.OpcodeReadMultipleRegistersValues),
		byte(fbbus.RegisterKindInput),
		0x00, 0x01,
		0x02,
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
	}
	calls := 0
	resolve := func(kind fbbus.RegisterKind, addr uint16) (fbbus.DataType, bool) {
		calls++
		if addr == 1 {
			return fbbus.DataTypeUInt, true
		}
		return fbbus.DataTypeUnknown, false
	}
	msg, err := proto.Parse(payload, 0, resolve)
	require.Nil(t, msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, fbbus.ErrUnknownRegister)
}

func TestParseMultiRegisterValuesTextUnsupported(t *testing.T) {
	payload := []byte{
		byte(fbbus.V1), byte(fbbus.OpcodeReadMultipleRegistersValues),
		byte(fbbus.RegisterKindInput),
		0x00, 0x01,
		0x01,
		0x01, 0x00, 0x00, 0x00,
	}
	resolve := func(kind fbbus.RegisterKind, addr uint16) (fbbus.DataType, bool) {
		return fbbus.DataTypeString, true
	}
	_, err := proto.Parse(payload, 0, resolve)
	require.Error(t, err)
	assert.ErrorIs(t, err, fbbus.ErrUnsupportedDataType)
}

func TestParseRegisterStructureInput(t *testing.T) {
	payload := []byte{
		byte(fbbus.V1), byte(fbbus.OpcodeReadSingleRegisterStructure),
		byte(fbbus.RegisterKindInput),
		0x00, 0x03,
		byte(fbbus.DataTypeUInt),
	}
	msg, err := proto.Parse(payload, 0, nil)
	require.NoError(t, err)
	require.Equal(t, proto.MessageRegisterStructure, msg.Kind)
	assert.Equal(t, fbbus.DataTypeUInt, msg.RegisterStructure.DataType)
	assert.Empty(t, msg.RegisterStructure.Name)
}

func TestParseRegisterStructureAttribute(t *testing.T) {
	name := "state"
	payload := []byte{
		byte(fbbus.V1), byte(fbbus.OpcodeReadSingleRegisterStructure),
		byte(fbbus.RegisterKindAttribute),
		0x00, 0x00,
		byte(fbbus.DataTypeUChar),
		0xFF, 0x00, // settable
		0xFF, 0x00, // queryable
		byte(len(name)),
	}
	payload = append(payload, []byte(name)...)
	msg, err := proto.Parse(payload, 0, nil)
	require.NoError(t, err)
	require.Equal(t, proto.MessageRegisterStructure, msg.Kind)
	assert.True(t, msg.RegisterStructure.Settable)
	assert.True(t, msg.RegisterStructure.Queryable)
	assert.Equal(t, name, msg.RegisterStructure.Name)
}

func TestParseRegisterStructureAttributeNotSettable(t *testing.T) {
	name := "humidity"
	payload := []byte{
		byte(fbbus.V1), byte(fbbus.OpcodeReadSingleRegisterStructure),
		byte(fbbus.RegisterKindAttribute),
		0x00, 0x01,
		byte(fbbus.DataTypeFloat),
		0x00, 0x00,
		0xFF, 0x00,
		byte(len(name)),
	}
	payload = append(payload, []byte(name)...)
	msg, err := proto.Parse(payload, 0, nil)
	require.NoError(t, err)
	assert.False(t, msg.RegisterStructure.Settable)
	assert.True(t, msg.RegisterStructure.Queryable)
}

func discoverReplyFixture() []byte {
	fields := []string{"SN001", "1.0", "ModelX", "Acme", "2.0", "Acme"}
	payload := []byte{byte(fbbus.V1), byte(fbbus.OpcodeDiscover), 0x0A, 0x40}
	for _, f := range fields {
		payload = append(payload, byte(len(f)))
		payload = append(payload, []byte(f)...)
	}
	payload = append(payload, 0x02, 0x01, 0x03)
	return payload
}

func TestParseDiscoverReply(t *testing.T) {
	payload := discoverReplyFixture()
	msg, err := proto.Parse(payload, 0, nil)
	require.NoError(t, err)
	require.Equal(t, proto.MessageDiscoverReply, msg.Kind)
	r := msg.DiscoverReply
	assert.EqualValues(t, 0x0A, r.CurrentAddress)
	assert.EqualValues(t, 0x40, r.MaxPacketLength)
	assert.Equal(t, "SN001", r.SerialNumber)
	assert.Equal(t, "1.0", r.HardwareVersion)
	assert.Equal(t, "ModelX", r.HardwareModel)
	assert.Equal(t, "Acme", r.HardwareManufacturer)
	assert.Equal(t, "2.0", r.FirmwareVersion)
	assert.Equal(t, "Acme", r.FirmwareManufacturer)
	assert.EqualValues(t, 2, r.InputRegisterCount)
	assert.EqualValues(t, 1, r.OutputRegisterCount)
	assert.EqualValues(t, 3, r.AttributeRegisterCount)
}

func TestParseDiscoverReplyTooShort(t *testing.T) {
	payload := []byte{byte(fbbus.V1), byte(fbbus.OpcodeDiscover), 0x0A, 0x40, 0x00}
	_, err := proto.Parse(payload, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fbbus.ErrLengthMismatch)
}

func TestValidateRejectsBadVersion(t *testing.T) {
	err := proto.Validate([]byte{0x02, byte(fbbus.OpcodePing)})
	assert.ErrorIs(t, err, fbbus.ErrInvalidVersion)
}

func TestValidateRejectsUnknownOpcode(t *testing.T) {
	err := proto.Validate([]byte{byte(fbbus.V1), 0x77})
	assert.ErrorIs(t, err, fbbus.ErrUnknownOpcode)
}

func TestParseRejectsUnsupportedOpcode(t *testing.T) {
	payload := []byte{byte(fbbus.V1), byte(fbbus.OpcodeException)}
	_, err := proto.Parse(payload, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fbbus.ErrUnknownOpcode)
}
