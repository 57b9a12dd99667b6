package fbbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbbus/connector"
)

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		dt   fbbus.DataType
		v    fbbus.Value
	}{
		{"uchar", fbbus.DataTypeUChar, fbbus.IntValue(42)},
		{"ushort", fbbus.DataTypeUShort, fbbus.IntValue(300)},
		{"uint", fbbus.DataTypeUInt, fbbus.IntValue(1 << 20)},
		{"float", fbbus.DataTypeFloat, fbbus.FloatValue(1.5)},
		{"bool-true", fbbus.DataTypeBoolean, fbbus.BoolValue(true)},
		{"bool-false", fbbus.DataTypeBoolean, fbbus.BoolValue(false)},
		{"string", fbbus.DataTypeString, fbbus.StringValue("hello")},
		{"button", fbbus.DataTypeButton, fbbus.ButtonValue(7)},
		{"switch", fbbus.DataTypeSwitch, fbbus.SwitchValue(1)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data, ok := fbbus.EncodeValue(c.dt, c.v)
			require.True(t, ok)
			got, ok := fbbus.DecodeValue(c.dt, data)
			require.True(t, ok)
			assert.True(t, c.v.Equal(got), "want %+v got %+v", c.v, got)
		})
	}
}

func TestEncodeValueDateTimeLayouts(t *testing.T) {
	ts := time.Date(2024, 3, 1, 13, 5, 9, 0, time.FixedZone("", 0))
	data, ok := fbbus.EncodeValue(fbbus.DataTypeDateTime, fbbus.TimeValue(ts))
	require.True(t, ok)
	got, ok := fbbus.DecodeValue(fbbus.DataTypeDateTime, data)
	require.True(t, ok)
	assert.True(t, ts.Equal(got.Time))
}

func TestEncodeValueRejectsTypeMismatch(t *testing.T) {
	_, ok := fbbus.EncodeValue(fbbus.DataTypeBoolean, fbbus.StringValue("hello"))
	assert.False(t, ok)

	_, ok = fbbus.EncodeValue(fbbus.DataTypeUInt, fbbus.StringValue("nope"))
	assert.False(t, ok)
}

func TestEncodeValueRejectsOutOfRange(t *testing.T) {
	_, ok := fbbus.EncodeValue(fbbus.DataTypeUChar, fbbus.IntValue(1000))
	assert.False(t, ok)
}

func TestDecodeValueShortBuffer(t *testing.T) {
	_, ok := fbbus.DecodeValue(fbbus.DataTypeUInt, []byte{0x01, 0x02})
	assert.False(t, ok)
}

func TestParseOpcodeUnknown(t *testing.T) {
	assert.Equal(t, fbbus.OpcodePing, fbbus.ParseOpcode(0x01))
	assert.Equal(t, fbbus.OpcodeUnknown, fbbus.ParseOpcode(0x77))
}

func TestParseRegisterKindUnknown(t *testing.T) {
	assert.Equal(t, fbbus.RegisterKindAttribute, fbbus.ParseRegisterKind(0x03))
	assert.Equal(t, fbbus.RegisterKindUnknown, fbbus.ParseRegisterKind(0x09))
}
