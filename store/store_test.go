package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbbus/connector"
	"github.com/fbbus/connector/registry"
	"github.com/fbbus/connector/store"
)

func TestSeedCreatesDeviceAndChannelRegisters(t *testing.T) {
	r := registry.New()
	err := store.Seed(r, []store.StoredDevice{
		{
			SerialNumber: "SN-1",
			Enabled:      true,
			Properties: []store.StoredProperty{
				{Identifier: "address", DataType: fbbus.DataTypeUChar, Value: fbbus.IntValue(7)},
				{Identifier: "state", DataType: fbbus.DataTypeUChar, Settable: true, Queryable: true, Value: fbbus.IntValue(2)},
				{Identifier: "input_01", DataType: fbbus.DataTypeUInt, Queryable: true, Value: fbbus.IntValue(42)},
				{Identifier: "output_01", DataType: fbbus.DataTypeBoolean, Settable: true, Queryable: true, Value: fbbus.BoolValue(true)},
			},
		},
	})
	require.NoError(t, err)

	dev, found := r.DeviceByAddress(7)
	require.True(t, found)
	assert.Equal(t, "SN-1", dev.SerialNumber)

	addrReg, found := r.RegisterByName(dev.ID, fbbus.AttributeNameAddress)
	require.True(t, found)
	assert.Equal(t, int64(7), addrReg.ActualValue.Int)

	input, found := r.RegisterByBank(dev.ID, fbbus.RegisterKindInput, 0)
	require.True(t, found)
	assert.Equal(t, int64(42), input.ActualValue.Int)

	output, found := r.RegisterByBank(dev.ID, fbbus.RegisterKindOutput, 0)
	require.True(t, found)
	assert.True(t, output.ActualValue.Bool)
}

func TestSeedDeviceWithoutAddressStaysUnassigned(t *testing.T) {
	r := registry.New()
	err := store.Seed(r, []store.StoredDevice{
		{SerialNumber: "SN-2", Enabled: true},
	})
	require.NoError(t, err)

	dev, found := r.DeviceBySerial("SN-2")
	require.True(t, found)
	assert.Equal(t, fbbus.UnassignedAddress, dev.Address)
}
