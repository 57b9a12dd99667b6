package fbbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbbus/connector"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	s := fbbus.DefaultSettings()
	require.NoError(t, s.Verify())
	assert.Equal(t, fbbus.GatewayAddress, s.Address)
	assert.Equal(t, 38400, s.BaudRate)
	assert.Equal(t, "/dev/ttyAMA0", s.Interface)
}

func TestSettingsVerifyRejectsUnassignedAddress(t *testing.T) {
	s := fbbus.DefaultSettings()
	s.Address = fbbus.UnassignedAddress
	assert.ErrorIs(t, s.Verify(), fbbus.ErrInvalidSettings)
}

func TestSettingsVerifyRejectsNonPositiveBaudRate(t *testing.T) {
	s := fbbus.DefaultSettings()
	s.BaudRate = 0
	assert.ErrorIs(t, s.Verify(), fbbus.ErrInvalidSettings)
}

func TestSettingsVerifyRejectsEmptyInterface(t *testing.T) {
	s := fbbus.DefaultSettings()
	s.Interface = ""
	assert.ErrorIs(t, s.Verify(), fbbus.ErrInvalidSettings)
}
