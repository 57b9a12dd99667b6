package fbbus

import "fmt"

// Settings configures a Connector, mirroring spec §6's defaults
// (address=254, baud_rate=38400, interface="/dev/ttyAMA0",
// protocol_version=V1).
type Settings struct {
	// Address is this gateway's own bus address. Must be GatewayAddress
	// unless a deployment deliberately reassigns it.
	Address byte
	// BaudRate is the serial link speed in bits per second.
	BaudRate int
	// Interface is the tty device path the serial link opens.
	Interface string
	// ProtocolVersion pins the wire version this gateway speaks.
	ProtocolVersion ProtocolVersion
}

// DefaultSettings returns the spec-mandated defaults.
func DefaultSettings() Settings {
	return Settings{
		Address:         GatewayAddress,
		BaudRate:        38400,
		Interface:       "/dev/ttyAMA0",
		ProtocolVersion: V1,
	}
}

// Verify validates Settings, following the teacher's Options.Verify
// convention: return the first invalid field rather than panicking.
func (s *Settings) Verify() error {
	if s.Address == UnassignedAddress {
		return fmt.Errorf("%w: address must not be unassigned (255)", ErrInvalidSettings)
	}
	if s.BaudRate <= 0 {
		return fmt.Errorf("%w: baud_rate must be positive", ErrInvalidSettings)
	}
	if s.Interface == "" {
		return fmt.Errorf("%w: interface must not be empty", ErrInvalidSettings)
	}
	if s.ProtocolVersion != V1 {
		return fmt.Errorf("%w: unsupported protocol version %d", ErrInvalidSettings, s.ProtocolVersion)
	}
	return nil
}
