package pairing

import "time"

// Attempt and timing constants from spec §4.8, carried over verbatim.
const (
	MaxDiscoveryAttempts     = 5
	MaxDeviceAttempts        = 5
	MaxTotalTransmitAttempts = 100
	DiscoveryBroadcastDelay  = 2 * time.Second
	MaxPairingDelay          = 5 * time.Second
	BroadcastWaitingDelay    = 2 * time.Second
)
