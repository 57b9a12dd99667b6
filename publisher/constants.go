package publisher

import "time"

// Timing and attempt constants from spec §4.7, carried over verbatim.
const (
	MaxTransmitAttempts    = 5
	PingDelay              = 15 * time.Second
	PacketResponseDelay    = 500 * time.Millisecond
	DefaultSamplingPeriod  = 10 * time.Second
	DefaultMaxPacketLength = 80
)
