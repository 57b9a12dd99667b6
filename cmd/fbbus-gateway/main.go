// Command fbbus-gateway drives a Connector against a real serial link:
// parse flags into Settings, Initialize/Start the Connector, call
// Handle on a fixed tick until an interrupt arrives, then Stop.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fbbus/connector"
	"github.com/fbbus/connector/internal/logging"
)

const tickInterval = 50 * time.Millisecond

func main() {
	address := flag.Int("address", int(fbbus.GatewayAddress), "gateway bus address")
	baudRate := flag.Int("baud", 38400, "serial link baud rate")
	iface := flag.String("interface", "/dev/ttyAMA0", "serial device path")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	logFormat := flag.String("log-format", "text", "text or json")
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: *logLevel, Format: *logFormat}, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fbbus-gateway: %v\n", err)
		os.Exit(1)
	}

	settings := fbbus.Settings{
		Address:         byte(*address),
		BaudRate:        *baudRate,
		Interface:       *iface,
		ProtocolVersion: fbbus.V1,
	}

	// A real deployment supplies a store.DevicesRepository backed by
	// whatever persistence the host already has; this example starts
	// from an empty registry, so only devices that pairing adds are
	// polled.
	conn := fbbus.New(nil, logger)

	if err := conn.Initialize(settings); err != nil {
		logger.Error("invalid settings", "error", err)
		os.Exit(1)
	}
	if err := conn.Start(); err != nil {
		logger.Error("start failed", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	logger.Info("gateway running", "address", settings.Address, "interface", settings.Interface)

loop:
	for {
		select {
		case <-sigCh:
			logger.Info("shutdown signal received")
			break loop
		case <-ticker.C:
			if err := conn.Handle(); err != nil {
				logger.Warn("tick failed", "error", err)
			}
		}
	}

	if err := conn.Stop(); err != nil {
		logger.Error("stop failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}
