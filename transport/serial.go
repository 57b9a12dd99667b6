package transport

import (
	"fmt"
	"time"

	serial "github.com/daedaluz/goserial"
)

// Serial wraps a real tty device, opened and configured for the bus
// default of 38400 baud, 8 data bits, no parity, one stop bit (8N1).
// It satisfies the link interface the Scheduler reads from and writes
// to.
type Serial struct {
	port *serial.Port
}

// OpenSerial opens path at baud, the way the teacher's config.go turns a
// Config into a connection: all the fallible setup happens here, once,
// surfaced as the single documented Fatal error path (transport
// initialization failure prevents Start()).
func OpenSerial(path string, baud int) (*Serial, error) {
	opts := serial.NewOptions().SetReadTimeout(200 * time.Millisecond)
	port, err := serial.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}
	if err := configureLink(port, baud); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: configure %s: %w", path, err)
	}
	return &Serial{port: port}, nil
}

// configureLink sets raw 8N1 mode at baud on an already-opened port.
// Only the well-known POSIX baud constants (serial.B50 .. serial.B38400)
// are addressable through the classic CBAUD field; 38400 is the bus
// default and the only rate this engine's settings type documents, so
// no BOTHER/arbitrary-baud fallback is wired.
func configureLink(port *serial.Port, baud int) error {
	rate, ok := baudRates[baud]
	if !ok {
		return fmt.Errorf("unsupported baud rate %d", baud)
	}
	if err := port.MakeRaw(); err != nil {
		return err
	}
	attrs, err := port.GetAttr()
	if err != nil {
		return err
	}
	attrs.Cflag &^= serial.CBAUD
	attrs.Cflag |= rate
	attrs.Cflag &^= serial.CSIZE
	attrs.Cflag |= serial.CS8
	attrs.Cflag &^= serial.PARENB
	attrs.Cflag &^= serial.CSTOPB
	attrs.Cflag |= serial.CREAD | serial.CLOCAL
	return port.SetAttr(serial.TCSANOW, attrs)
}

var baudRates = map[int]serial.CFlag{
	50:    serial.B50,
	110:   serial.B110,
	300:   serial.B300,
	600:   serial.B600,
	1200:  serial.B1200,
	2400:  serial.B2400,
	4800:  serial.B4800,
	9600:  serial.B9600,
	19200: serial.B19200,
	38400: serial.B38400,
}

func (s *Serial) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *Serial) Write(p []byte) (int, error) { return s.port.Write(p) }

// Close releases the underlying tty. Connector.Stop calls this as part
// of the documented guaranteed-release-on-stop resource lifecycle.
func (s *Serial) Close() error { return s.port.Close() }
