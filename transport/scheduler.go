// Package transport owns the shared serial link (spec component C6) and
// the real tty beneath it (component C10). It multiplexes unicast and
// broadcast traffic, counting outstanding transmissions the way the
// teacher's connection.go counts in-flight client requests.
package transport

import (
	"io"
	"log/slog"
	"time"

	"github.com/fbbus/connector/transport/frame"
)

// link is the minimal surface the scheduler needs from a physical
// connection; satisfied by *Serial and by an in-memory pipe in tests.
type link interface {
	io.ReadWriter
}

// InboundHandler receives one fully decoded payload, its length, and the
// bus address of the device that sent it. Called synchronously from
// Tick, never from the background reader goroutine.
type InboundHandler func(payload []byte, length int, senderAddr byte)

// mutex is a channel-backed lock, matching the teacher's guard idiom.
type mutex chan struct{}

func newMutex() mutex {
	m := make(mutex, 1)
	m <- struct{}{}
	return m
}

func (m mutex) Lock()   { <-m }
func (m mutex) Unlock() { m <- struct{}{} }

// Scheduler is the single writer to the serial link. Publisher and
// pairing both submit requests through it; it never blocks a tick for
// longer than the caller's wait_ms.
type Scheduler struct {
	address byte
	link    link
	logger  *slog.Logger

	mu          mutex
	outstanding int

	inbox  chan *frame.Frame
	errs   chan error
	done   chan struct{}
	closed bool
}

// New builds a scheduler bound to link, owning the gateway's own bus
// address (used as the frame source address on every send).
func New(address byte, l link, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		address: address,
		link:    l,
		logger:  logger,
		mu:      newMutex(),
		inbox:   make(chan *frame.Frame, 256),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the background frame reader. It is the module's only
// goroutine; every other component runs on the caller's tick goroutine.
func (s *Scheduler) Start() {
	go s.readLoop()
}

// Stop signals the reader goroutine to exit. It does not close the
// underlying link; callers that opened it (e.g. via OpenSerial) close it
// themselves.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()
}

func (s *Scheduler) readLoop() {
	dec := frame.NewDecoder(s.link)
	for {
		select {
		case <-s.done:
			return
		default:
		}
		f, err := dec.Next()
		if err != nil {
			select {
			case s.errs <- err:
			default:
			}
			if err == io.EOF {
				return
			}
			continue
		}
		if f.Destination != 0 && f.Destination != s.address {
			continue // not ours and not a broadcast
		}
		select {
		case s.inbox <- f:
		case <-s.done:
			return
		}
	}
}

// SendUnicast addresses payload to addr and writes it to the link,
// sleeping up to waitMs to give same-tick replies a chance to arrive.
func (s *Scheduler) SendUnicast(addr byte, payload []byte, waitMs int) error {
	return s.send(addr, payload, waitMs)
}

// Broadcast addresses payload to every device (destination 0) and writes
// it to the link, sleeping up to waitMs for replies.
func (s *Scheduler) Broadcast(payload []byte, waitMs int) error {
	return s.send(0, payload, waitMs)
}

func (s *Scheduler) send(dest byte, payload []byte, waitMs int) error {
	buf, err := frame.Encode(s.address, dest, payload)
	if err != nil {
		return err
	}
	if _, err := s.link.Write(buf); err != nil {
		return err
	}
	s.mu.Lock()
	s.outstanding++
	s.mu.Unlock()
	if waitMs > 0 {
		time.Sleep(time.Duration(waitMs) * time.Millisecond)
	}
	return nil
}

// Tick pumps any frames the reader goroutine has queued since the last
// call, invoking handler for each in arrival order, then returns the
// count of transmissions still awaiting a reply.
func (s *Scheduler) Tick(handler InboundHandler) (int, error) {
	select {
	case err := <-s.errs:
		s.logger.Warn("serial read error", "error", err)
	default:
	}
drain:
	for {
		select {
		case f := <-s.inbox:
			s.mu.Lock()
			if s.outstanding > 0 {
				s.outstanding--
			}
			s.mu.Unlock()
			if handler != nil {
				handler(f.Payload, len(f.Payload), f.Source)
			}
		default:
			break drain
		}
	}
	s.mu.Lock()
	out := s.outstanding
	s.mu.Unlock()
	return out, nil
}
