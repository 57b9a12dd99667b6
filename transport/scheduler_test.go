package transport_test

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbbus/connector/transport"
	"github.com/fbbus/connector/transport/frame"
)

// pipeLink is an in-memory link implementing the same Read/Write surface
// as the real serial adapter, letting the scheduler be exercised without
// a tty.
type pipeLink struct {
	mu  sync.Mutex
	out bytes.Buffer
	in  *io.PipeReader
	inW *io.PipeWriter
}

func newPipeLink() *pipeLink {
	r, w := io.Pipe()
	return &pipeLink{in: r, inW: w}
}

func (p *pipeLink) Read(b []byte) (int, error) { return p.in.Read(b) }
func (p *pipeLink) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *pipeLink) lastWrite() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.out.Bytes()...)
}

func (p *pipeLink) deliver(src, dest byte, payload []byte) {
	buf, _ := frame.Encode(src, dest, payload)
	go p.inW.Write(buf)
}

func TestSchedulerSendUnicastWritesFramedPayload(t *testing.T) {
	link := newPipeLink()
	s := transport.New(254, link, nil)
	require.NoError(t, s.SendUnicast(5, []byte{0x01, 0x02}, 0))
	assert.NotEmpty(t, link.lastWrite())
}

func TestSchedulerTickDeliversInboundFrames(t *testing.T) {
	link := newPipeLink()
	s := transport.New(254, link, nil)
	s.Start()
	defer s.Stop()

	require.NoError(t, s.SendUnicast(5, []byte{0x01, 0x01}, 0))
	link.deliver(5, 254, []byte{0x01, 0x02})

	var got []byte
	var senderAddr byte
	require.Eventually(t, func() bool {
		n, err := s.Tick(func(payload []byte, length int, addr byte) {
			got = payload
			senderAddr = addr
		})
		return err == nil && n == 0 && got != nil
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []byte{0x01, 0x02}, got)
	assert.EqualValues(t, 5, senderAddr)
}

func TestSchedulerIgnoresFramesAddressedElsewhere(t *testing.T) {
	link := newPipeLink()
	s := transport.New(254, link, nil)
	s.Start()
	defer s.Stop()

	link.deliver(9, 7, []byte{0xFF})
	time.Sleep(20 * time.Millisecond)
	n, err := s.Tick(func(payload []byte, length int, addr byte) {
		t.Fatalf("unexpected delivery for a frame not addressed to us")
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
