// internal/inverter/gateway_test.go
package inverter

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/bms-bridge/internal/rtu"
)

// fakeGateway answers each 8-byte RTU request with the next scripted reply.
// A reply may be split into segments to mimic a lossy serial gateway.
type fakeGateway struct {
	ln net.Listener

	mu      sync.Mutex
	replies [][][]byte
	accepts int
}

func newFakeGateway(t *testing.T, replies ...[][]byte) *fakeGateway {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	g := &fakeGateway{ln: ln, replies: replies}
	t.Cleanup(func() { _ = ln.Close() })
	go g.accept()
	return g
}

func (g *fakeGateway) accept() {
	for {
		conn, err := g.ln.Accept()
		if err != nil {
			return
		}
		g.mu.Lock()
		g.accepts++
		g.mu.Unlock()
		go g.serve(conn)
	}
}

func (g *fakeGateway) next() ([][]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.replies) == 0 {
		return nil, false
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r, true
}

func (g *fakeGateway) serve(conn net.Conn) {
	defer conn.Close()
	req := make([]byte, 8)
	for {
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		segs, ok := g.next()
		if !ok {
			return
		}
		for i, seg := range segs {
			if i > 0 {
				time.Sleep(20 * time.Millisecond)
			}
			if _, err := conn.Write(seg); err != nil {
				return
			}
		}
	}
}

func (g *fakeGateway) acceptCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accepts
}

func TestGarbledReplyDoesNotPoisonNextCycle(t *testing.T) {
	bad := rtu.Seal([]byte{testUnit, 3, 4, 0, 0, 0, 1})
	good := readReply(1)

	g := newFakeGateway(t,
		[][]byte{bad[:4], bad[4:]},
		[][]byte{good},
		[][]byte{good},
	)

	c := newClient(NewRTUOverTCP(g.ln.Addr().String(), 500*time.Millisecond))
	defer c.Close()

	res := c.Cycle(1, "test")
	require.Error(t, res.Err)
	assert.Equal(t, KindValidation, Kind(res.Err))

	for i := 0; i < 2; i++ {
		res = c.Cycle(1, "test")
		require.NoError(t, res.Err, "cycle %d after the garbled reply", i+2)
		assert.Equal(t, uint16(1), res.Read)
	}
	assert.Equal(t, 2, g.acceptCount(), "one reconnect after the rejected reply")
}
