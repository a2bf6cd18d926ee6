package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/livepoll/pollstream/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsServer is a minimal broadcast endpoint for adapter tests.
type wsServer struct {
	srv   *httptest.Server
	dials atomic.Int32

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.dials.Add(1)
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) write(t *testing.T, raw string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns)
	conn := s.conns[len(s.conns)-1]
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (s *wsServer) closeLatest(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns)
	_ = s.conns[len(s.conns)-1].Close()
}

func testConfig(url string) Config {
	return Config{
		URL:            url,
		ReconnectDelay: 50 * time.Millisecond,
		PingInterval:   time.Minute,
		PongWait:       time.Minute,
	}
}

func TestAdapter_DeliversEnvelopesInOrder(t *testing.T) {
	server := newWSServer(t)
	a := New(testConfig(server.url()), zap.NewNop())
	defer a.Disconnect()

	var mu sync.Mutex
	var got []string
	a.OnMessage(func(env events.Envelope) {
		mu.Lock()
		got = append(got, env.Type)
		mu.Unlock()
	})

	require.NoError(t, a.Connect(context.Background()))
	server.write(t, `{"type":"connected"}`)
	server.write(t, `{"type":"poll_created","data":{}}`)
	server.write(t, `{"type":"poll_voted","data":{}}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"connected", "poll_created", "poll_voted"}, got)
}

func TestAdapter_MalformedFrameDroppedNotFatal(t *testing.T) {
	server := newWSServer(t)
	a := New(testConfig(server.url()), zap.NewNop())
	defer a.Disconnect()

	var count atomic.Int32
	a.OnMessage(func(events.Envelope) { count.Add(1) })

	require.NoError(t, a.Connect(context.Background()))
	server.write(t, `not json at all`)
	server.write(t, `{"type":"pong"}`)

	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestAdapter_ConnectIsIdempotentWhileOpen(t *testing.T) {
	server := newWSServer(t)
	a := New(testConfig(server.url()), zap.NewNop())
	defer a.Disconnect()

	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, a.Connect(context.Background()))

	assert.Equal(t, int32(1), server.dials.Load())
	assert.Equal(t, StateOpen, a.State())
}

func TestAdapter_ReconnectsExactlyOnceAfterDrop(t *testing.T) {
	server := newWSServer(t)
	a := New(testConfig(server.url()), zap.NewNop())
	defer a.Disconnect()

	require.NoError(t, a.Connect(context.Background()))
	require.Equal(t, int32(1), server.dials.Load())

	server.closeLatest(t)

	require.Eventually(t, func() bool {
		return server.dials.Load() == 2
	}, time.Second, 10*time.Millisecond, "one reconnect after unexpected close")

	// No further dials while the new connection stays healthy.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(2), server.dials.Load())
	assert.Equal(t, StateOpen, a.State())
}

func TestAdapter_NoReconnectAfterDisconnect(t *testing.T) {
	server := newWSServer(t)
	a := New(testConfig(server.url()), zap.NewNop())

	require.NoError(t, a.Connect(context.Background()))
	a.Disconnect()
	require.Equal(t, StateClosed, a.State())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), server.dials.Load())
	assert.Equal(t, StateClosed, a.State())
}

func TestAdapter_DialFailureSchedulesRetry(t *testing.T) {
	// Point at a server we shut down immediately.
	server := newWSServer(t)
	url := server.url()
	server.srv.Close()

	a := New(testConfig(url), zap.NewNop())
	defer a.Disconnect()

	err := a.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateReconnecting, a.State())
}

func TestAdapter_OnReconnectFiresAfterRedial(t *testing.T) {
	server := newWSServer(t)
	a := New(testConfig(server.url()), zap.NewNop())
	defer a.Disconnect()

	var fired atomic.Int32
	a.OnReconnect(func() { fired.Add(1) })

	require.NoError(t, a.Connect(context.Background()))
	require.Equal(t, int32(0), fired.Load(), "initial connect is not a reconnect")

	server.closeLatest(t)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestAdapter_SendDropsWhileNotOpen(t *testing.T) {
	a := New(testConfig("ws://127.0.0.1:1/ws"), zap.NewNop())
	a.Send(map[string]string{"type": "ping"}) // must not panic or block
	assert.Equal(t, StateIdle, a.State())
}

func TestAdapter_UnregisterStopsDelivery(t *testing.T) {
	server := newWSServer(t)
	a := New(testConfig(server.url()), zap.NewNop())
	defer a.Disconnect()

	var first, second atomic.Int32
	unsub := a.OnMessage(func(events.Envelope) { first.Add(1) })
	a.OnMessage(func(events.Envelope) { second.Add(1) })

	require.NoError(t, a.Connect(context.Background()))
	server.write(t, `{"type":"pong"}`)
	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 10*time.Millisecond)

	unsub()
	server.write(t, `{"type":"pong"}`)
	require.Eventually(t, func() bool { return second.Load() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), first.Load())
}
