package watcher

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/akulearn/akulive/internal/rtclient"
)

// testContext: контекст теста, отменяется при завершении теста.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// updatesServer считает subscribe по топикам и умеет рвать соединения.
type updatesServer struct {
	*httptest.Server

	mu      sync.Mutex
	subs    map[string]int
	conns   []*websocket.Conn
	accepts int
}

func newUpdatesServer(t *testing.T) *updatesServer {
	t.Helper()
	us := &updatesServer{subs: map[string]int{}}
	upgrader := websocket.Upgrader{}
	us.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		us.mu.Lock()
		us.accepts++
		us.conns = append(us.conns, conn)
		us.mu.Unlock()

		_ = conn.WriteJSON(map[string]any{
			"type":       "connection_established",
			"student_id": strings.TrimPrefix(r.URL.Path, "/ws/"),
			"message":    "hello",
		})
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["type"] != "subscribe" {
				continue
			}
			topic, _ := msg["topic"].(string)
			us.mu.Lock()
			us.subs[topic]++
			us.mu.Unlock()
			_ = conn.WriteJSON(map[string]any{"type": "subscription_confirmed", "topic": topic})
		}
	}))
	t.Cleanup(us.Close)
	return us
}

func (us *updatesServer) subscribes(topic string) int {
	us.mu.Lock()
	defer us.mu.Unlock()
	return us.subs[topic]
}

func (us *updatesServer) acceptCount() int {
	us.mu.Lock()
	defer us.mu.Unlock()
	return us.accepts
}

func (us *updatesServer) kickLast() {
	us.mu.Lock()
	conn := us.conns[len(us.conns)-1]
	us.mu.Unlock()
	_ = conn.Close()
}

// syncBuffer: bytes.Buffer под мьютексом, printer пишет из горутин клиента.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStartSubscribesTopicsOnce(t *testing.T) {
	us := newUpdatesServer(t)
	c := rtclient.New("student_001", rtclient.WithHost(strings.TrimPrefix(us.URL, "http://")))
	out := &syncBuffer{}
	w := New(c, out, WithTopics("progress", "achievements", "progress"))
	t.Cleanup(w.Stop)

	require.NoError(t, w.Start(testContext(t)))
	require.Error(t, w.Start(testContext(t)))

	require.Eventually(t, func() bool {
		return us.subscribes("progress") == 1 && us.subscribes("achievements") == 1
	}, 2*time.Second, 5*time.Millisecond)

	// локальное и серверное connection_established схлопываются в одну переподписку
	require.Never(t, func() bool {
		return us.subscribes("progress") > 1
	}, 150*time.Millisecond, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "student_001: hello") && strings.Contains(s, "subscribed")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestResubscribeAfterFastReconnect(t *testing.T) {
	us := newUpdatesServer(t)
	// интервал реконнекта много меньше секунды: переподписка на каждое соединение
	c := rtclient.New("student_002",
		rtclient.WithHost(strings.TrimPrefix(us.URL, "http://")),
		rtclient.WithReconnectInterval(20*time.Millisecond),
	)
	w := New(c, &syncBuffer{}, WithTopics("progress"))
	t.Cleanup(w.Stop)

	require.NoError(t, w.Start(testContext(t)))
	require.Eventually(t, func() bool { return us.subscribes("progress") == 1 }, 2*time.Second, 5*time.Millisecond)

	for i := 2; i <= 3; i++ {
		us.kickLast()
		require.Eventually(t, func() bool {
			return us.acceptCount() == i && us.subscribes("progress") == i
		}, 2*time.Second, 5*time.Millisecond)
	}

	// серверное connection_established второй раз топики не шлёт
	require.Never(t, func() bool {
		return us.subscribes("progress") > 3
	}, 150*time.Millisecond, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	us := newUpdatesServer(t)
	c := rtclient.New("student_003", rtclient.WithHost(strings.TrimPrefix(us.URL, "http://")))
	w := New(c, &syncBuffer{})

	require.NoError(t, w.Start(testContext(t)))
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)

	w.Stop()
	w.Stop()
	require.False(t, c.IsConnected())
	require.Zero(t, c.Status().SubscriberCount)
}
