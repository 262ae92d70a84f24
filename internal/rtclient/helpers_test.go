package rtclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeConn: сокет в памяти. Кадры сервера кладутся в in,
// закрытие со стороны сервера: serverClose.
type fakeConn struct {
	in        chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	closeErr error
	written  [][]byte
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.in:
		return websocket.TextMessage, b, nil
	case <-f.done:
		f.mu.Lock()
		err := f.closeErr
		f.mu.Unlock()
		if err == nil {
			err = &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "unexpected EOF"}
		}
		return 0, nil, err
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error           { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeConn) serverClose(err error) {
	f.mu.Lock()
	f.closeErr = err
	f.mu.Unlock()
	_ = f.Close()
}

func (f *fakeConn) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.written))
	for _, b := range f.written {
		out = append(out, string(b))
	}
	return out
}

func (f *fakeConn) push(frame string) {
	f.in <- []byte(frame)
}

// fakeDialer: первые fail вызовов (или все при failAll) падают.
type fakeDialer struct {
	mu      sync.Mutex
	calls   int
	fail    int
	failAll bool
	urls    []string
	conns   []*fakeConn
}

func (d *fakeDialer) DialContext(_ context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.urls = append(d.urls, endpoint)
	if d.failAll || d.fail > 0 {
		if d.fail > 0 {
			d.fail--
		}
		return nil, errors.New("dial tcp: connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) setFailAll(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = v
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

// fakeClock: ручной планировщик: время "идёт" только в Advance.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (fc *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	t := &fakeTimer{clock: fc, d: d, f: f}
	fc.timers = append(fc.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance срабатывает все ожидающие таймеры; возвращает сколько сработало.
func (fc *fakeClock) Advance() int {
	fc.mu.Lock()
	var due []*fakeTimer
	for _, t := range fc.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	fc.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

func (fc *fakeClock) Pending() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := 0
	for _, t := range fc.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (fc *fakeClock) Scheduled() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.timers)
}

func newTestClient(t *testing.T, d *fakeDialer, opts ...Option) (*Client, *fakeClock) {
	t.Helper()
	base := []Option{WithDialer(d), WithReconnectInterval(100 * time.Millisecond)}
	c := New("student_001", append(base, opts...)...)
	clk := &fakeClock{}
	c.afterFunc = clk.AfterFunc
	t.Cleanup(c.Disconnect)
	return c, clk
}

// recorder собирает сообщения, пришедшие подписчику.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
	ch   chan Message
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Message, 64)}
}

func (r *recorder) handle(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
	select {
	case r.ch <- m:
	default:
	}
}

func (r *recorder) wait(t *testing.T, msgType string) Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-r.ch:
			if m.Type == msgType {
				return m
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %q", msgType)
			return Message{}
		}
	}
}

func (r *recorder) count(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Type)
	}
	return out
}
