package rtclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ========================= low-level =========================

// максимальный размер входящего кадра
const maxFrameSize = 1 << 20

// Conn: то, что клиенту нужно от сокета. *websocket.Conn подходит как есть.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer открывает транспорт до endpoint.
type Dialer interface {
	DialContext(ctx context.Context, endpoint string) (Conn, error)
}

// DialerFunc позволяет использовать обычную функцию как Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Conn, error)

func (f DialerFunc) DialContext(ctx context.Context, endpoint string) (Conn, error) {
	return f(ctx, endpoint)
}

type wsDialer struct {
	d *websocket.Dialer
}

func newWSDialer() *wsDialer {
	return &wsDialer{d: &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}}
}

func (w *wsDialer) DialContext(ctx context.Context, endpoint string) (Conn, error) {
	conn, resp, err := w.d.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (http %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)
	return conn, nil
}

// формирует адрес ws по текущей конфигурации
func endpointFor(o options, identity string) string {
	if o.endpoint != "" {
		return o.endpoint
	}
	return fmt.Sprintf("ws://%s/ws/%s", o.host, url.PathEscape(identity))
}

// безопасно закрыть соединение: close-кадр и Close.
// WriteControl и Close можно звать параллельно с остальными методами.
func closeConn(conn Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	_ = conn.Close()
}

// прикладной keep-alive: {"type":"ping"} раз в pingInterval, сервер отвечает pong
func (c *Client) startPing(gen uint64) {
	if c.opts.pingInterval <= 0 {
		return
	}
	stop := make(chan struct{})

	c.mu.Lock()
	if c.stopped || c.gen != gen || c.state != StateConnected {
		// соединение уже ушло, пока раздавали connection_established
		c.mu.Unlock()
		return
	}
	c.stopPingLocked()
	c.pingStop = stop
	c.mu.Unlock()

	go func() {
		t := time.NewTicker(c.opts.pingInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if !c.Ping() {
					c.log.Debug("keep-alive ping skipped")
				}
			}
		}
	}()
}

// вызывать под c.mu
func (c *Client) stopPingLocked() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}
