package rtclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrClosed: клиент остановлен через Disconnect во время операции.
var ErrClosed = errors.New("rtclient: client disconnected")

// State: состояние соединения.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Status: диагностический снимок, без побочных эффектов.
type Status struct {
	Connected         bool
	State             State
	ReconnectAttempts int
	// число типов сообщений, на которые есть хотя бы один подписчик
	SubscriberCount int
	Identity        string
	Endpoint        string
}

type timer interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

type Client struct {
	identity string
	endpoint string
	opts     options
	log      *slog.Logger
	dialer   Dialer

	// планировщик реконнекта; в тестах подменяется
	afterFunc func(time.Duration, func()) timer

	mu        sync.Mutex
	state     State
	conn      Conn
	gen       uint64 // номер текущего соединения
	stopped   bool   // был явный Disconnect
	attempts  int
	timer     timer // не больше одного ожидающего реконнекта
	timerSeq  uint64
	pingStop  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc

	subs      map[string][]*Subscription
	nextSubID uint64

	wmu sync.Mutex // сериализует запись в websocket
}

// New создаёт клиент для identity. Ввода-вывода нет, подключение: Connect.
func New(identity string, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = newWSDialer()
	}
	if o.logger == nil {
		o.logger = defaultOptions().logger
	}
	endpoint := endpointFor(o, identity)

	return &Client{
		identity:  identity,
		endpoint:  endpoint,
		opts:      o,
		log:       o.logger.With("identity", identity, "endpoint", endpoint),
		dialer:    o.dialer,
		afterFunc: realAfterFunc,
		subs:      make(map[string][]*Subscription),
	}
}

func (c *Client) Identity() string { return c.identity }
func (c *Client) Endpoint() string { return c.endpoint }

// Connect открывает соединение. Повторный вызов при Connecting/Connected ничего
// не делает. Ошибка dial возвращается для информации: клиент уже запустил
// процедуру реконнекта сам.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.cancelTimerLocked()
	c.stopped = false
	if c.runCtx == nil {
		c.runCtx, c.runCancel = context.WithCancel(context.Background())
	}
	c.state = StateConnecting
	c.mu.Unlock()

	return c.open(ctx)
}

// open: одна попытка подключения. Состояние уже Connecting.
func (c *Client) open(ctx context.Context) error {
	c.mu.Lock()
	runCtx := c.runCtx
	c.mu.Unlock()
	if runCtx == nil {
		return ErrClosed
	}

	log := c.log.With("conn_id", uuid.NewString())
	log.Debug("connecting")

	dctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(runCtx, cancel) // Disconnect прерывает dial
	conn, err := c.dialer.DialContext(dctx, c.endpoint)
	stop()
	cancel()

	c.mu.Lock()
	if c.stopped || runCtx.Err() != nil {
		c.mu.Unlock()
		if err == nil {
			closeConn(conn)
		}
		return ErrClosed
	}
	if err != nil {
		c.state = StateDisconnected
		seq := c.timerSeq
		c.mu.Unlock()

		log.Warn("connect failed", "err", err)
		c.emit(TransportError{Err: err.Error()})
		c.emit(Disconnected{Code: websocket.CloseAbnormalClosure, Reason: err.Error()})
		c.reconnect(seq)
		return fmt.Errorf("rtclient: dial %s: %w", c.endpoint, err)
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	log.Info("connected")
	c.emit(ConnectionEstablished{StudentID: c.identity, Local: true})

	c.startPing(gen)
	go c.readLoop(conn, gen, log)
	return nil
}

// Disconnect отменяет ожидающий реконнект, закрывает сокет и очищает таблицу
// подписок. После него не срабатывает ни таймер, ни события read-loop'а.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	c.cancelTimerLocked()
	c.stopPingLocked()
	if c.runCancel != nil {
		c.runCancel()
		c.runCtx, c.runCancel = nil, nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	for _, list := range c.subs {
		for _, s := range list {
			s.removed.Store(true)
		}
	}
	c.subs = make(map[string][]*Subscription)
	c.mu.Unlock()

	if conn != nil {
		closeConn(conn)
		c.log.Info("disconnected by client")
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected:         c.state == StateConnected,
		State:             c.state,
		ReconnectAttempts: c.attempts,
		SubscriberCount:   len(c.subs),
		Identity:          c.identity,
		Endpoint:          c.endpoint,
	}
}

// Send сериализует {type, ...data} и пишет в сокет.
// false: не подключены, ошибка сериализации или записи. Ничего не буферизуется.
// Поле "type" всегда берётся из msgType.
func (c *Client) Send(msgType string, data Payload) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()
	if !connected {
		c.log.Debug("send dropped: not connected", "type", msgType)
		return false
	}

	env := make(Payload, len(data)+1)
	for k, v := range data {
		env[k] = v
	}
	env["type"] = msgType

	b, err := json.Marshal(env)
	if err != nil {
		c.log.Warn("send: marshal failed", "type", msgType, "err", err)
		return false
	}

	// запись строго через один мьютекс + write-deadline
	c.wmu.Lock()
	if c.opts.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	}
	werr := conn.WriteMessage(websocket.TextMessage, b)
	c.wmu.Unlock()

	if werr != nil {
		c.log.Warn("send failed", "type", msgType, "err", werr)
		return false
	}
	return true
}

// вызывать под c.mu
func (c *Client) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}
