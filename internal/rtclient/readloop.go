package rtclient

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/gorilla/websocket"
)

func (c *Client) readLoop(conn Conn, gen uint64, log *slog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, gen, err, log)
			return
		}

		msg, derr := decodeFrame(data)
		if derr != nil {
			// битый кадр не рвёт соединение
			log.Warn("dropping malformed frame", "err", derr, "size", len(data))
			continue
		}
		if _, unk := msg.Event.(Unknown); unk && isKnownType(msg.Type) {
			log.Debug("frame does not match typed shape", "type", msg.Type)
		}

		if !c.isCurrent(gen) {
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.stopped && c.gen == gen
}

// handleClose: транспорт закрылся (сам или с ошибкой).
func (c *Client) handleClose(conn Conn, gen uint64, err error, log *slog.Logger) {
	c.mu.Lock()
	if c.stopped || c.gen != gen || c.conn != conn {
		// закрыли мы сами (Disconnect) либо это старое соединение
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.stopPingLocked()
	seq := c.timerSeq
	c.mu.Unlock()
	_ = conn.Close()

	code, reason, abnormal := closeDetails(err)
	if abnormal {
		log.Warn("connection lost", "err", err)
		c.emit(TransportError{Err: err.Error()})
	} else {
		log.Info("connection closed", "code", code, "reason", reason)
	}
	c.emit(Disconnected{Code: code, Reason: reason})
	c.reconnect(seq)
}

func closeDetails(err error) (code int, reason string, abnormal bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		normal := ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
		return ce.Code, ce.Text, !normal
	}
	return websocket.CloseAbnormalClosure, err.Error(), true
}

// reconnect: фиксированный интервал и жёсткий потолок попыток.
// seq снят под локом в момент потери соединения. Если с тех пор кто-то
// (например, обработчик disconnected) уже вызвал Connect, seq сдвинулся
// и эта потеря уже обработана.
func (c *Client) reconnect(seq uint64) {
	c.mu.Lock()
	if c.stopped || seq != c.timerSeq || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.opts.maxReconnectAttempts {
		attempts := c.attempts
		c.mu.Unlock()
		c.log.Error("max reconnect attempts reached", "attempts", attempts)
		c.emit(MaxReconnectAttempts{Attempts: attempts})
		return
	}
	c.attempts++
	attempt := c.attempts
	c.timerSeq++
	next := c.timerSeq
	c.timer = c.afterFunc(c.opts.reconnectInterval, func() { c.fireReconnect(next) })
	c.mu.Unlock()

	c.log.Info("reconnect scheduled",
		"attempt", attempt, "max", c.opts.maxReconnectAttempts, "in", c.opts.reconnectInterval)
}

func (c *Client) fireReconnect(seq uint64) {
	c.mu.Lock()
	if c.stopped || c.timer == nil || seq != c.timerSeq || c.state != StateDisconnected {
		// таймер отменён или уже устарел
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateConnecting
	c.mu.Unlock()

	_ = c.open(context.Background())
}

// emit раздаёт локальное событие тем же путём, что и входящие кадры.
func (c *Client) emit(ev Event) {
	c.dispatch(localMessage(ev))
}

// dispatch: сначала подписчики типа (payload без "type"), затем wildcard
// (весь конверт). Порядок: порядок регистрации. Обработчики вызываются
// без блокировки, по снимку таблицы.
// Кадр с type "*" wildcard-подписчики получают дважды: как подписчики
// своего типа и как wildcard.
func (c *Client) dispatch(msg Message) {
	c.mu.Lock()
	typed := slices.Clone(c.subs[msg.Type])
	wild := slices.Clone(c.subs[Wildcard])
	c.mu.Unlock()

	if len(typed) > 0 {
		m := msg
		m.Payload = msg.Payload.without("type")
		for _, s := range typed {
			c.invoke(s, m)
		}
	}
	for _, s := range wild {
		c.invoke(s, msg)
	}
}

func (c *Client) invoke(s *Subscription, m Message) {
	if s.removed.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("subscriber panicked", "type", m.Type, "sub_id", s.id, "panic", r)
		}
	}()
	s.handler(m)
}
