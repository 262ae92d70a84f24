package rtclient

import (
	"slices"
	"sync/atomic"
)

// Wildcard: подписка на все сообщения.
const Wildcard = "*"

// Handler получает сообщение. Паника в обработчике перехватывается
// и не мешает остальным подписчикам.
type Handler func(Message)

// Subscription: одна регистрация обработчика.
type Subscription struct {
	id      uint64
	msgType string
	handler Handler
	client  *Client
	removed atomic.Bool
}

func (s *Subscription) ID() uint64    { return s.id }
func (s *Subscription) Type() string  { return s.msgType }
func (s *Subscription) Unsubscribe()  { s.client.Unsubscribe(s.msgType, s.id) }
func (s *Subscription) Removed() bool { return s.removed.Load() }

// Subscribe регистрирует h на msgType (или Wildcard). Вызов
// sub.Unsubscribe снимает ровно эту регистрацию, повторный вызов: no-op.
func (c *Client) Subscribe(msgType string, h Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	s := &Subscription{
		id:      c.nextSubID,
		msgType: msgType,
		handler: h,
		client:  c,
	}
	c.subs[msgType] = append(c.subs[msgType], s)
	return s
}

// Unsubscribe снимает первую регистрацию с этим id под msgType. Нет такой: no-op.
func (c *Client) Unsubscribe(msgType string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[msgType]
	i := slices.IndexFunc(list, func(s *Subscription) bool { return s.id == id })
	if i < 0 {
		return
	}
	list[i].removed.Store(true)
	// dispatch работает по копии, так что правим на месте
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(c.subs, msgType)
		return
	}
	c.subs[msgType] = list
}

// On подписывает типизированный обработчик на тип события E.
// Для Unknown подписка идёт на Wildcard и ловит все нераспознанные сообщения.
//
//	rtclient.On(c, func(ev rtclient.MasteryUpdate) {
//	    fmt.Println(ev.LessonID, ev.MasteryData.MasteryPercentage)
//	})
func On[E Event](c *Client, h func(E)) *Subscription {
	var zero E
	msgType := zero.EventType()
	if msgType == "" {
		msgType = Wildcard
	}
	return c.Subscribe(msgType, func(m Message) {
		if ev, ok := m.Event.(E); ok {
			h(ev)
		}
	})
}
