package rtclient

// ========================= high-level API  =========================

// SubscribeTopic просит сервер присылать события топика.
// Клиент сам не запоминает топики и не переподписывается после реконнекта.
func (c *Client) SubscribeTopic(topic string) bool {
	return c.Send(TypeSubscribe, Payload{"topic": topic})
}

func (c *Client) UnsubscribeTopic(topic string) bool {
	return c.Send(TypeUnsubscribe, Payload{"topic": topic})
}

// Ping: прикладной ping, сервер отвечает pong.
func (c *Client) Ping() bool {
	return c.Send(TypePing, nil)
}

// RequestStatus: get_status; ответ приходит событием StatusReport.
func (c *Client) RequestStatus() bool {
	return c.Send(TypeGetStatus, nil)
}
