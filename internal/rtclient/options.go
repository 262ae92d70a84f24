package rtclient

import (
	"io"
	"log/slog"
	"time"
)

const (
	DefaultHost                 = "localhost:8000"
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultWriteTimeout         = 5 * time.Second
)

type options struct {
	endpoint             string
	host                 string
	reconnectInterval    time.Duration
	maxReconnectAttempts int
	pingInterval         time.Duration
	writeTimeout         time.Duration
	dialer               Dialer
	logger               *slog.Logger
}

// Option настраивает Client при создании.
type Option func(*options)

// WithEndpoint задаёт полный адрес ws/wss. Если не задан, адрес выводится
// из хоста и идентификатора: ws://<host>/ws/<identity>.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithHost задаёт хост (host:port) для выводимого адреса.
func WithHost(host string) Option {
	return func(o *options) {
		o.host = host
	}
}

// WithReconnectInterval: фиксированная пауза перед каждой попыткой реконнекта.
func WithReconnectInterval(d time.Duration) Option {
	return func(o *options) {
		o.reconnectInterval = d
	}
}

// WithMaxReconnectAttempts: потолок подряд идущих попыток реконнекта.
// 0 отключает автоматический реконнект.
func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) {
		o.maxReconnectAttempts = n
	}
}

// WithPingInterval включает прикладной keep-alive ({"type":"ping"}).
// 0: выключено.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		o.pingInterval = d
	}
}

// WithWriteTimeout задаёт write-deadline для каждой записи в сокет.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithDialer подменяет транспорт (прокси, тесты).
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithLogger задаёт логгер. По умолчанию логи отбрасываются.
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
//	c := rtclient.New("student_001", rtclient.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func defaultOptions() options {
	return options{
		host:                 DefaultHost,
		reconnectInterval:    DefaultReconnectInterval,
		maxReconnectAttempts: DefaultMaxReconnectAttempts,
		writeTimeout:         DefaultWriteTimeout,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
