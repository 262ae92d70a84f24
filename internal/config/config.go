package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/akulearn/akulive/internal/rtclient"
)

// Config: настройки клиента и консоли.
type Config struct {
	StudentID            string        `mapstructure:"student_id"`
	Endpoint             string        `mapstructure:"endpoint"`
	Host                 string        `mapstructure:"host"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	Topics               []string      `mapstructure:"topics"`
	LogLevel             string        `mapstructure:"log_level"`
	Color                bool          `mapstructure:"color"`
}

// Load читает конфиг из файла и окружения (префикс AKULIVE_).
// Явно заданный путь (аргумент или AKULIVE_CONFIG) обязан существовать,
// файлы в местах по умолчанию необязательны.
func Load(path string) (Config, error) {
	v := viper.New()

	// значения по умолчанию
	v.SetDefault("student_id", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("host", rtclient.DefaultHost)
	v.SetDefault("reconnect_interval", rtclient.DefaultReconnectInterval)
	v.SetDefault("max_reconnect_attempts", rtclient.DefaultMaxReconnectAttempts)
	v.SetDefault("ping_interval", time.Duration(0))
	v.SetDefault("write_timeout", rtclient.DefaultWriteTimeout)
	v.SetDefault("topics", []string{})
	v.SetDefault("log_level", "info")
	v.SetDefault("color", true)

	if path == "" {
		path = os.Getenv("AKULIVE_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("akulive")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "akulive"))
	}

	v.SetEnvPrefix("AKULIVE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Validate проверяет то, что клиент сам подставить не может.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.StudentID) == "" {
		errs = append(errs, errors.New("student_id is required"))
	}
	if c.ReconnectInterval < 0 {
		errs = append(errs, fmt.Errorf("reconnect_interval must not be negative, got %s", c.ReconnectInterval))
	}
	if c.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_reconnect_attempts must not be negative, got %d", c.MaxReconnectAttempts))
	}
	if c.PingInterval < 0 {
		errs = append(errs, fmt.Errorf("ping_interval must not be negative, got %s", c.PingInterval))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("write_timeout must not be negative, got %s", c.WriteTimeout))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ClientOptions переводит конфиг в опции rtclient.
func (c Config) ClientOptions(logger *slog.Logger) []rtclient.Option {
	opts := []rtclient.Option{
		rtclient.WithReconnectInterval(c.ReconnectInterval),
		rtclient.WithMaxReconnectAttempts(c.MaxReconnectAttempts),
		rtclient.WithPingInterval(c.PingInterval),
		rtclient.WithWriteTimeout(c.WriteTimeout),
	}
	if c.Endpoint != "" {
		opts = append(opts, rtclient.WithEndpoint(c.Endpoint))
	}
	if c.Host != "" {
		opts = append(opts, rtclient.WithHost(c.Host))
	}
	if logger != nil {
		opts = append(opts, rtclient.WithLogger(logger))
	}
	return opts
}

// ParseLevel: debug, info, warn или error, регистр не важен.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
