// Package config loads runtime settings from the environment with sane
// defaults, prefix CODEROOM_ (e.g. CODEROOM_HTTP_ADDR).
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	Executor  ExecutorConfig
	Room      RoomConfig
}

type HTTPConfig struct {
	Addr         string        `default:"0.0.0.0:8080"`
	ReadTimeout  time.Duration `default:"30s"`
	WriteTimeout time.Duration `default:"30s"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `default:"30s"`
	ReadTimeout  time.Duration `default:"60s"`
	WriteTimeout time.Duration `default:"10s"`
	BufferSize   int           `default:"100"`
}

type ExecutorConfig struct {
	TempDir string        `default:"./tmp"`
	Timeout time.Duration `default:"10s"`
}

type RoomConfig struct {
	BanDuration time.Duration `default:"60m"`
	EventBuffer int           `default:"1000"`
}

// Load reads CODEROOM_* environment variables over the defaults.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("coderoom", &c); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the built-in configuration without touching the
// environment.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:         "0.0.0.0:8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Executor: ExecutorConfig{
			TempDir: "./tmp",
			Timeout: 10 * time.Second,
		},
		Room: RoomConfig{
			BanDuration: 60 * time.Minute,
			EventBuffer: 1000,
		},
	}
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http addr cannot be empty")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("websocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("websocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("websocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("websocket buffer size must be positive")
	}
	if c.Executor.TempDir == "" {
		return errors.New("executor temp dir cannot be empty")
	}
	if c.Executor.Timeout <= 0 {
		return errors.New("executor timeout must be positive")
	}
	if c.Room.BanDuration <= 0 {
		return errors.New("ban duration must be positive")
	}
	if c.Room.EventBuffer <= 0 {
		return errors.New("event buffer must be positive")
	}
	return nil
}
