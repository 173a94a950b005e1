// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the knob set of a session. NewSession keeps its own copy, so
// changing a Config value afterwards does not reach that session. Each open
// reads KeepAlive, PingEnabled, PingTimeout and ConnectTimeout from that
// copy; a running pinger keeps the KeepAlive it was started with until the
// next open.
type Config struct {
	KeepAlive      time.Duration `yaml:"keepAlive"`
	PingEnabled    bool          `yaml:"pingEnabled"`
	PingTimeout    time.Duration `yaml:"pingTimeout"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
}

// DefaultConfig matches spec: keepAlive=60s, pingEnabled=true,
// pingTimeout=5s, connectTimeout=30s, publishTimeout=5s.
func DefaultConfig() Config {
	return Config{
		KeepAlive:      60 * time.Second,
		PingEnabled:    true,
		PingTimeout:    5 * time.Second,
		ConnectTimeout: 30 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// clientConfigFile is the on-disk YAML document shape, mirroring the
// teacher's { server: { options: ... } } envelope with "client" in place
// of "server".
type clientConfigFile struct {
	Client struct {
		Config `yaml:",inline"`
	} `yaml:"client"`
}

// LoadConfig reads a YAML config file, seeded with DefaultConfig so any key
// the document omits keeps its default. An empty path is a no-op that
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		slog.Default().Debug("no config file path provided, using defaults")
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	doc := clientConfigFile{}
	doc.Client.Config = DefaultConfig()
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, err
	}

	return doc.Client.Config, nil
}

func (c Config) validate() error {
	if c.KeepAlive <= 0 {
		return newError(ErrKindPacketError)
	}
	if c.PingTimeout <= 0 || c.ConnectTimeout <= 0 || c.PublishTimeout <= 0 {
		return newError(ErrKindPacketError)
	}
	return nil
}
