// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Load reads and parses the process configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTP == "" {
		c.Server.HTTP = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.AudioDir == "" {
		c.AudioDir = c.DataDir + "/audio"
	}
	if c.MQTT != nil {
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = "dmx"
		}
		if c.MQTT.ClientID == "" {
			c.MQTT.ClientID = "dmx-gateway"
		}
	}
	if c.Modbus != nil && c.Modbus.Addr == "" {
		c.Modbus.Addr = ":502"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTP == "" {
		return fmt.Errorf("server.http must not be empty")
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when [mqtt] is present")
	}
	return nil
}
