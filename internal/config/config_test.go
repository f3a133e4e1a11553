// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := loadFromString(t, `
[server]
http = ""
`)
	if cfg.Server.HTTP != ":8080" {
		t.Errorf("Server.HTTP = %q, want :8080", cfg.Server.HTTP)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.AudioDir != "./data/audio" {
		t.Errorf("AudioDir = %q, want ./data/audio", cfg.AudioDir)
	}
}

func TestLoadMQTTDefaults(t *testing.T) {
	cfg := loadFromString(t, `
[mqtt]
broker = "tcp://localhost:1883"
`)
	if cfg.MQTT.TopicPrefix != "dmx" {
		t.Errorf("MQTT.TopicPrefix = %q, want dmx", cfg.MQTT.TopicPrefix)
	}
	if cfg.MQTT.ClientID != "dmx-gateway" {
		t.Errorf("MQTT.ClientID = %q, want dmx-gateway", cfg.MQTT.ClientID)
	}
}

func TestLoadModbusDefaultAddr(t *testing.T) {
	cfg := loadFromString(t, `
[modbus]
`)
	if cfg.Modbus.Addr != ":502" {
		t.Errorf("Modbus.Addr = %q, want :502", cfg.Modbus.Addr)
	}
}

func TestValidateRejectsMQTTWithoutBroker(t *testing.T) {
	_, err := loadFromStringErr(`
[mqtt]
client_id = "foo"
`)
	if err == nil {
		t.Fatal("expected error for [mqtt] section without broker")
	}
}

func loadFromString(t *testing.T, toml string) *Config {
	t.Helper()
	cfg, err := loadFromStringErr(toml)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func loadFromStringErr(toml string) (*Config, error) {
	dir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(toml), 0644); err != nil {
		return nil, err
	}
	return Load(path)
}
