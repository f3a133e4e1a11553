// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package config loads the daemon's top-level process configuration —
// listen addresses, optional Modbus/MQTT bridges, and on-disk paths.
// The show itself (boards, groups, presets, programs) lives in
// internal/showconfig's own TOML/JSON documents, not here.
package config

// Config is the root process configuration.
type Config struct {
	Server   ServerConfig  `toml:"server"`
	Modbus   *ModbusConfig `toml:"modbus,omitempty"`
	MQTT     *MQTTConfig   `toml:"mqtt,omitempty"`
	DataDir  string        `toml:"data_dir"`
	AudioDir string        `toml:"audio_dir"`
}

// ServerConfig defines the HTTP/WebSocket listen address.
type ServerConfig struct {
	HTTP string `toml:"http"`
}

// ModbusConfig defines the Modbus TCP bridge's listen address. Presence
// of this section enables the bridge.
type ModbusConfig struct {
	Addr string `toml:"addr"`
}

// MQTTConfig defines the MQTT bridge's broker connection. Presence of
// this section enables the bridge.
type MQTTConfig struct {
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id,omitempty"`
	Username    string `toml:"username,omitempty"`
	Password    string `toml:"password,omitempty"`
	TopicPrefix string `toml:"topic_prefix,omitempty"`
}
