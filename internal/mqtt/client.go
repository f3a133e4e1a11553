// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package mqtt mirrors the unified api.Request/Response command surface
// and the board event stream over MQTT, for deployments that bridge the
// gateway into a home-automation broker instead of (or alongside) the
// HTTP/WebSocket edge.
package mqtt

import (
	"encoding/json"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"dmx-gateway/internal/api"
	"dmx-gateway/internal/board"
)

// Config configures the MQTT bridge.
type Config struct {
	Broker   string `toml:"broker"`       // tcp://host:1883
	ClientID string `toml:"client_id"`    // defaults to "dmx-gateway"
	Username string `toml:"username"`
	Password string `toml:"password"`
	Prefix   string `toml:"topic_prefix"` // defaults to "dmx"
}

// Client bridges the unified API handler onto an MQTT broker.
type Client struct {
	cfg      Config
	api      *api.Handler
	events   <-chan board.Event
	logger   *slog.Logger
	client   pahomqtt.Client
	stopChan chan struct{}
}

// NewClient constructs a bridge client. events is the shared board-event
// fan-in channel the caller also hands to the HTTP server, so both edges
// observe the same state stream.
func NewClient(cfg Config, apiHandler *api.Handler, events <-chan board.Event, logger *slog.Logger) *Client {
	if cfg.Prefix == "" {
		cfg.Prefix = "dmx"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "dmx-gateway"
	}
	return &Client{
		cfg:      cfg,
		api:      apiHandler,
		events:   events,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start connects to the broker and subscribes to the command topic.
func (c *Client) Start() error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}

	go c.forwardEvents()

	c.logger.Info("MQTT bridge started", "broker", c.cfg.Broker, "prefix", c.cfg.Prefix)
	return nil
}

// Stop disconnects from the broker.
func (c *Client) Stop() {
	close(c.stopChan)
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(1000)
	}
	c.logger.Info("MQTT bridge stopped")
}

func (c *Client) onConnect(client pahomqtt.Client) {
	cmdTopic := c.cfg.Prefix + "/cmd"
	client.Subscribe(cmdTopic, 1, c.handleCommand)
	c.logger.Debug("MQTT subscribed", "topic", cmdTopic)
	c.publishConnectionStatus(true)
}

func (c *Client) onConnectionLost(client pahomqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost", "error", err)
}

// handleCommand decodes an incoming MQTT payload as an api.Request,
// dispatches it through the same handler the HTTP/WS edges use, and
// publishes the api.Response on the response topic.
func (c *Client) handleCommand(client pahomqtt.Client, msg pahomqtt.Message) {
	c.logger.Debug("MQTT command received", "topic", msg.Topic())
	resp := c.api.HandleJSON(msg.Payload())
	client.Publish(c.cfg.Prefix+"/response", 0, false, resp)
}

// forwardEvents mirrors every board.Event onto the event topic, matching
// the shape the WebSocket edge pushes to its subscribers.
func (c *Client) forwardEvents() {
	if c.events == nil {
		return
	}
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.publishEvent(ev)
		case <-c.stopChan:
			return
		}
	}
}

func (c *Client) publishEvent(ev board.Event) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.client.Publish(c.cfg.Prefix+"/event", 0, false, data)
}

// connectionStatusMessage mirrors the wire shape the WebSocket edge would
// use for a connectivity announcement.
type connectionStatusMessage struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
}

func (c *Client) publishConnectionStatus(connected bool) {
	data, _ := json.Marshal(connectionStatusMessage{Type: "connection_status", Connected: connected})
	c.client.Publish(c.cfg.Prefix+"/status", 0, true, data)
}
