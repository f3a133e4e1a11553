// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package audio

import (
	"log/slog"

	"github.com/hypebeast/go-osc/osc"
)

// OSCClient is the fire-and-forget control channel to the external audio
// playback host (Loopy Pro), addressed by track number per §4.6. Grounded
// on the `hypebeast/go-osc` usage pattern seen across the pack's
// performance-rig repos (NewClient/NewMessage/Append/Send).
type OSCClient struct {
	client *osc.Client
	logger *slog.Logger
}

// NewOSCClient constructs a client targeting the configured Loopy Pro
// endpoint.
func NewOSCClient(ip string, port int, logger *slog.Logger) *OSCClient {
	return &OSCClient{
		client: osc.NewClient(ip, port),
		logger: logger,
	}
}

// Play sends "/Play/0:{track}" — fire-and-forget, no acknowledgment
// expected (the Program Engine treats audio-start as best-effort per §4.6).
func (c *OSCClient) Play(track string) {
	c.send("/Play/0:" + track)
}

// Stop sends "/Stop/0:{track}".
func (c *OSCClient) Stop(track string) {
	c.send("/Stop/0:" + track)
}

func (c *OSCClient) send(address string) {
	msg := osc.NewMessage(address)
	if err := c.client.Send(msg); err != nil {
		if c.logger != nil {
			c.logger.Warn("osc send failed", "address", address, "err", err)
		}
	}
}
