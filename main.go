// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"dmx-gateway/internal/api"
	"dmx-gateway/internal/audio"
	"dmx-gateway/internal/board"
	"dmx-gateway/internal/config"
	"dmx-gateway/internal/cue"
	"dmx-gateway/internal/effects"
	"dmx-gateway/internal/http"
	"dmx-gateway/internal/modbus"
	"dmx-gateway/internal/mqtt"
	"dmx-gateway/internal/pattern"
	"dmx-gateway/internal/program"
	"dmx-gateway/internal/showconfig"
)

func main() {
	var (
		configPath = flag.String("config", "config.toml", "Path to configuration file")
		logLevel   = flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
		dryRun     = flag.Bool("dry-run", false, "Validate config and exit")
	)
	flag.Parse()

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(*logLevel)})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("DMX gateway starting", "version", "1.0.0")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	store := showconfig.NewStore(cfg.DataDir)
	if err := store.Init(); err != nil {
		logger.Error("failed to initialize show store", "error", err)
		os.Exit(1)
	}
	doc, err := store.LoadDocument()
	if err != nil {
		logger.Error("failed to load show document", "error", err)
		os.Exit(1)
	}

	logger.Info("show document loaded", "boards", len(doc.Boards), "groups", len(doc.Groups),
		"effect_presets", len(doc.EffectPresets), "pattern_presets", len(doc.PatternPresets))

	if *dryRun {
		logger.Info("dry run mode - configuration is valid")
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	effectsEngine := effects.New(logger)
	patternEngine := pattern.New(logger)
	scheduler := cue.New(effectsEngine, patternEngine, logger)

	loopyPro := doc.LoopyPro
	if loopyPro.IP == "" {
		loopyPro = showconfig.DefaultLoopyPro()
	}
	oscClient := audio.NewOSCClient(loopyPro.IP, int(loopyPro.Port), logger)

	var performanceMode atomic.Bool
	programEngine := program.New(effectsEngine, patternEngine, scheduler, oscClient, &performanceMode, logger)
	fastPath := program.NewFastPath(logger)

	apiHandler := api.NewHandler(store, doc, programEngine, fastPath, logger)

	boardIPs := make(map[string]string, len(doc.Boards))
	rawEvents := make(chan board.Event, 256)
	actors := make([]*board.Actor, 0, len(doc.Boards))
	for _, b := range doc.Boards {
		actor := board.New(b.ID, b.IP, rawEvents, &performanceMode, logger)
		apiHandler.RegisterActor(b.ID, actor)
		boardIPs[b.ID] = b.IP
		actors = append(actors, actor)
	}
	for _, actor := range actors {
		go actor.Run()
	}

	for _, b := range doc.Boards {
		b := b
		go func() {
			cfgCtx, cfgCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cfgCancel()
			if err := board.ConfigureE131(cfgCtx, b.IP, b.Universe); err != nil {
				logger.Warn("board firmware E1.31 configure failed", "board_id", b.ID, "ip", b.IP, "error", err)
			}
		}()
	}

	httpEvents := make(chan board.Event, 256)
	var mqttClient *mqtt.Client
	var mqttEvents chan board.Event
	if cfg.MQTT != nil {
		mqttEvents = make(chan board.Event, 256)
		mqttClient = mqtt.NewClient(mqtt.Config{
			Broker: cfg.MQTT.Broker, ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username, Password: cfg.MQTT.Password, Prefix: cfg.MQTT.TopicPrefix,
		}, apiHandler, mqttEvents, logger)
	}

	go fanOutBoardEvents(rawEvents, boardIPs, apiHandler, httpEvents, mqttEvents)

	audioStore := audio.NewStore(cfg.AudioDir)
	httpServer := http.NewServer(cfg.Server.HTTP, apiHandler, programEngine, audioStore, httpEvents, logger)
	if err := httpServer.Start(); err != nil {
		logger.Error("failed to start HTTP server", "error", err)
		os.Exit(1)
	}

	var modbusServer *modbus.Server
	if cfg.Modbus != nil {
		modbusServer = modbus.NewServer(modbus.Config{Addr: cfg.Modbus.Addr},
			modbusSnapshots(apiHandler), func() bool { return performanceMode.Load() }, logger)
		if err := modbusServer.Start(); err != nil {
			logger.Error("failed to start Modbus server", "error", err)
			os.Exit(1)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.Start(); err != nil {
			logger.Error("failed to start MQTT bridge", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("DMX gateway ready", "http", cfg.Server.HTTP, "boards", len(doc.Boards),
		"modbus", cfg.Modbus != nil, "mqtt", cfg.MQTT != nil)

	<-ctx.Done()

	logger.Info("initiating graceful shutdown...")

	if mqttClient != nil {
		mqttClient.Stop()
	}
	if modbusServer != nil {
		modbusServer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	for _, actor := range actors {
		actor.Mailbox() <- board.Command{Kind: board.CmdShutdown}
	}

	logger.Info("DMX gateway stopped")
}

// fanOutBoardEvents merges the single raw board-event stream into every
// transport's own channel, and feeds connection transitions into the
// API handler's online-board set so target resolution (Program Engine
// and the Group Command Fast Path) only ever sees boards with a live
// connection.
func fanOutBoardEvents(raw <-chan board.Event, boardIPs map[string]string, apiHandler *api.Handler,
	httpEvents chan<- board.Event, mqttEvents chan<- board.Event) {
	for ev := range raw {
		if ev.Kind == board.EventConnectionStatus {
			if ip, ok := boardIPs[ev.BoardID]; ok {
				apiHandler.SetBoardOnline(ip, ev.Connected)
			}
		}
		select {
		case httpEvents <- ev:
		default:
		}
		if mqttEvents != nil {
			select {
			case mqttEvents <- ev:
			default:
			}
		}
	}
}

// modbusSnapshots adapts the API handler's board.State view into the
// modbus package's own BoardSnapshot shape, keeping internal/modbus free
// of any dependency on internal/api or internal/board.
func modbusSnapshots(apiHandler *api.Handler) func() []modbus.BoardSnapshot {
	return func() []modbus.BoardSnapshot {
		states := apiHandler.States()
		out := make([]modbus.BoardSnapshot, 0, len(states))
		for _, st := range states {
			out = append(out, modbus.BoardSnapshot{
				ID: st.ID, Online: st.Connected, Power: st.On,
				Brightness: st.Brightness, Effect: st.Effect, Color: st.Color,
			})
		}
		return out
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
