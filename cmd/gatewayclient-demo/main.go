// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command gatewayclient-demo wires a gatewayclient Engine to a real
// configuration file, starts the optional diagnostics reporter, and blocks
// until SIGTERM/SIGINT. On SIGHUP it re-reads the configuration file and
// reconnects to the URL it names; other changed options are not applied to
// the running engine. It is a thin wiring binary, not a library:
// applications should embed the engine package directly. A concrete
// WebSocket transport is out of scope for this module (see the transport
// package doc), so this binary dials through an in-process loopback
// transport purely to demonstrate the wiring — swap loopbackDialer for a
// real transport.Dialer in production use.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishisan-dev/gatewayclient/internal/config"
	"github.com/nishisan-dev/gatewayclient/internal/diagnostics"
	"github.com/nishisan-dev/gatewayclient/internal/engine"
	"github.com/nishisan-dev/gatewayclient/internal/logging"
	"github.com/nishisan-dev/gatewayclient/internal/notify"
	"github.com/nishisan-dev/gatewayclient/internal/transport"
)

func main() {
	configPath := flag.String("config", "/etc/gatewayclient/client.yaml", "path to client config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "log format: json, text")
	diagSchedule := flag.String("diagnostics", "", "cron schedule for periodic diagnostics logging (empty disables)")
	flag.Parse()

	logger, logCloser := logging.NewLogger(*logLevel, *logFormat, "")
	defer logCloser.Close()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath, cfg, *diagSchedule, logger); err != nil {
		logger.Error("gateway client exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, cfg *config.Options, diagSchedule string, logger *slog.Logger) error {
	logger.Info("starting gateway client", "url", cfg.URL, "shard_id", cfg.ShardID, "shard_count", cfg.ShardCount)

	notifySink := func(n notify.Notification) {
		switch n.Kind {
		case notify.KindWarn:
			logger.Warn("gateway warning", "error", n.Err)
		case notify.KindClose:
			logger.Info("gateway connection closed", "code", n.CloseCode, "reason", n.Reason)
		case notify.KindKilled:
			logger.Info("gateway client killed")
		case notify.KindReady:
			logger.Info("gateway session ready")
		case notify.KindReconnecting:
			logger.Info("gateway reconnecting", "attempt", n.Attempt)
		case notify.KindDispatch:
			logger.Debug("gateway dispatch event", "event", n.Event)
		}
	}

	eng, err := engine.New(*cfg, loopbackDialer{}, notifySink, logger)
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}

	var reporter *diagnostics.Reporter
	if diagSchedule != "" {
		reporter = diagnostics.New(func() diagnostics.Snapshot {
			return diagnostics.Snapshot{
				SessionID:        eng.SessionID(),
				Sequence:         eng.Sequence(),
				Resuming:         eng.Resuming(),
				ReconnectCount:   eng.ReconnectCount(),
				HeartbeatActive:  eng.HeartbeatActive(),
				HeartbeatAcked:   eng.HeartbeatAcked(),
				RateBucketQueued: eng.BucketQueueLen(),
				MediaSessions:    eng.MediaSessionCount(),
			}
		}, logger)
		if err := reporter.Start(diagSchedule); err != nil {
			return fmt.Errorf("starting diagnostics reporter: %w", err)
		}
	}

	if err := eng.Connect(cfg.URL); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	for {
		sig := <-sigCh

		if sig == syscall.SIGHUP {
			logger.Info("received SIGHUP, reloading config", "path", configPath)
			newCfg, loadErr := config.Load(configPath)
			if loadErr != nil {
				logger.Error("reload failed, keeping current connection", "error", loadErr)
				continue
			}
			cfg = newCfg
			logger.Info("config reloaded; reconnecting to configured url")
			if err := eng.Connect(cfg.URL); err != nil {
				logger.Error("reconnect after reload failed", "error", err)
			}
			continue
		}

		logger.Info("received signal, shutting down", "signal", sig)
		if reporter != nil {
			reporter.Stop()
		}
		eng.Kill()
		return nil
	}
}

// loopbackDialer opens an in-process transport.Fake and immediately
// simulates an open connection. It exists so this binary builds and runs
// end-to-end without depending on a real WebSocket library; it never
// receives real gateway traffic.
type loopbackDialer struct{}

func (loopbackDialer) Dial(url string, sink transport.Sink) (transport.Transport, error) {
	tr := transport.NewFake(sink)
	go tr.SimulateOpen()
	return tr, nil
}
