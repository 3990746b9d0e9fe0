// Clawcontrol bridge daemon.
//
// Maintains a persistent WebSocket session to the notes app plugin and keeps
// the local vault directory synchronized with it. Conversational messages
// arriving over the session are handed to the attached agent dispatcher.
//
// Configuration comes from CLAWCONTROL_* environment variables; flags
// override them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/jamesshedden/clawcontrol-openclaw/internal/bridge"
	"github.com/jamesshedden/clawcontrol-openclaw/internal/config"
	"github.com/jamesshedden/clawcontrol-openclaw/internal/logging"
	"github.com/jamesshedden/clawcontrol-openclaw/internal/metrics"
	"github.com/jamesshedden/clawcontrol-openclaw/pkg/protocol"
)

func main() {
	serverURL := flag.String("server", "", "base address of the notes app plugin (http or https)")
	token := flag.String("token", "", "shared secret for the ws token query parameter")
	vaultDir := flag.String("vault", "", "root of the synchronized notes tree")
	metricsAddr := flag.String("metrics", "", "address for the Prometheus /metrics listener (empty disables)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "log format: json or console")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *token != "" {
		cfg.Token = *token
	}
	if *vaultDir != "" {
		cfg.VaultDir = *vaultDir
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: init logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if cfg.MetricsAddr != "" {
		go func() {
			logging.Info("metrics listener starting", logging.String("addr", cfg.MetricsAddr))
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logging.Error("metrics listener failed", logging.Err(err))
			}
		}()
	}

	mgr := bridge.New(cfg, &unattachedDispatcher{}, logging.L().Named("bridge"))

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info("shutting down", logging.String("signal", sig.String()))
		cancel()
	}()

	logging.Info("clawcontrol bridge starting",
		logging.String("server", cfg.ServerURL),
		logging.String("vault", cfg.VaultDir),
	)

	if err := mgr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal("bridge failed", logging.Err(err))
	}
}

// unattachedDispatcher stands in when no agent pipeline is wired up: it
// reports the condition back to the user instead of going silent.
type unattachedDispatcher struct{}

func (*unattachedDispatcher) HandleMessage(_ context.Context, msg protocol.UserMessage, emit bridge.Emitter) {
	logging.Warn("no agent attached, rejecting message",
		zap.String("id", msg.ID), zap.String("thread_id", msg.ThreadID))
	emit.SendError(msg.ID, msg.ThreadID, "no agent is attached to this bridge")
}
