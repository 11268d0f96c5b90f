package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"stakebridge/cmd/internal/passphrase"
	"stakebridge/config"
	"stakebridge/core/events"
	"stakebridge/crypto"
	"stakebridge/observability/logging"
	telemetry "stakebridge/observability/otel"
	"stakebridge/services/bridged/middleware"
	"stakebridge/services/bridged/node"
	"stakebridge/services/bridged/server"
	"stakebridge/services/bridged/stream"
	"stakebridge/storage"
	"stakebridge/storage/audit"
)

const defaultPassEnv = "BRIDGE_RELAYER_PASSPHRASE"

func main() {
	configFile := flag.String("config", "./bridged.toml", "Path to the configuration file (.toml or .yaml)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "bridged: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.Setup("bridged", cfg.Environment, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "bridged",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("bridged: telemetry shutdown", "error", err)
		}
	}()

	passEnv := strings.TrimSpace(cfg.RelayerPassphraseEnv)
	if passEnv == "" {
		passEnv = defaultPassEnv
	}
	pass, err := passphrase.NewSource(passEnv, "relayer keystore").Get()
	if err != nil {
		return err
	}
	relayerKey, created, err := crypto.LoadOrCreateKeystore(cfg.RelayerKeystorePath, pass)
	if err != nil {
		return fmt.Errorf("relayer keystore: %w", err)
	}
	if created {
		logger.Info("bridged: created relayer keystore", "path", cfg.RelayerKeystorePath)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDBWithOptions(filepath.Join(cfg.DataDir, "state"), storage.LevelDBOptions{
		CacheMB:   cfg.LevelDBCacheMB,
		Namespace: "bridged/db/",
	})
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	journal, err := audit.Open(cfg.AuditDSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Warn("bridged: close audit journal", "error", err)
		}
	}()

	opts, err := node.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Logger = logger
	hub := stream.NewHub(cfg.Stream.History)
	opts.Emitter = events.MultiEmitter{journal, hub}
	n, err := node.Open(db, opts)
	if err != nil {
		return err
	}

	authCfg := middleware.AuthConfig{
		Enabled:  cfg.Consensus.Enabled,
		Issuer:   cfg.Consensus.Issuer,
		Audience: cfg.Consensus.Audience,
	}
	if cfg.Consensus.Enabled {
		authCfg.HMACSecret = os.Getenv(cfg.Consensus.SecretEnv)
		if strings.TrimSpace(authCfg.HMACSecret) == "" {
			return fmt.Errorf("consensus feed enabled but %s is empty", cfg.Consensus.SecretEnv)
		}
	}
	srv, err := server.New(server.Config{
		Node:    n,
		Journal: journal,
		Relayer: relayerKey.Address(),
		Logger:  logger,
		Tracer:  telemetry.Tracer(),
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Auth:          authCfg,
		Stream:        hub,
		StreamOrigins: cfg.Stream.Origins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("bridged: listening",
			"address", cfg.ListenAddress,
			"relayer", relayerKey.Address().Hex(),
			"environment", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("bridged: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("bridged: graceful shutdown failed", "error", err)
		return err
	}
	return nil
}
