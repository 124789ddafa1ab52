// Command broker runs the secure publish/subscribe message broker:
// bootstrap loads configuration, initializes storage, builds the TLS
// context, and serves connections until a shutdown signal arrives.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/schoolmq/broker/internal/auth"
	"github.com/schoolmq/broker/internal/broker"
	"github.com/schoolmq/broker/internal/config"
	"github.com/schoolmq/broker/internal/network"
	"github.com/schoolmq/broker/internal/store"
	"github.com/schoolmq/broker/pkg/logger"
)

// tcpKeepAlive is the default socket keep-alive period for accepted connections.
const tcpKeepAlive = 30 * time.Second

func main() {
	log := logger.NewSlogLogger(slog.LevelInfo, os.Stdout).Slog()

	if err := run(log); err != nil {
		log.Error("broker exited with error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "bootstrap: load config")
	}
	if !cfg.RequiresTLS() {
		return errors.New("bootstrap: SERVER_CERT and SERVER_KEY are required")
	}

	db, err := store.Open(cfg.DBPath, cfg.FernetKeyPath)
	if err != nil {
		return errors.Wrap(err, "bootstrap: open storage")
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.InitSchema(ctx); err != nil {
		return errors.Wrap(err, "bootstrap: init schema")
	}
	if err := db.SeedDefaultRoles(ctx); err != nil {
		return errors.Wrap(err, "bootstrap: seed roles")
	}

	auditBuffer := store.OpenAuditBuffer(db)
	defer auditBuffer.Close()

	evaluator := auth.NewEvaluator(db, nil)
	auditLogger := broker.NewBufferedAuditLogger(auditBuffer, log)
	brk := broker.New(evaluator, db, auditLogger, log)

	tlsConfig, err := (&network.TLSConfig{
		CertFile:  cfg.ServerCert,
		KeyFile:   cfg.ServerKey,
		CAFile:    cfg.CACert,
		MutualTLS: cfg.MutualTLS,
	}).Build()
	if err != nil {
		return errors.Wrap(err, "bootstrap: build TLS context")
	}

	listener, err := network.Listen(cfg.Addr(), tlsConfig)
	if err != nil {
		return errors.Wrap(err, "bootstrap: bind listener")
	}
	log.Info("broker listening", "addr", listener.Addr().String())

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := network.ConnectionHandler(brk, log)
	if err := listener.Serve(runCtx, tcpKeepAlive, handler); err != nil {
		return errors.Wrap(err, "bootstrap: serve")
	}

	log.Info("broker shut down cleanly")
	return nil
}
