package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anki-agent/internal/ankiconnect"
	"github.com/anki-agent/internal/dispatcher"
	"github.com/anki-agent/internal/logger"
	"github.com/anki-agent/internal/property"
	"github.com/anki-agent/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to config.json (defaults are used when empty)")
	flag.Parse()

	config, err := property.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	mainLogger, err := logger.New(config.LogFile())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer mainLogger.Close()

	if err := run(config, mainLogger); err != nil {
		mainLogger.Error("agentd stopped: %v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(config *property.Config, log *logger.Logger) error {
	anki := ankiconnect.NewClient(config.AnkiConnectURL, config.AnkiConnectVersion)
	disp := dispatcher.New(dispatcher.Config{
		Client: anki,
		Logger: log,
	})
	bridge := transport.NewServer(disp, transport.Options{
		Token:     config.Token,
		RateLimit: config.RateLimit,
		RateBurst: config.RateBurst,
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- bridge.ListenAndServe(config.ServerAddr) }()
	log.Info("agentd started, AnkiConnect at %s (v%d)", config.AnkiConnectURL, config.AnkiConnectVersion)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bridge.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
