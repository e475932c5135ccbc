package main

import (
	"io"
	"testing"

	"github.com/anki-agent/internal/logger"
	"github.com/anki-agent/internal/property"
)

func TestRunFailsOnBadAddr(t *testing.T) {
	cfg := property.DefaultConfig()
	cfg.ServerAddr = "256.0.0.1:-1"
	if err := run(cfg, logger.NewWriter(io.Discard)); err == nil {
		t.Fatal("expected listen error")
	}
}
