package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anki-agent/internal/ankiconnect"
	"github.com/anki-agent/internal/dispatcher"
	"github.com/anki-agent/internal/logger"
	"github.com/anki-agent/internal/property"
	"github.com/anki-agent/internal/transport"
)

func testConfig(t *testing.T) *property.CLIConfig {
	t.Helper()
	cfg := property.GetDefaultCLIConfig()
	cfg.SettingsPath = filepath.Join(t.TempDir(), "settings.json")
	cfg.TimeoutSec = 5
	return cfg
}

func startBridge(t *testing.T, cfg *property.CLIConfig) {
	t.Helper()
	anki := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case bytes.Contains(body, []byte(`"action":"version"`)):
			_, _ = w.Write([]byte(`{"result":6,"error":null}`))
		case bytes.Contains(body, []byte(`"action":"modelNames"`)):
			_, _ = w.Write([]byte(`{"result":["Basic"],"error":null}`))
		default:
			_, _ = w.Write([]byte(`{"result":null,"error":"model not found"}`))
		}
	}))
	t.Cleanup(anki.Close)

	log := logger.NewWriter(io.Discard)
	d := dispatcher.New(dispatcher.Config{Client: ankiconnect.NewClient(anki.URL, 6), Logger: log})
	ts := httptest.NewServer(transport.NewServer(d, transport.Options{Logger: log}).Routes())
	t.Cleanup(ts.Close)
	cfg.URL = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func runCLI(t *testing.T, cfg *property.CLIConfig, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(cfg, args, &out)
	return out.String(), err
}

func TestSettingsCommands(t *testing.T) {
	cfg := testConfig(t)

	if out, err := runCLI(t, cfg, "get", "imageShortcut"); err != nil || strings.TrimSpace(out) != "BracketLeft" {
		t.Errorf("get imageShortcut = %q, %v", out, err)
	}
	if _, err := runCLI(t, cfg, "set", "imageField", "Picture"); err != nil {
		t.Fatalf("set imageField: %v", err)
	}
	if _, err := runCLI(t, cfg, "set", "model", "Cloze"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	if out, _ := runCLI(t, cfg, "get", "imageField"); !strings.Contains(out, "(not set)") {
		t.Errorf("imageField after model change = %q", out)
	}
	if out, _ := runCLI(t, cfg, "get", "model"); strings.TrimSpace(out) != "Cloze" {
		t.Errorf("model = %q", out)
	}
	if _, err := runCLI(t, cfg, "set", "deck", "x"); err == nil {
		t.Error("unknown key should fail")
	}
}

func TestBridgeCommands(t *testing.T) {
	cfg := testConfig(t)
	startBridge(t, cfg)

	out, err := runCLI(t, cfg, "status")
	if err != nil || !strings.Contains(out, "Connected to Anki") {
		t.Errorf("status = %q, %v", out, err)
	}
	out, err = runCLI(t, cfg, "models")
	if err != nil || strings.TrimSpace(out) != "Basic" {
		t.Errorf("models = %q, %v", out, err)
	}
	_, err = runCLI(t, cfg, "fields", "Bogus")
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("fields Bogus err = %v", err)
	}
	out, err = runCLI(t, cfg, "send", "PING")
	if err == nil || !strings.Contains(out, "is not found on the Action Map") {
		t.Errorf("send PING = %q, %v", out, err)
	}
}

func TestActionsAndUsage(t *testing.T) {
	cfg := testConfig(t)
	out, err := runCLI(t, cfg, "actions")
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range []string{"TEST-ANKICONNECT", "FETCH-ANKI-MODELS", "FETCH-ANKI-FIELDS"} {
		if !strings.Contains(out, a) {
			t.Errorf("actions output lacks %s", a)
		}
	}
	if _, err := runCLI(t, cfg); err == nil {
		t.Error("missing command should fail")
	}
}

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"modelName=Basic", "x=a=b"})
	if err != nil {
		t.Fatal(err)
	}
	if p["modelName"] != "Basic" || p["x"] != "a=b" {
		t.Errorf("params = %v", p)
	}
	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Error("expected error")
	}
}
