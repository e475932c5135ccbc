package property

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	path := writeConfig(t, `{"token":"abc","rate_limit":5}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Token != "abc" {
		t.Errorf("Token = %q, want abc", cfg.Token)
	}
	if cfg.ServerAddr != DefaultLocalServerAddr {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, DefaultLocalServerAddr)
	}
	if cfg.AnkiConnectURL != DefaultAnkiConnectURL {
		t.Errorf("AnkiConnectURL = %q, want %q", cfg.AnkiConnectURL, DefaultAnkiConnectURL)
	}
	if cfg.AnkiConnectVersion != 6 {
		t.Errorf("AnkiConnectVersion = %d, want 6", cfg.AnkiConnectVersion)
	}
	if cfg.RateLimit != 5 || cfg.RateBurst != DefaultRateBurst {
		t.Errorf("rate = %v/%d", cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.SettingsPath == "" {
		t.Error("SettingsPath should default to a non-empty path")
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogFile() != filepath.Join(DefaultLogDir, "agent.log") {
		t.Errorf("LogFile = %q", cfg.LogFile())
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"unknown field", `{"apikey":"x"}`},
		{"negative rate", `{"rate_limit":-1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
