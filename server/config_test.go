package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "battl3ship.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:3333" || cfg.Stream.LengthDigits != 6 || cfg.MaxNameLength != 30 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
addr = "0.0.0.0:4444"
password = "hunter2"
max_connections = 10
read_timeout = "500ms"
mailbox_wait = "1s"
log_console = true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "0.0.0.0:4444" || cfg.Password != "hunter2" || cfg.MaxConnections != 10 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Stream.ReadTimeout != 500*time.Millisecond || cfg.MailboxWait != time.Second || !cfg.LogConsole {
		t.Fatalf("durations not applied: %+v", cfg)
	}
	if cfg.MaxPerAddress != 128 || cfg.Stream.WriteTimeout != 3*time.Second {
		t.Fatalf("unset keys should keep defaults: %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":   `colour = "blue"`,
		"bad duration":  `read_timeout = "soon"`,
		"invalid limit": `max_connections = 0`,
		"bad digits":    `length_digits = 0`,
		"not toml":      `addr = `,
	}
	for name, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("missing file: got %v", err)
	}
}
