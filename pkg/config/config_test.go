package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadParsesFullConfig(t *testing.T) {
	p := writeConfig(t, `
server:
  address: 127.0.0.1
  port: 9090
storage:
  db_path: /var/lib/pulserelay
  cache_bytes: 64MB
mailbox:
  request_timeout: 90s
  expiration_window: 15m
  max_retries: 5
  device_id: relay-lab
sweeper:
  enabled: true
  cron: "*/10 * * * *"
logging:
  level: debug
  format: json
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("unexpected addr %q", cfg.Addr())
	}
	if cfg.Storage.CacheBytes.Int64() != 64*1000*1000 {
		t.Fatalf("cache_bytes: got %d", cfg.Storage.CacheBytes.Int64())
	}
	if cfg.Mailbox.RequestTimeout.Duration() != 90*time.Second {
		t.Fatalf("request_timeout: got %v", cfg.Mailbox.RequestTimeout.Duration())
	}
	if cfg.Mailbox.ExpirationWindow.Duration() != 15*time.Minute {
		t.Fatalf("expiration_window: got %v", cfg.Mailbox.ExpirationWindow.Duration())
	}
	if !cfg.Sweeper.Enabled || cfg.Sweeper.Cron != "*/10 * * * *" {
		t.Fatalf("sweeper: %+v", cfg.Sweeper)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging: %+v", cfg.Logging)
	}
}

func TestDurationAcceptsNumericSeconds(t *testing.T) {
	p := writeConfig(t, "mailbox:\n  request_timeout: 45\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mailbox.RequestTimeout.Duration() != 45*time.Second {
		t.Fatalf("numeric seconds: got %v", cfg.Mailbox.RequestTimeout.Duration())
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	p := writeConfig(t, "mailbox:\n  request_timeout: shortly\n")
	if _, err := Load(p); err == nil {
		t.Fatal("expected parse error for bad duration")
	}
}

func TestAddrDefaults(t *testing.T) {
	cfg := &Config{}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected default addr %q", cfg.Addr())
	}
}

func TestResolveConfigPathPrefersFlagThenEnv(t *testing.T) {
	t.Setenv("PULSERELAY_CONFIG", "/from/env.yaml")
	if got := ResolveConfigPath("/from/flag.yaml", true); got != "/from/flag.yaml" {
		t.Fatalf("flag must win: %q", got)
	}
	if got := ResolveConfigPath("/default.yaml", false); got != "/from/env.yaml" {
		t.Fatalf("env must win over default: %q", got)
	}
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("PULSERELAY_ADDR", "10.0.0.5:9000")
	t.Setenv("PULSERELAY_DB_PATH", "/data/mailbox")
	t.Setenv("PULSERELAY_API_CLIENT_KEYS", "ck1, ck2")
	t.Setenv("PULSERELAY_REQUEST_TIMEOUT", "30s")
	t.Setenv("PULSERELAY_SWEEP_CRON", "* * * * *")

	cfg, used := ParseConfigEnvs()
	if !used {
		t.Fatal("expected envUsed")
	}
	if cfg.Addr() != "10.0.0.5:9000" {
		t.Fatalf("addr: %q", cfg.Addr())
	}
	if cfg.Storage.DBPath != "/data/mailbox" {
		t.Fatalf("db path: %q", cfg.Storage.DBPath)
	}
	if len(cfg.Security.APIKeys.Client) != 2 || cfg.Security.APIKeys.Client[1] != "ck2" {
		t.Fatalf("client keys: %v", cfg.Security.APIKeys.Client)
	}
	if cfg.Mailbox.RequestTimeout.Duration() != 30*time.Second {
		t.Fatalf("request timeout: %v", cfg.Mailbox.RequestTimeout.Duration())
	}
	if !cfg.Sweeper.Enabled || cfg.Sweeper.Cron != "* * * * *" {
		t.Fatalf("sweeper: %+v", cfg.Sweeper)
	}
}

func TestLoadEffectiveConfigExplicitConfigWins(t *testing.T) {
	fileCfg := &Config{}
	fileCfg.Server.Port = 9191
	fileCfg.Storage.DBPath = "/from/file"

	flags := Flags{Config: "/some/cfg.yaml", Set: map[string]bool{"config": true}}
	res, err := LoadEffectiveConfig(flags, fileCfg, true, &Config{}, true)
	if err != nil {
		t.Fatalf("LoadEffectiveConfig: %v", err)
	}
	if res.Source != "config" || res.DBPath != "/from/file" || res.Addr != "0.0.0.0:9191" {
		t.Fatalf("unexpected result %+v", res)
	}

	// explicit --config pointing at a missing file is fatal
	if _, err := LoadEffectiveConfig(flags, &Config{}, false, &Config{}, false); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadEffectiveConfigFlagsWin(t *testing.T) {
	fileCfg := &Config{}
	fileCfg.Storage.DBPath = "/from/file"

	flags := Flags{Addr: ":7070", DB: "./flagdb", Set: map[string]bool{"addr": true, "db": true}}
	res, err := LoadEffectiveConfig(flags, fileCfg, true, &Config{}, false)
	if err != nil {
		t.Fatalf("LoadEffectiveConfig: %v", err)
	}
	if res.Source != "flags" || res.Addr != ":7070" || res.DBPath != "./flagdb" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestLoadEffectiveConfigFileThenEnv(t *testing.T) {
	fileCfg := &Config{}
	fileCfg.Storage.DBPath = "/from/file"
	envCfg := &Config{}
	envCfg.Storage.DBPath = "/from/env"
	flags := Flags{Set: map[string]bool{}}

	res, err := LoadEffectiveConfig(flags, fileCfg, true, envCfg, true)
	if err != nil {
		t.Fatalf("LoadEffectiveConfig: %v", err)
	}
	if res.Source != "config" || res.DBPath != "/from/file" {
		t.Fatalf("file should win when present: %+v", res)
	}

	res, err = LoadEffectiveConfig(flags, &Config{}, false, envCfg, true)
	if err != nil {
		t.Fatalf("LoadEffectiveConfig: %v", err)
	}
	if res.Source != "env" || res.DBPath != "/from/env" {
		t.Fatalf("env should win when no file: %+v", res)
	}
}
