package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, `server: {}
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Server.Database.Path != DefaultDatabasePath {
		t.Errorf("database.path: got %q, want %q", cfg.Server.Database.Path, DefaultDatabasePath)
	}
	if cfg.Server.Auth.TokenTTL != DefaultTokenTTL {
		t.Errorf("auth.token_ttl: got %v, want %v", cfg.Server.Auth.TokenTTL, DefaultTokenTTL)
	}
	if cfg.Server.AI.Model != DefaultAIModel {
		t.Errorf("ai.model: got %q, want %q", cfg.Server.AI.Model, DefaultAIModel)
	}
	if cfg.Server.AI.MinOutputChars != DefaultAIMinOutput {
		t.Errorf("ai.min_output_chars: got %d, want %d", cfg.Server.AI.MinOutputChars, DefaultAIMinOutput)
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9090
  log:
    level: debug
  database:
    path: /tmp/notes.db
    busy_timeout: 2s
  auth:
    secret_env: MY_SECRET
    token_ttl: 24h
  ai:
    api_key_env: MY_AI_KEY
    base_url: https://dashscope.example.com/v1
    model: qwen-plus
    max_tokens: 512
    temperature: 0.3
    min_output_chars: 20
  upload:
    dir: /tmp/uploads
  cors:
    origins: ["http://localhost:5173"]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("http_port: got %d, want 9090", cfg.Server.HTTPPort)
	}
	if cfg.Server.Log.Level != "debug" {
		t.Errorf("log.level: got %q, want debug", cfg.Server.Log.Level)
	}
	if cfg.Server.Database.BusyTimeout != 2*time.Second {
		t.Errorf("database.busy_timeout: got %v, want 2s", cfg.Server.Database.BusyTimeout)
	}
	if cfg.Server.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("auth.token_ttl: got %v, want 24h", cfg.Server.Auth.TokenTTL)
	}
	if cfg.Server.AI.Model != "qwen-plus" {
		t.Errorf("ai.model: got %q, want qwen-plus", cfg.Server.AI.Model)
	}
	if cfg.Server.AI.MinOutputChars != 20 {
		t.Errorf("ai.min_output_chars: got %d, want 20", cfg.Server.AI.MinOutputChars)
	}
	if len(cfg.Server.CORS.Origins) != 1 || cfg.Server.CORS.Origins[0] != "http://localhost:5173" {
		t.Errorf("cors.origins: got %v", cfg.Server.CORS.Origins)
	}
}

func TestLoad_SecretEnvResolution(t *testing.T) {
	t.Setenv("TEST_SIGNING_SECRET", "supersecret")
	p := writeConfig(t, `server:
  auth:
    secret_env: TEST_SIGNING_SECRET
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s := cfg.Server.Auth.Secret(); s != "supersecret" {
		t.Errorf("Secret(): got %q, want supersecret", s)
	}
}

func TestLoad_UnknownLogLevel(t *testing.T) {
	p := writeConfig(t, `server:
  log:
    level: loud
`)
	_, err := Load(p)
	if err == nil {
		t.Fatal("expected error for unknown log level, got nil")
	}
}

func TestLoad_BadPort(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 123456
`)
	_, err := Load(p)
	if err == nil {
		t.Fatal("expected error for out-of-range port, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// startWatch runs Watch in the background and returns a channel carrying
// every config it applies.
func startWatch(t *testing.T, path string) <-chan *Config {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	applied := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { applied <- c }) //nolint:errcheck

	// Let the watcher install before the test writes to the file.
	time.Sleep(100 * time.Millisecond)
	return applied
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	p := writeConfig(t, "server:\n  log:\n    level: info\n")
	applied := startWatch(t, p)

	if err := os.WriteFile(p, []byte("server:\n  log:\n    level: debug\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-applied:
		if cfg.Server.Log.Level != "debug" {
			t.Errorf("level: got %q, want debug", cfg.Server.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never applied the reloaded config")
	}
}

func TestWatch_InvalidReloadKeepsLastGoodConfig(t *testing.T) {
	p := writeConfig(t, "server:\n  log:\n    level: info\n")
	applied := startWatch(t, p)

	// A broken intermediate state must never reach apply.
	if err := os.WriteFile(p, []byte("server:\n  log:\n    level: loud\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	select {
	case cfg := <-applied:
		t.Fatalf("invalid config was applied: %+v", cfg.Server.Log)
	case <-time.After(time.Second):
	}

	// The next valid save is picked up as usual.
	if err := os.WriteFile(p, []byte("server:\n  log:\n    level: error\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	select {
	case cfg := <-applied:
		if cfg.Server.Log.Level != "error" {
			t.Errorf("level: got %q, want error", cfg.Server.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never recovered after the invalid save")
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
		{"loud", "INFO"},
	}
	for _, tt := range tests {
		if got := Level(tt.in).String(); got != tt.want {
			t.Errorf("Level(%q): got %s, want %s", tt.in, got, tt.want)
		}
	}
}
