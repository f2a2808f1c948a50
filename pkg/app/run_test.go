package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/budgetforce/internal/config"
)

const testConfig = `version: "1"
engine:
  kind: vllm
  vllm:
    base_url: http://127.0.0.1:1/v1
    model: qwen3-14b
    api_key: sk-test-0123456789abcdefghij
tokenizer:
  kind: estimate
thinking:
  budget: 256
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "budgetforce.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "budgetforce")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "budgetforce.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
	if DefaultConfigPath() != cfgPath {
		t.Errorf("DefaultConfigPath() = %q, want %q", DefaultConfigPath(), cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	if _, err := ResolveConfigPath(); err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestDefaultDataDir_XDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got, want := DefaultDataDir(), "/custom/data/budgetforce"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultDataDir_Fallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	_ = os.Unsetenv("XDG_DATA_HOME")

	home, _ := os.UserHomeDir()
	if got, want := DefaultDataDir(), filepath.Join(home, ".local", "share", "budgetforce"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoadConfig(t *testing.T) {
	dataDir := t.TempDir()
	cfg, path, err := LoadConfig(RunParams{
		ConfigPath: writeConfig(t, testConfig),
		DataDir:    dataDir,
		LogLevel:   "debug",
	})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if path == "" || cfg.DataDir != dataDir || cfg.Log.Level != "debug" {
		t.Errorf("path = %q, data_dir = %q, log.level = %q", path, cfg.DataDir, cfg.Log.Level)
	}
	if cfg.Thinking.Budget != 256 {
		t.Errorf("budget = %d", cfg.Thinking.Budget)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
	}{
		{name: "missing file", path: "/nonexistent/config.yaml"},
		{name: "invalid yaml", content: "not: valid: yaml: ["},
		{name: "validation", content: "version: \"1\"\nengine:\n  kind: vllm\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = writeConfig(t, tt.content)
			}
			if _, _, err := LoadConfig(RunParams{ConfigPath: path, DataDir: t.TempDir()}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	cfg, _, err := LoadConfig(RunParams{ConfigPath: writeConfig(t, testConfig), DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	logger, err := NewLogger(cfg.Log, &buf, level, NewRedactor(cfg))
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("calling engine", "key", cfg.Engine.VLLM.APIKey)
	if strings.Contains(buf.String(), cfg.Engine.VLLM.APIKey) {
		t.Errorf("log leaked API key: %s", buf.String())
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug logged at info level: %s", buf.String())
	}
	level.Set(slog.LevelDebug)
	logger.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("debug not logged after level change")
	}
}

func TestOpen_BuildsStack(t *testing.T) {
	var logs bytes.Buffer
	stack, err := Open(context.Background(), RunParams{
		ConfigPath: writeConfig(t, testConfig),
		DataDir:    t.TempDir(),
		Version:    "test",
		LogOutput:  &logs,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = stack.Close(context.Background()) })

	if stack.Store == nil || stack.RunStore() == nil {
		t.Error("store should be enabled by default")
	}
	if stack.Driver.Workers() <= 0 {
		t.Errorf("workers = %d", stack.Driver.Workers())
	}

	sched, err := stack.Scheduler()
	if err != nil {
		t.Fatalf("Scheduler: %v", err)
	}
	if got := strings.Join(sched.Jobs(), ","); !strings.Contains(got, "engine_probe") || !strings.Contains(got, "run_prune") {
		t.Errorf("jobs = %s", got)
	}

	gw, err := stack.Gateway()
	if err != nil {
		t.Fatalf("Gateway: %v", err)
	}
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}

	if stack.MCP() == nil {
		t.Error("MCP() = nil")
	}
}

func TestOpen_StoreDisabled(t *testing.T) {
	stack, err := Open(context.Background(), RunParams{
		ConfigPath: writeConfig(t, testConfig+"store:\n  enabled: false\ncron:\n  engine_probe: \"off\"\n"),
		DataDir:    t.TempDir(),
		LogOutput:  &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = stack.Close(context.Background()) })

	if stack.RunStore() != nil {
		t.Error("RunStore() should be nil when disabled")
	}
	sched, err := stack.Scheduler()
	if err != nil {
		t.Fatalf("Scheduler: %v", err)
	}
	if len(sched.Jobs()) != 0 {
		t.Errorf("jobs = %v, want none", sched.Jobs())
	}
}

func TestLoadConfig_OptionalWithOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	cfg, path, err := LoadConfig(RunParams{
		DataDir:        t.TempDir(),
		ConfigOptional: true,
		Override: func(c *config.Config) {
			c.Engine.VLLM.BaseURL = "http://localhost:8000/v1"
			c.Engine.VLLM.Model = "qwen3-14b"
		},
	})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if cfg.Engine.Model() != "qwen3-14b" || cfg.Version != "1" {
		t.Errorf("cfg = %+v", cfg.Engine)
	}
}

func TestServer_StartReloadStop(t *testing.T) {
	path := writeConfig(t, testConfig+"gateway:\n  bind: 127.0.0.1:0\n")
	srv, err := NewServer(RunParams{ConfigPath: path, DataDir: t.TempDir(), LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(path, []byte(testConfig+"gateway:\n  bind: 127.0.0.1:0\nlog:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := srv.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if srv.level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", srv.level.Level())
	}

	if err := srv.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
