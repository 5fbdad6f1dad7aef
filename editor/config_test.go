package editor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kwv/floorplan/spatial"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func validConfigYAML() string {
	return `api:
  baseUrl: https://plans.example.com/api
  timeout: 5s
  maxRetries: 5
  baseBackoff: 250ms
mqtt:
  broker: tcp://localhost:1883
  clientId: editor-test
editor:
  autosaveDelay: 500ms
  historyLimit: 50
draftDir: /tmp/drafts
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"FLOORPLAN_API_URL", "FLOORPLAN_API_TOKEN", "MQTT_BROKER", "MQTT_CLIENT_ID",
		"MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_TOPIC_PREFIX", "FLOORPLAN_DRAFT_DIR", "HTTP_PORT",
	} {
		t.Setenv(k, "")
	}
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeConfig(t, validConfigYAML()))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.BaseURL != "https://plans.example.com/api" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.API.Timeout)
	}
	if cfg.API.BaseBackoff != 250*time.Millisecond {
		t.Errorf("BaseBackoff = %v, want 250ms", cfg.API.BaseBackoff)
	}
	if cfg.Editor.AutosaveDelay != 500*time.Millisecond {
		t.Errorf("AutosaveDelay = %v, want 500ms", cfg.Editor.AutosaveDelay)
	}
	if cfg.Editor.HistoryLimit != 50 {
		t.Errorf("HistoryLimit = %d, want 50", cfg.Editor.HistoryLimit)
	}
	if cfg.MQTT.ClientID != "editor-test" {
		t.Errorf("ClientID = %q, want %q", cfg.MQTT.ClientID, "editor-test")
	}
	if cfg.DraftDir != "/tmp/drafts" {
		t.Errorf("DraftDir = %q", cfg.DraftDir)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeConfig(t, "api:\n  baseUrl: http://localhost:9000\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", cfg.API.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Editor.AutosaveDelay != DefaultAutosaveDelay {
		t.Errorf("AutosaveDelay = %v, want %v", cfg.Editor.AutosaveDelay, DefaultAutosaveDelay)
	}
	if cfg.Editor.HistoryLimit != DefaultHistoryLimit {
		t.Errorf("HistoryLimit = %d, want %d", cfg.Editor.HistoryLimit, DefaultHistoryLimit)
	}
	if cfg.Editor.OverlapTolerance != spatial.DefaultOverlapTolerance {
		t.Errorf("OverlapTolerance = %v", cfg.Editor.OverlapTolerance)
	}
	if cfg.MQTT.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("TopicPrefix = %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("Broker = %q, want empty (real-time disabled)", cfg.MQTT.Broker)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.HTTP.Port)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing base url", "mqtt:\n  broker: tcp://x:1883\n", "api.baseUrl is required"},
		{"port out of range", "api:\n  baseUrl: http://x\nhttp:\n  port: 70000\n", "out of range"},
		{"bad yaml", "api: [", "parsing config YAML"},
		{"bad duration", "api:\n  baseUrl: http://x\n  timeout: soon\n", "parsing config YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLOORPLAN_API_URL", "https://override.example.com")
	t.Setenv("FLOORPLAN_API_TOKEN", "tok")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_TOPIC_PREFIX", "plans")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := LoadConfig(writeConfig(t, "mqtt:\n  clientId: from-file\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.BaseURL != "https://override.example.com" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Token != "tok" {
		t.Errorf("Token = %q", cfg.API.Token)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("Broker = %q", cfg.MQTT.Broker)
	}
	if cfg.MQTT.ClientID != "from-file" {
		t.Errorf("ClientID = %q, want the file value", cfg.MQTT.ClientID)
	}
	if cfg.MQTT.TopicPrefix != "plans" {
		t.Errorf("TopicPrefix = %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.HTTP.Port)
	}
}

// ---------------------------------------------------------------------------
// SaveConfig
// ---------------------------------------------------------------------------

func TestSaveConfig_RoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := DefaultConfig()
	cfg.API.BaseURL = "http://localhost:9000"
	cfg.Editor.AutosaveDelay = 750 * time.Millisecond

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.API.BaseURL != cfg.API.BaseURL {
		t.Errorf("BaseURL = %q, want %q", loaded.API.BaseURL, cfg.API.BaseURL)
	}
	if loaded.Editor.AutosaveDelay != 750*time.Millisecond {
		t.Errorf("AutosaveDelay = %v, want 750ms", loaded.Editor.AutosaveDelay)
	}
}

func TestConfigSaveDeadline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Timeout = 100 * time.Millisecond
	cfg.API.MaxRetries = 3
	cfg.API.BaseBackoff = 10 * time.Millisecond

	// three attempts plus waits of 10ms and 20ms
	if got, want := cfg.SaveDeadline(), 330*time.Millisecond; got != want {
		t.Errorf("SaveDeadline() = %v, want %v", got, want)
	}
	if cfg.SaveDeadline() <= cfg.API.Timeout {
		t.Error("SaveDeadline() must leave room for retries")
	}

	cfg.API.SaveTimeout = 2 * time.Second
	if got := cfg.SaveDeadline(); got != 2*time.Second {
		t.Errorf("SaveDeadline() with override = %v, want 2s", got)
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	if got := len(cfg.ClientOptions()); got != 3 {
		t.Errorf("len(ClientOptions) = %d, want 3 without a token", got)
	}
	cfg.API.Token = "tok"
	if got := len(cfg.ClientOptions()); got != 4 {
		t.Errorf("len(ClientOptions) = %d, want 4 with a token", got)
	}
	opts := cfg.SessionOptions()
	if opts.HistoryLimit != DefaultHistoryLimit || opts.OverlapTolerance != spatial.DefaultOverlapTolerance {
		t.Errorf("SessionOptions = %+v", opts)
	}
}
