package editor

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kwv/floorplan/spatial"
	"gopkg.in/yaml.v3"
)

// Config is the editor service configuration.
type Config struct {
	API      APIConfig    `yaml:"api" json:"api"`
	MQTT     MQTTConfig   `yaml:"mqtt" json:"mqtt"`
	Editor   EditorConfig `yaml:"editor" json:"editor"`
	HTTP     HTTPConfig   `yaml:"http" json:"http"`
	DraftDir string       `yaml:"draftDir" json:"draftDir"`
}

// APIConfig points at the floor plan REST service.
type APIConfig struct {
	BaseURL     string        `yaml:"baseUrl" json:"baseUrl"`
	Token       string        `yaml:"token,omitempty" json:"-"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries  int           `yaml:"maxRetries" json:"maxRetries"`
	BaseBackoff time.Duration `yaml:"baseBackoff" json:"baseBackoff"`
	SaveTimeout time.Duration `yaml:"saveTimeout,omitempty" json:"saveTimeout,omitempty"`
}

// MQTTConfig holds the real-time broker settings. An empty broker
// disables real-time updates.
type MQTTConfig struct {
	Broker      string `yaml:"broker" json:"broker"`
	ClientID    string `yaml:"clientId" json:"clientId"`
	Username    string `yaml:"username,omitempty" json:"username,omitempty"`
	Password    string `yaml:"password,omitempty" json:"-"`
	TopicPrefix string `yaml:"topicPrefix" json:"topicPrefix"`
}

// EditorConfig tunes the editing session and kernel caches.
type EditorConfig struct {
	AutosaveDelay    time.Duration `yaml:"autosaveDelay" json:"autosaveDelay"`
	RetryDelay       time.Duration `yaml:"retryDelay" json:"retryDelay"`
	HistoryLimit     int           `yaml:"historyLimit" json:"historyLimit"`
	OverlapTolerance float64       `yaml:"overlapTolerance" json:"overlapTolerance"`
	AreaCacheSize    int           `yaml:"areaCacheSize" json:"areaCacheSize"`
	PathCacheSize    int           `yaml:"pathCacheSize" json:"pathCacheSize"`
}

// HTTPConfig configures the local editor API.
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// DefaultConfig returns a configuration with every default filled in and
// no API endpoint.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.API.Timeout <= 0 {
		c.API.Timeout = DefaultRequestTimeout
	}
	if c.API.MaxRetries <= 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.BaseBackoff <= 0 {
		c.API.BaseBackoff = defaultBaseBackoff
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "floorplan-editor"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.Editor.AutosaveDelay <= 0 {
		c.Editor.AutosaveDelay = DefaultAutosaveDelay
	}
	if c.Editor.RetryDelay <= 0 {
		c.Editor.RetryDelay = DefaultRetryDelay
	}
	if c.Editor.HistoryLimit <= 0 {
		c.Editor.HistoryLimit = DefaultHistoryLimit
	}
	if c.Editor.OverlapTolerance <= 0 {
		c.Editor.OverlapTolerance = spatial.DefaultOverlapTolerance
	}
	if c.Editor.AreaCacheSize <= 0 {
		c.Editor.AreaCacheSize = spatial.DefaultAreaCacheSize
	}
	if c.Editor.PathCacheSize <= 0 {
		c.Editor.PathCacheSize = spatial.DefaultPathCacheSize
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.DraftDir == "" {
		c.DraftDir = ".drafts"
	}
}

// LoadConfig loads the configuration from a YAML file, fills defaults,
// applies environment overrides and validates required fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	config.applyDefaults()
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.baseUrl is required")
	}
	if c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range", c.HTTP.Port)
	}
	if c.Editor.OverlapTolerance < 0 {
		return fmt.Errorf("editor.overlapTolerance must not be negative")
	}
	return nil
}

// ApplyEnv overrides settings from the environment. Unset variables leave
// the configured value alone.
func (c *Config) ApplyEnv() {
	envString("FLOORPLAN_API_URL", &c.API.BaseURL)
	envString("FLOORPLAN_API_TOKEN", &c.API.Token)
	envString("MQTT_BROKER", &c.MQTT.Broker)
	envString("MQTT_CLIENT_ID", &c.MQTT.ClientID)
	envString("MQTT_USERNAME", &c.MQTT.Username)
	envString("MQTT_PASSWORD", &c.MQTT.Password)
	envString("MQTT_TOPIC_PREFIX", &c.MQTT.TopicPrefix)
	envString("FLOORPLAN_DRAFT_DIR", &c.DraftDir)
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ClientOptions returns the APIClient options for this configuration.
func (c *Config) ClientOptions() []ClientOption {
	opts := []ClientOption{
		WithTimeout(c.API.Timeout),
		WithMaxRetries(c.API.MaxRetries),
		WithBaseBackoff(c.API.BaseBackoff),
	}
	if c.API.Token != "" {
		opts = append(opts, WithToken(c.API.Token))
	}
	return opts
}

// SaveDeadline bounds one background save with all of its retries. Unless
// api.saveTimeout is set it leaves room for every attempt to use the full
// request timeout plus the backoff waits between attempts.
func (c *Config) SaveDeadline() time.Duration {
	if c.API.SaveTimeout > 0 {
		return c.API.SaveTimeout
	}
	attempts := max(c.API.MaxRetries, 1)
	deadline := c.API.Timeout * time.Duration(attempts)
	for i := 1; i < attempts; i++ {
		deadline += c.API.BaseBackoff << (i - 1)
	}
	return deadline
}

// SessionOptions returns the session options for this configuration.
func (c *Config) SessionOptions() SessionOptions {
	return SessionOptions{
		HistoryLimit:     c.Editor.HistoryLimit,
		OverlapTolerance: c.Editor.OverlapTolerance,
	}
}
