package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIURL         string   `json:"api_url" yaml:"api_url"`
	DBPath         string   `json:"db_path" yaml:"db_path"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
	NotifyTimeout  Duration `json:"notify_timeout" yaml:"notify_timeout"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
	LogPath        string   `json:"log_path" yaml:"log_path"`
	ServeAddr      string   `json:"serve_addr" yaml:"serve_addr"`
	MetricsAddr    string   `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

// Duration is a time.Duration written as "10s" in config files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var value string
	if err := json.Unmarshal(b, &value); err != nil {
		return err
	}
	return d.parse(value)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(value string) error {
	if strings.TrimSpace(value) == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}
	d.Duration = parsed
	return nil
}

func Default() Config {
	return Config{
		APIURL:         "http://localhost:8080/api",
		RequestTimeout: Duration{10 * time.Second},
		NotifyTimeout:  Duration{3 * time.Second},
		LogLevel:       "info",
		ServeAddr:      ":8080",
	}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "taskdeck", "config.json"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// Load reads the file at path and applies the environment overrides.
func Load(path string) (Config, error) {
	config, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	ApplyEnv(&config)
	return config, nil
}

// LoadFile reads only the file, on top of the defaults. A missing file
// yields the defaults.
func LoadFile(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return Config{}, err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, &config)
	} else {
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}

// LoadAndSave writes back the file together with override, then returns the
// effective config: file, then environment, then override again. Environment
// values are never written to the file.
func LoadAndSave(path string, override func(*Config)) (Config, error) {
	config, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	if override != nil {
		override(&config)
	}
	if err := Save(path, config); err != nil {
		return Config{}, err
	}

	ApplyEnv(&config)
	if override != nil {
		override(&config)
	}
	return config, nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func ApplyEnv(cfg *Config) {
	cfg.APIURL = getEnv("TASKDECK_API_URL", cfg.APIURL)
	cfg.DBPath = getEnv("TASKDECK_DB", cfg.DBPath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
