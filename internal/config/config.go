// Package config loads runtime configuration: an optional YAML file first,
// then environment variable overrides, so a deployment can run with nothing
// but env vars.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults. Threshold and debounce match the values the bridge has run with
// on site; both are tunable per installation.
const (
	defaultHTTPAddr       = ":8080"
	defaultDBPath         = "sessions.db"
	defaultMQTTURL        = "mqtt://127.0.0.1:1883"
	defaultMQTTTopic      = "bike/telemetry/#"
	defaultMQTTClientID   = "wattbridge"
	defaultThresholdW     = 200
	defaultDebounce       = 35 * time.Second
	defaultAutoEnd        = 60 * time.Second
	defaultDonationFactor = 1
)

// Config holds all runtime configuration.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	DBPath   string `yaml:"db_path"`

	MQTT MQTTConfig `yaml:"mqtt"`

	// Auto-start / auto-end behavior.
	ThresholdW float64       `yaml:"auto_threshold_w"`
	Debounce   time.Duration `yaml:"auto_debounce"`
	AutoEnd    time.Duration `yaml:"auto_end"`

	AdminPIN       string  `yaml:"admin_pin"`
	BackupDir      string  `yaml:"backup_dir"`
	DonationFactor float64 `yaml:"donation_factor"` // € credited per Wh
}

// MQTTConfig locates the sensor gateway's broker.
type MQTTConfig struct {
	URL      string `yaml:"url"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// Load reads configuration from an optional YAML file at path (empty path
// skips the file; a named file must exist), then applies environment
// overrides. Defaults are filled in first so an explicit zero in the file or
// environment (threshold 0, donation factor 0) survives as zero.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		HTTPAddr: defaultHTTPAddr,
		DBPath:   defaultDBPath,
		MQTT: MQTTConfig{
			URL:      defaultMQTTURL,
			Topic:    defaultMQTTTopic,
			ClientID: defaultMQTTClientID,
		},
		ThresholdW:     defaultThresholdW,
		Debounce:       defaultDebounce,
		AutoEnd:        defaultAutoEnd,
		BackupDir:      ".backups",
		DonationFactor: defaultDonationFactor,
	}
}

func (c *Config) applyEnv() {
	setString(&c.HTTPAddr, "BRIDGE_HTTP_ADDR")
	setString(&c.DBPath, "BRIDGE_DB_PATH")
	setString(&c.MQTT.URL, "BRIDGE_MQTT_URL")
	setString(&c.MQTT.Topic, "BRIDGE_MQTT_TOPIC")
	setString(&c.MQTT.ClientID, "BRIDGE_MQTT_CLIENT_ID")
	setFloat(&c.ThresholdW, "AUTO_THRESHOLD_W")
	setDurationMS(&c.Debounce, "AUTO_DEBOUNCE_MS")
	setDurationMS(&c.AutoEnd, "AUTO_END_MS")
	setString(&c.AdminPIN, "ADMIN_PIN")
	setString(&c.BackupDir, "BACKUP_DIR")
	setFloat(&c.DonationFactor, "DONATION_FACTOR")
}

// Validate checks ranges.
func (c *Config) Validate() error {
	if c.ThresholdW < 0 {
		return errors.New("auto_threshold_w must not be negative")
	}
	if c.Debounce < 0 {
		return errors.New("auto_debounce must not be negative")
	}
	if c.AutoEnd <= 0 {
		return errors.New("auto_end must be positive")
	}
	if c.DonationFactor < 0 {
		return errors.New("donation_factor must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: invalid number for %s=%q, keeping %v\n", key, v, *dst)
		return
	}
	*dst = f
}

func setDurationMS(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: invalid milliseconds for %s=%q, keeping %v\n", key, v, *dst)
		return
	}
	*dst = time.Duration(ms) * time.Millisecond
}
