// Package config loads the process configuration: YAML file plus environment
// overrides. Secrets come only from the environment and are never written
// back out.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veritrace/veritrace/verify"
)

// Config is the root configuration shared by all entrypoints.
type Config struct {
	// QRSecret seals and opens QR credentials. Environment only
	// (VERITRACE_QR_SECRET); rotation happens out-of-band.
	QRSecret string `yaml:"-"`

	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Policy PolicyConfig `yaml:"policy"`
}

// RedisConfig locates the shared Redis instance backing the document store
// and the scan counters. Disabled means in-memory fallbacks.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`       // e.g. localhost:6379
	KeyPrefix string `yaml:"key_prefix"` // namespace, default "veritrace"
}

// KafkaConfig locates the notification topic. Disabled means notifications
// are dropped.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// PolicyConfig is the YAML form of the verification policy. Ages are in
// hours to keep the file free of duration strings.
type PolicyConfig struct {
	IdentityWeight    float64 `yaml:"identity_weight"`
	RecencyWeight     float64 `yaml:"recency_weight"`
	ScanPatternWeight float64 `yaml:"scan_pattern_weight"`
	ImageWeight       float64 `yaml:"image_weight"`

	GenuineThreshold    float64 `yaml:"genuine_threshold"`
	SuspiciousThreshold float64 `yaml:"suspicious_threshold"`

	MinRegistrationAgeHours int64 `yaml:"min_registration_age_hours"`
	MaxRegistrationAgeHours int64 `yaml:"max_registration_age_hours"`
	ScanAlertCount          int64 `yaml:"scan_alert_count"`
}

// ToPolicy converts the YAML form into the engine's policy.
func (p PolicyConfig) ToPolicy() verify.Policy {
	return verify.Policy{
		Weights: verify.Weights{
			IdentityMatch: p.IdentityWeight,
			Recency:       p.RecencyWeight,
			ScanPattern:   p.ScanPatternWeight,
			Image:         p.ImageWeight,
		},
		GenuineThreshold:    p.GenuineThreshold,
		SuspiciousThreshold: p.SuspiciousThreshold,
		MinRegistrationAge:  time.Duration(p.MinRegistrationAgeHours) * time.Hour,
		MaxRegistrationAge:  time.Duration(p.MaxRegistrationAgeHours) * time.Hour,
		ScanAlertCount:      p.ScanAlertCount,
	}
}

// Default returns a configuration mirroring verify.DefaultPolicy with all
// external services disabled.
func Default() Config {
	def := verify.DefaultPolicy()
	return Config{
		Redis: RedisConfig{Addr: "localhost:6379", KeyPrefix: "veritrace"},
		Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "veritrace.events"},
		Policy: PolicyConfig{
			IdentityWeight:          def.Weights.IdentityMatch,
			RecencyWeight:           def.Weights.Recency,
			ScanPatternWeight:       def.Weights.ScanPattern,
			ImageWeight:             def.Weights.Image,
			GenuineThreshold:        def.GenuineThreshold,
			SuspiciousThreshold:     def.SuspiciousThreshold,
			MinRegistrationAgeHours: int64(def.MinRegistrationAge / time.Hour),
			MaxRegistrationAgeHours: int64(def.MaxRegistrationAge / time.Hour),
			ScanAlertCount:          def.ScanAlertCount,
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty) and applies
// environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if v := os.Getenv("VERITRACE_QR_SECRET"); v != "" {
		cfg.QRSecret = v
	}
	if v := os.Getenv("VERITRACE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("VERITRACE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	return cfg, nil
}
