package application

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the evaluation engine settings. Values come from an
// optional YAML file named by MONITOR_CONFIG, with env fallbacks for the
// common knobs.
type EngineConfig struct {
	EvaluationInterval time.Duration `yaml:"evaluation_interval"`
	StartupPolicy      StartupPolicy `yaml:"startup_policy"`
	WebhookURL         string        `yaml:"webhook_url"`
	NotifyTemplate     string        `yaml:"notify_template"`
	EscalationAfter    time.Duration `yaml:"escalation_after"`
	NotifyCooldown     time.Duration `yaml:"notify_cooldown"`
	NotifyDedupeWindow time.Duration `yaml:"notify_dedupe_window"`
	NotifyTimeout      time.Duration `yaml:"notify_timeout"`
}

// LoadEngineConfig loads engine settings from yaml or env.
func LoadEngineConfig() (EngineConfig, error) {
	cfg := EngineConfig{
		EvaluationInterval: getenvDuration("EVALUATION_INTERVAL", DefaultEvaluationInterval),
		StartupPolicy:      StartupPolicy(getenvDefault("STARTUP_ALARM_POLICY", string(StartupArchive))),
		WebhookURL:         os.Getenv("ALARM_WEBHOOK_URL"),
		NotifyTemplate:     os.Getenv("ALARM_NOTIFY_TEMPLATE"),
		EscalationAfter:    getenvDuration("ALARM_ESCALATION_AFTER", 0),
		NotifyCooldown:     getenvDuration("ALARM_NOTIFY_COOLDOWN", 0),
		NotifyDedupeWindow: getenvDuration("ALARM_NOTIFY_DEDUP_WINDOW", 0),
		NotifyTimeout:      getenvDuration("ALARM_NOTIFY_TIMEOUT", 5*time.Second),
	}

	if path := os.Getenv("MONITOR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = DefaultEvaluationInterval
	}
	if cfg.StartupPolicy == "" {
		cfg.StartupPolicy = StartupArchive
	}
	if !cfg.StartupPolicy.Valid() {
		return cfg, fmt.Errorf("engine config: invalid startup policy %q", cfg.StartupPolicy)
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
