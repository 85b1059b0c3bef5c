package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"credwatch/internal/model"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port string `yaml:"port" json:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type IntakeConfig struct {
	MaxEventsPerMinute int `yaml:"max_events_per_minute" json:"max_events_per_minute"`
}

type RetentionConfig struct {
	EventRetentionDays   int `yaml:"event_retention_days" json:"event_retention_days"`
	AlertRetentionDays   int `yaml:"alert_retention_days" json:"alert_retention_days"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" json:"sweep_interval_seconds"`
}

type ResolverConfig struct {
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" json:"sweep_interval_seconds"`
}

type DispatchConfig struct {
	Workers              int `yaml:"workers" json:"workers"`
	QueueSize            int `yaml:"queue_size" json:"queue_size"`
	RetryAttempts        int `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelaySeconds    int `yaml:"retry_delay_seconds" json:"retry_delay_seconds"`
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds" json:"shutdown_grace_seconds"`
}

// EngineConfig is the full engine configuration snapshot. Reconfiguration
// builds a new value and swaps it atomically; components never mutate it.
type EngineConfig struct {
	Server      ServerConfig                `yaml:"server" json:"server"`
	Logging     LoggingConfig               `yaml:"logging" json:"logging"`
	Intake      IntakeConfig                `yaml:"intake" json:"intake"`
	Retention   RetentionConfig             `yaml:"retention" json:"retention"`
	Resolver    ResolverConfig              `yaml:"resolver" json:"resolver"`
	Dispatch    DispatchConfig              `yaml:"dispatch" json:"dispatch"`
	Rules       []model.AlertRule           `yaml:"rules" json:"rules"`
	Channels    []model.NotificationChannel `yaml:"channels" json:"channels"`
	AutoResolve []model.AutoResolveRule     `yaml:"auto_resolve" json:"auto_resolve"`
}

// GetDefaultEngineConfig returns a runnable default configuration.
func GetDefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Server:  ServerConfig{Port: "5001"},
		Logging: LoggingConfig{Level: "INFO", Format: "text"},
		Intake:  IntakeConfig{MaxEventsPerMinute: 6000},
		Retention: RetentionConfig{
			EventRetentionDays:   30,
			AlertRetentionDays:   90,
			SweepIntervalSeconds: 3600,
		},
		Resolver: ResolverConfig{SweepIntervalSeconds: 60},
		Dispatch: DispatchConfig{
			Workers:              3,
			QueueSize:            1000,
			RetryAttempts:        3,
			RetryDelaySeconds:    1,
			ShutdownGraceSeconds: 10,
		},
	}
}

// applyDefaults fills zero-valued operational settings in place.
func (c *EngineConfig) applyDefaults() {
	def := GetDefaultEngineConfig()
	if c.Server.Port == "" {
		c.Server.Port = def.Server.Port
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Intake.MaxEventsPerMinute <= 0 {
		c.Intake.MaxEventsPerMinute = def.Intake.MaxEventsPerMinute
	}
	if c.Retention.EventRetentionDays <= 0 {
		c.Retention.EventRetentionDays = def.Retention.EventRetentionDays
	}
	if c.Retention.AlertRetentionDays <= 0 {
		c.Retention.AlertRetentionDays = def.Retention.AlertRetentionDays
	}
	if c.Retention.SweepIntervalSeconds <= 0 {
		c.Retention.SweepIntervalSeconds = def.Retention.SweepIntervalSeconds
	}
	if c.Resolver.SweepIntervalSeconds <= 0 {
		c.Resolver.SweepIntervalSeconds = def.Resolver.SweepIntervalSeconds
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = def.Dispatch.Workers
	}
	if c.Dispatch.QueueSize <= 0 {
		c.Dispatch.QueueSize = def.Dispatch.QueueSize
	}
	if c.Dispatch.RetryAttempts <= 0 {
		c.Dispatch.RetryAttempts = def.Dispatch.RetryAttempts
	}
	if c.Dispatch.RetryDelaySeconds <= 0 {
		c.Dispatch.RetryDelaySeconds = def.Dispatch.RetryDelaySeconds
	}
	if c.Dispatch.ShutdownGraceSeconds <= 0 {
		c.Dispatch.ShutdownGraceSeconds = def.Dispatch.ShutdownGraceSeconds
	}
}

// Validate fills defaults for operational settings and collects every
// rule/channel/auto-resolve violation into a single error.
func (c *EngineConfig) Validate() error {
	c.applyDefaults()

	verr := &model.ValidationError{}

	channelIDs := make(map[string]bool)
	for i, ch := range c.Channels {
		if ch.ID == "" {
			verr.Add(fmt.Sprintf("channel[%d]: missing id", i))
			continue
		}
		if channelIDs[ch.ID] {
			verr.Add(fmt.Sprintf("channel %q: duplicate id", ch.ID))
		}
		channelIDs[ch.ID] = true
		if !ch.Type.Valid() {
			verr.Add(fmt.Sprintf("channel %q: unknown type %q", ch.ID, ch.Type))
			continue
		}
		if ch.MinSeverity != "" && !ch.MinSeverity.Valid() {
			verr.Add(fmt.Sprintf("channel %q: unknown min_severity %q", ch.ID, ch.MinSeverity))
		}
		for _, key := range model.RequiredConfigKeys[ch.Type] {
			if ch.Configuration[key] == "" {
				verr.Add(fmt.Sprintf("channel %q: missing configuration key %q", ch.ID, key))
			}
		}
	}

	ruleIDs := make(map[string]bool)
	for i, r := range c.Rules {
		if r.ID == "" {
			verr.Add(fmt.Sprintf("rule[%d]: missing id", i))
			continue
		}
		if ruleIDs[r.ID] {
			verr.Add(fmt.Sprintf("rule %q: duplicate id", r.ID))
		}
		ruleIDs[r.ID] = true
		if r.EventType == "" {
			verr.Add(fmt.Sprintf("rule %q: missing event_type", r.ID))
		}
		if r.Threshold <= 0 {
			verr.Add(fmt.Sprintf("rule %q: threshold must be > 0", r.ID))
		}
		if r.WindowMinutes <= 0 {
			verr.Add(fmt.Sprintf("rule %q: window_minutes must be > 0", r.ID))
		}
		if r.CooldownMinutes < 0 {
			verr.Add(fmt.Sprintf("rule %q: cooldown_minutes must be >= 0", r.ID))
		}
		if !r.AlertSeverity.Valid() {
			verr.Add(fmt.Sprintf("rule %q: unknown alert_severity %q", r.ID, r.AlertSeverity))
		}
		for _, chID := range r.NotificationChannelIDs {
			if !channelIDs[chID] {
				verr.Add(fmt.Sprintf("rule %q: references unknown channel %q", r.ID, chID))
			}
		}
	}

	arIDs := make(map[string]bool)
	for i, ar := range c.AutoResolve {
		if ar.ID == "" {
			verr.Add(fmt.Sprintf("auto_resolve[%d]: missing id", i))
			continue
		}
		if arIDs[ar.ID] {
			verr.Add(fmt.Sprintf("auto_resolve %q: duplicate id", ar.ID))
		}
		arIDs[ar.ID] = true
		if ar.AlertType == "" {
			verr.Add(fmt.Sprintf("auto_resolve %q: missing alert_type", ar.ID))
		}
		if ar.ResolutionMinutes <= 0 {
			verr.Add(fmt.Sprintf("auto_resolve %q: resolution_minutes must be > 0", ar.ID))
		}
	}

	return verr.Err()
}

// LoadEngineConfig reads and validates a YAML or JSON configuration file.
func LoadEngineConfig(filename string) (*EngineConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %v", filename, err)
	}

	var config EngineConfig
	if strings.HasSuffix(filename, ".json") {
		err = json.Unmarshal(data, &config)
	} else {
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %v", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	return &config, nil
}

// SaveConfig writes the configuration back out in the file's format.
func (c *EngineConfig) SaveConfig(filename string) error {
	var data []byte
	var err error
	if strings.HasSuffix(filename, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %v", filename, err)
	}
	return nil
}

// ConfigManager owns the active configuration snapshot and its file.
type ConfigManager struct {
	path    string
	logger  *logrus.Logger
	current atomic.Pointer[EngineConfig]
}

func NewConfigManager(path string, logger *logrus.Logger) *ConfigManager {
	return &ConfigManager{path: path, logger: logger}
}

// Load reads the file, validates it and makes it the active snapshot.
func (m *ConfigManager) Load() (*EngineConfig, error) {
	config, err := LoadEngineConfig(m.path)
	if err != nil {
		return nil, err
	}
	m.current.Store(config)
	return config, nil
}

// Current returns the active snapshot, falling back to defaults.
func (m *ConfigManager) Current() *EngineConfig {
	if c := m.current.Load(); c != nil {
		return c
	}
	def := GetDefaultEngineConfig()
	m.current.Store(def)
	return def
}

// Apply validates a new configuration, persists it and swaps the snapshot.
func (m *ConfigManager) Apply(config *EngineConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if err := config.SaveConfig(m.path); err != nil {
		return err
	}
	m.current.Store(config)
	m.logger.Infof("Configuration applied: %d rules, %d channels, %d auto-resolve rules",
		len(config.Rules), len(config.Channels), len(config.AutoResolve))
	return nil
}

// Swap replaces the active snapshot without touching the file.
func (m *ConfigManager) Swap(config *EngineConfig) {
	m.current.Store(config)
}

// Path returns the config file path.
func (m *ConfigManager) Path() string {
	return m.path
}
