package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"fgaction/internal/logger"
)

// rawConfig is used for JSON unmarshaling with duration strings.
type rawConfig struct {
	Platform     PlatformConfig     `json:"Platform"`
	Strategy     string             `json:"Strategy"`
	Notification NotificationConfig `json:"Notification"`
	SenderType   string             `json:"SenderType"`
	File         FileConfig         `json:"File"`
	Kafka        rawKafkaConfig     `json:"Kafka"`
	KafkaRest    KafkaRestConfig    `json:"KafkaRest"`
	SOCKSProxy   SOCKSConfig        `json:"SocksProxy"`
	Expiration   rawExpiration      `json:"Expiration"`
	HTTP         HTTPConfig         `json:"HTTP"`
	Actions      []rawActionSpec    `json:"Actions"`
}

type rawActionSpec struct {
	Name        string   `json:"Name"`
	Command     string   `json:"Command"`
	Args        []string `json:"Args"`
	Env         []string `json:"Env"`
	TaskName    string   `json:"TaskName"`
	Title       string   `json:"Title"`
	Description string   `json:"Description"`
	Strategy    string   `json:"Strategy"`
	Interval    string   `json:"Interval"`
}

type rawKafkaConfig struct {
	Brokers        []string `json:"Brokers"`
	Topic          string   `json:"Topic"`
	Compression    string   `json:"Compression"`
	RequiredAcks   int      `json:"RequiredAcks"`
	MaxRetries     int      `json:"MaxRetries"`
	RetryBackoff   string   `json:"RetryBackoff"`
	FlushFrequency string   `json:"FlushFrequency"`
	FlushMessages  int      `json:"FlushMessages"`
	Timeout        string   `json:"Timeout"`
	EnableTLS      bool     `json:"EnableTLS"`
	TLSCertFile    string   `json:"TLSCertFile"`
	TLSKeyFile     string   `json:"TLSKeyFile"`
	TLSCAFile      string   `json:"TLSCAFile"`
	SASLEnabled    bool     `json:"SASLEnabled"`
	SASLMechanism  string   `json:"SASLMechanism"`
	SASLUser       string   `json:"SASLUser"`
	SASLPassword   string   `json:"SASLPassword"`
}

type rawExpiration struct {
	Budget    string      `json:"Budget"`
	Redis     RedisConfig `json:"Redis"`
	ClockSync string      `json:"ClockSync"`
}

// Load reads configuration from the specified file path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from JSON bytes and validates it.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	parsed, err := convertRawConfig(&raw)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.Merge(parsed)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch strings.ToLower(c.SenderType) {
	case "", "none", "file", "kafka":
	case "kafkarest":
		if c.KafkaRest.Address == "" {
			return fmt.Errorf("SenderType=kafkarest requires KafkaRest.Address")
		}
	default:
		return fmt.Errorf("unknown SenderType %q (supported: file, kafka, kafkarest, none)", c.SenderType)
	}

	if c.Expiration.Budget < 0 {
		return fmt.Errorf("Expiration.Budget must not be negative")
	}
	if c.Expiration.ClockSync < 0 {
		return fmt.Errorf("Expiration.ClockSync must not be negative")
	}
	if c.Expiration.Redis.Enabled && c.Expiration.Redis.Channel == "" {
		return fmt.Errorf("Expiration.Redis.Channel is required when Redis is enabled")
	}

	names := make(map[string]bool, len(c.Actions))
	for i, a := range c.Actions {
		if a.Name == "" {
			return fmt.Errorf("Actions[%d]: Name is required", i)
		}
		if a.Command == "" {
			return fmt.Errorf("Actions[%d] %q: Command is required", i, a.Name)
		}
		if a.Interval < 0 {
			return fmt.Errorf("Actions[%d] %q: Interval must not be negative", i, a.Name)
		}
		if names[a.Name] {
			return fmt.Errorf("Actions[%d]: duplicate name %q", i, a.Name)
		}
		names[a.Name] = true
	}
	return nil
}

func convertRawConfig(raw *rawConfig) (*Config, error) {
	cfg := &Config{
		Platform:     raw.Platform,
		Strategy:     raw.Strategy,
		Notification: raw.Notification,
		SenderType:   raw.SenderType,
		File:         raw.File,
		KafkaRest:    raw.KafkaRest,
		SOCKSProxy:   raw.SOCKSProxy,
		HTTP:         raw.HTTP,
	}

	kafka, err := convertRawKafka(&raw.Kafka)
	if err != nil {
		return nil, err
	}
	cfg.Kafka = *kafka

	budget, err := parseDuration("Expiration.Budget", raw.Expiration.Budget)
	if err != nil {
		return nil, err
	}
	clockSync, err := parseDuration("Expiration.ClockSync", raw.Expiration.ClockSync)
	if err != nil {
		return nil, err
	}
	cfg.Expiration = ExpirationConfig{Budget: budget, Redis: raw.Expiration.Redis, ClockSync: clockSync}

	for i, ra := range raw.Actions {
		interval, err := parseDuration(fmt.Sprintf("Actions[%d].Interval", i), ra.Interval)
		if err != nil {
			return nil, err
		}
		cfg.Actions = append(cfg.Actions, ActionSpec{
			Name:        ra.Name,
			Command:     ra.Command,
			Args:        ra.Args,
			Env:         ra.Env,
			TaskName:    ra.TaskName,
			Title:       ra.Title,
			Description: ra.Description,
			Strategy:    ra.Strategy,
			Interval:    interval,
		})
	}

	return cfg, nil
}

func convertRawKafka(raw *rawKafkaConfig) (*KafkaConfig, error) {
	kafka := &KafkaConfig{
		Brokers:       raw.Brokers,
		Topic:         raw.Topic,
		Compression:   raw.Compression,
		RequiredAcks:  raw.RequiredAcks,
		MaxRetries:    raw.MaxRetries,
		FlushMessages: raw.FlushMessages,
		EnableTLS:     raw.EnableTLS,
		TLSCertFile:   raw.TLSCertFile,
		TLSKeyFile:    raw.TLSKeyFile,
		TLSCAFile:     raw.TLSCAFile,
		SASLEnabled:   raw.SASLEnabled,
		SASLMechanism: raw.SASLMechanism,
		SASLUser:      raw.SASLUser,
		SASLPassword:  raw.SASLPassword,
	}

	var err error
	if kafka.RetryBackoff, err = parseDuration("Kafka.RetryBackoff", raw.RetryBackoff); err != nil {
		return nil, err
	}
	if kafka.FlushFrequency, err = parseDuration("Kafka.FlushFrequency", raw.FlushFrequency); err != nil {
		return nil, err
	}
	if kafka.Timeout, err = parseDuration("Kafka.Timeout", raw.Timeout); err != nil {
		return nil, err
	}
	return kafka, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", field, err)
	}
	return d, nil
}

// LoadLogging reads logging configuration from the specified file path.
func LoadLogging(path string) (*logger.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read logging config file: %w", err)
	}
	return ParseLogging(data)
}

// ParseLogging parses logging configuration from JSON bytes over logger defaults.
func ParseLogging(data []byte) (*logger.Config, error) {
	var parsed logger.Config
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse logging config JSON: %w", err)
	}

	def := logger.DefaultConfig()
	if parsed.Level != "" {
		def.Level = parsed.Level
	}
	if parsed.FilePath != "" {
		def.FilePath = parsed.FilePath
	}
	if parsed.MaxSizeMB != 0 {
		def.MaxSizeMB = parsed.MaxSizeMB
	}
	if parsed.MaxBackups != 0 {
		def.MaxBackups = parsed.MaxBackups
	}
	if parsed.MaxAgeDays != 0 {
		def.MaxAgeDays = parsed.MaxAgeDays
	}
	if parsed.Format != "" {
		def.Format = parsed.Format
	}
	def.Compress = parsed.Compress
	def.Console = parsed.Console

	return &def, nil
}

// LoadSplit loads fgaction.json and Logging.json. A missing logging file
// falls back to logger defaults.
func LoadSplit(configPath, loggingPath string) (*Config, *logger.Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if loggingPath == "" {
		lc := logger.DefaultConfig()
		return cfg, &lc, nil
	}
	lc, err := LoadLogging(loggingPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			def := logger.DefaultConfig()
			return cfg, &def, nil
		}
		return nil, nil, fmt.Errorf("failed to load logging config: %w", err)
	}
	return cfg, lc, nil
}
