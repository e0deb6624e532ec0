// Package config provides configuration management for the fgaction daemon.
package config

import (
	"time"
)

// Config is the root configuration structure (fgaction.json).
type Config struct {
	Platform     PlatformConfig     `json:"Platform"`
	Strategy     string             `json:"Strategy"` // optional override, only "in-process" is honoured
	Notification NotificationConfig `json:"Notification"`
	SenderType   string             `json:"SenderType"` // "file", "kafka", "kafkarest" or "none"
	File         FileConfig         `json:"File"`
	Kafka        KafkaConfig        `json:"Kafka"`
	KafkaRest    KafkaRestConfig    `json:"KafkaRest"`
	SOCKSProxy   SOCKSConfig        `json:"SocksProxy"`
	Expiration   ExpirationConfig   `json:"Expiration"`
	HTTP         HTTPConfig         `json:"HTTP"`
	Actions      []ActionSpec       `json:"Actions"`
}

// PlatformConfig overrides platform detection when Name is set.
type PlatformConfig struct {
	Name    string `json:"Name"`
	OSLevel int    `json:"OSLevel"`
}

// NotificationConfig holds the defaults for the visible status of an action.
type NotificationConfig struct {
	TaskName    string `json:"TaskName"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Color       string `json:"Color"`
	Icon        string `json:"Icon"`
}

// FileConfig contains settings for the file status sink.
type FileConfig struct {
	FilePath   string `json:"FilePath"`
	MaxSizeMB  int    `json:"MaxSizeMB"`
	MaxBackups int    `json:"MaxBackups"`
	Console    bool   `json:"Console"`
	Pretty     bool   `json:"Pretty"`
	Format     string `json:"Format"` // "json" or "text" (default: "json")
}

// KafkaConfig contains Kafka connection settings.
type KafkaConfig struct {
	Brokers        []string      `json:"Brokers"`
	Topic          string        `json:"Topic"`
	Compression    string        `json:"Compression"`
	RequiredAcks   int           `json:"RequiredAcks"`
	MaxRetries     int           `json:"MaxRetries"`
	RetryBackoff   time.Duration `json:"RetryBackoff"`
	FlushFrequency time.Duration `json:"FlushFrequency"`
	FlushMessages  int           `json:"FlushMessages"`
	Timeout        time.Duration `json:"Timeout"`
	EnableTLS      bool          `json:"EnableTLS"`
	TLSCertFile    string        `json:"TLSCertFile"`
	TLSKeyFile     string        `json:"TLSKeyFile"`
	TLSCAFile      string        `json:"TLSCAFile"`
	SASLEnabled    bool          `json:"SASLEnabled"`
	SASLMechanism  string        `json:"SASLMechanism"`
	SASLUser       string        `json:"SASLUser"`
	SASLPassword   string        `json:"SASLPassword"`
}

// KafkaRestConfig contains settings for the Kafka REST proxy sink.
type KafkaRestConfig struct {
	Address string `json:"Address"`
	Topic   string `json:"Topic"`
}

// SOCKSConfig contains SOCKS5 proxy settings.
type SOCKSConfig struct {
	Host string `json:"Host"`
	Port int    `json:"Port"`
}

// ExpirationConfig controls where "execution budget ending" notices come from.
type ExpirationConfig struct {
	// Budget is the background execution budget of a direct native context.
	// Zero disables the budget timer.
	Budget time.Duration `json:"Budget"`
	Redis  RedisConfig   `json:"Redis"`
	// ClockSync measures the offset to the Redis server clock at this
	// interval and stamps status records with server time. Zero disables it.
	ClockSync time.Duration `json:"ClockSync"`
}

// RedisConfig configures the Redis pub/sub expiration source.
type RedisConfig struct {
	Enabled  bool   `json:"Enabled"`
	Address  string `json:"Address"`
	Password string `json:"Password"`
	DB       int    `json:"DB"`
	Channel  string `json:"Channel"`
}

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Address string `json:"Address"` // empty disables the API
}

// ActionSpec is a command the daemon runs as a foreground action on startup.
type ActionSpec struct {
	Name        string   `json:"Name"`
	Command     string   `json:"Command"`
	Args        []string `json:"Args"`
	Env         []string `json:"Env"`
	TaskName    string   `json:"TaskName"`
	Title       string   `json:"Title"`
	Description string   `json:"Description"`
	Strategy    string   `json:"Strategy"`
	// Interval re-runs the action periodically. Zero runs it once at startup.
	Interval time.Duration `json:"Interval"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Notification: NotificationConfig{
			TaskName: "fgaction",
			Title:    "Running in background",
			Color:    "#1E88E5",
			Icon:     "ic_notification",
		},
		SenderType: "file",
		File: FileConfig{
			FilePath:   "log/fgaction/status.jsonl",
			MaxSizeMB:  50,
			MaxBackups: 3,
			Format:     "json",
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			Topic:          "fgaction-status",
			Compression:    "snappy",
			RequiredAcks:   1,
			MaxRetries:     3,
			RetryBackoff:   100 * time.Millisecond,
			FlushFrequency: 500 * time.Millisecond,
			FlushMessages:  100,
			Timeout:        10 * time.Second,
		},
		KafkaRest: KafkaRestConfig{
			Topic: "fgaction-status",
		},
		Expiration: ExpirationConfig{
			Budget: 30 * time.Second,
			Redis: RedisConfig{
				Address: "localhost:6379",
				Channel: "fgaction:expiration",
			},
		},
	}
}

// Merge applies non-zero values from other to this config.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Platform.Name != "" {
		c.Platform.Name = other.Platform.Name
	}
	if other.Platform.OSLevel != 0 {
		c.Platform.OSLevel = other.Platform.OSLevel
	}
	if other.Strategy != "" {
		c.Strategy = other.Strategy
	}

	mergeString(&c.Notification.TaskName, other.Notification.TaskName)
	mergeString(&c.Notification.Title, other.Notification.Title)
	mergeString(&c.Notification.Description, other.Notification.Description)
	mergeString(&c.Notification.Color, other.Notification.Color)
	mergeString(&c.Notification.Icon, other.Notification.Icon)

	mergeString(&c.SenderType, other.SenderType)

	mergeString(&c.File.FilePath, other.File.FilePath)
	if other.File.MaxSizeMB != 0 {
		c.File.MaxSizeMB = other.File.MaxSizeMB
	}
	if other.File.MaxBackups != 0 {
		c.File.MaxBackups = other.File.MaxBackups
	}
	c.File.Console = other.File.Console
	c.File.Pretty = other.File.Pretty
	mergeString(&c.File.Format, other.File.Format)

	if len(other.Kafka.Brokers) > 0 {
		c.Kafka.Brokers = other.Kafka.Brokers
	}
	mergeString(&c.Kafka.Topic, other.Kafka.Topic)
	mergeString(&c.Kafka.Compression, other.Kafka.Compression)
	if other.Kafka.RequiredAcks != 0 {
		c.Kafka.RequiredAcks = other.Kafka.RequiredAcks
	}
	if other.Kafka.MaxRetries != 0 {
		c.Kafka.MaxRetries = other.Kafka.MaxRetries
	}
	if other.Kafka.RetryBackoff != 0 {
		c.Kafka.RetryBackoff = other.Kafka.RetryBackoff
	}
	if other.Kafka.FlushFrequency != 0 {
		c.Kafka.FlushFrequency = other.Kafka.FlushFrequency
	}
	if other.Kafka.FlushMessages != 0 {
		c.Kafka.FlushMessages = other.Kafka.FlushMessages
	}
	if other.Kafka.Timeout != 0 {
		c.Kafka.Timeout = other.Kafka.Timeout
	}
	c.Kafka.EnableTLS = other.Kafka.EnableTLS
	mergeString(&c.Kafka.TLSCertFile, other.Kafka.TLSCertFile)
	mergeString(&c.Kafka.TLSKeyFile, other.Kafka.TLSKeyFile)
	mergeString(&c.Kafka.TLSCAFile, other.Kafka.TLSCAFile)
	c.Kafka.SASLEnabled = other.Kafka.SASLEnabled
	mergeString(&c.Kafka.SASLMechanism, other.Kafka.SASLMechanism)
	mergeString(&c.Kafka.SASLUser, other.Kafka.SASLUser)
	mergeString(&c.Kafka.SASLPassword, other.Kafka.SASLPassword)

	mergeString(&c.KafkaRest.Address, other.KafkaRest.Address)
	mergeString(&c.KafkaRest.Topic, other.KafkaRest.Topic)

	mergeString(&c.SOCKSProxy.Host, other.SOCKSProxy.Host)
	if other.SOCKSProxy.Port != 0 {
		c.SOCKSProxy.Port = other.SOCKSProxy.Port
	}

	if other.Expiration.Budget != 0 {
		c.Expiration.Budget = other.Expiration.Budget
	}
	if other.Expiration.ClockSync != 0 {
		c.Expiration.ClockSync = other.Expiration.ClockSync
	}
	c.Expiration.Redis.Enabled = other.Expiration.Redis.Enabled
	mergeString(&c.Expiration.Redis.Address, other.Expiration.Redis.Address)
	mergeString(&c.Expiration.Redis.Password, other.Expiration.Redis.Password)
	if other.Expiration.Redis.DB != 0 {
		c.Expiration.Redis.DB = other.Expiration.Redis.DB
	}
	mergeString(&c.Expiration.Redis.Channel, other.Expiration.Redis.Channel)

	mergeString(&c.HTTP.Address, other.HTTP.Address)

	if len(other.Actions) > 0 {
		c.Actions = other.Actions
	}
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
