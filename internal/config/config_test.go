package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fgaction/internal/logger"
)

func init() {
	_ = logger.Init(logger.Config{Level: "disabled"})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SenderType != "file" {
		t.Errorf("expected SenderType=file, got %q", cfg.SenderType)
	}
	if cfg.Expiration.Budget != 30*time.Second {
		t.Errorf("expected Expiration.Budget=30s, got %v", cfg.Expiration.Budget)
	}
	if cfg.Expiration.Redis.Enabled {
		t.Error("expected Redis expiration source disabled by default")
	}
	if cfg.Notification.TaskName == "" {
		t.Error("expected a default task name")
	}
	if cfg.HTTP.Address != "" {
		t.Errorf("expected HTTP disabled by default, got %q", cfg.HTTP.Address)
	}
}

func TestParse_FullConfig(t *testing.T) {
	input := `{
		"Platform": {"Name": "android", "OSLevel": 34},
		"Strategy": "in-process",
		"Notification": {"Title": "Syncing", "Color": "#FF0000"},
		"SenderType": "kafka",
		"Kafka": {"Brokers": ["k1:9092", "k2:9092"], "Topic": "status", "RetryBackoff": "250ms", "Timeout": "3s"},
		"Expiration": {"Budget": "25s", "ClockSync": "10m", "Redis": {"Enabled": true, "Address": "10.0.0.5:6379", "Channel": "exp"}},
		"HTTP": {"Address": ":8088"},
		"Actions": [{"Name": "backup", "Command": "rsync", "Args": ["-a", "src", "dst"], "Interval": "1h"}]
	}`

	cfg, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Platform.Name != "android" || cfg.Platform.OSLevel != 34 {
		t.Errorf("unexpected platform: %+v", cfg.Platform)
	}
	if cfg.Strategy != "in-process" {
		t.Errorf("expected Strategy=in-process, got %q", cfg.Strategy)
	}
	if cfg.Notification.Title != "Syncing" {
		t.Errorf("expected Title=Syncing, got %q", cfg.Notification.Title)
	}
	if cfg.Notification.TaskName != "fgaction" {
		t.Errorf("expected default TaskName kept, got %q", cfg.Notification.TaskName)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Topic != "status" {
		t.Errorf("unexpected kafka: %+v", cfg.Kafka)
	}
	if cfg.Kafka.RetryBackoff != 250*time.Millisecond {
		t.Errorf("expected RetryBackoff=250ms, got %v", cfg.Kafka.RetryBackoff)
	}
	if cfg.Kafka.FlushFrequency != 500*time.Millisecond {
		t.Errorf("expected default FlushFrequency, got %v", cfg.Kafka.FlushFrequency)
	}
	if cfg.Expiration.Budget != 25*time.Second {
		t.Errorf("expected Budget=25s, got %v", cfg.Expiration.Budget)
	}
	if cfg.Expiration.ClockSync != 10*time.Minute {
		t.Errorf("expected ClockSync=10m, got %v", cfg.Expiration.ClockSync)
	}
	if !cfg.Expiration.Redis.Enabled || cfg.Expiration.Redis.Channel != "exp" {
		t.Errorf("unexpected redis: %+v", cfg.Expiration.Redis)
	}
	if cfg.HTTP.Address != ":8088" {
		t.Errorf("expected HTTP.Address=:8088, got %q", cfg.HTTP.Address)
	}
	if len(cfg.Actions) != 1 || cfg.Actions[0].Command != "rsync" || len(cfg.Actions[0].Args) != 3 {
		t.Fatalf("unexpected actions: %+v", cfg.Actions)
	}
	if cfg.Actions[0].Interval != time.Hour {
		t.Errorf("expected Interval=1h, got %v", cfg.Actions[0].Interval)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"bad json":            `{`,
		"bad duration":        `{"Kafka": {"Timeout": "soon"}}`,
		"bad budget":          `{"Expiration": {"Budget": "-"}}`,
		"unknown sender":      `{"SenderType": "carrier-pigeon"}`,
		"kafkarest no addr":   `{"SenderType": "kafkarest"}`,
		"bad clock sync":      `{"Expiration": {"ClockSync": "hourly"}}`,
		"negative clock sync": `{"Expiration": {"ClockSync": "-1m"}}`,
		"negative budget":     `{"Expiration": {"Budget": "-1s"}}`,
		"action no command":   `{"Actions": [{"Name": "x"}]}`,
		"action no name":      `{"Actions": [{"Command": "true"}]}`,
		"action bad interval": `{"Actions": [{"Name": "x", "Command": "a", "Interval": "often"}]}`,
		"action neg interval": `{"Actions": [{"Name": "x", "Command": "a", "Interval": "-1m"}]}`,
		"action duplicate":    `{"Actions": [{"Name": "x", "Command": "a"}, {"Name": "x", "Command": "b"}]}`,
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(input)); err == nil {
				t.Errorf("expected error for %s", name)
			}
		})
	}
}

func TestParse_RedisChannelDefaultSatisfiesValidation(t *testing.T) {
	cfg, err := Parse([]byte(`{"Expiration": {"Redis": {"Enabled": true}}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Expiration.Redis.Channel != "fgaction:expiration" {
		t.Errorf("expected default channel, got %q", cfg.Expiration.Redis.Channel)
	}
}

func TestParseLogging(t *testing.T) {
	lc, err := ParseLogging([]byte(`{"Level": "debug", "Format": "text", "Console": true}`))
	if err != nil {
		t.Fatalf("ParseLogging failed: %v", err)
	}
	if lc.Level != "debug" || lc.Format != "text" || !lc.Console {
		t.Errorf("unexpected logging config: %+v", lc)
	}
	if lc.MaxSizeMB != logger.DefaultConfig().MaxSizeMB {
		t.Errorf("expected default MaxSizeMB, got %d", lc.MaxSizeMB)
	}
}

func TestLoadSplit_MissingLoggingFallsBack(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fgaction.json")
	if err := os.WriteFile(cfgPath, []byte(`{"SenderType": "none"}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, lc, err := LoadSplit(cfgPath, filepath.Join(dir, "Logging.json"))
	if err != nil {
		t.Fatalf("LoadSplit failed: %v", err)
	}
	if cfg.SenderType != "none" {
		t.Errorf("expected SenderType=none, got %q", cfg.SenderType)
	}
	if lc.Level != "info" {
		t.Errorf("expected default logging level, got %q", lc.Level)
	}
}

func TestLoadSplit_MissingConfig(t *testing.T) {
	_, _, err := LoadSplit(filepath.Join(t.TempDir(), "nope.json"), "")
	if err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("expected load error, got %v", err)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Logging.json")
	if err := os.WriteFile(path, []byte(`{"Level": "info"}`), 0644); err != nil {
		t.Fatal(err)
	}

	got := make(chan *logger.Config, 4)
	w, err := NewLoggingWatcher(path, func(lc *logger.Config) { got <- lc })
	if err != nil {
		t.Fatalf("NewLoggingWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{"Level": "debug"}`), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case lc := <-got:
		if lc.Level != "debug" {
			t.Errorf("expected reloaded level debug, got %q", lc.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire")
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w, err := NewFileWatcher(filepath.Join(t.TempDir(), "x.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if !w.IsRunning() {
		t.Error("expected running after Start")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}
