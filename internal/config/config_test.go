package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/fanout/internal/channel"
	"github.com/Iron-Ham/fanout/internal/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Channel.Limits() != channel.DefaultConfig() {
		t.Errorf("Channel.Limits() = %+v, want %+v", cfg.Channel.Limits(), channel.DefaultConfig())
	}
	if cfg.Publisher.Interval() != 10*time.Millisecond {
		t.Errorf("Publisher.Interval() = %v, want 10ms", cfg.Publisher.Interval())
	}
	if cfg.Orchestrator.NamePrefix != "testing" {
		t.Errorf("Orchestrator.NamePrefix = %q, want testing", cfg.Orchestrator.NamePrefix)
	}
	if cfg.Orchestrator.ProgressEvery != 1000 {
		t.Errorf("Orchestrator.ProgressEvery = %d, want 1000", cfg.Orchestrator.ProgressEvery)
	}
	if !cfg.Orchestrator.ForwardInterrupt {
		t.Error("Orchestrator.ForwardInterrupt should be true by default")
	}
	if cfg.Orchestrator.Topology != TopologyProcess {
		t.Errorf("Orchestrator.Topology = %q, want process", cfg.Orchestrator.Topology)
	}
	if cfg.Orchestrator.SnapshotInterval() != 250*time.Millisecond {
		t.Errorf("SnapshotInterval() = %v", cfg.Orchestrator.SnapshotInterval())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging defaults %+v", cfg.Logging)
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should be valid, got %v", errs)
	}
}

func TestResolveDir(t *testing.T) {
	c := ChannelConfig{}
	if c.ResolveDir() != channel.DefaultDir() {
		t.Errorf("ResolveDir() = %q, want default", c.ResolveDir())
	}
	c.Dir = "/tmp/custom"
	if c.ResolveDir() != "/tmp/custom" {
		t.Errorf("ResolveDir() = %q", c.ResolveDir())
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults and environment", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		t.Setenv("FANOUT_ORCHESTRATOR_AGENTS", "7")
		t.Setenv("FANOUT_CHANNEL_BUFFER_SIZE", "64")

		SetDefaults()
		viper.SetEnvPrefix("FANOUT")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Orchestrator.Agents != 7 {
			t.Errorf("Agents = %d, want 7", cfg.Orchestrator.Agents)
		}
		if cfg.Channel.BufferSize != 64 {
			t.Errorf("BufferSize = %d, want 64", cfg.Channel.BufferSize)
		}
		if cfg.Channel.HistorySize != channel.DefaultHistorySize {
			t.Errorf("HistorySize = %d, want default", cfg.Channel.HistorySize)
		}
	})

	t.Run("config file", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "orchestrator:\n  agents: 2\n  topology: task\nlogging:\n  level: debug\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		SetDefaults()
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			t.Fatalf("ReadInConfig failed: %v", err)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Orchestrator.Agents != 2 || cfg.Orchestrator.Topology != TopologyTask {
			t.Errorf("unexpected orchestrator config %+v", cfg.Orchestrator)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
		}
		if !cfg.Orchestrator.ForwardInterrupt {
			t.Error("unset keys should keep their defaults")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		SetDefaults()
		viper.Set("orchestrator.agents", 0)
		viper.Set("channel.max_subscribers", 0)

		_, err := Load()
		if err == nil {
			t.Fatal("expected validation error")
		}
		var verrs ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) != 2 {
			t.Fatalf("expected 2 validation errors, got %v", err)
		}
		if !errors.Is(err, errors.ErrInvalidInput) {
			t.Error("validation errors should match ErrInvalidInput")
		}
	})
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := ConfigDir(); got != "/tmp/xdg/fanout" {
		t.Errorf("ConfigDir() = %q", got)
	}
	if got := ConfigFile(); got != "/tmp/xdg/fanout/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestAgentEnv(t *testing.T) {
	src := Default()
	src.Channel.BufferSize = 100
	src.Channel.Dir = t.TempDir()
	src.Publisher.IntervalMs = 25
	src.Logging.Level = "trace"
	src.Logging.File = "/var/log/fanout.log"

	env := src.AgentEnv()
	for _, kv := range env {
		if strings.HasPrefix(kv, "FANOUT_LOGGING_FILE=") {
			t.Errorf("log file should not be passed to agents: %s", kv)
		}
	}

	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, kv := range env {
		key, value, _ := strings.Cut(kv, "=")
		t.Setenv(key, value)
	}
	SetDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	got, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Channel.Limits() != src.Channel.Limits() {
		t.Errorf("Limits() = %+v, want %+v", got.Channel.Limits(), src.Channel.Limits())
	}
	if got.Channel.Dir != src.Channel.Dir {
		t.Errorf("Dir = %q, want %q", got.Channel.Dir, src.Channel.Dir)
	}
	if got.Publisher.Interval() != 25*time.Millisecond {
		t.Errorf("Interval() = %v, want 25ms", got.Publisher.Interval())
	}
	if got.Logging.Level != "trace" {
		t.Errorf("Logging.Level = %q, want trace", got.Logging.Level)
	}
}

func TestEnvKey(t *testing.T) {
	if got := EnvKey("channel.buffer_size"); got != "FANOUT_CHANNEL_BUFFER_SIZE" {
		t.Errorf("EnvKey() = %q", got)
	}
}
