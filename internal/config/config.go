// Package config defines fanout's configuration, its defaults and how it is
// loaded through viper from flags, FANOUT_* environment variables and an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/fanout/internal/channel"
)

// Config holds every fanout setting.
type Config struct {
	Channel      ChannelConfig      `mapstructure:"channel" yaml:"channel"`
	Publisher    PublisherConfig    `mapstructure:"publisher" yaml:"publisher"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

// ChannelConfig sets the limits every agent channel is created with. All
// participants must agree on them, so the orchestrator passes its values to
// the agents it spawns.
type ChannelConfig struct {
	// BufferSize is the number of undelivered samples kept per subscriber (default: 30)
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
	// HistorySize is the number of samples replayed to late subscribers (default: 30)
	HistorySize int `mapstructure:"history_size" yaml:"history_size"`
	// MaxPublishers bounds concurrent publishers per channel (default: 5)
	MaxPublishers int `mapstructure:"max_publishers" yaml:"max_publishers"`
	// MaxSubscribers bounds concurrent subscribers per channel (default: 5)
	MaxSubscribers int `mapstructure:"max_subscribers" yaml:"max_subscribers"`
	// Dir is the shared memory directory. Empty selects /dev/shm/fanout when
	// available, otherwise a fanout directory under the system temp dir.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// PublisherConfig controls the agent heartbeat.
type PublisherConfig struct {
	// IntervalMs is the period between Tick messages (default: 10)
	IntervalMs int `mapstructure:"interval_ms" yaml:"interval_ms"`
}

// OrchestratorConfig controls a run.
type OrchestratorConfig struct {
	// Agents is the number of publisher agents to spawn (default: 3)
	Agents int `mapstructure:"agents" yaml:"agents"`
	// NamePrefix is prepended to the agent index to form channel names (default: "testing")
	NamePrefix string `mapstructure:"name_prefix" yaml:"name_prefix"`
	// Topology is "process" (one OS process per agent) or "task" (goroutines)
	Topology string `mapstructure:"topology" yaml:"topology"`
	// ProgressEvery logs progress each time an agent's count crosses a multiple of it (default: 1000)
	ProgressEvery int `mapstructure:"progress_every" yaml:"progress_every"`
	// ForwardInterrupt interrupts running agents when the run is cancelled (default: true)
	ForwardInterrupt bool `mapstructure:"forward_interrupt" yaml:"forward_interrupt"`
	// SnapshotIntervalMs is the period of snapshot events; 0 disables them (default: 250)
	SnapshotIntervalMs int `mapstructure:"snapshot_interval_ms" yaml:"snapshot_interval_ms"`
	// AnomalyLogRate limits sequence anomaly warnings per agent per second; 0 logs every one
	AnomalyLogRate float64 `mapstructure:"anomaly_log_rate" yaml:"anomaly_log_rate"`
	// AnomalyLogBurst is the number of anomaly warnings allowed in a burst (default: 10)
	AnomalyLogBurst int `mapstructure:"anomaly_log_burst" yaml:"anomaly_log_burst"`
	// Executable is the binary launched for each agent; empty means this binary
	Executable string `mapstructure:"executable" yaml:"executable"`
	// OutputBufferSize is the number of bytes of agent output kept for diagnostics (default: 16384)
	OutputBufferSize int `mapstructure:"output_buffer_size" yaml:"output_buffer_size"`
}

// LoggingConfig controls process logging.
type LoggingConfig struct {
	// Level is one of "trace", "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "text" or "json" (default: "text")
	Format string `mapstructure:"format" yaml:"format"`
	// File, when set, receives logs instead of stderr
	File string `mapstructure:"file" yaml:"file"`
	// MaxSizeMB is the log file size that triggers rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables the endpoint
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns a Config with the default values.
func Default() *Config {
	return &Config{
		Channel: ChannelConfig{
			BufferSize:     channel.DefaultBufferSize,
			HistorySize:    channel.DefaultHistorySize,
			MaxPublishers:  channel.DefaultMaxPublishers,
			MaxSubscribers: channel.DefaultMaxSubscribers,
		},
		Publisher: PublisherConfig{
			IntervalMs: 10,
		},
		Orchestrator: OrchestratorConfig{
			Agents:             3,
			NamePrefix:         "testing",
			Topology:           TopologyProcess,
			ProgressEvery:      1000,
			ForwardInterrupt:   true,
			SnapshotIntervalMs: 250,
			AnomalyLogRate:     0,
			AnomalyLogBurst:    10,
			OutputBufferSize:   16 * 1024,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Agent topologies.
const (
	TopologyProcess = "process"
	TopologyTask    = "task"
)

// Limits returns the channel configuration.
func (c *ChannelConfig) Limits() channel.Config {
	return channel.Config{
		BufferSize:     c.BufferSize,
		HistorySize:    c.HistorySize,
		MaxPublishers:  c.MaxPublishers,
		MaxSubscribers: c.MaxSubscribers,
	}
}

// ResolveDir returns Dir, or the default shared memory directory.
func (c *ChannelConfig) ResolveDir() string {
	if c.Dir == "" {
		return channel.DefaultDir()
	}
	return c.Dir
}

// Interval returns the heartbeat period as a time.Duration.
func (c *PublisherConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// SnapshotInterval returns the snapshot period as a time.Duration (0 means disabled).
func (c *OrchestratorConfig) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalMs) * time.Millisecond
}

// EnvPrefix is the prefix of environment variables read by viper.
const EnvPrefix = "FANOUT"

// AgentEnv returns the environment a spawned agent needs to open its channel
// exactly as this configuration does. Agents log to their captured output,
// so the log file is not passed on.
func (c *Config) AgentEnv() []string {
	vars := []struct {
		key   string
		value any
	}{
		{"channel.buffer_size", c.Channel.BufferSize},
		{"channel.history_size", c.Channel.HistorySize},
		{"channel.max_publishers", c.Channel.MaxPublishers},
		{"channel.max_subscribers", c.Channel.MaxSubscribers},
		{"channel.dir", c.Channel.ResolveDir()},
		{"publisher.interval_ms", c.Publisher.IntervalMs},
		{"logging.level", c.Logging.Level},
		{"logging.format", c.Logging.Format},
	}
	env := make([]string, 0, len(vars))
	for _, v := range vars {
		env = append(env, fmt.Sprintf("%s=%v", EnvKey(v.key), v.value))
	}
	return env
}

// EnvKey returns the environment variable viper binds to a config key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	// Channel defaults
	viper.SetDefault("channel.buffer_size", defaults.Channel.BufferSize)
	viper.SetDefault("channel.history_size", defaults.Channel.HistorySize)
	viper.SetDefault("channel.max_publishers", defaults.Channel.MaxPublishers)
	viper.SetDefault("channel.max_subscribers", defaults.Channel.MaxSubscribers)
	viper.SetDefault("channel.dir", defaults.Channel.Dir)

	// Publisher defaults
	viper.SetDefault("publisher.interval_ms", defaults.Publisher.IntervalMs)

	// Orchestrator defaults
	viper.SetDefault("orchestrator.agents", defaults.Orchestrator.Agents)
	viper.SetDefault("orchestrator.name_prefix", defaults.Orchestrator.NamePrefix)
	viper.SetDefault("orchestrator.topology", defaults.Orchestrator.Topology)
	viper.SetDefault("orchestrator.progress_every", defaults.Orchestrator.ProgressEvery)
	viper.SetDefault("orchestrator.forward_interrupt", defaults.Orchestrator.ForwardInterrupt)
	viper.SetDefault("orchestrator.snapshot_interval_ms", defaults.Orchestrator.SnapshotIntervalMs)
	viper.SetDefault("orchestrator.anomaly_log_rate", defaults.Orchestrator.AnomalyLogRate)
	viper.SetDefault("orchestrator.anomaly_log_burst", defaults.Orchestrator.AnomalyLogBurst)
	viper.SetDefault("orchestrator.executable", defaults.Orchestrator.Executable)
	viper.SetDefault("orchestrator.output_buffer_size", defaults.Orchestrator.OutputBufferSize)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Metrics defaults
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fanout")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fanout"
	}
	return filepath.Join(home, ".config", "fanout")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
