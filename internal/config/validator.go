package config

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/fanout/internal/channel"
	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "channel.buffer_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap lets callers match any configuration failure with errors.ErrInvalidInput.
func (e ValidationErrors) Unwrap() error {
	return errors.ErrInvalidInput
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	levels := logging.ValidLevels()
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = strings.ToLower(l)
	}
	return out
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{logging.FormatText, logging.FormatJSON}
}

// ValidTopologies returns the list of valid agent topologies
func ValidTopologies() []string {
	return []string{TopologyProcess, TopologyTask}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validateChannel()...)
	errs = append(errs, c.validatePublisher()...)
	errs = append(errs, c.validateOrchestrator()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateMetrics()...)

	return errs
}

// validateChannel validates the ChannelConfig against the channel package's limits
func (c *Config) validateChannel() []ValidationError {
	err := c.Channel.Limits().Validate()
	if err == nil {
		return nil
	}
	var ve *errors.ValidationError
	if errors.As(err, &ve) {
		return []ValidationError{{
			Field:   "channel." + ve.Field,
			Value:   ve.Value,
			Message: ve.Reason(),
		}}
	}
	return []ValidationError{{Field: "channel", Value: c.Channel, Message: err.Error()}}
}

// validatePublisher validates the PublisherConfig
func (c *Config) validatePublisher() []ValidationError {
	if c.Publisher.IntervalMs <= 0 {
		return []ValidationError{{
			Field:   "publisher.interval_ms",
			Value:   c.Publisher.IntervalMs,
			Message: "must be positive",
		}}
	}
	return nil
}

// validateOrchestrator validates the OrchestratorConfig
func (c *Config) validateOrchestrator() []ValidationError {
	var errs []ValidationError
	o := c.Orchestrator

	if o.Agents <= 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.agents",
			Value:   o.Agents,
			Message: "must be positive",
		})
	}

	// Every derived channel name must be usable; the longest has the largest index.
	if o.Agents > 0 {
		longest := o.NamePrefix + strconv.Itoa(o.Agents-1)
		if err := channel.ValidateName(longest); err != nil {
			errs = append(errs, ValidationError{
				Field:   "orchestrator.name_prefix",
				Value:   o.NamePrefix,
				Message: fmt.Sprintf("derived channel name %q is invalid", longest),
			})
		}
	}

	if !slices.Contains(ValidTopologies(), o.Topology) {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.topology",
			Value:   o.Topology,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTopologies(), ", ")),
		})
	}

	if o.ProgressEvery <= 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.progress_every",
			Value:   o.ProgressEvery,
			Message: "must be positive",
		})
	}

	if o.SnapshotIntervalMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.snapshot_interval_ms",
			Value:   o.SnapshotIntervalMs,
			Message: "must be non-negative",
		})
	}

	if o.AnomalyLogRate < 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.anomaly_log_rate",
			Value:   o.AnomalyLogRate,
			Message: "must be non-negative",
		})
	}
	if o.AnomalyLogRate > 0 && o.AnomalyLogBurst < 1 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.anomaly_log_burst",
			Value:   o.AnomalyLogBurst,
			Message: "must be at least 1 when anomaly_log_rate is set",
		})
	}

	if o.OutputBufferSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.output_buffer_size",
			Value:   o.OutputBufferSize,
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.Format != "" && !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxSizeMB > maxLogSizeMB {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("must be between 0 and %d", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	if c.Metrics.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
		return []ValidationError{{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be host:port",
		}}
	}
	return nil
}
