package config

import (
	"fmt"
	"sort"
	"strings"
)

// InvalidField represents a setting whose value cannot be used
type InvalidField struct {
	Key    string
	Value  any
	Reason string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	InvalidFields []InvalidField
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.InvalidFields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	for _, f := range e.InvalidFields {
		sb.WriteString(fmt.Sprintf("  - %s: %v (%s)\n", f.Key, f.Value, f.Reason))
	}

	return sb.String()
}

func (e *ValidationErrors) add(key string, value any, reason string) {
	e.InvalidFields = append(e.InvalidFields, InvalidField{Key: key, Value: value, Reason: reason})
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateServer(errs, c.Server)
	validateClient(errs, c.Client)

	if c.Emit.Rate <= 0 {
		errs.add("emit.rate", c.Emit.Rate, "must be > 0")
	}
	if c.Emit.RecordsPerCycle < 0 {
		errs.add("emit.records_per_cycle", c.Emit.RecordsPerCycle, "must be >= 0")
	}

	if !ValidLogLevels[strings.ToLower(c.Logging.Level)] {
		errs.add("logging.level", c.Logging.Level, "valid levels: "+validLogLevelsList())
	}
	if c.Logging.Enabled && c.Logging.Directory == "" {
		errs.add("logging.directory", c.Logging.Directory, "required when logging.enabled is set")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateServer(errs *ValidationErrors, s ServerConfig) {
	if s.Port < 0 || s.Port > 65535 {
		errs.add("server.port", s.Port, "must be between 0 and 65535")
	}
	if s.SamplingPeriod <= 0 {
		errs.add("server.sampling_period", s.SamplingPeriod, "must be > 0")
	}
	if s.ChunkSize < 1 || s.ChunkSize > MaxChunkSize {
		errs.add("server.chunk_size", s.ChunkSize, fmt.Sprintf("must be between 1 and %d", MaxChunkSize))
	}
	if s.IOTimeout <= 0 {
		errs.add("server.io_timeout", s.IOTimeout, "must be > 0")
	}
}

func validateClient(errs *ValidationErrors, c ClientConfig) {
	if c.Address == "" {
		errs.add("client.address", c.Address, "required")
	}
	if c.IOTimeout <= 0 {
		errs.add("client.io_timeout", c.IOTimeout, "must be > 0")
	}
	if c.PollInterval <= 0 {
		errs.add("client.poll_interval", c.PollInterval, "must be > 0")
	}
	if c.MaxProcessTime <= 0 {
		errs.add("client.max_process_time", c.MaxProcessTime, "must be > 0")
	}
}

func validLogLevelsList() string {
	levels := make([]string, 0, len(ValidLogLevels))
	for l := range ValidLogLevels {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	return strings.Join(levels, ", ")
}
