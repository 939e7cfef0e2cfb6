package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/stageflow/workflow"
)

// FallbackLastGood is the reserved fallback name that serves an
// operation's last successful result instead of a registered function.
const FallbackLastGood = "last_good"

// Duration is a time.Duration that decodes from YAML strings like
// "250ms" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("config: duration must be a string such as \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the file-level schema for a declaratively assembled engine.
type Config struct {
	// Pipeline declares the stage graph.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Operations maps stage keys to their guard policies. Stages without
	// an entry run with the coordinator defaults.
	Operations map[string]OperationConfig `yaml:"operations"`

	// LastGoodTTL bounds how long cached results stay servable for
	// operations that fall back to their last good value. Zero keeps
	// entries until overwritten.
	LastGoodTTL Duration `yaml:"last_good_ttl"`

	Observability ObservabilityConfig `yaml:"observability"`
	Monitor       MonitorConfig       `yaml:"monitor"`

	// Admin enables the authenticated operations API when present.
	Admin *AdminConfig `yaml:"admin"`
}

// PipelineConfig declares the stage graph the runner executes.
type PipelineConfig struct {
	// Name tags run records and logs. Default: "pipeline".
	Name string `yaml:"name"`

	// Entry is the key of the stage every run starts at.
	Entry string `yaml:"entry"`

	// MaxSteps caps stage executions per run. Default: ten per stage.
	MaxSteps int `yaml:"max_steps"`

	Stages []StageConfig `yaml:"stages"`
}

// StageConfig declares one stage and its successor.
type StageConfig struct {
	// Key names the stage and the coordinator operation guarding it.
	Key string `yaml:"key"`

	// Next is the static successor: another stage key or "terminal".
	Next string `yaml:"next"`

	// Route names a registered routing function consulted after the
	// stage runs. Exactly one of Next and Route must be set.
	Route string `yaml:"route"`
}

// OperationConfig declares the guard policy for one stage operation.
type OperationConfig struct {
	Breaker BreakerConfig `yaml:"breaker"`
	Retry   RetryConfig   `yaml:"retry"`

	// Timeout bounds each attempt. Zero leaves attempts unbounded.
	Timeout Duration `yaml:"timeout"`

	// Fallback names a registered fallback function, or "last_good" to
	// serve the operation's last successful result.
	Fallback string `yaml:"fallback"`

	Bulkhead  *BulkheadConfig  `yaml:"bulkhead"`
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
}

// BreakerConfig declares circuit breaker thresholds. Zero fields take the
// breaker defaults.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout"`
	SuccessThreshold int      `yaml:"success_threshold"`
}

// RetryConfig declares the retry schedule. Zero fields take the retry
// defaults.
type RetryConfig struct {
	MaxAttempts   int      `yaml:"max_attempts"`
	BaseDelay     Duration `yaml:"base_delay"`
	MaxDelay      Duration `yaml:"max_delay"`
	BackoffFactor float64  `yaml:"backoff_factor"`
}

// BulkheadConfig caps concurrent executions of one operation.
type BulkheadConfig struct {
	MaxConcurrent int      `yaml:"max_concurrent"`
	MaxWait       Duration `yaml:"max_wait"`
}

// RateLimitConfig declares a token bucket for one operation.
type RateLimitConfig struct {
	PerSecond float64  `yaml:"per_second"`
	Burst     int      `yaml:"burst"`
	MaxWait   Duration `yaml:"max_wait"`
}

// ObservabilityConfig tunes the engine's own logging.
type ObservabilityConfig struct {
	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level"`
}

// MonitorConfig selects the sinks receiving execution records.
type MonitorConfig struct {
	// Memory retains recent records in a bounded ring, feeding the
	// failure rate checker and the admin records endpoint.
	Memory *MemoryConfig `yaml:"memory"`

	// Log mirrors every record to the engine logger.
	Log bool `yaml:"log"`

	// Postgres appends every record to an execution ledger table.
	Postgres *PostgresSinkConfig `yaml:"postgres"`

	// Archive bundles finished runs into an object store.
	Archive *ArchiveSinkConfig `yaml:"archive"`
}

// MemoryConfig sizes the in-memory record ring.
type MemoryConfig struct {
	// Capacity is the ring size. Default: 256.
	Capacity int `yaml:"capacity"`
}

// PostgresSinkConfig declares the execution ledger connection.
type PostgresSinkConfig struct {
	// URL is the connection string. Usually carries a ${VAR} or
	// secretref so credentials never land in the file.
	URL           string   `yaml:"url"`
	BufferSize    int      `yaml:"buffer_size"`
	InsertTimeout Duration `yaml:"insert_timeout"`
}

// ArchiveSinkConfig declares the run archive object store.
type ArchiveSinkConfig struct {
	Endpoint       string `yaml:"endpoint"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	Region         string `yaml:"region"`
	UseSSL         bool   `yaml:"use_ssl"`
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
	MaxPendingRuns int    `yaml:"max_pending_runs"`
}

// AdminConfig enables the authenticated operations API.
type AdminConfig struct {
	// Secret is the HMAC secret admin tokens are verified with. Usually
	// a secretref so the literal never lands in the file.
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// Parse expands and decodes YAML config bytes, then validates the result.
// Unknown fields are rejected so typos fail loudly.
func Parse(input []byte) (Config, error) {
	expanded, err := Expand(input)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, errors.New("config: document is empty")
		}
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the config file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Validate checks the declaration for problems that would otherwise
// surface as assembly failures later.
func (c Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}

	declared := make(map[string]bool, len(c.Pipeline.Stages))
	for _, st := range c.Pipeline.Stages {
		declared[st.Key] = true
	}
	for key, op := range c.Operations {
		if !declared[key] {
			return fmt.Errorf("config: operations.%s does not match any pipeline stage", key)
		}
		if err := op.Validate(key); err != nil {
			return err
		}
	}

	if c.LastGoodTTL < 0 {
		return errors.New("config: last_good_ttl must not be negative")
	}
	if err := c.Observability.Validate(); err != nil {
		return err
	}
	if err := c.Monitor.Validate(); err != nil {
		return err
	}
	if c.Admin != nil && strings.TrimSpace(c.Admin.Secret) == "" {
		return errors.New("config: admin.secret is required when the admin section is present")
	}
	return nil
}

// Validate checks the stage graph declaration.
func (p PipelineConfig) Validate() error {
	if p.Entry == "" {
		return errors.New("config: pipeline.entry is required")
	}
	if len(p.Stages) == 0 {
		return errors.New("config: pipeline.stages must not be empty")
	}
	if p.MaxSteps < 0 {
		return errors.New("config: pipeline.max_steps must not be negative")
	}

	seen := make(map[string]int, len(p.Stages))
	for i, st := range p.Stages {
		if st.Key == "" {
			return fmt.Errorf("config: pipeline.stages[%d].key is required", i)
		}
		if st.Key == workflow.Terminal {
			return fmt.Errorf("config: pipeline.stages[%d] must not use the reserved key %q", i, workflow.Terminal)
		}
		if prev, dup := seen[st.Key]; dup {
			return fmt.Errorf("config: pipeline.stages[%d] duplicates key %q from stages[%d]", i, st.Key, prev)
		}
		seen[st.Key] = i

		if st.Next != "" && st.Route != "" {
			return fmt.Errorf("config: pipeline.stages[%d] (%s) sets both next and route", i, st.Key)
		}
		if st.Next == "" && st.Route == "" {
			return fmt.Errorf("config: pipeline.stages[%d] (%s) needs next or route", i, st.Key)
		}
	}

	for i, st := range p.Stages {
		if st.Next == "" || st.Next == workflow.Terminal {
			continue
		}
		if _, ok := seen[st.Next]; !ok {
			return fmt.Errorf("config: pipeline.stages[%d] (%s) routes to unknown stage %q", i, st.Key, st.Next)
		}
	}
	if _, ok := seen[p.Entry]; !ok {
		return fmt.Errorf("config: pipeline.entry %q is not a declared stage", p.Entry)
	}
	return nil
}

// Validate checks one operation's guard policy. The key names the
// operation in error messages.
func (o OperationConfig) Validate(key string) error {
	if o.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("config: operations.%s.breaker.failure_threshold must not be negative", key)
	}
	if o.Breaker.SuccessThreshold < 0 {
		return fmt.Errorf("config: operations.%s.breaker.success_threshold must not be negative", key)
	}
	if o.Retry.MaxAttempts < 0 {
		return fmt.Errorf("config: operations.%s.retry.max_attempts must not be negative", key)
	}
	if o.Bulkhead != nil && o.Bulkhead.MaxConcurrent < 0 {
		return fmt.Errorf("config: operations.%s.bulkhead.max_concurrent must not be negative", key)
	}
	if o.RateLimit != nil && o.RateLimit.PerSecond < 0 {
		return fmt.Errorf("config: operations.%s.rate_limit.per_second must not be negative", key)
	}
	return nil
}

// Validate checks the logging declaration. The logger itself falls back
// to info for unknown levels, so catch typos here instead.
func (o ObservabilityConfig) Validate() error {
	switch o.LogLevel {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("config: observability.log_level %q is not one of debug, info, warn, error", o.LogLevel)
	}
}

// Validate checks the sink declarations. Connection-level validation
// stays with the sinks themselves.
func (m MonitorConfig) Validate() error {
	if m.Memory != nil && m.Memory.Capacity < 0 {
		return errors.New("config: monitor.memory.capacity must not be negative")
	}
	if m.Postgres != nil && strings.TrimSpace(m.Postgres.URL) == "" {
		return errors.New("config: monitor.postgres.url is required")
	}
	if m.Archive != nil {
		if strings.TrimSpace(m.Archive.Endpoint) == "" {
			return errors.New("config: monitor.archive.endpoint is required")
		}
		if strings.TrimSpace(m.Archive.Bucket) == "" {
			return errors.New("config: monitor.archive.bucket is required")
		}
	}
	return nil
}
