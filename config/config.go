// Package config holds the orchestrator's tuning knobs. The retention
// window, observe ceiling, persistence-poll budget and preview limits are
// configuration rather than hard-coded behavior; Default() mirrors the
// values the system shipped with.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config collects every tunable of the delegation orchestrator. Durations
// are expressed in the unit named by the field so YAML stays plain integers.
type Config struct {
	// ObserveWaitCeilingSeconds is the hard upper bound on observe's
	// waitSeconds parameter.
	ObserveWaitCeilingSeconds int `yaml:"observe_wait_ceiling_seconds"`
	// ObservePollIntervalMS is the pause between settle checks while an
	// observe call waits.
	ObservePollIntervalMS int `yaml:"observe_poll_interval_ms"`
	// RetentionMinutes is how long settled delegations stay listable.
	RetentionMinutes int `yaml:"retention_minutes"`
	// PollAttempts bounds the runner's persistence confirmation loop.
	PollAttempts int `yaml:"poll_attempts"`
	// PollDelayMS is the pause between persistence poll attempts.
	PollDelayMS int `yaml:"poll_delay_ms"`
	// PreviewMaxChars bounds response previews in observe/continue replies.
	PreviewMaxChars int `yaml:"preview_max_chars"`
	// TaskSummaryChars bounds the task text in list summaries.
	TaskSummaryChars int `yaml:"task_summary_chars"`
}

// Default returns the shipped tuning.
func Default() Config {
	return Config{
		ObserveWaitCeilingSeconds: 30,
		ObservePollIntervalMS:     200,
		RetentionMinutes:          10,
		PollAttempts:              50,
		PollDelayMS:               200,
		PreviewMaxChars:           1000,
		TaskSummaryChars:          100,
	}
}

// Load reads a YAML config file and merges it over the defaults: zero-valued
// fields keep their default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg := Default()
	cfg.merge(fileCfg)
	return cfg, nil
}

func (c *Config) merge(o Config) {
	if o.ObserveWaitCeilingSeconds > 0 {
		c.ObserveWaitCeilingSeconds = o.ObserveWaitCeilingSeconds
	}
	if o.ObservePollIntervalMS > 0 {
		c.ObservePollIntervalMS = o.ObservePollIntervalMS
	}
	if o.RetentionMinutes > 0 {
		c.RetentionMinutes = o.RetentionMinutes
	}
	if o.PollAttempts > 0 {
		c.PollAttempts = o.PollAttempts
	}
	if o.PollDelayMS > 0 {
		c.PollDelayMS = o.PollDelayMS
	}
	if o.PreviewMaxChars > 0 {
		c.PreviewMaxChars = o.PreviewMaxChars
	}
	if o.TaskSummaryChars > 0 {
		c.TaskSummaryChars = o.TaskSummaryChars
	}
}

// ObserveWaitCeiling returns the observe ceiling as a duration.
func (c Config) ObserveWaitCeiling() time.Duration {
	return time.Duration(c.ObserveWaitCeilingSeconds) * time.Second
}

// ObservePollInterval returns the observe poll interval as a duration.
func (c Config) ObservePollInterval() time.Duration {
	return time.Duration(c.ObservePollIntervalMS) * time.Millisecond
}

// Retention returns the retention window as a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

// PollDelay returns the persistence poll delay as a duration.
func (c Config) PollDelay() time.Duration {
	return time.Duration(c.PollDelayMS) * time.Millisecond
}
