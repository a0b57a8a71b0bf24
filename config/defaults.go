package config

import (
	"time"

	"github.com/stepflow-io/stepflow/workflow"
)

// DefaultConfig returns the default configuration for every section.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: DefaultOrchestratorConfig(),
		Redis:        DefaultRedisConfig(),
		Log:          DefaultLogConfig(),
		Metrics:      DefaultMetricsConfig(),
	}
}

// DefaultOrchestratorConfig returns the default engine configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxConcurrency:     workflow.DefaultMaxConcurrency,
		DefaultStepTimeout: 0,
		DefaultRetries:     0,
	}
}

// DefaultRedisConfig returns the default cache backend configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       "localhost:6379",
		Password:   "",
		DB:         0,
		PoolSize:   10,
		DefaultTTL: 5 * time.Minute,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "stepflow",
	}
}
