// Package orchconfig loads the orchestrator's named configuration
// inputs (spec §6 "Environment inputs") and the numeric tunables named
// throughout spec §4. It is deliberately thin — not the human-readable
// configuration report or the env-file loader's exact parsing format,
// both of which spec.md §1 explicitly excludes.
//
// Grounded on the rest of the retrieval pack's viper-based layered
// config (env + on-disk override file), since the teacher itself only
// reads flags and a hand-rolled .env loader ad hoc.
package orchconfig

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/viper"

	"github.com/relaywork/modelbroker/pkg/orcherr"
)

// Config is the resolved set of named inputs and tunables.
type Config struct {
	// Credentials (spec §6 "Environment inputs").
	GenericAPIKey     string
	EnterpriseKey     string
	EnterpriseProject string
	EnterpriseRegion  string
	AggregatorKey     string
	AggregatorBaseURL string

	AgentModeEnabled bool
	CostLimitPerDay  float64
	DefaultModel     string

	// Auth Fallback Manager (spec §4.1).
	FailureExpiry time.Duration

	// Rate-Limit & Cost Tracker (spec §4.2).
	FailureThreshold int
	CooldownWindow   time.Duration

	// Response Cache (spec §4.5).
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Conversation Store (spec §4.6).
	ConversationMaxMessages int
	ConversationMaxTokens   int
	ConversationExpireAfter time.Duration

	// Agent Session Supervisor (spec §4.7).
	AgentMaxIterations int
	AgentDeadline      time.Duration
	AgentIdleWindow    time.Duration
	AgentOutputMaxAge  time.Duration
	AgentSweepInterval time.Duration

	// Orchestration Loop (spec §4.9).
	ReviewMaxRetries int
}

func defaults() map[string]any {
	return map[string]any{
		"agent_mode_enabled":        false,
		"cost_limit_per_day":        0.0,
		"default_model":             "",
		"aggregator_base_url":       "",
		"failure_expiry":            "5m",
		"failure_threshold":         3,
		"cooldown_window":           "1m",
		"cache_ttl":                 "24h",
		"cache_max_entries":         500,
		"conversation_max_messages": 200,
		"conversation_max_tokens":   64000,
		"conversation_expire_after": "24h",
		"agent_max_iterations":      50,
		"agent_deadline":            "30m",
		"agent_idle_window":         "2h",
		"agent_output_max_age":      "720h",
		"agent_sweep_interval":      "24h",
		"review_max_retries":        3,
	}
}

// Option configures Load.
type Option func(*viper.Viper)

// WithOverrideFile registers an on-disk override file read at LOWER
// priority than the process environment, preserving spec §6's
// precedence rule (process environment overrides on-disk values).
func WithOverrideFile(path string) Option {
	return func(v *viper.Viper) {
		v.SetConfigFile(path)
	}
}

// Load resolves Config from the process environment (highest
// priority), an optional on-disk override file, and built-in
// defaults (lowest priority).
func Load(opts ...Option) (Config, error) {
	v := viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}
	for _, opt := range opts {
		opt(v)
	}

	// ReadInConfig is a no-op when no override file was registered via
	// WithOverrideFile, and a registered file that does not exist is
	// skipped, matching the teacher's "env file is optional" convention.
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, orcherr.Wrap(orcherr.KindConfig, "orchconfig.Load", "read override file", err)
		}
	}

	v.SetEnvPrefix("orchestrator")
	v.AutomaticEnv()
	bindEnv(v, map[string]string{
		"generic_api_key":     "GENERIC_API_KEY",
		"enterprise_key":      "ENTERPRISE_KEY",
		"enterprise_project":  "ENTERPRISE_PROJECT",
		"enterprise_region":   "ENTERPRISE_REGION",
		"aggregator_key":      "AGGREGATOR_KEY",
		"aggregator_base_url": "AGGREGATOR_BASE_URL",
		"agent_mode_enabled":  "AGENT_MODE",
		"cost_limit_per_day":  "COST_LIMIT_PER_DAY",
		"default_model":       "DEFAULT_MODEL",
	})

	failureExpiry, err := parseDuration(v, "failure_expiry")
	if err != nil {
		return Config{}, err
	}
	cooldown, err := parseDuration(v, "cooldown_window")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "cache_ttl")
	if err != nil {
		return Config{}, err
	}
	convExpire, err := parseDuration(v, "conversation_expire_after")
	if err != nil {
		return Config{}, err
	}
	agentDeadline, err := parseDuration(v, "agent_deadline")
	if err != nil {
		return Config{}, err
	}
	agentIdle, err := parseDuration(v, "agent_idle_window")
	if err != nil {
		return Config{}, err
	}
	agentOutputMaxAge, err := parseDuration(v, "agent_output_max_age")
	if err != nil {
		return Config{}, err
	}
	agentSweep, err := parseDuration(v, "agent_sweep_interval")
	if err != nil {
		return Config{}, err
	}

	return Config{
		GenericAPIKey:     v.GetString("generic_api_key"),
		EnterpriseKey:     v.GetString("enterprise_key"),
		EnterpriseProject: v.GetString("enterprise_project"),
		EnterpriseRegion:  v.GetString("enterprise_region"),
		AggregatorKey:     v.GetString("aggregator_key"),
		AggregatorBaseURL: v.GetString("aggregator_base_url"),

		AgentModeEnabled: v.GetBool("agent_mode_enabled"),
		CostLimitPerDay:  v.GetFloat64("cost_limit_per_day"),
		DefaultModel:     v.GetString("default_model"),

		FailureExpiry: failureExpiry,

		FailureThreshold: v.GetInt("failure_threshold"),
		CooldownWindow:   cooldown,

		CacheTTL:        cacheTTL,
		CacheMaxEntries: v.GetInt("cache_max_entries"),

		ConversationMaxMessages: v.GetInt("conversation_max_messages"),
		ConversationMaxTokens:   v.GetInt("conversation_max_tokens"),
		ConversationExpireAfter: convExpire,

		AgentMaxIterations: v.GetInt("agent_max_iterations"),
		AgentDeadline:      agentDeadline,
		AgentIdleWindow:    agentIdle,
		AgentOutputMaxAge:  agentOutputMaxAge,
		AgentSweepInterval: agentSweep,

		ReviewMaxRetries: v.GetInt("review_max_retries"),
	}, nil
}

func bindEnv(v *viper.Viper, keys map[string]string) {
	for key, env := range keys {
		_ = v.BindEnv(key, env)
	}
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d := v.GetDuration(key)
	if d == 0 && v.GetString(key) != "0" && v.GetString(key) != "" {
		return 0, orcherr.New(orcherr.KindConfig, "orchconfig.Load", "malformed duration for "+key+": "+v.GetString(key))
	}
	return d, nil
}
