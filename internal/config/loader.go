package config

import (
	"fmt"
	"os"
	"strconv"
)

// Defaults applied by [Load] when the file leaves fields unset.
const (
	DefaultListenAddr        = ":8080"
	DefaultFuzzyThreshold    = 90
	DefaultCosineThreshold   = 0.75
	DefaultCoverageThreshold = 80.0
	DefaultLLMTemperature    = 0.2
	DefaultLLMMaxTokens      = 800
	DefaultLLMMaxRetries     = 3
)

// Load reads the YAML configuration file at path, fills defaults, applies
// environment overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	ApplyDefaults(cfg)
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Detection.Engine == "" {
		cfg.Detection.Engine = EngineCascade
	}
	if cfg.Detection.FuzzyThreshold == 0 {
		cfg.Detection.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.Detection.CosineThreshold == 0 {
		cfg.Detection.CosineThreshold = DefaultCosineThreshold
	}
	if cfg.Interview.CoverageThresholdPercent == 0 {
		cfg.Interview.CoverageThresholdPercent = DefaultCoverageThreshold
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = DefaultLLMTemperature
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = DefaultLLMMaxTokens
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = DefaultLLMMaxRetries
	}
}

// ApplyEnvOverrides layers well-known environment variables on top of the
// file values. Unset variables leave the config untouched; malformed values
// are errors rather than silent fallbacks.
func ApplyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("TH_FUZZY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TH_FUZZY %q: %w", v, err)
		}
		cfg.Detection.FuzzyThreshold = n
	}
	if v, ok := os.LookupEnv("TH_COS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: TH_COS %q: %w", v, err)
		}
		cfg.Detection.CosineThreshold = f
	}
	if v, ok := os.LookupEnv("COVERAGE_THRESHOLD_PERCENT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: COVERAGE_THRESHOLD_PERCENT %q: %w", v, err)
		}
		cfg.Interview.CoverageThresholdPercent = f
	}
	if v, ok := os.LookupEnv("OPENAI_MODEL"); ok {
		cfg.LLM.Model = v
	}
	if v, ok := os.LookupEnv("OPENAI_TEMP"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: OPENAI_TEMP %q: %w", v, err)
		}
		cfg.LLM.Temperature = f
	}
	if v, ok := os.LookupEnv("MAX_TOKENS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MAX_TOKENS %q: %w", v, err)
		}
		cfg.LLM.MaxTokens = n
	}
	if v, ok := os.LookupEnv("MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MAX_RETRIES %q: %w", v, err)
		}
		cfg.LLM.MaxRetries = n
	}
	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok && cfg.Providers.LLM.APIKey == "" {
		cfg.Providers.LLM.APIKey = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Server.LogLevel = LogLevel(v)
	}
	return nil
}
