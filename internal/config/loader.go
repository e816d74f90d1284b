package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Fetcher.BaseURL == "" {
		errs = append(errs, errors.New("fetcher.base_url is required"))
	}
	if cfg.Fetcher.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("fetcher.timeout_seconds %d must be positive", cfg.Fetcher.TimeoutSeconds))
	}

	if cfg.Cache.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl_seconds %d must be positive", cfg.Cache.TTLSeconds))
	}
	if cfg.Cache.ErrorTTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("cache.error_ttl_seconds %d must be positive", cfg.Cache.ErrorTTLSeconds))
	}

	if cfg.Scoring.CloseThreshold <= 0 || cfg.Scoring.CloseThreshold > 1 {
		errs = append(errs, fmt.Errorf("scoring.close_threshold %.2f is out of range (0, 1]", cfg.Scoring.CloseThreshold))
	}
	if cfg.Scoring.MaxSubmissionBytes <= 0 {
		errs = append(errs, fmt.Errorf("scoring.max_submission_bytes %d must be positive", cfg.Scoring.MaxSubmissionBytes))
	}

	return errors.Join(errs...)
}
