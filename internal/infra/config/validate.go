package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// The API token is not required here; commands that call Tally check it.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateTally(cfg, ve)
	validateEdit(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateAudit(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateTally(cfg *Config, ve *ValidationError) {
	t := cfg.Tally
	validateURL("tally.base_url", t.BaseURL, ve)
	validateURL("tally.graphql_url", t.GraphQLURL, ve)

	if t.ConnTimeout < 0 {
		ve.Add("tally.conn_timeout must be >= 0")
	}
	if t.RespTimeout < 0 {
		ve.Add("tally.resp_timeout must be >= 0")
	}
	if t.RequestsPerMinute < 0 {
		ve.Add("tally.requests_per_minute must be >= 0")
	}
	if t.RequestsPerMinute > 0 && t.Burst <= 0 {
		ve.Add("tally.burst must be > 0 when requests_per_minute is set")
	}
	if t.MaxResponseBytes <= 0 {
		ve.Add("tally.max_response_bytes must be > 0")
	}
	if t.MaxPages <= 0 {
		ve.Add("tally.max_pages must be > 0")
	}
	if t.CircuitBreaker.Enabled {
		if t.CircuitBreaker.MaxFailures == 0 {
			ve.Add("tally.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if t.CircuitBreaker.Timeout < 0 {
			ve.Add("tally.circuit_breaker.timeout must be >= 0")
		}
	}
}

func validateURL(field, raw string, ve *ValidationError) {
	if raw == "" {
		ve.Add("%s must not be empty", field)
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("%s %q must be an http(s) URL", field, raw)
	}
}

func validateEdit(cfg *Config, ve *ValidationError) {
	if cfg.Edit.DiffDepth < 0 {
		ve.Add("edit.diff_depth must be >= 0")
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if cfg.Logger.Level != "" && !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "stdout", "noop":
	default:
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if !cfg.Audit.Enabled {
		return
	}
	if cfg.Audit.Path == "" {
		ve.Add("audit.path is required when audit is enabled")
	}
	if v := cfg.Audit.Retention.MaxAge; v != "" {
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			ve.Add("audit.retention.max_age %q is not a valid duration", v)
		}
	}
	if v := cfg.Audit.Retention.MaxSize; v != "" {
		if _, err := ParseSize(v); err != nil {
			ve.Add("audit.retention.max_size %q: %v", v, err)
		}
	}
}

// ParseSize parses a byte size such as "512", "64KB", "100MB" or "1GB".
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size")
	}
	return n * mult, nil
}
