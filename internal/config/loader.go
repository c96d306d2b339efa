package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc returns the value of a variable and whether it is set.
type LookupFunc func(name string) (string, bool)

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load over an arbitrary variable source. Every missing or
// malformed variable is reported, not just the first.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	var problems []error
	fill(reflect.ValueOf(cfg).Elem(), lookup, &problems)
	if len(problems) > 0 {
		return nil, fmt.Errorf("config load: %w", errors.Join(problems...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// envTags is the parsed form of a field's env, envAlt, default and
// required tags.
type envTags struct {
	names    []string
	def      string
	required bool
}

func tagsOf(f reflect.StructField) (envTags, bool) {
	primary := f.Tag.Get("env")
	if primary == "" {
		return envTags{}, false
	}
	t := envTags{
		names:    []string{primary},
		def:      f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}
	if alt := f.Tag.Get("envAlt"); alt != "" {
		t.names = append(t.names, alt)
	}
	return t, true
}

// resolve returns the first non-empty variable among names, else the
// default. ok is false when nothing applies.
func (t envTags) resolve(lookup LookupFunc) (value string, ok bool) {
	for _, name := range t.names {
		if v, set := lookup(name); set && v != "" {
			return v, true
		}
	}
	return t.def, t.def != ""
}

// fill walks nested section structs and sets every tagged field.
func fill(v reflect.Value, lookup LookupFunc, problems *[]error) {
	t := v.Type()
	for i := range t.NumField() {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			fill(fv, lookup, problems)
			continue
		}

		tags, tagged := tagsOf(sf)
		if !tagged {
			continue
		}
		raw, ok := tags.resolve(lookup)
		if !ok {
			if tags.required {
				*problems = append(*problems, fmt.Errorf("required environment variable %s is not set", tags.names[0]))
			}
			continue
		}
		if err := assign(fv, raw); err != nil {
			*problems = append(*problems, fmt.Errorf("invalid value for %s=%q: %w", tags.names[0], raw, err))
		}
	}
}

// assign parses raw into field according to its type.
func assign(field reflect.Value, raw string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(raw)
	case field.Kind() == reflect.Int, field.Kind() == reflect.Int64, field.Kind() == reflect.Int32:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		field.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}
	return nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Remote validation
	if c.Remote.BaseURL == "" {
		errs = append(errs, "REMOTE_BASE_URL is required")
	} else if u, err := url.Parse(c.Remote.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("REMOTE_BASE_URL (%q) must be an absolute URL", c.Remote.BaseURL))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, "REMOTE_TIMEOUT must be positive")
	}

	// Database validation
	if c.Database.URL != "" {
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.ArchiveRetention <= 0 {
			errs = append(errs, "ARCHIVE_RETENTION must be positive")
		}
		if c.Database.PruneInterval <= 0 {
			errs = append(errs, "ARCHIVE_PRUNE_INTERVAL must be positive")
		}
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Submit validation
	if c.Submit.MaxFileSize <= 0 {
		errs = append(errs, "SUBMIT_MAX_FILE_SIZE must be positive")
	}
	if c.Submit.InterRowDelay < 0 {
		errs = append(errs, "SUBMIT_INTER_ROW_DELAY must be non-negative")
	}
	if c.Submit.Timeout <= 0 {
		errs = append(errs, "SUBMIT_TIMEOUT must be positive")
	}
	if c.Submit.BatchTTL <= 0 {
		errs = append(errs, "SUBMIT_BATCH_TTL must be positive")
	}

	// Preferences validation
	if c.Preferences.ApplyAttempts <= 0 {
		errs = append(errs, "PREFS_APPLY_ATTEMPTS must be positive")
	}
	if c.Preferences.ApplyDelay < 0 {
		errs = append(errs, "PREFS_APPLY_DELAY must be non-negative")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.ImportLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_IMPORT must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The bearer token and database URL are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Remote: {BaseURL: %q, Token: %s, Timeout: %s, Lookup: %v, Latest: %v}, ",
		c.Remote.BaseURL, mask(c.Remote.BearerToken), c.Remote.Timeout, c.Remote.LookupEnabled, c.Remote.LookupLatest))
	b.WriteString(fmt.Sprintf("Submit: {MaxFileSize: %d, InterRowDelay: %s, Timeout: %s}, ",
		c.Submit.MaxFileSize, c.Submit.InterRowDelay, c.Submit.Timeout))
	b.WriteString(fmt.Sprintf("Database: {URL: %s, MaxConns: %d, MinConns: %d}, ",
		mask(c.Database.URL), c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Preferences: {DBPath: %q, Version: %q}, ",
		c.Preferences.DBPath, c.Preferences.Version))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
