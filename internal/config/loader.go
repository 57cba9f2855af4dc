package config

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := os.Getenv(envName)
		if value == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value = os.Getenv(alt)
			}
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value, field.Tag.Get("unit")); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value, unit string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		switch {
		case field.Type() == reflect.TypeOf(time.Duration(0)):
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		case unit == "bytes":
			n, err := ParseByteSize(value)
			if err != nil {
				return err
			}
			field.SetInt(n)
		default:
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

var byteSizeRegex = regexp.MustCompile(`^(\d+)\s*([KMGT]I?B?)?$`)

// ParseByteSize parses "1048576", "512MB", "4GiB" or "2G" into bytes.
// Decimal and binary suffixes both use powers of 1024.
func ParseByteSize(s string) (int64, error) {
	m := byteSizeRegex.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if m[2] == "" {
		return n, nil
	}
	shift := map[byte]uint{'K': 10, 'M': 20, 'G': 30, 'T': 40}[m[2][0]]
	if n > math.MaxInt64>>shift {
		return 0, fmt.Errorf("byte size %q overflows int64", s)
	}
	return n << shift, nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Sources.RawDir) == "" {
		errs = append(errs, "SINAN_SOURCE_DIR must not be empty")
	}
	if strings.TrimSpace(c.Sources.ProcessedDir) == "" {
		errs = append(errs, "SINAN_PROCESSED_DIR must not be empty")
	}
	switch strings.ToLower(c.Sources.DictEncoding) {
	case "latin1", "latin-1", "iso-8859-1", "utf-8", "utf8":
	default:
		errs = append(errs, fmt.Sprintf("SINAN_DICT_ENCODING (%q) must be latin1 or utf-8", c.Sources.DictEncoding))
	}

	if c.Pipeline.CacheTTL <= 0 {
		errs = append(errs, "SINAN_CACHE_TTL must be positive")
	}
	if c.Pipeline.CacheMaxEntries <= 0 {
		errs = append(errs, "SINAN_CACHE_MAX_ENTRIES must be positive")
	}
	if c.Pipeline.MaxRows < 0 {
		errs = append(errs, "SINAN_MAX_ROWS must be non-negative")
	}
	if c.Pipeline.MemoryLimit < 0 {
		errs = append(errs, "SINAN_MEMORY_LIMIT must be non-negative")
	}
	if c.Pipeline.BuildWait <= 0 {
		errs = append(errs, "SINAN_BUILD_WAIT must be positive")
	}
	if c.DuckDB.Threads < 0 {
		errs = append(errs, "DUCKDB_THREADS must be non-negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxPageSize <= 0 {
		errs = append(errs, "SERVER_MAX_PAGE_SIZE must be positive")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "SERVER_RATE_LIMIT must be non-negative")
	}

	if c.Export.Table == "" {
		errs = append(errs, "EXPORT_PG_TABLE must not be empty")
	}

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
// The export database URL is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Sources: {RawDir: %q, DictDir: %q, ProcessedDir: %q}, ",
		c.Sources.RawDir, c.Sources.DictDir, c.Sources.ProcessedDir)
	fmt.Fprintf(&b, "Pipeline: {UseFastBackend: %v, UsePrecomputed: %v, CacheTTL: %s}, ",
		c.Pipeline.UseFastBackend, c.Pipeline.UsePrecomputed, c.Pipeline.CacheTTL)
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	if c.Export.DatabaseURL != "" {
		fmt.Fprintf(&b, "Export: {DatabaseURL: [MASKED], Table: %q}, ", c.Export.Table)
	} else {
		fmt.Fprintf(&b, "Export: {DatabaseURL: \"\", Table: %q}, ", c.Export.Table)
	}
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
