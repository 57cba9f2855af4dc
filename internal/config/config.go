// Package config provides centralized configuration management for the pipeline.
// Settings come from environment variables with sensible defaults and are
// validated on startup so a misconfigured run fails before touching any data.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Sources  SourcesConfig
	Pipeline PipelineConfig
	DuckDB   DuckDBConfig
	Server   ServerConfig
	Export   ExportConfig
	Logging  LoggingConfig
}

// SourcesConfig locates the raw inputs and the processed artifact.
type SourcesConfig struct {
	// RawDir holds the yearly columnar source files (*.parquet).
	RawDir string `env:"SINAN_SOURCE_DIR" default:"data/raw/VIOLBR-PARQUET"`

	// DictDir holds the TabWin lookup files (Munic*.cnv).
	DictDir string `env:"SINAN_DICT_DIR" default:"data/config/TAB_SINANONLINE"`

	// ProcessedDir receives the precomputed artifact pair.
	ProcessedDir string `env:"SINAN_PROCESSED_DIR" default:"data/processed"`

	// DictEncoding is the text encoding of lookup files: latin1 or utf-8.
	DictEncoding string `env:"SINAN_DICT_ENCODING" default:"latin1"`
}

// PipelineConfig controls how the processed table is built and memoised.
type PipelineConfig struct {
	UseFastBackend bool `env:"SINAN_USE_FAST_BACKEND" default:"true"`
	UsePrecomputed bool `env:"SINAN_USE_PRECOMPUTED" default:"true"`

	// CacheTTL bounds how long a built table is served before rebuilding.
	CacheTTL time.Duration `env:"SINAN_CACHE_TTL" default:"1h"`

	// CacheMaxEntries caps memoised tables; one entry keeps memory predictable.
	CacheMaxEntries int `env:"SINAN_CACHE_MAX_ENTRIES" default:"1"`

	// MaxRows aborts the reference backend once this many raw rows are held (0 = unlimited).
	MaxRows int `env:"SINAN_MAX_ROWS" default:"0"`

	// MemoryLimit aborts the reference backend once the Go heap exceeds it (0 = unlimited).
	// Accepts plain bytes or a KB/MB/GB suffix.
	MemoryLimit int64 `env:"SINAN_MEMORY_LIMIT" default:"0" unit:"bytes"`

	// BuildWait is how long a build waits for another build to finish.
	BuildWait time.Duration `env:"SINAN_BUILD_WAIT" default:"2m"`
}

// DuckDBConfig tunes the embedded analytical engine.
type DuckDBConfig struct {
	// MemoryLimit is passed verbatim to DuckDB's memory_limit setting (e.g. "4GB").
	MemoryLimit string `env:"DUCKDB_MEMORY_LIMIT"`

	// Threads sets DuckDB's worker threads (0 = engine default).
	Threads int `env:"DUCKDB_THREADS" default:"0"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout must cover a cold pipeline build.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`

	// MaxPageSize caps the rows returned by one records request.
	MaxPageSize int `env:"SERVER_MAX_PAGE_SIZE" default:"1000"`

	// RateLimit is requests per minute per client IP (0 disables).
	RateLimit int `env:"SERVER_RATE_LIMIT" default:"120"`
}

// ExportConfig configures the PostgreSQL sink. The URL is only needed by
// "sinan export --format postgres".
type ExportConfig struct {
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`
	Table       string `env:"EXPORT_PG_TABLE" default:"sinan_processed"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
