package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	// DriverMattn is the cgo driver registered by github.com/mattn/go-sqlite3
	DriverMattn = "sqlite3"
	// DriverModernc is the pure Go driver registered by modernc.org/sqlite
	DriverModernc = "sqlite"

	// EnvPrefix prefixes every environment variable read by LoadFromEnvironment
	EnvPrefix = "ODOMETER"
)

// Config holds all engine configuration options
type Config struct {
	// Database connection settings
	Path                  string        `json:"path" yaml:"path" envconfig:"DB_PATH"`                                                  // Database file path
	Driver                string        `json:"driver" yaml:"driver" envconfig:"DB_DRIVER"`                                            // sqlite3 (mattn) or sqlite (modernc)
	MaxConnections        int           `json:"maxConnections" yaml:"maxConnections" envconfig:"DB_MAX_CONNECTIONS"`                   // Maximum number of open connections in WAL mode
	MaxIdleConns          int           `json:"maxIdleConns" yaml:"maxIdleConns" envconfig:"DB_MAX_IDLE_CONNECTIONS"`                  // Maximum number of idle connections
	ConnMaxLifetime       time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime" envconfig:"DB_CONN_MAX_LIFETIME"`               // Maximum connection lifetime
	ConnMaxIdleTime       time.Duration `json:"connMaxIdleTime" yaml:"connMaxIdleTime" envconfig:"DB_CONN_MAX_IDLE_TIME"`              // Maximum connection idle time
	ForceSingleConnection bool          `json:"forceSingleConnection" yaml:"forceSingleConnection" envconfig:"DB_FORCE_SINGLE_CONNECTION"` // Force single connection mode

	// Migration settings
	AutoMigrate bool `json:"autoMigrate" yaml:"autoMigrate" envconfig:"DB_AUTO_MIGRATE"` // Apply pending migrations on startup

	// Performance settings
	JournalMode     string        `json:"journalMode" yaml:"journalMode" envconfig:"DB_JOURNAL_MODE"`             // SQLite journal mode (WAL, DELETE, etc.)
	SynchronousMode string        `json:"synchronousMode" yaml:"synchronousMode" envconfig:"DB_SYNCHRONOUS_MODE"` // SQLite synchronous mode (FULL, NORMAL, OFF)
	CacheSize       int           `json:"cacheSize" yaml:"cacheSize" envconfig:"DB_CACHE_SIZE"`                   // SQLite cache size in KB
	BusyTimeout     int           `json:"busyTimeout" yaml:"busyTimeout" envconfig:"DB_BUSY_TIMEOUT"`             // SQLite busy timeout in milliseconds
	ForeignKeys     bool          `json:"foreignKeys" yaml:"foreignKeys" envconfig:"DB_FOREIGN_KEYS"`             // Enable foreign key constraints
	TxTimeout       time.Duration `json:"txTimeout" yaml:"txTimeout" envconfig:"DB_TX_TIMEOUT"`                   // Upper bound for a single write transaction
	BatchSize       int           `json:"batchSize" yaml:"batchSize" envconfig:"BATCH_SIZE"`                      // Events per write transaction when ingesting batches
	PurgeBatchSize  int           `json:"purgeBatchSize" yaml:"purgeBatchSize" envconfig:"PURGE_BATCH_SIZE"`       // Rows per DELETE statement during retention

	// Maintenance settings
	AutoVacuum      bool          `json:"autoVacuum" yaml:"autoVacuum" envconfig:"DB_AUTO_VACUUM"`                // Create new databases with auto_vacuum=FULL
	VacuumInterval  time.Duration `json:"vacuumInterval" yaml:"vacuumInterval" envconfig:"DB_VACUUM_INTERVAL"`    // Interval for the full optimize job (0 = off)
	AnalyzeInterval time.Duration `json:"analyzeInterval" yaml:"analyzeInterval" envconfig:"DB_ANALYZE_INTERVAL"` // Interval for ANALYZE (0 = off)

	// Data retention settings
	RetentionDays     int    `json:"retentionDays" yaml:"retentionDays" envconfig:"RETENTION_DAYS"`             // Days of data to keep (0 = keep forever)
	EnableCleanup     bool   `json:"enableCleanup" yaml:"enableCleanup" envconfig:"ENABLE_CLEANUP"`             // Whether the scheduler purges old data
	RetentionSchedule string `json:"retentionSchedule" yaml:"retentionSchedule" envconfig:"RETENTION_SCHEDULE"` // Cron spec for the purge job

	// Environment and runtime settings
	Timezone    string `json:"timezone" yaml:"timezone" envconfig:"TIMEZONE"`          // IANA zone used for date bucketing ("" or "Local" = system)
	Environment string `json:"environment" yaml:"environment" envconfig:"ENVIRONMENT"` // Environment (development, production, test)
	LogLevel    string `json:"logLevel" yaml:"logLevel" envconfig:"LOG_LEVEL"`          // Log level
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		// Connection settings
		Path:                  "odometer.db",
		Driver:                DriverMattn,
		MaxConnections:        4,
		MaxIdleConns:          2,
		ConnMaxLifetime:       24 * time.Hour,
		ConnMaxIdleTime:       30 * time.Minute,
		ForceSingleConnection: false, // Let the service decide based on journal mode

		AutoMigrate: true,

		// Performance settings
		JournalMode:     "WAL",
		SynchronousMode: "NORMAL",
		CacheSize:       2000, // 2MB cache
		BusyTimeout:     5000, // 5 seconds
		ForeignKeys:     true,
		TxTimeout:       10 * time.Second,
		BatchSize:       500,
		PurgeBatchSize:  1000,

		// Maintenance settings
		AutoVacuum:      true,
		VacuumInterval:  24 * time.Hour,
		AnalyzeInterval: 6 * time.Hour,

		// Data retention settings
		RetentionDays:     365,
		EnableCleanup:     true,
		RetentionSchedule: "@every 1h",

		// Environment settings
		Timezone:    "Local",
		Environment: "production",
		LogLevel:    "info",
	}
}

// DevelopmentConfig returns a configuration optimized for development
func DevelopmentConfig() *Config {
	config := DefaultConfig()
	config.Path = "odometer_dev.db"
	config.Environment = "development"
	config.LogLevel = "debug"
	config.RetentionDays = 30    // Keep less data in development
	config.EnableCleanup = false // Don't purge in development
	return config
}

// TestConfig returns a configuration optimized for testing
func TestConfig() *Config {
	config := DefaultConfig()
	config.Path = ":memory:"
	config.Environment = "test"
	config.LogLevel = "error"
	config.RetentionDays = 0 // Keep forever in tests
	config.EnableCleanup = false
	config.VacuumInterval = 0 // Disable maintenance in tests
	config.AnalyzeInterval = 0
	config.Timezone = "UTC"

	// WAL is meaningless for in-memory databases
	config.JournalMode = "MEMORY"
	config.SynchronousMode = "OFF"
	config.CacheSize = 1000
	config.BusyTimeout = 1000
	config.TxTimeout = 5 * time.Second

	return config
}

// ConfigForEnvironment returns a configuration preset for the given environment
func ConfigForEnvironment(env string) *Config {
	switch env {
	case "development":
		return DevelopmentConfig()
	case "test":
		return TestConfig()
	default:
		config := DefaultConfig()
		config.Path = filepath.Join(".", "odometer.db")
		return config
	}
}

// LoadFile overlays settings from a YAML file. Keys absent from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnvironment overlays settings from ODOMETER_* environment variables
func (c *Config) LoadFromEnvironment() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to load environment configuration: %w", err)
	}
	return nil
}

// Validate validates the configuration parameters
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	// For file-based databases, ensure the directory exists
	if !c.IsInMemory() {
		dir := filepath.Dir(c.Path)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create database directory %s: %w", dir, err)
				}
			}
		}
	}

	if c.Driver != DriverMattn && c.Driver != DriverModernc {
		return fmt.Errorf("invalid driver %q: must be %q or %q", c.Driver, DriverMattn, DriverModernc)
	}

	// Connection settings
	if c.MaxConnections <= 0 {
		return fmt.Errorf("maxConnections must be positive, got %d", c.MaxConnections)
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("maxIdleConns cannot be negative, got %d", c.MaxIdleConns)
	}
	if c.MaxIdleConns > c.MaxConnections {
		return fmt.Errorf("maxIdleConns (%d) cannot be greater than maxConnections (%d)", c.MaxIdleConns, c.MaxConnections)
	}
	if c.ConnMaxLifetime < 0 {
		return fmt.Errorf("connMaxLifetime cannot be negative, got %v", c.ConnMaxLifetime)
	}
	if c.ConnMaxIdleTime < 0 {
		return fmt.Errorf("connMaxIdleTime cannot be negative, got %v", c.ConnMaxIdleTime)
	}

	// Performance settings
	switch strings.ToUpper(c.JournalMode) {
	case "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF":
	default:
		return fmt.Errorf("invalid journalMode: %s", c.JournalMode)
	}
	if c.IsInMemory() && strings.EqualFold(c.JournalMode, "WAL") {
		return fmt.Errorf("journalMode cannot be WAL when using in-memory database")
	}

	switch strings.ToUpper(c.SynchronousMode) {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return fmt.Errorf("invalid synchronousMode: %s", c.SynchronousMode)
	}

	if c.CacheSize <= 0 {
		return fmt.Errorf("cacheSize must be positive, got %d", c.CacheSize)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("busyTimeout cannot be negative, got %d", c.BusyTimeout)
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("txTimeout must be positive, got %v", c.TxTimeout)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be positive, got %d", c.BatchSize)
	}
	if c.PurgeBatchSize <= 0 {
		return fmt.Errorf("purgeBatchSize must be positive, got %d", c.PurgeBatchSize)
	}

	// Maintenance settings
	if c.VacuumInterval < 0 {
		return fmt.Errorf("vacuumInterval cannot be negative, got %v", c.VacuumInterval)
	}
	if c.AnalyzeInterval < 0 {
		return fmt.Errorf("analyzeInterval cannot be negative, got %v", c.AnalyzeInterval)
	}

	// Data retention settings
	if c.RetentionDays < 0 {
		return fmt.Errorf("retentionDays cannot be negative, got %d", c.RetentionDays)
	}
	if c.EnableCleanup {
		if _, err := cron.ParseStandard(c.RetentionSchedule); err != nil {
			return fmt.Errorf("invalid retentionSchedule %q: %w", c.RetentionSchedule, err)
		}
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Environment {
	case "development", "test", "production":
	default:
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logLevel: %s", c.LogLevel)
	}

	return nil
}

// Location resolves Timezone. Empty and "Local" mean the system zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// GetConnectionString builds the driver-specific DSN with all options
func (c *Config) GetConnectionString() string {
	// Escape only the characters that would break query string parsing
	path := c.Path
	if strings.ContainsAny(path, "?&") {
		path = strings.ReplaceAll(path, "?", "%3F")
		path = strings.ReplaceAll(path, "&", "%26")
	}

	if c.Driver == DriverModernc {
		return "file:" + path + "?" + c.moderncParams()
	}
	return path + "?" + c.mattnParams().Encode()
}

func (c *Config) mattnParams() url.Values {
	values := url.Values{}
	if c.ForeignKeys {
		values.Set("_foreign_keys", "on")
	} else {
		values.Set("_foreign_keys", "off")
	}
	values.Set("_journal_mode", c.JournalMode)
	values.Set("_synchronous", c.SynchronousMode)
	// Negative so SQLite interprets it as KB
	values.Set("_cache_size", strconv.Itoa(-c.CacheSize))
	values.Set("_busy_timeout", strconv.Itoa(c.BusyTimeout))
	values.Set("_txlock", "immediate")
	if c.AutoVacuum {
		values.Set("_auto_vacuum", "full")
	}
	return values
}

// moderncParams keeps pragma order stable; busy_timeout must be set before anything can block.
func (c *Config) moderncParams() string {
	foreignKeys := "0"
	if c.ForeignKeys {
		foreignKeys = "1"
	}
	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout),
		"foreign_keys(" + foreignKeys + ")",
		"journal_mode(" + c.JournalMode + ")",
		"synchronous(" + c.SynchronousMode + ")",
		fmt.Sprintf("cache_size(%d)", -c.CacheSize),
	}
	if c.AutoVacuum {
		pragmas = append(pragmas, "auto_vacuum(FULL)")
	}

	parts := make([]string, 0, len(pragmas)+1)
	for _, p := range pragmas {
		parts = append(parts, "_pragma="+url.QueryEscape(p))
	}
	parts = append(parts, "_txlock=immediate")
	return strings.Join(parts, "&")
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// IsInMemory returns true if the database is configured to use in-memory storage
func (c *Config) IsInMemory() bool {
	return c.Path == ":memory:" || strings.Contains(c.Path, "mode=memory")
}

// IsWAL reports whether the database will run with a write-ahead log
func (c *Config) IsWAL() bool {
	return strings.EqualFold(c.JournalMode, "WAL") && !c.IsInMemory()
}

// IsDevelopment returns true if the environment is set to development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsTest returns true if the environment is set to test
func (c *Config) IsTest() bool {
	return c.Environment == "test"
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
