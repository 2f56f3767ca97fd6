// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for kgraph configuration.
	DefaultConfigDir = ".kgraph"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultPersonasFile is the default persona registry file name.
	DefaultPersonasFile = "personas.yaml"
	// DefaultDatabaseFile is the SQLite file name inside the config directory.
	DefaultDatabaseFile = "graph.db"
	// DefaultEnvFile is loaded from the base path before env overrides apply.
	DefaultEnvFile = ".env"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverNeo4j  = "neo4j"
)

// Lock drivers.
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

var (
	// reNonAlphanumeric matches characters that aren't alphanumeric or underscore.
	reNonAlphanumeric = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	Store  StoreConfig  `yaml:"store,omitempty"`
	SQLite SQLiteConfig `yaml:"sqlite,omitempty"`
	Neo4j  Neo4jConfig  `yaml:"neo4j,omitempty"`
	Qdrant QdrantConfig `yaml:"qdrant,omitempty"`
	Lock   LockConfig   `yaml:"lock,omitempty"`
	Merge  MergeConfig  `yaml:"merge,omitempty"`
	Batch  BatchConfig  `yaml:"batch,omitempty"`
	Log    LogConfig    `yaml:"log,omitempty"`
}

// StoreConfig selects the graph storage backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite graph store.
type SQLiteConfig struct {
	// Path is the database file. Relative paths resolve against the base path.
	// Empty means .kgraph/graph.db.
	Path string `yaml:"path,omitempty"`
}

// Neo4jConfig holds configuration for the Neo4j graph store.
type Neo4jConfig struct {
	URI      string `yaml:"uri,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// QdrantConfig holds configuration for the Qdrant vector store that entity
// vector links point into.
type QdrantConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// LockConfig selects how merges of the same key are serialised.
type LockConfig struct {
	Driver   string        `yaml:"driver,omitempty"`
	RedisURL string        `yaml:"redis_url,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

// MergeConfig bounds the merge resolver look-ups.
type MergeConfig struct {
	EntityCandidateLimit  int `yaml:"entity_candidate_limit,omitempty"`
	RelationshipScanLimit int `yaml:"relationship_scan_limit,omitempty"`
}

// BatchConfig configures batch ingestion.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency,omitempty"`
}

// LogConfig selects the logger flavour ("development" or "production").
type LogConfig struct {
	Env string `yaml:"env,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverSQLite,
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			User:     "neo4j",
			Database: "neo4j",
		},
		Qdrant: QdrantConfig{
			Host: "localhost",
			Port: 6334,
		},
		Lock: LockConfig{
			Driver:   LockMemory,
			RedisURL: "redis://localhost:6379",
			TTL:      10 * time.Second,
		},
		Merge: MergeConfig{
			EntityCandidateLimit:  5,
			RelationshipScanLimit: 100,
		},
		Batch: BatchConfig{
			Concurrency: 1,
		},
		Log: LogConfig{
			Env: "development",
		},
	}
}

// Load loads configuration from the .kgraph directory in the given path.
// A .env file in basePath, when present, is loaded into the process
// environment first; variables already set are not overwritten.
func Load(basePath string) (*Config, error) {
	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'kgraph init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadEnvFile(basePath); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFile(basePath string) error {
	envFile := filepath.Join(basePath, DefaultEnvFile)
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if pw := os.Getenv("KGRAPH_NEO4J_PASSWORD"); pw != "" {
		c.Neo4j.Password = pw
	}
	if url := os.Getenv("KGRAPH_REDIS_URL"); url != "" {
		c.Lock.RedisURL = url
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		if c.Qdrant.APIKey == "" {
			c.Qdrant.APIKey = key
		}
	}
	if env := os.Getenv("KGRAPH_LOG_ENV"); env != "" {
		c.Log.Env = env
	}
}

// Validate checks driver names.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverNeo4j:
	default:
		return fmt.Errorf("unknown store driver %q (want %s or %s)", c.Store.Driver, DriverSQLite, DriverNeo4j)
	}
	switch c.Lock.Driver {
	case LockMemory, LockRedis:
	default:
		return fmt.Errorf("unknown lock driver %q (want %s or %s)", c.Lock.Driver, LockMemory, LockRedis)
	}
	return nil
}

// SQLitePath resolves the SQLite database path against basePath.
func (c *Config) SQLitePath(basePath string) string {
	if c.SQLite.Path == "" {
		return filepath.Join(basePath, DefaultConfigDir, DefaultDatabaseFile)
	}
	if filepath.IsAbs(c.SQLite.Path) {
		return c.SQLite.Path
	}
	return filepath.Join(basePath, c.SQLite.Path)
}

// ConfigDir returns the path to the .kgraph config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// PersonasFilePath returns the path to the persona registry.
func PersonasFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultPersonasFile)
}

// SanitizePersonaName converts a persona name to a valid collection suffix.
func SanitizePersonaName(name string) string {
	if name = sanitize(name); name == "" {
		return "default"
	}
	return name
}

// ValidPersonaName reports whether name keeps at least one letter or digit
// after sanitising, so it maps to a collection of its own.
func ValidPersonaName(name string) bool {
	return sanitize(name) != ""
}

func sanitize(name string) string {
	// Convert to lowercase
	name = strings.ToLower(name)

	// Replace spaces and hyphens with underscores
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	// Remove any characters that aren't alphanumeric or underscore
	name = reNonAlphanumeric.ReplaceAllString(name, "")

	// Remove consecutive underscores
	name = reMultipleUnderscores.ReplaceAllString(name, "_")

	// Trim leading/trailing underscores
	return strings.Trim(name, "_")
}

// GenerateCollectionName creates the vector collection name for a persona.
func GenerateCollectionName(persona string) string {
	return "kgraph_" + SanitizePersonaName(persona)
}
