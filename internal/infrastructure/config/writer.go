package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigYAML is the default configuration content.
const DefaultConfigYAML = `# kgraph configuration

store:
  driver: sqlite          # sqlite | neo4j

sqlite:
  # path: .kgraph/graph.db

neo4j:
  uri: bolt://localhost:7687
  user: neo4j
  database: neo4j
  # password: secret (or set KGRAPH_NEO4J_PASSWORD)

qdrant:
  enabled: false          # delete vectors of reaped entities
  host: localhost
  port: 6334
  # api_key: your-api-key (or set QDRANT_API_KEY)

lock:
  driver: memory          # memory | redis
  redis_url: redis://localhost:6379
  ttl: 10s

merge:
  entity_candidate_limit: 5
  relationship_scan_limit: 100

batch:
  concurrency: 1

log:
  env: development        # development | production
`

// WriteDefault creates the .kgraph directory and writes a default config file.
func WriteDefault(basePath string) error {
	configDir := filepath.Join(basePath, DefaultConfigDir)
	configFile := filepath.Join(configDir, DefaultConfigFile)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists: %s", configFile)
	}

	if err := os.WriteFile(configFile, []byte(DefaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Exists checks if a kgraph config exists in the given path.
func Exists(basePath string) bool {
	_, err := os.Stat(ConfigFilePath(basePath))
	return err == nil
}
