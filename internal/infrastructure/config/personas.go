package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// PersonasConfig is the registry of known personas (read/write).
type PersonasConfig struct {
	Personas map[string]PersonaEntry `yaml:"personas,omitempty"`
}

// PersonaEntry holds configuration for a specific persona.
type PersonaEntry struct {
	// Collection is the vector collection that entity vector links of this
	// persona point into.
	Collection  string `yaml:"collection"`
	Description string `yaml:"description,omitempty"`
}

// LoadPersonas loads the persona registry from the .kgraph directory.
func LoadPersonas(basePath string) (*PersonasConfig, error) {
	data, err := os.ReadFile(PersonasFilePath(basePath))
	if os.IsNotExist(err) {
		// Return empty registry if file doesn't exist
		return &PersonasConfig{
			Personas: make(map[string]PersonaEntry),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading personas file: %w", err)
	}

	var cfg PersonasConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing personas file: %w", err)
	}

	if cfg.Personas == nil {
		cfg.Personas = make(map[string]PersonaEntry)
	}

	return &cfg, nil
}

// Save writes the registry to the personas file.
func (p *PersonasConfig) Save(basePath string) error {
	configDir := filepath.Join(basePath, DefaultConfigDir)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling personas config: %w", err)
	}

	if err := os.WriteFile(PersonasFilePath(basePath), data, 0600); err != nil {
		return fmt.Errorf("writing personas file: %w", err)
	}

	return nil
}

// Add registers a persona. An empty collection defaults to the generated name.
func (p *PersonasConfig) Add(name string, entry PersonaEntry) {
	if p.Personas == nil {
		p.Personas = make(map[string]PersonaEntry)
	}
	if entry.Collection == "" {
		entry.Collection = GenerateCollectionName(name)
	}
	p.Personas[name] = entry
}

// Remove removes a persona from the registry.
func (p *PersonasConfig) Remove(name string) {
	if p.Personas != nil {
		delete(p.Personas, name)
	}
}

// Get returns the configuration for a specific persona.
func (p *PersonasConfig) Get(name string) (*PersonaEntry, error) {
	if len(p.Personas) == 0 {
		return nil, errors.New("no personas configured")
	}

	entry, ok := p.Personas[name]
	if !ok {
		names := p.Names()
		if len(names) > 5 {
			names = append(names[:5], "...")
		}
		return nil, fmt.Errorf("persona %q not found (available: %s)", name, strings.Join(names, ", "))
	}

	return &entry, nil
}

// Names returns the registered persona names in sorted order.
func (p *PersonasConfig) Names() []string {
	names := make([]string, 0, len(p.Personas))
	for name := range p.Personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exists checks if a persona is registered.
func (p *PersonasConfig) Exists(name string) bool {
	if p.Personas == nil {
		return false
	}
	_, ok := p.Personas[name]
	return ok
}
