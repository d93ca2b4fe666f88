package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models civicdesk.yml.
type Config struct {
	Cases struct {
		CodePrefix      string `yaml:"code_prefix" json:"code_prefix"`
		CodeWidth       int    `yaml:"code_width" json:"code_width"`
		DefaultPriority string `yaml:"default_priority" json:"default_priority"`
	} `yaml:"cases" json:"cases"`
	Uploads  UploadsConfig   `yaml:"uploads" json:"uploads"`
	Taxonomy Taxonomy        `yaml:"taxonomy" json:"taxonomy"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type UploadsConfig struct {
	Dir          string   `yaml:"dir" json:"dir"`
	BaseURL      string   `yaml:"base_url" json:"base_url"`
	MaxBytes     int64    `yaml:"max_bytes" json:"max_bytes"`
	AllowedTypes []string `yaml:"allowed_types" json:"allowed_types"`
}

// Taxonomy seeds the lookup tables that free-text classification is resolved against.
type Taxonomy struct {
	Sectors   []SectorSeed   `yaml:"sectors" json:"sectors"`
	Locations []LocationSeed `yaml:"locations" json:"locations"`
}

type SectorSeed struct {
	Name       string   `yaml:"name" json:"name"`
	SubSectors []string `yaml:"sub_sectors" json:"sub_sectors,omitempty"`
}

// LocationSeed is a community; its children are smaller communities and
// their children are suburbs.
type LocationSeed struct {
	Name     string         `yaml:"name" json:"name"`
	Children []LocationSeed `yaml:"children" json:"children,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"-"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with civicdesk config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Cases.CodePrefix) == "" {
		return fmt.Errorf("config.cases.code_prefix is required")
	}
	if c.Cases.CodeWidth < 1 || c.Cases.CodeWidth > 12 {
		return fmt.Errorf("config.cases.code_width must be between 1 and 12")
	}
	switch c.Cases.DefaultPriority {
	case "low", "medium", "high", "urgent":
	default:
		return fmt.Errorf("config.cases.default_priority must be one of low, medium, high, urgent")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("config.uploads.max_bytes must be positive")
	}
	seen := map[string]bool{}
	for _, s := range c.Taxonomy.Sectors {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("config.taxonomy.sectors contains empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("sector %s declared twice", s.Name)
		}
		seen[s.Name] = true
		for _, sub := range s.SubSectors {
			if strings.TrimSpace(sub) == "" {
				return fmt.Errorf("sector %s has empty sub-sector name", s.Name)
			}
		}
	}
	if err := validateLocations(c.Taxonomy.Locations, 1); err != nil {
		return err
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

func validateLocations(items []LocationSeed, depth int) error {
	for _, l := range items {
		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("config.taxonomy.locations contains empty name at depth %d", depth)
		}
		if len(l.Children) > 0 && depth == 3 {
			return fmt.Errorf("location %s: suburbs cannot have children", l.Name)
		}
		if err := validateLocations(l.Children, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "civicdesk.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Taxonomy = Taxonomy{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `cases:
  code_prefix: ISS
  code_width: 4
  default_priority: medium

uploads:
  dir: uploads
  base_url: /uploads
  max_bytes: 5242880
  allowed_types: [image/jpeg, image/png, image/webp, image/gif]

taxonomy:
  sectors:
    - name: Roads and Transport
      sub_sectors: [Potholes, Streetlights, Traffic Signals]
    - name: Water and Sanitation
      sub_sectors: [Burst Pipes, Drainage, Refuse Collection]
    - name: Electricity
      sub_sectors: [Power Outage, Exposed Cables]
    - name: Health
      sub_sectors: [Clinics, Public Toilets]
  locations:
    - name: Ashanti
      children:
        - name: Kumasi
          children:
            - name: Adum
            - name: Bantama

# webhooks:
#   - url: https://example.org/hooks/civicdesk
#     secret: change-me
#     events: [case.submitted, case.status_changed]
`
