package platform

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

func GetEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func GetEnvInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func GetEnvBool(key string, defaultVal bool) bool {
	if val, exists := os.LookupEnv(key); exists {
		if strings.ToLower(val) == "true" || val == "1" {
			return true
		}
		return false
	}
	return defaultVal
}

// Settings are the caller-side defaults for an estimate. They are built once
// at startup and shared read-only.
type Settings struct {
	DefaultVolume      int    `yaml:"default_volume_units"`
	TargetMarket       string `yaml:"target_market"`
	Channel            string `yaml:"channel"`
	Incoterm           string `yaml:"incoterm"`
	Currency           string `yaml:"currency"`
	DefaultRoute       string `yaml:"default_route"`
	DestinationPort    string `yaml:"destination_port"`
	ConsultationEmail  string `yaml:"consultation_email"`
	MaxQueryLength     int    `yaml:"max_query_length"`
	MaxAnnotationBytes int    `yaml:"max_annotation_bytes"`
	BatchConcurrency   int    `yaml:"batch_concurrency"`
	RegistrySource     string `yaml:"registry_source"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		DefaultVolume:      5000,
		TargetMarket:       "USA",
		Channel:            "Amazon FBA",
		Incoterm:           "DDP",
		Currency:           "USD",
		DefaultRoute:       "cn_to_us_west_coast",
		DestinationPort:    "Los Angeles",
		ConsultationEmail:  "sourcing@landed-cost.example",
		MaxQueryLength:     5000,
		MaxAnnotationBytes: 64 * 1024,
		BatchConcurrency:   8,
	}
}

// LoadSettings applies an optional YAML file and then environment overrides
// on top of DefaultSettings. An empty path skips the file.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}

	s.applyEnv()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnv() {
	s.DefaultVolume = GetEnvInt("LANDEDCOST_DEFAULT_VOLUME", s.DefaultVolume)
	s.TargetMarket = GetEnv("LANDEDCOST_TARGET_MARKET", s.TargetMarket)
	s.Channel = GetEnv("LANDEDCOST_CHANNEL", s.Channel)
	s.Incoterm = GetEnv("LANDEDCOST_INCOTERM", s.Incoterm)
	s.DefaultRoute = GetEnv("LANDEDCOST_ROUTE", s.DefaultRoute)
	s.RegistrySource = GetEnv("LANDEDCOST_REGISTRY", s.RegistrySource)
	s.ConsultationEmail = GetEnv("LANDEDCOST_CONSULTATION_EMAIL", s.ConsultationEmail)
	s.BatchConcurrency = GetEnvInt("LANDEDCOST_BATCH_CONCURRENCY", s.BatchConcurrency)
}

// Validate rejects settings that would make every request fail.
func (s *Settings) Validate() error {
	if s.DefaultVolume <= 0 {
		return fmt.Errorf("default_volume_units must be positive, got %d", s.DefaultVolume)
	}
	if s.MaxQueryLength <= 0 {
		return fmt.Errorf("max_query_length must be positive, got %d", s.MaxQueryLength)
	}
	if s.BatchConcurrency <= 0 {
		return fmt.Errorf("batch_concurrency must be positive, got %d", s.BatchConcurrency)
	}
	if s.DefaultRoute == "" {
		return fmt.Errorf("default_route is required")
	}
	return nil
}

// IncotermDisplay expands the incoterm code for reports.
func IncotermDisplay(code string) string {
	switch strings.ToUpper(code) {
	case "DDP":
		return "DDP (Delivered Duty Paid)"
	case "FOB":
		return "FOB (Free On Board)"
	case "EXW":
		return "EXW (Ex Works)"
	case "CIF":
		return "CIF (Cost, Insurance and Freight)"
	default:
		return code
	}
}
