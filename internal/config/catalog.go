package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog holds the option lists offered by the profile and event forms.
type Catalog struct {
	DanceStyles            []string `yaml:"dance_styles" json:"dance_styles"`
	ProfileDanceStyles     []string `yaml:"profile_dance_styles" json:"profile_dance_styles"`
	EventGenderPreferences []string `yaml:"event_gender_preferences" json:"event_gender_preferences"`
	Genders                []string `yaml:"genders" json:"genders"`
	Heights                []string `yaml:"heights" json:"heights"`
	SkinTones              []string `yaml:"skin_tones" json:"skin_tones"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	cat, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return cat
}

// LoadCatalog reads the catalog at path, or the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	required := map[string][]string{
		"dance_styles":             cat.DanceStyles,
		"profile_dance_styles":     cat.ProfileDanceStyles,
		"event_gender_preferences": cat.EventGenderPreferences,
		"genders":                  cat.Genders,
	}
	for name, list := range required {
		if len(list) == 0 {
			return nil, fmt.Errorf("catalog: %s must not be empty", name)
		}
	}
	return &cat, nil
}

func (c *Catalog) AllowsEventDanceStyle(v string) bool { return contains(c.DanceStyles, v) }
func (c *Catalog) AllowsProfileDanceStyle(v string) bool { return contains(c.ProfileDanceStyles, v) }
func (c *Catalog) AllowsGenderPreference(v string) bool { return contains(c.EventGenderPreferences, v) }
func (c *Catalog) AllowsGender(v string) bool { return contains(c.Genders, v) }

// AllowsHeight and AllowsSkinTone accept anything when the list is empty.
func (c *Catalog) AllowsHeight(v string) bool {
	return len(c.Heights) == 0 || contains(c.Heights, v)
}

func (c *Catalog) AllowsSkinTone(v string) bool {
	return len(c.SkinTones) == 0 || contains(c.SkinTones, v)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
