package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/backgroundcheck/breachmon/internal/model"
)

// DefaultSourcesFile is the default sources file name.
const DefaultSourcesFile = "sources.yml"

// SourceConfig describes one crawl source. Each entry binds a named
// source adapter to its endpoint and politeness policy.
type SourceConfig struct {
	// Type is the source category: paste-site, forum, disclosure-db, or
	// darkweb. Darkweb sources are fetched through the Tor proxy.
	Type model.SourceType `yaml:"type"`

	// URL is the listing endpoint the adapter polls.
	URL string `yaml:"url"`

	// MinInterval overrides the minimum polling interval for this
	// source. Zero means the configured default applies.
	MinInterval time.Duration `yaml:"min_interval,omitempty"`

	// SeverityScore is the severity assigned to disclosures from this
	// source. Zero means a mid-range default chosen by the adapter.
	SeverityScore int `yaml:"severity_score,omitempty"`

	// DataTypes lists the attribute categories this source typically
	// exposes, recorded on every ingested record.
	DataTypes []string `yaml:"data_types,omitempty"`
}

// UnmarshalYAML decodes a source entry, parsing min_interval from a
// Go duration string ("2s", "1m30s"). yaml.v3 has no native
// time.Duration support, so the field goes through an aux struct.
func (c *SourceConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		Type          model.SourceType `yaml:"type"`
		URL           string           `yaml:"url"`
		MinInterval   string           `yaml:"min_interval"`
		SeverityScore int              `yaml:"severity_score"`
		DataTypes     []string         `yaml:"data_types"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}

	c.Type = r.Type
	c.URL = r.URL
	c.SeverityScore = r.SeverityScore
	c.DataTypes = r.DataTypes
	if r.MinInterval != "" {
		d, err := time.ParseDuration(r.MinInterval)
		if err != nil {
			return fmt.Errorf("min_interval: %w", err)
		}
		c.MinInterval = d
	}
	return nil
}

// SourcesFile is the on-disk structure of the YAML sources file.
//
// Reference configuration shipped with the service:
//
//	defaults:
//	  min_interval: 10s
//	sources:
//	  pastebin:
//	    type: paste-site
//	    url: https://pastebin.com/archive
//	    min_interval: 2s
//	  ghostbin:
//	    type: paste-site
//	    url: https://ghostbin.example/recent
//	    min_interval: 1s
//	  breachforum:
//	    type: forum
//	    url: http://breachforumsexample.onion/latest
//	    min_interval: 3s
type SourcesFile struct {
	// Defaults applies to every source unless overridden per entry.
	Defaults SourceConfig `yaml:"defaults,omitempty"`

	// Sources maps source IDs to their configuration.
	Sources map[string]SourceConfig `yaml:"sources,omitempty"`
}

// Get returns the configuration for a source ID with defaults merged in.
func (f *SourcesFile) Get(sourceID string) (SourceConfig, bool) {
	sc, ok := f.Sources[sourceID]
	if !ok {
		return SourceConfig{}, false
	}
	if sc.MinInterval == 0 {
		sc.MinInterval = f.Defaults.MinInterval
	}
	if sc.SeverityScore == 0 {
		sc.SeverityScore = f.Defaults.SeverityScore
	}
	if len(sc.DataTypes) == 0 {
		sc.DataTypes = f.Defaults.DataTypes
	}
	return sc, true
}

// IDs returns the configured source IDs in map order.
func (f *SourcesFile) IDs() []string {
	ids := make([]string, 0, len(f.Sources))
	for id := range f.Sources {
		ids = append(ids, id)
	}
	return ids
}

// LoadSourcesFile reads and parses a YAML sources file. A missing file
// is reported as ErrSourcesFileNotFound so callers can distinguish "not
// configured" from a malformed file.
func LoadSourcesFile(path string) (*SourcesFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSourcesFileNotFound
		}
		return nil, err
	}

	var sf SourcesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	if sf.Sources == nil {
		sf.Sources = make(map[string]SourceConfig)
	}

	for id, sc := range sf.Sources {
		if !sc.Type.Valid() {
			return nil, errors.New("sources file: unknown type for source " + id)
		}
		if sc.URL == "" {
			return nil, errors.New("sources file: missing url for source " + id)
		}
	}
	return &sf, nil
}

// FindSourcesFile locates the sources file. Search order:
//  1. the explicit path, if given
//  2. sources.yml in the current directory
//  3. sources.yml in the XDG config directory
//
// Returns the path found, or empty string.
func FindSourcesFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultSourcesFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	p := filepath.Join(XDGConfigDir(), DefaultSourcesFile)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}
