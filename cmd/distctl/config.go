package main

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the distctl sync-configuration file format: registry
// credentials plus a list of sync steps, per cmd/regsync/root.go's
// ConfigLoadReader pattern.
type Config struct {
	Creds    []ConfigHost   `yaml:"creds"`
	Defaults ConfigDefaults `yaml:"defaults"`
	Sync     []ConfigSync   `yaml:"sync"`
}

// ConfigHost carries registry credentials for one host.
type ConfigHost struct {
	Registry string `yaml:"registry"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
}

// ConfigDefaults holds process-wide knobs.
type ConfigDefaults struct {
	Parallel int `yaml:"parallel"`
}

// ConfigSync is a single mirror step: either a whole "repository" (every
// tag) or a single "image" (one tag/digest), copied from Source to Target
// on Schedule (a cron expression) or every Interval.
type ConfigSync struct {
	Source   string        `yaml:"source"`
	Target   string        `yaml:"target"`
	Type     string        `yaml:"type"`
	Schedule string        `yaml:"schedule"`
	Interval time.Duration `yaml:"interval"`
}

// ConfigLoadReader parses a YAML config document, defaulting Parallel to 1
// when the file omits it.
func ConfigLoadReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := Config{Defaults: ConfigDefaults{Parallel: 1}}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Defaults.Parallel <= 0 {
		c.Defaults.Parallel = 1
	}
	return &c, nil
}
