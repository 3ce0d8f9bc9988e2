package platforms

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileEntry struct {
	OS      string  `yaml:"os"`
	Version *string `yaml:"version"`
	Browser string  `yaml:"browser"`
	Enabled *bool   `yaml:"enabled"`
}

type fileContent struct {
	Platforms []fileEntry `yaml:"platforms"`
}

// LoadFile reads a platform list from a YAML file like this:
//
//	platforms:
//	  - os: Windows 7
//	    browser: Chrome
//	  - os: OS X 10.10
//	    version: "8.0"
//	    browser: safari
//	    enabled: false
//
// A missing version means the latest one. Entries are enabled unless they say otherwise.
func LoadFile(path string) (List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Parse is the same as LoadFile, for data that has already been read.
func Parse(data []byte) (List, error) {
	var content fileContent
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, err
	}
	if len(content.Platforms) == 0 {
		return nil, fmt.Errorf("no platforms are listed")
	}
	l := make(List, 0, len(content.Platforms))
	for _, e := range content.Platforms {
		version := ""
		if e.Version != nil {
			version = *e.Version
		}
		p := New(e.OS, version, e.Browser)
		if e.Enabled != nil {
			p.Enabled = *e.Enabled
		}
		l = append(l, p)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}
