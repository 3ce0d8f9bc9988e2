// Package platforms defines the browser environments that the test suite runs in.
package platforms

import (
	"fmt"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Platform is one combination of operating system, browser and browser version. Each enabled
// Platform gets its own instance of every test.
type Platform struct {
	OS string

	// Version is the browser version. If it is not defined, the grid picks one, which is
	// usually the latest.
	Version ldvalue.OptionalString

	Browser string

	Enabled bool
}

// New returns an enabled Platform. An empty version or "latest" means the grid chooses.
func New(os, version, browser string) Platform {
	p := Platform{OS: os, Browser: browser, Enabled: true}
	if version != "" && version != "latest" {
		p.Version = ldvalue.NewOptionalString(version)
	}
	return p
}

// Disabled returns a copy of the Platform that will not be tested.
func (p Platform) Disabled() Platform {
	p.Enabled = false
	return p
}

// VersionName returns the browser version, or "latest" if none was specified.
func (p Platform) VersionName() string {
	if p.Version.IsDefined() {
		return p.Version.StringValue()
	}
	return "latest"
}

// Name returns a display name that identifies the Platform in test IDs, such as
// "Windows 7 Chrome latest". It does not contain slashes.
func (p Platform) Name() string {
	name := fmt.Sprintf("%s %s %s", p.OS, p.Browser, p.VersionName())
	return strings.ReplaceAll(name, "/", "-")
}

func (p Platform) String() string {
	return p.Name()
}

// List is an ordered list of platforms.
type List []Platform

// Enabled returns the enabled platforms, in their original order.
func (l List) Enabled() List {
	var ret List
	for _, p := range l {
		if p.Enabled {
			ret = append(ret, p)
		}
	}
	return ret
}

// DisabledNames returns the names of the platforms that are turned off.
func (l List) DisabledNames() []string {
	var ret []string
	for _, p := range l {
		if !p.Enabled {
			ret = append(ret, p.Name())
		}
	}
	return ret
}

// Names returns the names of all platforms in the list.
func (l List) Names() []string {
	ret := make([]string, 0, len(l))
	for _, p := range l {
		ret = append(ret, p.Name())
	}
	return ret
}

// Validate checks that every platform names an OS and a browser, and that no two platforms have
// the same name.
func (l List) Validate() error {
	seen := make(map[string]bool, len(l))
	for i, p := range l {
		if strings.TrimSpace(p.OS) == "" {
			return fmt.Errorf("platform %d: os is required", i+1)
		}
		if strings.TrimSpace(p.Browser) == "" {
			return fmt.Errorf("platform %d: browser is required", i+1)
		}
		if seen[p.Name()] {
			return fmt.Errorf("platform %d: %q is listed more than once", i+1, p.Name())
		}
		seen[p.Name()] = true
	}
	return nil
}

// Default returns the built-in platform list. The disabled entries are kept so they can be
// turned back on easily.
func Default() List {
	return List{
		New("Windows 7", "latest", "Chrome"),
		New("Windows 8.1", "11", "internet explorer"),
		New("OS X 10.10", "8.0", "safari"),
		New("Windows 8.1", "latest", "firefox"),

		New("Windows 8", "10", "internet explorer").Disabled(),
		New("OS X 10.8", "6", "safari").Disabled(),
		New("Windows 7", "45", "Chrome").Disabled(),
		New("Windows 7", "5.1", "safari").Disabled(),
		New("Windows XP", "7.0", "internet explorer").Disabled(),
		New("OS X 10.9", "7.0", "safari").Disabled(),
		New("Windows 8.1", "43.0", "Chrome").Disabled(),
	}
}
