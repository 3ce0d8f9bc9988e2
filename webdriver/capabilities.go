package webdriver

import (
	"encoding/json"
	"sort"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Capabilities describes the browser environment requested for a new session.
type Capabilities struct {
	BrowserName string

	// Version is the browser version. If it is not defined, the remote endpoint chooses.
	Version ldvalue.OptionalString

	Platform string

	// Extra contains any other capabilities, such as a build name or tunnel identifier.
	Extra map[string]ldvalue.Value

	// VendorOptionsKey, if set, is the key under which Extra is nested in the W3C form of
	// the capabilities, such as "sauce:options". W3C endpoints reject unknown top-level
	// capabilities that are not vendor-prefixed.
	VendorOptionsKey string
}

// WithExtra returns a copy of the capabilities with one more extra capability.
func (c Capabilities) WithExtra(name string, value ldvalue.Value) Capabilities {
	extra := make(map[string]ldvalue.Value, len(c.Extra)+1)
	for k, v := range c.Extra {
		extra[k] = v
	}
	extra[name] = value
	c.Extra = extra
	return c
}

// Legacy returns the capabilities in the JSON Wire Protocol form ("desiredCapabilities").
func (c Capabilities) Legacy() ldvalue.Value {
	b := ldvalue.ObjectBuild()
	for _, k := range c.extraKeys() {
		b.Set(k, c.Extra[k])
	}
	b.Set("browserName", ldvalue.String(c.BrowserName))
	if c.Version.IsDefined() {
		b.Set("version", ldvalue.String(c.Version.StringValue()))
	}
	if c.Platform != "" {
		b.Set("platform", ldvalue.String(c.Platform))
	}
	return b.Build()
}

// W3C returns the capabilities in the form used in "capabilities.alwaysMatch".
func (c Capabilities) W3C() ldvalue.Value {
	b := ldvalue.ObjectBuild()
	b.Set("browserName", ldvalue.String(c.BrowserName))
	if c.Version.IsDefined() {
		b.Set("browserVersion", ldvalue.String(c.Version.StringValue()))
	}
	if c.Platform != "" {
		b.Set("platformName", ldvalue.String(c.Platform))
	}
	if len(c.Extra) > 0 {
		if c.VendorOptionsKey == "" {
			for _, k := range c.extraKeys() {
				b.Set(k, c.Extra[k])
			}
		} else {
			options := ldvalue.ObjectBuild()
			for _, k := range c.extraKeys() {
				options.Set(k, c.Extra[k])
			}
			b.Set(c.VendorOptionsKey, options.Build())
		}
	}
	return b.Build()
}

func (c Capabilities) extraKeys() []string {
	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c Capabilities) String() string {
	data, _ := json.Marshal(c.Legacy())
	return string(data)
}

type newSessionParams struct {
	DesiredCapabilities ldvalue.Value   `json:"desiredCapabilities"`
	Capabilities        w3cCapabilities `json:"capabilities"`
}

type w3cCapabilities struct {
	AlwaysMatch ldvalue.Value `json:"alwaysMatch"`
}

func newSessionRequest(c Capabilities) newSessionParams {
	return newSessionParams{
		DesiredCapabilities: c.Legacy(),
		Capabilities:        w3cCapabilities{AlwaysMatch: c.W3C()},
	}
}
