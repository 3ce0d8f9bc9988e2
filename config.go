package main

import (
	"github.com/mstoykov/envconfig"
)

const (
	defaultSeleniumHost = "ondemand.saucelabs.com"
	defaultSeleniumPort = 80
)

// environmentConfig holds the settings that CI plugins pass in the environment. They become
// the defaults of the corresponding command-line flags.
type environmentConfig struct {
	SeleniumHost     string `envconfig:"SELENIUM_HOST"`
	SeleniumPort     int    `envconfig:"SELENIUM_PORT"`
	TunnelIdentifier string `envconfig:"TUNNEL_IDENTIFIER"`
	BuildTag         string `envconfig:"BUILD_TAG"`
	RESTEndpoint     string `envconfig:"SAUCE_REST_ENDPOINT"`
}

func loadEnvironmentConfig(lookup func(string) (string, bool)) (environmentConfig, error) {
	var c environmentConfig
	if err := envconfig.Process("", &c, lookup); err != nil {
		return c, err
	}
	if c.SeleniumHost == "" {
		c.SeleniumHost = defaultSeleniumHost
	}
	if c.SeleniumPort == 0 {
		c.SeleniumPort = defaultSeleniumPort
	}
	return c, nil
}
