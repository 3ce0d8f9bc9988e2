package sauce

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/mstoykov/envconfig"
)

// CredentialsFileName is the file in the user's home directory that may contain credentials,
// in Java properties format, if they are not in the environment.
const CredentialsFileName = ".sauce-ondemand"

// ErrNoCredentials means credentials were found neither in the environment nor in the file.
var ErrNoCredentials = errors.New("no Sauce Labs credentials: set SAUCE_USERNAME and SAUCE_ACCESS_KEY")

// Credentials identify the account that remote sessions and job updates belong to.
type Credentials struct {
	Username  string
	AccessKey string
}

type envCredentials struct {
	Username       string `envconfig:"SAUCE_USERNAME"`
	AccessKey      string `envconfig:"SAUCE_ACCESS_KEY"`
	LegacyUsername string `envconfig:"SAUCE_USER_NAME"`
	LegacyAPIKey   string `envconfig:"SAUCE_API_KEY"`
}

// LoadCredentials reads credentials from environment variables, using lookup to find them.
// If either value is missing from the environment, the credentials file in homeDir is used
// instead. An empty homeDir skips the file.
func LoadCredentials(lookup func(string) (string, bool), homeDir string) (Credentials, error) {
	var env envCredentials
	if err := envconfig.Process("", &env, lookup); err != nil {
		return Credentials{}, err
	}
	c := Credentials{
		Username:  firstNonEmpty(env.Username, env.LegacyUsername),
		AccessKey: firstNonEmpty(env.AccessKey, env.LegacyAPIKey),
	}
	if c.Username != "" && c.AccessKey != "" {
		return c, nil
	}
	if homeDir == "" {
		return Credentials{}, ErrNoCredentials
	}

	fromFile, err := readCredentialsFile(filepath.Join(homeDir, CredentialsFileName))
	if errors.Is(err, os.ErrNotExist) {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, err
	}
	if fromFile.Username == "" || fromFile.AccessKey == "" {
		return Credentials{}, fmt.Errorf("%w (%s is incomplete)", ErrNoCredentials, CredentialsFileName)
	}
	return fromFile, nil
}

func readCredentialsFile(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, err
	}
	defer func() { _ = f.Close() }()

	var c Credentials
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		sep := strings.IndexAny(line, "=:")
		if sep < 0 {
			continue
		}
		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		switch key {
		case "username":
			c.Username = value
		case "key", "accessKey":
			c.AccessKey = value
		}
	}
	return c, scanner.Err()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// HubURL returns the URL of the WebDriver endpoint with the credentials embedded in it.
func HubURL(c Credentials, host string, port int) string {
	u := url.URL{
		Scheme: "http",
		User:   url.UserPassword(c.Username, c.AccessKey),
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/wd/hub",
	}
	if port == 443 {
		u.Scheme = "https"
	}
	return u.String()
}
