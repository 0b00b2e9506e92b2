package httppost

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/pkg/tlsutil"
)

// MaxTimeout bounds the per-request deadline.
const MaxTimeout = 5 * time.Minute

// Config holds configuration for the collector sender
type Config struct {
	URL       string            `json:"url"        yaml:"url"`
	APIToken  string            `json:"api_token"  yaml:"api_token"`
	Username  string            `json:"username"   yaml:"username"`
	Password  string            `json:"password"   yaml:"password"`
	Timeout   time.Duration     `json:"timeout"    yaml:"timeout"`
	Gzip      bool              `json:"gzip"       yaml:"gzip"`
	UserAgent string            `json:"user_agent" yaml:"user_agent"`
	Headers   map[string]string `json:"headers"    yaml:"headers"`

	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`
}

// DefaultConfig returns a config with a ten second request deadline.
func DefaultConfig() Config {
	return Config{
		Timeout:   10 * time.Second,
		UserAgent: "currentlogger",
	}
}

// Validate checks the configuration for errors. An empty URL is allowed; Send then fails
// to open and the agent keeps buffering.
func (c *Config) Validate() error {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "invalid URL format")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: scheme %q", errors.ErrInvalidConfig, u.Scheme),
				"Config", "Validate", "url scheme must be http or https")
		}
		if u.Host == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "url host is required")
		}
	}

	if c.Timeout <= 0 || c.Timeout > MaxTimeout {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 0 and 5m")
	}
	return nil
}

// basicAuth reports whether both halves of the credentials are set.
func (c *Config) basicAuth() bool {
	return c.Username != "" && c.Password != ""
}

func (c *Config) transport() (http.RoundTripper, error) {
	if !c.TLS.Custom() {
		return http.DefaultTransport, nil
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(c.TLS)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "transport", "build TLS config")
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsConfig
	return base, nil
}
