package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the bridge service
type Config struct {
	// Server configuration
	Port     int    `envconfig:"PORT" default:"10010"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DevTools endpoint of the browser hosting the page. Either the HTTP
	// endpoint (http://host:9222) or a browser websocket URL.
	CDPURL             string `envconfig:"CDP_URL" default:"http://127.0.0.1:9222"`
	CDPConnectAttempts uint   `envconfig:"CDP_CONNECT_ATTEMPTS" default:"10"`

	// Quiet period before a burst of scroll events produces a metric.
	ScrollDebounce time.Duration `envconfig:"SCROLL_DEBOUNCE" default:"350ms"`

	// Static configuration for the application core, YAML or JSON.
	AppFlags     string `envconfig:"APP_FLAGS"`
	AppFlagsFile string `envconfig:"APP_FLAGS_FILE"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(config *Config) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if config.CDPURL == "" {
		return fmt.Errorf("CDP_URL is required")
	}
	u, err := url.Parse(config.CDPURL)
	if err != nil {
		return fmt.Errorf("CDP_URL is invalid: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("CDP_URL must use http, https, ws or wss")
	}
	if config.CDPConnectAttempts == 0 {
		return fmt.Errorf("CDP_CONNECT_ATTEMPTS must be greater than 0")
	}
	if config.ScrollDebounce <= 0 {
		return fmt.Errorf("SCROLL_DEBOUNCE must be greater than 0")
	}

	return nil
}
