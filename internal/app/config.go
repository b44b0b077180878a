package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/techshop/internal/backend"
)

// Config holds the complete client configuration, loadable from environment
// variables (TECHSHOP_ prefix), flags, or YAML config files.
type Config struct {
	APIURL         string         `env:"API_URL" yaml:"api_url" default:"http://localhost:8000" usage:"Storefront backend base URL (TECHSHOP_API_URL, API_URL or VITE_API_URL)" flag:"api-url"`
	TokenFile      string         `default:"" usage:"Session token file (default: user config dir)" flag:"token-file"`
	Ephemeral      bool           `default:"false" usage:"Keep the session in memory only"`
	RequestTimeout time.Duration  `default:"0s" usage:"Per-request backend timeout, 0 disables" flag:"request-timeout"`
	Checkout       CheckoutConfig `yaml:"checkout"`
	Session        SessionConfig  `yaml:"session"`
	Health         HealthConfig   `yaml:"health"`
}

// CheckoutConfig controls the simulated checkout.
type CheckoutConfig struct {
	Delay        time.Duration `yaml:"delay" default:"2.5s" usage:"Simulated payment processing time"`
	SubmitOrders bool          `default:"false" usage:"Send the order to the backend when signed in" flag:"submit-orders"`
}

// SessionConfig controls how sessions are established.
type SessionConfig struct {
	ResolveProfileOnLogin bool `default:"false" usage:"Use the account name instead of the email local part after login" flag:"resolve-profile"`
}

// HealthConfig controls backend reachability tracking.
type HealthConfig struct {
	Interval time.Duration `default:"30s" usage:"Backend ping interval, 0 disables background checks" flag:"health-interval"`
	Timeout  time.Duration `default:"5s" usage:"Backend ping timeout" flag:"health-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "TECHSHOP",
		Files:     []string{"techshop.yaml", "/etc/techshop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, ac)
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.RequestTimeout < 0 {
		return nil, errors.New("request timeout must not be negative")
	}
	if cfg.Health.Timeout <= 0 {
		return nil, errors.New("health timeout must be positive")
	}
	if cfg.Checkout.Delay < 0 {
		return nil, errors.New("checkout delay must not be negative")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps the unprefixed API_URL and VITE_API_URL variables
// used by the web storefront's deployments to the TECHSHOP_-prefixed setting.
func (c *Config) applyPlatformDefaults() {
	if c.APIURL != backend.DefaultBaseURL || os.Getenv("TECHSHOP_API_URL") != "" {
		return
	}
	for _, name := range []string{"API_URL", "VITE_API_URL"} {
		if v := os.Getenv(name); v != "" {
			c.APIURL = v
			return
		}
	}
}
