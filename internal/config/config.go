package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/gommon/log"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/lachlan2k/gatekeep/internal/backend"
	"github.com/lachlan2k/gatekeep/internal/identity"
)

// BackendURLEnv overrides backend.base_url, so one config can be pointed at staging or production.
const BackendURLEnv = "GATEKEEP_BACKEND_URL"

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

type Config struct {
	ListenPort int `toml:"port"`

	Backend struct {
		BaseURL     string `toml:"base_url"`
		LoginPath   string `toml:"login_path"`
		LogoutPath  string `toml:"logout_path"`
		SetupTwoFA  string `toml:"setup_2fa_path"`
		VerifyTwoFA string `toml:"verify_2fa_path"`
	} `toml:"backend"`

	Store struct {
		// "file" or "sqlite"
		Type string `toml:"type"`
		Path string `toml:"path"`
	} `toml:"store"`

	// feature key => backend endpoint listing that feature's data
	Features map[string]string `toml:"features"`

	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// TOML unmarshalling leaves fields missing from the file alone, so defaults go in first
func (c *Config) setDefaults() {
	c.ListenPort = 8080

	paths := backend.DefaultPaths()
	c.Backend.LoginPath = paths.Login
	c.Backend.LogoutPath = paths.Logout
	c.Backend.SetupTwoFA = paths.SetupTwoFA
	c.Backend.VerifyTwoFA = paths.VerifyTwoFA

	c.Store.Type = StoreFile
	c.Store.Path = defaultStorePath(StoreFile)

	c.Features = make(map[string]string)
	for _, f := range identity.AllFeatures() {
		c.Features[string(f)] = "/admin/" + string(f)
	}

	c.Log.Level = "info"
}

func defaultStorePath(storeType string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}

	name := "credentials.json"
	if storeType == StoreSQLite {
		name = "credentials.db"
	}

	return filepath.Join(dir, "gatekeep", name)
}

// Default is the configuration used when no file exists.
func Default() (*Config, error) {
	conf := new(Config)
	conf.setDefaults()

	if err := conf.finalise(false); err != nil {
		return nil, err
	}

	return conf, nil
}

func LoadFromTomlFileAndValidate(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(file)
}

func Parse(data []byte) (*Config, error) {
	conf := new(Config)
	conf.setDefaults()
	defaultPath := conf.Store.Path

	// Features in the file replace the defaults wholesale
	conf.Features = nil

	err := toml.Unmarshal(data, conf)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse config: %w", err)
	}

	if conf.Features == nil {
		fresh := new(Config)
		fresh.setDefaults()
		conf.Features = fresh.Features
	}

	if err := conf.finalise(conf.Store.Path == defaultPath); err != nil {
		return nil, err
	}

	return conf, nil
}

// finalise applies environment overrides and validates. pathDefaulted means the store path wasn't
// set explicitly and should follow the store type.
func (c *Config) finalise(pathDefaulted bool) error {
	if env := os.Getenv(BackendURLEnv); env != "" {
		c.Backend.BaseURL = env
	}

	c.Store.Type = strings.ToLower(c.Store.Type)
	if pathDefaulted {
		c.Store.Path = defaultStorePath(c.Store.Type)
	}

	return c.Validate()
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("please supply backend.base_url or set %s", BackendURLEnv)
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url (%s) must be an absolute http(s) URL", c.Backend.BaseURL)
	}

	if c.Backend.LoginPath == "" || c.Backend.SetupTwoFA == "" || c.Backend.VerifyTwoFA == "" {
		return errors.New("backend login_path, setup_2fa_path and verify_2fa_path can't be empty")
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid port %d", c.ListenPort)
	}

	switch c.Store.Type {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("invalid store type supplied (%s), valid types are %q and %q", c.Store.Type, StoreFile, StoreSQLite)
	}

	if c.Store.Path == "" {
		return errors.New("please supply store.path")
	}

	for key, endpoint := range c.Features {
		if _, err := identity.ParseFeature(key); err != nil {
			return fmt.Errorf("features: %w", err)
		}
		if !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("features.%s endpoint (%s) must be a path starting with /", key, endpoint)
		}
	}

	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

func (c *Config) BackendPaths() backend.Paths {
	return backend.Paths{
		Login:       c.Backend.LoginPath,
		Logout:      c.Backend.LogoutPath,
		SetupTwoFA:  c.Backend.SetupTwoFA,
		VerifyTwoFA: c.Backend.VerifyTwoFA,
	}
}

// FeatureEndpoint is the backend path for a feature screen, and false when none is configured.
func (c *Config) FeatureEndpoint(f identity.Feature) (string, bool) {
	endpoint, ok := c.Features[string(f)]
	return endpoint, ok
}

func (c *Config) LogLevel() log.Lvl {
	lvl, _ := ParseLogLevel(c.Log.Level)
	return lvl
}

func ParseLogLevel(level string) (log.Lvl, error) {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	}
	return log.INFO, fmt.Errorf("invalid log level %q", level)
}
