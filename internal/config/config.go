// Package config loads the JSON configuration file, environment overrides
// and defaults, and writes the file in setup mode.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/KaramelBytes/gitlab-search/internal/utils"
)

const (
	// FileName is the configuration file looked up in the working
	// directory, the home directory and /etc.
	FileName = ".gitlab-search-config.json"
	// EnvPrefix prefixes environment overrides, e.g. GITLAB_SEARCH_API_URL.
	EnvPrefix = "GITLAB_SEARCH"
	// TokenEnv holds the access token when neither --token nor --token-file
	// is given.
	TokenEnv = "GITLAB_SEARCH_TOKEN"

	DefaultAPIURL      = "https://gitlab.com/api/v4"
	DefaultMaxRequests = 15
)

// Config is the effective configuration. The access token is deliberately
// not part of it.
type Config struct {
	APIURL      string `mapstructure:"api-url" json:"api-url" yaml:"api-url"`
	IgnoreCert  bool   `mapstructure:"ignore-cert" json:"ignore-cert" yaml:"ignore-cert"`
	MaxRequests int    `mapstructure:"max-requests" json:"max-requests" yaml:"max-requests"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http-timeout-sec" json:"http-timeout-sec" yaml:"http-timeout-sec"`
	RetryMaxAttempts int `mapstructure:"retry-max-attempts" json:"retry-max-attempts" yaml:"retry-max-attempts"`
	RetryBaseDelayMs int `mapstructure:"retry-base-delay-ms" json:"retry-base-delay-ms" yaml:"retry-base-delay-ms"`
	RetryMaxDelayMs  int `mapstructure:"retry-max-delay-ms" json:"retry-max-delay-ms" yaml:"retry-max-delay-ms"`

	// Response cache
	Cache         string `mapstructure:"cache" json:"cache" yaml:"cache"`
	CacheTTLSec   int    `mapstructure:"cache-ttl-sec" json:"cache-ttl-sec" yaml:"cache-ttl-sec"`
	CachePath     string `mapstructure:"cache-path" json:"cache-path" yaml:"cache-path"`
	RedisAddr     string `mapstructure:"redis-addr" json:"redis-addr" yaml:"redis-addr"`
	RedisPassword string `mapstructure:"redis-password" json:"redis-password" yaml:"redis-password"`
	RedisDB       int    `mapstructure:"redis-db" json:"redis-db" yaml:"redis-db"`

	// Path is the file the configuration was read from, empty when none.
	Path string `mapstructure:"-" json:"-" yaml:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api-url", DefaultAPIURL)
	v.SetDefault("ignore-cert", false)
	v.SetDefault("max-requests", DefaultMaxRequests)
	// HTTP/retry defaults
	v.SetDefault("http-timeout-sec", 60)
	v.SetDefault("retry-max-attempts", 3)
	v.SetDefault("retry-base-delay-ms", 500)
	v.SetDefault("retry-max-delay-ms", 4000)
	v.SetDefault("cache", "none")
	v.SetDefault("cache-ttl-sec", 600)
	v.SetDefault("cache-path", "")
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-password", "")
	v.SetDefault("redis-db", 0)
}

// SearchPaths returns the locations probed for FileName, in order.
func SearchPaths() []string {
	paths := []string{}
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(wd, FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, FileName))
	}
	return append(paths, filepath.Join("/etc", FileName))
}

// FindFile returns the first existing configuration file, or "".
func FindFile() string {
	for _, p := range SearchPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load reads configuration from cfgFile (or the first file found by FindFile),
// environment and defaults.
// Precedence: env > config file > defaults. Command line flags are applied
// by the caller, which validates the merged result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	path := cfgFile
	if path == "" {
		path = FindFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Path = path
	return &c, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.MaxRequests < 1 {
		return fmt.Errorf("max-requests must be at least 1, got %d", c.MaxRequests)
	}
	switch c.Cache {
	case "none", "sqlite", "redis":
	default:
		return fmt.Errorf("cache must be one of: none, sqlite, redis, got %q", c.Cache)
	}
	return nil
}

// Setup holds the values stored by setup mode.
type Setup struct {
	APIURL      string
	IgnoreCert  bool
	MaxRequests int
}

// SetupPath returns where setup mode writes: file when given, otherwise
// FileName inside dir.
func SetupPath(dir, file string) string {
	if file != "" {
		return file
	}
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// Save writes the non-default values of s to path as 4-space indented JSON
// and returns the path written.
func Save(s Setup, path string) (string, error) {
	data := map[string]any{}
	if s.APIURL != "" && s.APIURL != DefaultAPIURL {
		data["api-url"] = s.APIURL
	}
	if s.IgnoreCert {
		data["ignore-cert"] = true
	}
	if s.MaxRequests != 0 && s.MaxRequests != DefaultMaxRequests {
		data["max-requests"] = s.MaxRequests
	}
	b, err := utils.PrettyJSON(data, "    ")
	if err != nil {
		return "", err
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return "", fmt.Errorf("mkdir config dir: %w", err)
	}
	if err := utils.WriteFileAtomic(path, append(b, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

// ErrNoToken is returned by ResolveToken when no source provides a token.
var ErrNoToken = errors.New("no GitLab token: use --token, --token-file or " + TokenEnv)

// ResolveToken picks the access token: token, then the trimmed contents of
// tokenFile, then the TokenEnv environment variable.
func ResolveToken(token, tokenFile string) (string, error) {
	if token != "" {
		return token, nil
	}
	if tokenFile != "" {
		b, err := os.ReadFile(tokenFile)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		if t := strings.TrimSpace(string(b)); t != "" {
			return t, nil
		}
		return "", fmt.Errorf("token file %s is empty", tokenFile)
	}
	if t := strings.TrimSpace(os.Getenv(TokenEnv)); t != "" {
		return t, nil
	}
	return "", ErrNoToken
}
