package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config keys as they appear in the config file and the environment.
const (
	KeyCachePath              = "CACHE_PATH"
	KeyCacheLength            = "CACHE_LENGTH"
	KeyRequestTimeout         = "REQUEST_TIMEOUT"
	KeyAPIHost                = "API_HOST"
	KeyDefaultColor           = "DEFAULT_COLOR"
	KeyDefaultExecuteShellCmd = "DEFAULT_EXECUTE_SHELL_CMD"
	KeyUploadSessions         = "UPLOAD_SESSIONS"
	KeyLogLevel               = "LOG_LEVEL"
	KeyLogFormat              = "LOG_FORMAT"
)

// Config represents the sgptr configuration.
type Config struct {
	CachePath              string `mapstructure:"cache_path" json:"CACHE_PATH"`
	CacheLength            int    `mapstructure:"cache_length" json:"CACHE_LENGTH"`
	RequestTimeout         int    `mapstructure:"request_timeout" json:"REQUEST_TIMEOUT"`
	APIHost                string `mapstructure:"api_host" json:"API_HOST"`
	DefaultColor           string `mapstructure:"default_color" json:"DEFAULT_COLOR"`
	DefaultExecuteShellCmd bool   `mapstructure:"default_execute_shell_cmd" json:"DEFAULT_EXECUTE_SHELL_CMD"`
	UploadSessions         bool   `mapstructure:"upload_sessions" json:"UPLOAD_SESSIONS"`
	LogLevel               string `mapstructure:"log_level" json:"LOG_LEVEL"`
	LogFormat              string `mapstructure:"log_format" json:"LOG_FORMAT"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		CachePath:              filepath.Join(os.TempDir(), "sgptr_cache"),
		CacheLength:            100,
		RequestTimeout:         60,
		APIHost:                "http://localhost:7070",
		DefaultColor:           "magenta",
		DefaultExecuteShellCmd: false,
		UploadSessions:         false,
		LogLevel:               "warn",
		LogFormat:              "console",
	}
}

// Keys returns every config key in file order.
func Keys() []string {
	return []string{
		KeyCachePath,
		KeyCacheLength,
		KeyRequestTimeout,
		KeyAPIHost,
		KeyDefaultColor,
		KeyDefaultExecuteShellCmd,
		KeyUploadSessions,
		KeyLogLevel,
		KeyLogFormat,
	}
}

// Values returns the config as KEY -> string value.
func (c Config) Values() map[string]string {
	return map[string]string{
		KeyCachePath:              c.CachePath,
		KeyCacheLength:            strconv.Itoa(c.CacheLength),
		KeyRequestTimeout:         strconv.Itoa(c.RequestTimeout),
		KeyAPIHost:                c.APIHost,
		KeyDefaultColor:           c.DefaultColor,
		KeyDefaultExecuteShellCmd: strconv.FormatBool(c.DefaultExecuteShellCmd),
		KeyUploadSessions:         strconv.FormatBool(c.UploadSessions),
		KeyLogLevel:               c.LogLevel,
		KeyLogFormat:              c.LogFormat,
	}
}

// Validate checks values that would otherwise fail far from their source.
func (c Config) Validate() error {
	var errs []error
	if c.CachePath == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyCachePath))
	}
	if c.CacheLength < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", KeyCacheLength, c.CacheLength))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0, got %d", KeyRequestTimeout, c.RequestTimeout))
	}
	if u, err := url.Parse(c.APIHost); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("%s must be an http(s) URL, got %q", KeyAPIHost, c.APIHost))
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		errs = append(errs, fmt.Errorf("%s must be one of trace, debug, info, warn, error, disabled; got %q", KeyLogLevel, c.LogLevel))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("%s must be console or json, got %q", KeyLogFormat, c.LogFormat))
	}
	return errors.Join(errs...)
}

// ConfigDir returns the platform-appropriate config directory for sgptr.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sgptr"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "sgptr"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "sgptr"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "sgptr"), nil
	default:
		return filepath.Join(home, ".config", "sgptr"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".sgptrc"), nil
}

// newViper returns a viper instance reading the flat KEY=VALUE file at path
// with every key defaulted.
func newViper(path string, withEnv bool) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	for key, value := range Default().Values() {
		v.SetDefault(strings.ToLower(key), value)
	}
	if withEnv {
		// Keys are looked up in the environment under their upper-case names,
		// which are the same names used in the file.
		v.AutomaticEnv()
	}
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults merged with the config file, ignoring the
// environment. A missing file yields the defaults.
func LoadFile() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	v := newViper(path, false)
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return decode(v)
}

// Save writes the config file atomically.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	values := cfg.Values()
	var b strings.Builder
	for _, key := range Keys() {
		fmt.Fprintf(&b, "%s=%s\n", key, values[key])
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The config file is created with defaults when missing, and default values
// for keys the file lacks are appended to it. Overrides are keyed by config
// key; empty values are ignored.
func Load(overrides map[string]string) (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	if err := ensureFile(path); err != nil {
		return Config{}, err
	}

	v := newViper(path, true)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	for key, value := range overrides {
		if value != "" {
			v.Set(strings.ToLower(key), value)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ensureFile creates the config file with defaults, or appends defaults for
// keys an existing file does not define.
func ensureFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking config file: %w", err)
		}
		return Save(Default())
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	defaults := Default().Values()
	var missing []string
	for _, key := range Keys() {
		if !v.InConfig(strings.ToLower(key)) {
			missing = append(missing, fmt.Sprintf("%s=%s\n", key, defaults[key]))
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("updating config file: %w", err)
	}
	defer f.Close()
	if info, err := f.Stat(); err == nil && info.Size() > 0 {
		data, err := os.ReadFile(path)
		if err == nil && !strings.HasSuffix(string(data), "\n") {
			missing = append([]string{"\n"}, missing...)
		}
	}
	if _, err := f.WriteString(strings.Join(missing, "")); err != nil {
		return fmt.Errorf("updating config file: %w", err)
	}
	return nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch strings.ToUpper(key) {
	case KeyCachePath:
		cfg.CachePath = value
	case KeyCacheLength:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", KeyCacheLength, err)
		}
		cfg.CacheLength = n
	case KeyRequestTimeout:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", KeyRequestTimeout, err)
		}
		cfg.RequestTimeout = n
	case KeyAPIHost:
		cfg.APIHost = value
	case KeyDefaultColor:
		cfg.DefaultColor = value
	case KeyDefaultExecuteShellCmd:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false: %w", KeyDefaultExecuteShellCmd, err)
		}
		cfg.DefaultExecuteShellCmd = b
	case KeyUploadSessions:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false: %w", KeyUploadSessions, err)
		}
		cfg.UploadSessions = b
	case KeyLogLevel:
		cfg.LogLevel = value
	case KeyLogFormat:
		cfg.LogFormat = value
	default:
		return fmt.Errorf("unknown config key: %s (known: %s)", key, strings.Join(sortedKeys(), ", "))
	}
	return nil
}

func sortedKeys() []string {
	keys := Keys()
	sort.Strings(keys)
	return keys
}
