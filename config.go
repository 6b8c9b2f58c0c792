package thor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	yaml "gopkg.in/yaml.v2"
)

// Config carries every tunable named throughout spec.md §4, so a
// deployment can be driven entirely from a file instead of code. Loaded
// via LoadConfig from TOML, YAML or JSON, auto-detected by file
// extension — the same multi-format approach air.go's Serve() uses with
// the same library stack (mapstructure, BurntSushi/toml, yaml.v2).
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Address  string `mapstructure:"address"`
	DebugMode bool  `mapstructure:"debug_mode"`

	SecretKey       string        `mapstructure:"secret_key"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	SessionMaxAge   time.Duration `mapstructure:"session_max_age"`
	SessionCookie   string        `mapstructure:"session_cookie"`
	CSRFCookie      string        `mapstructure:"csrf_cookie"`
	CSRFExempt      []string      `mapstructure:"csrf_exempt_paths"`

	RateLimitMaxRequests int           `mapstructure:"rate_limit_max_requests"`
	RateLimitWindow      time.Duration `mapstructure:"rate_limit_window"`

	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	CORSAllowOrigins     []string `mapstructure:"cors_allow_origins"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`

	MinifierEnabled bool `mapstructure:"minifier_enabled"`

	LogFormat string `mapstructure:"log_format"`
}

// DefaultConfig returns the framework's baked-in defaults.
func DefaultConfig() *Config {
	return &Config{
		AppName:              "thor",
		Address:               "localhost:8080",
		MaxBodySize:           1048576,
		SessionMaxAge:         14 * 24 * time.Hour,
		SessionCookie:         "thor_session",
		CSRFCookie:            "thor_csrf",
		RateLimitMaxRequests:  0,
		RateLimitWindow:       time.Minute,
		RequestTimeout:        0,
		ShutdownTimeout:       30 * time.Second,
		LogFormat:             DefaultLogFormat,
	}
}

// LoadConfig reads path, auto-detecting TOML (.toml), YAML (.yml/.yaml) or
// JSON (.json) by extension, decodes it into a generic map, and then
// mapstructure-decodes that map onto a copy of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	generic := map[string]interface{}{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &generic); err != nil {
			return nil, fmt.Errorf("thor: parsing TOML config: %w", err)
		}
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("thor: parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("thor: parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("thor: unrecognized config file extension %q", filepath.Ext(path))
	}

	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, fmt.Errorf("thor: decoding config: %w", err)
	}

	return cfg, nil
}

// ConfigWatcher watches a config file and, after each write, reloads the
// whole file, keeps the result for Current and passes it to the onUpdate
// callback given to WatchConfig; it does not itself change any running
// component. This supplements spec.md, whose Python original has no
// equivalent; it is grounded on air.go's ConfigFile-driven Serve() plus
// fsnotify's presence in air's own go.mod.
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu   sync.RWMutex
	cfg  *Config
	onUpdate func(*Config)
}

// WatchConfig starts watching path for changes, reloading it as they are
// detected. onUpdate, if non-nil, is called with the newly loaded
// Config after each successful reload.
func WatchConfig(path string, onUpdate func(*Config)) (*ConfigWatcher, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	cw := &ConfigWatcher{path: path, watcher: w, cfg: cfg, onUpdate: onUpdate}
	go cw.loop()
	return cw, nil
}

func (cw *ConfigWatcher) loop() {
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(cw.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadConfig(cw.path)
			if err != nil {
				continue
			}
			cw.mu.Lock()
			cw.cfg = cfg
			cw.mu.Unlock()
			if cw.onUpdate != nil {
				cw.onUpdate(cfg)
			}
		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Current returns the most recently loaded Config.
func (cw *ConfigWatcher) Current() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.cfg
}

// Close stops watching the config file.
func (cw *ConfigWatcher) Close() error {
	return cw.watcher.Close()
}
