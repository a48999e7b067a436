// Package config loads the bot configuration from a JSON (comments allowed) or YAML file
// and overlays environment variables, optionally read from a .env file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

type OpenWrt struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	User       string `json:"user" yaml:"user"`
	Password   string `json:"password" yaml:"password"`
	KeyFile    string `json:"key_file" yaml:"key_file"`
	KnownHosts string `json:"known_hosts" yaml:"known_hosts"`
	ScriptsDir string `json:"scripts_dir" yaml:"scripts_dir"`
}

type OpenClash struct {
	APIURL string `json:"api_url" yaml:"api_url"`
	Secret string `json:"secret" yaml:"secret"`
}

type AdGuard struct {
	URL        string `json:"url" yaml:"url"`
	User       string `json:"user" yaml:"user"`
	Password   string `json:"password" yaml:"password"`
	Token      string `json:"token" yaml:"token"`
	LeasesMode string `json:"leases_mode" yaml:"leases_mode"` // auto | api | ssh
}

type Permissions struct {
	Backend  string `json:"backend" yaml:"backend"` // file | redis
	Path     string `json:"path" yaml:"path"`
	RedisURL string `json:"redis_url" yaml:"redis_url"`
	RedisKey string `json:"redis_key" yaml:"redis_key"`
}

type IPMonitor struct {
	Schedule   string   `json:"schedule" yaml:"schedule"`
	Interfaces []string `json:"interfaces" yaml:"interfaces"`
}

type Config struct {
	BotToken           string      `json:"bot_token" yaml:"bot_token"`
	AdminID            int64       `json:"admin_id" yaml:"admin_id"`
	TGBaseURL          string      `json:"tg_base_url" yaml:"tg_base_url"`
	TGProxy            string      `json:"tg_proxy" yaml:"tg_proxy"`
	LogLevel           string      `json:"log_level" yaml:"log_level"`
	LogFormat          string      `json:"log_format" yaml:"log_format"`
	Timezone           string      `json:"timezone" yaml:"timezone"`
	HTTPTimeoutSeconds int         `json:"http_timeout_seconds" yaml:"http_timeout_seconds"`
	GeminiAPIKeys      []string    `json:"gemini_api_keys" yaml:"gemini_api_keys"`
	GeminiModels       []string    `json:"gemini_models" yaml:"gemini_models"`
	OpenWrt            OpenWrt     `json:"openwrt" yaml:"openwrt"`
	OpenClash          OpenClash   `json:"openclash" yaml:"openclash"`
	AdGuard            AdGuard     `json:"adguard" yaml:"adguard"`
	Permissions        Permissions `json:"permissions" yaml:"permissions"`
	IPMonitor          IPMonitor   `json:"ip_monitor" yaml:"ip_monitor"`
}

// Default returns a config with every optional field at its default.
func Default() *Config {
	return &Config{
		LogFormat:          "text",
		HTTPTimeoutSeconds: 5,
		OpenWrt:            OpenWrt{Port: 22, User: "root", ScriptsDir: "/root/smart"},
		OpenClash:          OpenClash{APIURL: "http://127.0.0.1:9090"},
		AdGuard:            AdGuard{LeasesMode: "auto"},
		Permissions:        Permissions{Backend: "file", RedisKey: "homeops:permissions"},
		IPMonitor: IPMonitor{
			Schedule:   "@every 10m",
			Interfaces: []string{"wan", "wan_6", "wan6"},
		},
	}
}

// Load reads the config file at path on top of Default().
// A missing file is reported with an error satisfying os.IsNotExist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process environment.
// Variables already set in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays environment variables on cfg.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	num := func(dst *int, key string) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	str(&c.BotToken, "TG_BOT_TOKEN", "BOT_TOKEN")
	if v, ok := lookup("ADMIN_ID"); ok {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			c.AdminID = id
		}
	}
	str(&c.TGBaseURL, "TG_BASE_URL")
	str(&c.TGProxy, "TG_PROXY")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.Timezone, "TZ")
	if v, ok := lookup("GEMINI_API_KEY"); ok {
		if keys := SplitList(v); len(keys) > 0 {
			c.GeminiAPIKeys = keys
		}
	}

	str(&c.OpenWrt.Host, "OPENWRT_HOST")
	num(&c.OpenWrt.Port, "OPENWRT_PORT")
	str(&c.OpenWrt.User, "OPENWRT_USER")
	str(&c.OpenWrt.Password, "OPENWRT_PASS")
	str(&c.OpenWrt.KeyFile, "OPENWRT_KEY_FILE")
	str(&c.OpenWrt.ScriptsDir, "OPENWRT_SCRIPTS_DIR")

	str(&c.OpenClash.APIURL, "OPENCLASH_API_URL")
	str(&c.OpenClash.Secret, "OPENCLASH_API_SECRET")

	str(&c.AdGuard.URL, "ADG_URL")
	str(&c.AdGuard.User, "ADG_USER")
	str(&c.AdGuard.Password, "ADG_PASS")
	str(&c.AdGuard.Token, "ADG_TOKEN")
	str(&c.AdGuard.LeasesMode, "ADG_LEASES_MODE")

	str(&c.Permissions.RedisURL, "REDIS_URL")
}

// Validate reports settings the bot cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BotToken) == "" {
		errs = append(errs, errors.New("bot_token is not set"))
	}
	if c.AdminID == 0 {
		errs = append(errs, errors.New("admin_id is not set"))
	}
	switch c.Permissions.Backend {
	case "", "file":
	case "redis":
		if c.Permissions.RedisURL == "" {
			errs = append(errs, errors.New("permissions.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown permissions.backend %q", c.Permissions.Backend))
	}
	return errors.Join(errs...)
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
