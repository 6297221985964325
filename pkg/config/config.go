// Package config loads the bot configuration from the environment.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/small-frappuccino/quickvids/pkg/util"
)

// Config is the process configuration. Every field maps to one environment
// variable; .env files are loaded first without overriding the environment.
type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	PublicKey   string `env:"CLIENT_PUBLIC_KEY,required,notEmpty"`
	AppID       string `env:"APPLICATION_ID,required,notEmpty"`
	Token       string `env:"DISCORD_TOKEN,required,notEmpty"`
	RedirectURL string `env:"REDIRECT_URL" envDefault:"https://quickvids.win"`

	// Empty values fall back to the per-user cache directory.
	DBPath string `env:"QUICKVIDS_DB_PATH"`
	LogDir string `env:"QUICKVIDS_LOG_DIR"`
	Debug  bool   `env:"QUICKVIDS_DEBUG"`

	// Dev only compares commands on startup and never writes them.
	Dev   bool   `env:"QUICKVIDS_DEV"`
	Theme string `env:"QUICKVIDS_THEME"`

	TikTokAPIKey          string        `env:"TIKTOK_API_KEY"`
	TikTokAPIBase         string        `env:"TIKTOK_API_BASE" envDefault:"https://api.quickvids.app"`
	TikTokCreateShortURLs bool          `env:"TIKTOK_CREATE_SHORT_URLS"`
	TikTokCacheTTL        time.Duration `env:"TIKTOK_CACHE_TTL" envDefault:"10m"`
	TikTokRatePerSecond   float64       `env:"TIKTOK_RATE_PER_SECOND" envDefault:"5"`

	APIBaseURL  string `env:"API_BASE_URL" envDefault:"https://api.quickvids.app"`
	APIToken    string `env:"QUICKVIDS_API_TOKEN"`
	WebBaseURL  string `env:"WEB_BASE_URL" envDefault:"https://quickvids.app"`
	UsageHook   string `env:"USAGE_HOOK"`
	ControlAddr string `env:"CONTROL_ADDR"`

	ResponseTimeout time.Duration `env:"INTERACTION_RESPONSE_TIMEOUT" envDefault:"2500ms"`
	// CIDRs of reverse proxies whose X-Forwarded-For header is trusted.
	TrustedProxies    []string `env:"TRUSTED_PROXIES" envSeparator:","`
	InvitePermissions int64    `env:"INVITE_PERMISSIONS" envDefault:"0"`
}

// Load reads ./.env and $HOME/.local/bin/.env (non-overriding) and parses
// the environment into a Config.
func Load() (*Config, error) {
	if _, err := util.LoadEnvFiles(".env", util.LocalBinEnvPath()); err != nil {
		return nil, err
	}
	return parse(env.Options{})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("parse config: PORT %d out of range", c.Port)
	}
	if _, err := c.Ed25519PublicKey(); err != nil {
		return err
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = util.DefaultDBPath()
	}
	if strings.TrimSpace(c.LogDir) == "" {
		c.LogDir = util.DefaultLogDir()
	}
	c.TikTokAPIBase = strings.TrimRight(c.TikTokAPIBase, "/")
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	c.WebBaseURL = strings.TrimRight(c.WebBaseURL, "/")
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 2500 * time.Millisecond
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. A bare address is treated as a
// single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// Ed25519PublicKey decodes the hex-encoded application public key.
func (c *Config) Ed25519PublicKey() (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(c.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("decode CLIENT_PUBLIC_KEY: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("decode CLIENT_PUBLIC_KEY: want %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// Addr is the listen address for the interactions server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// InviteURL builds the OAuth2 install link for the application.
func (c *Config) InviteURL() string {
	return fmt.Sprintf("https://discord.com/oauth2/authorize?client_id=%s&permissions=%d&scope=bot%%20applications.commands", c.AppID, c.InvitePermissions)
}
