package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Limits    LimitsConfig    `yaml:"limits"`
	Provider  ProviderConfig  `yaml:"provider"`
	Payout    PayoutConfig    `yaml:"payout"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type ServerConfig struct {
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

type ProxyConfig struct {
	Global string `yaml:"global"`
}

type LimitsConfig struct {
	GlobalQPS       float64 `yaml:"globalQPS"`
	GlobalBurst     int     `yaml:"globalBurst"`
	PerAccountQPS   float64 `yaml:"perAccountQPS"`
	PerAccountBurst int     `yaml:"perAccountBurst"`
	// MaxInFlight caps how many accounts one aggregation fans out to at the same time.
	MaxInFlight int `yaml:"maxInFlight"`
}

type ProviderConfig struct {
	UserBaseURL  string           `yaml:"userBaseURL"`
	APIBaseURL   string           `yaml:"apiBaseURL"`
	TimeoutMs    int              `yaml:"timeoutMs"`
	Retry        ProviderRetryCfg `yaml:"retry"`
	UserAgent    string           `yaml:"userAgent"`
	Origin       string           `yaml:"origin"`
	Referer      string           `yaml:"referer"`
	ClientID     string           `yaml:"clientId"`
	ClientSecret string           `yaml:"clientSecret"`
	// CaptchaAction is the action the captcha token is scoped to; it names the sign-in endpoint.
	CaptchaAction string `yaml:"captchaAction"`
	// CommissionMode selects which series of the mode-keyed daily response is consumed.
	CommissionMode string `yaml:"commissionMode"`
}

type ProviderRetryCfg struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

type PayoutConfig struct {
	Threshold         string `yaml:"threshold"`
	SettlementLagDays int    `yaml:"settlementLagDays"`
	WindowDays        int    `yaml:"windowDays"`
}

type AggregateConfig struct {
	CacheTTLMs int `yaml:"cacheTtlMs"`
}

type NotifyConfig struct {
	EmailSummarySeconds int `yaml:"emailSummarySeconds"`
}

const (
	defaultUserBaseURL = "https://user.mypikpak.com"
	defaultAPIBaseURL  = "https://api-drive.mypikpak.com"
)

func (c ProviderConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c ProviderRetryCfg) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c ProviderRetryCfg) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 1200 * time.Millisecond
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

func (c PayoutConfig) ThresholdValue() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Threshold))
	if err != nil || !d.IsPositive() {
		return decimal.NewFromInt(100)
	}
	return d
}

func (c AggregateConfig) CacheTTL() time.Duration {
	if c.CacheTTLMs < 0 {
		return 0
	}
	if c.CacheTTLMs == 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CacheTTLMs) * time.Millisecond
}

func (c NotifyConfig) EmailSummaryWindow() time.Duration {
	n := c.EmailSummarySeconds
	if n < 0 {
		return 0
	}
	if n == 0 {
		return 20 * time.Second
	}
	if n > 600 {
		n = 600
	}
	return time.Duration(n) * time.Second
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/referral_dashboard.db"
	}
	if c.Limits.GlobalQPS <= 0 {
		c.Limits.GlobalQPS = 10
	}
	if c.Limits.GlobalBurst <= 0 {
		c.Limits.GlobalBurst = 10
	}
	if c.Limits.PerAccountQPS <= 0 {
		c.Limits.PerAccountQPS = 5
	}
	if c.Limits.PerAccountBurst <= 0 {
		c.Limits.PerAccountBurst = 5
	}
	if c.Limits.MaxInFlight <= 0 {
		c.Limits.MaxInFlight = 8
	}
	if c.Provider.UserBaseURL == "" {
		c.Provider.UserBaseURL = defaultUserBaseURL
	}
	if c.Provider.APIBaseURL == "" {
		c.Provider.APIBaseURL = defaultAPIBaseURL
	}
	if c.Provider.Origin == "" {
		c.Provider.Origin = "https://mypikpak.com"
	}
	if c.Provider.Referer == "" {
		c.Provider.Referer = "https://mypikpak.com/"
	}
	if c.Provider.ClientID == "" {
		c.Provider.ClientID = "YNxT9w7GMdWvEOKa"
	}
	if c.Provider.ClientSecret == "" {
		c.Provider.ClientSecret = "dbw2OtmVEeuUvIptb1Coyg"
	}
	if c.Provider.CaptchaAction == "" {
		// the action names the real sign-in endpoint even when userBaseURL points at a mock
		c.Provider.CaptchaAction = "POST:" + defaultUserBaseURL + "/v1/auth/signin"
	}
	if c.Provider.CommissionMode == "" {
		c.Provider.CommissionMode = "CPS"
	}
	if c.Provider.Retry.Count < 0 {
		c.Provider.Retry.Count = 0
	}
	if c.Payout.Threshold == "" {
		c.Payout.Threshold = "100"
	}
	if c.Payout.SettlementLagDays <= 0 {
		c.Payout.SettlementLagDays = 31
	}
	if c.Payout.WindowDays <= 0 {
		c.Payout.WindowDays = 30
	}
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Provider.UserBaseURL == "" || c.Provider.APIBaseURL == "" {
		return errors.New("provider.userBaseURL and provider.apiBaseURL are required")
	}
	if _, err := decimal.NewFromString(strings.TrimSpace(c.Payout.Threshold)); err != nil {
		return errors.New("payout.threshold must be a number")
	}
	return nil
}
