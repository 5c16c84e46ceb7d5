// Package config layers defaults, the YAML config file, FAREWATCH_*
// environment variables and command-line flags into one typed Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	AppName   = "farewatch"
	EnvPrefix = "FAREWATCH"
)

type SerpAPIConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type AmadeusConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BaseURL      string `mapstructure:"base_url"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Sender   string `mapstructure:"sender"`
}

type NotifyConfig struct {
	Email      string `mapstructure:"email"`
	WebhookURL string `mapstructure:"webhook_url"`
	Terminal   bool   `mapstructure:"terminal"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

type StateConfig struct {
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	Origin         string            `mapstructure:"origin"`
	Destination    string            `mapstructure:"destination"`
	Depart         string            `mapstructure:"depart"`
	Return         string            `mapstructure:"return"`
	OneWay         bool              `mapstructure:"one_way"`
	Window         string            `mapstructure:"window"`
	RestrictWindow bool              `mapstructure:"restrict_window"`
	Threshold      string            `mapstructure:"threshold"`
	Interval       time.Duration     `mapstructure:"interval"`
	Flexible       bool              `mapstructure:"flexible"`
	Range          int               `mapstructure:"range"`
	FlexReturn     bool              `mapstructure:"flex_return"`
	MaxStops       int               `mapstructure:"max_stops"`
	Currency       string            `mapstructure:"currency"`
	CurrencyPolicy string            `mapstructure:"currency_policy"`
	Rates          map[string]string `mapstructure:"rates"`
	Adults         int               `mapstructure:"adults"`

	Provider          string        `mapstructure:"provider"`
	SerpAPI           SerpAPIConfig `mapstructure:"serpapi"`
	Amadeus           AmadeusConfig `mapstructure:"amadeus"`
	Fixture           string        `mapstructure:"fixture"`
	ProviderTimeout   time.Duration `mapstructure:"provider_timeout"`
	ProviderRetries   int           `mapstructure:"provider_retries"`
	ProviderBackoff   time.Duration `mapstructure:"provider_backoff"`
	SearchConcurrency int           `mapstructure:"search_concurrency"`

	SMTP   SMTPConfig   `mapstructure:"smtp"`
	Notify NotifyConfig `mapstructure:"notify"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	LLM    LLMConfig    `mapstructure:"llm"`

	History HistoryConfig `mapstructure:"history"`
	State   StateConfig   `mapstructure:"state"`
	Redis   RedisConfig   `mapstructure:"redis"`
	HTTP    HTTPConfig    `mapstructure:"http"`

	StateDir string `mapstructure:"state_dir"`
}

var defaults = map[string]any{
	"origin":          "YUL",
	"destination":     "LIM",
	"depart":          "",
	"return":          "",
	"one_way":         false,
	"window":          "",
	"restrict_window": false,
	"threshold":       "",
	"interval":        24 * time.Hour,
	"flexible":        true,
	"range":           3,
	"flex_return":     false,
	"max_stops":       3,
	"currency":        "CAD",
	"currency_policy": "reject",
	"rates":           map[string]string{},
	"adults":          1,

	"provider":              "serpapi",
	"serpapi.api_key":       "",
	"amadeus.client_id":     "",
	"amadeus.client_secret": "",
	"amadeus.base_url":      "",
	"fixture":               "",
	"provider_timeout":      20 * time.Second,
	"provider_retries":      2,
	"provider_backoff":      400 * time.Millisecond,
	"search_concurrency":    2,

	"smtp.host":          "",
	"smtp.port":          587,
	"smtp.username":      "",
	"smtp.password":      "",
	"smtp.sender":        "",
	"notify.email":       "",
	"notify.webhook_url": "",
	"notify.terminal":    true,
	"kafka.brokers":      []string{},
	"kafka.topic":        "farewatch.deals",

	"llm.provider": "",
	"llm.model":    "",
	"llm.api_key":  "",
	"llm.base_url": "",
	"llm.timeout":  45 * time.Second,

	"history.backend": "file",
	"history.dsn":     "",
	"state.backend":   "file",
	"redis.addr":      "localhost:6379",
	"redis.password":  "",
	"redis.db":        0,
	"http.addr":       "",

	"state_dir": "",
}

// Keys lists every recognised key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(defaults))
	for k := range defaults {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Known reports whether key is a recognised configuration key.
func Known(key string) bool {
	if _, ok := defaults[key]; ok {
		return true
	}
	code, ok := strings.CutPrefix(key, "rates.")
	return ok && len(code) == 3
}

func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

func StateDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if env := os.Getenv(EnvPrefix + "_STATE_DIR"); env != "" {
		return env, nil
	}
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", AppName), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// NewViper returns a viper instance with defaults, the config file at path
// (or the default location when empty) and FAREWATCH_* environment bindings.
// A missing config file is not an error.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", model.ErrConfiguration, path, err)
	}
	return v, nil
}

// Decode unmarshals v into a Config and validates collaborator choices.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	cfg.Origin = strings.ToUpper(strings.TrimSpace(cfg.Origin))
	cfg.Destination = strings.ToUpper(strings.TrimSpace(cfg.Destination))
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers[0])
	}
	return cfg, cfg.Validate()
}

// Load is NewViper followed by Decode.
func Load(path string) (Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return Config{}, err
	}
	return Decode(v)
}

func (c Config) Validate() error {
	switch c.Provider {
	case "serpapi", "amadeus", "google-url", "fixture":
	default:
		return fmt.Errorf("%w: unknown provider %q (want serpapi|amadeus|google-url|fixture)", model.ErrConfiguration, c.Provider)
	}
	switch strings.ToLower(c.CurrencyPolicy) {
	case "", "reject", "convert":
	default:
		return fmt.Errorf("%w: unknown currency policy %q (want reject|convert)", model.ErrConfiguration, c.CurrencyPolicy)
	}
	switch c.History.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("%w: unknown history backend %q (want file|postgres)", model.ErrConfiguration, c.History.Backend)
	}
	switch c.State.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("%w: unknown state backend %q (want file|redis)", model.ErrConfiguration, c.State.Backend)
	}
	if c.History.Backend == "postgres" && strings.TrimSpace(c.History.DSN) == "" {
		return fmt.Errorf("%w: history.backend=postgres requires history.dsn", model.ErrConfiguration)
	}
	if c.SearchConcurrency < 0 {
		return fmt.Errorf("%w: search_concurrency must be >= 0, got %d", model.ErrConfiguration, c.SearchConcurrency)
	}
	return nil
}

// Params builds the validated monitor parameters.
func (c Config) Params() (model.SearchParameters, error) {
	p := model.SearchParameters{
		Origin:         c.Origin,
		Destination:    c.Destination,
		OneWay:         c.OneWay,
		Window:         c.Window,
		RestrictWindow: c.RestrictWindow,
		Flexible:       c.Flexible,
		RangeDays:      c.Range,
		FlexReturn:     c.FlexReturn,
		MaxStops:       c.MaxStops,
		Currency:       c.Currency,
	}
	var err error
	if p.Depart, err = optionalDate("depart", c.Depart); err != nil {
		return p, err
	}
	if p.Return, err = optionalDate("return", c.Return); err != nil {
		return p, err
	}
	if p.OneWay {
		p.Return = time.Time{}
	}
	if t := strings.TrimSpace(c.Threshold); t != "" {
		d, err := decimal.NewFromString(t)
		if err != nil {
			return p, fmt.Errorf("%w: threshold %q is not a number", model.ErrConfiguration, c.Threshold)
		}
		p.Threshold = &d
	}
	return p, p.Validate()
}

// ParsedRates returns the conversion table keyed by upper-case currency code.
func (c Config) ParsedRates() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(c.Rates))
	for code, raw := range c.Rates {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("%w: rate for %s must be a positive number, got %q", model.ErrConfiguration, code, raw)
		}
		out[strings.ToUpper(code)] = d
	}
	return out, nil
}

func optionalDate(key, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := model.Date(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", model.ErrConfiguration, key, raw)
	}
	return t, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
