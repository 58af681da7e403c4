package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	apperr "github.com/youruser/avatarframe/internal/errors"
)

// EnvConfigPath names the config file when no --config flag is given.
const EnvConfigPath = "AVATARFRAME_CONFIG"

// Config is the application configuration, usually read from config.toml.
type Config struct {
	Listen          string   `toml:"listen"`
	TemplatesFile   string   `toml:"templates_file"`
	TemplatesPrefix string   `toml:"templates_prefix"`
	EventLog        string   `toml:"event_log"`
	ChartFile       string   `toml:"chart_file"`
	Workers         int      `toml:"workers"`
	RequestTimeout  Duration `toml:"request_timeout"`
	FetchTimeout    Duration `toml:"fetch_timeout"`
	InviteLink      string   `toml:"invite_link"`
}

// Duration lets TOML files spell timeouts as "60s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Listen:          ":8080",
		TemplatesFile:   "templates/templates.json",
		TemplatesPrefix: "templates/",
		EventLog:        "data/events.log",
		ChartFile:       "data/log_analyze.png",
		Workers:         2,
		RequestTimeout:  Duration{60 * time.Second},
		FetchTimeout:    Duration{10 * time.Second},
	}
}

// Load reads path over the defaults. An empty path falls back to
// $AVATARFRAME_CONFIG; if that is empty too, defaults are used. A path that
// was named but does not exist is a CONFIG error. PORT, when set, overrides
// the listen address.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return Config{}, apperr.Wrap(apperr.ErrCodeConfig, err, "config file %s not found", path)
			}
			return Config{}, apperr.Wrap(apperr.ErrCodeConfig, err, "stat %s", path)
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, apperr.Wrap(apperr.ErrCodeConfig, err, "parse %s", path)
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Listen = ":" + port
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first unusable setting as a CONFIG error.
func (c Config) Validate() error {
	switch {
	case c.TemplatesFile == "":
		return apperr.New(apperr.ErrCodeConfig, "templates_file is empty")
	case c.EventLog == "":
		return apperr.New(apperr.ErrCodeConfig, "event_log is empty")
	case c.ChartFile == "":
		return apperr.New(apperr.ErrCodeConfig, "chart_file is empty")
	case c.Workers < 1:
		return apperr.New(apperr.ErrCodeConfig, "workers must be at least 1, got %d", c.Workers)
	case c.RequestTimeout.Duration < 0:
		return apperr.New(apperr.ErrCodeConfig, "request_timeout is negative")
	case c.FetchTimeout.Duration < 0:
		return apperr.New(apperr.ErrCodeConfig, "fetch_timeout is negative")
	}
	return nil
}
