package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	CRM struct {
		BaseURL         string  `yaml:"base_url"`
		V2BaseURL       string  `yaml:"v2_base_url"`
		ContactsBaseURL string  `yaml:"contacts_base_url"`
		Token           string  `yaml:"token"`
		LenientSlots    bool    `yaml:"lenient_slots"`
		RateLimitRPS    float64 `yaml:"rate_limit_rps"`
		RateLimitBurst  int     `yaml:"rate_limit_burst"`
	} `yaml:"crm"`

	Server struct {
		Address   string `yaml:"address"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"server"`

	Audit struct {
		Path string `yaml:"path"`
	} `yaml:"audit"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Notify struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"notify"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	Sessions struct {
		TTLMinutes             int `yaml:"ttl_minutes"`
		CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
	} `yaml:"sessions"`

	Rules struct {
		DebounceMillis int `yaml:"debounce_millis"`
	} `yaml:"rules"`

	Locations struct {
		Path                 string `yaml:"path"`
		ReloadIntervalSecond int    `yaml:"reload_interval_seconds"`
	} `yaml:"locations"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "data/ridgeline.db"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) SessionTTL() time.Duration {
	if c.Sessions.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Sessions.TTLMinutes) * time.Minute
}

func (c *Config) SessionCleanupInterval() time.Duration {
	if c.Sessions.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

func (c *Config) RuleDebounce() time.Duration {
	if c.Rules.DebounceMillis <= 0 {
		return 800 * time.Millisecond
	}
	return time.Duration(c.Rules.DebounceMillis) * time.Millisecond
}

func (c *Config) RedisCacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) LocationsReloadInterval() time.Duration {
	if c.Locations.ReloadIntervalSecond <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Locations.ReloadIntervalSecond) * time.Second
}
