package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration knobs for the control backend.
type Config struct {
	HTTP struct {
		Addr              string        `mapstructure:"addr"`
		ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
		RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"http"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`
	Auth struct {
		JWTSecret         string        `mapstructure:"jwt_secret"`
		TokenTTL          time.Duration `mapstructure:"token_ttl"`
		BootstrapUser     string        `mapstructure:"bootstrap_user"`
		BootstrapPassword string        `mapstructure:"bootstrap_password"`
	} `mapstructure:"auth"`
	Firewall struct {
		CommandTimeout time.Duration `mapstructure:"command_timeout"`
	} `mapstructure:"firewall"`
	Sync struct {
		HistorySize int `mapstructure:"history_size"`
		QueueSize   int `mapstructure:"queue_size"`
	} `mapstructure:"sync"`
	Discovery struct {
		Enabled       bool          `mapstructure:"enabled"`
		Interval      time.Duration `mapstructure:"interval"`
		ARPTablePath  string        `mapstructure:"arp_table_path"`
		Scope         string        `mapstructure:"scope"`
		PingSweep     bool          `mapstructure:"ping_sweep"`
		PingTimeout   time.Duration `mapstructure:"ping_timeout"`
		PingWorkers   int           `mapstructure:"ping_workers"`
		SNMPEnabled   bool          `mapstructure:"snmp_enabled"`
		SNMPCommunity string        `mapstructure:"snmp_community"`
	} `mapstructure:"discovery"`
	Detection struct {
		Enabled   bool     `mapstructure:"enabled"`
		Command   string   `mapstructure:"command"`
		Args      []string `mapstructure:"args"`
		AlertFile string   `mapstructure:"alert_file"`
	} `mapstructure:"detection"`
}

// Load reads the configuration from disk/environment using Viper.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("netctl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			// Missing file is fine; env-only configuration is supported.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8081")
	v.SetDefault("http.read_header_timeout", "5s")
	v.SetDefault("http.request_timeout", "15s")

	v.SetDefault("log.level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("auth.jwt_secret", "change-me-secret")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.bootstrap_user", "admin")
	v.SetDefault("auth.bootstrap_password", "admin123")

	v.SetDefault("firewall.command_timeout", "10s")

	v.SetDefault("sync.history_size", 100)
	v.SetDefault("sync.queue_size", 256)

	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.interval", "60s")
	v.SetDefault("discovery.arp_table_path", "/proc/net/arp")
	v.SetDefault("discovery.scope", "")
	v.SetDefault("discovery.ping_sweep", false)
	v.SetDefault("discovery.ping_timeout", "800ms")
	v.SetDefault("discovery.ping_workers", 16)
	v.SetDefault("discovery.snmp_enabled", false)
	v.SetDefault("discovery.snmp_community", "public")

	v.SetDefault("detection.enabled", false)
	v.SetDefault("detection.command", "snort")
	v.SetDefault("detection.args", []string{})
	v.SetDefault("detection.alert_file", "/var/log/snort/alert")
}
