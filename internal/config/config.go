package config

import (
	"bytes"
	_ "embed"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	Storage    StorageConfig    `mapstructure:"storage"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Channel    ChannelConfig    `mapstructure:"channel"`
	Campaign   CampaignConfig   `mapstructure:"campaign"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	API        APIConfig        `mapstructure:"api"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// StorageConfig selects the repository backend: "mysql" or "memory".
type StorageConfig struct {
	Driver         string `mapstructure:"driver"`
	ArchiveEnabled bool   `mapstructure:"archive_enabled"` // mirror campaign logs to ClickHouse
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type ChannelConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type CampaignConfig struct {
	SendTimeout          time.Duration `mapstructure:"send_timeout"`
	WaitingRecheck       time.Duration `mapstructure:"waiting_recheck"`
	ReconcileInterval    time.Duration `mapstructure:"reconcile_interval"`
	RestartSettle        time.Duration `mapstructure:"restart_settle"`
	UnavailableMaxDelay  time.Duration `mapstructure:"unavailable_max_delay"`
	DefaultFollowUpDelay time.Duration `mapstructure:"default_follow_up_delay"`
}

type SupervisorConfig struct {
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	Factor            float64       `mapstructure:"factor"`
	Window            time.Duration `mapstructure:"window"`
	MaxRestarts       int           `mapstructure:"max_restarts"`
	Settle            time.Duration `mapstructure:"settle"`
	TransientPatterns []string      `mapstructure:"transient_patterns"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	RPS     int  `mapstructure:"rps"`
}

type APIConfig struct {
	Keys []string `mapstructure:"keys"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (CAMPAIGN_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (CAMPAIGN_MYSQL_DSN, CAMPAIGN_CHANNEL_BASE_URL, ...)
	v.SetEnvPrefix("CAMPAIGN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
