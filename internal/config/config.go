package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"foco/pkg/config"
)

type LogConfig struct {
	Level string `yaml:"level"`
}

type I18nConfig struct {
	DefaultLocale string   `yaml:"default_locale"`
	Locales       []string `yaml:"locales"`
}

// VoiceConfig 会话在内存中保存，空闲超过 IdleMinutes 后清理
type VoiceConfig struct {
	IdleMinutes   int     `yaml:"idle_minutes"`
	MaxHistory    int     `yaml:"max_history"`
	MinConfidence float64 `yaml:"min_confidence"`
}

func (v VoiceConfig) IdleTTL() time.Duration {
	return time.Duration(v.IdleMinutes) * time.Minute
}

type PresenceConfig struct {
	StaleSeconds int `yaml:"stale_seconds"`
}

func (p PresenceConfig) StaleAfter() time.Duration {
	return time.Duration(p.StaleSeconds) * time.Second
}

type OutboxConfig struct {
	IntervalMS int `yaml:"interval_ms"`
	BatchSize  int `yaml:"batch_size"`
	MaxRetries int `yaml:"max_retries"`
}

type WorkerConfig struct {
	MaxRetries      int64  `yaml:"max_retries"`
	DedupTTLMinutes int    `yaml:"dedup_ttl_minutes"`
	HealthPort      string `yaml:"health_port"`
	// 到期提醒：每 ReminderIntervalMinutes 扫描未来 ReminderWindowHours 内到期的任务
	ReminderIntervalMinutes int `yaml:"reminder_interval_minutes"`
	ReminderWindowHours     int `yaml:"reminder_window_hours"`
}

func (w WorkerConfig) ReminderInterval() time.Duration {
	return time.Duration(w.ReminderIntervalMinutes) * time.Minute
}

func (w WorkerConfig) ReminderWindow() time.Duration {
	return time.Duration(w.ReminderWindowHours) * time.Hour
}

// AdminConfig 可以访问 /api/v1/admin 的用户
type AdminConfig struct {
	UserIDs      []string `yaml:"user_ids"`
	SecureCookie bool     `yaml:"secure_cookie"`

	ids []uuid.UUID
}

func (a AdminConfig) IDs() []uuid.UUID {
	return a.ids
}

type Config struct {
	Log      LogConfig            `yaml:"log"`
	DB       config.DBConfig      `yaml:"db"`
	MQ       config.MQConfig      `yaml:"mq"`
	Redis    config.RedisConfig   `yaml:"redis"`
	JWT      config.JWTConfig     `yaml:"jwt"`
	Server   config.ServerConfig  `yaml:"server"`
	LLM      config.LLMConfig     `yaml:"llm"`
	Storage  config.StorageConfig `yaml:"storage"`
	Upload   config.UploadConfig  `yaml:"upload"`
	Otel     config.OtelConfig    `yaml:"otel"`
	Cache    config.CacheConfig   `yaml:"cache"`
	I18n     I18nConfig           `yaml:"i18n"`
	Voice    VoiceConfig          `yaml:"voice"`
	Presence PresenceConfig       `yaml:"presence"`
	Outbox   OutboxConfig         `yaml:"outbox"`
	Worker   WorkerConfig         `yaml:"worker"`
	Admin    AdminConfig          `yaml:"admin"`
}

// Load 读取 CONFIG_ENV / CONFIG_DIR 指定的配置
func Load() (*Config, error) {
	return LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, dir string) (*Config, error) {
	raw, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := config.Decode(raw, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideLLMFromEnv(&cfg.LLM)
	config.OverrideStorageFromEnv(&cfg.Storage)
	config.OverrideOtelFromEnv(&cfg.Otel)

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}
	if c.DB.MaxConns == 0 {
		c.DB.MaxConns = 10
	}
	if c.DB.SlowQueryMS == 0 {
		c.DB.SlowQueryMS = 200
	}
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.JWT.TTLHours == 0 {
		c.JWT.TTLHours = 24
	}
	if c.JWT.CookieName == "" {
		c.JWT.CookieName = "foco_session"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 20
	}
	if c.Storage.Root == "" {
		c.Storage.Root = "data/uploads"
	}
	if c.Upload.MaxSizeMB == 0 {
		c.Upload.MaxSizeMB = 25
	}
	if c.Upload.Concurrency == 0 {
		c.Upload.Concurrency = 3
	}
	if c.Upload.JobRetentionMinutes == 0 {
		c.Upload.JobRetentionMinutes = 10
	}
	if c.Cache.AnalyticsTTLSeconds == 0 {
		c.Cache.AnalyticsTTLSeconds = 300
	}
	if c.Cache.UnreadTTLSeconds == 0 {
		c.Cache.UnreadTTLSeconds = 60
	}
	if c.I18n.DefaultLocale == "" {
		c.I18n.DefaultLocale = "en"
	}
	if c.Voice.IdleMinutes == 0 {
		c.Voice.IdleMinutes = 30
	}
	if c.Voice.MaxHistory == 0 {
		c.Voice.MaxHistory = 20
	}
	if c.Voice.MinConfidence == 0 {
		c.Voice.MinConfidence = 0.5
	}
	if c.Presence.StaleSeconds == 0 {
		c.Presence.StaleSeconds = 30
	}
	if c.Outbox.IntervalMS == 0 {
		c.Outbox.IntervalMS = 1000
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries == 0 {
		c.Outbox.MaxRetries = 5
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 3
	}
	if c.Worker.DedupTTLMinutes == 0 {
		c.Worker.DedupTTLMinutes = 60
	}
	if c.Worker.HealthPort == "" {
		c.Worker.HealthPort = ":8081"
	}
	if c.Worker.ReminderIntervalMinutes == 0 {
		c.Worker.ReminderIntervalMinutes = 15
	}
	if c.Worker.ReminderWindowHours == 0 {
		c.Worker.ReminderWindowHours = 24
	}
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret must be set (JWT_SECRET)")
	}
	if c.Voice.MinConfidence < 0 || c.Voice.MinConfidence > 1 {
		return fmt.Errorf("voice.min_confidence must be within [0, 1], got %v", c.Voice.MinConfidence)
	}
	c.Admin.ids = c.Admin.ids[:0]
	for _, raw := range c.Admin.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("admin.user_ids: invalid uuid %q: %w", raw, err)
		}
		c.Admin.ids = append(c.Admin.ids, id)
	}
	return nil
}

func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWT.TTLHours) * time.Hour
}

func (c *Config) UploadJobRetention() time.Duration {
	return time.Duration(c.Upload.JobRetentionMinutes) * time.Minute
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxSizeMB) << 20
}

