package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ErrConfiguration marks settings the process cannot start without.
var ErrConfiguration = errors.New("configuration error")

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint      string
	PublicURL     string
	AccessKey     string
	SecretKey     string
	BucketAvatars string
	UseSSL        bool
	Region        string
	MaxAvatarSize int64
}

type SecurityConfig struct {
	ActivationSecret string
	AccessSecret     string
	RefreshSecret    string
	AvatarSecret     string
	ActivationTTL    time.Duration
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	CookieSameSite   string
	CookieDomain     string
}

type MailConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
}

// WorkerConfig describes the task stream shared by the API (producer) and
// the worker (consumer group).
type WorkerConfig struct {
	Stream        string
	StreamMaxLen  int64
	TrimSchedule  string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	LogLevel      string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Mail             MailConfig
	Worker           WorkerConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate fails fast on settings that would otherwise surface mid-request.
func (c *AppConfig) Validate() error {
	var problems []string

	secrets := map[string]string{
		"security.activationsecret": c.Security.ActivationSecret,
		"security.accesssecret":     c.Security.AccessSecret,
		"security.refreshsecret":    c.Security.RefreshSecret,
	}
	seen := make(map[string]string, len(secrets))
	for _, key := range []string{"security.activationsecret", "security.accesssecret", "security.refreshsecret"} {
		value := secrets[key]
		if strings.TrimSpace(value) == "" {
			problems = append(problems, key+" is required")
			continue
		}
		if other, ok := seen[value]; ok {
			problems = append(problems, fmt.Sprintf("%s must differ from %s", key, other))
			continue
		}
		seen[value] = key
	}

	if c.Security.AccessTTL <= 0 || c.Security.RefreshTTL <= 0 || c.Security.ActivationTTL <= 0 {
		problems = append(problems, "security ttls must be positive")
	}
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		problems = append(problems, "postgres.dsn is required")
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		problems = append(problems, "redis.addr is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// Load reads the API configuration and validates it.
func Load() (*AppConfig, error) {
	v, err := readViper("config")
	if err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readViper(name string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("ELEARN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8000)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxbodybytes", 50<<20)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 20)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.automigrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.publicurl", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketavatars", "elearning-avatars")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.maxavatarsize", 2<<20)

	v.SetDefault("security.activationsecret", "")
	v.SetDefault("security.accesssecret", "")
	v.SetDefault("security.refreshsecret", "")
	v.SetDefault("security.avatarsecret", "")
	v.SetDefault("security.activationttl", "1h")
	v.SetDefault("security.accessttl", "5m")
	v.SetDefault("security.refreshttl", "72h")
	v.SetDefault("security.cookiesamesite", "lax")
	v.SetDefault("security.cookiedomain", "")

	v.SetDefault("mail.smtphost", "127.0.0.1")
	v.SetDefault("mail.smtpport", 1025)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "no-reply@elearning.local")

	v.SetDefault("worker.stream", "accounts:tasks")
	v.SetDefault("worker.streammaxlen", 10000)
	v.SetDefault("worker.trimschedule", "0 30 3 * * *")
	v.SetDefault("worker.group", "account-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "30s")
	v.SetDefault("worker.loglevel", "info")

	v.SetDefault("allowcorsorigins", []string{})
}
