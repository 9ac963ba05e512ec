package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Config struct {
	HTTPAddr  string          `yaml:"http_addr"`
	Timezone  string          `yaml:"timezone"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	S3Config  *S3Config       `yaml:"s3"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type S3Config struct {
	Enabled    bool   `yaml:"enabled"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucket_name"`
	ServiceUrl string `yaml:"service_url"`
	BucketUrl  string `yaml:"bucket_url"`
	PathStyle  bool   `yaml:"path_style"`
}

type WhatsAppConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SessionDB string `yaml:"session_db"`
	// DeviceName is shown in the phone's linked devices list.
	DeviceName string `yaml:"device_name"`
}

type SchedulerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	LeadTime       time.Duration `yaml:"lead_time"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func NewConfig() *Config {
	return &Config{
		HTTPAddr: ":8081",
		Timezone: "Europe/Paris",
		Database: DatabaseConfig{
			Driver:     DriverMemory,
			Server:     "localhost:3306",
			Database:   "leadconsole",
			User:       "leadconsole",
			SQLitePath: "leadconsole.db",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "leadconsole:session:",
		},
		S3Config: &S3Config{
			Region: "us-east-1",
		},
		WhatsApp: WhatsAppConfig{
			SessionDB:  "whatsapp.db",
			DeviceName: "LeadConsole",
		},
		Scheduler: SchedulerConfig{
			Interval:       30 * time.Second,
			LeadTime:       5 * time.Minute,
			WebhookTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the defaults, then the YAML file at path if there is one, then
// the environment.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	if cfg.S3Config == nil {
		cfg.S3Config = &S3Config{}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.Timezone = getEnv("OPERATOR_TIMEZONE", c.Timezone)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Server = getEnv("DB_HOST", c.Database.Server)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.SQLitePath = getEnv("SQLITE_PATH", c.Database.SQLitePath)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.S3Config.AccessKey = getEnv("S3_ACCESS_KEY", c.S3Config.AccessKey)
	c.S3Config.SecretKey = getEnv("S3_SECRET_KEY", c.S3Config.SecretKey)
	c.S3Config.Region = getEnv("S3_REGION", c.S3Config.Region)
	c.S3Config.BucketName = getEnv("S3_BUCKET_NAME", c.S3Config.BucketName)
	c.S3Config.ServiceUrl = getEnv("S3_SERVICE_URL", c.S3Config.ServiceUrl)
	c.S3Config.BucketUrl = getEnv("S3_BUCKET_URL", c.S3Config.BucketUrl)

	c.WhatsApp.SessionDB = getEnv("WHATSAPP_SESSION_DB", c.WhatsApp.SessionDB)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	var err error
	if c.Redis.Enabled, err = getEnvBool("REDIS_ENABLED", c.Redis.Enabled); err != nil {
		return err
	}
	if c.S3Config.Enabled, err = getEnvBool("S3_ENABLED", c.S3Config.Enabled); err != nil {
		return err
	}
	if c.S3Config.PathStyle, err = getEnvBool("S3_PATH_STYLE", c.S3Config.PathStyle); err != nil {
		return err
	}
	if c.WhatsApp.Enabled, err = getEnvBool("WHATSAPP_ENABLED", c.WhatsApp.Enabled); err != nil {
		return err
	}
	if c.Scheduler.Interval, err = getEnvDuration("SCHEDULER_INTERVAL", c.Scheduler.Interval); err != nil {
		return err
	}
	if c.Scheduler.LeadTime, err = getEnvDuration("REMINDER_LEAD_TIME", c.Scheduler.LeadTime); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", c.Scheduler.Interval)
	}
	if c.Scheduler.LeadTime < 0 {
		return fmt.Errorf("reminder lead time must not be negative, got %s", c.Scheduler.LeadTime)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.S3Config.Enabled && c.S3Config.BucketName == "" {
		return fmt.Errorf("s3 is enabled but no bucket is configured")
	}
	return nil
}

// Location is the operators' time zone, used for day boundaries and
// appointment input.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
