package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Redis        RedisConfig        `yaml:"redis"`
	Logging      LoggingConfig      `yaml:"logging"`
	App          AppConfig          `yaml:"app"`
	Worker       WorkerConfig       `yaml:"worker"`
	Booking      BookingConfig      `yaml:"booking"`
	Notification NotificationConfig `yaml:"notification"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	MigrationsDir   string        `yaml:"migrations_dir"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// RedisConfig holds the connection used for event de-duplication
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	EventTimeout    time.Duration `yaml:"event_timeout"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BookingConfig holds role ids and the lifecycle policy knobs
type BookingConfig struct {
	TranslatorRoleID   int64         `yaml:"translator_role_id"`
	CustomerRoleID     int64         `yaml:"customer_role_id"`
	AdminRoleID        int64         `yaml:"admin_role_id"`
	SuperAdminRoleID   int64         `yaml:"superadmin_role_id"`
	TimeZone           string        `yaml:"time_zone"`
	ImmediateLeadTime  time.Duration `yaml:"immediate_lead_time"`
	CancellationWindow time.Duration `yaml:"cancellation_window"`
	Expiry             ExpiryConfig  `yaml:"expiry"`
}

// ExpiryConfig tunes how long a pending booking is offered before it times out
type ExpiryConfig struct {
	ShortHorizon  time.Duration `yaml:"short_horizon"`
	ShortGrace    time.Duration `yaml:"short_grace"`
	MediumHorizon time.Duration `yaml:"medium_horizon"`
	MediumGrace   time.Duration `yaml:"medium_grace"`
	LongLead      time.Duration `yaml:"long_lead"`
}

// NotificationConfig holds transport and delivery policy settings
type NotificationConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	SendTimeout   time.Duration `yaml:"send_timeout"`
	NightStart    string        `yaml:"night_start"`
	BusinessStart string        `yaml:"business_start"`
	// Languages maps language ids to the names used in message texts
	Languages map[int64]string `yaml:"languages"`
	Push      PushConfig       `yaml:"push"`
	SMTP      SMTPConfig       `yaml:"smtp"`
	SMS       SMSConfig        `yaml:"sms"`
}

// PushConfig holds the push gateway endpoint
type PushConfig struct {
	URL    string `yaml:"url"`
	AppID  string `yaml:"app_id"`
	APIKey string `yaml:"api_key"`
	Title  string `yaml:"title"`
}

// SMTPConfig holds the outgoing mail server
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// SMSConfig holds the SMS gateway endpoint
type SMSConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	FromNumber string `yaml:"from_number"`
}

// secrets are never committed to the YAML files; they come from the environment
type secrets struct {
	DatabasePassword string `env:"DATABASE_PASSWORD"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	PushAPIKey       string `env:"PUSH_API_KEY"`
	SMTPPassword     string `env:"SMTP_PASSWORD"`
	SMSAPIKey        string `env:"SMS_API_KEY"`
}

// Load reads and parses the configuration file, then overlays secrets from
// the environment and fills defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.applySecrets(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applySecrets() error {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("failed to parse environment secrets: %w", err)
	}

	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&c.Database.Password, s.DatabasePassword)
	overlay(&c.RabbitMQ.Password, s.RabbitMQPassword)
	overlay(&c.Redis.Password, s.RedisPassword)
	overlay(&c.Notification.Push.APIKey, s.PushAPIKey)
	overlay(&c.Notification.SMTP.Password, s.SMTPPassword)
	overlay(&c.Notification.SMS.APIKey, s.SMSAPIKey)
	return nil
}

func (c *Config) applyDefaults() {
	b := &c.Booking
	if b.TimeZone == "" {
		b.TimeZone = "UTC"
	}
	if b.ImmediateLeadTime == 0 {
		b.ImmediateLeadTime = 5 * time.Minute
	}
	if b.CancellationWindow == 0 {
		b.CancellationWindow = 24 * time.Hour
	}
	if b.Expiry.ShortHorizon == 0 {
		b.Expiry.ShortHorizon = 24 * time.Hour
	}
	if b.Expiry.ShortGrace == 0 {
		b.Expiry.ShortGrace = 90 * time.Minute
	}
	if b.Expiry.MediumHorizon == 0 {
		b.Expiry.MediumHorizon = 72 * time.Hour
	}
	if b.Expiry.MediumGrace == 0 {
		b.Expiry.MediumGrace = 16 * time.Hour
	}
	if b.Expiry.LongLead == 0 {
		b.Expiry.LongLead = 48 * time.Hour
	}

	n := &c.Notification
	if n.Concurrency <= 0 {
		n.Concurrency = 8
	}
	if n.SendTimeout == 0 {
		n.SendTimeout = 10 * time.Second
	}
	if n.NightStart == "" {
		n.NightStart = "22:00"
	}
	if n.BusinessStart == "" {
		n.BusinessStart = "07:00"
	}
	if n.Push.Title == "" {
		n.Push.Title = c.App.Name
	}

	if c.Redis.DedupeTTL == 0 {
		c.Redis.DedupeTTL = 24 * time.Hour
	}
	if c.Database.MigrationsDir == "" {
		c.Database.MigrationsDir = "migrations"
	}
}

// Location resolves the configured booking time zone
func (b BookingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid booking time_zone %q: %w", b.TimeZone, err)
	}
	return loc, nil
}

func (c *Config) validateCommon() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Booking.TranslatorRoleID <= 0 {
		return fmt.Errorf("booking translator_role_id is required")
	}

	if c.Booking.CustomerRoleID <= 0 {
		return fmt.Errorf("booking customer_role_id is required")
	}

	if _, err := c.Booking.Location(); err != nil {
		return err
	}

	return nil
}

// ValidateAPIConfig checks the settings the api-service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return c.validateCommon()
}

// ValidateWorkerConfig checks the settings the worker-service depends on
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.EventTimeout <= 0 {
		return fmt.Errorf("worker event_timeout must be greater than 0")
	}

	if c.Worker.SweepInterval <= 0 {
		return fmt.Errorf("worker sweep_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	if c.Notification.Push.URL == "" || c.Notification.Push.AppID == "" {
		return fmt.Errorf("notification push url and app_id are required")
	}

	return nil
}
