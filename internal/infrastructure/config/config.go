package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"confgive/internal/shared/logger"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   logger.Config  `mapstructure:"logger"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Email    EmailConfig    `mapstructure:"email"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GatewayConfig holds the TapPay charge-authorization endpoint settings.
type GatewayConfig struct {
	APIURL     string `mapstructure:"api_url"`
	PartnerKey string `mapstructure:"partner_key"`
	MerchantID string `mapstructure:"merchant_id"`
	Currency   string `mapstructure:"currency"`
}

// Env derives the payment environment from the endpoint URL.
func (g *GatewayConfig) Env() string {
	if strings.Contains(g.APIURL, "sandbox") {
		return "sandbox"
	}
	return "production"
}

type QueueConfig struct {
	Workers     int `mapstructure:"workers"`
	MaxAttempts int `mapstructure:"max_attempts"`
	BackoffMS   int `mapstructure:"backoff_ms"`
	TimeoutMS   int `mapstructure:"timeout_ms"`
}

type EmailConfig struct {
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
	FromAddress  string `mapstructure:"from_address"`
	FromName     string `mapstructure:"from_name"`
	TemplatePath string `mapstructure:"template_path"`
}

// Ready reports whether credentials are configured. Sending is skipped
// entirely when they are not, mirroring the notifier's best-effort contract.
func (e *EmailConfig) Ready() bool {
	return e.SMTPUser != "" && e.SMTPPassword != ""
}

type AdminConfig struct {
	GoogleSecret string `mapstructure:"google_secret"`
}

type BusinessConfig struct {
	Timezone string `mapstructure:"timezone"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables
func Load(env string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	viper.SetEnvPrefix("CONFGIVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if env != "" && env != "default" {
		viper.Set("server.mode", env)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func validate(cfg *Config) error {
	var missing []string
	if cfg.Gateway.APIURL == "" {
		missing = append(missing, "gateway.api_url")
	}
	if cfg.Gateway.PartnerKey == "" {
		missing = append(missing, "gateway.partner_key")
	}
	if cfg.Gateway.MerchantID == "" {
		missing = append(missing, "gateway.merchant_id")
	}
	if cfg.Admin.GoogleSecret == "" {
		missing = append(missing, "admin.google_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.allowed_origins", []string{})

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.username", "root")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.database", "confgive_dev")
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.conn_max_lifetime", 60)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Gateway defaults (credentials must be configured)
	viper.SetDefault("gateway.api_url", "")
	viper.SetDefault("gateway.partner_key", "")
	viper.SetDefault("gateway.merchant_id", "")
	viper.SetDefault("gateway.currency", "TWD")

	// Queue defaults match the settlement pipeline contract:
	// 3 total attempts, 1s exponential backoff base, 10s per-attempt timeout.
	viper.SetDefault("queue.workers", 5)
	viper.SetDefault("queue.max_attempts", 3)
	viper.SetDefault("queue.backoff_ms", 1000)
	viper.SetDefault("queue.timeout_ms", 10000)

	// Email defaults
	viper.SetDefault("email.smtp_host", "smtp.gmail.com")
	viper.SetDefault("email.smtp_port", 587)
	viper.SetDefault("email.smtp_user", "")
	viper.SetDefault("email.smtp_password", "")
	viper.SetDefault("email.from_address", "")
	viper.SetDefault("email.from_name", "The Hope")
	viper.SetDefault("email.template_path", "./emails/giving_success.html")

	// Admin defaults (secret must be configured)
	viper.SetDefault("admin.google_secret", "")

	// Business defaults
	viper.SetDefault("business.timezone", "Asia/Taipei")
}
