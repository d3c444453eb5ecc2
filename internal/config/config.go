package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Port     string `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	// TxIsolation is the isolation level used by stock-mutating transactions.
	// Row locks make read committed sufficient; serializable is accepted for stricter setups.
	TxIsolation string `yaml:"tx_isolation"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type VoiceConfig struct {
	WhisperURL   string        `yaml:"whisper_url"`
	WhisperModel string        `yaml:"whisper_model"`
	Language     string        `yaml:"language"`
	LLMBaseURL   string        `yaml:"llm_base_url"`
	LLMModel     string        `yaml:"llm_model"`
	LLMToken     string        `yaml:"llm_token"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAudioMB   int64         `yaml:"max_audio_mb"`
}

type InventoryConfig struct {
	LowStockThreshold int `yaml:"low_stock_threshold"`
}

type Config struct {
	App       AppConfig       `yaml:"app"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Auth      AuthConfig      `yaml:"auth"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Voice     VoiceConfig     `yaml:"voice"`
	Inventory InventoryConfig `yaml:"inventory"`
}

// NewConfig builds the configuration from defaults, an optional YAML file
// named by CONFIG_FILE, a .env file and finally the process environment.
func NewConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Port:     "8080",
			Env:      "development",
			LogLevel: "info",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            "5432",
			User:            "postgres",
			DBName:          "canteen",
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			TxIsolation:     "read committed",
		},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		RabbitMQ: RabbitMQConfig{
			Exchange: "notifications_fanout",
		},
		Voice: VoiceConfig{
			WhisperModel: "whisper-1",
			Language:     "tr",
			LLMModel:     "gpt-4o-mini",
			Timeout:      60 * time.Second,
			MaxAudioMB:   10,
		},
		Inventory: InventoryConfig{
			LowStockThreshold: 5,
		},
	}
}

func loadYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("invalid config file: %w", err)
	}

	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.Env, "APP_ENV")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	setString(&cfg.Postgres.TxIsolation, "DB_TX_ISOLATION")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&cfg.RabbitMQ.Exchange, "RABBITMQ_EXCHANGE")

	setString(&cfg.Voice.WhisperURL, "WHISPER_URL")
	setString(&cfg.Voice.WhisperModel, "WHISPER_MODEL")
	setString(&cfg.Voice.Language, "VOICE_LANGUAGE")
	setString(&cfg.Voice.LLMBaseURL, "LLM_BASE_URL")
	setString(&cfg.Voice.LLMModel, "LLM_MODEL")
	setString(&cfg.Voice.LLMToken, "LLM_API_KEY")

	if err := setInt32(&cfg.Postgres.MaxConns, "DB_MAX_CONNS"); err != nil {
		return err
	}
	if err := setInt32(&cfg.Postgres.MinConns, "DB_MIN_CONNS"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Postgres.MaxConnLifetime, "DB_MAX_CONN_LIFETIME"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Auth.TokenTTL, "JWT_TOKEN_TTL"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Voice.Timeout, "VOICE_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("VOICE_MAX_AUDIO_MB"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("VOICE_MAX_AUDIO_MB: %w", err)
		}
		cfg.Voice.MaxAudioMB = n
	}
	if v := os.Getenv("LOW_STOCK_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOW_STOCK_THRESHOLD: %w", err)
		}
		cfg.Inventory.LowStockThreshold = n
	}

	return nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Postgres.Password == "" {
		return errors.New("DB_PASSWORD is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Postgres.TxIsolation {
	case "read committed", "repeatable read", "serializable":
	default:
		return fmt.Errorf("unsupported DB_TX_ISOLATION %q", c.Postgres.TxIsolation)
	}
	if c.Inventory.LowStockThreshold < 0 {
		return errors.New("LOW_STOCK_THRESHOLD cannot be negative")
	}
	return nil
}

// DSN returns the keyword/value connection string understood by pgx.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// MigrationURL returns the pgx5:// URL used by golang-migrate.
func (p PostgresConfig) MigrationURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, p.Port),
		Path:     "/" + p.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt32(dst *int32, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = int32(n)
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
