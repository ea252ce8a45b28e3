package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Broker   BrokerConfig
	Engine   EngineConfig
	Security SecurityConfig
	Logging  LoggingConfig

	// Instruments - пер-инструментные настройки из YAML файла
	// (лимиты позиций, дефолтные stop/target). Может быть пустым.
	Instruments InstrumentsConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// BrokerConfig - настройки подключения к брокеру
type BrokerConfig struct {
	Name      string // alpaca, paper
	APIKey    string
	APISecret string
	BaseURL   string
}

// EngineConfig - настройки торгового ядра
type EngineConfig struct {
	// Retry при отправке ордеров
	MaxRetries   int
	RetryBackoff time.Duration // базовая задержка
	RetryCeiling time.Duration // потолок задержки

	// OrderTimeout - ограничение на один вызов брокера
	OrderTimeout time.Duration

	// OrderPollInterval - частота опроса статуса нетерминального ордера
	OrderPollInterval time.Duration

	// MonitorInterval - частота оценки условий выхода по открытым позициям
	MonitorInterval time.Duration

	// StalenessLimit - максимальный возраст цены; старше - мониторинг
	// инструмента помечается degraded и выходы не синтезируются
	StalenessLimit time.Duration

	// FlattenOnShutdown - закрывать ли позиции при остановке процесса.
	// По умолчанию false: ордера остаются в последнем известном состоянии.
	FlattenOnShutdown bool

	// IdempotencyRetention - срок хранения записей идемпотентности.
	// Записи старше могут быть удалены: для них повторная обработка
	// трактуется как "неизвестно - разрешить" (осознанный компромисс).
	IdempotencyRetention time.Duration
}

// SecurityConfig - настройки доступа к API
type SecurityConfig struct {
	// APITokenHash - bcrypt-хэш токена дашборда. Пустой = auth выключен.
	APITokenHash string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
// и (опционально) YAML файла инструментов
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "signalpilot"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Broker: BrokerConfig{
			Name:      getEnv("BROKER", "paper"),
			APIKey:    getEnv("BROKER_API_KEY", ""),
			APISecret: getEnv("BROKER_API_SECRET", ""),
			BaseURL:   getEnv("BROKER_BASE_URL", "https://paper-api.alpaca.markets"),
		},
		Engine: EngineConfig{
			MaxRetries:           getEnvAsInt("MAX_RETRIES", 4),
			RetryBackoff:         getEnvAsDuration("RETRY_BACKOFF", 250*time.Millisecond),
			RetryCeiling:         getEnvAsDuration("RETRY_CEILING", 5*time.Second),
			OrderTimeout:         getEnvAsDuration("ORDER_TIMEOUT", 10*time.Second),
			OrderPollInterval:    getEnvAsDuration("ORDER_POLL_INTERVAL", 1*time.Second),
			MonitorInterval:      getEnvAsDuration("MONITOR_INTERVAL", 2*time.Second),
			StalenessLimit:       getEnvAsDuration("STALENESS_LIMIT", 30*time.Second),
			FlattenOnShutdown:    getEnvAsBool("FLATTEN_ON_SHUTDOWN", false),
			IdempotencyRetention: getEnvAsDuration("IDEMPOTENCY_RETENTION", 30*24*time.Hour),
		},
		Security: SecurityConfig{
			APITokenHash: getEnv("API_TOKEN_HASH", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	// Файл инструментов опционален
	if path := getEnv("INSTRUMENTS_FILE", ""); path != "" {
		instruments, err := LoadInstruments(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load instruments file: %w", err)
		}
		cfg.Instruments = instruments
	}

	return cfg, nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Engine.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.Engine.MaxRetries)
	}

	if c.Engine.MaxRetries > 10 {
		return fmt.Errorf("MAX_RETRIES should not exceed 10, got %d", c.Engine.MaxRetries)
	}

	if c.Engine.RetryBackoff <= 0 {
		return fmt.Errorf("RETRY_BACKOFF must be positive, got %v", c.Engine.RetryBackoff)
	}

	if c.Engine.RetryCeiling < c.Engine.RetryBackoff {
		return fmt.Errorf("RETRY_CEILING must be >= RETRY_BACKOFF, got %v < %v",
			c.Engine.RetryCeiling, c.Engine.RetryBackoff)
	}

	if c.Engine.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Engine.OrderTimeout)
	}

	if c.Engine.MonitorInterval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive, got %v", c.Engine.MonitorInterval)
	}

	if c.Engine.StalenessLimit < c.Engine.MonitorInterval {
		return fmt.Errorf("STALENESS_LIMIT must be >= MONITOR_INTERVAL, got %v < %v",
			c.Engine.StalenessLimit, c.Engine.MonitorInterval)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
