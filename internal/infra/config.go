package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации бота.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Engine    EngineConfig    `mapstructure:"engine"`
	RBAC      RBACConfig      `mapstructure:"rbac"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-входа (вебхук чат-платформы).
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MetricsPort  int           `mapstructure:"metrics_port"`
}

// DatabaseConfig описывает подключение к PostgreSQL (аудит обращений).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// RedisConfig описывает подключение к Redis (reload-сигналы и нотификации).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig — сервисный токен, которым шлюз представляется коннектору.
// Аутентификация самого чат-транспорта вне зоны ответственности ядра.
type AuthConfig struct {
	ServiceSecret string        `mapstructure:"service_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	Issuer        string        `mapstructure:"issuer"`
}

// EngineConfig содержит настройки диспетчера и слоя надежности.
type EngineConfig struct {
	ConnectorAddr string        `mapstructure:"connector_addr"`
	ConnectorMode string        `mapstructure:"connector_mode"` // grpc | mock
	CallTimeout   time.Duration `mapstructure:"call_timeout"`

	// Одна повторная попытка для transient-ошибок — больше не положено.
	RetryAttempts int `mapstructure:"retry_attempts"`

	// Circuit Breaker для внешнего коннектора
	CBMaxRequests         int           `mapstructure:"cb_max_requests"`
	CBInterval            time.Duration `mapstructure:"cb_interval"`
	CBTimeout             time.Duration `mapstructure:"cb_timeout"`
	CBConsecutiveFailures int           `mapstructure:"cb_consecutive_failures"`

	// Rate Limiter на исходящие вызовы
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
}

// RBACConfig — ростер и поведение контроля доступа.
// Матч-строки принимаются в любой форме: сырой ID платформы, "@handle",
// handle без '@', email. Сравнение без учета регистра.
type RBACConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	NotifyAdminOnDenied bool     `mapstructure:"notify_admin_on_denied"`
	LogAccessAttempts   bool     `mapstructure:"log_access_attempts"`
	AdminUsers          []string `mapstructure:"admin_users"`
	Users               []string `mapstructure:"users"`
	SelfService         []string `mapstructure:"self_service"`
}

// AssistantConfig — внешний LLM-ассист (подсказка интента, полировка ответа).
// Сервис считается ненадежным: при любой ошибке пайплайн работает без него.
type AssistantConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// Возвращает также сам viper — он нужен менеджеру ростера для горячей перезагрузки.
func LoadConfig() (*Config, *viper.Viper, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// ENV перекрывает файл: RBAC_ENABLED=false перекроет rbac.enabled
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет — работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, v, nil
}

// ReloadRBAC перечитывает только секцию rbac из уже настроенного viper.
// Вызывается менеджером ростера по сигналу обновления (файл или Redis).
func ReloadRBAC(v *viper.Viper) (RBACConfig, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return RBACConfig{}, fmt.Errorf("error re-reading config file: %w", err)
		}
	}
	var rbac RBACConfig
	if err := v.UnmarshalKey("rbac", &rbac); err != nil {
		return RBACConfig{}, fmt.Errorf("unable to decode rbac section: %w", err)
	}
	if !v.IsSet("rbac.enabled") {
		rbac.Enabled = true
	}
	return rbac, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.max_conns", 15)

	v.SetDefault("auth.token_ttl", 2*time.Minute)
	v.SetDefault("auth.issuer", "atlas-chatops")

	v.SetDefault("engine.connector_mode", "grpc")
	v.SetDefault("engine.call_timeout", 10*time.Second)
	v.SetDefault("engine.retry_attempts", 2) // первая попытка + один повтор
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.cb_consecutive_failures", 5)
	v.SetDefault("engine.rate_limit", 100.0)
	v.SetDefault("engine.rate_burst", 20)
	v.SetDefault("engine.audit_buffer_size", 10000)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)

	// fail-closed: RBAC включен, пока оператор явно не выключил
	v.SetDefault("rbac.enabled", true)
	v.SetDefault("rbac.notify_admin_on_denied", true)
	v.SetDefault("rbac.log_access_attempts", true)

	v.SetDefault("assistant.timeout", 5*time.Second)
	v.SetDefault("assistant.model", "claude-3-5-sonnet-20241022")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}
