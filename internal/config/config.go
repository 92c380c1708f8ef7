package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config содержит все конфигурационные параметры приложения
type Config struct {
	Telegram    TelegramConfig
	MercadoPago MercadoPagoConfig
	Charge      ChargeConfig
	TTS         TTSConfig
	Mixer       MixerConfig
	Orders      OrdersConfig
	Database    DatabaseConfig
	App         AppConfig
}

// TelegramConfig содержит настройки Telegram бота
type TelegramConfig struct {
	BotToken           string
	RateLimitPerMinute int
}

// MercadoPagoConfig содержит настройки Mercado Pago
type MercadoPagoConfig struct {
	AccessToken   string
	WebhookSecret string
	PayerEmail    string
	BaseURL       string
}

// ChargeConfig содержит параметры счета за локуцию
type ChargeConfig struct {
	Amount      float64
	Description string
}

// TTSConfig содержит настройки провайдера синтеза речи
type TTSConfig struct {
	KeysFile string
	APIKeys  []string
	BaseURL  string
	Voice    string
	Timeout  time.Duration
}

// MixerConfig содержит настройки ffmpeg
type MixerConfig struct {
	FFmpegPath string
	TempDir    string
}

// OrdersConfig содержит настройки хранения заказов в памяти
type OrdersConfig struct {
	TTL              time.Duration
	EvictionInterval time.Duration
	MaxMusicSize     int64
}

// DatabaseConfig: журнал платежей в PostgreSQL, необязательный
type DatabaseConfig struct {
	Enabled   bool
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	SSLMode   string
	Retention time.Duration
}

type AppConfig struct {
	Env      string
	LogLevel string
	Port     int
}

// Load загружает конфигурацию из переменных окружения и .env
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Telegram
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.RateLimitPerMinute = getEnvIntDefault("RATE_LIMIT_PER_MINUTE", 20)

	// Mercado Pago
	cfg.MercadoPago.AccessToken = os.Getenv("MERCADOPAGO_ACCESS_TOKEN")
	cfg.MercadoPago.WebhookSecret = os.Getenv("MERCADOPAGO_WEBHOOK_SECRET")
	cfg.MercadoPago.PayerEmail = getEnvDefault("MERCADOPAGO_PAYER_EMAIL", "comprador@exemplo.com")
	cfg.MercadoPago.BaseURL = getEnvDefault("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com")

	// Счет
	cfg.Charge.Amount = getEnvFloatDefault("CHARGE_AMOUNT", 5.00)
	cfg.Charge.Description = getEnvDefault("CHARGE_DESCRIPTION", "Locução estilo carro de som (Enceladus)")

	// TTS
	cfg.TTS.KeysFile = getEnvDefault("TTS_KEYS_FILE", "keys.txt")
	cfg.TTS.APIKeys = getEnvListDefault("TTS_API_KEYS", nil)
	cfg.TTS.BaseURL = getEnvDefault("TTS_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash-preview-tts:generateSpeech")
	cfg.TTS.Voice = getEnvDefault("TTS_VOICE", "Enceladus")
	cfg.TTS.Timeout = getEnvDurationDefault("TTS_TIMEOUT", 60*time.Second)

	// ffmpeg
	cfg.Mixer.FFmpegPath = getEnvDefault("FFMPEG_PATH", "ffmpeg")
	cfg.Mixer.TempDir = os.Getenv("AUDIO_TEMP_DIR")

	// Заказы
	cfg.Orders.TTL = getEnvDurationDefault("ORDER_TTL", 24*time.Hour)
	cfg.Orders.EvictionInterval = getEnvDurationDefault("ORDER_EVICTION_INTERVAL", 10*time.Minute)
	cfg.Orders.MaxMusicSize = int64(getEnvIntDefault("MAX_MUSIC_SIZE", 20*1024*1024))

	// Database
	cfg.Database.Enabled = getEnvBoolDefault("DB_ENABLED", false)
	cfg.Database.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.Database.Port = getEnvIntDefault("DB_PORT", 5432)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = os.Getenv("DB_NAME")
	cfg.Database.SSLMode = getEnvDefault("DB_SSL_MODE", "disable")
	cfg.Database.Retention = getEnvDurationDefault("JOURNAL_RETENTION", 90*24*time.Hour)

	// App
	cfg.App.Env = getEnvDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.App.Port = getEnvIntDefault("APP_PORT", 3000)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// getEnvListDefault читает список через запятую, пустые элементы пропускаются
func getEnvListDefault(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	if config.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN не установлен")
	}
	if config.MercadoPago.AccessToken == "" {
		return fmt.Errorf("MERCADOPAGO_ACCESS_TOKEN не установлен")
	}
	if config.Charge.Amount <= 0 {
		return fmt.Errorf("CHARGE_AMOUNT должен быть больше нуля")
	}
	if config.TTS.Timeout <= 0 {
		return fmt.Errorf("TTS_TIMEOUT должен быть больше нуля")
	}
	if config.Orders.MaxMusicSize <= 0 {
		return fmt.Errorf("MAX_MUSIC_SIZE должен быть больше нуля")
	}
	if config.Orders.EvictionInterval <= 0 {
		return fmt.Errorf("ORDER_EVICTION_INTERVAL должен быть больше нуля")
	}
	if config.Database.Enabled {
		if config.Database.User == "" {
			return fmt.Errorf("DB_USER не установлен")
		}
		if config.Database.Name == "" {
			return fmt.Errorf("DB_NAME не установлен")
		}
	}

	return nil
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшн режиме
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// GetLogLevel возвращает уровень логирования в формате zap
func (c *AppConfig) GetLogLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
