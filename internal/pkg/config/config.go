// Package config предоставляет управление конфигурацией приложения
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Server содержит конфигурацию HTTP-сервера
type Server struct {
	Host                   string `json:"host" yaml:"host"`
	Port                   int    `json:"port" yaml:"port"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// WeChat содержит параметры доступа к данным аккаунта.
// Извлечение ключа из памяти процесса и сама расшифровка SQLCipher
// выполняются внешними инструментами: здесь только готовые значения.
type WeChat struct {
	// DataDir — корневой каталог данных аккаунта (xwechat_files).
	DataDir string `json:"data_dir" yaml:"data_dir"`
	// AccountID — идентификатор собственного аккаунта.
	AccountID string `json:"account_id" yaml:"account_id"`
	// DBKey — шестнадцатеричный ключ расшифровки хранилища.
	DBKey string `json:"db_key" yaml:"db_key"`
	// DBPath — путь к уже расшифрованной базе сообщений.
	DBPath string `json:"db_path" yaml:"db_path"`
	// VoiceDBPath — путь к расшифрованной базе медиа; пустой
	// отключает извлечение голосовых сообщений.
	VoiceDBPath string `json:"voice_db_path" yaml:"voice_db_path"`
}

// Export содержит параметры экспорта
type Export struct {
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	PageSize  int    `json:"page_size" yaml:"page_size"`
	// MediaKinds — виды извлекаемых вложений: image, voice, emoji.
	MediaKinds     []string `json:"media_kinds" yaml:"media_kinds"`
	VoiceAsText    bool     `json:"voice_as_text" yaml:"voice_as_text"`
	IncludeAvatars bool     `json:"include_avatars" yaml:"include_avatars"`
	// Columns — набор колонок табличного экспорта: compact или full.
	Columns string `json:"columns" yaml:"columns"`
}

// Media содержит параметры сетевых загрузок медиа
type Media struct {
	HTTPTimeoutSeconds int `json:"http_timeout_seconds" yaml:"http_timeout_seconds"`
	MaxRedirects       int `json:"max_redirects" yaml:"max_redirects"`
}

// Processing содержит конфигурацию обработки задач
type Processing struct {
	TaskTimeoutSeconds int `json:"task_timeout_seconds" yaml:"task_timeout_seconds"` // 0 - без ограничений
	TaskTTLHours       int `json:"task_ttl_hours" yaml:"task_ttl_hours"`
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// Config содержит конфигурацию приложения
type Config struct {
	Server     Server     `json:"server" yaml:"server"`
	WeChat     WeChat     `json:"wechat" yaml:"wechat"`
	Export     Export     `json:"export" yaml:"export"`
	Media      Media      `json:"media" yaml:"media"`
	Processing Processing `json:"processing" yaml:"processing"`
	Logging    Logging    `json:"logging" yaml:"logging"`
}

// LoadConfig загружает конфигурацию приложения из переменных окружения, .env файла или config.yml
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла, если он существует
	if err := godotenv.Load(); err != nil {
		// Если .env файла не существует, это нормально, мы будем полагаться на переменные окружения или config.yml
	}

	// Попытка загрузки из config.yml сначала
	cfg, err := loadFromYAML("config.yml")
	if err != nil {
		// Если загрузка YAML не удалась, используем переменные окружения
		cfg = loadFromEnv()
	}

	cfg.applyDefaults()
	return cfg, nil
}

// loadFromYAML загружает конфигурацию из YAML-файла
func loadFromYAML(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
	}

	return &cfg, nil
}

// loadFromEnv загружает конфигурацию из переменных окружения
func loadFromEnv() *Config {
	return &Config{
		Server: Server{
			Host: getEnv("SERVER_HOST", DefaultServerHost),
			Port: getEnvInt("SERVER_PORT", DefaultServerPort),
		},
		WeChat: WeChat{
			DataDir:     getEnv("WECHAT_DATA_DIR", ""),
			AccountID:   getEnv("WECHAT_ACCOUNT_ID", ""),
			DBKey:       getEnv("WECHAT_DB_KEY", ""),
			DBPath:      getEnv("WECHAT_DB_PATH", ""),
			VoiceDBPath: getEnv("WECHAT_VOICE_DB_PATH", ""),
		},
		Export: Export{
			OutputDir: getEnv("EXPORT_OUTPUT_DIR", DefaultOutputDir),
			PageSize:  getEnvInt("EXPORT_PAGE_SIZE", DefaultPageSize),
			Columns:   getEnv("EXPORT_COLUMNS", DefaultColumns),
		},
		Processing: Processing{
			TaskTimeoutSeconds: getEnvInt("TASK_TIMEOUT_SECONDS", int(DefaultTaskTimeout/time.Second)),
			TaskTTLHours:       getEnvInt("TASK_TTL_HOURS", int(DefaultTaskTTL/time.Hour)),
		},
		Logging: Logging{
			Level:  getEnv("LOG_LEVEL", DefaultLogLevel),
			Format: getEnv("LOG_FORMAT", DefaultLogFormat),
		},
	}
}

// applyDefaults заполняет незаданные поля значениями по умолчанию
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = int(DefaultShutdownTimeout / time.Second)
	}
	if c.Export.OutputDir == "" {
		c.Export.OutputDir = DefaultOutputDir
	}
	if c.Export.PageSize == 0 {
		c.Export.PageSize = DefaultPageSize
	}
	if c.Export.Columns == "" {
		c.Export.Columns = DefaultColumns
	}
	if len(c.Export.MediaKinds) == 0 {
		c.Export.MediaKinds = []string{"image", "voice", "emoji"}
	}
	if c.Media.HTTPTimeoutSeconds == 0 {
		c.Media.HTTPTimeoutSeconds = int(DefaultMediaHTTPTimeout / time.Second)
	}
	if c.Media.MaxRedirects == 0 {
		c.Media.MaxRedirects = DefaultMaxRedirects
	}
	if c.Processing.TaskTTLHours == 0 {
		c.Processing.TaskTTLHours = int(DefaultTaskTTL / time.Hour)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Address возвращает адрес сервера в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ShutdownTimeout возвращает таймаут остановки сервера
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// TaskTimeout возвращает таймаут одной задачи экспорта
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Processing.TaskTimeoutSeconds) * time.Second
}

// TaskTTL возвращает срок хранения записи о задаче
func (c *Config) TaskTTL() time.Duration {
	return time.Duration(c.Processing.TaskTTLHours) * time.Hour
}

// HTTPTimeout возвращает таймаут сетевых загрузок медиа
func (m *Media) HTTPTimeout() time.Duration {
	return time.Duration(m.HTTPTimeoutSeconds) * time.Second
}

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port должен быть действительным номером порта (1-65535)")
	}

	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds должно быть положительным")
	}

	if c.Export.PageSize <= 0 {
		return fmt.Errorf("export.page_size должно быть положительным целым числом")
	}

	switch c.Export.Columns {
	case "compact", "full":
		// all good
	default:
		return fmt.Errorf("export.columns должен быть одним из: compact, full")
	}

	for _, k := range c.Export.MediaKinds {
		switch k {
		case "image", "voice", "emoji":
			// all good
		default:
			return fmt.Errorf("export.media_kinds содержит неизвестный вид вложения: %q", k)
		}
	}

	if c.Media.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("media.http_timeout_seconds должно быть положительным")
	}

	if c.Media.MaxRedirects <= 0 {
		return fmt.Errorf("media.max_redirects должно быть положительным")
	}

	if c.Processing.TaskTimeoutSeconds < 0 {
		return fmt.Errorf("processing.task_timeout_seconds должно быть неотрицательным (0 для отсутствия ограничений)")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// all good
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}

	return nil
}

// getEnv извлекает значение переменной окружения или возвращает значение по умолчанию, если она не установлена
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt извлекает целочисленное значение переменной окружения
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
