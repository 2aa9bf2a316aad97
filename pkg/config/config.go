package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ilkoid/poncho-caption/pkg/apperr"
)

// DefaultTask: директива Florence-2 для подписи к изображению.
const DefaultTask = "<CAPTION>"

// DefaultConfigFile ищется в рабочей директории, если путь не задан явно.
const DefaultConfigFile = "config.yaml"

// AppConfig: корневая структура конфигурации.
// Она зеркалит структуру config.yaml.
type AppConfig struct {
	Vision          VisionConfig    `yaml:"vision"`
	ImageProcessing ImageProcConfig `yaml:"image_processing"`
	S3              S3Config        `yaml:"s3"`
	Journal         JournalConfig   `yaml:"journal"`
	Telegram        TelegramConfig  `yaml:"telegram"`
	App             AppSpecific     `yaml:"app"`
}

// VisionConfig: доступ к NVCF (загрузка ассетов и вызов модели).
type VisionConfig struct {
	APIKey           string        `yaml:"api_key"`    // Поддерживает ${VAR}
	InvokeURL        string        `yaml:"invoke_url"` // Endpoint модели
	AssetsURL        string        `yaml:"assets_url"` // Endpoint авторизации загрузки
	Description      string        `yaml:"description"`
	AuthorizeTimeout time.Duration `yaml:"authorize_timeout"`
	UploadTimeout    time.Duration `yaml:"upload_timeout"`
	InvokeTimeout    time.Duration `yaml:"invoke_timeout"`
	RateLimit        int           `yaml:"rate_limit"` // Запросов в минуту
	BurstLimit       int           `yaml:"burst_limit"`
}

// GetDefaults возвращает копию с дефолтами для незаполненных полей.
func (c *VisionConfig) GetDefaults() VisionConfig {
	result := *c

	if result.InvokeURL == "" {
		result.InvokeURL = "https://ai.api.nvidia.com/v1/vlm/microsoft/florence-2"
	}
	if result.AssetsURL == "" {
		result.AssetsURL = "https://api.nvcf.nvidia.com/v2/nvcf/assets"
	}
	if result.Description == "" {
		result.Description = "Test Image"
	}
	if result.AuthorizeTimeout == 0 {
		result.AuthorizeTimeout = 30 * time.Second
	}
	if result.UploadTimeout == 0 {
		result.UploadTimeout = 300 * time.Second
	}
	if result.InvokeTimeout == 0 {
		result.InvokeTimeout = 300 * time.Second
	}
	if result.RateLimit == 0 {
		result.RateLimit = 40 // квота публичного NVCF
	}
	if result.BurstLimit == 0 {
		result.BurstLimit = 3 // авторизация, загрузка, вызов
	}

	return result
}

// ImageProcConfig: уменьшение изображения перед загрузкой.
// MaxWidth == 0 отключает обработку: файл уходит как есть.
type ImageProcConfig struct {
	MaxWidth int `yaml:"max_width"`
	Quality  int `yaml:"quality"`
}

// S3Config: зеркало файлов результата в объектное хранилище.
// Пустой Bucket отключает зеркалирование.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"` // Поддерживает ${VAR}
	SecretKey string `yaml:"secret_key"` // Поддерживает ${VAR}
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled сообщает, настроено ли зеркалирование.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// JournalConfig: sqlite журнал запусков. Пустой Path отключает журнал.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// TelegramConfig: реквизиты бота для уведомлений.
type TelegramConfig struct {
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
	BaseURL string `yaml:"base_url"`
}

// Enabled сообщает, заданы ли токен и чат.
func (c TelegramConfig) Enabled() bool {
	return c.Token != "" && c.ChatID != ""
}

// AppSpecific: общие настройки приложения.
type AppSpecific struct {
	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"log_file"`
}

// envLayer: переменные окружения, заполняющие то, что не задал файл.
type envLayer struct {
	APIKey         string `envconfig:"NVIDIA_API_KEY"`
	InvokeURL      string `envconfig:"NVIDIA_INVOKE_URL"`
	AssetsURL      string `envconfig:"NVIDIA_ASSETS_URL"`
	TelegramToken  string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID string `envconfig:"TELEGRAM_CHAT_ID"`
	Debug          bool   `envconfig:"CLASSIFIER_DEBUG"`
}

// Load читает YAML файл, подставляет ENV переменные и возвращает готовую структуру.
func Load(path string) (*AppConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, apperr.Newf(apperr.KindConfiguration, "config file not found at: %s", path)
	}

	rawBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, err, "failed to read config file")
	}

	// os.ExpandEnv заменяет ${VAR} или $VAR на значение из системы.
	contentWithEnv := os.ExpandEnv(string(rawBytes))

	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(contentWithEnv), &cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, err, "failed to parse yaml")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadLayered собирает конфигурацию по слоям:
//  1. .env в рабочей директории (не перетирает уже заданные переменные);
//  2. явный файл path, либо config.yaml в рабочей директории, если он есть;
//  3. переменные окружения для полей, оставшихся пустыми.
//
// Отсутствие api_key здесь не ошибка: его проверяет workflow до первого сетевого вызова,
// чтобы ошибка попала в строку результата.
func LoadLayered(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	if _, err := os.Stat(path); err == nil || explicit {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	var env envLayer
	if err := envconfig.Process("", &env); err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, err, "failed to read environment")
	}
	cfg.applyEnv(env)

	cfg.Vision = cfg.Vision.GetDefaults()
	return cfg, nil
}

func (c *AppConfig) applyEnv(env envLayer) {
	if c.Vision.APIKey == "" {
		c.Vision.APIKey = env.APIKey
	}
	if c.Vision.InvokeURL == "" {
		c.Vision.InvokeURL = env.InvokeURL
	}
	if c.Vision.AssetsURL == "" {
		c.Vision.AssetsURL = env.AssetsURL
	}
	if c.Telegram.Token == "" {
		c.Telegram.Token = env.TelegramToken
	}
	if c.Telegram.ChatID == "" {
		c.Telegram.ChatID = env.TelegramChatID
	}
	if env.Debug {
		c.App.Debug = true
	}
}

// validate проверяет согласованность опциональных секций.
func (c *AppConfig) validate() error {
	if c.S3.Enabled() && c.S3.Endpoint == "" {
		return apperr.New(apperr.KindConfiguration, "s3.endpoint is required when s3.bucket is set")
	}
	if c.ImageProcessing.MaxWidth < 0 {
		return apperr.New(apperr.KindConfiguration, "image_processing.max_width must not be negative")
	}
	if q := c.ImageProcessing.Quality; q < 0 || q > 100 {
		return apperr.Newf(apperr.KindConfiguration, "image_processing.quality must be in 0..100, got %d", q)
	}
	return nil
}

// RequireCredentials проверяет наличие ключа API.
func (c *AppConfig) RequireCredentials() error {
	if c.Vision.APIKey == "" {
		return apperr.New(apperr.KindConfiguration,
			"API_KEY is not set. Check config.yaml or the NVIDIA_API_KEY environment variable")
	}
	return nil
}
