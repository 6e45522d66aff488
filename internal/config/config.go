package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	BadgerDBPath     string `mapstructure:"BADGERDB_PATH"`

	// WebhookURL receives fire-and-forget new-coupon notifications.
	// Empty disables the webhook.
	WebhookURL string `mapstructure:"WEBHOOK_URL"`

	// APIListenAddr is the bind address of the read-only query API.
	APIListenAddr string `mapstructure:"API_LISTEN_ADDR"`
	// APIKey protects the /api routes. Empty serves them unauthenticated.
	APIKey string `mapstructure:"API_KEY"`

	// OCRLanguages is a comma-separated list of Tesseract language models.
	OCRLanguages string `mapstructure:"OCR_LANGUAGES"`

	// DownloadTimeoutSeconds bounds one image download.
	DownloadTimeoutSeconds int `mapstructure:"DOWNLOAD_TIMEOUT_SECONDS"`
	// OCRTimeoutSeconds bounds one OCR invocation.
	OCRTimeoutSeconds int `mapstructure:"OCR_TIMEOUT_SECONDS"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Register the keys so AutomaticEnv picks them up even without a
	// config file.
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "BADGERDB_PATH", "WEBHOOK_URL",
		"API_LISTEN_ADDR", "API_KEY", "OCR_LANGUAGES",
		"DOWNLOAD_TIMEOUT_SECONDS", "OCR_TIMEOUT_SECONDS", "LOG_LEVEL",
	} {
		if err := viper.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	err = viper.ReadInConfig()
	if err != nil {
		// A missing config file is fine as long as env vars cover the
		// required values.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if config.TelegramBotToken == "" {
		return Config{}, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	if config.BadgerDBPath == "" {
		config.BadgerDBPath = "./badger_data"
	}
	if config.APIListenAddr == "" {
		config.APIListenAddr = ":8080"
	}
	if config.OCRLanguages == "" {
		config.OCRLanguages = "deu,eng"
	}
	if config.DownloadTimeoutSeconds <= 0 {
		config.DownloadTimeoutSeconds = 30
	}
	if config.OCRTimeoutSeconds <= 0 {
		config.OCRTimeoutSeconds = 60
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	return config, nil
}

// OCRLanguageList splits the configured language string into the
// variadic form the OCR engine expects.
func (c Config) OCRLanguageList() []string {
	var langs []string
	for _, lang := range strings.Split(c.OCRLanguages, ",") {
		if trimmed := strings.TrimSpace(lang); trimmed != "" {
			langs = append(langs, trimmed)
		}
	}
	return langs
}
