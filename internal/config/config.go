package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Alpaca   AlpacaConfig   `yaml:"alpaca"`
	Trading  TradingConfig  `yaml:"trading"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Model    ModelConfig    `yaml:"model"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// AlpacaConfig содержит настройки подключения к Alpaca
type AlpacaConfig struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	TradingURL string `yaml:"trading_url" validate:"required,url"`
	DataURL    string `yaml:"data_url" validate:"required,url"`
	Feed       string `yaml:"feed" validate:"oneof=iex sip"`
	// Source выбирает адаптер исторических данных: sdk или rest
	Source string `yaml:"source" validate:"oneof=sdk rest"`
}

// TradingConfig содержит настройки торгового цикла
type TradingConfig struct {
	Symbol          string  `yaml:"symbol" validate:"required"`
	TimeFrame       string  `yaml:"timeframe" validate:"required"`
	LookbackDays    int     `yaml:"lookback_days" validate:"gte=1"`
	Limit           int     `yaml:"limit" validate:"gte=1"`
	IntervalSeconds int     `yaml:"interval_seconds" validate:"gte=1"`
	Enabled         bool    `yaml:"enabled"`
	OrderQty        float64 `yaml:"order_qty" validate:"gt=0"`
	MaxPositionQty  float64 `yaml:"max_position_qty" validate:"gte=0"`
}

// AnalysisConfig содержит настройки подготовки данных
type AnalysisConfig struct {
	Timezone         string          `yaml:"timezone" validate:"required"`
	RegularHoursOnly bool            `yaml:"regular_hours_only"`
	Technical        TechnicalConfig `yaml:"technical"`
}

// TechnicalConfig задает окна индикаторов
type TechnicalConfig struct {
	ATRPeriod int `yaml:"atr_period" validate:"gte=1"`
	RSIPeriod int `yaml:"rsi_period" validate:"gte=1"`
	MAShort   int `yaml:"ma_short" validate:"gte=1"`
	MAMid     int `yaml:"ma_mid" validate:"gte=1"`
	MALong    int `yaml:"ma_long" validate:"gte=1"`
}

// ModelConfig настройки классификатора
type ModelConfig struct {
	Type      string  `yaml:"type" validate:"oneof=knn random_forest rsi_ma"`
	Neighbors int     `yaml:"neighbors" validate:"gte=1"`
	Trees     int     `yaml:"trees" validate:"gte=1"`
	MaxDepth  int     `yaml:"max_depth" validate:"gte=0"`
	TestSize  float64 `yaml:"test_size" validate:"gt=0,lt=1"`
	Seed      int64   `yaml:"seed"`
	Stratify  bool    `yaml:"stratify"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url" validate:"required_if=Enabled true"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization" validate:"required_if=Enabled true"`
	Bucket       string `yaml:"bucket" validate:"required_if=Enabled true"`
}

// ServerConfig настройки HTTP/WebSocket сервера
type ServerConfig struct {
	Addr         string   `yaml:"addr" validate:"required"`
	CORSOrigins  []string `yaml:"cors_origins"`
	HistoryLimit int      `yaml:"history_limit" validate:"gte=1"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Alpaca: AlpacaConfig{
			TradingURL: "https://paper-api.alpaca.markets",
			DataURL:    "https://data.alpaca.markets",
			Feed:       "iex",
			Source:     "sdk",
		},
		Trading: TradingConfig{
			Symbol:          "TSLA",
			TimeFrame:       "1Min",
			LookbackDays:    3,
			Limit:           1000,
			IntervalSeconds: 60,
			OrderQty:        1,
			MaxPositionQty:  10,
		},
		Analysis: AnalysisConfig{
			Timezone:         "America/New_York",
			RegularHoursOnly: true,
			Technical: TechnicalConfig{
				ATRPeriod: 20,
				RSIPeriod: 14,
				MAShort:   40,
				MAMid:     80,
				MALong:    160,
			},
		},
		Model: ModelConfig{
			Type:      "random_forest",
			Neighbors: 5,
			Trees:     100,
			TestSize:  0.2,
			Seed:      42,
			Stratify:  true,
		},
		Server: ServerConfig{
			Addr:         ":8000",
			CORSOrigins:  []string{"*"},
			HistoryLimit: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load загружает конфигурацию из файла поверх значений по умолчанию.
// Пустой path означает конфигурацию по умолчанию. Секреты берутся
// из окружения (и файла .env, если он есть).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ошибка чтения .env: %w", err)
	}
	applyEnv(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}

	return cfg, nil
}

// applyEnv переопределяет секреты значениями из окружения
func applyEnv(cfg *Config) {
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.TradingURL = v
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.Storage.Token = v
	}
}
