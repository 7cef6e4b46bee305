package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log          Logger             `mapstructure:"logger"`
	DB           Database           `mapstructure:"database"`
	API          API                `mapstructure:"api"`
	MarketData   MarketData         `mapstructure:"market_data"`
	Broker       Broker             `mapstructure:"broker"`
	Backtest     Backtest           `mapstructure:"backtest"`
	PaperTrading PaperTrading       `mapstructure:"paper_trading"`
	Validation   Validation         `mapstructure:"validation"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Cache        Cache              `mapstructure:"cache"`
	Alert        Alert              `mapstructure:"alert"`
	Advisor      Advisor            `mapstructure:"advisor"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type API struct {
	Port int `mapstructure:"port"`
}

type MarketData struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRequestPerMin int           `mapstructure:"max_request_per_min"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

type Broker struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type Backtest struct {
	InitialCapital  float64 `mapstructure:"initial_capital"`
	MaxConcurrency  int     `mapstructure:"max_concurrency"`
	IncludeTAFFees  bool    `mapstructure:"include_taf_fees"`
	IncludeCATFees  bool    `mapstructure:"include_cat_fees"`
	LookbackPeriods int     `mapstructure:"lookback_periods"`
}

type PaperTrading struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	Duration           time.Duration `mapstructure:"duration"`
	CapitalPerTrade    float64       `mapstructure:"capital_per_trade"`
	MaxBuyingPowerFrac float64       `mapstructure:"max_buying_power_frac"`
	ExtendedHours      bool          `mapstructure:"extended_hours"`
}

type Validation struct {
	MaxIterations  int     `mapstructure:"max_iterations"`
	PriceTolerance float64 `mapstructure:"price_tolerance"`
}

type OrchestratorConfig struct {
	StageTimeout        time.Duration `mapstructure:"stage_timeout"`
	ValidationCron      string        `mapstructure:"validation_cron"`
	ReconcileWindowDays int           `mapstructure:"reconcile_window_days"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type Alert struct {
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
	MinLevel         string `mapstructure:"min_level"`
}

type Advisor struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func Load() (*Config, error) {
	// .env is optional; deployments usually rely on real environment variables.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")
	viper.SetDefault("backtest.initial_capital", 10000.0)
	viper.SetDefault("backtest.max_concurrency", 4)
	viper.SetDefault("backtest.lookback_periods", 20)
	viper.SetDefault("paper_trading.poll_interval", 5*time.Minute)
	viper.SetDefault("paper_trading.duration", 7*24*time.Hour)
	viper.SetDefault("paper_trading.capital_per_trade", 1000.0)
	viper.SetDefault("paper_trading.max_buying_power_frac", 0.05)
	viper.SetDefault("validation.max_iterations", 10)
	viper.SetDefault("validation.price_tolerance", 0.01)
	viper.SetDefault("orchestrator.stage_timeout", 30*time.Minute)
	viper.SetDefault("orchestrator.validation_cron", "*/30 * * * *")
	viper.SetDefault("orchestrator.reconcile_window_days", 7)
	viper.SetDefault("cache.default_expiration", 5*time.Minute)
	viper.SetDefault("cache.cleanup_interval", 10*time.Minute)
	viper.SetDefault("advisor.model", "gemini-2.0-flash")
}
