package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"gapsentry/pkg/errors"
)

type Config struct {
	App           AppConfig
	Strategy      StrategyConfig
	Classifier    ClassifierConfig
	Exchange      ExchangeConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	ErrorTracking ErrorTrackingConfig
	Metrics       MetricsConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"gapsentry"`
	Env      string `envconfig:"APP_ENV" default:"development" validate:"oneof=development staging production test"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// StrategyConfig drives detection, gating and trade geometry
type StrategyConfig struct {
	Symbols           []string      `envconfig:"STRATEGY_SYMBOLS" default:"BTCUSDT,ETHUSDT" validate:"min=1,dive,required"`
	TradeSize         float64       `envconfig:"STRATEGY_TRADE_SIZE" default:"0.001" validate:"gt=0"`
	Cadence           time.Duration `envconfig:"STRATEGY_CADENCE" default:"60s" validate:"gt=0"`
	MAWindow          int           `envconfig:"STRATEGY_MA_WINDOW" default:"50" validate:"min=1"`
	RiskReward        float64       `envconfig:"STRATEGY_RISK_REWARD" default:"2.0" validate:"gt=0"`
	StopBufferTicks   float64       `envconfig:"STRATEGY_STOP_BUFFER_TICKS" default:"10" validate:"gte=0"`
	MaxSpreadTicks    float64       `envconfig:"STRATEGY_MAX_SPREAD_TICKS" default:"30" validate:"gte=0"`
	OneTradePerSymbol bool          `envconfig:"STRATEGY_ONE_TRADE_PER_SYMBOL" default:"true"`
	LiveTrading       bool          `envconfig:"STRATEGY_LIVE_TRADING" default:"false"`
	LookaheadBars     int           `envconfig:"STRATEGY_LOOKAHEAD_BARS" default:"50" validate:"min=1"`

	FineTimeframe   string `envconfig:"STRATEGY_TF_FINE" default:"5m" validate:"required"`
	MediumTimeframe string `envconfig:"STRATEGY_TF_MEDIUM" default:"15m" validate:"required"`
	CoarseTimeframe string `envconfig:"STRATEGY_TF_COARSE" default:"1h" validate:"required"`
	TrendTimeframe  string `envconfig:"STRATEGY_TF_TREND" default:"4h" validate:"required"`
	BarsPerFetch    int    `envconfig:"STRATEGY_BARS_PER_FETCH" default:"200" validate:"min=3,max=1500"`

	// Active session window in UTC hours, [start, end)
	SessionStartHour int `envconfig:"STRATEGY_SESSION_START_HOUR" default:"7" validate:"min=0,max=23"`
	SessionEndHour   int `envconfig:"STRATEGY_SESSION_END_HOUR" default:"20" validate:"min=0,max=24"`
}

// ClassifierConfig controls the online model and where its state lives
type ClassifierConfig struct {
	Enabled        bool    `envconfig:"CLASSIFIER_ENABLED" default:"true"`
	OnlineLearning bool    `envconfig:"CLASSIFIER_ONLINE_LEARNING" default:"true"`
	LearningRate   float64 `envconfig:"CLASSIFIER_LEARNING_RATE" default:"0.05" validate:"gt=0"`
	Threshold      float64 `envconfig:"CLASSIFIER_THRESHOLD" default:"0.55" validate:"gte=0,lte=1"`
	WarmupSamples  int64   `envconfig:"CLASSIFIER_WARMUP_SAMPLES" default:"20" validate:"gte=0"`

	Store         string `envconfig:"CLASSIFIER_STORE" default:"file" validate:"oneof=file redis postgres"`
	StoreLocation string `envconfig:"CLASSIFIER_STORE_LOCATION" default:"./data/classifier_state.json"`
	ModelName     string `envconfig:"CLASSIFIER_MODEL_NAME" default:"gap_classifier" validate:"required"`
}

type ExchangeConfig struct {
	Name              string `envconfig:"EXCHANGE_NAME" default:"binance" validate:"oneof=binance"`
	Market            string `envconfig:"EXCHANGE_MARKET" default:"linear_perp" validate:"oneof=spot linear_perp"`
	Testnet           bool   `envconfig:"EXCHANGE_TESTNET" default:"true"`
	APIKey            string `envconfig:"EXCHANGE_API_KEY"`
	Secret            string `envconfig:"EXCHANGE_SECRET"`
	RequestsPerMinute int    `envconfig:"EXCHANGE_REQUESTS_PER_MINUTE" default:"1200" validate:"gt=0"`
	OrdersPerMinute   int    `envconfig:"EXCHANGE_ORDERS_PER_MINUTE" default:"600" validate:"gt=0"`
	MaxRetries        int    `envconfig:"EXCHANGE_MAX_RETRIES" default:"3" validate:"gte=0"`
	BreakerEnabled    bool   `envconfig:"EXCHANGE_BREAKER_ENABLED" default:"true"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"gapsentry"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"5"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ClickHouseConfig configures the decision journal
type ClickHouseConfig struct {
	Enabled       bool          `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host          string        `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port          int           `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User          string        `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password      string        `envconfig:"CLICKHOUSE_PASSWORD"`
	Database      string        `envconfig:"CLICKHOUSE_DB" default:"gapsentry"`
	BatchSize     int           `envconfig:"CLICKHOUSE_BATCH_SIZE" default:"100" validate:"gt=0"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"10s" validate:"gt=0"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig configures decision event publishing
type KafkaConfig struct {
	Enabled          bool          `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers          []string      `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	DecisionsTopic   string        `envconfig:"KAFKA_DECISIONS_TOPIC" default:"gaps.decisions"`
	PersistenceTopic string        `envconfig:"KAFKA_PERSISTENCE_TOPIC" default:"classifier.persistence"`
	BatchTimeout     time.Duration `envconfig:"KAFKA_BATCH_TIMEOUT" default:"10ms"`
}

// TelegramConfig configures the human-facing report channel
type TelegramConfig struct {
	Enabled           bool    `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken          string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatIDs           []int64 `envconfig:"TELEGRAM_CHAT_IDS"`
	ReportNoSignal    bool    `envconfig:"TELEGRAM_REPORT_NO_SIGNAL" default:"false"`
	ReportPersistence bool    `envconfig:"TELEGRAM_REPORT_PERSISTENCE" default:"false"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry" validate:"oneof=sentry noop"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
}

// WorkerConfig contains background worker settings
type WorkerConfig struct {
	PollInterval      time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"1s" validate:"gt=0"`
	EvaluationTimeout time.Duration `envconfig:"WORKER_EVALUATION_TIMEOUT" default:"45s" validate:"gt=0"`
	ShutdownTimeout   time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`
}

var validate = validator.New()

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field ranges and the settings that depend on each other
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, describe(err))
	}

	var problems []string
	if c.Strategy.LiveTrading && (c.Exchange.APIKey == "" || c.Exchange.Secret == "") {
		problems = append(problems, "live trading requires EXCHANGE_API_KEY and EXCHANGE_SECRET")
	}
	if c.Classifier.Store == "file" && c.Classifier.StoreLocation == "" {
		problems = append(problems, "file classifier store requires CLASSIFIER_STORE_LOCATION")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka enabled without KAFKA_BROKERS")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || len(c.Telegram.ChatIDs) == 0) {
		problems = append(problems, "telegram enabled without TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_IDS")
	}
	if c.ErrorTracking.Enabled && c.ErrorTracking.Provider == "sentry" && c.ErrorTracking.SentryDSN == "" {
		problems = append(problems, "sentry error tracking requires SENTRY_DSN")
	}

	if len(problems) > 0 {
		return errors.Wrap(errors.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Namespace(), strings.ReplaceAll(fe.Param(), " ", ", ")))
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Namespace()))
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Namespace(), fe.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fe.Namespace(), fe.Param()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Namespace(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed validation: %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
