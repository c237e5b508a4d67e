package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const (
	BotModePolling = "polling"
	BotModeWebhook = "webhook"

	EventsNone     = "none"
	EventsKafka    = "kafka"
	EventsRabbitMQ = "rabbitmq"
)

// Config - настройки процесса, читаются один раз при старте
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	DatabaseURL string

	BotToken string
	BotMode  string
	BotURL   string
	AdminIDs []int64

	RedisURL string

	PaymentAPIKey string

	EventsDriver string
	KafkaBrokers string
	KafkaTopic   string
	AMQPURL      string
	AMQPExchange string

	RefreshInterval time.Duration
	Currency        string
	SeedDemoData    bool

	Tunables *Tunables
}

// Load читает .env.<ENV> и .env (оба необязательны), затем окружение процесса
func Load() (*Config, error) {
	env := getenv("ENV", "dev")
	_ = godotenv.Load(".env." + env)
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv собирает Config через lookup вместо os.Getenv
func FromEnv(lookup func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Env:           get("ENV", "dev"),
		LogLevel:      get("LOG_LEVEL", "INFO"),
		HTTPAddr:      get("HTTP_ADDR", ":8080"),
		BotToken:      get("BOT_TOKEN", ""),
		BotMode:       strings.ToLower(get("BOT_MODE", BotModePolling)),
		BotURL:        get("BOT_URL", ""),
		RedisURL:      get("REDIS_URL", ""),
		PaymentAPIKey: get("PAYMENT_API_KEY", "test-key"),
		EventsDriver:  strings.ToLower(get("EVENTS_DRIVER", EventsNone)),
		KafkaBrokers:  get("KAFKA_BROKERS", ""),
		KafkaTopic:    get("KAFKA_TOPIC", "shop.orders"),
		AMQPURL:       get("AMQP_URL", ""),
		AMQPExchange:  get("AMQP_EXCHANGE", "shop.orders"),
		Currency:      get("CURRENCY", "¥"),
	}

	cfg.DatabaseURL = get("DATABASE_URL", "")
	if cfg.DatabaseURL == "" && lookup("DB_HOST") != "" {
		cfg.DatabaseURL = "host=" + lookup("DB_HOST") + " user=" + lookup("DB_USER") + " password=" + lookup("DB_PASSWORD") +
			" dbname=" + lookup("DB_NAME") + " port=" + get("DB_PORT", "5432") + " sslmode=disable"
	}

	ids, err := ParseAdminIDs(get("ADMIN_IDS", lookup("BOT_ADMINS")))
	if err != nil {
		return nil, err
	}
	cfg.AdminIDs = ids

	if cfg.RefreshInterval, err = time.ParseDuration(get("CONFIG_REFRESH_INTERVAL", "0s")); err != nil {
		return nil, fmt.Errorf("invalid CONFIG_REFRESH_INTERVAL: %w", err)
	}
	if cfg.SeedDemoData, err = strconv.ParseBool(get("SEED_DEMO_DATA", "false")); err != nil {
		return nil, fmt.Errorf("invalid SEED_DEMO_DATA: %w", err)
	}

	sandbox, err := strconv.ParseBool(get("PAYMENT_SANDBOX", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYMENT_SANDBOX: %w", err)
	}
	perPage, err := strconv.Atoi(get("ITEMS_PER_PAGE", "5"))
	if err != nil || perPage <= 0 {
		return nil, fmt.Errorf("invalid ITEMS_PER_PAGE: %q", lookup("ITEMS_PER_PAGE"))
	}
	level, err := NormalizeLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level
	cfg.Tunables = NewTunables(sandbox, get("PAYMENT_API_BASE", ""), perPage, level)

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL or DB_HOST is required"))
	}
	switch c.BotMode {
	case BotModePolling:
	case BotModeWebhook:
		if c.BotURL == "" {
			errs = append(errs, errors.New("BOT_URL is required in webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BOT_MODE %q", c.BotMode))
	}
	switch c.EventsDriver {
	case EventsNone:
	case EventsKafka:
		if c.KafkaBrokers == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for kafka events"))
		}
	case EventsRabbitMQ:
		if c.AMQPURL == "" {
			errs = append(errs, errors.New("AMQP_URL is required for rabbitmq events"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EVENTS_DRIVER %q", c.EventsDriver))
	}
	return errors.Join(errs...)
}

func (c *Config) IsAdminID(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// ParseAdminIDs разбирает список "1,2, 3"
func ParseAdminIDs(s string) ([]int64, error) {
	var ids []int64
	for _, idStr := range strings.Split(s, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", idStr, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NormalizeLevel приводит LOG_LEVEL (включая WARNING/CRITICAL) к уровням zap
func NormalizeLevel(level string) (string, error) {
	switch l := strings.ToUpper(strings.TrimSpace(level)); l {
	case "DEBUG", "INFO", "ERROR":
		return l, nil
	case "WARN", "WARNING":
		return "WARN", nil
	case "CRITICAL", "FATAL":
		return "ERROR", nil
	}
	return "", fmt.Errorf("invalid log level: %s", level)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Tunables - настройки, которые можно менять без перезапуска
type Tunables struct {
	mu             sync.RWMutex
	paymentSandbox bool
	paymentAPIBase string
	itemsPerPage   int
	logLevel       string
}

func NewTunables(sandbox bool, apiBase string, perPage int, level string) *Tunables {
	return &Tunables{paymentSandbox: sandbox, paymentAPIBase: apiBase, itemsPerPage: perPage, logLevel: level}
}

func (t *Tunables) PaymentSandbox() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paymentSandbox
}

func (t *Tunables) PaymentAPIBase() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paymentAPIBase
}

func (t *Tunables) ItemsPerPage() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.itemsPerPage
}

func (t *Tunables) LogLevel() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.logLevel
}

// Apply обновляет известные ключи и возвращает имена изменённых. Неизвестные ключи пропускаются.
func (t *Tunables) Apply(values map[string]any) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []string
	for key, raw := range values {
		switch strings.ToLower(key) {
		case "payment_sandbox":
			v, err := toBool(raw)
			if err != nil {
				return changed, fmt.Errorf("payment_sandbox: %w", err)
			}
			if v != t.paymentSandbox {
				t.paymentSandbox = v
				changed = append(changed, "payment_sandbox")
			}
		case "payment_api_base":
			v := fmt.Sprint(raw)
			if v != t.paymentAPIBase {
				t.paymentAPIBase = v
				changed = append(changed, "payment_api_base")
			}
		case "items_per_page":
			v, err := toInt(raw)
			if err != nil || v <= 0 {
				return changed, fmt.Errorf("items_per_page: invalid value %v", raw)
			}
			if v != t.itemsPerPage {
				t.itemsPerPage = v
				changed = append(changed, "items_per_page")
			}
		case "log_level":
			v, err := NormalizeLevel(fmt.Sprint(raw))
			if err != nil {
				return changed, err
			}
			if v != t.logLevel {
				t.logLevel = v
				changed = append(changed, "log_level")
			}
		}
	}
	return changed, nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	}
	return false, fmt.Errorf("not a bool: %v", v)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
