package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config stores all configuration of the order form service.
// The values are read by viper from app.env or environment variables.
type Config struct {
	AppName  string `mapstructure:"APP_NAME"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// PostgreSQL configuration
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSL_MODE"`

	// RabbitMQ configuration. An empty RABBITMQ_URL disables the event bus.
	RabbitMQURL            string        `mapstructure:"RABBITMQ_URL"`
	IncomingExchangeName   string        `mapstructure:"INCOMING_EXCHANGE_NAME"`
	IncomingExchangeType   string        `mapstructure:"INCOMING_EXCHANGE_TYPE"`
	IncomingQueueName      string        `mapstructure:"INCOMING_QUEUE_NAME"`
	IncomingRoutingKey     string        `mapstructure:"INCOMING_ROUTING_KEY"`
	OutgoingExchangeName   string        `mapstructure:"OUTGOING_EXCHANGE_NAME"`
	OutgoingExchangeType   string        `mapstructure:"OUTGOING_EXCHANGE_TYPE"`
	OutgoingTopic          string        `mapstructure:"OUTGOING_TOPIC"`
	ConsumerTag            string        `mapstructure:"CONSUMER_TAG"`
	ReconnectDelay         time.Duration `mapstructure:"RECONNECT_DELAY"`
	MaxReconnectAttempts   int           `mapstructure:"MAX_RECONNECT_ATTEMPTS"`
	RabbitMQPrefetchCount  int           `mapstructure:"RABBITMQ_PREFETCH_COUNT"`
	DLXName                string        `mapstructure:"DLX_NAME"`
	DLQRoutingKey          string        `mapstructure:"DLQ_ROUTING_KEY"`
	ParkingLotExchangeName string        `mapstructure:"PARKING_LOT_EXCHANGE_NAME"`
	ParkingLotQueueName    string        `mapstructure:"PARKING_LOT_QUEUE_NAME"`
	ParkingLotRoutingKey   string        `mapstructure:"PARKING_LOT_ROUTING_KEY"`
	MaxProcessingRetries   int           `mapstructure:"MAX_PROCESSING_RETRIES"`

	// Catalog cache. An empty REDIS_URL disables caching.
	RedisURL        string        `mapstructure:"REDIS_URL"`
	CatalogCacheTTL time.Duration `mapstructure:"CATALOG_CACHE_TTL"`

	// Mail
	SMTPHost          string `mapstructure:"SMTP_HOST"`
	SMTPPort          int    `mapstructure:"SMTP_PORT"`
	SMTPUser          string `mapstructure:"SMTP_USER"`
	SMTPPassword      string `mapstructure:"SMTP_PASSWORD"`
	MailFromEmail     string `mapstructure:"MAIL_FROM_EMAIL"`
	MailFromName      string `mapstructure:"MAIL_FROM_NAME"`
	ShopOperatorEmail string `mapstructure:"SHOP_OPERATOR_EMAIL"`

	// Order form
	Language           string `mapstructure:"LANGUAGE"`
	CurrencySuffix     string `mapstructure:"CURRENCY_SUFFIX"`
	CustomerFields     string `mapstructure:"CUSTOMER_FIELDS"` // e.g. "name:required,email:required,phone"
	CustomerEmailField string `mapstructure:"CUSTOMER_EMAIL_FIELD"`
}

// FieldSpec is one customer text field of the order form.
type FieldSpec struct {
	Name     string
	Required bool
}

// ParseCustomerFields turns CUSTOMER_FIELDS into field specs, keeping the configured order.
func (c Config) ParseCustomerFields() ([]FieldSpec, error) {
	var fields []FieldSpec
	for _, raw := range strings.Split(c.CustomerFields, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, flag, hasFlag := strings.Cut(raw, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("customer field %q has no name", raw)
		}
		spec := FieldSpec{Name: name}
		if hasFlag {
			switch strings.ToLower(strings.TrimSpace(flag)) {
			case "required":
				spec.Required = true
			case "optional", "":
			default:
				return nil, fmt.Errorf("customer field %q: unknown flag %q", name, flag)
			}
		}
		fields = append(fields, spec)
	}
	return fields, nil
}

// FieldNames lists the field names in their configured order.
func FieldNames(fields []FieldSpec) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// CustomerFieldNames is ParseCustomerFields reduced to the field names.
func (c Config) CustomerFieldNames() ([]string, error) {
	fields, err := c.ParseCustomerFields()
	if err != nil {
		return nil, err
	}
	return FieldNames(fields), nil
}

// DSN builds the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_NAME", "orderform")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "orderform")
	v.SetDefault("DB_PASSWORD", "orderform")
	v.SetDefault("DB_NAME", "orderform")
	v.SetDefault("DB_SSL_MODE", "disable")

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("INCOMING_EXCHANGE_NAME", "events.inventory")
	v.SetDefault("INCOMING_EXCHANGE_TYPE", "topic")
	v.SetDefault("INCOMING_QUEUE_NAME", "orderform_stock_queue")
	v.SetDefault("INCOMING_ROUTING_KEY", "stock.received")
	v.SetDefault("OUTGOING_EXCHANGE_NAME", "events.orders")
	v.SetDefault("OUTGOING_EXCHANGE_TYPE", "topic")
	v.SetDefault("OUTGOING_TOPIC", "order.placed")
	v.SetDefault("CONSUMER_TAG", "orderform-stock-consumer")
	v.SetDefault("RECONNECT_DELAY", 5*time.Second)
	v.SetDefault("MAX_RECONNECT_ATTEMPTS", 5)
	v.SetDefault("RABBITMQ_PREFETCH_COUNT", 10)
	v.SetDefault("DLX_NAME", "dlx.orderform")
	v.SetDefault("DLQ_ROUTING_KEY", "dlq.orderform_stock_queue")
	v.SetDefault("PARKING_LOT_EXCHANGE_NAME", "parking_lot.orderform")
	v.SetDefault("PARKING_LOT_QUEUE_NAME", "parking_lot_orderform_queue")
	v.SetDefault("PARKING_LOT_ROUTING_KEY", "parking_lot.orderform_queue")
	v.SetDefault("MAX_PROCESSING_RETRIES", 3)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("CATALOG_CACHE_TTL", 30*time.Second)

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 25)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("MAIL_FROM_EMAIL", "shop@example.com")
	v.SetDefault("MAIL_FROM_NAME", "Shop")
	v.SetDefault("SHOP_OPERATOR_EMAIL", "orders@example.com")

	v.SetDefault("LANGUAGE", "de")
	v.SetDefault("CURRENCY_SUFFIX", "€")
	v.SetDefault("CUSTOMER_FIELDS", "name:required,email:required,street:required,city:required,phone,comment")
	v.SetDefault("CUSTOMER_EMAIL_FIELD", "email")

	if err = v.ReadInConfig(); err == nil {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Using config file")
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		log.Info().Msg("No config file found, using environment variables and defaults.")
	} else {
		log.Error().Err(err).Msg("Error reading config file")
		return config, fmt.Errorf("reading config file: %w", err)
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decoding config: %w", err)
	}
	// viper skips empty variables; an exported empty SMTP_HOST selects the logging mail sender.
	if host, ok := os.LookupEnv("SMTP_HOST"); ok && host == "" {
		config.SMTPHost = ""
	}

	if _, err = config.ParseCustomerFields(); err != nil {
		return config, err
	}
	return config, nil
}
