package service

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	SentryDSN              string  `envconfig:"SENTRY_DSN"`
	SentryTracesSampleRate float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE"`
	DatadogAgentUrl        string  `envconfig:"DATADOG_AGENT_URL"`
	LogFilePath            string  `envconfig:"LOG_FILE_PATH"`

	InvoiceTTL                int   `envconfig:"INVOICE_TTL" default:"3600" validate:"gte=60"`        // in seconds
	InvoiceExpiryGrace        int   `envconfig:"INVOICE_EXPIRY_GRACE" default:"0" validate:"gte=0"`   // in seconds
	MinConfirmations          int64 `envconfig:"MIN_CONFIRMATIONS" default:"1" validate:"gte=1"`
	AddressAllocationAttempts int   `envconfig:"ADDRESS_ALLOCATION_ATTEMPTS" default:"3" validate:"gte=1"`

	ZeroConfEnabled          bool    `envconfig:"ZERO_CONF_ENABLED" default:"true"`
	ZeroConfMinFeePercent    float64 `envconfig:"ZERO_CONF_MIN_FEE_PERCENT" default:"50" validate:"gte=0,lte=100"`
	MinRelayFeeRate          float64 `envconfig:"MIN_RELAY_FEE_RATE" default:"1.0" validate:"gte=0"` // sat/byte
	ZeroConfDoubleSpendCheck bool    `envconfig:"ZERO_CONF_DOUBLE_SPEND_CHECK" default:"true"`

	ReconcileInterval       int `envconfig:"RECONCILE_INTERVAL" default:"30" validate:"gte=1"`       // in seconds
	ReconcileConcurrency    int `envconfig:"RECONCILE_CONCURRENCY" default:"4" validate:"gte=1,lte=64"`
	ReconcileInvoiceTimeout int `envconfig:"RECONCILE_INVOICE_TIMEOUT" default:"60" validate:"gte=1"` // in seconds

	WalletTransientRetries uint64 `envconfig:"WALLET_TRANSIENT_RETRIES" default:"2"`
	WalletRetryInterval    int    `envconfig:"WALLET_RETRY_INTERVAL" default:"500" validate:"gte=1"` // in milliseconds

	ForwardPayments  bool            `envconfig:"FORWARD_PAYMENTS" default:"false"`
	PayoutAddress    string          `envconfig:"PAYOUT_WALLET" validate:"required_if=ForwardPayments true"`
	MinPayoutAmount  decimal.Decimal `envconfig:"MIN_PAYOUT_AMOUNT" default:"0.01"`   // in BCH
	PayoutFeeReserve decimal.Decimal `envconfig:"PAYOUT_FEE_RESERVE" default:"0.00001"` // in BCH, kept back for the network fee

	EnablePrometheus bool   `envconfig:"ENABLE_PROMETHEUS" default:"false"`
	PrometheusPort   int    `envconfig:"PROMETHEUS_PORT" default:"9092"`
	WebhookUrl       string `envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
	WebhookRetries   uint64 `envconfig:"WEBHOOK_RETRIES" default:"3"`
	RedisUrl         string `envconfig:"REDIS_URL"`

	RabbitMQUri                        string `envconfig:"RABBITMQ_URI"`
	RabbitMQInvoiceExchange            string `envconfig:"RABBITMQ_INVOICE_EXCHANGE" default:"bchhub_invoice"`
	RabbitMQReconcileExchange          string `envconfig:"RABBITMQ_RECONCILE_EXCHANGE" default:"bchhub_reconcile"`
	RabbitMQReconcileConsumerQueueName string `envconfig:"RABBITMQ_RECONCILE_CONSUMER_QUEUE_NAME" default:"bchhub_reconcile_consumer"`
}

func LoadConfig() (*Config, error) {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) invoiceTTL() time.Duration {
	return time.Duration(c.InvoiceTTL) * time.Second
}

func (c *Config) expiryGrace() time.Duration {
	return time.Duration(c.InvoiceExpiryGrace) * time.Second
}

func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries:         c.WalletTransientRetries,
		InitialInterval: time.Duration(c.WalletRetryInterval) * time.Millisecond,
	}
}
