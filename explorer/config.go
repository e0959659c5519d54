package explorer

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	BLOCKCHAIR_PROVIDER = "blockchair"
	BTCCOM_PROVIDER     = "btccom"
)

type Config struct {
	ExplorerProviders     string  `envconfig:"EXPLORER_PROVIDERS" default:"blockchair,btccom"` // priority order, comma-separated
	ExplorerTimeout       int     `envconfig:"EXPLORER_TIMEOUT" default:"8" validate:"gte=1,lte=30"` // in seconds
	ExplorerRateLimit     float64 `envconfig:"EXPLORER_RATE_LIMIT" default:"1" validate:"gt=0"`      // requests per second per provider
	ExplorerRateBurst     int     `envconfig:"EXPLORER_RATE_BURST" default:"2" validate:"gte=1"`
	BlockchairURL         string  `envconfig:"BLOCKCHAIR_URL" default:"https://api.blockchair.com" validate:"url"`
	BlockchairAPIKey      string  `envconfig:"BLOCKCHAIR_API_KEY"`
	BTCComURL             string  `envconfig:"BTCCOM_URL" default:"https://bch-chain.api.btc.com" validate:"url"`
	StaleBalanceTolerance float64 `envconfig:"EXPLORER_STALE_BALANCE_TOLERANCE" default:"0.00001" validate:"gte=0"` // relative
}

func LoadConfig() (c *Config, err error) {
	c = &Config{}
	err = envconfig.Process("", c)
	if err != nil {
		return nil, err
	}
	err = validator.New().Struct(c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) ProviderNames() []string {
	names := []string{}
	for _, name := range strings.Split(c.ExplorerProviders, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
