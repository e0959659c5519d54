package wallet

import (
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	ELECTRON_CASH_CLIENT_TYPE = "electroncash"
)

type Config struct {
	WalletClientType         string `envconfig:"WALLET_CLIENT_TYPE" default:"electroncash" validate:"oneof=electroncash"`
	WalletRPCURL             string `envconfig:"WALLET_RPC_URL" default:"http://127.0.0.1:7777" validate:"required,url"`
	WalletRPCUser            string `envconfig:"WALLET_RPC_USER" default:"user"`
	WalletRPCPassword        string `envconfig:"WALLET_RPC_PASSWORD"`
	WalletRPCCredentialsFile string `envconfig:"WALLET_RPC_CREDENTIALS_FILE"` // electron cash config file holding rpcuser/rpcpassword
	WalletRPCTimeout         int    `envconfig:"WALLET_RPC_TIMEOUT" default:"10" validate:"gte=1,lte=60"` // in seconds
	WalletRPCMaxAttempts     int    `envconfig:"WALLET_RPC_MAX_ATTEMPTS" default:"3" validate:"gte=1,lte=10"` // requests per call, credentials are regenerated between them
	WalletRPCMaxConcurrency  int64  `envconfig:"WALLET_RPC_MAX_CONCURRENCY" default:"4" validate:"gte=1"`
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
