package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
)

type Credentials struct {
	User     string
	Password string
}

// CredentialSource produces the current RPC credentials. It is asked again
// whenever the daemon rejects the ones in use.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

type StaticCredentials Credentials

func (s StaticCredentials) Credentials(ctx context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// EnvCredentials re-reads WALLET_RPC_USER/WALLET_RPC_PASSWORD on every call,
// so a rotated secret is picked up without a restart.
type EnvCredentials struct{}

func (EnvCredentials) Credentials(ctx context.Context) (Credentials, error) {
	c := struct {
		User     string `envconfig:"WALLET_RPC_USER" default:"user"`
		Password string `envconfig:"WALLET_RPC_PASSWORD"`
	}{}
	if err := envconfig.Process("", &c); err != nil {
		return Credentials{}, err
	}
	return Credentials{User: c.User, Password: c.Password}, nil
}

// FileCredentials reads rpcuser/rpcpassword from the daemon's own config
// file. Electron Cash rewrites the password there when it restarts.
type FileCredentials struct {
	Path string
}

func (f FileCredentials) Credentials(ctx context.Context) (Credentials, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading wallet credentials file: %w", err)
	}
	c := struct {
		User     string `json:"rpcuser"`
		Password string `json:"rpcpassword"`
	}{}
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credentials{}, fmt.Errorf("decoding wallet credentials file %s: %w", f.Path, err)
	}
	if c.Password == "" {
		return Credentials{}, fmt.Errorf("wallet credentials file %s has no rpcpassword", f.Path)
	}
	if c.User == "" {
		c.User = "user"
	}
	return Credentials{User: c.User, Password: c.Password}, nil
}

func NewCredentialSource(c *Config) CredentialSource {
	if c.WalletRPCCredentialsFile != "" {
		return FileCredentials{Path: c.WalletRPCCredentialsFile}
	}
	return EnvCredentials{}
}
