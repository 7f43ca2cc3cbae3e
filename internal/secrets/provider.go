package secrets

import (
	"context"
	"fmt"

	"github.com/toxzak-svg/sentibridge/internal/config"
)

// Credentials bundles every secret the worker needs at startup.
type Credentials struct {
	TwitterBearerToken string
	DiscordBotToken    string
	TelegramBotToken   string
	OperatorPrivateKey string
}

// Provider retrieves worker credentials from a backing secrets store.
type Provider interface {
	GetCredentials(ctx context.Context) (Credentials, error)
}

// NewProvider selects a Provider per cfg.Secrets.Provider. Only
// "environment" is implemented; "aws" and "vault" are a documented
// extension point rather than a fabricated client, matching the pattern in
// original_source/workers/src/security/secrets_manager.py where remote
// providers are selected by the same factory but implemented separately.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Secrets.Provider {
	case "", "environment":
		return &EnvProvider{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("secrets provider %q is not implemented", cfg.Secrets.Provider)
	}
}

// EnvProvider reads credentials already loaded into Config from the
// process environment. Development-only, per spec: a remote provider
// (AWS Secrets Manager, Vault) is the production path.
type EnvProvider struct {
	cfg *config.Config
}

func (p *EnvProvider) GetCredentials(ctx context.Context) (Credentials, error) {
	return Credentials{
		TwitterBearerToken: p.cfg.Collectors.TwitterBearerToken,
		DiscordBotToken:    p.cfg.Collectors.DiscordBotToken,
		TelegramBotToken:   p.cfg.Collectors.TelegramBotToken,
		OperatorPrivateKey: p.cfg.Signer.OperatorPrivKey,
	}, nil
}
