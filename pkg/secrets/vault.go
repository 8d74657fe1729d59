package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"birthday-wall/backend/pkg/config"
	"birthday-wall/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

var (
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// kvReader is the slice of the Vault KV v2 API the manager uses
type kvReader interface {
	Get(ctx context.Context, path string) (*vault.KVSecret, error)
}

// VaultManager reads secrets from a Vault KV v2 mount and falls back to
// the environment for keys Vault does not hold
type VaultManager struct {
	kv       kvReader
	path     string
	fallback Manager
	log      *logger.Logger

	mu       sync.Mutex
	cache    map[string]string
	cachedAt time.Time
	cacheTTL time.Duration
}

// NewManager returns a VaultManager when Vault is enabled and an
// EnvManager otherwise
func NewManager(cfg *config.Config, log *logger.Logger) (Manager, error) {
	if !cfg.Vault.Enabled {
		return EnvManager{}, nil
	}
	return NewVaultManager(cfg, log)
}

// NewVaultManager connects to Vault using the configured address and token
func NewVaultManager(cfg *config.Config, log *logger.Logger) (*VaultManager, error) {
	if cfg.Vault.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if cfg.Vault.Token == "" {
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Vault.Address
	vaultConfig.Timeout = 10 * time.Second
	vaultConfig.MaxRetries = 3

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Vault.Token)
	if cfg.Vault.Namespace != "" {
		client.SetNamespace(cfg.Vault.Namespace)
	}

	return newVaultManager(client.KVv2("secret"), cfg.Vault.SecretsPath, log), nil
}

func newVaultManager(kv kvReader, path string, log *logger.Logger) *VaultManager {
	return &VaultManager{
		kv:       kv,
		path:     path,
		fallback: EnvManager{},
		log:      log.WithComponent("secrets"),
		cacheTTL: 5 * time.Minute,
	}
}

// GetSecret implements Manager
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	data, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if value, ok := data[key]; ok && value != "" {
		return value, nil
	}

	m.log.Debug("Secret not in Vault, falling back to environment", "key", key)
	return m.fallback.GetSecret(ctx, key)
}

// load reads the whole secret document once per cache window
func (m *VaultManager) load(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cache != nil && time.Since(m.cachedAt) < m.cacheTTL {
		return m.cache, nil
	}

	secret, err := m.kv.Get(ctx, m.path)
	if errors.Is(err, vault.ErrSecretNotFound) {
		m.cache, m.cachedAt = map[string]string{}, time.Now()
		return m.cache, nil
	}
	if err != nil {
		m.log.Error("Failed to read secret from Vault", "path", m.path, "error", err.Error())
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	data := make(map[string]string)
	if secret != nil {
		for k, v := range secret.Data {
			if s, ok := v.(string); ok {
				data[k] = s
			}
		}
	}
	m.cache, m.cachedAt = data, time.Now()
	return data, nil
}
