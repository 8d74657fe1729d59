// Package secrets resolves credentials (JWT signing key, store passwords)
// from Vault with a fallback to the process environment.
package secrets

import (
	"context"
	"errors"
	"os"
	"strings"

	"birthday-wall/backend/pkg/config"
)

// Well-known secret keys
const (
	KeyJWTSecret         = "jwt-secret"
	KeyRedisPassword     = "redis-password"
	KeyDatabasePassword  = "db-password"
	KeyAdminPasswordHash = "admin-password-hash"
)

// ErrSecretNotFound is returned when no source holds the key
var ErrSecretNotFound = errors.New("secret not found")

// Manager provides access to secrets
type Manager interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// EnvManager reads secrets from environment variables, turning
// "jwt-secret" into JWT_SECRET
type EnvManager struct{}

// GetSecret implements Manager
func (EnvManager) GetSecret(_ context.Context, key string) (string, error) {
	if value := os.Getenv(EnvKey(key)); value != "" {
		return value, nil
	}
	return "", ErrSecretNotFound
}

// EnvKey converts a kebab or dotted key into its environment variable name
func EnvKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// Apply overwrites credentials in cfg with values found in m. Keys the
// manager does not know keep their configured value.
func Apply(ctx context.Context, m Manager, cfg *config.Config) error {
	targets := map[string]*string{
		KeyJWTSecret:         &cfg.JWT.Secret,
		KeyRedisPassword:     &cfg.Redis.Password,
		KeyDatabasePassword:  &cfg.Database.Password,
		KeyAdminPasswordHash: &cfg.Admin.PasswordHash,
	}
	for key, dst := range targets {
		value, err := m.GetSecret(ctx, key)
		if errors.Is(err, ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		*dst = value
	}
	return nil
}
