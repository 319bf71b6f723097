package secrets

import "paybridge/internal/domain/model"

// Source resolves secret configuration material for a provider. Lookups are
// per (provider, environment) against keys like "key_secret" or
// "webhook_secret"; the concrete naming convention lives in the
// implementation.
type Source interface {
	// Lookup returns the secret value for key; ok is false when unset.
	Lookup(provider model.Provider, env model.Environment, key string) (value string, ok bool)
}
