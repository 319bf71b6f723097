package secrets

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/secrets"
)

var _ secrets.Source = (*EnvSource)(nil)

// EnvSource resolves secrets from environment variables named
// {APP}_{ENV}_{PROVIDER}_{FIELD}, e.g. PAYBRIDGE_LIVE_RAZORPAY_KEY_SECRET.
// A .env file is loaded once for local development; real deployments inject
// the variables directly.
type EnvSource struct {
	app   *viper.Viper
	appID string
	// prefixOverride maps a provider to a custom variable prefix for
	// deployments that carried their own naming before this convention.
	prefixOverride map[model.Provider]string
}

func NewEnvSource(appID string) *EnvSource {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	return &EnvSource{
		app:            v,
		appID:          strings.ToUpper(strings.TrimSpace(appID)),
		prefixOverride: make(map[model.Provider]string),
	}
}

// OverridePrefix substitutes the {APP}_{ENV}_{PROVIDER} prefix for one
// provider, keeping the _{FIELD} suffix convention.
func (s *EnvSource) OverridePrefix(p model.Provider, prefix string) {
	s.prefixOverride[p] = strings.ToUpper(strings.TrimSpace(prefix))
}

func (s *EnvSource) Lookup(provider model.Provider, env model.Environment, key string) (string, bool) {
	name := s.varName(provider, env, key)
	if !s.app.IsSet(name) {
		return "", false
	}
	val := s.app.GetString(name)
	if val == "" {
		return "", false
	}
	return val, true
}

func (s *EnvSource) varName(provider model.Provider, env model.Environment, key string) string {
	field := strings.ToUpper(strings.TrimSpace(key))
	if prefix, ok := s.prefixOverride[provider]; ok {
		return fmt.Sprintf("%s_%s", prefix, field)
	}
	return fmt.Sprintf("%s_%s_%s_%s",
		s.appID,
		strings.ToUpper(string(env)),
		strings.ToUpper(string(provider)),
		field,
	)
}
