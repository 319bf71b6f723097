//go:build !integration

package gateway

import (
	"io"

	"github.com/rs/zerolog"

	"paybridge/internal/domain/model"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func testConfig(provider model.Provider, fields map[string]string) *model.ResolvedConfig {
	return &model.ResolvedConfig{
		Provider: provider,
		Env:      model.EnvTest,
		TenantID: "merchant-a",
		Enabled:  true,
		Valid:    true,
		Fields:   fields,
	}
}
