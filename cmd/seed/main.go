package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"paybridge/internal/config"
	"paybridge/internal/domain/model"
	pg "paybridge/internal/infra/db/postgres"
	"paybridge/internal/infra/logging"
	"paybridge/internal/infra/secrets"
	"paybridge/internal/usecase"
)

// Seeds gateway_configs for a local tenant so the payment flow can be
// exercised end to end. Only non-secret fields land in the table; secrets
// stay in the environment, e.g. PAYBRIDGE_TEST_RAZORPAY_KEY_SECRET.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	tenantID := flag.String("tenant", "tenant-local", "tenant to seed")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	logger := logging.New(cfg.Log, true)
	configUC := usecase.NewGatewayConfigUseCase(
		pg.NewGatewayConfigRepo(pool),
		secrets.NewEnvSource(cfg.App),
		logger,
	)

	env := cfg.Env()

	// If configs already exist for the tenant, do nothing.
	existing, err := configUC.ListForTenant(ctx, *tenantID, env)
	if err != nil {
		log.Fatalf("list configs: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d configs already present for %s/%s. No changes.\n", len(existing), *tenantID, env)
		for _, c := range existing {
			fmt.Printf("  - %s (enabled=%t, priority=%d)\n", c.Provider, c.Enabled, c.Priority)
		}
		return
	}

	seed := []struct {
		Provider model.Provider
		Priority int
		Fields   map[string]string
	}{
		{model.ProviderRazorpay, 10, map[string]string{"key_id": "rzp_test_seeded"}},
		{model.ProviderPayU, 20, map[string]string{"merchant_key": "payu-test-key"}},
		{model.ProviderCashfree, 30, map[string]string{"app_id": "cf-test-app"}},
		{model.ProviderPhonePe, 40, map[string]string{"client_id": "pp-test-client", "client_version": "1"}},
		{model.ProviderNoop, 100, nil},
	}

	now := time.Now()
	for _, s := range seed {
		row := &model.GatewayConfig{
			ID:        uuid.NewString(),
			TenantID:  *tenantID,
			Provider:  s.Provider,
			Env:       env,
			Enabled:   true,
			Priority:  s.Priority,
			Fields:    s.Fields,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := configUC.Upsert(ctx, row); err != nil {
			log.Fatalf("seed %s: %v", s.Provider, err)
		}
		fmt.Printf("seeded: %s (tenant=%s, env=%s, priority=%d)\n", s.Provider, *tenantID, env, s.Priority)
	}

	fmt.Println("Seeding complete. Export provider secrets before creating payments.")
}
