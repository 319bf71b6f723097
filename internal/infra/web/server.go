package web

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
	red "paybridge/internal/infra/redis"
	"paybridge/internal/usecase"
)

type ctxKey int

const ctxKeyTenant ctxKey = iota

// Server is the HTTP surface: webhook intake, the merchant API and the ops
// API. One instance serves all three; routing decides which guard applies.
type Server struct {
	payments usecase.PaymentUseCase
	webhooks usecase.WebhookUseCase
	configs  usecase.GatewayConfigUseCase
	adapters adapter.Factory

	apiKey     string
	auth       *AuthManager
	defaultEnv model.Environment
	maxBody    int64
	// limiter buckets webhook deliveries per provider and tenant; nil or a
	// zero webhookRPM disables the check.
	limiter    *red.RateLimiter
	webhookRPM int
	log        *zerolog.Logger

	srv *http.Server
}

func NewServer(
	payments usecase.PaymentUseCase,
	webhooks usecase.WebhookUseCase,
	configs usecase.GatewayConfigUseCase,
	adapters adapter.Factory,
	apiKey string,
	auth *AuthManager,
	defaultEnv model.Environment,
	maxBody int64,
	limiter *red.RateLimiter,
	webhookRPM int,
	logger *zerolog.Logger,
) *Server {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Server{
		payments:   payments,
		webhooks:   webhooks,
		configs:    configs,
		adapters:   adapters,
		apiKey:     apiKey,
		auth:       auth,
		defaultEnv: defaultEnv,
		maxBody:    maxBody,
		limiter:    limiter,
		webhookRPM: webhookRPM,
		log:        logger,
	}
}

// Routes builds the router. Webhooks stay outside both auth guards; the
// signature check inside the router is their authentication.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/webhooks/{provider}", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.merchantAuth)
			r.Post("/payments", s.handleCreatePayment)
			r.Get("/payments/{id}", s.handleGetPayment)
			r.Post("/payments/{id}/verify", s.handleVerifyPayment)
			r.Post("/payments/{id}/capture", s.handleCapturePayment)
			r.Post("/payments/{id}/refunds", s.handleCreateRefund)
			r.Get("/refunds/{id}", s.handleRefundStatus)
			r.Get("/providers", s.handleListProviders)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/auth/login", s.handleOpsLogin)
			r.Post("/auth/logout", s.handleOpsLogout)
			r.Group(func(r chi.Router) {
				r.Use(s.opsAuth)
				r.Get("/configs", s.handleListConfigs)
				r.Put("/configs", s.handleUpsertConfig)
				r.Post("/config/reload", s.handleConfigReload)
			})
		})
	})

	return r
}

func (s *Server) Start(port int, readTimeout, writeTimeout time.Duration) error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// merchantAuth guards the merchant API with the deployment API key. The
// tenant is declared per request via X-Tenant-ID; possession of the key
// authorizes every tenant this deployment serves.
func (s *Server) merchantAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("merchant API key is not configured")
			writeError(w, http.StatusForbidden, "FORBIDDEN", "API disabled")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "bad API key")
			return
		}
		tenant := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
		if tenant == "" {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "X-Tenant-ID header is required")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyTenant, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) opsAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sessions are not configured")
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return "", false
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func tenantFrom(ctx context.Context) string {
	t, _ := ctx.Value(ctxKeyTenant).(string)
	return t
}

// requestEnv picks the provider environment for a request: explicit query
// param or header first, otherwise the deployment default. Unparseable
// values fall back to the default rather than failing the call.
func (s *Server) requestEnv(r *http.Request) model.Environment {
	if raw := r.URL.Query().Get("env"); raw != "" {
		if env, ok := model.ParseEnvironment(raw); ok {
			return env
		}
	}
	if raw := r.Header.Get("X-Environment"); raw != "" {
		if env, ok := model.ParseEnvironment(raw); ok {
			return env
		}
	}
	return s.defaultEnv
}
