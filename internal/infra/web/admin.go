package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"paybridge/internal/domain/model"
	"paybridge/internal/infra/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOpsLogin exchanges the deployment API key for a short-lived session
// cookie, so config changes never carry the long-lived key per request.
func (s *Server) handleOpsLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sessions are not configured")
		return
	}
	if s.apiKey == "" {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "API disabled")
		return
	}

	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Key), []byte(s.apiKey)) != 1 {
		logging.Security(s.log).Str("remote", r.RemoteAddr).Msg("ops login rejected")
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "bad key")
		return
	}

	if _, err := s.auth.Mint(w); err != nil {
		s.log.Error().Err(err).Msg("minting ops session failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpsLogout(w http.ResponseWriter, r *http.Request) {
	if s.auth != nil {
		s.auth.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

type gatewayConfigView struct {
	TenantID  string            `json:"tenant_id"`
	Provider  string            `json:"provider"`
	Env       string            `json:"env"`
	Enabled   bool              `json:"enabled"`
	Priority  int               `json:"priority"`
	Fields    map[string]string `json:"fields,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// handleListConfigs returns the stored configs for one tenant. These rows
// never hold secrets, so echoing them as stored is safe.
func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "tenant query parameter is required")
		return
	}

	configs, err := s.configs.ListForTenant(r.Context(), tenantID, s.requestEnv(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]gatewayConfigView, 0, len(configs))
	for _, c := range configs {
		out = append(out, gatewayConfigView{
			TenantID:  c.TenantID,
			Provider:  string(c.Provider),
			Env:       string(c.Env),
			Enabled:   c.Enabled,
			Priority:  c.Priority,
			Fields:    c.Fields,
			UpdatedAt: c.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

type upsertConfigRequest struct {
	TenantID string            `json:"tenant_id"`
	Provider string            `json:"provider"`
	Env      string            `json:"env"`
	Enabled  bool              `json:"enabled"`
	Priority int               `json:"priority"`
	Fields   map[string]string `json:"fields"`
}

func (s *Server) handleUpsertConfig(w http.ResponseWriter, r *http.Request) {
	var req upsertConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "tenant_id is required")
		return
	}
	provider, ok := model.ParseProvider(req.Provider)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown provider")
		return
	}
	env := s.requestEnv(r)
	if req.Env != "" {
		env, ok = model.ParseEnvironment(req.Env)
		if !ok {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown environment")
			return
		}
	}

	now := time.Now()
	cfg := &model.GatewayConfig{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		Provider:  provider,
		Env:       env,
		Enabled:   req.Enabled,
		Priority:  req.Priority,
		Fields:    req.Fields,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.configs.Upsert(r.Context(), cfg); err != nil {
		s.writeDomainError(w, err)
		return
	}

	logging.Audit(s.log).
		Str("tenant_id", cfg.TenantID).
		Str("provider", string(cfg.Provider)).
		Str("env", string(cfg.Env)).
		Bool("enabled", cfg.Enabled).
		Msg("gateway config upserted")
	w.WriteHeader(http.StatusNoContent)
}

// handleConfigReload drops cached adapters so the next call rebuilds them
// from current configs and secrets. Needed after out-of-band secret rotation;
// API-driven config changes invalidate on their own.
func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if s.adapters != nil {
		s.adapters.ClearCache()
	}
	logging.Audit(s.log).Msg("adapter cache cleared")
	w.WriteHeader(http.StatusNoContent)
}
