package server

import (
	"net/http"
	"strings"

	"github.com/onnwee/chatwarden/config"
	"github.com/onnwee/chatwarden/db"
	"github.com/onnwee/chatwarden/telemetry"
)

type configOverride struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// HandleConfig returns the sanitized effective configuration on GET and
// stores a kv override (cfg: prefix) on PUT or POST. Overrides take effect
// on the next restart or Reconfigure.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getConfig(w, r)
	case http.MethodPut, http.MethodPost:
		h.setConfigOverride(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET, PUT, or POST only")
	}
}

func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	overrides := []configOverride{}
	rows, err := h.db.QueryContext(r.Context(), `SELECT key, value FROM kv WHERE key LIKE 'cfg:%' ORDER BY key`)
	if err == nil {
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var o configOverride
			if rows.Scan(&o.Key, &o.Value) == nil {
				o.Key = strings.TrimPrefix(o.Key, "cfg:")
				overrides = append(overrides, o)
			}
		}
	}

	// Secrets never leave the process.
	writeJSON(w, http.StatusOK, map[string]any{
		"bot_username":           cfg.BotUsername,
		"oauth_token_set":        cfg.OAuthToken != "",
		"client_id_set":          cfg.ClientID != "",
		"command_prefix":         cfg.CommandPrefix,
		"mod_commands_only":      cfg.ModCommandsOnly,
		"send_delay":             cfg.SendDelay.String(),
		"reconnect_max_attempts": cfg.ReconnectMaxAttempts,
		"health_interval":        cfg.HealthInterval.String(),
		"announce_enabled":       cfg.AnnounceEnabled,
		"announce_dedup_window":  cfg.AnnounceDedupWindow.String(),
		"relay_webhook_set":      cfg.RelayWebhookURL != "",
		"overrides":              overrides,
	})
}

func (h *Handlers) setConfigOverride(w http.ResponseWriter, r *http.Request) {
	var o configOverride
	if err := decodeJSON(r, &o); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o.Key = strings.TrimSpace(o.Key)
	if o.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if err := db.SetKV(r.Context(), h.db, "cfg:"+o.Key, o.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "storing override failed: "+err.Error())
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("config override stored", "key", o.Key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "key": o.Key})
}
