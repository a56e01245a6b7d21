package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/chatwarden/telemetry"
)

type commandRequest struct {
	Name            string            `json:"name"`
	Response        string            `json:"response"`
	CooldownSeconds int               `json:"cooldown_seconds"`
	ModeratorOnly   bool              `json:"moderator_only"`
	VIPOnly         bool              `json:"vip_only"`
	SubscriberOnly  bool              `json:"subscriber_only"`
	Channel         string            `json:"channel,omitempty"`
	RelaySync       bool              `json:"relay_sync"`
	Variables       map[string]string `json:"variables,omitempty"`
	Enabled         *bool             `json:"enabled,omitempty"`
}

type commandResponse struct {
	Name            string `json:"name"`
	Response        string `json:"response"`
	CooldownSeconds int    `json:"cooldown_seconds"`
	ModeratorOnly   bool   `json:"moderator_only"`
	VIPOnly         bool   `json:"vip_only"`
	SubscriberOnly  bool   `json:"subscriber_only"`
	Channel         string `json:"channel,omitempty"`
	RelaySync       bool   `json:"relay_sync"`
	Uses            int64  `json:"uses"`
}

// HandleCommands serves GET (list loaded commands) and POST (upsert) on
// /commands. An upsert persists to the datastore and reloads the registry, so
// the change is live immediately.
func (h *Handlers) HandleCommands(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		out := make([]commandResponse, 0)
		for _, name := range h.bot.Commands().Names() {
			if cc, ok := h.bot.Commands().Lookup(name); ok {
				out = append(out, commandResponse{
					Name:            cc.Name,
					Response:        cc.Response,
					CooldownSeconds: int(cc.Cooldown / time.Second),
					ModeratorOnly:   cc.ModeratorOnly,
					VIPOnly:         cc.VIPOnly,
					SubscriberOnly:  cc.SubscriberOnly,
					Channel:         cc.Channel,
					RelaySync:       cc.RelaySync,
					Uses:            cc.Uses,
				})
			}
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		h.upsertCommand(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST only")
	}
}

// HandleCommandsDispatcher serves DELETE on /commands/{name}.
func (h *Handlers) HandleCommandsDispatcher(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/commands/"))
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "unknown command path")
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "DELETE only")
		return
	}
	if _, err := h.db.ExecContext(r.Context(), `DELETE FROM custom_commands WHERE name=$1`, name); err != nil {
		writeError(w, http.StatusInternalServerError, "deleting command failed: "+err.Error())
		return
	}
	if err := h.bot.ReloadCommands(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "reload after delete failed: "+err.Error())
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("custom command removed", "command", name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "command": name})
}

func (h *Handlers) upsertCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.ToLower(strings.TrimSpace(req.Name))
	if req.Name == "" || req.Response == "" {
		writeError(w, http.StatusBadRequest, "name and response are required")
		return
	}
	if req.CooldownSeconds < 0 {
		writeError(w, http.StatusBadRequest, "cooldown_seconds must not be negative")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	varsJSON := "{}"
	if len(req.Variables) > 0 {
		raw, err := json.Marshal(req.Variables)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid variables: "+err.Error())
			return
		}
		varsJSON = string(raw)
	}

	_, err := h.db.ExecContext(r.Context(),
		`INSERT INTO custom_commands (name, response, cooldown_seconds, moderator_only, vip_only, subscriber_only, channel, relay_sync, variables, enabled, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		 ON CONFLICT (name) DO UPDATE SET
		   response=EXCLUDED.response, cooldown_seconds=EXCLUDED.cooldown_seconds,
		   moderator_only=EXCLUDED.moderator_only, vip_only=EXCLUDED.vip_only,
		   subscriber_only=EXCLUDED.subscriber_only, channel=EXCLUDED.channel,
		   relay_sync=EXCLUDED.relay_sync, variables=EXCLUDED.variables,
		   enabled=EXCLUDED.enabled, updated_at=NOW()`,
		req.Name, req.Response, req.CooldownSeconds, req.ModeratorOnly, req.VIPOnly,
		req.SubscriberOnly, strings.ToLower(req.Channel), req.RelaySync, varsJSON, enabled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persisting command failed: "+err.Error())
		return
	}

	if err := h.bot.ReloadCommands(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "reload after upsert failed: "+err.Error())
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("custom command upserted", "command", req.Name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "command": req.Name})
}
