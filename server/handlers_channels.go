package server

import (
	"net/http"
	"strings"

	"github.com/onnwee/chatwarden/bot"
	"github.com/onnwee/chatwarden/telemetry"
)

// HandleChannels serves GET (list) and POST (upsert) on /channels.
func (h *Handlers) HandleChannels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.bot.Channels().All())
	case http.MethodPost:
		h.upsertChannel(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST only")
	}
}

// HandleChannelsDispatcher serves GET, PATCH, and DELETE on /channels/{name}.
func (h *Handlers) HandleChannelsDispatcher(w http.ResponseWriter, r *http.Request) {
	name := bot.NormalizeChannel(strings.TrimPrefix(r.URL.Path, "/channels/"))
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "unknown channel path")
		return
	}
	switch r.Method {
	case http.MethodGet:
		entry, ok := h.bot.Channels().Get(name)
		if !ok {
			writeError(w, http.StatusNotFound, "channel not registered")
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodPatch:
		h.patchChannel(w, r, name)
	case http.MethodDelete:
		h.deleteChannel(w, r, name)
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET, PATCH, or DELETE only")
	}
}

func (h *Handlers) upsertChannel(w http.ResponseWriter, r *http.Request) {
	entry := bot.DefaultChannelEntry("")
	if err := decodeJSON(r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry.Name = bot.NormalizeChannel(entry.Name)
	if entry.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	h.saveChannel(w, r, entry)
}

// patchChannel merges the request body over the existing entry, so callers
// can flip a single field without restating the rest.
func (h *Handlers) patchChannel(w http.ResponseWriter, r *http.Request, name string) {
	entry, ok := h.bot.Channels().Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "channel not registered")
		return
	}
	if err := decodeJSON(r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry.Name = name
	h.saveChannel(w, r, entry)
}

func (h *Handlers) saveChannel(w http.ResponseWriter, r *http.Request, entry bot.ChannelEntry) {
	_, err := h.db.ExecContext(r.Context(),
		`INSERT INTO channels (name, enabled, relay_sync, relay_channel_ref, live_enabled, live_message, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,NOW())
		 ON CONFLICT (name) DO UPDATE SET
		   enabled=EXCLUDED.enabled, relay_sync=EXCLUDED.relay_sync,
		   relay_channel_ref=EXCLUDED.relay_channel_ref,
		   live_enabled=EXCLUDED.live_enabled, live_message=EXCLUDED.live_message,
		   updated_at=NOW()`,
		entry.Name, entry.Enabled, entry.RelaySync, entry.RelayChannelRef, entry.LiveEnabled, entry.LiveMessage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persisting channel failed: "+err.Error())
		return
	}

	joinErr := h.bot.AddChannel(entry)
	telemetry.LoggerWithCorr(r.Context()).Info("channel upserted", "channel", entry.Name)
	resp := map[string]any{"channel": entry}
	if joinErr != nil {
		// Registered but not yet joined; reconciliation will retry.
		resp["warning"] = joinErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) deleteChannel(w http.ResponseWriter, r *http.Request, name string) {
	if _, err := h.db.ExecContext(r.Context(), `DELETE FROM channels WHERE name=$1`, name); err != nil {
		writeError(w, http.StatusInternalServerError, "deleting channel failed: "+err.Error())
		return
	}
	h.bot.RemoveChannel(name)
	telemetry.LoggerWithCorr(r.Context()).Info("channel removed", "channel", name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "channel": name})
}
