package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/onnwee/chatwarden/telemetry"
)

// HandleBotStart brings the connection up. Already-running is a conflict, a
// configuration or auth problem is a bad gateway to the chat network.
func (h *Handlers) HandleBotStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	// The session must outlive this request.
	if err := h.bot.Start(context.WithoutCancel(r.Context())); err != nil {
		if strings.Contains(err.Error(), "already running") {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.bot.Status())
}

// HandleBotStop tears the connection down. Idempotent.
func (h *Handlers) HandleBotStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	h.bot.Stop()
	writeJSON(w, http.StatusOK, h.bot.Status())
}

type sayRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// HandleSay queues an operator message for the paced sender.
func (h *Handlers) HandleSay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req sayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Channel == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "channel and text are required")
		return
	}
	if err := h.bot.Say(req.Channel, req.Text); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("operator message queued", "channel", req.Channel)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
