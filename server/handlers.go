package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/onnwee/chatwarden/bot"
)

// Handlers carries the dependencies shared by all HTTP handlers.
type Handlers struct {
	db  *sql.DB
	bot *bot.Bot
}

func NewHandlers(db *sql.DB, b *bot.Bot) *Handlers {
	return &Handlers{db: db, bot: b}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
