package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/msmtupload/internal/core"
)

// handleGetColumns returns the merged column layout. Without a preferences
// store the defaults are returned with persisted=false.
func (s *Server) handleGetColumns(w http.ResponseWriter, r *http.Request) {
	cs, err := s.service.ColumnSettings()
	if err != nil {
		writeJSON(w, map[string]any{"columns": core.DefaultColumns(), "persisted": false})
		return
	}

	cols, err := cs.LoadWithRetry(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{"columns": cols, "persisted": true})
}

func (s *Server) handleSaveColumns(w http.ResponseWriter, r *http.Request) {
	cs, err := s.service.ColumnSettings()
	if err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusServiceUnavailable))
		return
	}

	var cols []core.Column
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&cols); err != nil {
		s.respondError(w, r, fmt.Errorf("invalid column settings: %w", err), http.StatusBadRequest)
		return
	}

	saved, err := cs.Save(r.Context(), cols)
	if err != nil {
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{"columns": saved, "persisted": true})
}

func (s *Server) handleResetColumns(w http.ResponseWriter, r *http.Request) {
	cs, err := s.service.ColumnSettings()
	if err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusServiceUnavailable))
		return
	}

	cols, err := cs.Reset(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{"columns": cols, "persisted": true})
}
