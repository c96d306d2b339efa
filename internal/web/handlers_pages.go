package web

import (
	"net/http"

	"github.com/JonMunkholm/msmtupload/internal/core"
	"github.com/JonMunkholm/msmtupload/internal/logging"
	"github.com/JonMunkholm/msmtupload/internal/web/templates"
)

// handleIndex renders the upload page with the current log and layout.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	descending := logOrder(r)

	columns := core.DefaultColumns()
	if cs, err := s.service.ColumnSettings(); err == nil {
		if cols, err := cs.LoadWithRetry(r.Context()); err == nil {
			columns = cols
		} else {
			logging.FromContext(r.Context()).Warn("column settings unavailable, using defaults", "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.Index(templates.IndexParams{
		Columns:    columns,
		Logs:       s.service.Logs(descending),
		Gate:       s.service.Gate(),
		Descending: descending,
	}).Render(r.Context(), w)
}
