package web

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/msmtupload/internal/core"
	"github.com/JonMunkholm/msmtupload/internal/web/templates"
)

// logOrder reads ?order=asc|desc; ascending (FAILED first) is the default.
func logOrder(r *http.Request) bool {
	return r.URL.Query().Get("order") == "desc"
}

// handleLogs returns the outcome log sorted by severity, as JSON or as the
// log table fragment for HTMX.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	descending := logOrder(r)
	entries := s.service.Logs(descending)

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		templates.LogTable(entries, descending).Render(r.Context(), w)
		return
	}
	writeJSON(w, map[string]any{
		"order":   orderName(descending),
		"entries": entries,
	})
}

func orderName(descending bool) string {
	if descending {
		return "desc"
	}
	return "asc"
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	s.service.ClearLogs()
	w.WriteHeader(http.StatusNoContent)
}

// handleExportLogs downloads the outcome log as CSV.
func (s *Server) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.service.Logs(logOrder(r))

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("upload_log_%s.csv", timestamp)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	csvWriter := csv.NewWriter(w)
	csvWriter.Write([]string{"Equipment", "Value", "Message", "State", "Timestamp"})
	for _, e := range entries {
		csvWriter.Write([]string{
			e.Equipment,
			csvValue(e.Value),
			e.ErrorText,
			string(e.State),
			e.Timestamp.Format(time.RFC3339),
		})
	}
	csvWriter.Flush()
}

func csvValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// handleHistory returns archived entries across restarts, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 100)
	if limit > 1000 {
		limit = 1000
	}

	entries, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadGateway)
		return
	}
	if entries == nil {
		entries = []core.ArchivedEntry{}
	}
	writeJSON(w, map[string]any{"entries": entries})
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
