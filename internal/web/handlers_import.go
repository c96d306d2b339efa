package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/msmtupload/internal/core"
	"github.com/JonMunkholm/msmtupload/internal/logging"
)

// handleImportFile parses an uploaded spreadsheet into a new batch.
func (s *Server) handleImportFile(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Submit.MaxFileSize
	// Multipart framing needs a little room beyond the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+64<<10)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, core.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFileProvided, err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, core.ErrNoFileProvided, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusBadRequest)
		return
	}

	batch, err := s.service.ImportFile(r.Context(), header.Filename, data)
	if err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusUnprocessableEntity))
		return
	}

	logging.WithFields(r.Context(), "batch_id", batch.ID).Info("file imported",
		"file_name", header.Filename,
		"bytes", len(data),
		"rows", len(batch.Rows),
	)
	writeJSON(w, batch)
}

// handleImportRows accepts rows that were parsed client-side, as a JSON
// array of header-keyed objects.
func (s *Server) handleImportRows(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Submit.MaxFileSize)

	var raw []core.RawRow
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, core.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("invalid rows: %w", err), http.StatusBadRequest)
		return
	}

	batch, err := s.service.ImportRows(r.Context(), raw)
	if err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusUnprocessableEntity))
		return
	}
	writeJSON(w, batch)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.service.Batch(chi.URLParam(r, "batchID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusInternalServerError))
		return
	}
	writeJSON(w, batch)
}

// handleTemplate serves the blank import workbook.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.Template(&buf); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, core.TemplateFileName))
	w.Write(buf.Bytes())
}
