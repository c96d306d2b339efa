package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/msmtupload/internal/core"
	"github.com/JonMunkholm/msmtupload/internal/logging"
)

type submitRequest struct {
	// Rows holds row indexes from the batch; empty submits every row.
	Rows []int `json:"rows"`
}

// handleSubmit starts posting a batch and returns the submission ID.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	var req submitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, r, fmt.Errorf("invalid submit request: %w", err), http.StatusBadRequest)
		return
	}

	id, err := s.service.StartSubmission(r.Context(), batchID, req.Rows)
	if err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusInternalServerError))
		return
	}

	logging.WithFields(r.Context(), "submission_id", id, "batch_id", batchID).
		Info("submission started", "selected", len(req.Rows))
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"submission_id": id})
}

// handleSubmissionProgress streams progress via Server-Sent Events.
// Supports resumption via Last-Event-ID or the lastEventId query parameter.
func (s *Server) handleSubmissionProgress(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submissionID")

	// The event ID is the number of finished rows, so a reconnecting client
	// skips what it already saw.
	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	progressCh, err := s.service.SubscribeProgress(submissionID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// ResponseController reaches the Flusher through logging wrappers.
	flusher := http.NewResponseController(w)
	w.WriteHeader(http.StatusOK)
	if err := flusher.Flush(); err != nil {
		logging.FromContext(r.Context()).Warn("sse: streaming not supported", "error", err)
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed: submission finished or was cancelled
				// Listeners close just before the result is published.
				data := []byte("{}")
				if res, err := s.service.SubmissionResult(r.Context(), submissionID); err == nil && res != nil {
					data, _ = json.Marshal(summarize(res))
				}
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flusher.Flush()
				return
			}

			// Row status changes repeat the same count; only skip rows the
			// client already confirmed.
			if progress.DoneRows < lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.DoneRows, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// resultSummary is SubmissionResult without the per-row payload, for the
// SSE completion event.
type resultSummary struct {
	SubmissionID string `json:"submission_id"`
	BatchID      string `json:"batch_id"`
	Attempted    int    `json:"attempted"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	Cancelled    bool   `json:"cancelled"`
	DurationMS   int64  `json:"duration_ms"`
}

func summarize(res *core.SubmissionResult) resultSummary {
	return resultSummary{
		SubmissionID: res.SubmissionID,
		BatchID:      res.BatchID,
		Attempted:    res.Attempted,
		Succeeded:    res.Succeeded,
		Failed:       res.Failed,
		Skipped:      res.Skipped,
		Cancelled:    res.Cancelled,
		DurationMS:   res.Duration.Milliseconds(),
	}
}

// handleSubmissionResult returns the final result, or 202 with the current
// progress while the submission is still running. ?wait=true blocks until
// it finishes or the request times out.
func (s *Server) handleSubmissionResult(w http.ResponseWriter, r *http.Request) {
	submissionID := chi.URLParam(r, "submissionID")

	var (
		result *core.SubmissionResult
		err    error
	)
	if r.URL.Query().Get("wait") == "true" {
		result, err = s.service.SubmissionResult(r.Context(), submissionID)
	} else {
		result, err = s.service.CurrentResult(submissionID)
	}
	if err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusInternalServerError))
		return
	}

	if result == nil {
		progress, err := s.service.Progress(submissionID)
		if err != nil {
			s.respondError(w, r, err, statusFor(err, http.StatusInternalServerError))
			return
		}
		writeJSONStatus(w, http.StatusAccepted, progress)
		return
	}

	writeJSON(w, result)
}

// handleCancelSubmission stops a submission after its in-flight row.
func (s *Server) handleCancelSubmission(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelSubmission(chi.URLParam(r, "submissionID")); err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusInternalServerError))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"cancelling"}`))
}

func (s *Server) handleActiveSubmission(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Gate())
}
