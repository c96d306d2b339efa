package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleMeasuringPoint(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "pointID"))

	info, err := s.service.MeasuringPoint(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusBadGateway))
		return
	}
	if !info.Found {
		writeJSONStatus(w, http.StatusNotFound, info)
		return
	}
	writeJSON(w, info)
}

type latestReadingResponse struct {
	MeasuringPoint string   `json:"measuring_point"`
	Reading        *float64 `json:"reading"`
	Found          bool     `json:"found"`
}

func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "pointID"))

	value, ok, err := s.service.LatestReading(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, statusFor(err, http.StatusBadGateway))
		return
	}

	resp := latestReadingResponse{MeasuringPoint: id, Found: ok}
	if ok {
		resp.Reading = &value
	}
	writeJSON(w, resp)
}
