package odata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JonMunkholm/msmtupload/internal/core"
)

func readingPayload() core.Payload {
	v := 42.0
	return core.Payload{
		MeasuringPoint:     "10001234",
		MsmtRdngDate:       "2025-09-22",
		MsmtRdngTime:       "08:00:00",
		MsmtRdngStatus:     "1",
		MeasurementReading: &v,
	}
}

func TestSubmit_FetchesTokenThenPosts(t *testing.T) {
	var (
		posted     map[string]any
		postToken  string
		postCookie string
		postAuth   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultCreatePath {
			t.Errorf("path = %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodGet:
			if r.Header.Get("X-CSRF-Token") != "Fetch" {
				t.Errorf("GET without fetch header")
			}
			http.SetCookie(w, &http.Cookie{Name: "sap-session", Value: "s1", Path: "/"})
			w.Header().Set("X-CSRF-Token", "tok-123")
			w.Write([]byte(`{"value":[]}`))
		case http.MethodPost:
			postToken = r.Header.Get("X-CSRF-Token")
			postAuth = r.Header.Get("Authorization")
			if c, err := r.Cookie("sap-session"); err == nil {
				postCookie = c.Value
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			json.NewDecoder(r.Body).Decode(&posted)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"MeasurementDocument":"000000123"}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithBearerToken("bearer"))
	res, err := c.Submit(context.Background(), readingPayload())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if res.DocumentID != "000000123" {
		t.Errorf("DocumentID = %q", res.DocumentID)
	}
	if postToken != "tok-123" || postCookie != "s1" || postAuth != "Bearer bearer" {
		t.Errorf("POST token=%q cookie=%q auth=%q", postToken, postCookie, postAuth)
	}
	if posted["MeasuringPoint"] != "10001234" || posted["MeasurementReading"] != 42.0 {
		t.Errorf("posted = %v", posted)
	}
	if _, ok := posted["MsmtCounterReadingDifference"]; ok {
		t.Error("unset difference must be omitted")
	}
}

func TestSubmit_NoTokenStillPosts(t *testing.T) {
	var posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
			if r.Header.Get("X-CSRF-Token") != "" {
				t.Error("unexpected token header")
			}
			w.Write([]byte(`{"MeasurementDocument":456}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL).Submit(context.Background(), readingPayload())
	if err != nil {
		t.Fatal(err)
	}
	if posts != 1 || res.DocumentID != "456" {
		t.Errorf("posts=%d doc=%q", posts, res.DocumentID)
	}
}

func TestSubmit_Rejected(t *testing.T) {
	var posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":"IMRC/101","message":"Measuring point 10001234 is locked"}}`))
			return
		}
		w.Header().Set("X-CSRF-Token", "t")
	}))
	defer srv.Close()

	_, err := New(srv.URL).Submit(context.Background(), readingPayload())
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "HTTP 500 - Measuring point 10001234 is locked" {
		t.Errorf("error = %q", err.Error())
	}
	if posts != 1 {
		t.Errorf("POST sent %d times, want exactly 1", posts)
	}
}

func TestSubmit_CSRFRefused(t *testing.T) {
	var posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
			return
		}
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("denied"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Submit(context.Background(), readingPayload())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T %v", err, err)
	}
	if err.Error() != "ERROR: CSRF GET failed HTTP 403 denied" {
		t.Errorf("error = %q", err.Error())
	}
	if posts != 0 {
		t.Errorf("POST sent after refused token fetch")
	}
}

func TestSubmit_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := New(srv.URL).Submit(context.Background(), readingPayload())
	if err == nil || !strings.HasPrefix(err.Error(), "ERROR: ") {
		t.Errorf("error = %v", err)
	}
	if core.MapError(err).Code != "LOOK001" {
		t.Errorf("mapped code = %s, want LOOK001", core.MapError(err).Code)
	}
}
