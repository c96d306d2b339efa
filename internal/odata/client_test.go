package odata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

// noSleep records retry waits without blocking.
func noSleep(waits *[]time.Duration) Option {
	return func(c *Client) {
		c.sleep = func(ctx context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			return ctx.Err()
		}
	}
}

func TestGetJSON_BearerAuth(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithBearerToken("secret-token-123"))
	if err := c.getJSON(context.Background(), srv.URL+"/x", &struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret-token-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestGetJSON_NoTokenNoAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if err := New(srv.URL).getJSON(context.Background(), srv.URL, &struct{}{}); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want none", gotAuth)
	}
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var waits []time.Duration
	c := New(srv.URL, noSleep(&waits))

	var dest struct{ OK bool }
	if err := c.getJSON(context.Background(), srv.URL, &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dest.OK || calls.Load() != 3 {
		t.Errorf("ok=%v calls=%d", dest.OK, calls.Load())
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Errorf("waits = %v, want [1s 2s]", waits)
	}
}

func TestGetJSON_RetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var waits []time.Duration
	c := New(srv.URL, noSleep(&waits))
	if err := c.getJSON(context.Background(), srv.URL, &struct{}{}); err != nil {
		t.Fatal(err)
	}
	if len(waits) != 1 || waits[0] != 7*time.Second {
		t.Errorf("waits = %v, want [7s]", waits)
	}
}

func TestGetJSON_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"maintenance"}}`))
	}))
	defer srv.Close()

	var waits []time.Duration
	c := New(srv.URL, noSleep(&waits))
	err := c.getJSON(context.Background(), srv.URL, &struct{}{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != 503 || apiErr.Error() != "HTTP 503 - maintenance" {
		t.Errorf("error = %v", apiErr)
	}
	if calls.Load() != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls.Load(), maxRetries+1)
	}
}

func TestGetJSON_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := New(srv.URL).getJSON(context.Background(), srv.URL, &struct{}{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGetJSON_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := New(srv.URL).getJSON(context.Background(), srv.URL, &struct{}{})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T %v", err, err)
	}
	if got := te.Error(); len(got) < 7 || got[:7] != "ERROR: " {
		t.Errorf("Error() = %q", got)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		err     *APIError
		want    time.Duration
	}{
		{1, nil, time.Second},
		{2, nil, 2 * time.Second},
		{3, nil, 4 * time.Second},
		{1, &APIError{StatusCode: 429, retryAfter: "3"}, 3 * time.Second},
		{1, &APIError{StatusCode: 429, retryAfter: "soon"}, time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt, tt.err); got != tt.want {
			t.Errorf("backoffDelay(%d, %+v) = %v, want %v", tt.attempt, tt.err, got, tt.want)
		}
	}
}

func TestNewAPIError_BodyStaysValidUTF8(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want string
	}{
		{
			name: "short",
			body: []byte("Målepunkt låst"),
			want: "Målepunkt låst",
		},
		{
			name: "cut inside a rune",
			body: []byte(strings.Repeat("a", maxErrorBody-1) + "ø tail"),
			want: strings.Repeat("a", maxErrorBody-1),
		},
		{
			name: "trailing partial rune",
			body: append([]byte("abc"), "ø"[0]),
			want: "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newAPIError(http.StatusBadRequest, tt.body).Body
			if !utf8.ValidString(got) {
				t.Fatalf("Body is not valid UTF-8: %q", got)
			}
			if got != tt.want {
				t.Errorf("Body = %q, want %q", got, tt.want)
			}
		})
	}
}
