package odata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JonMunkholm/msmtupload/internal/core"
)

const csrfHeader = "X-CSRF-Token"

// Submit creates one measurement document. It fetches a CSRF token with a
// GET on the create path, then POSTs the payload once.
//
// Failures come back as *TransportError ("ERROR: ...") when no reply was
// received or the token fetch was refused, and as *APIError
// ("HTTP <status> - <message>") when the POST was rejected.
func (c *Client) Submit(ctx context.Context, p core.Payload) (core.SubmitResult, error) {
	createURL := c.url(c.createPath, nil)

	token, err := c.fetchCSRFToken(ctx, createURL)
	if err != nil {
		return core.SubmitResult{}, err
	}

	body, err := json.Marshal(p)
	if err != nil {
		return core.SubmitResult{}, fmt.Errorf("encode payload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, createURL, bytes.NewReader(body))
	if err != nil {
		return core.SubmitResult{}, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(csrfHeader, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.SubmitResult{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.SubmitResult{}, &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.SubmitResult{}, newAPIError(resp.StatusCode, respBody)
	}

	return core.SubmitResult{DocumentID: documentID(respBody)}, nil
}

func (c *Client) fetchCSRFToken(ctx context.Context, createURL string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, createURL, nil)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set(csrfHeader, "Fetch")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		txt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &TransportError{Err: fmt.Errorf("CSRF GET failed HTTP %d %s", resp.StatusCode, strings.TrimSpace(string(txt)))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Header.Get(csrfHeader), nil
}

// documentID reads MeasurementDocument from a create reply. The field may
// be a string or a number; anything else yields "".
func documentID(body []byte) string {
	var reply struct {
		MeasurementDocument json.RawMessage `json:"MeasurementDocument"`
	}
	if json.Unmarshal(body, &reply) != nil || len(reply.MeasurementDocument) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(reply.MeasurementDocument, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(reply.MeasurementDocument, &n) == nil {
		return n.String()
	}
	return ""
}
