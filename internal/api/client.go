// Package api is the HTTP client for the TaskFlow REST API. It owns the two
// request/response concerns every call shares: bearer-token injection from the
// persisted session, and centralized error surfacing. Stores never emit error
// notifications themselves; this is the only place they come from.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskflow/internal/notify"
	"taskflow/internal/session"
)

// Client is a TaskFlow API client wrapping a fixed base address.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration

	// Session supplies the bearer token and is cleared on 401.
	Session *session.Store
	// Notify receives error notifications extracted from failed responses.
	Notify notify.Sink
	// OnUnauthorized runs after a 401 clears the session; the caller decides
	// what "navigate to login" means for its surface.
	OnUnauthorized func()
}

// New creates a client with sane defaults.
func New(baseURL string, sess *session.Store, sink notify.Sink) *Client {
	if sink == nil {
		sink = notify.Discard
	}
	timeout := 10 * time.Second
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		Session:    sess,
		Notify:     sink,
		Timeout:    timeout,
	}
}

// Error is the structured error payload the API returns on failure.
type Error struct {
	Timestamp        string            `json:"timestamp"`
	Status           int               `json:"status"`
	Kind             string            `json:"error"`
	Message          string            `json:"message"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error: status=%d message=%s", e.Status, e.Message)
}

// genericError synthesizes the fallback payload used when an error response
// carries no parseable body.
func genericError() *Error {
	return &Error{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    http.StatusInternalServerError,
		Kind:      "Internal Server Error",
		Message:   "An unexpected error occurred",
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	// Stores share one client and issue overlapping calls; do must not write
	// any Client field.
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Session != nil {
		if token := c.Session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// handleErrorResponse implements the response interceptor: a 401 tears down
// the session and hands control to OnUnauthorized, any other failure is
// surfaced through the notification channel. The error is always propagated
// to the caller afterwards.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		if c.Session != nil {
			_ = c.Session.Clear()
		}
		if c.OnUnauthorized != nil {
			c.OnUnauthorized()
		}
		return &Error{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Status:    http.StatusUnauthorized,
			Kind:      "Unauthorized",
			Message:   "authentication required",
		}
	}

	apiErr := genericError()
	if data, err := io.ReadAll(resp.Body); err == nil && len(data) > 0 {
		var parsed Error
		if json.Unmarshal(data, &parsed) == nil && (parsed.Message != "" || len(parsed.ValidationErrors) > 0) {
			apiErr = &parsed
		}
	}
	if len(apiErr.ValidationErrors) > 0 {
		for _, msg := range apiErr.ValidationErrors {
			c.Notify.Notify(notify.Notification{Level: notify.Error, Message: msg})
		}
	} else {
		c.Notify.Notify(notify.Notification{Level: notify.Error, Message: apiErr.Message})
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
