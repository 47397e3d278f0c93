// Package remote delivers fully-formed mutations to the backend's
// cloud-function endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fieldsync/internal/model"
	"fieldsync/pkg/logger"

	"go.uber.org/zap"
)

// APIError is a rejected submission. Status 0 means the response never
// arrived (transport error).
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("submission failed: %s", e.Message)
	}
	return fmt.Sprintf("submission rejected (%d %s): %s", e.Status, e.Code, e.Message)
}

// Retryable reports whether another attempt could plausibly succeed. The
// backend validates payloads, so a 4xx other than a timeout or throttle will
// keep being rejected and should park the item immediately.
func (e *APIError) Retryable() bool {
	if e.Status == 0 || e.Status >= 500 {
		return true
	}
	return e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
}

var endpointByKind = map[model.Kind]string{
	model.KindSheetSale:   "/submitSheetSale",
	model.KindExpense:     "/submitExpense",
	model.KindVisit:       "/logVisit",
	model.KindVisitUpdate: "/updateVisit",
}

// TokenSource supplies the bearer token for outgoing submissions. The token
// provider itself lives outside this module.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a long-lived device token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit delivers one mutation, routed by kind. Safe to call again for the
// same item across retries; deduplication is the backend's job.
func (c *Client) Submit(ctx context.Context, kind model.Kind, payload model.Payload) error {
	path, ok := endpointByKind[kind]
	if !ok {
		return &APIError{Status: http.StatusBadRequest, Code: "unknown-kind",
			Message: fmt.Sprintf("no endpoint for kind %q", kind)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &APIError{Status: http.StatusBadRequest, Code: "encode", Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &APIError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return &APIError{Message: fmt.Sprintf("token source: %v", err)}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		logger.Debug("submission accepted",
			zap.String("kind", string(kind)),
			zap.Int("status", resp.StatusCode))
		return nil
	}

	return decodeError(resp)
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Code: "rejected"}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		apiErr.Message = resp.Status
		return apiErr
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
		return apiErr
	}

	apiErr.Message = resp.Status
	return apiErr
}
