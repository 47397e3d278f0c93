package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"fieldsync/internal/model"
	"fieldsync/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

type recordedRequest struct {
	path string
	auth string
	body []byte
}

func newRecordingServer(status int, respBody string) (*httptest.Server, *[]recordedRequest) {
	var mu sync.Mutex
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			path: r.URL.Path,
			auth: r.Header.Get("Authorization"),
			body: body,
		})
		mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(respBody))
	}))
	return srv, &reqs
}

func TestSubmitRoutesByKind(t *testing.T) {
	tests := []struct {
		payload  model.Payload
		wantPath string
	}{
		{&model.SheetSale{Date: "2025-01-15", Catalog: "Fine Decor", SheetsCount: 12}, "/submitSheetSale"},
		{&model.Expense{RequestID: "r1", Date: "2025-01-15", Category: "fuel", Amount: 5}, "/submitExpense"},
		{&model.Visit{ShopName: "Decor World", Date: "2025-01-15"}, "/logVisit"},
		{&model.VisitUpdate{VisitID: "v1", Notes: "restocked"}, "/updateVisit"},
	}

	for _, tt := range tests {
		t.Run(string(tt.payload.Kind()), func(t *testing.T) {
			srv, reqs := newRecordingServer(http.StatusOK, `{}`)
			defer srv.Close()
			c := NewClient(srv.URL, StaticToken("device-token"))

			if err := c.Submit(context.Background(), tt.payload.Kind(), tt.payload); err != nil {
				t.Fatalf("Submit: %v", err)
			}
			got := (*reqs)[0]
			if got.path != tt.wantPath {
				t.Fatalf("path = %s, want %s", got.path, tt.wantPath)
			}
			if got.auth != "Bearer device-token" {
				t.Fatalf("auth header = %q", got.auth)
			}
			want, _ := json.Marshal(tt.payload)
			if string(got.body) != string(want) {
				t.Fatalf("body = %s, want %s", got.body, want)
			}
		})
	}
}

func TestSubmitUnknownKind(t *testing.T) {
	c := NewClient("http://backend.invalid", nil)
	err := c.Submit(context.Background(), model.Kind("invoice"), &model.SheetSale{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Retryable() {
		t.Fatal("unknown kind must not be retryable")
	}
}

func TestSubmitErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantMessage   string
	}{
		{"validation rejection", 400, `{"error":{"code":"bad-date","message":"date out of range"}}`, false, "date out of range"},
		{"throttled", 429, `{"error":{"code":"throttled","message":"slow down"}}`, true, "slow down"},
		{"server error", 500, `oops`, true, ""},
		{"gateway timeout", 504, ``, true, ""},
		{"request timeout", 408, ``, true, ""},
		{"forbidden", 403, ``, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newRecordingServer(tt.status, tt.body)
			defer srv.Close()
			c := NewClient(srv.URL, nil)

			err := c.Submit(context.Background(), model.KindExpense, &model.Expense{RequestID: "r1"})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want APIError", err)
			}
			if apiErr.Status != tt.status {
				t.Fatalf("status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.Retryable() != tt.wantRetryable {
				t.Fatalf("Retryable() = %v, want %v", apiErr.Retryable(), tt.wantRetryable)
			}
			if tt.wantMessage != "" && apiErr.Message != tt.wantMessage {
				t.Fatalf("message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
		})
	}
}

func TestSubmitTransportError(t *testing.T) {
	srv, _ := newRecordingServer(http.StatusOK, `{}`)
	srv.Close() // nothing listening anymore

	c := NewClient(srv.URL, nil)
	err := c.Submit(context.Background(), model.KindVisit, &model.Visit{ShopName: "A"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Status != 0 || !apiErr.Retryable() {
		t.Fatalf("transport error must be retryable, got %+v", apiErr)
	}
}
