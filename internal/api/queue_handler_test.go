package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fieldsync/internal/middleware"
	"fieldsync/internal/model"
	"fieldsync/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.InitLogger("test")
}

var testSecret = []byte("test-secret")

type stubQueueService struct {
	items      []*model.QueueItem
	enqueued   []model.Payload
	owner      string
	retried    []string
	removed    []string
	retriedAll bool
	synced     bool
}

func (s *stubQueueService) Enqueue(payload model.Payload, ownerID, localAttachmentPath string) string {
	s.enqueued = append(s.enqueued, payload)
	s.owner = ownerID
	return model.NewItemID(payload.Kind())
}

func (s *stubQueueService) GetQueue() []*model.QueueItem { return s.items }
func (s *stubQueueService) GetPendingCount() int         { return 2 }
func (s *stubQueueService) GetFailedCount() int          { return 1 }
func (s *stubQueueService) IsPendingSync(id string) bool { return id == "known" }
func (s *stubQueueService) RetryItem(id string)          { s.retried = append(s.retried, id) }
func (s *stubQueueService) RetryAllFailed()              { s.retriedAll = true }
func (s *stubQueueService) RemoveItem(id string)         { s.removed = append(s.removed, id) }
func (s *stubQueueService) TriggerSync()                 { s.synced = true }

func signToken(t *testing.T, ownerID string) string {
	t.Helper()
	claims := middleware.OwnerClaims{
		OwnerID: ownerID,
		Name:    "Test Rep",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEnqueueEndpoint(t *testing.T) {
	svc := &stubQueueService{}
	r := RegisterRoutes(NewQueueHandler(svc), testSecret)
	token := signToken(t, "rep-7")

	body := `{"kind":"sheet-sale","payload":{"date":"2025-01-15","catalog":"Fine Decor","sheetsCount":12}}`
	w := doRequest(t, r, http.MethodPost, "/v1/queue", body, token)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.ID == "" {
		t.Fatalf("response = %s", w.Body.String())
	}
	if len(svc.enqueued) != 1 {
		t.Fatalf("enqueued %d payloads, want 1", len(svc.enqueued))
	}
	sale, ok := svc.enqueued[0].(*model.SheetSale)
	if !ok || sale.SheetsCount != 12 {
		t.Fatalf("enqueued payload = %+v", svc.enqueued[0])
	}
	if svc.owner != "rep-7" {
		t.Fatalf("ownerId = %q, want rep-7 from token", svc.owner)
	}
}

func TestEnqueueRejectsBadPayload(t *testing.T) {
	svc := &stubQueueService{}
	r := RegisterRoutes(NewQueueHandler(svc), testSecret)
	token := signToken(t, "rep-7")

	w := doRequest(t, r, http.MethodPost, "/v1/queue", `{"kind":"invoice","payload":{}}`, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(svc.enqueued) != 0 {
		t.Fatal("invalid kind reached the engine")
	}
}

func TestEnqueueRejectsAttachmentForPlainKind(t *testing.T) {
	svc := &stubQueueService{}
	r := RegisterRoutes(NewQueueHandler(svc), testSecret)
	token := signToken(t, "rep-7")

	// Sheet sales have no photo field; an attachment here would vanish.
	body := `{"kind":"sheet-sale","payload":{"date":"2025-01-15","catalog":"Fine Decor","sheetsCount":12},"attachmentPath":"/data/photos/x.jpg"}`
	w := doRequest(t, r, http.MethodPost, "/v1/queue", body, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(svc.enqueued) != 0 {
		t.Fatal("attachment on a photo-less kind reached the engine")
	}
}

func TestAuthRequired(t *testing.T) {
	r := RegisterRoutes(NewQueueHandler(&stubQueueService{}), testSecret)

	w := doRequest(t, r, http.MethodGet, "/v1/queue", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", w.Code)
	}

	w = doRequest(t, r, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200 without token", w.Code)
	}
}

func TestQueueReadEndpoints(t *testing.T) {
	svc := &stubQueueService{items: []*model.QueueItem{{
		ID:        "expense-1-a",
		Kind:      model.KindExpense,
		Payload:   &model.Expense{RequestID: "r1", Amount: 5},
		Status:    model.StatusPending,
		CreatedAt: time.Now(),
		OwnerID:   "rep-7",
	}}}
	r := RegisterRoutes(NewQueueHandler(svc), testSecret)
	token := signToken(t, "rep-7")

	w := doRequest(t, r, http.MethodGet, "/v1/queue", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /v1/queue = %d", w.Code)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil || len(items) != 1 {
		t.Fatalf("queue body = %s", w.Body.String())
	}

	w = doRequest(t, r, http.MethodGet, "/v1/queue/counts", "", token)
	var counts map[string]int
	json.Unmarshal(w.Body.Bytes(), &counts)
	if counts["pending"] != 2 || counts["failed"] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	w = doRequest(t, r, http.MethodGet, "/v1/queue/items/known/status", "", token)
	var status struct {
		PendingSync bool `json:"pendingSync"`
	}
	json.Unmarshal(w.Body.Bytes(), &status)
	if !status.PendingSync {
		t.Fatalf("status body = %s", w.Body.String())
	}
}

func TestQueueActionEndpoints(t *testing.T) {
	svc := &stubQueueService{}
	r := RegisterRoutes(NewQueueHandler(svc), testSecret)
	token := signToken(t, "rep-7")

	if w := doRequest(t, r, http.MethodPost, "/v1/queue/items/item-1/retry", "", token); w.Code != http.StatusNoContent {
		t.Fatalf("retry status = %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodPost, "/v1/queue/retry-all", "", token); w.Code != http.StatusNoContent {
		t.Fatalf("retry-all status = %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodDelete, "/v1/queue/items/item-2", "", token); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodPost, "/v1/sync", "", token); w.Code != http.StatusAccepted {
		t.Fatalf("sync status = %d", w.Code)
	}

	if len(svc.retried) != 1 || svc.retried[0] != "item-1" {
		t.Fatalf("retried = %v", svc.retried)
	}
	if !svc.retriedAll || !svc.synced {
		t.Fatal("retry-all or sync not forwarded to the engine")
	}
	if len(svc.removed) != 1 || svc.removed[0] != "item-2" {
		t.Fatalf("removed = %v", svc.removed)
	}
}
