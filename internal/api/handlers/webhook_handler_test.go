package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pipesync/internal/engine/security"
	"pipesync/internal/engine/webhook"
	"pipesync/internal/platform/config"
	"pipesync/internal/platform/models"
)

const handlerTestSecret = "s3cret"

type stubStore struct {
	upserts int
	deletes int
	fail    bool
}

func (s *stubStore) Upsert(objectType, externalID string, data map[string]any) (*models.Entity, error) {
	if s.fail {
		return nil, errors.New("db down")
	}
	s.upserts++
	return &models.Entity{ObjectType: objectType, ExternalID: externalID, Data: data}, nil
}

func (s *stubStore) GetByExternalID(objectType, externalID string) (*models.Entity, error) {
	return nil, errors.New("not found")
}

func (s *stubStore) MarkDeleted(objectType, externalID string) error {
	if s.fail {
		return errors.New("db down")
	}
	s.deletes++
	return nil
}

func (s *stubStore) MigrateRelations(objectType, mergedID, survivingID string) (int64, error) {
	return 0, nil
}

func newWebhookTestHandler(store *stubStore) *WebhookHandler {
	policy := security.NewPolicy(config.SecurityConfig{
		Signature: config.SignatureConfig{Enabled: true, Secret: handlerTestSecret},
	})
	processor := webhook.NewProcessor(store, webhook.NewNotifier(), nil)
	return NewWebhookHandler(policy, processor)
}

func signedRequest(body string) *http.Request {
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(security.DefaultSignatureHeader, security.Sign(handlerTestSecret, []byte(body)))
	return req
}

func TestWebhookReceive_Success(t *testing.T) {
	store := &stubStore{}
	handler := newWebhookTestHandler(store)

	body := `{"event":"added.deal","current":{"title":"Big deal"},"meta":{"action":"added","object":"deals","id":42}}`
	rr := httptest.NewRecorder()
	handler.Receive(rr, signedRequest(body))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Status    string `json:"status"`
		Processed bool   `json:"processed"`
		Action    string `json:"action"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Status != "ok" || !resp.Processed || resp.Action != "create" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if store.upserts != 1 {
		t.Errorf("Expected one upsert, got %d", store.upserts)
	}
}

func TestWebhookReceive_BadSignature(t *testing.T) {
	handler := newWebhookTestHandler(&stubStore{})

	body := `{"event":"added.deal","meta":{"action":"added","object":"deals","id":42}}`
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(security.DefaultSignatureHeader, security.Sign("wrong", []byte(body)))

	rr := httptest.NewRecorder()
	handler.Receive(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rr.Code)
	}
}

func TestWebhookReceive_InvalidFormat(t *testing.T) {
	store := &stubStore{}
	handler := newWebhookTestHandler(store)

	// Valid JSON, but missing required v1 meta keys.
	body := `{"event":"added.deal","meta":{"action":"added"}}`
	rr := httptest.NewRecorder()
	handler.Receive(rr, signedRequest(body))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
	if store.upserts != 0 {
		t.Error("Processor must not run on format failure")
	}
}

func TestWebhookReceive_ProcessingFailureTriggersRetry(t *testing.T) {
	handler := newWebhookTestHandler(&stubStore{fail: true})

	body := `{"event":"added.deal","current":{"title":"x"},"meta":{"action":"added","object":"deals","id":42}}`
	rr := httptest.NewRecorder()
	handler.Receive(rr, signedRequest(body))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500 to trigger platform retry, got %d", rr.Code)
	}

	var resp map[string]string
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "error" {
		t.Errorf("Expected error status, got %+v", resp)
	}
}

func TestWebhookReceive_UnknownActionDoesNotFail(t *testing.T) {
	handler := newWebhookTestHandler(&stubStore{})

	body := `{"event":"flagged.deal","meta":{"action":"flagged","object":"deals","id":42}}`
	rr := httptest.NewRecorder()
	handler.Receive(rr, signedRequest(body))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 for unknown action, got %d", rr.Code)
	}

	var resp struct {
		Processed bool   `json:"processed"`
		Action    string `json:"action"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Processed || resp.Action != "unknown" {
		t.Errorf("Expected soft ignore, got %+v", resp)
	}
}

func TestHealth(t *testing.T) {
	handler := newWebhookTestHandler(&stubStore{})

	rr := httptest.NewRecorder()
	handler.Health(rr, httptest.NewRequest("GET", "/webhook/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp struct {
		Status    string `json:"status"`
		Service   string `json:"service"`
		Timestamp int64  `json:"timestamp"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Status != "ok" || resp.Service != "pipesync" || resp.Timestamp == 0 {
		t.Errorf("Unexpected health response: %+v", resp)
	}
}
