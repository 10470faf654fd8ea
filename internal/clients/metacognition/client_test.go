package metacognition

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

func testClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	os.Setenv("METACOGNITION_API_URL", srv.URL)
	os.Setenv("METACOGNITION_MAX_RETRIES", "0")
	t.Cleanup(func() {
		os.Unsetenv("METACOGNITION_API_URL")
		os.Unsetenv("METACOGNITION_MAX_RETRIES")
	})

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)

	c, err := NewClient(log)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestAdvanceSuccess(t *testing.T) {
	var gotReq manageConversationRequest
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/manage_conversation" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		idx := 24
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":                       "success",
			"summary_id":                   int64(77),
			"latest_summary":               "S1",
			"latest_processed_message_idx": idx,
		})
	}))

	res, err := c.Advance(context.Background(), nil, 0, []Message{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.SummaryID != 77 {
		t.Fatalf("summary id: want=77 got=%d", res.SummaryID)
	}
	if res.LatestSummary != "S1" {
		t.Fatalf("latest summary: want=S1 got=%q", res.LatestSummary)
	}
	if res.LatestProcessedIndex == nil || *res.LatestProcessedIndex != 24 {
		t.Fatalf("latest processed index: want=24 got=%v", res.LatestProcessedIndex)
	}
	if gotReq.SummaryID != nil {
		t.Fatalf("cold start must send null summary_id, got %v", *gotReq.SummaryID)
	}
	if gotReq.IndexOfFirstNewMsg != 0 || len(gotReq.NewMessages) != 1 {
		t.Fatalf("unexpected request: idx=%d msgs=%d", gotReq.IndexOfFirstNewMsg, len(gotReq.NewMessages))
	}
}

func TestAdvanceIndexMismatchIsTyped(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "Expected index 20 for conversation, got 25",
		})
	}))

	_, err := c.Advance(context.Background(), ptr(int64(9)), 25, []Message{{Role: "user", Content: "x"}})
	if err == nil {
		t.Fatal("expected error")
	}
	im, ok := AsIndexMismatch(err)
	if !ok {
		t.Fatalf("expected IndexMismatchError, got %T: %v", err, err)
	}
	if im.Expected != 20 || im.Got != 25 {
		t.Fatalf("mismatch parse: expected=%d got=%d", im.Expected, im.Got)
	}
}

func TestAdvanceMissingSummaryIDIsProtocolError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "success",
			"latest_summary": "S1",
		})
	}))

	_, err := c.Advance(context.Background(), nil, 0, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %T: %v", err, err)
	}
}

func TestAdvanceServerErrorIsNotMismatch(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))

	_, err := c.Advance(context.Background(), nil, 0, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := AsIndexMismatch(err); ok {
		t.Fatalf("500 must not parse as index mismatch: %v", err)
	}
}

func TestUploadAndLinkDocument(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload_document":
			_ = json.NewEncoder(w).Encode(map[string]any{"document_id": int64(5)})
		case "/add_document_to_conversation":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	docID, err := c.UploadDocument(context.Background(), "content", "desc", "transcript", nil)
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if docID != 5 {
		t.Fatalf("document id: want=5 got=%d", docID)
	}
	if err := c.LinkDocument(context.Background(), 77, docID); err != nil {
		t.Fatalf("LinkDocument: %v", err)
	}
}

func ptr[T any](v T) *T { return &v }
