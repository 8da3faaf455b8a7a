package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/nodegate/nodegate/internal/node"
)

func invokeNode(h *NodeHandler, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/interactnode", strings.NewReader(body))
	req = req.WithContext(sessionContext(req.Context(), userID))
	rec := httptest.NewRecorder()
	h.InteractNode(rec, req)
	return rec
}

func TestInteractNode(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	cache := newMemKeyCache()
	invoker := &fakeNode{resp: &node.Response{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        []byte(`{"Ok":true}`),
	}}
	h := NewNodeHandler(store, cache, store, invoker, testLogger())

	key := seedKey(t, store, "user-1", true)

	rec := invokeNode(h, "user-1", `{"api_key":"`+key.KeyValue+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != `{"Ok":true}` {
		t.Errorf("body = %q, node response should pass through unchanged", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if invoker.calls != 1 {
		t.Errorf("node calls = %d, want 1", invoker.calls)
	}
	if store.requestCount(key.ID) != 1 {
		t.Errorf("usage records = %d, want 1", store.requestCount(key.ID))
	}
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, key should be cached after DB lookup", cache.sets)
	}
}

func TestInteractNodeUsesCache(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	cache := newMemKeyCache()
	invoker := &fakeNode{resp: &node.Response{StatusCode: http.StatusOK, Body: []byte("ok")}}
	h := NewNodeHandler(store, cache, store, invoker, testLogger())

	key := seedKey(t, store, "user-1", true)

	for i := 0; i < 3; i++ {
		rec := invokeNode(h, "user-1", `{"api_key":"`+key.KeyValue+`"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d status = %d", i, rec.Code)
		}
	}

	if cache.sets != 1 {
		t.Errorf("cache sets = %d, only the first call should hit the database", cache.sets)
	}
	if store.requestCount(key.ID) != 3 {
		t.Errorf("usage records = %d, every call must be recorded", store.requestCount(key.ID))
	}
}

func TestInteractNodeDisabledKey(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	invoker := &fakeNode{resp: &node.Response{StatusCode: http.StatusOK, Body: []byte("ok")}}
	h := NewNodeHandler(store, newMemKeyCache(), store, invoker, testLogger())

	key := seedKey(t, store, "user-1", false)

	rec := invokeNode(h, "user-1", `{"api_key":"`+key.KeyValue+`"}`)

	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "KEY_DISABLED" {
		t.Errorf("error code = %q, want KEY_DISABLED", resp.Error.Code)
	}
	if invoker.calls != 0 {
		t.Error("node must not be called for a disabled key")
	}
	if store.requestCount(key.ID) != 0 {
		t.Error("no usage record for a rejected call")
	}
}

func TestInteractNodeAfterNonCanonicalDisable(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	cache := newMemKeyCache()
	invoker := &fakeNode{resp: &node.Response{StatusCode: http.StatusOK, Body: []byte("ok")}}
	nodeHandler := NewNodeHandler(store, cache, store, invoker, testLogger())
	keyHandler := NewAPIKeyHandler(store, cache, testLogger())

	key := seedKey(t, store, "user-1", true)

	// First invoke populates the cache under the canonical key value.
	rec := invokeNode(nodeHandler, "user-1", `{"api_key":"`+key.KeyValue+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("invoke status = %d", rec.Code)
	}

	// Disable in braced form; the invalidation must still reach the
	// cached entry, or the gate keeps serving the stale enabled flag.
	req := httptest.NewRequest(http.MethodPost, "/disablekey", strings.NewReader(`{"api_key":"{`+key.KeyValue+`}"}`))
	req = req.WithContext(sessionContext(req.Context(), "user-1"))
	disableRec := httptest.NewRecorder()
	keyHandler.DisableKey(disableRec, req)
	if disableRec.Code != http.StatusOK {
		t.Fatalf("disable status = %d, body = %s", disableRec.Code, disableRec.Body.String())
	}

	rec = invokeNode(nodeHandler, "user-1", `{"api_key":"`+key.KeyValue+`"}`)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("invoke after disable status = %d, want 412", rec.Code)
	}
	if store.requestCount(key.ID) != 1 {
		t.Errorf("usage records = %d, the rejected call must not count", store.requestCount(key.ID))
	}
	if invoker.calls != 1 {
		t.Errorf("node calls = %d, want 1", invoker.calls)
	}
}

func TestInteractNodeRejections(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	foreign := seedKey(t, store, "user-2", true)
	invoker := &fakeNode{resp: &node.Response{StatusCode: http.StatusOK, Body: []byte("ok")}}
	h := NewNodeHandler(store, newMemKeyCache(), store, invoker, testLogger())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed JSON", `{"api_key":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"non-UUID key", `{"api_key":"nope"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown key", `{"api_key":"` + uuid.New().String() + `"}`, http.StatusNotFound, "KEY_NOT_FOUND"},
		{"someone else's key", `{"api_key":"` + foreign.KeyValue + `"}`, http.StatusNotFound, "KEY_NOT_FOUND"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := invokeNode(h, "user-1", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if resp := decodeError(t, rec); resp.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
		})
	}

	if invoker.calls != 0 {
		t.Error("node must not be called for rejected requests")
	}
}

func TestInteractNodeNodeFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	invoker := &fakeNode{err: errors.New("connection refused")}
	h := NewNodeHandler(store, newMemKeyCache(), store, invoker, testLogger())

	key := seedKey(t, store, "user-1", true)

	rec := invokeNode(h, "user-1", `{"api_key":"`+key.KeyValue+`"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "NODE_ERROR" {
		t.Errorf("error code = %q, want NODE_ERROR", resp.Error.Code)
	}

	// The attempt reached the gate, so it still counts as usage.
	if store.requestCount(key.ID) != 1 {
		t.Errorf("usage records = %d, want 1", store.requestCount(key.ID))
	}
}

func TestInteractNodeDefaultContentType(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	invoker := &fakeNode{resp: &node.Response{StatusCode: http.StatusOK, Body: []byte("raw")}}
	h := NewNodeHandler(store, newMemKeyCache(), store, invoker, testLogger())

	key := seedKey(t, store, "user-1", true)

	rec := invokeNode(h, "user-1", `{"api_key":"`+key.KeyValue+`"}`)

	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", ct)
	}
}
