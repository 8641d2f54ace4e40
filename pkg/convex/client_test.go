package convex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMutationSuccess(t *testing.T) {
	var gotPath string
	var gotBody functionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "value": map[string]any{"id": "doc1"}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	value, err := c.Mutation(context.Background(), "artifacts:upsert", map[string]any{"kind": "plan"})
	if err != nil {
		t.Fatalf("Mutation failed: %v", err)
	}
	if gotPath != "/api/mutation" {
		t.Errorf("path = %q, want /api/mutation", gotPath)
	}
	if gotBody.Path != "artifacts:upsert" || gotBody.Format != "json" {
		t.Errorf("envelope = %+v", gotBody)
	}
	var decoded map[string]string
	if err := json.Unmarshal(value, &decoded); err != nil || decoded["id"] != "doc1" {
		t.Errorf("value = %s, err = %v", value, err)
	}
}

func TestFunctionErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "errorMessage": "no such function"})
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, time.Second)
	if _, err := c.Query(context.Background(), "missing:fn", nil); err == nil {
		t.Fatal("expected error for function-level failure")
	}
}

func TestHTTPErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "deployment paused", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, time.Second)
	if _, err := c.Mutation(context.Background(), "artifacts:upsert", nil); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}

func TestEmptyDeploymentURLRejected(t *testing.T) {
	if _, err := NewClient("", time.Second); err == nil {
		t.Fatal("expected error for empty deployment URL")
	}
}

func TestMirrorUpsert(t *testing.T) {
	var gotArgs map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req functionRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotArgs, _ = req.Args.(map[string]any)
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "value": nil})
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, time.Second)
	m := NewMirror(c, time.Second)
	err := m.Upsert(context.Background(), "s1", "plan", "p1", map[string]any{"id": "p1"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if gotArgs["sessionId"] != "s1" || gotArgs["kind"] != "plan" || gotArgs["artifactId"] != "p1" {
		t.Errorf("args = %v", gotArgs)
	}
}
