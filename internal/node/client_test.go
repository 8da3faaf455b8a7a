package node

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rawURL  string
		wantErr bool
	}{
		{name: "valid http URL", rawURL: "http://127.0.0.1:5001"},
		{name: "valid https URL", rawURL: "https://node.example.com"},
		{name: "bad scheme", rawURL: "ftp://127.0.0.1:5001", wantErr: true},
		{name: "garbage", rawURL: "://nope", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewClient(tt.rawURL, "body")
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient(%q) error = %v, wantErr %v", tt.rawURL, err, tt.wantErr)
			}
		})
	}
}

func TestClientReprovide(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "the exact body that is sent")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	resp, err := client.Reprovide(context.Background())
	if err != nil {
		t.Fatalf("Reprovide() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("node saw method %s, want POST", gotMethod)
	}
	if gotPath != reprovidePath {
		t.Errorf("node saw path %s, want %s", gotPath, reprovidePath)
	}
	if gotBody != "the exact body that is sent" {
		t.Errorf("node saw body %q", gotBody)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.ContentType != "application/json" {
		t.Errorf("ContentType = %q", resp.ContentType)
	}
}

func TestClientReprovideNodeError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "body")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Reprovide(context.Background()); err == nil {
		t.Error("Reprovide() expected error on 500 response")
	}
}

func TestClientReprovideUnreachable(t *testing.T) {
	t.Parallel()

	// Reserved TEST-NET address, nothing listens here.
	client, err := NewClient("http://192.0.2.1:5001", "body")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := client.Reprovide(ctx); err == nil {
		t.Error("Reprovide() expected error for unreachable node")
	}
}
