package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voiced-ai/voiced/errs"
)

func TestGetRejectsNonHTTPS(t *testing.T) {
	c := New(DefaultConfig())
	_, err := c.Get(context.Background(), "http://example.com/model.bin", 0)
	if err == nil {
		t.Fatal("expected error for non-HTTPS URL")
	}
	if err.Code != errs.NetworkSSLError {
		t.Errorf("expected NetworkSSLError, got %d", err.Code)
	}
}

func TestGetSendsRangeHeaderOnResume(t *testing.T) {
	var gotRange string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	c.http = srv.Client()

	// httptest.NewTLSServer issues an https:// URL so the scheme guard passes.
	_, err := c.Get(context.Background(), srv.URL, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotRange != "bytes=1024-" {
		t.Errorf("Range header = %q, want bytes=1024-", gotRange)
	}
}

func TestGetMapsHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	c.http = srv.Client()

	_, err := c.Get(context.Background(), srv.URL, 0)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if err.Category != errs.CategoryNetworkError {
		t.Errorf("expected CategoryNetworkError, got %s", err.Category)
	}
}
