package modelmgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/voiced-ai/voiced/internal/httpclient"
	"github.com/voiced-ai/voiced/model"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newTestManager(t *testing.T, registryURL string) *Manager {
	t.Helper()
	m, err := New(registryURL, t.TempDir(), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestListAvailableAppliesFilter(t *testing.T) {
	catalog := []model.Info{
		{ID: "llm-a", Type: model.TypeLLM, Version: "1.0.0"},
		{ID: "stt-a", Type: model.TypeSTT, Version: "1.0.0"},
	}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(catalog)
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	httpclient.SetTransportForTest(m.client, srv.Client().Transport)

	got, err := m.ListAvailable(context.Background(), model.TypeLLM, model.DeviceCapabilities{})
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(got) != 1 || got[0].ID != "llm-a" {
		t.Fatalf("expected only llm-a, got %v", got)
	}
}

func TestDownloadModelRecordsManifestEntry(t *testing.T) {
	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i % 7)
	}
	checksum := sha256Hex(payload)

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/catalog", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.Info{{
			ID: "llm-a", Type: model.TypeLLM, Version: "1.0.0",
			SizeBytes: int64(len(payload)), ChecksumSHA256: checksum,
			DownloadURL: srv.URL + "/blob",
		}})
	})
	mux.HandleFunc("/blob", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	srv = httptest.NewTLSServer(mux)
	defer srv.Close()

	m := newTestManager(t, srv.URL+"/catalog")
	httpclient.SetTransportForTest(m.client, srv.Client().Transport)

	if err := m.DownloadModel(context.Background(), "llm-a", nil); err != nil {
		t.Fatalf("DownloadModel: %v", err)
	}

	info, ok := m.GetModelInfo("llm-a")
	if !ok {
		t.Fatal("expected manifest entry for llm-a after download")
	}
	if info.DownloadTimestamp() == "" {
		t.Fatal("expected download_timestamp to be stamped")
	}

	if _, statErr := filepath.Abs(filepath.Join(m.modelDir, "llm-a")); statErr != nil {
		t.Fatalf("unexpected path error: %v", statErr)
	}
}

func TestDownloadModelRejectsUnknownID(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.Info{})
	}))
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	httpclient.SetTransportForTest(m.client, srv.Client().Transport)

	if err := m.DownloadModel(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error downloading an id absent from the registry")
	}
}

func TestListDownloadedEmptyInitially(t *testing.T) {
	m := newTestManager(t, "https://example.invalid/catalog")
	if got := m.ListDownloaded(); len(got) != 0 {
		t.Fatalf("expected no downloaded models initially, got %v", got)
	}
}
