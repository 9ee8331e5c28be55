package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voiced-ai/voiced/internal/httpclient"
)

func TestBackoffDelaySequence(t *testing.T) {
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for attempt, w := range want {
		if got := BackoffDelay(attempt); got != w {
			t.Errorf("BackoffDelay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffDelayNonDecreasingAndCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := BackoffDelay(attempt)
		if d < prev {
			t.Fatalf("backoff decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > 30*time.Second {
			t.Fatalf("backoff exceeded cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}
}

func TestRunDownloadsAndVerifies(t *testing.T) {
	payload := make([]byte, 100_000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	sum := sha256.Sum256(payload)
	expectedSHA := hex.EncodeToString(sum[:])

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.DefaultConfig())
	// Test server uses a self-signed cert; swap in its trusting client for the HTTPS check to pass transport-wise.
	patchClientTransport(client, srv)

	dir := t.TempDir()
	dest := filepath.Join(dir, "model.bin")

	var progressValues []float64
	d := New(client, 2)
	err := d.Run(context.Background(), Request{
		URL:            srv.URL,
		Destination:    dest,
		ExpectedSize:   int64(len(payload)),
		ExpectedSHA256: expectedSHA,
		OnProgress:     func(p float64) { progressValues = append(progressValues, p) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, rerr := os.ReadFile(dest)
	if rerr != nil {
		t.Fatalf("reading destination: %v", rerr)
	}
	if len(data) != len(payload) {
		t.Fatalf("destination size = %d, want %d", len(data), len(payload))
	}

	if _, statErr := os.Stat(dest + ".tmp"); !os.IsNotExist(statErr) {
		t.Fatalf("expected .tmp file to be removed after success")
	}

	assertMonotonicAndFinal(t, progressValues)
}

func assertMonotonicAndFinal(t *testing.T, values []float64) {
	t.Helper()
	if len(values) == 0 {
		t.Fatal("expected at least one progress report")
	}
	prev := -1.0
	for _, v := range values {
		if v < 0 || v > 1 {
			t.Fatalf("progress %f out of [0,1]", v)
		}
		if v < prev {
			t.Fatalf("progress decreased: %f < %f", v, prev)
		}
		prev = v
	}
	last := values[len(values)-1]
	if last < 0.99 {
		t.Fatalf("final progress %f not within 0.01 of 1.0", last)
	}
}

func TestRunRejectsChecksumMismatch(t *testing.T) {
	payload := []byte("some model bytes")
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.DefaultConfig())
	patchClientTransport(client, srv)

	dir := t.TempDir()
	dest := filepath.Join(dir, "model.bin")

	d := New(client, 1)
	err := d.Run(context.Background(), Request{
		URL:            srv.URL,
		Destination:    dest,
		ExpectedSize:   int64(len(payload)),
		ExpectedSHA256: "0000000000000000000000000000000000000000000000000000000000000",
	})
	if err == nil {
		t.Fatal("expected checksum mismatch error")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("destination should not exist after checksum failure")
	}
	if _, statErr := os.Stat(dest + ".tmp"); !os.IsNotExist(statErr) {
		t.Fatalf(".tmp should be removed after checksum failure")
	}
}

// patchClientTransport swaps the client's transport for the test server's
// client transport so the HTTPS scheme check (which only inspects the URL
// string, not certificate validity) still exercises the real network path.
func patchClientTransport(c *httpclient.Client, srv *httptest.Server) {
	httpclient.SetTransportForTest(c, srv.Client().Transport)
}
