package objstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestUpload(t *testing.T) {
	var gotPath, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Bucket: "illustrations"})
	url, err := c.Upload(context.Background(), "books/b1/page-0.png", "image/png", []byte("data"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if gotPath != "/object/illustrations/books/b1/page-0.png" {
		t.Errorf("path = %s", gotPath)
	}
	if gotType != "image/png" {
		t.Errorf("content type = %s", gotType)
	}
	if !strings.Contains(url, "/object/public/illustrations/books/b1/page-0.png") {
		t.Errorf("public url = %s", url)
	}
}

func TestUpload_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Bucket: "b"})
	if _, err := c.Upload(context.Background(), "k.png", "image/png", []byte("x")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestUpload_DoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Bucket: "b"})
	if _, err := c.Upload(context.Background(), "k.png", "image/png", []byte("x")); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (403 is not retryable)", calls.Load())
	}
}

func TestTransforms_Distinct(t *testing.T) {
	base := "https://storage.example.com/object/public/illustrations/p.png"

	printURL := PrintURL(base)
	previewURL := PreviewURL(base)

	if printURL == previewURL {
		t.Fatal("print and preview transforms must differ")
	}
	if !strings.Contains(printURL, "quality=100") || !strings.Contains(printURL, "format=png") {
		t.Errorf("print url = %s", printURL)
	}
	if !strings.Contains(previewURL, "width=640") {
		t.Errorf("preview url = %s", previewURL)
	}
	// Transform must not clobber the object path.
	if !strings.HasPrefix(printURL, base+"?") {
		t.Errorf("print url does not extend object url: %s", printURL)
	}
}
