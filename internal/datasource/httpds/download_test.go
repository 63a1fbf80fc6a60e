package httpds

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func payload() []byte {
	return bytes.Repeat([]byte("Empresas0.zip;"), 4096)
}

func fileServer(t *testing.T, data []byte, gets *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && gets != nil {
			atomic.AddInt32(gets, 1)
		}
		http.ServeContent(w, r, "Empresas0.zip", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}

func TestDownload_Fresh(t *testing.T) {
	t.Parallel()

	data := payload()
	srv := fileServer(t, data, nil)
	dest := filepath.Join(t.TempDir(), "nested", "Empresas0.zip")

	res, err := NewClient(Config{}).Download(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if res.Resumed || res.Skipped || res.Written != int64(len(data)) {
		t.Fatalf("unexpected result %+v", res)
	}
	if !bytes.Equal(readFile(t, dest), data) {
		t.Fatalf("content mismatch")
	}
}

func TestDownload_ResumesPartialFile(t *testing.T) {
	t.Parallel()

	data := payload()
	srv := fileServer(t, data, nil)
	dest := filepath.Join(t.TempDir(), "Empresas0.zip")
	half := len(data) / 2
	if err := os.WriteFile(dest, data[:half], 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewClient(Config{}).Download(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !res.Resumed || res.Written != int64(len(data)-half) || res.Size != int64(len(data)) {
		t.Fatalf("unexpected result %+v", res)
	}
	if !bytes.Equal(readFile(t, dest), data) {
		t.Fatalf("content mismatch after resume")
	}
}

func TestDownload_SkipsCompleteFile(t *testing.T) {
	t.Parallel()

	data := payload()
	var gets int32
	srv := fileServer(t, data, &gets)
	dest := filepath.Join(t.TempDir(), "Empresas0.zip")
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewClient(Config{}).Download(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !res.Skipped || atomic.LoadInt32(&gets) != 0 {
		t.Fatalf("expected a skip without GET, got %+v after %d GETs", res, gets)
	}
}

func TestDownload_RateLimited(t *testing.T) {
	t.Parallel()

	data := payload()
	srv := fileServer(t, data, nil)
	dest := filepath.Join(t.TempDir(), "Empresas0.zip")

	c := NewClient(Config{BytesPerSec: 1 << 20})
	if _, err := c.Download(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(readFile(t, dest), data) {
		t.Fatalf("content mismatch")
	}
}

func TestDownload_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewClient(Config{}).Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x.zip"))
	if err == nil {
		t.Fatalf("expected error for 404")
	}
}
