package objstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClient_PutFileSigned(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "saves", "AKID", "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	p := filepath.Join(t.TempDir(), "a.snap.zst")
	if err := os.WriteFile(p, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.PutFile(context.Background(), "snapshots/a.snap.zst", p); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if gotPath != "/saves/snapshots/a.snap.zst" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotBody != "payload" {
		t.Fatalf("body=%q", gotBody)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AKID/20260102/auto/s3/aws4_request") {
		t.Fatalf("auth=%q", gotAuth)
	}
}

func TestClient_PutFileError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()
	c, _ := New(srv.URL, "saves", "AKID", "secret")
	p := filepath.Join(t.TempDir(), "x")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	err := c.PutFile(context.Background(), "x", p)
	if err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New("example.com", "", "k", "s"); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}

type fakePutter struct {
	mu    sync.Mutex
	keys  []string
	fails int
}

func (f *fakePutter) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("flaky")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_UploadsRelativeKeysWithRetry(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "snapshots", "s.snap.zst")
	_ = os.MkdirAll(filepath.Dir(p), 0o755)
	_ = os.WriteFile(p, []byte("x"), 0o644)

	put := &fakePutter{fails: 2}
	m := NewMirror(put, dir, "/realm/", 4, nil)
	m.backoff = func(int) time.Duration { return 0 }
	m.Enqueue(p)
	m.Enqueue(filepath.Join(t.TempDir(), "outside"))
	m.Close()

	if len(put.keys) != 1 || put.keys[0] != "realm/snapshots/s.snap.zst" {
		t.Fatalf("keys=%v", put.keys)
	}
	st := m.Stats()
	if st.Uploaded != 1 || st.Failed != 0 || st.Enqueued != 2 {
		t.Fatalf("stats=%+v", st)
	}
}
