package main

import (
	"net/http/httptest"
	"strings"
	"testing"

	"realmsync.ai/internal/server"
	"realmsync.ai/internal/transport/ws"
)

func TestWriteMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	writeMetrics(rec, server.Metrics{Tick: 42, Conns: 2, Players: 2, Entities: 9, Kills: 3}, ws.HubStats{Sent: 10, Dropped: 1}, nil, nil)
	body := rec.Body.String()
	for _, want := range []string{
		"realmsync_tick 42\n",
		"realmsync_connections 2\n",
		`realmsync_entities{kind="all"} 9`,
		"realmsync_mob_kills 3\n",
		`realmsync_ws_frames{result="dropped"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "realmsync_index_queue") {
		t.Fatalf("index metrics written without an index")
	}
	if strings.Contains(body, "realmsync_backup_uploads") {
		t.Fatalf("backup metrics written without a mirror")
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	dir := t.TempDir()
	if idx, err := openRuntimeIndex(dir, true); idx != nil || err != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}
	t.Setenv("RS_INDEX_BACKEND", "off")
	if idx, err := openRuntimeIndex(dir, false); idx != nil || err != nil {
		t.Fatalf("off: idx=%v err=%v", idx, err)
	}
	t.Setenv("RS_INDEX_BACKEND", "postgres")
	if _, err := openRuntimeIndex(dir, false); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}
	t.Setenv("RS_INDEX_BACKEND", "sqlite")
	idx, err := openRuntimeIndex(dir, false)
	if err != nil || idx == nil {
		t.Fatalf("sqlite: idx=%v err=%v", idx, err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("RS_TEST_BOOL", "yes")
	if !envBool("RS_TEST_BOOL", true) {
		t.Fatalf("unparseable bool should fall back to the default")
	}
	t.Setenv("RS_TEST_BOOL", "false")
	if envBool("RS_TEST_BOOL", true) {
		t.Fatalf("envBool ignored false")
	}
	t.Setenv("RS_TEST_INT", "-3")
	if envInt("RS_TEST_INT", 7) != 7 {
		t.Fatalf("non-positive int should fall back")
	}
	if !isLoopbackRemote("127.0.0.1:5555") || isLoopbackRemote("10.0.0.2:80") {
		t.Fatalf("isLoopbackRemote")
	}
}

func TestOpenMirror(t *testing.T) {
	dir := t.TempDir()
	if m, err := openMirror(dir, nil); m != nil || err != nil {
		t.Fatalf("unset: m=%v err=%v", m, err)
	}
	t.Setenv("RS_BACKUP_ENDPOINT", "example.com")
	if _, err := openMirror(dir, nil); err == nil {
		t.Fatalf("expected error without bucket and credentials")
	}
	t.Setenv("RS_BACKUP_BUCKET", "saves")
	t.Setenv("RS_BACKUP_ACCESS_KEY_ID", "k")
	t.Setenv("RS_BACKUP_SECRET_ACCESS_KEY", "s")
	m, err := openMirror(dir, nil)
	if err != nil || m == nil {
		t.Fatalf("configured: m=%v err=%v", m, err)
	}
	m.Close()
}
