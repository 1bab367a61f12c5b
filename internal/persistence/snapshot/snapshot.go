package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const (
	Version = 1
	// Ext is the file extension of world saves.
	Ext = ".snap.zst"
)

type Header struct {
	Version int       `json:"version"`
	SaveID  uuid.UUID `json:"save_id"`
	SavedAt time.Time `json:"saved_at"`
}

// SnapshotV1 is the world save. Entities are the same opaque blobs AddEntity
// carries, so the snapshot format follows the entity encoding.
type SnapshotV1 struct {
	Header Header `json:"header"`

	NextEntityID int64      `json:"next_entity_id"`
	Spawn        [3]float64 `json:"spawn"`
	PlayerSpeed  float64    `json:"player_speed"`

	Time        float64 `json:"time"`
	MobSpawning bool    `json:"mob_spawning"`
	Kills       int     `json:"kills"`
	GameWon     bool    `json:"game_won,omitempty"`

	Entities [][]byte `json:"entities"`
}

// NewHeader stamps a fresh save id.
func NewHeader(now time.Time) Header {
	return Header{Version: Version, SaveID: uuid.New(), SavedAt: now.UTC()}
}

// PathFor names a save by its wall time so the latest sorts last.
func PathFor(dir string, h Header) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", h.SavedAt.UnixMilli(), Ext))
}

// WriteSnapshot writes to a temp file and renames it over path.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is for humans and tools; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// Latest returns the newest save in dir, or "" when there is none.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return ""
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
	return filepath.Join(dir, names[len(names)-1])
}
