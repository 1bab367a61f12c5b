// Package archive keeps manual saves out of the rolling snapshot directory.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"realmsync.ai/internal/persistence/snapshot"
)

type Meta struct {
	SaveID     string `json:"save_id"`
	SavedAt    string `json:"saved_at"`
	Snapshot   string `json:"snapshot"`
	Entities   int    `json:"entities"`
	Kills      int    `json:"kills"`
	GameWon    bool   `json:"game_won"`
	ArchivedAt string `json:"archived_at"`
	// Identity is the name store saved with the snapshot, if there was one.
	Identity string `json:"identity,omitempty"`

	// Path and IdentityPath are the archived files, filled in by List.
	Path         string `json:"-"`
	IdentityPath string `json:"-"`
}

func Dir(dataDir string) string { return filepath.Join(dataDir, "archives") }

// Keep copies a manual save and its identity store into
// dataDir/archives/<saved_at>_<save_id>/ next to a meta.json describing it,
// and returns the copied snapshot path. An empty identityPath archives the
// snapshot alone.
func Keep(dataDir, snapshotPath, identityPath string, snap snapshot.SnapshotV1) (string, error) {
	name := snap.Header.SavedAt.UTC().Format("20060102T150405Z") + "_" + snap.Header.SaveID.String()
	dir := filepath.Join(Dir(dataDir), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	var idName string
	if identityPath != "" {
		idName = filepath.Base(identityPath)
		if err := copyFile(identityPath, filepath.Join(dir, idName)); err != nil {
			return "", fmt.Errorf("archive identity: %w", err)
		}
	}
	meta := Meta{
		SaveID:     snap.Header.SaveID.String(),
		SavedAt:    snap.Header.SavedAt.UTC().Format(time.RFC3339Nano),
		Snapshot:   filepath.Base(dst),
		Entities:   len(snap.Entities),
		Kills:      snap.Kills,
		GameWon:    snap.GameWon,
		ArchivedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Identity:   idName,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return dst, nil
}

// List returns archived saves, oldest first.
func List(dataDir string) ([]Meta, error) {
	entries, err := os.ReadDir(Dir(dataDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Meta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(Dir(dataDir), e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m Meta
		if json.Unmarshal(b, &m) == nil {
			m.Path = filepath.Join(Dir(dataDir), e.Name(), m.Snapshot)
			if m.Identity != "" {
				m.IdentityPath = filepath.Join(Dir(dataDir), e.Name(), m.Identity)
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
