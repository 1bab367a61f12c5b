package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"realmsync.ai/internal/persistence/archive"
	"realmsync.ai/internal/persistence/snapshot"
	"realmsync.ai/internal/server"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	archived := fs.Bool("archived", false, "list archived manual saves instead of snapshots")
	_ = fs.Parse(args)

	if *archived {
		metas, err := archive.List(*dataDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, m := range metas {
			printJSON(m)
		}
		return
	}

	entries, err := os.ReadDir(server.SnapshotDir(*dataDir))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), snapshot.Ext) {
			fmt.Println(e.Name())
		}
	}
}

// rollbackCmd promotes an archived save to the newest snapshot so the next
// server start resumes from it. The server must be stopped.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	saveID := fs.String("save", "", "archived save id (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*saveID) == "" {
		fmt.Fprintln(os.Stderr, "missing -save")
		os.Exit(2)
	}
	metas, err := archive.List(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read archives:", err)
		os.Exit(1)
	}
	var src, ids string
	for _, m := range metas {
		if m.SaveID == *saveID {
			src, ids = m.Path, m.IdentityPath
		}
	}
	if src == "" {
		fmt.Fprintln(os.Stderr, "no archived save", *saveID)
		os.Exit(1)
	}
	snap, err := snapshot.ReadSnapshot(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	h := snapshot.NewHeader(time.Now())
	h.SaveID = snap.Header.SaveID
	dst := snapshot.PathFor(server.SnapshotDir(*dataDir), h)
	if err := copyFile(src, dst); err != nil {
		fmt.Fprintln(os.Stderr, "copy:", err)
		os.Exit(1)
	}
	fmt.Println(dst)
	// Older archives carry no identity store; the server drops names the
	// restored world does not know.
	if ids != "" {
		if err := copyFile(ids, server.IdentityPath(*dataDir)); err != nil {
			fmt.Fprintln(os.Stderr, "copy identity:", err)
			os.Exit(1)
		}
		fmt.Println(server.IdentityPath(*dataDir))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
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
