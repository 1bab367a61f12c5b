package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"realmsync.ai/internal/persistence/journal"
	"realmsync.ai/internal/persistence/snapshot"
	"realmsync.ai/internal/protocol"
	"realmsync.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional)")
		journalDir = flag.String("journal", "", "journal dir containing messages-*.jsonl.zst (optional)")
		sinceSave  = flag.Bool("since_snapshot", false, "only count journal entries newer than the snapshot")
	)
	flag.Parse()

	if *snapPath == "" && *journalDir == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -journal")
		os.Exit(2)
	}

	var since int64
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		if err := printSnapshot(snap); err != nil {
			fmt.Fprintln(os.Stderr, "snapshot:", err)
			os.Exit(1)
		}
		if *sinceSave {
			since = snap.Header.SavedAt.UnixMilli()
		}
	}

	if *journalDir == "" {
		return
	}
	files, err := journal.Files(*journalDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *journalDir)
		os.Exit(1)
	}
	sum := newSummary()
	for _, path := range files {
		if err := journal.ReadFile(path, func(e journal.Entry) error {
			if e.At < since {
				return nil
			}
			sum.add(e)
			return nil
		}); err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}
	sum.print()
}

func printSnapshot(snap snapshot.SnapshotV1) error {
	byKind := map[world.Kind]int{}
	for i, blob := range snap.Entities {
		e, err := world.DecodeEntity(blob)
		if err != nil {
			return fmt.Errorf("entity %d: %w", i, err)
		}
		byKind[e.Kind]++
	}
	fmt.Printf("snapshot v%d save=%s at=%s next_id=%d entities=%d time=%.3f mobs=%v kills=%d won=%v\n",
		snap.Header.Version, snap.Header.SaveID, snap.Header.SavedAt.Format(time.RFC3339),
		snap.NextEntityID, len(snap.Entities), snap.Time, snap.MobSpawning, snap.Kills, snap.GameWon)
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-8s %d\n", k, byKind[world.Kind(k)])
	}
	return nil
}

type summary struct {
	total     int
	bad       int
	first     int64
	last      int64
	byKind    map[protocol.Kind]int
	byConn    map[int]int
	reliables int
}

func newSummary() *summary {
	return &summary{byKind: map[protocol.Kind]int{}, byConn: map[int]int{}}
}

// add re-decodes the stored frame so malformed entries are counted, not trusted.
func (s *summary) add(e journal.Entry) {
	s.total++
	if s.first == 0 || e.At < s.first {
		s.first = e.At
	}
	if e.At > s.last {
		s.last = e.At
	}
	s.byConn[e.Conn]++
	env, err := protocol.Decode(e.Raw)
	if err != nil {
		s.bad++
		return
	}
	s.byKind[env.Kind()]++
	if env.Reliable {
		s.reliables++
	}
}

func (s *summary) print() {
	span := time.Duration(s.last-s.first) * time.Millisecond
	fmt.Printf("journal entries=%d reliable=%d bad=%d conns=%d span=%s\n", s.total, s.reliables, s.bad, len(s.byConn), span)
	for _, k := range protocol.Kinds() {
		if n := s.byKind[k]; n > 0 {
			fmt.Printf("  %-20s %d\n", k, n)
		}
	}
}
