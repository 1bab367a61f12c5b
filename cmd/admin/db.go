package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	name := fs.String("name", "", "player name filter (sessions)")
	_ = fs.Parse(args)

	q := "saves"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "server.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, *name, *limit, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type saveRow struct {
	SaveID   string `json:"save_id"`
	At       string `json:"at"`
	Path     string `json:"path"`
	Entities int    `json:"entities"`
	Players  int    `json:"players"`
	Manual   bool   `json:"manual"`
}

type sessionRow struct {
	At     string `json:"at"`
	Conn   int    `json:"conn"`
	Entity int64  `json:"entity"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
}

type chatRow struct {
	At      string `json:"at"`
	From    int64  `json:"from"`
	Source  string `json:"source"`
	To      string `json:"to,omitempty"`
	Text    string `json:"text"`
	Command string `json:"command,omitempty"`
}

// runQuery prints the newest rows of one index table, newest first.
func runQuery(db *sql.DB, q, name string, limit int, emit func(any)) error {
	switch q {
	case "saves":
		rows, err := db.Query(`SELECT save_id,at,path,entities,players,manual FROM saves ORDER BY at DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r saveRow
			if err := rows.Scan(&r.SaveID, &r.At, &r.Path, &r.Entities, &r.Players, &r.Manual); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "sessions":
		var (
			rows *sql.Rows
			err  error
		)
		if name != "" {
			rows, err = db.Query(`SELECT at,conn,entity,name,kind FROM sessions WHERE name=? ORDER BY seq DESC LIMIT ?`, name, limit)
		} else {
			rows, err = db.Query(`SELECT at,conn,entity,name,kind FROM sessions ORDER BY seq DESC LIMIT ?`, limit)
		}
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r sessionRow
			if err := rows.Scan(&r.At, &r.Conn, &r.Entity, &r.Name, &r.Kind); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "chat":
		rows, err := db.Query(`SELECT at,from_entity,source,COALESCE(to_name,''),text,COALESCE(command,'') FROM chat ORDER BY seq DESC LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r chatRow
			if err := rows.Scan(&r.At, &r.From, &r.Source, &r.To, &r.Text, &r.Command); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query %q (saves, sessions, chat)", q)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
