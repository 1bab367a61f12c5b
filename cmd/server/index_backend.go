package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"realmsync.ai/internal/persistence/indexdb"
	"realmsync.ai/internal/server"
)

type runtimeIndex interface {
	server.Index
	Stats() indexdb.Stats
	Close() error
}

func openRuntimeIndex(dataDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("RS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := strings.TrimSpace(os.Getenv("RS_INDEX_SQLITE_PATH"))
		if dbPath == "" {
			dbPath = filepath.Join(dataDir, "index", "server.sqlite")
		}
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported RS_INDEX_BACKEND: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
