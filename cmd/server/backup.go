package main

import (
	"log"
	"os"
	"strings"

	"realmsync.ai/internal/persistence/objstore"
)

// openMirror builds the save mirror from RS_BACKUP_* env. It returns nil when
// no endpoint is configured.
func openMirror(dataDir string, logger *log.Logger) (*objstore.Mirror, error) {
	endpoint := strings.TrimSpace(os.Getenv("RS_BACKUP_ENDPOINT"))
	if endpoint == "" {
		return nil, nil
	}
	c, err := objstore.New(
		endpoint,
		os.Getenv("RS_BACKUP_BUCKET"),
		os.Getenv("RS_BACKUP_ACCESS_KEY_ID"),
		os.Getenv("RS_BACKUP_SECRET_ACCESS_KEY"),
	)
	if err != nil {
		return nil, err
	}
	return objstore.NewMirror(c, dataDir, os.Getenv("RS_BACKUP_PREFIX"), envInt("RS_BACKUP_QUEUE", 64), logger), nil
}
