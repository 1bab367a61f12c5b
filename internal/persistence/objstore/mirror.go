package objstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Enqueued      uint64 `json:"enqueued"`
	Dropped       uint64 `json:"dropped"`
	Uploaded      uint64 `json:"uploaded"`
	Failed        uint64 `json:"failed"`
	LastSuccess   int64  `json:"last_success_unix"`
	LastError     int64  `json:"last_error_unix"`
}

// Putter is the upload half of Client.
type Putter interface {
	PutFile(ctx context.Context, key, localPath string) error
}

// Mirror uploads files written under dataDir in the background. Object keys
// are the path relative to dataDir, under prefix.
type Mirror struct {
	put     Putter
	dataDir string
	prefix  string
	logger  *log.Logger

	jobs chan string
	wait time.Duration
	wg   sync.WaitGroup

	// backoff between attempts; tests shorten it.
	backoff  func(attempt int) time.Duration
	attempts int

	enqueued    atomic.Uint64
	dropped     atomic.Uint64
	uploaded    atomic.Uint64
	failed      atomic.Uint64
	lastSuccess atomic.Int64
	lastError   atomic.Int64
}

func NewMirror(put Putter, dataDir, prefix string, queueCapacity int, logger *log.Logger) *Mirror {
	if queueCapacity <= 0 {
		queueCapacity = 64
	}
	m := &Mirror{
		put:      put,
		dataDir:  dataDir,
		prefix:   strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		logger:   logger,
		jobs:     make(chan string, queueCapacity),
		wait:     25 * time.Millisecond,
		attempts: 4,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 200 * time.Millisecond
		},
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

// Enqueue schedules localPath for upload. It waits briefly when the queue is
// full and then drops the file; the next save supersedes it anyway.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
		return
	default:
	}
	t := time.NewTimer(m.wait)
	defer t.Stop()
	select {
	case m.jobs <- localPath:
	case <-t.C:
		n := m.dropped.Add(1)
		m.printf("objstore drop local=%s dropped_total=%d", localPath, n)
	}
}

// Close uploads what is queued and stops the worker.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(m.jobs),
		QueueCapacity: cap(m.jobs),
		Enqueued:      m.enqueued.Load(),
		Dropped:       m.dropped.Load(),
		Uploaded:      m.uploaded.Load(),
		Failed:        m.failed.Load(),
		LastSuccess:   m.lastSuccess.Load(),
		LastError:     m.lastError.Load(),
	}
}

func (m *Mirror) loop() {
	defer m.wg.Done()
	for p := range m.jobs {
		m.upload(p)
	}
}

func (m *Mirror) upload(localPath string) {
	key, err := m.objectKey(localPath)
	if err != nil {
		m.printf("objstore skip local=%s err=%v", localPath, err)
		return
	}
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		lastErr = m.put.PutFile(ctx, key, localPath)
		cancel()
		if lastErr == nil {
			break
		}
		if attempt < m.attempts {
			time.Sleep(m.backoff(attempt))
		}
	}
	if lastErr != nil {
		m.failed.Add(1)
		m.lastError.Store(time.Now().Unix())
		m.printf("objstore upload failed key=%s err=%v", key, lastErr)
		return
	}
	m.uploaded.Add(1)
	m.lastSuccess.Store(time.Now().Unix())
	m.printf("objstore uploaded key=%s", key)
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, base)
	}
	if m.prefix != "" {
		rel = path.Join(m.prefix, rel)
	}
	return rel, nil
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
