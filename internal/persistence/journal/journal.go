// Package journal records every frame the server receives as compressed
// JSON lines, one file per hour.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	prefix     = "messages"
	ext        = ".jsonl.zst"
	hourLayout = "2006-01-02-15"
)

// Entry is one journaled frame. Raw is the frame as it arrived on the wire.
// A frame that is not JSON is kept as text in Bad instead.
type Entry struct {
	At   int64           `json:"at"`
	Conn int             `json:"conn"`
	Type string          `json:"type,omitempty"`
	Raw  json.RawMessage `json:"raw,omitempty"`
	Bad  string          `json:"bad,omitempty"`
}

// FromFrame builds the Entry for a frame received at at on conn.
func FromFrame(at time.Time, conn int, typ string, frame []byte) Entry {
	e := Entry{At: at.UnixMilli(), Conn: conn, Type: typ}
	if json.Valid(frame) {
		e.Raw = append(json.RawMessage(nil), frame...)
	} else {
		e.Bad = string(frame)
	}
	return e
}

// Journal appends Entries to <dir>/messages-YYYY-MM-DD-HH.jsonl.zst and
// starts a new file when the UTC hour changes. Every Record is flushed
// through to the file.
type Journal struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	hour string
	f    *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

func New(dir string) *Journal {
	return &Journal{dir: dir, now: time.Now}
}

func (j *Journal) Record(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if hour := j.now().UTC().Format(hourLayout); hour != j.hour {
		if err := j.open(hour); err != nil {
			return err
		}
	}
	if _, err := j.buf.Write(line); err != nil {
		return err
	}
	if err := j.buf.Flush(); err != nil {
		return err
	}
	return j.zw.Flush()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.release()
}

func (j *Journal) open(hour string) error {
	if err := j.release(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(j.dir, prefix+"-"+hour+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	j.f, j.zw, j.buf, j.hour = f, zw, bufio.NewWriterSize(zw, 64*1024), hour
	return nil
}

// release closes the current file. The next Record reopens by hour.
func (j *Journal) release() error {
	if j.f == nil {
		return nil
	}
	err := j.buf.Flush()
	if cerr := j.zw.Close(); err == nil {
		err = cerr
	}
	if cerr := j.f.Close(); err == nil {
		err = cerr
	}
	j.f, j.zw, j.buf, j.hour = nil, nil, nil, ""
	return err
}

// Files lists journal files in dir in chronological order.
func Files(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ext) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadFile calls fn for each entry in one journal file, stopping at the
// first error fn returns.
func ReadFile(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
