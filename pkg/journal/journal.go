// Package journal persists scan results and anomalies as JSON lines on
// disk. Records append to a dated file; when the active file outgrows the
// size cap it is gzip compressed and a fresh one started. Compressed files
// older than the retention window are swept out.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/herlein/rfwatch/pkg/logging"
)

// Record kinds.
const (
	KindMetrics = "metrics"
	KindAnomaly = "anomaly"
)

const (
	filePrefix       = "rfwatch_"
	fileSuffix       = ".jsonl"
	compressedSuffix = ".jsonl.gz"
)

// Record is one journal line. Body carries the kind-specific payload as it
// was marshalled at write time.
type Record struct {
	ID   string          `json:"id"`
	Time time.Time       `json:"time"`
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// Config controls the journal directory and its growth.
type Config struct {
	Dir           string
	MaxSizeBytes  int64
	RetentionDays int
}

// Journal is a size- and date-rotated JSONL writer. Safe for concurrent
// use.
type Journal struct {
	cfg Config
	log logging.Logger

	mu   sync.Mutex
	file *os.File
	date string
	size int64
}

// Open prepares the journal directory and sweeps expired files. The active
// file is opened lazily on first write.
func Open(cfg Config, log logging.Logger) (*Journal, error) {
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 10 << 20
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if log == nil {
		log = logging.Noop()
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	j := &Journal{cfg: cfg, log: log}
	j.mu.Lock()
	j.sweepLocked(time.Now())
	j.mu.Unlock()
	return j, nil
}

// Write appends one record of the given kind. A failed write drops the
// record; the caller decides whether the loop carries on.
func (j *Journal) Write(kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", kind, err)
	}
	rec := Record{
		ID:   uuid.New().String(),
		Time: time.Now().UTC(),
		Kind: kind,
		Body: body,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal journal record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.ensureFileLocked(rec.Time, int64(len(line))+1); err != nil {
		return err
	}
	n, err := j.file.Write(append(line, '\n'))
	j.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write journal record: %w", err)
	}
	return nil
}

// ReadRecent returns up to limit records, newest first, walking backward
// through the active file and then the compressed ones. Unreadable lines
// are skipped.
func (j *Journal) ReadRecent(limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	files, err := j.listFilesLocked()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, limit)
	for _, path := range files {
		if len(out) == limit {
			break
		}
		recs, err := readRecords(path)
		if err != nil {
			j.log.Warn("skipping unreadable journal file",
				logging.String("file", filepath.Base(path)), logging.Err(err))
			continue
		}
		for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, recs[i])
		}
	}
	return out, nil
}

// Close flushes and closes the active file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// ensureFileLocked opens the active file for now's date, rotating first
// when the date changed or the pending line would push it past the cap.
func (j *Journal) ensureFileLocked(now time.Time, pending int64) error {
	date := now.UTC().Format("2006-01-02")

	if j.file != nil && j.date != date {
		j.rotateLocked(now)
	}
	if j.file != nil && j.size > 0 && j.size+pending > j.cfg.MaxSizeBytes {
		j.rotateLocked(now)
	}
	if j.file != nil {
		return nil
	}

	path := filepath.Join(j.cfg.Dir, filePrefix+date+fileSuffix)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat journal file: %w", err)
	}

	j.file = f
	j.date = date
	j.size = info.Size()
	return nil
}

// rotateLocked closes the active file and compresses it away. On failure
// the file stays in place uncompressed and appending resumes.
func (j *Journal) rotateLocked(now time.Time) {
	src := filepath.Join(j.cfg.Dir, filePrefix+j.date+fileSuffix)

	j.file.Close()
	j.file = nil
	j.size = 0

	base := strings.TrimSuffix(src, fileSuffix)
	stamp := now.UTC().Format("150405")
	dst := base + "_" + stamp + compressedSuffix
	for i := 1; fileExists(dst); i++ {
		dst = fmt.Sprintf("%s_%s_%d%s", base, stamp, i, compressedSuffix)
	}

	if err := compressFile(src, dst); err != nil {
		j.log.Warn("journal rotation failed", logging.Err(err))
		return
	}
	if err := os.Remove(src); err != nil {
		j.log.Warn("failed to remove rotated journal file", logging.Err(err))
	}
	j.log.Debug("journal file rotated", logging.String("file", filepath.Base(dst)))

	j.sweepLocked(now)
}

// sweepLocked deletes compressed files older than the retention window.
func (j *Journal) sweepLocked(now time.Time) {
	entries, err := os.ReadDir(j.cfg.Dir)
	if err != nil {
		j.log.Warn("failed to read journal directory", logging.Err(err))
		return
	}
	cutoff := now.Add(-time.Duration(j.cfg.RetentionDays) * 24 * time.Hour)

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, compressedSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(j.cfg.Dir, name)); err != nil {
				j.log.Warn("failed to remove expired journal file",
					logging.String("file", name), logging.Err(err))
				continue
			}
			j.log.Debug("expired journal file removed", logging.String("file", name))
		}
	}
}

// listFilesLocked returns journal files newest first by modification time.
func (j *Journal) listFilesLocked() ([]string, error) {
	entries, err := os.ReadDir(j.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var files []candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) {
			continue
		}
		if !strings.HasSuffix(name, fileSuffix) && !strings.HasSuffix(name, compressedSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{filepath.Join(j.cfg.Dir, name), info.ModTime()})
	}
	sort.Slice(files, func(a, b int) bool { return files[a].mod.After(files[b].mod) })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// readRecords parses every well-formed record in one journal file,
// transparently decompressing rotated files.
func readRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}

	var recs []Record
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return recs, err
	}
	return recs, nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
