package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	lockFileName   = "audit.lock"
	latestFileName = "latest.json"
	dayFilePrefix  = "audit_"
	dayFileSuffix  = ".jsonl"
)

// Writer appends audit records to one JSONL file per UTC day and maintains
// a latest.json snapshot of the most recent record. A lock file enforces
// single-writer discipline: two writers must never interleave appends to
// the same log directory.
//
// Each append is a single write of one complete line followed by a sync. A
// torn tail left by a crash is detected and truncated on the next open, so
// the log only ever contains complete, well-formed records.
type Writer struct {
	dir string

	mu       sync.Mutex
	file     *os.File
	day      string
	seq      uint64
	size     int64 // end offset of the last complete line
	lockFile *os.File
	closed   bool
}

// NewWriter opens (or creates) the audit directory, acquires the writer
// lock, and recovers the current day file.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	lockPath := filepath.Join(dir, lockFileName)
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("audit log %s is locked by another writer", dir)
		}
		return nil, fmt.Errorf("failed to acquire audit lock: %w", err)
	}
	fmt.Fprintf(lockFile, "%d\n", os.Getpid())

	w := &Writer{
		dir:      dir,
		lockFile: lockFile,
	}

	if err := w.openDay(time.Now().UTC()); err != nil {
		w.releaseLock()
		return nil, err
	}

	return w, nil
}

// Append durably writes exactly one record line and then atomically updates
// the latest snapshot. The record's Seq is assigned here from the append
// order. A write or sync failure is rolled back to the last complete line,
// sequence number included, so a retry re-appends cleanly instead of fusing
// onto torn bytes or skipping a number.
func (w *Writer) Append(rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("audit writer is closed")
	}

	day := rec.TsUTC.UTC().Format("2006-01-02")
	if day != w.day {
		if err := w.rollDay(rec.TsUTC.UTC()); err != nil {
			return err
		}
	}

	w.seq++
	rec.Seq = w.seq

	data, err := json.Marshal(rec)
	if err != nil {
		w.seq--
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	line := append(data, '\n')
	if _, err := w.file.WriteAt(line, w.size); err != nil {
		w.discardFailedAppend()
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.discardFailedAppend()
		return fmt.Errorf("failed to sync audit log: %w", err)
	}
	w.size += int64(len(line))

	if err := w.updateLatest(data); err != nil {
		return fmt.Errorf("failed to update latest record: %w", err)
	}

	return nil
}

// Latest returns the most recently appended record, or nil when the log is
// empty.
func (w *Writer) Latest() (*Record, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, latestFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse latest record: %w", err)
	}
	return &rec, nil
}

// Close releases the day file and the writer lock.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			firstErr = err
		}
		w.file = nil
	}
	if err := w.releaseLock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// DayPath returns the log file path for a given UTC day.
func DayPath(dir string, day time.Time) string {
	return filepath.Join(dir, dayFilePrefix+day.UTC().Format("2006-01-02")+dayFileSuffix)
}

func (w *Writer) releaseLock() error {
	if w.lockFile == nil {
		return nil
	}
	w.lockFile.Close()
	err := os.Remove(filepath.Join(w.dir, lockFileName))
	w.lockFile = nil
	return err
}

func (w *Writer) rollDay(now time.Time) error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close previous day file: %w", err)
		}
		w.file = nil
	}
	return w.openDay(now)
}

// openDay opens the day file for appending, truncating any torn tail line
// and recovering the last sequence number.
func (w *Writer) openDay(now time.Time) error {
	path := DayPath(w.dir, now)

	lastSeq, validSize, err := recoverTail(path)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit day file: %w", err)
	}

	if err := file.Truncate(validSize); err != nil {
		file.Close()
		return fmt.Errorf("failed to truncate torn audit tail: %w", err)
	}

	w.file = file
	w.day = now.Format("2006-01-02")
	w.seq = lastSeq
	w.size = validSize
	return nil
}

// discardFailedAppend releases the sequence number of an append that did not
// reach durability and truncates any partial bytes past the last complete
// line. The retry writes at w.size again, so leftovers from a failed
// truncate get overwritten rather than fused into the next line.
func (w *Writer) discardFailedAppend() {
	w.seq--
	_ = w.file.Truncate(w.size)
}

// recoverTail scans a day file and returns the last complete record's Seq
// and the byte length of the valid prefix. A final line without a newline,
// or one that does not parse, is torn and excluded.
func recoverTail(path string) (lastSeq uint64, validSize int64, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read audit day file: %w", err)
	}

	offset := int64(0)
	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break // torn tail, no newline
		}
		line := data[:idx]

		var rec Record
		if json.Unmarshal(line, &rec) != nil {
			break // torn or corrupt line, truncate from here
		}

		lastSeq = rec.Seq
		offset += int64(idx) + 1
		data = data[idx+1:]
	}

	return lastSeq, offset, nil
}

// updateLatest writes the latest snapshot via temp file and rename so
// readers never observe a partial record.
func (w *Writer) updateLatest(data []byte) error {
	latestPath := filepath.Join(w.dir, latestFileName)
	tempPath := latestPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, latestPath)
}
