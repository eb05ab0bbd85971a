package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReadDay loads every record appended on the given UTC day, in append
// order. A missing day file yields an empty slice.
func ReadDay(dir string, day time.Time) ([]Record, error) {
	file, err := os.Open(DayPath(dir, day))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit day file: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// A torn tail is recovered by the writer on restart; a reader
			// just stops at the last complete record.
			break
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan audit day file: %w", err)
	}

	return records, nil
}

// ReadLatest loads the latest-record snapshot, or nil when none exists.
func ReadLatest(dir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, latestFileName))
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

// VerifyDay checks a day's records for gaps: sequence numbers must be
// strictly increasing by one and timestamps non-decreasing. Returns the
// record count on success.
func VerifyDay(dir string, day time.Time) (int, error) {
	records, err := ReadDay(dir, day)
	if err != nil {
		return 0, err
	}

	for i := 1; i < len(records); i++ {
		if records[i].Seq != records[i-1].Seq+1 {
			return i, fmt.Errorf("sequence gap after record %d: %d -> %d",
				i-1, records[i-1].Seq, records[i].Seq)
		}
		if records[i].TsUTC.Before(records[i-1].TsUTC) {
			return i, fmt.Errorf("timestamp regression after record %d", i-1)
		}
	}

	return len(records), nil
}
