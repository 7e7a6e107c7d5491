package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileTrail writes audit entries to a JSONL file, one entry per line.
// Existing entries are loaded on open so idempotency survives a restart.
type FileTrail struct {
	file   *os.File
	writer *bufio.Writer
	mutex  sync.Mutex
	index  map[string]struct{}
}

// NewFileTrail opens (or creates) the audit log at filePath.
// If the file exists, new entries are appended and the idempotency index is
// seeded from the existing records.
func NewFileTrail(filePath string) (*FileTrail, error) {
	index := make(map[string]struct{})

	if data, err := os.ReadFile(filePath); err == nil {
		if err := seedIndex(index, data); err != nil {
			return nil, fmt.Errorf("failed to read existing audit log: %w", err)
		}
	}

	// Audit log path is intentionally configurable by the operator
	// #nosec G304
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileTrail{
		file:   file,
		writer: bufio.NewWriter(file),
		index:  index,
	}, nil
}

func seedIndex(index map[string]struct{}, data []byte) error {
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("malformed audit entry: %w", err)
			}
			index[entry.Key()] = struct{}{}
		}
	}
	return nil
}

// Append writes one entry and flushes immediately for crash safety.
func (t *FileTrail) Append(entry Entry) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush audit log: %w", err)
	}

	t.index[entry.Key()] = struct{}{}
	return nil
}

// Seen reports whether the pair has already been logged.
func (t *FileTrail) Seen(customerID, correlationID string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	_, ok := t.index[Key(customerID, correlationID)]
	return ok
}

// Close flushes pending writes and closes the file.
func (t *FileTrail) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var errs []error
	if err := t.writer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush audit log: %w", err))
	}
	if err := t.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audit log: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing audit log: %v", errs)
	}
	return nil
}
