// Package adapter isolates the mining core from its external
// collaborators: corpus ingestion, parsing, printing, the behavioral
// oracle, the alternative compression engine and report persistence.
package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Record is one corpus entry: a program identifier and its raw source
// text. Parsing the text into trees is the Parser's job; the mining core
// never touches raw source.
type Record struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// CorpusStore reads a line-delimited collection of program records.
type CorpusStore interface {
	// Load returns the well-formed records in file order plus the count
	// of malformed lines skipped. A single bad record is never fatal.
	Load(ctx context.Context, path string) ([]Record, int, error)
}

// LocalCorpusStore reads JSONL corpus files from the local filesystem.
type LocalCorpusStore struct{}

// NewLocalCorpusStore constructs a LocalCorpusStore.
func NewLocalCorpusStore() *LocalCorpusStore {
	return &LocalCorpusStore{}
}

// Load implements CorpusStore.
func (s *LocalCorpusStore) Load(ctx context.Context, path string) ([]Record, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer file.Close()

	var records []Record

	skipped := 0
	line := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}

		line++

		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var record Record
		if err := json.Unmarshal(raw, &record); err != nil {
			slog.Warn("skipping malformed corpus record", "path", path, "line", line, "error", err)

			skipped++

			continue
		}

		if record.ID == "" {
			slog.Warn("skipping corpus record without id", "path", path, "line", line)

			skipped++

			continue
		}

		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read corpus %s: %w", path, err)
	}

	return records, skipped, nil
}
