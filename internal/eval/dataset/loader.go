package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Loader reads a labelled menu dataset
type Loader struct {
	datasetPath string
	logger      *slog.Logger
}

// NewLoader creates a new dataset loader
func NewLoader(datasetPath string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		datasetPath: datasetPath,
		logger:      logger,
	}
}

// Dir is the directory record file paths are relative to
func (l *Loader) Dir() string {
	return filepath.Dir(l.datasetPath)
}

// Load reads up to limit records from a JSONL or Parquet file; limit < 0 reads them all.
func (l *Loader) Load(limit int) ([]MenuRecord, error) {
	ext := strings.ToLower(filepath.Ext(l.datasetPath))

	var (
		records []MenuRecord
		err     error
	)
	switch ext {
	case ".parquet":
		records, err = l.loadParquet(limit)
	case ".jsonl", ".json":
		records, err = l.loadJSONL(limit)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", ext)
	}
	if err != nil {
		return nil, err
	}

	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("record %d has no id", i+1)
		}
		if len(r.Files) == 0 {
			return nil, fmt.Errorf("record %s lists no files", r.ID)
		}
	}
	return records, nil
}

func (l *Loader) loadJSONL(limit int) ([]MenuRecord, error) {
	l.logger.Debug("Opening JSONL file", "path", l.datasetPath)

	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	var records []MenuRecord
	scanner := bufio.NewScanner(file)

	// item lists for long menus can exceed the default token size
	const maxCapacity = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	lineNum := 0
	for scanner.Scan() && (limit < 0 || len(records) < limit) {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var record MenuRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}

	l.logger.Debug("Finished reading JSONL file", "total_records", len(records), "total_lines", lineNum)
	return records, nil
}

func (l *Loader) loadParquet(limit int) ([]MenuRecord, error) {
	l.logger.Debug("Opening Parquet file", "path", l.datasetPath)

	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	l.logger.Debug("Parquet file opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[MenuRecord](pf)
	defer reader.Close()

	var records []MenuRecord
	rows := make([]MenuRecord, 64)
	for limit < 0 || len(records) < limit {
		n, err := reader.Read(rows)
		if n > 0 {
			if limit >= 0 && n > limit-len(records) {
				n = limit - len(records)
			}
			records = append(records, rows[:n]...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	l.logger.Debug("Finished reading Parquet file", "total_records", len(records))
	return records, nil
}
