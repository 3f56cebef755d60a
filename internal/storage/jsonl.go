package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"logscope/internal/model"
)

// JSONLSink writes typed events and decode errors to two JSONL files.
// An empty error path drops decode errors.
type JSONLSink struct {
	eventsPath string
	errorsPath string
	mu         sync.Mutex
}

func NewJSONLSink(eventsPath, errorsPath string) *JSONLSink {
	return &JSONLSink{eventsPath: eventsPath, errorsPath: errorsPath}
}

// PutEvents appends typed events as JSON lines.
func (s *JSONLSink) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]interface{}, 0, len(events))
	for _, event := range events {
		records = append(records, event)
	}
	return s.appendLines(s.eventsPath, records)
}

// PutDecodeErrors appends decode error records as JSON lines.
func (s *JSONLSink) PutDecodeErrors(ctx context.Context, records []model.DecodeError) error {
	if len(records) == 0 || s.errorsPath == "" {
		return nil
	}
	lines := make([]interface{}, 0, len(records))
	for _, record := range records {
		lines = append(lines, record)
	}
	return s.appendLines(s.errorsPath, lines)
}

func (s *JSONLSink) appendLines(path string, records []interface{}) error {
	if path == "" {
		return fmt.Errorf("output path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
