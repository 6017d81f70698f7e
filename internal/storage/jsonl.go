package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"taxScope/internal/model"
)

// JsonlStorage writes history events to a JSONL file and decode failures to
// a sibling .errors.jsonl file. Writing a transaction that is already in the
// file replaces its earlier rows.
type JsonlStorage struct {
	path       string
	errorsPath string
	mu         sync.Mutex
	// event identifiers present in the event file, loaded on first write
	written map[string]struct{}
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path, errorsPath: ErrorsPath(path)}
}

// ErrorsPath derives the decode error file of an event file.
func ErrorsPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".errors.jsonl"
}

// PutEvents appends events as JSON lines. When a batch carries an
// event_identifier the file already holds, the file is rewritten without the
// old rows of that identifier first.
func (s *JsonlStorage) PutEvents(_ context.Context, events []*model.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.written == nil {
		written, err := eventIdentifiers(s.path)
		if err != nil {
			return err
		}
		s.written = written
	}

	batch := make(map[string]struct{}, len(events))
	replace := false
	records := make([]any, len(events))
	for i, event := range events {
		records[i] = event
		batch[event.EventIdentifier] = struct{}{}
		if _, ok := s.written[event.EventIdentifier]; ok {
			replace = true
		}
	}

	var err error
	if replace {
		err = s.replaceEvents(batch, records)
	} else {
		err = appendLines(s.path, records)
	}
	if err != nil {
		return err
	}
	for id := range batch {
		s.written[id] = struct{}{}
	}
	return nil
}

// PutDecodeErrors appends failed transactions as JSON lines.
func (s *JsonlStorage) PutDecodeErrors(_ context.Context, errs []model.DecodeError) error {
	if len(errs) == 0 {
		return nil
	}
	records := make([]any, len(errs))
	for i, e := range errs {
		records[i] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.errorsPath, records)
}

// replaceEvents rewrites the event file through a temporary sibling, dropping
// the rows of the identifiers in batch and appending records.
func (s *JsonlStorage) replaceEvents(batch map[string]struct{}, records []any) error {
	existing, err := ReadEvents(s.path)
	if err != nil {
		return err
	}
	kept := make([]any, 0, len(existing)+len(records))
	for _, event := range existing {
		if _, ok := batch[event.EventIdentifier]; ok {
			continue
		}
		kept = append(kept, event)
	}
	kept = append(kept, records...)

	file, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmp := file.Name()
	if err := writeLines(file, kept); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp output: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace output file: %w", err)
	}
	return nil
}

// eventIdentifiers lists the identifiers stored in an event file. A missing
// file has none.
func eventIdentifiers(path string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	events, err := ReadEvents(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return nil, err
	}
	for _, event := range events {
		ids[event.EventIdentifier] = struct{}{}
	}
	return ids, nil
}

func appendLines(path string, records []any) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	return writeLines(file, records)
}

func writeLines(w io.Writer, records []any) error {
	writer := bufio.NewWriter(w)
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

// ReadEvents loads every event of a JSONL file in file order. Blank lines are
// skipped.
func ReadEvents(path string) ([]*model.HistoryEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer file.Close()

	var events []*model.HistoryEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var event model.HistoryEvent
		if err := json.Unmarshal([]byte(text), &event); err != nil {
			return nil, fmt.Errorf("parse event on line %d: %w", line, err)
		}
		events = append(events, &event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	return events, nil
}
