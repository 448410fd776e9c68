// Package sink writes scan results out as they become available: append-only
// files for durability independent of the checkpoint, and an optional
// relational store for querying.
package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mescon/Scanarr/internal/domain"
	"github.com/mescon/Scanarr/internal/logger"
)

// Record is the structured per-file result shape shared by the appenders.
type Record struct {
	Filename              string    `json:"filename"`
	Path                  string    `json:"path"`
	Index                 int       `json:"index"`
	IsCorrupt             bool      `json:"is_corrupt"`
	Status                string    `json:"status"`
	Confidence            float64   `json:"confidence"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	Diagnostic            string    `json:"diagnostic,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}

// FromVerdict builds a Record from a classified verdict.
func FromVerdict(v *domain.Verdict, index int) Record {
	return Record{
		Filename:              filepath.Base(v.Path),
		Path:                  v.Path,
		Index:                 index,
		IsCorrupt:             v.IsCorrupt,
		Status:                v.Status(),
		Confidence:            v.Confidence,
		ProcessingTimeSeconds: v.Elapsed.Seconds(),
		Diagnostic:            v.Message,
		Timestamp:             v.Timestamp,
	}
}

// FromRejection builds a Record for a file that never reached decode checks.
func FromRejection(r *domain.Rejection, index int) Record {
	return Record{
		Filename:   filepath.Base(r.Path),
		Path:       r.Path,
		Index:      index,
		Status:     domain.StatusRejected,
		Diagnostic: r.Reason,
		Timestamp:  r.Timestamp,
	}
}

// Appender receives one record per finished file, in completion order.
type Appender interface {
	Append(rec Record) error
	Close() error
}

// LineLog writes one human-readable line per record.
type LineLog struct {
	f *os.File
}

// NewLineLog opens (appending) a line-log sink at path.
func NewLineLog(path string) (*LineLog, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &LineLog{f: f}, nil
}

func (l *LineLog) Append(rec Record) error {
	line := fmt.Sprintf("%s %-10s %s", rec.Timestamp.Format(time.RFC3339), rec.Status, rec.Path)
	if rec.Diagnostic != "" {
		line += " | " + rec.Diagnostic
	}
	_, err := fmt.Fprintln(l.f, line)
	return err
}

func (l *LineLog) Close() error { return l.f.Close() }

// CSVSink writes the tabular shape: path and corrupt flag.
type CSVSink struct {
	f *os.File
	w *csv.Writer
}

// NewCSVSink opens (appending) a CSV sink at path, writing the header only
// when the file is new.
func NewCSVSink(path string) (*CSVSink, error) {
	info, statErr := os.Stat(path)
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	s := &CSVSink{f: f, w: csv.NewWriter(f)}
	if statErr != nil || info.Size() == 0 {
		if err := s.w.Write([]string{"path", "is_corrupt"}); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *CSVSink) Append(rec Record) error {
	if err := s.w.Write([]string{rec.Path, strconv.FormatBool(rec.IsCorrupt)}); err != nil {
		return err
	}
	// Flush per record: the point of an append sink is durability even when
	// the process dies mid-scan.
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

// JSONL writes the full structured record, one JSON object per line.
type JSONL struct {
	f   *os.File
	enc *json.Encoder
}

// NewJSONL opens (appending) a JSON-lines sink at path.
func NewJSONL(path string) (*JSONL, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &JSONL{f: f, enc: json.NewEncoder(f)}, nil
}

func (j *JSONL) Append(rec Record) error { return j.enc.Encode(rec) }

func (j *JSONL) Close() error { return j.f.Close() }

// Multi fans records out to several appenders. A failing appender is logged
// and skipped; result sinks never abort a scan.
type Multi struct {
	appenders []Appender
}

// NewMulti wraps the given appenders (nil entries are ignored).
func NewMulti(appenders ...Appender) *Multi {
	m := &Multi{}
	for _, a := range appenders {
		if a != nil {
			m.appenders = append(m.appenders, a)
		}
	}
	return m
}

func (m *Multi) Append(rec Record) error {
	for _, a := range m.appenders {
		if err := a.Append(rec); err != nil {
			logger.Warnf("Result sink append failed for %s: %v", rec.Path, err)
		}
	}
	return nil
}

func (m *Multi) Close() error {
	var firstErr error
	for _, a := range m.appenders {
		if err := a.Close(); err != nil {
			logger.Warnf("Result sink close failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create result directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open result sink %s: %w", path, err)
	}
	return f, nil
}
