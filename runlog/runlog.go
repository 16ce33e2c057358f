// Package runlog records timestamped phase-completion messages for a run.
package runlog

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/logger"
	"gopkg.in/natefinch/lumberjack.v2"
)

const lineTimeFormat = "2006-01-02 15:04:05.000000"

// Entry is one run log line.
type Entry struct {
	Time    time.Time `json:"time"`
	RunID   string    `json:"runId"`
	Entity  string    `json:"entity,omitempty"`
	Message string    `json:"message"`
}

// Line renders e as "(<timestamp>)  <message>".
func (e Entry) Line() string {
	return fmt.Sprintf("(%v)  %v", e.Time.Format(lineTimeFormat), e.Message)
}

// Sink receives entries as they are appended.
type Sink interface {
	Write(e Entry) error
	Close() error
}

// Log is an append-only sequence of entries fanned out to sinks.
// Sink failures are reported by Err and never stop the run.
type Log struct {
	mu      sync.Mutex
	runID   string
	entries []Entry
	sinks   []Sink
	errs    []error
	now     func() time.Time
}

func New(runID string, sinks ...Sink) *Log {
	return &Log{runID: runID, sinks: sinks, now: time.Now}
}

// Append adds a message for entity, which may be empty for run-level messages.
func (l *Log) Append(entity string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := Entry{Time: l.now(), RunID: l.runID, Entity: entity, Message: fmt.Sprintf(format, args...)}
	l.entries = append(l.entries, e)
	for _, s := range l.sinks {
		if err := s.Write(e); err != nil {
			l.errs = append(l.errs, err)
		}
	}
}

// Entries returns a copy of everything appended so far.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Err returns the first sink error seen, if any.
func (l *Log) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errs) > 0 {
		return l.errs[0]
	}
	return nil
}

// Close closes every sink.
func (l *Log) Close() (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.sinks {
		if e := s.Close(); e != nil && err == nil {
			err = e
		}
	}
	return
}

// FileName returns <prefix>_<YYYY-MM-DD>.txt.
func FileName(prefix string, date time.Time) string {
	if prefix == "" {
		prefix = constants.RunLogFilePrefixDefault
	}
	return fmt.Sprintf("%v_%v.txt", prefix, date.Format(constants.DateFormat))
}

// FileSink appends lines to a daily run log file.
// An existing file for the same day is appended to.
type FileSink struct {
	w *lumberjack.Logger
}

// NewFileSink returns a sink writing to dir/<prefix>_<date>.txt.
// maxSizeMB limits the file size before lumberjack rotates it.
func NewFileSink(dir string, prefix string, date time.Time, maxSizeMB int) *FileSink {
	return &FileSink{w: &lumberjack.Logger{
		Filename:  filepath.Join(dir, FileName(prefix, date)),
		MaxSize:   maxSizeMB,
		LocalTime: true,
	}}
}

// Filename returns the path written to.
func (s *FileSink) Filename() string {
	return s.w.Filename
}

func (s *FileSink) Write(e Entry) error {
	if _, err := s.w.Write([]byte(e.Line() + "\n")); err != nil {
		return errors.Wrapf(err, "unable to write run log file %v", s.w.Filename)
	}
	return nil
}

func (s *FileSink) Close() error {
	return s.w.Close()
}

// LoggerSink writes entries to a structured logger.
type LoggerSink struct {
	log logger.Logger
}

func NewLoggerSink(log logger.Logger) *LoggerSink {
	return &LoggerSink{log: log}
}

func (s *LoggerSink) Write(e Entry) error {
	fields := logger.Fields{"runId": e.RunID}
	if e.Entity != "" {
		fields["entity"] = e.Entity
	}
	logger.WithFields(s.log, fields).Info(e.Message)
	return nil
}

func (s *LoggerSink) Close() error {
	return nil
}
