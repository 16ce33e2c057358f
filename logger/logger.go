package logger

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
)

// Logger type is interface for available logging methods.
type Logger interface {
	Trace(...interface{})
	Debug(...interface{})
	Info(...interface{})
	Warn(...interface{})
	Error(...interface{})
	Panic(...interface{})
	Fatal(...interface{})
}

// Fields are the structured values attached to every line written by a logger.
type Fields = log.Fields

// LoggerImpl is a struct that extends sirupsen/logrus.
type LoggerImpl struct {
	Logger         *log.Entry
	Service        string
	LogLevelStr    string
	PrintStackDump bool
}

// NewLogger will create a new logger implementation.
// Output is plain text when stderr is a terminal and JSON otherwise, so that schedulers and
// log shippers receive structured lines.
func NewLogger(serviceName string, level string, stackDumpOnPanic bool) *LoggerImpl {
	return NewLoggerWithFields(serviceName, level, stackDumpOnPanic, nil)
}

// NewLoggerWithFields is NewLogger with extra fields added to every line.
func NewLoggerWithFields(serviceName string, level string, stackDumpOnPanic bool, fields Fields) *LoggerImpl {
	log.SetOutput(os.Stderr)
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	logLevel, err := log.ParseLevel(level)
	if err == nil {
		log.SetLevel(logLevel)
	} else {
		fmt.Println("Error setting up logging: ", err)
		os.Exit(1)
	}
	f := log.Fields{"service": serviceName}
	for k, v := range fields {
		f[k] = v
	}
	return &LoggerImpl{Logger: log.WithFields(f), Service: serviceName, LogLevelStr: level, PrintStackDump: stackDumpOnPanic}
}

// WithFields returns a copy of l that adds fields to every line, e.g. the entity and run ID.
func (l *LoggerImpl) WithFields(fields Fields) *LoggerImpl {
	return &LoggerImpl{Logger: l.Logger.WithFields(fields), Service: l.Service, LogLevelStr: l.LogLevelStr, PrintStackDump: l.PrintStackDump}
}

// WithFields adds fields to any Logger that supports them.
// Other implementations, such as a bare logrus.Logger in tests, are returned unchanged.
func WithFields(l Logger, fields Fields) Logger {
	switch x := l.(type) {
	case *LoggerImpl:
		return x.WithFields(fields)
	case *log.Logger:
		return x.WithFields(fields)
	case *log.Entry:
		return x.WithFields(fields)
	}
	return l
}

func (l *LoggerImpl) Trace(message ...interface{}) {
	l.Logger.Trace(message...)
}

func (l *LoggerImpl) Debug(message ...interface{}) {
	l.Logger.Debug(message...)
}

func (l *LoggerImpl) Info(message ...interface{}) {
	l.Logger.Info(message...)
}

func (l *LoggerImpl) Warn(message ...interface{}) {
	l.Logger.Warn(message...)
}

// Error (with stack trace in trace mode or if PrintStackDump is set).
func (l *LoggerImpl) Error(message ...interface{}) {
	if l.LogLevelStr == "trace" || l.PrintStackDump {
		l.Logger.WithField("stackTrace", fmt.Sprintf("%s", debug.Stack())).Error(message...)
		return
	}
	l.Logger.Error(message...)
}

// Panic (with stack trace in debug mode, or if user explicitly sets PrintStackDump).
func (l *LoggerImpl) Panic(message ...interface{}) {
	if l.PrintStackDump {
		l.Logger.WithField("stackTrace", fmt.Sprintf("%s", debug.Stack())).Panic(message...)
	}
	if l.LogLevelStr == "debug" || l.LogLevelStr == "trace" {
		l.Logger.Panic(message...)
	}
	// Log the message and quit without a stack dump.
	l.Logger.Fatal(message...)
}

// Fatal (with stack trace in debug mode).
// This causes exit(1) without a stack dump by default.
// Call Panic() to get a stack dump instead.
func (l *LoggerImpl) Fatal(message ...interface{}) {
	if l.LogLevelStr == "debug" || l.LogLevelStr == "trace" {
		l.Logger.WithField("stackTrace", fmt.Sprintf("%s", debug.Stack())).Fatal(message...)
	} else {
		l.Logger.Fatal(message...)
	}
}

// SetOutput will set the log output to the Writer supplied.
func (l *LoggerImpl) SetOutput(writer io.Writer) {
	log.SetOutput(writer)
}

// SetFormatter replaces the formatter chosen at construction.
func (l *LoggerImpl) SetFormatter(f log.Formatter) {
	log.SetFormatter(f)
}
