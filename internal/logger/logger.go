package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a Logger
type Options struct {
	Level  string
	Format string
	// Dir, when set, receives a timestamped log file in addition to Out.
	Dir string
	Out io.Writer
}

// Logger provides logging functionality
type Logger struct {
	*logrus.Logger
	file *os.File
}

// NewLogger creates a new logger instance
func NewLogger(opts Options) (*Logger, error) {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	log := logrus.New()
	log.SetLevel(level)
	if strings.EqualFold(opts.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	l := &Logger{Logger: log}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		logPath := filepath.Join(opts.Dir, fmt.Sprintf("verify_%s.log", timestamp))
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		l.file = file
		out = io.MultiWriter(out, file)
	}
	log.SetOutput(out)
	return l, nil
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// LogAdvisorCall logs one exchange with the remediation advisor.
func LogAdvisorCall(log logrus.FieldLogger, operation string, input, output string, err error) {
	entry := log.WithFields(logrus.Fields{
		"operation": operation,
		"input":     input,
	})
	if err != nil {
		entry.WithError(err).Warn("advisor call failed")
		return
	}
	entry.WithField("output", output).Debug("advisor call")
}
