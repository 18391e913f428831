package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
)

// String returns the tag printed in front of each line.
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel maps a config value ("debug", "info", "warn", "error" or 0-3) to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "0":
		return DEBUG, nil
	case "info", "1", "":
		return INFO, nil
	case "warn", "warning", "2":
		return WARNING, nil
	case "error", "3":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// Options configures file output and rotation.
type Options struct {
	File       string // base path; files land in <dir>/<yyyy-mm-dd>/<name>-<hh>.log
	MaxSize    int    // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	Level      LogLevel
	Stdout     bool
}

// LoggerInterface defines the interface for logging methods
type LoggerInterface interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warning(format string, v ...interface{})
	Error(format string, v ...interface{})
	Fatal(format string, v ...interface{})
	Sync() error
	ChangeLogLevel(level LogLevel)
}

// Logger wraps the standard log package with file output and rotation
type Logger struct {
	logger     *log.Logger
	fileWriter io.Writer
	prefix     string

	mu    *sync.RWMutex
	level *LogLevel
}

// NewLogger creates a new logger instance with file output and rotation
func NewLogger(opts Options) (*Logger, error) {
	var writers []io.Writer
	var fileWriter io.Writer

	if opts.File != "" {
		w, err := newHourlyLumberjackWriter(opts.File, opts.MaxSize, opts.MaxBackups, opts.MaxAge, opts.Compress)
		if err != nil {
			return nil, err
		}
		fileWriter = w
		writers = append(writers, w)
	}
	if opts.Stdout || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	level := opts.Level
	return &Logger{
		logger:     log.New(io.MultiWriter(writers...), "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile),
		fileWriter: fileWriter,
		mu:         &sync.RWMutex{},
		level:      &level,
	}, nil
}

// NewConsoleLogger logs to w only, without a rotated file.
func NewConsoleLogger(w io.Writer, level LogLevel) *Logger {
	return &Logger{
		logger: log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		mu:     &sync.RWMutex{},
		level:  &level,
	}
}

// WithPrefix returns a logger sharing output and level that tags every line with [prefix].
func (l *Logger) WithPrefix(prefix string) *Logger {
	child := *l
	child.prefix = "[" + prefix + "] "
	return &child
}

func (l *Logger) enabled(level LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.level <= level
}

func (l *Logger) output(tag, format string, v ...interface{}) {
	l.logger.Output(3, fmt.Sprintf("%-7s %s", "["+tag+"]", l.prefix+fmt.Sprintf(format, v...)))
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.enabled(DEBUG) {
		l.output(DEBUG.String(), format, v...)
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.enabled(INFO) {
		l.output(INFO.String(), format, v...)
	}
}

// Warning logs a warning message
func (l *Logger) Warning(format string, v ...interface{}) {
	if l.enabled(WARNING) {
		l.output(WARNING.String(), format, v...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.enabled(ERROR) {
		l.output(ERROR.String(), format, v...)
	}
}

// Fatal logs an error message and exits
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.output("FATAL", format, v...)
	_ = l.Sync()
	os.Exit(1)
}

// Sync rotates the current hourly file so buffered lines land on disk.
func (l *Logger) Sync() error {
	type rotator interface {
		Rotate() error
	}
	if r, ok := l.fileWriter.(rotator); ok {
		return r.Rotate()
	}
	return nil
}

// Close releases the underlying log file.
func (l *Logger) Close() error {
	if c, ok := l.fileWriter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ChangeLogLevel changes the logging level at runtime
func (l *Logger) ChangeLogLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.level = level
}

type hourlyLumberjackWriter struct {
	baseDir  string
	baseName string
	ext      string

	maxSize    int
	maxBackups int
	maxAge     int
	compress   bool

	mu           sync.Mutex
	currentKey   string
	currentLog   *lumberjack.Logger
	lastPruneDay string
}

func newHourlyLumberjackWriter(basePath string, maxSize, maxBackups, maxAge int, compress bool) (*hourlyLumberjackWriter, error) {
	base := filepath.Base(basePath)
	ext := filepath.Ext(base)
	baseName := strings.TrimSuffix(base, ext)
	if baseName == "" || baseName == "." {
		return nil, fmt.Errorf("invalid log file: %q", basePath)
	}
	if ext == "" {
		ext = ".log"
	}

	w := &hourlyLumberjackWriter{
		baseDir:    filepath.Dir(basePath),
		baseName:   baseName,
		ext:        ext,
		maxSize:    maxSize,
		maxBackups: maxBackups,
		maxAge:     maxAge,
		compress:   compress,
	}
	if err := w.open(time.Now()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *hourlyLumberjackWriter) hourlyPath(now time.Time) string {
	dayDir := filepath.Join(w.baseDir, now.Format("2006-01-02"))
	return filepath.Join(dayDir, fmt.Sprintf("%s-%02d%s", w.baseName, now.Hour(), w.ext))
}

func (w *hourlyLumberjackWriter) open(now time.Time) error {
	path := w.hourlyPath(now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	w.currentKey = now.Format("2006-01-02-15")
	w.currentLog = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    w.maxSize,
		MaxBackups: w.maxBackups,
		MaxAge:     w.maxAge,
		Compress:   w.compress,
	}

	today := now.Format("2006-01-02")
	if w.maxAge > 0 && today != w.lastPruneDay {
		w.lastPruneDay = today
		return w.pruneOldDays(now)
	}
	return nil
}

// roll switches files when the hour changes.
func (w *hourlyLumberjackWriter) roll(now time.Time) error {
	if w.currentLog != nil && w.currentKey == now.Format("2006-01-02-15") {
		return nil
	}
	if w.currentLog != nil {
		_ = w.currentLog.Close()
		w.currentLog = nil
	}
	return w.open(now)
}

func (w *hourlyLumberjackWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.roll(time.Now()); err != nil {
		return 0, err
	}
	return w.currentLog.Write(p)
}

func (w *hourlyLumberjackWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.roll(time.Now()); err != nil {
		return err
	}
	return w.currentLog.Rotate()
}

func (w *hourlyLumberjackWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentLog == nil {
		return nil
	}
	err := w.currentLog.Close()
	w.currentLog = nil
	w.currentKey = ""
	return err
}

// pruneOldDays removes day directories older than maxAge.
func (w *hourlyLumberjackWriter) pruneOldDays(now time.Time) error {
	y, m, d := now.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(w.maxAge - 1))

	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read log directory %q: %w", w.baseDir, err)
	}

	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", ent.Name(), now.Location())
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.RemoveAll(filepath.Join(w.baseDir, ent.Name()))
		}
	}
	return nil
}
