package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// LogFileName is the rotated log file written under Options.Dir
const LogFileName = "rps-bot.log"

// Options configures the process-wide logger
type Options struct {
	Level   string // debug, info, warn, error
	Dir     string // empty disables the file output
	Console bool

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Entry is a log line as delivered to sinks
type Entry struct {
	Time      time.Time
	Level     LogLevel
	Component string
	Message   string
	Fields    map[string]interface{}
}

// String renders the entry the way the console output does
func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s [%s] %s", e.Time.Format("15:04:05.000"), e.Level, e.Component, e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
		}
	}
	return b.String()
}

var (
	base    atomic.Pointer[zap.Logger]
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	setupMu sync.Mutex
	rotator *lumberjack.Logger

	sinksMu sync.RWMutex
	sinks   = map[int]func(Entry){}
	sinkSeq int
)

func init() {
	base.Store(zap.New(zapcore.NewTee(consoleCore(), &sinkCore{level: level})))
}

// Setup replaces the process-wide logger. It may be called more than once.
func Setup(opts Options) error {
	setupMu.Lock()
	defer setupMu.Unlock()

	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)

	cores := []zapcore.Core{&sinkCore{level: level}}
	if opts.Console {
		cores = append(cores, consoleCore())
	}

	var next *lumberjack.Logger
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		next = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, LogFileName),
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(next), level))
	}

	old := base.Swap(zap.New(zapcore.NewTee(cores...)))
	_ = old.Sync()
	if rotator != nil {
		_ = rotator.Close()
	}
	rotator = next
	return nil
}

// Close flushes and closes the log file
func Close() error {
	setupMu.Lock()
	defer setupMu.Unlock()

	_ = base.Load().Sync()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	base.Store(zap.New(zapcore.NewTee(consoleCore(), &sinkCore{level: level})))
	return err
}

// ParseLevel maps a config string to a zap level
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// AddSink registers fn to receive every entry at or above the current level.
// fn runs on the logging goroutine and must not block. The returned func
// removes the sink.
func AddSink(fn func(Entry)) (remove func()) {
	sinksMu.Lock()
	sinkSeq++
	id := sinkSeq
	sinks[id] = fn
	sinksMu.Unlock()

	return func() {
		sinksMu.Lock()
		delete(sinks, id)
		sinksMu.Unlock()
	}
}

func consoleCore() zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// sinkCore fans entries out to AddSink callbacks
type sinkCore struct {
	level  zapcore.LevelEnabler
	fields []zapcore.Field
}

func (c *sinkCore) Enabled(l zapcore.Level) bool { return c.level.Enabled(l) }

func (c *sinkCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &sinkCore{level: c.level, fields: merged}
}

func (c *sinkCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sinkCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	sinksMu.RLock()
	defer sinksMu.RUnlock()
	if len(sinks) == 0 {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	out := Entry{
		Time:    ent.Time,
		Level:   fromZapLevel(ent.Level),
		Message: ent.Message,
		Fields:  enc.Fields,
	}
	if comp, ok := enc.Fields["component"].(string); ok {
		out.Component = comp
		delete(enc.Fields, "component")
	}
	if fatal, ok := enc.Fields["fatal"].(bool); ok && fatal {
		out.Level = LogLevelFatal
		delete(enc.Fields, "fatal")
	}
	if len(out.Fields) == 0 {
		out.Fields = nil
	}

	for _, fn := range sinks {
		fn(out)
	}
	return nil
}

func (c *sinkCore) Sync() error { return nil }

func fromZapLevel(l zapcore.Level) LogLevel {
	switch {
	case l <= zapcore.DebugLevel:
		return LogLevelDebug
	case l == zapcore.InfoLevel:
		return LogLevelInfo
	case l == zapcore.WarnLevel:
		return LogLevelWarn
	case l >= zapcore.FatalLevel:
		return LogLevelFatal
	}
	return LogLevelError
}

// Logger provides structured logging for one component
type Logger struct {
	component string
}

// NewLogger creates a new logger for a specific component
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Component returns the component name
func (l *Logger) Component() string {
	return l.component
}

// log writes a log entry through the process-wide zap logger
func (l *Logger) log(lvl LogLevel, message string, err error, context map[string]interface{}) {
	z := base.Load()

	zl := zapcore.InfoLevel
	fatal := false
	switch lvl {
	case LogLevelDebug:
		zl = zapcore.DebugLevel
	case LogLevelWarn:
		zl = zapcore.WarnLevel
	case LogLevelError:
		zl = zapcore.ErrorLevel
	case LogLevelFatal:
		// reported at error level; callers decide whether to exit
		zl = zapcore.ErrorLevel
		fatal = true
	}

	ce := z.Check(zl, message)
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, len(context)+3)
	fields = append(fields, zap.String("component", l.component))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if fatal {
		fields = append(fields, zap.Bool("fatal", true))
	}
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, context[k]))
	}
	ce.Write(fields...)
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(LogLevelDebug, message, nil, nil)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelDebug, message, nil, context)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(LogLevelInfo, message, nil, nil)
}

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelInfo, message, nil, context)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(LogLevelWarn, message, nil, nil)
}

// WarnWithContext logs a warning message with context
func (l *Logger) WarnWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelWarn, message, nil, context)
}

// Error logs an error message
func (l *Logger) Error(message string, err error) {
	l.log(LogLevelError, message, err, nil)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(message string, err error, context map[string]interface{}) {
	l.log(LogLevelError, message, err, context)
}

// Fatal logs a fatal error message
func (l *Logger) Fatal(message string, err error) {
	l.log(LogLevelFatal, message, err, nil)
}

// WithContext returns a logger that includes context on every line
func (l *Logger) WithContext(context map[string]interface{}) *ContextLogger {
	return &ContextLogger{
		logger:  l,
		context: context,
	}
}

// ContextLogger is a logger with pre-set context
type ContextLogger struct {
	logger  *Logger
	context map[string]interface{}
}

// Debug logs a debug message with pre-set context
func (cl *ContextLogger) Debug(message string) {
	cl.logger.log(LogLevelDebug, message, nil, cl.context)
}

// Info logs an info message with pre-set context
func (cl *ContextLogger) Info(message string) {
	cl.logger.log(LogLevelInfo, message, nil, cl.context)
}

// Warn logs a warning message with pre-set context
func (cl *ContextLogger) Warn(message string) {
	cl.logger.log(LogLevelWarn, message, nil, cl.context)
}

// Error logs an error message with pre-set context
func (cl *ContextLogger) Error(message string, err error) {
	cl.logger.log(LogLevelError, message, err, cl.context)
}
