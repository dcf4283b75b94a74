package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	// SilentLevel suppresses all output.
	SilentLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case SilentLevel:
		return "SILENT"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "silent", "off", "none":
		return SilentLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger interface defines structured logging methods.
// Args are key/value pairs appended to the message.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// With returns a logger that prepends the given key/value pairs to every entry.
	With(args ...interface{}) Logger
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// DefaultLogger is the default implementation of Logger.
// Children created by With share the parent's output and settings.
type DefaultLogger struct {
	core   *core
	fields []interface{}
}

type core struct {
	mu         sync.Mutex
	level      Level
	jsonOutput bool
	out        io.Writer
	colors     bool
}

var (
	defaultLogger *DefaultLogger
	once          sync.Once
)

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return &DefaultLogger{core: &core{
		level:      cfg.Level,
		jsonOutput: cfg.JSONOutput,
		out:        out,
		colors:     isTerminal(out),
	}}
}

// Default returns the process logger used by the CLI.
func Default() *DefaultLogger {
	once.Do(func() {
		defaultLogger = New(LoggerConfig{Level: InfoLevel, Output: os.Stderr})
	})
	return defaultLogger
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return New(LoggerConfig{Level: SilentLevel, Output: io.Discard})
}

// isTerminal reports whether w is a terminal that accepts ANSI colors.
func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY checks if the standard error is a TTY
func IsTTY() bool {
	return isTerminal(os.Stderr)
}

// pairs flattens key/value args into ordered key/value strings.
// A leading odd argument is kept under the "extra" key.
func pairs(args []interface{}) [][2]string {
	var out [][2]string
	if len(args)%2 != 0 {
		out = append(out, [2]string{"extra", fmt.Sprintf("%v", args[0])})
		args = args[1:]
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		out = append(out, [2]string{key, fmt.Sprintf("%v", args[i+1])})
	}
	return out
}

// formatMessage formats the message with key-value args
func formatMessage(msg string, kv [][2]string) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for _, p := range kv {
		sb.WriteString(" ")
		sb.WriteString(p[0])
		sb.WriteString("=")
		sb.WriteString(p[1])
	}
	return sb.String()
}

// getColor returns the ANSI color code for the given level
func getColor(level Level) string {
	switch level {
	case DebugLevel:
		return "\033[36m" // Cyan
	case InfoLevel:
		return "\033[32m" // Green
	case WarnLevel:
		return "\033[33m" // Yellow
	case ErrorLevel:
		return "\033[31m" // Red
	default:
		return ""
	}
}

func (l *DefaultLogger) log(level Level, msg string, args []interface{}) {
	c := l.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if level < c.level {
		return
	}

	kv := pairs(append(append([]interface{}{}, l.fields...), args...))
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	if c.jsonOutput {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level.String(),
			"message":   msg,
		}
		for _, p := range kv {
			entry[p[0]] = p[1]
		}
		data, _ := json.Marshal(entry)
		fmt.Fprintln(c.out, string(data))
		return
	}

	text := formatMessage(msg, kv)
	if c.colors {
		text = getColor(level) + text + "\033[0m"
	}
	fmt.Fprintf(c.out, "[%s] %s: %s\n", timestamp, level, text)
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...interface{}) { l.log(DebugLevel, msg, args) }

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...interface{}) { l.log(InfoLevel, msg, args) }

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, args ...interface{}) { l.log(WarnLevel, msg, args) }

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...interface{}) { l.log(ErrorLevel, msg, args) }

// With returns a child logger carrying extra fields.
func (l *DefaultLogger) With(args ...interface{}) Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &DefaultLogger{core: l.core, fields: fields}
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

// SetJSONOutput enables or disables JSON output
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.jsonOutput = enabled
}

var _ Logger = (*DefaultLogger)(nil)

// ProgressSpinner provides a spinner for long-running operations
type ProgressSpinner struct {
	mu      sync.Mutex
	message string
	frames  []string
	current int
	writer  io.Writer
	colors  bool
	stop    chan struct{}
	done    chan struct{}
}

// NewProgressSpinner creates a new progress spinner writing to stderr.
func NewProgressSpinner(message string) *ProgressSpinner {
	return &ProgressSpinner{
		message: message,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		writer:  os.Stderr,
		colors:  IsTTY(),
	}
}

// Start begins the spinner animation
func (p *ProgressSpinner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.animate(p.stop, p.done)
}

// Stop stops the spinner and clears its line.
func (p *ProgressSpinner) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	fmt.Fprint(p.writer, "\r\033[K")
}

// Message updates the spinner message
func (p *ProgressSpinner) Message(msg string) {
	p.mu.Lock()
	p.message = msg
	p.mu.Unlock()
}

func (p *ProgressSpinner) animate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			p.draw()
			p.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// draw renders the spinner to the terminal
func (p *ProgressSpinner) draw() {
	frame := p.frames[p.current%len(p.frames)]
	p.current++

	if p.colors {
		fmt.Fprintf(p.writer, "\r\033[36m%s\033[0m %s", frame, p.message)
	} else {
		fmt.Fprintf(p.writer, "\r%s %s", frame, p.message)
	}
}
