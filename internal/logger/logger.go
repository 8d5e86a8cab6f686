package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type levelStyle struct {
	name  string
	color *color.Color
}

var levelStyles = [...]levelStyle{
	DEBUG: {"DEBUG", color.New(color.FgCyan)},
	INFO:  {"INFO", color.New(color.FgGreen)},
	WARN:  {"WARN", color.New(color.FgYellow)},
	ERROR: {"ERROR", color.New(color.FgRed, color.Bold)},
	FATAL: {"FATAL", color.New(color.FgRed, color.Bold)},
}

func (lv LogLevel) String() string {
	if lv < DEBUG || lv > FATAL {
		return "INFO"
	}
	return levelStyles[lv].name
}

func parseLevel(s string) LogLevel {
	for lv, st := range levelStyles {
		if st.name == strings.ToUpper(s) && LogLevel(lv) != FATAL {
			return LogLevel(lv)
		}
	}
	return INFO
}

// LogEntry is one line of the JSON log file.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

type Logger struct {
	mu       sync.Mutex
	terminal io.Writer
	jsonOut  io.Writer
	logFile  *os.File
	minLevel LogLevel
}

// NewLogger writes coloured lines to the terminal and JSON lines to
// $LOG_DIR/delified-<date>.log (LOG_DIR defaults to "logs"). LOG_LEVEL sets
// the threshold.
func NewLogger() *Logger {
	dir := os.Getenv("LOG_DIR")
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("logger: cannot create %s: %v", dir, err)
	}

	path := filepath.Join(dir, "delified-"+time.Now().Format("2006-01-02")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("logger: cannot open %s: %v", path, err)
	}

	l := &Logger{
		terminal: color.Output,
		jsonOut:  f,
		logFile:  f,
		minLevel: parseLevel(os.Getenv("LOG_LEVEL")),
	}
	l.Info("LOGGER", "writing to "+path)
	return l
}

// NewWithWriter writes JSON lines only to w. Used by tests and tools.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{jsonOut: w, minLevel: DEBUG}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{minLevel: FATAL + 1}
}

func (l *Logger) write(level LogLevel, category, message string) {
	if l == nil || level < l.minLevel {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
	}
	// skip write and the public wrapper
	if _, file, line, ok := runtime.Caller(2); ok {
		entry.File, entry.Line = filepath.Base(file), line
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.terminal != nil {
		io.WriteString(l.terminal, renderTerminal(level, entry))
	}
	if l.jsonOut != nil {
		if b, err := json.Marshal(entry); err == nil {
			l.jsonOut.Write(append(b, '\n'))
		}
	}
}

func renderTerminal(level LogLevel, e LogEntry) string {
	style := color.New(color.FgWhite)
	if level >= DEBUG && level <= FATAL {
		style = levelStyles[level].color
	}

	var b strings.Builder
	b.WriteString(color.New(color.FgBlue).Sprint(e.Timestamp[11:19]))
	b.WriteByte(' ')
	b.WriteString(style.Sprintf("%-5s", e.Level))
	b.WriteByte(' ')
	b.WriteString(style.Sprintf("[%-12s]", e.Category))
	b.WriteByte(' ')
	b.WriteString(e.Message)
	if e.File != "" && e.Line > 0 {
		b.WriteString(color.New(color.FgMagenta).Sprintf(" (%s:%d)", e.File, e.Line))
	}
	b.WriteByte('\n')
	return b.String()
}

func (l *Logger) Debug(category, message string) { l.write(DEBUG, category, message) }
func (l *Logger) Info(category, message string)  { l.write(INFO, category, message) }
func (l *Logger) Warn(category, message string)  { l.write(WARN, category, message) }
func (l *Logger) Error(category, message string) { l.write(ERROR, category, message) }

// Fatal logs and exits the process.
func (l *Logger) Fatal(category, message string) {
	l.write(FATAL, category, message)
	os.Exit(1)
}

func (l *Logger) LogAPI(method, path string, status int, duration time.Duration) {
	l.write(INFO, "API", fmt.Sprintf("%s %s - %d (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.write(INFO, "KAFKA", tagged(action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.write(INFO, "DATABASE", tagged(operation, table, message))
}

func (l *Logger) LogPayment(action, paymentID, message string) {
	l.write(INFO, "PAYMENT", tagged(action, paymentID, message))
}

func (l *Logger) LogRegistration(action, registrationID, message string) {
	l.write(INFO, "REGISTRATION", tagged(action, registrationID, message))
}

// LogSecurity always logs at WARN.
func (l *Logger) LogSecurity(event, message string) {
	l.write(WARN, "SECURITY", "["+event+"] "+message)
}

func tagged(action, subject, message string) string {
	return "[" + action + "] " + subject + " - " + message
}

func (l *Logger) Close() {
	if l == nil || l.logFile == nil {
		return
	}
	l.logFile.Close()
	l.logFile, l.jsonOut = nil, nil
}
