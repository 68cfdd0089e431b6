// Package log provides named, leveled loggers backed by go-logging. Output is either human readable text
// or one JSON object per line.
package log

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/op/go-logging"
)

type Level logging.Level

// The levels that can be passed to the SetLevel function.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
	Critical
)

// Format selects how log records are rendered.
type Format int

const (
	// FormatText renders records as colored text lines.
	FormatText Format = iota
	// FormatJSON renders records as {"time","level","module","message"} objects, one per line.
	FormatJSON
)

// The text formatter
var textFormat = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level}]%{color:reset} %{message}`,
)

var (
	mu             sync.Mutex
	sink           io.Writer = os.Stdout
	formatter      logging.Formatter = textFormat
	level                            = logging.NOTICE
	leveledBackend logging.LeveledBackend
)

// The logger interface
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})

	Critical(v ...interface{})
	Criticalf(format string, v ...interface{})
}

// Create a new named logger.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// Override the backend output sink.
func SetSink(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = w
	rebuild()
}

// SetFormat switches between text and JSON output.
func SetFormat(f Format) {
	mu.Lock()
	defer mu.Unlock()
	switch f {
	case FormatJSON:
		formatter = jsonFormatter{}
	default:
		formatter = textFormat
	}
	rebuild()
}

// Set logger verbosity.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = toLogging(l)
	leveledBackend.SetLevel(level, "")
}

// ParseLevel maps a config level name to a Level. Unknown names map to Notice.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warning", "warn":
		return Warning
	case "error":
		return Error
	case "critical":
		return Critical
	}
	return Notice
}

// ParseFormat maps a config format name to a Format. Unknown names map to FormatText.
func ParseFormat(name string) Format {
	if strings.EqualFold(name, "json") {
		return FormatJSON
	}
	return FormatText
}

func toLogging(l Level) logging.Level {
	switch l {
	case Debug:
		return logging.DEBUG
	case Info:
		return logging.INFO
	case Warning:
		return logging.WARNING
	case Error:
		return logging.ERROR
	case Critical:
		return logging.CRITICAL
	}
	return logging.NOTICE
}

// rebuild installs a fresh backend chain. Callers hold mu.
func rebuild() {
	backend := logging.NewLogBackend(sink, "", 0)
	backendWithFormatter := logging.NewBackendFormatter(backend, formatter)
	leveledBackend = logging.AddModuleLevel(backendWithFormatter)
	leveledBackend.SetLevel(level, "")
	logging.SetBackend(leveledBackend)
}

// jsonFormatter renders a record as a single JSON object.
type jsonFormatter struct{}

type jsonRecord struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Module  string `json:"module"`
	Message string `json:"message"`
}

func (jsonFormatter) Format(calldepth int, r *logging.Record, w io.Writer) error {
	return json.NewEncoder(w).Encode(jsonRecord{
		Time:    r.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Level:   strings.ToLower(r.Level.String()),
		Module:  r.Module,
		Message: r.Message(),
	})
}

func init() {
	mu.Lock()
	defer mu.Unlock()
	rebuild()
}
