package thor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strconv"
	"sync"
	"text/template"
	"time"
)

// loggerLevel is the severity of one log line.
type loggerLevel uint8

// Supported logger levels.
const (
	lvlDebug loggerLevel = iota
	lvlInfo
	lvlWarn
	lvlError
	lvlFatal
)

var levelNames = []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// DefaultLogFormat is the structured line template applied to every log
// entry unless Logger.Format is overridden. It is a text/template source
// over the fields app_name, time_rfc3339, level, short_file, long_file and
// line.
const DefaultLogFormat = `{"app_name":"{{.app_name}}","time":"{{.time_rfc3339}}",` +
	`"level":"{{.level}}","file":"{{.short_file}}","line":"{{.line}}"}`

// Logger is the framework's leveled, structured logger: the framework
// components that log (the error handler, the App and the lifecycle
// manager) do so through a *Logger rather than fmt.Println or the stdlib
// log package.
type Logger struct {
	// AppName is interpolated into the "{{.app_name}}" template field.
	AppName string

	// Enabled disables all output when false.
	Enabled bool

	// Format is a text/template source using "{{.field}}" placeholders
	// (app_name, time_rfc3339, level, short_file, long_file, line),
	// compiled lazily on first use.
	Format string

	// Output is where rendered lines are written. Defaults to os.Stdout.
	Output io.Writer

	template   *template.Template
	bufferPool sync.Pool
	mu         sync.Mutex
}

// NewLogger returns a Logger for appName with the framework's default
// format, enabled, writing to os.Stdout.
func NewLogger(appName string) *Logger {
	return &Logger{
		AppName: appName,
		Enabled: true,
		Format:  DefaultLogFormat,
		Output:  os.Stdout,
		bufferPool: sync.Pool{
			New: func() interface{} { return bytes.NewBuffer(make([]byte, 0, 256)) },
		},
	}
}

// Debug logs args at DEBUG level using their default formatting.
func (l *Logger) Debug(args ...interface{}) { l.log(lvlDebug, "", args...) }

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(lvlDebug, format, args...) }

// Debugj logs m, JSON-encoded, at DEBUG level.
func (l *Logger) Debugj(m map[string]interface{}) { l.log(lvlDebug, "json", m) }

// Info logs args at INFO level using their default formatting.
func (l *Logger) Info(args ...interface{}) { l.log(lvlInfo, "", args...) }

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(format string, args ...interface{}) { l.log(lvlInfo, format, args...) }

// Infoj logs m, JSON-encoded, at INFO level.
func (l *Logger) Infoj(m map[string]interface{}) { l.log(lvlInfo, "json", m) }

// Warn logs args at WARN level using their default formatting.
func (l *Logger) Warn(args ...interface{}) { l.log(lvlWarn, "", args...) }

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.log(lvlWarn, format, args...) }

// Warnj logs m, JSON-encoded, at WARN level.
func (l *Logger) Warnj(m map[string]interface{}) { l.log(lvlWarn, "json", m) }

// Error logs args at ERROR level using their default formatting.
func (l *Logger) Error(args ...interface{}) { l.log(lvlError, "", args...) }

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(lvlError, format, args...) }

// Errorj logs m, JSON-encoded, at ERROR level.
func (l *Logger) Errorj(m map[string]interface{}) { l.log(lvlError, "json", m) }

// Fatal logs args at FATAL level and then calls os.Exit(1).
func (l *Logger) Fatal(args ...interface{}) {
	l.log(lvlFatal, "", args...)
	os.Exit(1)
}

// Fatalf logs a formatted message at FATAL level and then calls
// os.Exit(1).
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(lvlFatal, format, args...)
	os.Exit(1)
}

func (l *Logger) log(lvl loggerLevel, format string, args ...interface{}) {
	if !l.Enabled {
		return
	}

	l.mu.Lock()
	if l.template == nil {
		f := l.Format
		if f == "" {
			f = DefaultLogFormat
		}
		l.template = template.Must(template.New("thor-logger").Parse(f))
	}
	tmpl := l.template
	l.mu.Unlock()

	message := formatMessage(format, args)

	_, file, line, _ := runtime.Caller(2)
	data := map[string]interface{}{
		"app_name":     l.AppName,
		"time_rfc3339": time.Now().Format(time.RFC3339),
		"level":        levelNames[lvl],
		"short_file":   path.Base(file),
		"long_file":    file,
		"line":         strconv.Itoa(line),
	}

	buf := l.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer l.bufferPool.Put(buf)

	if err := tmpl.Execute(buf, data); err != nil {
		return
	}

	out := l.output()
	s := buf.String()
	if len(s) > 0 && s[len(s)-1] == '}' {
		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(',')
		if format == "json" {
			buf.WriteString(message[1:])
		} else {
			buf.WriteString(`"message":`)
			encoded, _ := json.Marshal(message)
			buf.Write(encoded)
			buf.WriteByte('}')
		}
	} else {
		buf.WriteByte(' ')
		buf.WriteString(message)
	}
	buf.WriteByte('\n')

	l.mu.Lock()
	out.Write(buf.Bytes())
	l.mu.Unlock()
}

func (l *Logger) output() io.Writer {
	if l.Output != nil {
		return l.Output
	}
	return os.Stdout
}

func formatMessage(format string, args []interface{}) string {
	switch format {
	case "":
		return fmt.Sprint(args...)
	case "json":
		b, _ := json.Marshal(args[0])
		return string(b)
	default:
		return fmt.Sprintf(format, args...)
	}
}
