package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// newLogger creates a logger that writes JSON lines to logDir/bridge.log and a
// human-readable copy to console. Every line carries the operation id.
// It returns the logger and the open log file (for cleanup).
func newLogger(logDir, level, opID string, console io.Writer) (zerolog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "bridge.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("opening log file: %w", err)
	}

	w := zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.TimeOnly,
		NoColor:    true,
	})
	logger := zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("op", opID).
		Logger()
	return logger, f, nil
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// zerologAdapter wraps zerolog.Logger to satisfy the bridge.Logger interface.
// Arguments are alternating key/value pairs.
type zerologAdapter struct {
	l zerolog.Logger
}

func (a *zerologAdapter) Debug(msg string, args ...any) { a.log(a.l.Debug(), msg, args) }
func (a *zerologAdapter) Info(msg string, args ...any)  { a.log(a.l.Info(), msg, args) }
func (a *zerologAdapter) Warn(msg string, args ...any)  { a.log(a.l.Warn(), msg, args) }
func (a *zerologAdapter) Error(msg string, args ...any) { a.log(a.l.Error(), msg, args) }

func (a *zerologAdapter) log(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	if len(args)%2 == 1 {
		args = append(args, "(MISSING)")
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
