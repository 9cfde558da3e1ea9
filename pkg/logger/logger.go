package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is the leveled key/value logger used across the pipeline
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

type logLevel int

const (
	debugLevel logLevel = iota
	infoLevel
	warnLevel
	errorLevel
)

type batchLogger struct {
	out   *log.Logger
	err   *log.Logger
	level logLevel
}

// NewLogger creates a logger filtering below the given level ("debug",
// "info", "warn", "error"; anything else means info)
func NewLogger(level string) Logger {
	var l logLevel

	switch strings.ToLower(level) {
	case "debug":
		l = debugLevel
	case "info":
		l = infoLevel
	case "warn":
		l = warnLevel
	case "error":
		l = errorLevel
	default:
		l = infoLevel
	}

	return &batchLogger{
		out:   log.New(os.Stdout, "", log.Ldate|log.Ltime),
		err:   log.New(os.Stderr, "", log.Ldate|log.Ltime),
		level: l,
	}
}

func (l *batchLogger) Debug(msg string, keyvals ...interface{}) {
	if l.level <= debugLevel {
		l.out.Println("DEBUG: " + formatMsg(msg, keyvals...))
	}
}

func (l *batchLogger) Info(msg string, keyvals ...interface{}) {
	if l.level <= infoLevel {
		l.out.Println("INFO: " + formatMsg(msg, keyvals...))
	}
}

func (l *batchLogger) Warn(msg string, keyvals ...interface{}) {
	if l.level <= warnLevel {
		l.out.Println("WARN: " + formatMsg(msg, keyvals...))
	}
}

func (l *batchLogger) Error(msg string, keyvals ...interface{}) {
	if l.level <= errorLevel {
		l.err.Println("ERROR: " + formatMsg(msg, keyvals...))
	}
}

func formatMsg(msg string, keyvals ...interface{}) string {
	if len(keyvals) == 0 {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)

	for i := 0; i < len(keyvals); i += 2 {
		b.WriteString(" ")
		b.WriteString(fmt.Sprintf("%v", keyvals[i]))
		b.WriteString("=")

		if i+1 < len(keyvals) {
			b.WriteString(fmt.Sprintf("%v", keyvals[i+1]))
		} else {
			b.WriteString("missing")
		}
	}

	return b.String()
}
