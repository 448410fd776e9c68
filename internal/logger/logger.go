package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message.
type LogLevel string

const (
	Debug LogLevel = "DEBUG"
	Info  LogLevel = "INFO"
	Warn  LogLevel = "WARN"
	Error LogLevel = "ERROR"
)

// minLevel filters messages below this severity.
var minLevel LogLevel = Info

func levelPriority(level LogLevel) int {
	switch level {
	case Debug:
		return 0
	case Info:
		return 1
	case Warn:
		return 2
	case Error:
		return 3
	default:
		return 1
	}
}

// SetLevel sets the minimum level: "debug", "info", "warn", "error".
func SetLevel(level string) {
	switch level {
	case "debug":
		minLevel = Debug
	case "info":
		minLevel = Info
	case "warn":
		minLevel = Warn
	case "error":
		minLevel = Error
	default:
		minLevel = Info
	}
}

var fileLogger *lumberjack.Logger

func init() {
	log.SetOutput(os.Stdout)
	log.SetFlags(0) // we render the timestamp ourselves
}

// Init routes log output to stdout and a rotated file under logDir.
// Call after config is loaded; before Init only stdout is used.
func Init(logDir string) {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		log.Printf("Failed to create log directory: %v", err)
		return
	}

	fileLogger = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "scanarr.log"),
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	log.SetOutput(io.MultiWriter(os.Stdout, fileLogger))
}

// Log writes a formatted message at the given level.
func Log(level LogLevel, format string, v ...interface{}) {
	if levelPriority(level) < levelPriority(minLevel) {
		return
	}

	msg := fmt.Sprintf(format, v...)
	log.Printf("%s [%s] %s", time.Now().Format(time.RFC3339), level, msg)
}

// Debugf logs at DEBUG level.
func Debugf(format string, v ...interface{}) { Log(Debug, format, v...) }

// Infof logs at INFO level.
func Infof(format string, v ...interface{}) { Log(Info, format, v...) }

// Warnf logs at WARN level.
func Warnf(format string, v ...interface{}) { Log(Warn, format, v...) }

// Errorf logs at ERROR level.
func Errorf(format string, v ...interface{}) { Log(Error, format, v...) }
