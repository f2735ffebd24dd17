// Package logger is a small leveled logger shared by every package.
//
// Output is one line per message, either "[time] [LEVEL] message" text or a
// JSON object per line. All settings are process-wide and may be changed
// at any time.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level orders messages by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const timeLayout = "2006-01-02 15:04:05"

// mu guards the settings below. log holds the read lock while writing so a
// concurrent SetOutput cannot close the file under it.
var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	jsonFormat   = false
	logger       = stdlog.New(os.Stdout, "", 0)
	outputFile   *os.File
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SetLevel sets the minimum level that is emitted. Unknown names are ignored.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// SetFormat selects "text" (default) or "json" line output.
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	jsonFormat = strings.EqualFold(format, "json")
}

// SetOutput redirects log output to "stdout", "stderr" or a file path
// (opened for append, created if missing).
func SetOutput(output string) error {
	var w io.Writer
	var f *os.File

	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		w = file
		f = file
	}

	setWriter(w, f)
	return nil
}

// SetWriter redirects log output to an arbitrary writer.
func SetWriter(w io.Writer) {
	setWriter(w, nil)
}

// setWriter swaps the destination, closing a file opened by SetOutput.
func setWriter(w io.Writer, f *os.File) {
	mu.Lock()
	defer mu.Unlock()

	if outputFile != nil {
		_ = outputFile.Close()
	}
	outputFile = f
	logger = stdlog.New(w, "", 0)
}

type jsonLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"msg"`
}

// log formats and writes one line if level passes the threshold.
func log(level Level, format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if level < currentLevel {
		return
	}

	timestamp := time.Now().Format(timeLayout)
	message := fmt.Sprintf(format, v...)

	if jsonFormat {
		line, err := json.Marshal(jsonLine{Time: timestamp, Level: level.String(), Message: message})
		if err == nil {
			logger.Println(string(line))
			return
		}
	}

	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	logger.Println(prefix + message)
}

// Debug logs at LevelDebug.
func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

// Info logs at LevelInfo.
func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

// Warn logs at LevelWarn.
func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

// Error logs at LevelError.
func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
