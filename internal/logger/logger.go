package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	debugEnabled = false

	debugLogger = log.New(io.Discard, "", 0)
	infoLogger  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	warnLogger  = log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime)
	errorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
)

// Init resets every level to its default writer. Debug output is only
// produced when debug is true.
func Init(debug bool) {
	debugEnabled = debug

	debugLogger = log.New(os.Stdout, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
	infoLogger = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	warnLogger = log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime)
	errorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)

	Debug("Debug logging enabled")
}

// SetOutput sends every level to w, e.g. a buffer in tests or a log file
// next to the journal.
func SetOutput(w io.Writer) {
	for _, l := range []*log.Logger{debugLogger, infoLogger, warnLogger, errorLogger} {
		l.SetOutput(w)
	}
}

// Debug logs when debug output is enabled.
func Debug(format string, v ...interface{}) {
	if debugEnabled {
		debugLogger.Output(2, fmt.Sprintf(format, v...))
	}
}

func Info(format string, v ...interface{}) {
	infoLogger.Output(2, fmt.Sprintf(format, v...))
}

// Warn is for outcomes that lose data without failing the batch, such as a
// dropped journal row.
func Warn(format string, v ...interface{}) {
	warnLogger.Output(2, fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	errorLogger.Output(2, fmt.Sprintf(format, v...))
}

func IsDebugEnabled() bool {
	return debugEnabled
}
