package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rayscout/rayscout/pkg/logger"
)

const errorLogTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrorLog appends unexpected failures to a plain-text file, one line per error.
type ErrorLog struct {
	mu     sync.Mutex
	path   string
	logger *logger.Logger
	now    func() time.Time
}

func NewErrorLog(path string, logger *logger.Logger) *ErrorLog {
	return &ErrorLog{path: path, logger: logger, now: time.Now}
}

// Record logs err and appends "[timestamp] context: message" to the file.
// A failure to write the file is logged and otherwise ignored.
func (e *ErrorLog) Record(context string, err error) {
	if err == nil {
		return
	}
	e.logger.Error(context, "error", err)

	line := fmt.Sprintf("[%s] %s: %s\n", e.now().UTC().Format(errorLogTimeLayout), context, err.Error())

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		e.logger.Warn("failed to create error log directory", "path", e.path, "error", err)
		return
	}
	f, ferr := os.OpenFile(e.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if ferr != nil {
		e.logger.Warn("failed to open error log", "path", e.path, "error", ferr)
		return
	}
	defer f.Close()

	if _, werr := f.WriteString(line); werr != nil {
		e.logger.Warn("failed to write error log", "path", e.path, "error", werr)
	}
}
