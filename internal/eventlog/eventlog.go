// Package eventlog writes and reads the append-only activity log that
// feeds the daily statistics.
//
// One event per line, tab separated:
//
//	<timestamp>\t<subject>\t<action>
//
// Timestamps are written as "2006-01-02 15:04:05.000000" in local time.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/youruser/avatarframe/internal/util"
)

// TimeFormat is the timestamp layout of written events.
const TimeFormat = "2006-01-02 15:04:05.000000"

// NoSubject marks events not tied to a user.
const NoSubject = "-"

// Event is one parsed log line.
type Event struct {
	Timestamp string
	Subject   string
	Action    string
}

// Date is the calendar-date part of the timestamp: everything before the
// first space or 'T'.
func (e Event) Date() string {
	if i := strings.IndexAny(e.Timestamp, " T"); i >= 0 {
		return e.Timestamp[:i]
	}
	return e.Timestamp
}

// Writer appends events to a log file. Write failures are reported on the
// diagnostic logger and never returned, so recording an event cannot fail
// the operation being recorded.
type Writer struct {
	path   string
	logger *log.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewWriter returns a Writer appending to path.
func NewWriter(path string, logger *log.Logger) *Writer {
	return &Writer{path: path, logger: logger, now: time.Now}
}

// Path is the file the writer appends to.
func (w *Writer) Path() string {
	return w.path
}

// Record appends one event. Tabs and newlines in subject or action are
// replaced with spaces to keep the line format intact.
func (w *Writer) Record(subject, action string) {
	if subject == "" {
		subject = NoSubject
	}
	ts := w.now().Format(TimeFormat)
	line := fmt.Sprintf("%s\t%s\t%s\n", ts, sanitize(subject), sanitize(action))

	w.logger.Info(action, "subject", subject)
	if err := w.append(line); err != nil {
		w.logger.Warn("event log write failed", "path", w.path, "err", err)
	}
}

func (w *Writer) append(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := util.EnsureDir(filepath.Dir(w.path)); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var sanitizer = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

func sanitize(s string) string {
	return sanitizer.Replace(s)
}
