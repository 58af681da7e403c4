package eventlog

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	apperr "github.com/youruser/avatarframe/internal/errors"
)

// ParseResult holds the events of one full scan.
type ParseResult struct {
	Events  []Event
	Skipped int // lines that were not exactly timestamp, subject, action
}

// Parse reads every line of r. Malformed lines are counted and skipped;
// only a read error stops the scan.
func Parse(r io.Reader) (ParseResult, error) {
	var res ParseResult
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if ev, ok := parseLine(line); ok {
				res.Events = append(res.Events, ev)
			} else if strings.TrimSpace(line) != "" {
				res.Skipped++
			}
		}
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, apperr.Wrap(apperr.ErrCodeIO, err, "read event log")
		}
	}
}

// ParseFile opens path and parses it in one pass.
func ParseFile(path string) (ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ParseResult{}, apperr.Wrap(apperr.ErrCodeIO, err, "open event log %s", path)
	}
	defer f.Close()
	return Parse(f)
}

func parseLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "\t")
	if len(fields) != 3 {
		return Event{}, false
	}
	ev := Event{Timestamp: fields[0], Subject: fields[1], Action: fields[2]}
	if strings.TrimSpace(ev.Timestamp) == "" || ev.Subject == "" {
		return Event{}, false
	}
	return ev, true
}
