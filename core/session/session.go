// Package session manages the on-disk log layout for one daemon
// invocation: a timestamped directory containing the daemon log, one log
// file per service, and a merged timeline. Grounded on the file-writing
// style of core/agent.Agent.emitReceipt (os.MkdirAll + os.WriteFile/append,
// falling back to stdout when no directory is configured).
package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultLogDirName = ".krill/logs"

// TimelineEntry is one line of the merged timeline.jsonl stream.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service,omitempty"`
	Stream    string    `json:"stream,omitempty"`
	Text      string    `json:"text"`
}

// Session owns the log directory created once per daemon invocation.
type Session struct {
	Dir string

	mu          sync.Mutex
	daemonLog   io.WriteCloser
	timeline    io.WriteCloser
	serviceLogs map[string]io.WriteCloser
}

// New creates session-<ISO8601 timestamp>/ under logDir (or
// ~/.krill/logs if logDir is empty) and opens krill.log and timeline.jsonl.
func New(logDir string) (*Session, error) {
	if logDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		logDir = filepath.Join(home, defaultLogDirName)
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")
	dir := filepath.Join(logDir, "session-"+stamp)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	daemonLog, err := os.OpenFile(filepath.Join(dir, "krill.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open krill.log: %w", err)
	}
	timeline, err := os.OpenFile(filepath.Join(dir, "timeline.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		daemonLog.Close()
		return nil, fmt.Errorf("open timeline.jsonl: %w", err)
	}

	return &Session{
		Dir:         dir,
		daemonLog:   daemonLog,
		timeline:    timeline,
		serviceLogs: make(map[string]io.WriteCloser),
	}, nil
}

// Logf writes one daemon-level log line, mirroring the plain
// fmt.Fprintf(os.Stderr, ...) style used across the rest of the codebase,
// but durably, to krill.log.
func (s *Session) Logf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.daemonLog, "%s "+format+"\n", append([]interface{}{time.Now().UTC().Format(time.RFC3339)}, args...)...)
}

// ServiceLine appends one stdout/stderr line to <service>.log and to the
// merged timeline.
func (s *Session) ServiceLine(service, stream, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.serviceLogs[service]
	if !ok {
		opened, err := os.OpenFile(filepath.Join(s.Dir, service+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open %s.log: %w", service, err)
		}
		s.serviceLogs[service] = opened
		f = opened
	}
	now := time.Now().UTC()
	if _, err := fmt.Fprintf(f, "%s [%s] %s\n", now.Format(time.RFC3339Nano), stream, text); err != nil {
		return err
	}
	return s.appendTimeline(TimelineEntry{Timestamp: now, Service: service, Stream: stream, Text: text})
}

func (s *Session) appendTimeline(entry TimelineEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = s.timeline.Write(data)
	return err
}

// Close flushes and closes every open log file.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, f := range s.serviceLogs {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := s.timeline.Close(); err != nil && first == nil {
		first = err
	}
	if err := s.daemonLog.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
