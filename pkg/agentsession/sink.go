package agentsession

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const capBufferElision = "\n... (elided; full output at %s) ...\n"

// outputSink streams session text to two destinations: an
// always-complete on-disk file and a capped in-memory buffer for the
// caller-facing response (spec §4.7 step 5).
type outputSink struct {
	path     string
	file     *os.File
	cap      int
	buf      strings.Builder
	overflow bool
}

// newOutputSink opens path and writes the header (spec §4.7 step 5:
// "a header, session id, start time, task").
func newOutputSink(path, sessionID, task string, startedAt time.Time, capBytes int) (*outputSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(f, "session: %s\nstarted: %s\ntask: %s\n---\n", sessionID, startedAt.Format(time.RFC3339), task)
	return &outputSink{path: path, file: f, cap: capBytes}, nil
}

// Write appends text to both sinks.
func (s *outputSink) Write(text string) {
	if s.file != nil {
		s.file.WriteString(text)
	}
	if s.overflow {
		return
	}
	if s.buf.Len()+len(text) <= s.cap {
		s.buf.WriteString(text)
		return
	}
	// Keep the head already buffered, append an elision marker pointing
	// at the on-disk file, and stop accepting further text.
	s.buf.WriteString(fmt.Sprintf(capBufferElision, s.path))
	s.overflow = true
}

// Buffered returns the capped, caller-facing text accumulated so far.
func (s *outputSink) Buffered() string {
	return s.buf.String()
}

// Close writes the footer (spec §4.7 step 5: "finish time and byte
// count") and closes the on-disk file.
func (s *outputSink) Close(finishedAt time.Time, totalBytes int) error {
	if s.file == nil {
		return nil
	}
	fmt.Fprintf(s.file, "---\nfinished: %s\nbytes: %d\n", finishedAt.Format(time.RFC3339), totalBytes)
	return s.file.Close()
}
