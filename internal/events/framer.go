// Package events defines the normalized engine event model and the
// line-framing primitive that chunked child-process output is split
// through before being handed to an engine parser.
package events

import "strings"

// LineFramer buffers opaque byte chunks from a child process's stdout or
// stderr stream and yields complete newline-terminated lines, tolerating
// chunk boundaries that split a line (including a \r\n pair) and
// multi-byte UTF-8 runes.
type LineFramer struct {
	pending strings.Builder
}

// NewLineFramer returns a ready-to-use framer.
func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// Push appends chunk to the pending buffer and returns every complete
// line found so far. A trailing `\r` on a line is stripped. Any data
// after the final `\n` is retained for the next Push or Flush.
func (f *LineFramer) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	f.pending.Write(chunk)
	buf := f.pending.String()

	var lines []string
	start := 0
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		line := buf[start:i]
		line = strings.TrimSuffix(line, "\r")
		lines = append(lines, line)
		start = i + 1
	}

	f.pending.Reset()
	if start < len(buf) {
		f.pending.WriteString(buf[start:])
	}
	return lines
}

// Flush emits any pending partial line as a final line and clears the
// buffer. It returns nil if nothing is pending.
func (f *LineFramer) Flush() []string {
	if f.pending.Len() == 0 {
		return nil
	}
	line := strings.TrimSuffix(f.pending.String(), "\r")
	f.pending.Reset()
	return []string{line}
}
