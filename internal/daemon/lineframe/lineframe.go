// Package lineframe splits a chunked byte stream into complete lines.
package lineframe

import (
	"bytes"
	"strings"
)

// Framer accumulates partial lines across writes and emits each complete
// line, without its terminating newline, to the emit callback. One Framer
// serves exactly one stream; it is not safe for concurrent writers.
type Framer struct {
	buf  bytes.Buffer
	emit func(line string)
}

// New creates a Framer that calls emit once per complete line.
func New(emit func(line string)) *Framer {
	return &Framer{emit: emit}
}

// Write implements io.Writer so a Framer can sit directly behind
// exec.Cmd.Stdout or exec.Cmd.Stderr.
func (f *Framer) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			f.buf.Write(p)
			break
		}
		f.buf.Write(p[:i])
		f.flushLine()
		p = p[i+1:]
	}
	return n, nil
}

// Close flushes a trailing partial line if one is buffered.
func (f *Framer) Close() error {
	if f.buf.Len() > 0 {
		f.flushLine()
	}
	return nil
}

func (f *Framer) flushLine() {
	line := strings.TrimSuffix(f.buf.String(), "\r")
	f.buf.Reset()
	if f.emit != nil {
		f.emit(line)
	}
}

// Split frames a complete text in one pass, e.g. the captured output of a
// short rclone command.
func Split(text string) []string {
	var lines []string
	f := New(func(line string) { lines = append(lines, line) })
	_, _ = f.Write([]byte(text))
	_ = f.Close()
	return lines
}
