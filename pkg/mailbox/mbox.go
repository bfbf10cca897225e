// Package mailbox provides read-only iteration over mbox archives and
// Maildir folders, the two mail-at-rest formats the CLI's train/import
// commands read from. Not used by the core tokenizer/store/scorer/trainer
// packages, which only ever see an already-parsed *message.Message.
package mailbox

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zpam/bayescore/pkg/message"
)

// isMboxFromLine reports whether line starts a new mbox message: any line
// beginning with "From " at column 0. The envelope sender and date after it
// are not checked; quoted in-body "From " lines (which mbox writers escape
// with a leading '>') do not match.
func isMboxFromLine(line []byte) bool {
	return bytes.HasPrefix(line, []byte("From "))
}

// MboxReader iterates the messages of a single mbox file in order.
type MboxReader struct {
	scanner *bufio.Scanner
	pending []byte // first "From " line already consumed by the prior Next
	done    bool
}

// OpenMbox opens path for streaming iteration. The caller must call Close
// when done.
func OpenMbox(path string) (*MboxReader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("mailbox: open %s: %w", path, err)
	}
	return NewMboxReader(f), f, nil
}

// NewMboxReader wraps an already-open reader (e.g. a file or in-memory
// buffer) for mbox iteration.
func NewMboxReader(r io.Reader) *MboxReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &MboxReader{scanner: scanner}
}

// Next returns the next message's raw RFC-822 bytes (the "From " separator
// line itself is stripped), or io.EOF when the archive is exhausted.
func (m *MboxReader) Next() ([]byte, error) {
	if m.done {
		return nil, io.EOF
	}

	var buf bytes.Buffer
	sawFrom := m.pending != nil
	m.pending = nil

	for m.scanner.Scan() {
		line := m.scanner.Bytes()

		if isMboxFromLine(line) {
			if !sawFrom {
				// First "From " line of the archive: consume and start
				// accumulating the message that follows it.
				sawFrom = true
				continue
			}
			// Start of the next message: stash it for the following Next
			// call and return what's accumulated so far.
			m.pending = append([]byte(nil), line...)
			return buf.Bytes(), nil
		}

		if sawFrom {
			buf.Write(unescapeMboxLine(line))
			buf.WriteByte('\n')
		}
	}

	if err := m.scanner.Err(); err != nil {
		return nil, fmt.Errorf("mailbox: scan: %w", err)
	}

	m.done = true
	if !sawFrom {
		return nil, io.EOF
	}
	return buf.Bytes(), nil
}

// unescapeMboxLine undoes the single '>' escaping mbox writers apply to
// in-body lines that would otherwise look like a "From " delimiter.
func unescapeMboxLine(line []byte) []byte {
	if bytes.HasPrefix(line, []byte(">From ")) {
		return line[1:]
	}
	return line
}

// WalkMbox calls fn once per message in path, in archive order. fn receives
// the parsed message (nil if the message could not be parsed) and its
// 1-based position; a non-nil error from fn (other than ErrSkip) aborts the
// walk.
func WalkMbox(path string, fn func(index int, msg *message.Message) error) error {
	reader, closer, err := OpenMbox(path)
	if err != nil {
		return err
	}
	defer closer.Close()

	index := 0
	for {
		raw, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		index++

		msg, err := message.Parse(bytes.NewReader(raw))
		if err != nil {
			if errCb := fn(index, nil); errCb != nil && errCb != ErrSkip {
				return errCb
			}
			continue
		}
		if err := fn(index, msg); err != nil && err != ErrSkip {
			return err
		}
	}
}

// ErrSkip, returned by a WalkMbox/WalkMaildir callback, skips the current
// message without aborting the walk.
var ErrSkip = fmt.Errorf("mailbox: skip")

// looksLikeMessage is a best-effort filter used by Maildir/plain-directory
// walking to skip non-email files (dotfiles, index files), mirroring the
// extension/marker heuristics a mail trainer commonly applies.
func looksLikeMessage(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(name) {
	case "cur", "new", "tmp":
		return false
	}
	return true
}
