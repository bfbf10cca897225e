package mailbox

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zpam/bayescore/pkg/message"
)

const sampleMbox = `From alice@example.com Mon Jan  1 00:00:00 2024
From: alice@example.com
Subject: first message

Hello there.
>From the start of a quoted line, not a delimiter.
From bob@example.com Tue Jan  2 00:00:00 2024
From: bob@example.com
Subject: second message

Hi back.
`

func TestMboxReaderSplitsOnFromDelimiter(t *testing.T) {
	r := NewMboxReader(strings.NewReader(sampleMbox))

	first, err := r.Next()
	if err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if !strings.Contains(string(first), "Subject: first message") {
		t.Errorf("first message missing expected subject, got: %q", first)
	}
	if !strings.Contains(string(first), "From the start of a quoted line") {
		t.Errorf("escaped From line should be unescaped and kept in body, got: %q", first)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if !strings.Contains(string(second), "Subject: second message") {
		t.Errorf("second message missing expected subject, got: %q", second)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after last message, got %v", err)
	}
}

func TestMboxReaderEmptyInput(t *testing.T) {
	r := NewMboxReader(strings.NewReader(""))
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF for empty input, got %v", err)
	}
}

func TestWalkMboxParsesEachMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.mbox")
	if err := os.WriteFile(path, []byte(sampleMbox), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var subjects []string
	err := WalkMbox(path, func(index int, msg *message.Message) error {
		if msg == nil {
			t.Fatalf("message %d failed to parse", index)
		}
		subjects = append(subjects, msg.Headers["Subject"])
		return nil
	})
	if err != nil {
		t.Fatalf("WalkMbox: %v", err)
	}

	want := []string{"first message", "second message"}
	if len(subjects) != len(want) {
		t.Fatalf("got %d subjects, want %d: %v", len(subjects), len(want), subjects)
	}
	for i, s := range want {
		if subjects[i] != s {
			t.Errorf("subject %d = %q, want %q", i, subjects[i], s)
		}
	}
}
