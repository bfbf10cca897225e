package mailbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zpam/bayescore/pkg/message"
)

// WalkMaildir calls fn once per message file under a Maildir folder's cur/
// and new/ subdirectories (tmp/ holds in-delivery files and is skipped).
// fn receives the parsed message and its file path; returning ErrSkip
// continues the walk, any other non-nil error aborts it.
func WalkMaildir(root string, fn func(path string, msg *message.Message) error) error {
	for _, sub := range []string{"cur", "new"} {
		dir := filepath.Join(root, sub)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("mailbox: read %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !looksLikeMessage(entry.Name()) {
				continue
			}
			path := filepath.Join(dir, entry.Name())

			msg, err := parseMessageFile(path)
			if err != nil {
				if err := fn(path, nil); err != nil && !errors.Is(err, ErrSkip) {
					return err
				}
				continue
			}

			if err := fn(path, msg); err != nil {
				if errors.Is(err, ErrSkip) {
					continue
				}
				return err
			}
		}
	}
	return nil
}

// WalkDirectory calls fn once per plausible email file directly under dir
// (non-recursive), for the common case of one message per file in a flat
// spam/ham training folder.
func WalkDirectory(dir string, fn func(path string, msg *message.Message) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("mailbox: read %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !looksLikeMessage(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		msg, err := parseMessageFile(path)
		if err != nil {
			if err := fn(path, nil); err != nil && !errors.Is(err, ErrSkip) {
				return err
			}
			continue
		}

		if err := fn(path, msg); err != nil {
			if errors.Is(err, ErrSkip) {
				continue
			}
			return err
		}
	}
	return nil
}

func parseMessageFile(path string) (*message.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return message.Parse(f)
}
