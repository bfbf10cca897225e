package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bayescore.db")
	s, err := Open(path, 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBulkUpdateCreatesAndClampsRecords(t *testing.T) {
	s := newTestStore(t)

	deltas := map[string]Delta{"viagra": {Spam: 3}}
	if err := s.BulkUpdate(deltas, 1000); err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}

	rec, ok, err := s.Get("viagra")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || rec.SpamCount != 3 || rec.GoodCount != 0 {
		t.Fatalf("expected spam=3 good=0, got %+v (ok=%v)", rec, ok)
	}

	if err := s.BulkUpdate(map[string]Delta{"viagra": {Spam: -10}}, 1001); err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	rec, _, err = s.Get("viagra")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.SpamCount < 0 {
		t.Errorf("expected spam count clamped at 0, got %d", rec.SpamCount)
	}
}

func TestGetUnknownKeyReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Get("neverseen")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Errorf("expected ok=false for an unknown key")
	}
}

func TestRegisterAndUnregisterMessage(t *testing.T) {
	s := newTestStore(t)
	digest := "abc123"

	if err := s.RegisterMessage(digest, Spam); err != nil {
		t.Fatalf("RegisterMessage: %v", err)
	}

	label, known, err := s.MessageKnown(digest)
	if err != nil {
		t.Fatalf("MessageKnown: %v", err)
	}
	if !known || label != Spam {
		t.Fatalf("expected known=true label=Spam, got known=%v label=%v", known, label)
	}

	good, spam, err := s.Globals()
	if err != nil {
		t.Fatalf("Globals: %v", err)
	}
	if good != 0 || spam != 1 {
		t.Fatalf("expected globals (good=0, spam=1), got (good=%d, spam=%d)", good, spam)
	}

	prior, err := s.UnregisterMessage(digest)
	if err != nil {
		t.Fatalf("UnregisterMessage: %v", err)
	}
	if prior != Spam {
		t.Errorf("expected UnregisterMessage to return prior label Spam, got %v", prior)
	}

	_, known, err = s.MessageKnown(digest)
	if err != nil {
		t.Fatalf("MessageKnown: %v", err)
	}
	if known {
		t.Errorf("expected digest unregistered")
	}
}

func TestUnregisterUnknownMessageReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UnregisterMessage("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestStore(t)
	if err := src.BulkUpdate(map[string]Delta{
		"viagra": {Spam: 5},
		"lunch":  {Good: 7},
	}, 500); err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}

	var entries []Entry
	if err := src.Export(func(e Entry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 exported entries, got %d", len(entries))
	}

	dst := newTestStore(t)
	applied, err := dst.Import(entries, 600)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if applied != 2 {
		t.Errorf("expected 2 applied entries, got %d", applied)
	}

	rec, ok, err := dst.Get("viagra")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || rec.SpamCount != 5 {
		t.Fatalf("expected imported spam count 5, got %+v (ok=%v)", rec, ok)
	}
}

func TestCleanupRemovesStaleLowCountRecords(t *testing.T) {
	s := newTestStore(t)
	if err := s.BulkUpdate(map[string]Delta{"rare": {Good: 1}}, 100); err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}

	removed, err := s.Cleanup(5, 0, 100)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 record removed, got %d", removed)
	}

	_, ok, err := s.Get("rare")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Errorf("expected the low-count record to be gone after Cleanup")
	}
}
