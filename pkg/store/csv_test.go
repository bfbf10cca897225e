package store

import (
	"bytes"
	"strings"
	"testing"
)

type fakeExporter struct {
	entries []Entry
}

func (f fakeExporter) Get(string) (TermRecord, bool, error)             { return TermRecord{}, false, nil }
func (f fakeExporter) BulkUpdate(map[string]Delta, int64) error         { return nil }
func (f fakeExporter) MessageKnown(string) (Label, bool, error)         { return 0, false, nil }
func (f fakeExporter) RegisterMessage(string, Label) error              { return nil }
func (f fakeExporter) UnregisterMessage(string) (Label, error)          { return 0, nil }
func (f fakeExporter) Globals() (int64, int64, error)                   { return 0, 0, nil }
func (f fakeExporter) Cleanup(int64, int, int64) (int64, error)         { return 0, nil }
func (f fakeExporter) Purge(int64) (int64, error)                       { return 0, nil }
func (f fakeExporter) Import([]Entry, int64) (int64, error)             { return 0, nil }
func (f fakeExporter) Vacuum() error                                    { return nil }
func (f fakeExporter) Close() error                                     { return nil }
func (f fakeExporter) Export(fn func(Entry) error) error {
	for _, e := range f.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

var _ TermStore = fakeExporter{}

func TestWriteCSVQuotesKeysWithCommas(t *testing.T) {
	src := fakeExporter{entries: []Entry{
		{Key: "hello", Good: 1, Spam: 2, LastUpdate: 100},
		{Key: "a,b", Good: 0, Spam: 1, LastUpdate: 200},
		{Key: `with "quote"`, Good: 3, Spam: 0, LastUpdate: 300},
	}}

	var buf bytes.Buffer
	if err := WriteCSV(src, &buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "hello,1,2,100\n") {
		t.Errorf("expected unquoted plain key line, got %q", out)
	}
	if !strings.Contains(out, `"a,b",0,1,200`) {
		t.Errorf("expected quoted key containing a comma, got %q", out)
	}
	if !strings.Contains(out, `"with ""quote""",3,0,300`) {
		t.Errorf("expected doubled internal quotes, got %q", out)
	}
}

func TestReadCSVRoundTrip(t *testing.T) {
	src := fakeExporter{entries: []Entry{
		{Key: "hello", Good: 1, Spam: 2, LastUpdate: 100},
		{Key: "a,b", Good: 0, Spam: 1, LastUpdate: 200},
	}}

	var buf bytes.Buffer
	if err := WriteCSV(src, &buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	entries, skipped, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if skipped != 0 {
		t.Errorf("expected no skipped lines, got %d", skipped)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Key != "a,b" || entries[1].Spam != 1 {
		t.Errorf("expected second entry to round-trip its comma-containing key, got %+v", entries[1])
	}
}

func TestReadCSVSkipsMalformedLines(t *testing.T) {
	input := "hello,1,2,100\nnotenoughfields\nlunch,3,x,400\n"
	entries, skipped, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if skipped != 2 {
		t.Errorf("expected 2 skipped malformed lines, got %d", skipped)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 valid entry, got %d", len(entries))
	}
}
