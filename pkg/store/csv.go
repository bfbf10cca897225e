package store

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteCSV writes every record in s to w in the format:
// <key>,<good_count>,<spam_count>,<last_update_unix_seconds>\n
// with the key double-quoted (internal quotes doubled) when it contains a
// comma, quote, or whitespace.
func WriteCSV(s TermStore, w io.Writer) error {
	bw := bufio.NewWriter(w)
	err := s.Export(func(e Entry) error {
		_, werr := fmt.Fprintf(bw, "%s,%d,%d,%d\n", csvQuote(e.Key), e.Good, e.Spam, e.LastUpdate)
		return werr
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

func csvQuote(key string) string {
	if !strings.ContainsAny(key, ",\"\t\n\r ") {
		return key
	}
	return `"` + strings.ReplaceAll(key, `"`, `""`) + `"`
}

// ReadCSV parses CSV produced by WriteCSV into entries, skipping malformed lines (they
// count toward the returned skipped total but do not abort the import).
func ReadCSV(r io.Reader) (entries []Entry, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		e, ok := parseCSVLine(line)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if serr := scanner.Err(); serr != nil {
		return entries, skipped, fmt.Errorf("%w: %v", ErrImportFormat, serr)
	}
	return entries, skipped, nil
}

func parseCSVLine(line string) (Entry, bool) {
	fields, ok := splitCSVFields(line)
	if !ok || len(fields) < 3 {
		return Entry{}, false
	}

	good, err1 := strconv.ParseInt(fields[1], 10, 64)
	spam, err2 := strconv.ParseInt(fields[2], 10, 64)
	if err1 != nil || err2 != nil {
		return Entry{}, false
	}

	var lastUpdate int64
	if len(fields) >= 4 {
		lastUpdate, _ = strconv.ParseInt(fields[3], 10, 64)
	}

	// fields[4:] (any further columns) are ignored on import
	// ("unknown trailing fields are ignored").
	return Entry{Key: fields[0], Good: good, Spam: spam, LastUpdate: lastUpdate}, true
}

// splitCSVFields splits one CSV line honoring double-quoted fields with
// doubled internal quotes, the minimal dialect WriteCSV produces.
func splitCSVFields(line string) ([]string, bool) {
	var fields []string
	var cur strings.Builder
	inQuotes := false

	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case inQuotes:
			if c == '"' {
				if i+1 < len(line) && line[i+1] == '"' {
					cur.WriteByte('"')
					i += 2
					continue
				}
				inQuotes = false
				i++
				continue
			}
			cur.WriteByte(c)
			i++
		case c == '"':
			if cur.Len() != 0 {
				return nil, false
			}
			inQuotes = true
			i++
		case c == ',':
			fields = append(fields, cur.String())
			cur.Reset()
			i++
		default:
			cur.WriteByte(c)
			i++
		}
	}
	if inQuotes {
		return nil, false
	}
	fields = append(fields, cur.String())
	return fields, true
}
