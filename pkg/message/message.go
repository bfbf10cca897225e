// Package message parses RFC-822-ish email into the form the tokenizer,
// scorer and trainer operate on, and computes its content digest.
package message

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
)

// ErrMalformedInput is returned when a message cannot be parsed as RFC-822
// or is multipart without a boundary parameter. A multipart body that stops
// at a truncated or malformed boundary is not reported: the parts read up to
// that point are kept and Parse succeeds.
var ErrMalformedInput = errors.New("message: malformed input")

// HeaderField preserves encounter order for headers where order matters
// (the Received chain).
type HeaderField struct {
	Name  string
	Value string
}

// Part is a single walked MIME part. Text parts carry decoded text in Text;
// non-text parts carry only their content type and (if present) filename.
type Part struct {
	ContentType string // e.g. "text/plain", "image/png"
	Text        string // decoded text, only set for text/* parts
	IsText      bool
	Filename    string // from Content-Disposition, else the Content-Type name parameter; empty if neither
}

// Message is a parsed email: a case-insensitive header map, the ordered
// header list, the walked body parts, and a concatenated body string used
// by the tokenizer's body pass.
type Message struct {
	Headers     map[string]string // last header wins on duplicates
	HeaderOrder []HeaderField     // original encounter order, dupes included
	Body        string            // concatenation of all text parts
	Parts       []Part
}

// Parse reads one RFC-822 message from r.
func Parse(r io.Reader) (*Message, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	m := &Message{
		Headers: make(map[string]string, len(msg.Header)),
	}

	for name, values := range msg.Header {
		canon := textproto.CanonicalMIMEHeaderKey(name)
		m.Headers[canon] = values[len(values)-1]
		for _, v := range values {
			m.HeaderOrder = append(m.HeaderOrder, HeaderField{Name: canon, Value: v})
		}
	}

	if err := m.walkBody(msg.Header.Get("Content-Type"), msg.Body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	return m, nil
}

// From returns the From header, empty string if absent.
func (m *Message) From() string { return m.Headers["From"] }

// Subject returns the Subject header, empty string if absent.
func (m *Message) Subject() string { return m.Headers["Subject"] }

// Header is a case-insensitive header lookup.
func (m *Message) Header(name string) string {
	return m.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// Digest computes the 128-bit content identity of the message: MD5 over
// From, Subject and Body concatenated with a single "\n" separator, each
// trimmed of trailing whitespace. Returned as 32 lowercase hex characters.
func (m *Message) Digest() string {
	parts := []string{
		strings.TrimRight(m.From(), " \t\r\n"),
		strings.TrimRight(m.Subject(), " \t\r\n"),
		strings.TrimRight(m.Body, " \t\r\n"),
	}
	sum := md5.Sum([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

func (m *Message) walkBody(contentType string, body io.Reader) error {
	if contentType == "" {
		return m.appendText("text/plain", body)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return m.appendText("text/plain", body)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return m.walkMultipart(body, params["boundary"])
	}

	return m.appendText(mediaType, body)
}

func (m *Message) walkMultipart(body io.Reader, boundary string) error {
	if boundary == "" {
		return fmt.Errorf("multipart message without boundary")
	}

	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// Truncated/malformed boundary: keep whatever parts were
			// already walked rather than discarding them.
			return nil
		}

		partContentType := part.Header.Get("Content-Type")
		mediaType, partParams, perr := mime.ParseMediaType(partContentType)
		if perr != nil {
			mediaType = "text/plain"
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if werr := m.walkMultipart(part, partParams["boundary"]); werr != nil {
				part.Close()
				continue
			}
		} else if strings.HasPrefix(mediaType, "text/") {
			if werr := m.appendText(mediaType, part); werr != nil {
				part.Close()
				continue
			}
		} else {
			if mediaType == "" {
				mediaType = "application/octet-stream"
			}
			m.Parts = append(m.Parts, Part{ContentType: mediaType, Filename: partFilename(part.Header)})
		}
		part.Close()
	}
}

func (m *Message) appendText(contentType string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	text := string(content)
	m.Parts = append(m.Parts, Part{ContentType: contentType, Text: text, IsText: true})

	if m.Body == "" {
		m.Body = text
	} else {
		m.Body += "\n" + text
	}
	return nil
}

// partFilename extracts the filename parameter from a part's
// Content-Disposition header, falling back to its Content-Type name
// parameter. Returns "" if neither is present.
func partFilename(header textproto.MIMEHeader) string {
	if disp := header.Get("Content-Disposition"); disp != "" {
		if _, params, err := mime.ParseMediaType(disp); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	if ct := header.Get("Content-Type"); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil && params["name"] != "" {
			return params["name"]
		}
	}
	return ""
}
