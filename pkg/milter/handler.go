package milter

import (
	"bytes"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	"github.com/d--j/go-milter"

	"github.com/zpam/bayescore/pkg/config"
	"github.com/zpam/bayescore/pkg/message"
	"github.com/zpam/bayescore/pkg/scorer"
	"github.com/zpam/bayescore/pkg/store"
	"github.com/zpam/bayescore/pkg/tokenizer"
	"github.com/zpam/bayescore/pkg/tracker"
	"github.com/zpam/bayescore/pkg/trainer"
)

// Handler implements milter.Milter, scoring each message against a shared
// TermStore via the core Tokenizer/Scorer/Trainer.
type Handler struct {
	milter.NoOpMilter
	cfg     *config.Config
	ts      store.TermStore
	tok     *tokenizer.Tokenizer
	score   *scorer.Scorer
	trainer *trainer.Trainer
	freq    *tracker.FrequencyTracker

	rawHeaders  []message.HeaderField
	headerMap   map[string]string
	body        bytes.Buffer
	mailFrom    string

	connectHost string
	connectAddr string
	heloName    string
	startTime   time.Time
}

// NewHandler creates a new milter handler over the given store-backed
// Tokenizer/Scorer/Trainer set, which callers may share across handlers.
// Each Handler creates its own sender-frequency tracker; the Server builds
// one Handler per milter connection, so sender counts cover only the
// messages of that connection.
func NewHandler(cfg *config.Config, ts store.TermStore, tok *tokenizer.Tokenizer, sc *scorer.Scorer, tr *trainer.Trainer) *Handler {
	h := &Handler{cfg: cfg, ts: ts, tok: tok, score: sc, trainer: tr}
	if cfg.Tracker.Enabled {
		h.freq = tracker.NewFrequencyTracker(cfg.Tracker.WindowMinutes, cfg.Tracker.MaxCacheSize)
	}
	return h
}

func (h *Handler) resetMessage() {
	h.rawHeaders = nil
	h.headerMap = make(map[string]string)
	h.body.Reset()
}

// NewConnection is called when a new SMTP connection is established.
func (h *Handler) NewConnection(m milter.Modifier) error {
	h.startTime = time.Now()
	return nil
}

// Connect is called when connection information is available.
func (h *Handler) Connect(host string, family string, port uint16, addr string, m milter.Modifier) (*milter.Response, error) {
	h.connectHost = host
	h.connectAddr = addr
	return milter.RespContinue, nil
}

// Helo is called when HELO/EHLO is received.
func (h *Handler) Helo(name string, m milter.Modifier) (*milter.Response, error) {
	h.heloName = name
	return milter.RespContinue, nil
}

// MailFrom is called when MAIL FROM is received.
func (h *Handler) MailFrom(from string, esmtpArgs string, m milter.Modifier) (*milter.Response, error) {
	h.mailFrom = from
	h.resetMessage()
	return milter.RespContinue, nil
}

// RcptTo is called for each RCPT TO.
func (h *Handler) RcptTo(rcptTo string, esmtpArgs string, m milter.Modifier) (*milter.Response, error) {
	return milter.RespContinue, nil
}

// Header is called for each header.
func (h *Handler) Header(name string, value string, m milter.Modifier) (*milter.Response, error) {
	h.rawHeaders = append(h.rawHeaders, message.HeaderField{Name: name, Value: value})
	h.headerMap[strings.ToUpper(name)] = value
	return milter.RespContinue, nil
}

// BodyChunk is called for each body chunk.
func (h *Handler) BodyChunk(chunk []byte, m milter.Modifier) (*milter.Response, error) {
	h.body.Write(chunk)
	return milter.RespContinue, nil
}

// EndOfMessage is called when the message is complete: builds a
// message.Message from the accumulated headers/body, scores it, and
// applies the configured header/reject policy (messages are never
// quarantined).
func (h *Handler) EndOfMessage(m milter.Modifier) (*milter.Response, error) {
	msg := h.buildMessage()
	tokens := h.tok.Tokenize(msg)

	sc, err := h.score.Score(tokens, h.ts)
	if err != nil {
		return milter.RespTempFail, fmt.Errorf("scoring failed: %w", err)
	}

	var freq *tracker.FrequencyResult
	if h.freq != nil {
		freq = h.freq.TrackSender(msg.From(), senderDomain(msg.From()), sc.IsSpam)
	}

	if h.cfg.Milter.AddSpamHeaders {
		if err := h.addSpamHeaders(m, sc, freq); err != nil {
			return milter.RespTempFail, fmt.Errorf("failed to add spam headers: %v", err)
		}
	}

	return h.determineAction(sc), nil
}

// buildMessage assembles a *message.Message from the milter callbacks
// collected over one session, mirroring message.Parse's shape without
// re-parsing raw RFC-822 bytes (the milter protocol delivers headers and
// body separately, already split).
func (h *Handler) buildMessage() *message.Message {
	msg := &message.Message{
		Headers:     make(map[string]string, len(h.headerMap)),
		HeaderOrder: h.rawHeaders,
		Body:        h.body.String(),
	}
	for _, hf := range h.rawHeaders {
		msg.Headers[textproto.CanonicalMIMEHeaderKey(hf.Name)] = hf.Value
	}
	if msg.Headers["From"] == "" && h.mailFrom != "" {
		msg.Headers["From"] = h.mailFrom
	}
	msg.Parts = []message.Part{{ContentType: "text/plain", Text: msg.Body, IsText: true}}
	return msg
}

// Abort is called when the message is aborted.
func (h *Handler) Abort(m milter.Modifier) error {
	h.resetMessage()
	return nil
}

// Cleanup is called when the connection is closed. Stateless handler: no
// per-connection resources to release.
func (h *Handler) Cleanup(m milter.Modifier) {}

func (h *Handler) addSpamHeaders(m milter.Modifier, sc scorer.Score, freq *tracker.FrequencyResult) error {
	prefix := h.cfg.Milter.SpamHeaderPrefix

	classification := "Clean"
	if sc.IsSpam {
		classification = "Spam"
	}
	if err := m.AddHeader(prefix+"Status", classification); err != nil {
		return err
	}
	if err := m.AddHeader(prefix+"Score", fmt.Sprintf("%.4f", sc.Probability)); err != nil {
		return err
	}
	if err := m.AddHeader(prefix+"Confidence", fmt.Sprintf("%.4f", sc.Confidence)); err != nil {
		return err
	}

	scanTime := time.Since(h.startTime).Milliseconds()
	info := fmt.Sprintf("bayescore; terms=%d; %dms", sc.TermsUsed, scanTime)
	if err := m.AddHeader(prefix+"Info", info); err != nil {
		return err
	}

	if freq != nil && freq.IsFrequentSender {
		advisory := fmt.Sprintf("frequent-sender; emails_in_window=%d; score=%.1f", freq.EmailsInWindow, freq.FrequencyScore)
		return m.AddHeader(prefix+"Frequency", advisory)
	}
	return nil
}

// senderDomain extracts the domain part of an RFC-5322 address, best
// effort: no angle-bracket or display-name parsing, just the text after
// the last '@'.
func senderDomain(address string) string {
	idx := strings.LastIndexByte(address, '@')
	if idx < 0 || idx == len(address)-1 {
		return ""
	}
	domain := address[idx+1:]
	return strings.TrimRight(domain, ">")
}

func (h *Handler) determineAction(sc scorer.Score) *milter.Response {
	if sc.Probability >= h.cfg.Milter.RejectThreshold {
		msg := fmt.Sprintf("5.7.1 Message rejected as spam (probability: %.2f)", sc.Probability)
		resp, _ := milter.RejectWithCodeAndReason(550, msg)
		return resp
	}
	return milter.RespContinue
}
