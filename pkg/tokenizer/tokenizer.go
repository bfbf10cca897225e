// Package tokenizer turns a parsed message into a stream of weighted terms:
// header-scoped words, URL components, multi-word phrases, with HTML
// stripping and non-ASCII folding.
package tokenizer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/zpam/bayescore/pkg/headers"
	"github.com/zpam/bayescore/pkg/message"
)

// Flags is a bitset describing how a Token was produced.
type Flags uint8

const (
	FlagWord Flags = 1 << iota
	FlagPhrase
	FlagHeader
	FlagBody
	FlagURL
	FlagDerived
)

// HeaderMode selects which headers the header pass recognizes.
type HeaderMode string

const (
	HeaderModeNormal HeaderMode = "normal"
	HeaderModePlain   HeaderMode = "plain"
	HeaderModeAll     HeaderMode = "all"
)

// Token is a single term emitted by the tokenizer.
type Token struct {
	Text   string
	Flags  Flags
	Prefix string // e.g. "HSubject", "HFrom", "URL"; empty if none
}

// Key is the storage identity of the token: prefix + "_" + text, or just
// text if Prefix is empty.
func (t Token) Key() string {
	if t.Prefix == "" {
		return t.Text
	}
	return t.Prefix + "_" + t.Text
}

// Config configures tokenization. Zero value is invalid; use DefaultConfig.
type Config struct {
	MaxPhraseTerms    int
	MinPhraseTerms    int
	MinTermLength     int
	MaxTermLength     int
	RemoveHTML        bool
	IgnoreBody        bool
	ReplaceNonASCII   byte
	ProcessHeaders    bool
	HeaderMode        HeaderMode
	CustomHeaders     []string
	// EmitSkipGrams additionally emits OSB-style windowed skip-bigrams
	// ("word1|word2|distance") as DERIVED tokens. Off by default; it is
	// not part of the scored core, purely extra training signal.
	EmitSkipGrams   bool
	SkipGramWindow  int
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		MaxPhraseTerms:  2,
		MinPhraseTerms:  1,
		MinTermLength:   3,
		MaxTermLength:   40,
		RemoveHTML:      true,
		IgnoreBody:      false,
		ReplaceNonASCII: 'z',
		ProcessHeaders:  true,
		HeaderMode:      HeaderModeNormal,
		EmitSkipGrams:   false,
		SkipGramWindow:  4,
	}
}

// normalHeaders are the headers tokenized in HeaderModeNormal.
var normalHeaders = []string{
	"From", "To", "Cc", "Subject", "Received", "Content-Type", "X-Mailer", "Message-Id",
}

const maxURLLength = 256

// Tokenizer emits a token stream from a Message.
type Tokenizer struct {
	cfg Config
}

// New creates a Tokenizer. Invalid configuration (out-of-range phrase
// bounds, empty replace byte) is clamped to the nearest valid value rather
// than rejected, since tokenization must never abort a training/scoring
// operation.
func New(cfg Config) *Tokenizer {
	if cfg.MaxPhraseTerms < 1 {
		cfg.MaxPhraseTerms = 1
	}
	if cfg.MaxPhraseTerms > 5 {
		cfg.MaxPhraseTerms = 5
	}
	if cfg.MinPhraseTerms < 1 {
		cfg.MinPhraseTerms = 1
	}
	if cfg.MinPhraseTerms > cfg.MaxPhraseTerms {
		cfg.MinPhraseTerms = cfg.MaxPhraseTerms
	}
	if cfg.ReplaceNonASCII == 0 {
		cfg.ReplaceNonASCII = 'z'
	}
	if cfg.HeaderMode == "" {
		cfg.HeaderMode = HeaderModeNormal
	}
	return &Tokenizer{cfg: cfg}
}

// Tokenize returns the finite, ordered token stream for msg. Duplicates
// within the message are not deduplicated here; the scorer applies
// max_word_repeats.
func (tk *Tokenizer) Tokenize(msg *message.Message) []Token {
	var tokens []Token

	if tk.cfg.ProcessHeaders {
		tokens = append(tokens, tk.tokenizeHeaders(msg)...)
	}
	if !tk.cfg.IgnoreBody {
		tokens = append(tokens, tk.tokenizeBody(msg)...)
	}

	return tokens
}

func (tk *Tokenizer) recognizedHeaders() map[string]bool {
	set := make(map[string]bool)
	switch tk.cfg.HeaderMode {
	case HeaderModeAll:
		return nil // nil means "all" to the caller
	case HeaderModePlain:
		for _, h := range tk.cfg.CustomHeaders {
			set[strings.ToLower(h)] = true
		}
	default:
		for _, h := range normalHeaders {
			set[strings.ToLower(h)] = true
		}
	}
	return set
}

func (tk *Tokenizer) tokenizeHeaders(msg *message.Message) []Token {
	recognized := tk.recognizedHeaders()
	var tokens []Token

	seen := make(map[string]bool)
	for _, hf := range msg.HeaderOrder {
		key := strings.ToLower(hf.Name)
		if recognized != nil && !recognized[key] {
			continue
		}
		prefix := "H" + canonicalName(hf.Name)

		words := tk.extractWords(hf.Value)
		for _, w := range words {
			tokens = append(tokens, Token{Text: w, Flags: FlagWord | FlagHeader, Prefix: prefix})
		}
		tokens = append(tokens, tk.phraseTokens(words, FlagHeader, prefix)...)
		if tk.cfg.EmitSkipGrams {
			tokens = append(tokens, tk.skipGramTokens(words, FlagHeader)...)
		}

		if key == "received" && !seen[hf.Value] {
			seen[hf.Value] = true
			for _, host := range extractHostFragments(hf.Value) {
				tokens = append(tokens, Token{Text: host, Flags: FlagDerived | FlagHeader, Prefix: "Received"})
			}
		}
	}

	return tokens
}

func canonicalName(name string) string {
	return strings.ReplaceAll(name, "-", "")
}

func (tk *Tokenizer) tokenizeBody(msg *message.Message) []Token {
	var tokens []Token

	parts := msg.Parts
	if len(parts) == 0 && msg.Body != "" {
		parts = []message.Part{{ContentType: "text/plain", Text: msg.Body, IsText: true}}
	}

	for _, part := range parts {
		if !part.IsText {
			ct := strings.ReplaceAll(strings.ReplaceAll(part.ContentType, "/", "_"), "-", "")
			tokens = append(tokens, Token{Text: "CT_" + ct, Flags: FlagDerived | FlagBody})
			continue
		}

		text := part.Text
		if tk.cfg.RemoveHTML && looksLikeHTML(part.ContentType, text) {
			text = stripHTML(text)
		}

		urlTokens, remaining := tk.extractURLs(text)
		tokens = append(tokens, urlTokens...)

		words := tk.extractWords(remaining)
		for _, w := range words {
			tokens = append(tokens, Token{Text: w, Flags: FlagWord | FlagBody})
		}
		tokens = append(tokens, tk.phraseTokens(words, FlagBody, "")...)
		if tk.cfg.EmitSkipGrams {
			tokens = append(tokens, tk.skipGramTokens(words, FlagBody)...)
		}
	}

	return tokens
}

// skipGramTokens emits OSB-style windowed skip-bigrams ("word1|word2|distance")
// as DERIVED tokens. Not part of the scored core; extra training signal
// only, gated behind Config.EmitSkipGrams.
func (tk *Tokenizer) skipGramTokens(words []string, base Flags) []Token {
	var tokens []Token
	for i := 0; i < len(words); i++ {
		for j := i + 1; j < len(words) && j <= i+tk.cfg.SkipGramWindow; j++ {
			osb := words[i] + "|" + words[j] + "|" + strconv.Itoa(j-i)
			tokens = append(tokens, Token{Text: osb, Flags: FlagDerived | base})
		}
	}
	return tokens
}

func (tk *Tokenizer) phraseTokens(words []string, base Flags, prefix string) []Token {
	var tokens []Token
	n := len(words)
	for size := tk.cfg.MinPhraseTerms; size <= tk.cfg.MaxPhraseTerms; size++ {
		if size < 2 {
			continue // unigrams already emitted as WORD tokens
		}
		for i := 0; i+size <= n; i++ {
			phrase := strings.Join(words[i:i+size], " ")
			tokens = append(tokens, Token{Text: phrase, Flags: FlagPhrase | base, Prefix: prefix})
		}
	}
	return tokens
}

// wordSplit matches runs of letters/digits that may contain an internal
// '.', '-' or '@' (numbers, hyphenated words, email addresses).
var wordSplit = regexp.MustCompile(`[a-z0-9]+(?:[.\-@][a-z0-9]+)*`)

func (tk *Tokenizer) extractWords(text string) []string {
	text = tk.foldASCII(text)
	matches := wordSplit.FindAllString(text, -1)

	var words []string
	for _, w := range matches {
		w = strings.Trim(w, ".-@")
		if len(w) < tk.cfg.MinTermLength || len(w) > tk.cfg.MaxTermLength {
			continue
		}
		words = append(words, w)
	}
	return words
}

// foldUnicode folds fullwidth/halfwidth forms to their standard width and
// canonically decomposes accented/composed letters (NFKD) so a following
// mark-strip reduces them to their base ASCII letter, e.g. "café" -> "cafe".
func foldUnicode(s string) string {
	s = width.Fold.String(s)
	s = norm.NFKD.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, s)
}

// foldASCII runs foldUnicode, lowercases ASCII letters, and replaces any
// remaining byte >= 0x80 with the configured substitute.
func (tk *Tokenizer) foldASCII(s string) string {
	s = foldUnicode(s)
	buf := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 0x80:
			c = tk.cfg.ReplaceNonASCII
		case c >= 'A' && c <= 'Z':
			c = c - 'A' + 'a'
		}
		buf[i] = c
	}
	return string(buf)
}

var urlPattern = regexp.MustCompile(`(?i)(https?://[^\s<>"']+|ftp://[^\s<>"']+|www\.[a-z0-9.\-]+\.[a-z]{2,}[^\s<>"']*)`)

// extractURLs pulls URL substrings out of text, emitting a URL token for
// the full URL plus WORD tokens for host/path-segments/query-param-names,
// and returns the text with URLs removed so the word extractor doesn't
// double-process them.
func (tk *Tokenizer) extractURLs(text string) ([]Token, string) {
	matches := urlPattern.FindAllStringIndex(text, -1)
	if matches == nil {
		return nil, text
	}

	var tokens []Token
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		last = m[1]

		raw := text[m[0]:m[1]]
		url := tk.foldASCII(raw)
		if len(url) > maxURLLength {
			url = url[:maxURLLength]
		}
		tokens = append(tokens, Token{Text: url, Flags: FlagURL, Prefix: "URL"})

		host, path, query := splitURL(url)
		if host != "" {
			tokens = append(tokens, Token{Text: host, Flags: FlagWord | FlagURL, Prefix: "URL"})
		}
		for _, seg := range path {
			if len(seg) >= tk.cfg.MinTermLength && len(seg) <= tk.cfg.MaxTermLength {
				tokens = append(tokens, Token{Text: seg, Flags: FlagWord | FlagURL, Prefix: "URL"})
			}
		}
		for _, q := range query {
			if len(q) >= tk.cfg.MinTermLength && len(q) <= tk.cfg.MaxTermLength {
				tokens = append(tokens, Token{Text: q, Flags: FlagWord | FlagURL, Prefix: "URL"})
			}
		}
	}
	b.WriteString(text[last:])

	return tokens, b.String()
}

func splitURL(url string) (host string, pathSegments []string, queryNames []string) {
	rest := url
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}

	path := rest
	query := ""
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		host = rest[:i]
		path = rest[i:]
	} else {
		host = rest
		path = ""
	}

	if i := strings.Index(path, "?"); i >= 0 {
		query = path[i+1:]
		path = path[:i]
	}

	for _, seg := range strings.Split(path, "/") {
		seg = strings.Trim(seg, " \t")
		if seg != "" {
			pathSegments = append(pathSegments, seg)
		}
	}

	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		name := pair
		if i := strings.Index(pair, "="); i >= 0 {
			name = pair[:i]
		}
		if name != "" {
			queryNames = append(queryNames, name)
		}
	}

	return host, pathSegments, queryNames
}

// AuthDerivedTokens turns a header-authentication validation result into
// HEADER-flagged DERIVED tokens (e.g. "H_SPF_FAIL", "H_DMARC_FAIL"), so a
// caller that has already run pkg/headers over a message can fold its
// anomaly signal into the same token stream the scorer and trainer
// consume. Not called from Tokenize itself: the validator needs network
// access the tokenizer must never require, so this stays an opt-in step a
// caller performs explicitly (see cmd/score.go's --headers flag).
func AuthDerivedTokens(result *headers.ValidationResult) []Token {
	if result == nil {
		return nil
	}

	var tokens []Token
	add := func(text string) {
		tokens = append(tokens, Token{Text: text, Flags: FlagDerived | FlagHeader, Prefix: "H"})
	}

	if result.SPF.Result != "" {
		add("SPF_" + strings.ToUpper(result.SPF.Result))
	}
	if !result.DKIM.Valid {
		add("DKIM_FAIL")
	}
	if result.DMARC.Policy != "" && !result.DMARC.Valid {
		add("DMARC_FAIL")
	}
	if !result.DomainAlignment.Aligned {
		if result.DomainAlignment.RelaxedAligned {
			add("DOMAIN_RELAXED_ALIGN")
		} else {
			add("DOMAIN_MISALIGN")
		}
	}
	for range result.Routing.TimingAnomalies {
		add("TIMING_ANOMALY")
	}
	for range result.Routing.SuspiciousHops {
		add("SUSPICIOUS_HOP")
	}
	for range result.Routing.OpenRelays {
		add("OPEN_RELAY")
	}
	for range result.Anomalies {
		add("ANOMALY")
	}
	return tokens
}

var hostFragmentPattern = regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?\.)+[a-z]{2,}\b|\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// extractHostFragments pulls hostnames/IPs out of a Received header value,
// deduplicated and sorted for determinism.
func extractHostFragments(value string) []string {
	matches := hostFragmentPattern.FindAllString(strings.ToLower(value), -1)
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
