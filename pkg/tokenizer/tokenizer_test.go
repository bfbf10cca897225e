package tokenizer

import (
	"strings"
	"testing"

	"github.com/zpam/bayescore/pkg/headers"
	"github.com/zpam/bayescore/pkg/message"
)

func mustParse(t *testing.T, raw string) *message.Message {
	t.Helper()
	msg, err := message.Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("message.Parse: %v", err)
	}
	return msg
}

func hasToken(tokens []Token, text string, flags Flags) bool {
	for _, tok := range tokens {
		if tok.Text == text && tok.Flags&flags == flags {
			return true
		}
	}
	return false
}

const basicRaw = `From: promo@example.com
Subject: buy cheap pills now
Content-Type: text/plain

visit http://spam.example.com/offer?ref=123 for a free gift
`

func TestTokenizeWordsAndHeaders(t *testing.T) {
	tk := New(DefaultConfig())
	tokens := tk.Tokenize(mustParse(t, basicRaw))

	if !hasToken(tokens, "cheap", FlagWord|FlagHeader) {
		t.Errorf("expected a header word token for 'cheap', got %+v", tokens)
	}
	if !hasToken(tokens, "visit", FlagWord|FlagBody) {
		t.Errorf("expected a body word token for 'visit', got %+v", tokens)
	}
}

func TestTokenizeExtractsURLComponents(t *testing.T) {
	tk := New(DefaultConfig())
	tokens := tk.Tokenize(mustParse(t, basicRaw))

	var urlToken *Token
	for i := range tokens {
		if tokens[i].Flags&FlagURL != 0 && tokens[i].Prefix == "URL" && strings.HasPrefix(tokens[i].Text, "http") {
			urlToken = &tokens[i]
			break
		}
	}
	if urlToken == nil {
		t.Fatalf("expected a full URL token, got %+v", tokens)
	}

	if !hasToken(tokens, "spam.example.com", FlagWord|FlagURL) {
		t.Errorf("expected a URL host token, got %+v", tokens)
	}
	if !hasToken(tokens, "offer", FlagWord|FlagURL) {
		t.Errorf("expected a URL path-segment token, got %+v", tokens)
	}
	if !hasToken(tokens, "ref", FlagWord|FlagURL) {
		t.Errorf("expected a URL query-param-name token, got %+v", tokens)
	}
}

func TestTokenizePhraseTokens(t *testing.T) {
	tk := New(DefaultConfig())
	tokens := tk.Tokenize(mustParse(t, basicRaw))

	if !hasToken(tokens, "cheap pills", FlagPhrase|FlagHeader) {
		t.Errorf("expected a two-word header phrase token, got %+v", tokens)
	}
}

func TestTokenizeSkipGramsGatedByConfig(t *testing.T) {
	cfg := DefaultConfig()
	tk := New(cfg)
	tokens := tk.Tokenize(mustParse(t, basicRaw))
	for _, tok := range tokens {
		if strings.Contains(tok.Text, "|") {
			t.Fatalf("expected no skip-gram tokens when EmitSkipGrams is off, got %+v", tok)
		}
	}

	cfg.EmitSkipGrams = true
	tk = New(cfg)
	tokens = tk.Tokenize(mustParse(t, basicRaw))

	found := false
	for _, tok := range tokens {
		if tok.Flags&FlagDerived != 0 && strings.Contains(tok.Text, "|") {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("expected at least one DERIVED skip-gram token when EmitSkipGrams is on")
	}
}

func TestTokenizeIgnoreBody(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IgnoreBody = true
	tk := New(cfg)
	tokens := tk.Tokenize(mustParse(t, basicRaw))

	for _, tok := range tokens {
		if tok.Flags&FlagBody != 0 {
			t.Fatalf("expected no body tokens with IgnoreBody set, got %+v", tok)
		}
	}
}

func TestTokenKeyUsesPrefix(t *testing.T) {
	withPrefix := Token{Text: "pills", Prefix: "HSubject"}
	if withPrefix.Key() != "HSubject_pills" {
		t.Errorf("Key() = %q, want HSubject_pills", withPrefix.Key())
	}

	noPrefix := Token{Text: "pills"}
	if noPrefix.Key() != "pills" {
		t.Errorf("Key() = %q, want pills", noPrefix.Key())
	}
}

func TestNewClampsInvalidConfig(t *testing.T) {
	tk := New(Config{MaxPhraseTerms: 0, MinPhraseTerms: 10})
	if tk.cfg.MaxPhraseTerms != 1 {
		t.Errorf("expected MaxPhraseTerms clamped to 1, got %d", tk.cfg.MaxPhraseTerms)
	}
	if tk.cfg.MinPhraseTerms != 1 {
		t.Errorf("expected MinPhraseTerms clamped to MaxPhraseTerms, got %d", tk.cfg.MinPhraseTerms)
	}
	if tk.cfg.ReplaceNonASCII != 'z' {
		t.Errorf("expected ReplaceNonASCII defaulted to 'z', got %q", tk.cfg.ReplaceNonASCII)
	}
}

func TestAuthDerivedTokens(t *testing.T) {
	result := &headers.ValidationResult{
		SPF:             headers.SPFResult{Result: "fail"},
		DKIM:            headers.DKIMResult{Valid: false},
		DomainAlignment: headers.DomainAlignment{Aligned: true, RelaxedAligned: true},
		Routing: headers.RoutingResult{
			SuspiciousHops: []string{"10.0.0.1"},
		},
	}

	tokens := AuthDerivedTokens(result)

	if !hasToken(tokens, "SPF_FAIL", FlagDerived|FlagHeader) {
		t.Errorf("expected SPF_FAIL token, got %+v", tokens)
	}
	if !hasToken(tokens, "DKIM_FAIL", FlagDerived|FlagHeader) {
		t.Errorf("expected DKIM_FAIL token, got %+v", tokens)
	}
	if !hasToken(tokens, "SUSPICIOUS_HOP", FlagDerived|FlagHeader) {
		t.Errorf("expected SUSPICIOUS_HOP token, got %+v", tokens)
	}
}

func TestAuthDerivedTokensDomainMisalignment(t *testing.T) {
	result := &headers.ValidationResult{
		DomainAlignment: headers.DomainAlignment{Aligned: false, RelaxedAligned: true},
	}
	tokens := AuthDerivedTokens(result)
	if !hasToken(tokens, "DOMAIN_RELAXED_ALIGN", FlagDerived|FlagHeader) {
		t.Errorf("expected DOMAIN_RELAXED_ALIGN token, got %+v", tokens)
	}

	result = &headers.ValidationResult{
		DomainAlignment: headers.DomainAlignment{Aligned: false, RelaxedAligned: false},
	}
	tokens = AuthDerivedTokens(result)
	if !hasToken(tokens, "DOMAIN_MISALIGN", FlagDerived|FlagHeader) {
		t.Errorf("expected DOMAIN_MISALIGN token, got %+v", tokens)
	}
}

func TestAuthDerivedTokensNilResult(t *testing.T) {
	if tokens := AuthDerivedTokens(nil); tokens != nil {
		t.Errorf("expected nil tokens for a nil result, got %+v", tokens)
	}
}
