package tokenizer

import (
	"regexp"
	"strconv"
	"strings"
)

// looksLikeHTML decides whether a body part should go through tag
// stripping: an explicit text/html content type, or a heuristic sniff for
// '<' and '>' when the content type is absent/ambiguous.
func looksLikeHTML(contentType, text string) bool {
	if strings.EqualFold(contentType, "text/html") {
		return true
	}
	return strings.Contains(text, "<") && strings.Contains(text, ">")
}

var (
	scriptStylePattern = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	tagPattern         = regexp.MustCompile(`(?s)<[^>]*>`)
	numericEntityDec   = regexp.MustCompile(`&#(\d+);`)
	numericEntityHex   = regexp.MustCompile(`(?i)&#x([0-9a-f]+);`)
)

var namedEntities = map[string]string{
	"&amp;":  "&",
	"&lt;":   "<",
	"&gt;":   ">",
	"&quot;": `"`,
	"&apos;": "'",
	"&nbsp;": " ",
}

// stripHTML removes script/style blocks and tags, then decodes the common
// named and numeric HTML entities.
func stripHTML(s string) string {
	s = scriptStylePattern.ReplaceAllString(s, " ")
	s = tagPattern.ReplaceAllString(s, " ")

	for entity, repl := range namedEntities {
		s = strings.ReplaceAll(s, entity, repl)
	}

	s = numericEntityDec.ReplaceAllStringFunc(s, func(m string) string {
		sub := numericEntityDec.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[1])
		if err != nil || n < 0 || n > 0x10FFFF {
			return m
		}
		return string(rune(n))
	})

	s = numericEntityHex.ReplaceAllStringFunc(s, func(m string) string {
		sub := numericEntityHex.FindStringSubmatch(m)
		n, err := strconv.ParseInt(sub[1], 16, 32)
		if err != nil || n < 0 || n > 0x10FFFF {
			return m
		}
		return string(rune(n))
	})

	return s
}
