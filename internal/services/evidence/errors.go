package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Disclosure APIs report errors inside 200 responses, so payloads must
// be sniffed before extraction.

var whitespaceRe = regexp.MustCompile(`\s+`)

// safeText collapses whitespace and caps the length. The cap counts
// runes, not bytes; filing text is mostly multibyte and a byte slice
// would cut characters in half.
func safeText(raw string, limit int) string {
	txt := strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))
	if limit <= 0 {
		return txt
	}
	runes := []rune(txt)
	if len(runes) > limit {
		txt = string(runes[:limit])
	}
	return txt
}

var errorTokens = []string{
	"not found",
	"forbidden",
	"access denied",
	"invalid_api_key",
	"invalid api key",
	"subscription-key",
	"wzek0130.aspx",
}

// looksLikeErrorText reports whether decoded text is an API or gateway
// error page rather than filing content.
func looksLikeErrorText(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return true
	}
	if strings.Contains(t, "wzek0130.aspx") {
		return true
	}
	for _, token := range []string{"403 forbidden", "404 not found", "access denied"} {
		if strings.Contains(t, token) {
			return true
		}
	}
	if strings.Contains(t, "invalid_api_key") || strings.Contains(t, "invalid api key") {
		return true
	}
	if strings.Contains(t, "subscription-key") && strings.Contains(t, "required") {
		return true
	}
	if strings.HasPrefix(t, "<?xml") && strings.Contains(t, "<error") {
		return true
	}
	if strings.Contains(t, "<html") {
		for _, token := range []string{
			"forbidden", "not found", "access denied", "service unavailable",
			"invalid_api_key", "invalid api key", "subscription-key", "error",
		} {
			if strings.Contains(t, token) {
				return true
			}
		}
	}
	return false
}

// hasSubstantiveSnippet decides whether extracted text is worth keeping
// as evidence: long enough, not an error page, not binary garbage, and
// not just the headline echoed back.
func hasSubstantiveSnippet(snippet, headline string) bool {
	s := strings.TrimSpace(snippet)
	h := strings.TrimSpace(headline)
	if s == "" {
		return false
	}
	if looksLikeErrorText(s) {
		return false
	}
	if strings.ContainsRune(s, 0) {
		return false
	}
	if strings.HasPrefix(s, "%PDF-") {
		return false
	}
	for _, ch := range s {
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			return false
		}
	}
	if h == "" {
		return len(s) >= 24
	}
	if s == h {
		return false
	}
	if strings.HasPrefix(s, h) && len(s) <= len(h)+8 {
		return false
	}
	return len(s) >= 24
}

// expectedPayloadMagic checks the binary signature for a file-type
// variant: PDF for the rendered variant, ZIP for the archive variants.
func expectedPayloadMagic(payload []byte, fileType int) bool {
	if len(payload) == 0 {
		return false
	}
	switch fileType {
	case 2:
		return bytes.HasPrefix(payload, []byte("%PDF-"))
	case 1, 3, 4, 5:
		return bytes.HasPrefix(payload, []byte("PK"))
	default:
		return true
	}
}

// looksLikeAPIErrorPayload sniffs a JSON or markup payload for the
// error phrases the disclosure API embeds in success responses.
func looksLikeAPIErrorPayload(payload []byte) bool {
	if len(payload) == 0 {
		return true
	}
	head := payload
	if len(head) > 12000 {
		head = head[:12000]
	}
	stripped := bytes.TrimLeft(head, " \t\r\n")
	if len(stripped) == 0 {
		return true
	}

	if stripped[0] == '{' || stripped[0] == '[' {
		txt := decodeBytes(stripped)
		low := strings.ToLower(txt)
		for _, token := range errorTokens {
			if strings.Contains(low, token) {
				return true
			}
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(txt), &obj); err != nil {
			return looksLikeErrorText(txt)
		}
		probe := strings.ToLower(fmt.Sprintf("%v %v %v %v",
			obj["message"], obj["error"], obj["code"], obj["detail"]))
		for _, token := range errorTokens {
			if strings.Contains(probe, token) {
				return true
			}
		}
		return false
	}
	if stripped[0] == '<' {
		return looksLikeErrorText(decodeBytes(stripped))
	}
	return false
}
