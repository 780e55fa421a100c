package evidence

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`(?is)<[^>]+>`)
)

// stripMarkup reduces HTML-ish text to its visible content. Well-formed
// documents go through a real parser; broken fragments fall back to
// regex stripping so extraction never fails on malformed markup.
func stripMarkup(text string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err == nil {
		doc.Find("script, style").Remove()
		if visible := safeText(doc.Text(), 0); visible != "" {
			return visible
		}
	}

	noScript := scriptStyleRe.ReplaceAllString(text, " ")
	return safeText(tagRe.ReplaceAllString(noScript, " "), 0)
}
