package scraper

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// boilerplate is removed before any text is read.
const boilerplate = "script, style, noscript, nav, header, footer, aside, form, iframe, svg"

// contentSelectors are tried in order; the first match wins.
var contentSelectors = []string{
	"main",
	"article",
	".content",
	".post-content",
	".entry-content",
	"#content",
	"#main",
	".main-content",
	`[role="main"]`,
}

var whitespaceExpr = regexp.MustCompile(`\s+`)

// ExtractText returns readable text from an HTML document.
func ExtractText(doc *goquery.Document) string {
	doc.Find(boilerplate).Remove()

	var region *goquery.Selection
	for _, selector := range contentSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			region = sel
			break
		}
	}
	if region == nil {
		region = doc.Find("body").First()
		if region.Length() == 0 {
			region = doc.Selection
		}
	}

	return CleanText(blockText(region))
}

// blockText joins text nodes with spaces so adjacent block elements do not glue words together.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) == "#text" {
			b.WriteString(node.Text())
			return
		}
		b.WriteByte(' ')
		b.WriteString(blockText(node))
		b.WriteByte(' ')
	})
	return b.String()
}

// CleanText collapses whitespace and drops characters that are not part of prose.
func CleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		case r == '_':
			return r
		case strings.ContainsRune(".,!?;:-()[]'", r):
			return r
		default:
			return -1
		}
	}, text)
	return strings.TrimSpace(whitespaceExpr.ReplaceAllString(text, " "))
}

// Truncate cuts text to at most limit runes.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit]))
}
