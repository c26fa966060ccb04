// Package keywords ranks terms and phrases to label nodes and clusters.
package keywords

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultName labels a cluster whose members yield no terms.
const DefaultName = "General"

var tokenExpr = regexp.MustCompile(`\b[a-zA-Z][\w-]+\b`)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all also among an and any are as at be because been
		before being below between both but by can could did do does doing down during each
		few first for from further had has have having he her here hers him his how however if
		in into is it its itself just may might more most must my no nor not now of off on once
		only or other our ours out over own said same she should so some such than that the
		their them then there these they this those through time to too under until up upon us
		very was we were what when where which while who whom why will with within without
		would you your yours new one two use used using like get also well make many much
		http https www com html`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether w (lower case) is filtered out.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Tokenize returns lower-cased word tokens in order of appearance.
func Tokenize(text string) []string {
	raw := tokenExpr.FindAllString(text, -1)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		tokens = append(tokens, strings.ToLower(strings.Trim(tok, "-_")))
	}
	return tokens
}

// Terms is Tokenize without stop words and one-letter leftovers.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := tokens[:0]
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < 2 || IsStopWord(tok) {
			continue
		}
		terms = append(terms, tok)
	}
	return terms
}

// Top returns up to n terms across texts ranked by count; ties keep first-occurrence order.
func Top(texts []string, n int) []string {
	if n <= 0 {
		return []string{}
	}

	counts := map[string]int{}
	first := map[string]int{}
	pos := 0
	for _, text := range texts {
		for _, term := range Terms(text) {
			if _, seen := first[term]; !seen {
				first[term] = pos
			}
			counts[term]++
			pos++
		}
	}

	ranked := make([]string, 0, len(counts))
	for term := range counts {
		ranked = append(ranked, term)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return first[a] < first[b]
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Name derives a display name from ranked keywords.
func Name(keywords []string) string {
	if len(keywords) == 0 {
		return DefaultName
	}
	return titleCase(keywords[0])
}

func titleCase(word string) string {
	parts := strings.Split(word, "-")
	for i, part := range parts {
		r, size := utf8.DecodeRuneInString(part)
		if r == utf8.RuneError {
			continue
		}
		parts[i] = string(unicode.ToUpper(r)) + part[size:]
	}
	return strings.Join(parts, "-")
}
