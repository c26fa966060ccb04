package keywords

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"gonum.org/v1/gonum/floats"

	"MindMapService/internal/embedder"
)

const (
	maxNgram         = 3
	maxCandidates    = 60
	minPhraseRunes   = 4
	redundantOverlap = 0.7
)

// Semantic ranks candidate phrases of a text by cosine similarity between the phrase embedding
// and the text's own embedding. Phrases are 1-3 word runs between stop words. Whenever no
// phrase can be ranked it falls back to Top.
type Semantic struct {
	backend embedder.Backend
	opts    embedder.Options
	logger  *slog.Logger
}

// NewSemantic ranks phrases with backend, which must be the model that produced the base
// vectors passed to Extract.
func NewSemantic(backend embedder.Backend, opts embedder.Options, log *slog.Logger) *Semantic {
	opts.Normalize = true
	return &Semantic{backend: backend, opts: opts, logger: log}
}

// Extract returns up to n keywords for each text. bases[i] is the embedding of texts[i].
// All candidate phrases are encoded in one pass; if that fails every text gets frequency
// keywords. Only cancellation of ctx is returned as an error.
func (s *Semantic) Extract(ctx context.Context, texts []string, bases [][]float64, n int) ([][]string, error) {
	out := make([][]string, len(texts))
	perText := make([][]string, len(texts))
	index := map[string]int{}
	var phrases []string
	for i, text := range texts {
		perText[i] = Candidates(text)
		for _, p := range perText[i] {
			if _, ok := index[p]; !ok {
				index[p] = len(phrases)
				phrases = append(phrases, p)
			}
		}
	}

	var vectors [][]float64
	if s != nil && s.backend != nil && len(phrases) > 0 && n > 0 {
		var err error
		vectors, err = embedder.Embed(ctx, s.backend, phrases, s.opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.debug("phrase embedding failed, using frequency keywords", "error", err)
			vectors = nil
		}
	}

	for i, text := range texts {
		var base []float64
		if i < len(bases) {
			base = bases[i]
		}
		ranked := rank(perText[i], index, vectors, base, n)
		if len(ranked) == 0 {
			ranked = Top([]string{text}, n)
		}
		out[i] = ranked
	}
	return out, nil
}

// Candidates lists the distinct phrases of text that Extract scores, longest first within
// each run of non-stop words.
func Candidates(text string) []string {
	var (
		out   []string
		seen  = map[string]struct{}{}
		chunk []string
	)
	flush := func() {
		for size := min(len(chunk), maxNgram); size > 0; size-- {
			for start := 0; start+size <= len(chunk); start++ {
				phrase := strings.Join(chunk[start:start+size], " ")
				if utf8.RuneCountInString(phrase) < minPhraseRunes {
					continue
				}
				if _, dup := seen[phrase]; dup {
					continue
				}
				seen[phrase] = struct{}{}
				out = append(out, phrase)
			}
		}
		chunk = chunk[:0]
	}

	for _, tok := range Tokenize(text) {
		if tok == "" || IsStopWord(tok) {
			flush()
			continue
		}
		chunk = append(chunk, tok)
	}
	flush()

	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

func rank(candidates []string, index map[string]int, vectors [][]float64, base []float64, n int) []string {
	if len(candidates) == 0 || len(vectors) == 0 || n <= 0 {
		return nil
	}
	norm := floats.Norm(base, 2)
	if norm == 0 || len(vectors[0]) != len(base) {
		return nil
	}

	scores := make([]float64, len(candidates))
	for k, c := range candidates {
		scores[k] = floats.Dot(vectors[index[c]], base) / norm
	}
	order := make([]int, len(candidates))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	var (
		picked []string
		taken  [][]string
	)
	for _, k := range order {
		words := strings.Fields(candidates[k])
		if redundant(words, taken) {
			continue
		}
		picked = append(picked, candidates[k])
		taken = append(taken, words)
		if len(picked) == n {
			break
		}
	}
	return picked
}

// redundant reports whether words share at least redundantOverlap of the smaller phrase with
// an already chosen phrase.
func redundant(words []string, taken [][]string) bool {
	set := map[string]struct{}{}
	for _, w := range words {
		set[w] = struct{}{}
	}
	for _, other := range taken {
		otherSet := map[string]struct{}{}
		for _, w := range other {
			otherSet[w] = struct{}{}
		}
		overlap := 0
		for w := range set {
			if _, ok := otherSet[w]; ok {
				overlap++
			}
		}
		if base := min(len(set), len(otherSet)); base > 0 && float64(overlap)/float64(base) >= redundantOverlap {
			return true
		}
	}
	return false
}

func (s *Semantic) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
