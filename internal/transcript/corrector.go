// Package transcript fixes speech-to-text mishears of stream-specific terms
// before translation.
//
// Generic speech recognition reliably mangles proper nouns — channel names,
// game titles, running gags — and a mistranscribed name survives translation
// in its mangled form. The [Corrector] holds a glossary of expected terms and
// replaces tokens that sound like a glossary term: candidates are found by
// Double Metaphone code overlap and accepted when their Jaro-Winkler
// similarity clears the configured threshold. Multi-word terms are matched
// against sliding token windows so "lingo graph" can become "Lingograph".
package transcript

import (
	"strings"
	"sync"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	// defaultThreshold is the minimum Jaro-Winkler similarity for a
	// phonetic candidate (Double Metaphone code overlap) to be accepted.
	defaultThreshold = 0.84

	// fuzzyThreshold is the stricter bar applied when a window resembles a
	// term in spelling only, without any phonetic code overlap. Catches
	// concatenation splits like "lingo graph" that phonetic codes miss.
	fuzzyThreshold = 0.92
)

// Correction records one replacement made by [Corrector.Correct].
type Correction struct {
	// Heard is the token window as it came from speech recognition.
	Heard string

	// Term is the glossary term that replaced it.
	Term string

	// Confidence is the Jaro-Winkler similarity between the two.
	Confidence float64
}

// term is a glossary entry with its matching data precomputed.
type term struct {
	text   string
	lower  string
	tokens []string
	codes  map[string]struct{}
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithThreshold sets the minimum Jaro-Winkler similarity required for a
// replacement. Default: 0.84.
func WithThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.threshold = threshold
	}
}

// Corrector replaces misheard glossary terms in utterance text. A Corrector
// with an empty glossary passes text through unchanged.
//
// All methods are safe for concurrent use; the glossary can be swapped at
// runtime via [Corrector.SetTerms] (config hot reload).
type Corrector struct {
	threshold float64

	mu       sync.RWMutex
	terms    []term
	maxWords int
}

// New creates a [Corrector] for the given glossary terms.
func New(terms []string, opts ...Option) *Corrector {
	c := &Corrector{threshold: defaultThreshold}
	for _, o := range opts {
		o(c)
	}
	c.SetTerms(terms)
	return c
}

// SetTerms replaces the glossary. Blank entries are dropped.
func (c *Corrector) SetTerms(terms []string) {
	prepared := make([]term, 0, len(terms))
	maxWords := 0
	for _, raw := range terms {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		tokens := strings.Fields(lower)
		prepared = append(prepared, term{
			text:   text,
			lower:  lower,
			tokens: tokens,
			codes:  codesForTokens(tokens),
		})
		if len(tokens) > maxWords {
			maxWords = len(tokens)
		}
	}

	c.mu.Lock()
	c.terms = prepared
	c.maxWords = maxWords
	c.mu.Unlock()
}

// Enabled reports whether the glossary holds at least one term.
func (c *Corrector) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.terms) > 0
}

// Correct scans text for token windows that sound like a glossary term and
// replaces them with the term's canonical spelling. Longer windows win over
// shorter ones so multi-word terms take precedence. Punctuation around a
// window is preserved.
func (c *Corrector) Correct(text string) (string, []Correction) {
	c.mu.RLock()
	terms := c.terms
	maxWords := c.maxWords
	c.mu.RUnlock()

	if len(terms) == 0 {
		return text, nil
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var out []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := min(maxWords, len(tokens)-i)

		matched := false
		for n := maxN; n >= 1; n-- {
			window := tokens[i : i+n]
			replaced, corr, ok := matchWindow(window, terms, c.threshold)
			if !ok {
				continue
			}
			out = append(out, replaced)
			if !strings.EqualFold(corr.Heard, corr.Term) {
				corrections = append(corrections, corr)
			}
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}

	return strings.Join(out, " "), corrections
}

// matchWindow tests one token window against the glossary and returns the
// replacement text (with the window's surrounding punctuation reattached)
// for the best-scoring term above threshold.
func matchWindow(window []string, terms []term, threshold float64) (string, Correction, bool) {
	// Punctuation outside the window survives the replacement: the leading
	// characters of the first token and the trailing ones of the last.
	lead, _ := splitLeading(window[0])
	_, trail := splitTrailing(window[len(window)-1])

	bare := make([]string, len(window))
	for k, w := range window {
		bare[k] = strings.ToLower(strip(w))
	}
	heard := strings.Join(bare, " ")
	if heard == "" {
		return "", Correction{}, false
	}
	heardCodes := codesForTokens(bare)

	var best *term
	var bestScore float64
	for idx := range terms {
		t := &terms[idx]
		if heard == t.lower {
			// Already the term; still canonicalize the spelling.
			best, bestScore = t, 1
			break
		}

		// Phonetic candidates are accepted at the configured threshold;
		// spelling-only resemblance needs the stricter fuzzy bar.
		floor := max(threshold, fuzzyThreshold)
		if codesOverlap(heardCodes, t.codes) {
			floor = threshold
		}
		if score := matchr.JaroWinkler(heard, t.lower, false); score >= floor && score > bestScore {
			best, bestScore = t, score
		}

		// The space-stripped pass catches splits like "lingo graph" vs
		// "lingograph". It ignores word boundaries entirely, so it always
		// demands the fuzzy bar — otherwise a window like "on twitch" could
		// swallow its neighbour.
		if len(bare) > 1 || len(t.tokens) > 1 {
			joined := matchr.JaroWinkler(strings.Join(bare, ""), strings.Join(t.tokens, ""), false)
			if floor := max(threshold, fuzzyThreshold); joined >= floor && joined > bestScore {
				best, bestScore = t, joined
			}
		}
	}
	if best == nil {
		return "", Correction{}, false
	}

	return lead + best.text + trail, Correction{
		Heard:      heard,
		Term:       best.text,
		Confidence: bestScore,
	}, true
}

// codesForTokens returns the union of the Double Metaphone codes of all
// tokens. Tokens that produce no code (too short, no consonants) contribute
// nothing.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share an entry.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// strip removes punctuation from both ends of a token.
func strip(tok string) string {
	return strings.TrimFunc(tok, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// splitLeading splits tok into its leading punctuation and the rest.
func splitLeading(tok string) (punct, rest string) {
	idx := strings.IndexFunc(tok, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	})
	if idx < 0 {
		return tok, ""
	}
	return tok[:idx], tok[idx:]
}

// splitTrailing splits tok into the part before its trailing punctuation and
// the punctuation itself. Trimming runs on rune boundaries, so a multibyte
// final letter stays intact.
func splitTrailing(tok string) (rest, punct string) {
	rest = strings.TrimRightFunc(tok, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return rest, tok[len(rest):]
}
