// Package knowledge answers short informational questions from a small static
// knowledge base, tolerating abbreviations and minor misspellings.
package knowledge

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"

	"grievancebot/services/orchestrator/langpack"
)

//go:embed kb.yaml
var defaultKB []byte

// Score weights.
const (
	scoreDirect       = 10
	scoreExpanded     = 8
	scoreAbbreviation = 7
	scoreWord         = 2
	scoreFuzzy        = 1

	// MinScore is the lowest score that counts as a match.
	MinScore = 2

	fuzzyThreshold = 0.6
)

// Entry is one knowledge base fact.
type Entry struct {
	Key    string          `yaml:"key"`
	Locale langpack.Locale `yaml:"locale"`
	Answer string          `yaml:"answer"`
}

// Abbreviation maps a short form to its full phrase.
type Abbreviation struct {
	Short string `yaml:"short"`
	Full  string `yaml:"full"`
}

// Base is the on-disk knowledge base layout.
type Base struct {
	Prefixes      []string       `yaml:"prefixes"`
	Suffixes      []string       `yaml:"suffixes"`
	Abbreviations []Abbreviation `yaml:"abbreviations"`
	Entries       []Entry        `yaml:"entries"`
}

// Matcher scores queries against a Base. It is read-only after construction
// and safe for concurrent use.
type Matcher struct {
	prefixes []string
	suffixes []string
	abbrevs  []Abbreviation
	entries  []Entry
}

// Parse decodes a YAML knowledge base.
func Parse(data []byte) (*Base, error) {
	var b Base
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}
	for i, e := range b.Entries {
		if strings.TrimSpace(e.Key) == "" || strings.TrimSpace(e.Answer) == "" {
			return nil, fmt.Errorf("knowledge base entry %d: key and answer are required", i)
		}
	}
	return &b, nil
}

// New builds a Matcher. Entry keys and abbreviations are normalized the same
// way queries are.
func New(b *Base) *Matcher {
	m := &Matcher{}
	for _, p := range b.Prefixes {
		m.prefixes = append(m.prefixes, normalize(p))
	}
	for _, s := range b.Suffixes {
		m.suffixes = append(m.suffixes, normalize(s))
	}
	for _, a := range b.Abbreviations {
		m.abbrevs = append(m.abbrevs, Abbreviation{Short: normalize(a.Short), Full: normalize(a.Full)})
	}
	for _, e := range b.Entries {
		e.Key = normalize(e.Key)
		m.entries = append(m.entries, e)
	}
	return m
}

// Default returns a Matcher over the embedded knowledge base.
func Default() (*Matcher, error) {
	b, err := Parse(defaultKB)
	if err != nil {
		return nil, err
	}
	return New(b), nil
}

// Match returns the answer of the best scoring entry for locale, or false
// when nothing reaches MinScore.
func (m *Matcher) Match(query string, locale langpack.Locale) (string, bool) {
	e, score := m.Best(query, locale)
	if score < MinScore {
		return "", false
	}
	return e.Answer, true
}

// Best returns the highest scoring entry and its score. Ties keep the entry
// that appears first in the knowledge base.
func (m *Matcher) Best(query string, locale langpack.Locale) (Entry, int) {
	cleaned := m.clean(query)
	if cleaned == "" {
		return Entry{}, 0
	}
	expanded := m.expand(cleaned)

	var best Entry
	bestScore := 0
	for _, e := range m.entries {
		if e.Locale != locale {
			continue
		}
		if s := m.score(cleaned, expanded, e.Key); s > bestScore {
			best, bestScore = e, s
		}
	}
	return best, bestScore
}

func (m *Matcher) score(cleaned, expanded, key string) int {
	score := 0
	if overlaps(cleaned, key) {
		score += scoreDirect
	}
	if overlaps(expanded, key) || overlaps(compact(expanded), compact(key)) {
		score += scoreExpanded
	}
	for _, a := range m.abbrevs {
		if (hasWord(cleaned, a.Short) && strings.Contains(key, a.Full)) ||
			(strings.Contains(cleaned, a.Full) && hasWord(key, a.Short)) {
			score += scoreAbbreviation
			break
		}
	}

	keyWords := longWords(key, 2)
	for _, qw := range longWords(expanded, 2) {
		for _, kw := range keyWords {
			if strings.Contains(kw, qw) || strings.Contains(qw, kw) {
				score += scoreWord
				break
			}
		}
		if utf8.RuneCountInString(qw) <= 3 {
			continue
		}
		for _, kw := range keyWords {
			if utf8.RuneCountInString(kw) > 3 && similarity(qw, kw) > fuzzyThreshold {
				score += scoreFuzzy
				break
			}
		}
	}
	return score
}

// clean lowercases the query, drops punctuation and strips leading
// interrogative phrases and trailing question phrases.
func (m *Matcher) clean(query string) string {
	s := normalize(query)
	for changed := true; changed; {
		changed = false
		for _, p := range m.prefixes {
			if s == p {
				return ""
			}
			if strings.HasPrefix(s, p+" ") {
				s = strings.TrimSpace(s[len(p):])
				changed = true
			}
		}
	}
	for _, suf := range m.suffixes {
		if strings.HasSuffix(s, " "+suf) {
			s = strings.TrimSpace(s[:len(s)-len(suf)])
		}
	}
	return s
}

// expand replaces abbreviation words with their full form. A query made of
// a spaced out abbreviation ("j j m") expands as well.
func (m *Matcher) expand(cleaned string) string {
	c := compact(cleaned)
	for _, a := range m.abbrevs {
		if c == compact(a.Short) {
			return a.Full
		}
	}
	words := strings.Fields(cleaned)
	for i, w := range words {
		for _, a := range m.abbrevs {
			if w == a.Short {
				words[i] = a.Full
				break
			}
		}
	}
	return strings.Join(words, " ")
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			return r
		case r == '\'':
			return -1
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// overlaps reports whether either string contains the other. The reverse
// direction needs at least three characters so a stray "a" does not match
// every key.
func overlaps(query, key string) bool {
	if query == "" || key == "" {
		return false
	}
	if strings.Contains(query, key) {
		return true
	}
	return utf8.RuneCountInString(query) >= 3 && strings.Contains(key, query)
}

func hasWord(s, word string) bool {
	for _, w := range strings.Fields(s) {
		if w == word {
			return true
		}
	}
	return false
}

func longWords(s string, minLen int) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) > minLen {
			out = append(out, w)
		}
	}
	return out
}

// similarity is (maxLen - distance) / maxLen over runes.
func similarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return float64(maxLen-levenshtein.ComputeDistance(a, b)) / float64(maxLen)
}
