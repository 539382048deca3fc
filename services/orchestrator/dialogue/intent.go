package dialogue

import (
	"strings"
	"unicode"

	"grievancebot/services/orchestrator/langpack"
)

type intent int

const (
	intentNone intent = iota
	intentStatus
	intentRegister
	intentFeedback
)

// fold lowercases s and turns punctuation into single spaces.
func fold(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func isGreeting(p *langpack.Pack, folded string) bool {
	words := len(strings.Fields(folded))
	for _, g := range p.Greetings {
		g = fold(g)
		if folded == g {
			return true
		}
		if strings.HasPrefix(folded, g+" ") && words <= len(strings.Fields(g))+1 {
			return true
		}
	}
	return false
}

// answer maps a typed yes/no word to an option index.
func answer(p *langpack.Pack, folded string) (int, bool) {
	for _, w := range p.YesWords {
		if folded == fold(w) {
			return 0, true
		}
	}
	for _, w := range p.NoWords {
		if folded == fold(w) {
			return 1, true
		}
	}
	return 0, false
}

func detectIntent(p *langpack.Pack, folded string) intent {
	switch {
	case containsTerm(folded, p.StatusTerms):
		return intentStatus
	case containsTerm(folded, p.RegisterTerms):
		return intentRegister
	case containsTerm(folded, p.FeedbackTerms):
		return intentFeedback
	}
	return intentNone
}

// containsTerm matches ASCII terms on word boundaries and regional terms as
// substrings, since Devanagari words inflect by suffix.
func containsTerm(folded string, terms []string) bool {
	padded := " " + folded + " "
	for _, t := range terms {
		t = fold(t)
		if t == "" {
			continue
		}
		if isASCII(t) {
			if strings.Contains(padded, " "+t+" ") {
				return true
			}
			continue
		}
		if strings.Contains(folded, t) {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
