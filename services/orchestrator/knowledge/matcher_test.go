package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievancebot/services/orchestrator/langpack"
)

func defaultMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := Default()
	require.NoError(t, err)
	return m
}

func TestMatchAbbreviation(t *testing.T) {
	m := defaultMatcher(t)

	e, score := m.Best("what is jjm", langpack.English)
	assert.Equal(t, "jal jeevan mission", e.Key)
	assert.GreaterOrEqual(t, score, 7)

	answer, ok := m.Match("What is JJM?", langpack.English)
	require.True(t, ok)
	assert.Contains(t, answer, "Jal Jeevan Mission")
}

func TestMatchSpacedAbbreviation(t *testing.T) {
	answer, ok := defaultMatcher(t).Match("j j m", langpack.English)
	require.True(t, ok)
	assert.Contains(t, answer, "Jal Jeevan Mission")
}

func TestMatchCompactFullForm(t *testing.T) {
	answer, ok := defaultMatcher(t).Match("tell me about jaljeevanmission", langpack.English)
	require.True(t, ok)
	assert.Contains(t, answer, "Jal Jeevan Mission")
}

func TestMatchToleratesTypos(t *testing.T) {
	answer, ok := defaultMatcher(t).Match("jal jeevn mision", langpack.English)
	require.True(t, ok)
	assert.Contains(t, answer, "Jal Jeevan Mission")
}

func TestMatchRegionalLocales(t *testing.T) {
	m := defaultMatcher(t)

	answer, ok := m.Match("जल जीवन मिशन क्या है?", langpack.Hindi)
	require.True(t, ok)
	assert.Contains(t, answer, "नल कनेक्शन")

	answer, ok = m.Match("जल जीवन मिशन म्हणजे काय?", langpack.Marathi)
	require.True(t, ok)
	assert.Contains(t, answer, "नळ जोडणी")
}

func TestMatchIsLocaleScoped(t *testing.T) {
	_, ok := defaultMatcher(t).Match("helpline number", langpack.Marathi)
	assert.False(t, ok)
}

func TestNoMatch(t *testing.T) {
	m := defaultMatcher(t)
	for _, q := range []string{"", "?", "what is", "cricket score today", "a"} {
		_, ok := m.Match(q, langpack.English)
		assert.False(t, ok, q)
	}
}

func TestMatchIsDeterministic(t *testing.T) {
	m := defaultMatcher(t)
	first, _ := m.Match("what is the helpline number", langpack.English)
	for i := 0; i < 20; i++ {
		got, ok := m.Match("what is the helpline number", langpack.English)
		require.True(t, ok)
		assert.Equal(t, first, got)
	}
}

func TestTieKeepsFirstEntry(t *testing.T) {
	m := New(&Base{Entries: []Entry{
		{Key: "water tanker", Locale: langpack.English, Answer: "first"},
		{Key: "water tanker", Locale: langpack.English, Answer: "second"},
	}})
	answer, ok := m.Match("water tanker", langpack.English)
	require.True(t, ok)
	assert.Equal(t, "first", answer)
}

func TestParseRejectsIncompleteEntry(t *testing.T) {
	_, err := Parse([]byte("entries:\n  - key: x\n    locale: en\n"))
	assert.Error(t, err)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("mission", "mission"), 1e-9)
	assert.InDelta(t, 6.0/7.0, similarity("mision", "mission"), 1e-9)
	assert.InDelta(t, 4.0/7.0, similarity("kitten", "sitting"), 1e-9)
	assert.InDelta(t, 3.0/4.0, similarity("गांव", "गाव"), 1e-9)
}
