package langpack

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsComplete(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	for _, l := range Locales {
		p := c.Pack(l)
		require.NotNil(t, p, l)
		assert.Equal(t, l, p.Locale)
		assert.NotEmpty(t, p.Name)
		for _, k := range RequiredKeys {
			assert.NotEmpty(t, p.Strings[k], "%s missing %s", l, k)
		}
		for n := 1; n <= 5; n++ {
			assert.NotEmpty(t, p.RatingLabels[n], "%s rating label %d", l, n)
		}
		assert.Len(t, p.Options(), 2)
		assert.NotEmpty(t, p.RegistrationLinks)
	}
}

func TestSuggestionKeysMatchAcrossLocales(t *testing.T) {
	c := MustDefault()
	keys := func(p *Pack) []string {
		var out []string
		for _, s := range p.Suggestions {
			out = append(out, s.Key)
		}
		return out
	}
	en := keys(c.Pack(English))
	for _, l := range Locales[1:] {
		assert.Equal(t, en, keys(c.Pack(l)), l)
	}
}

func TestParseLocale(t *testing.T) {
	l, err := ParseLocale(" HI ")
	require.NoError(t, err)
	assert.Equal(t, Hindi, l)

	_, err = ParseLocale("fr")
	assert.ErrorIs(t, err, ErrUnknownLocale)
}

func TestPackTextReplacesPlaceholders(t *testing.T) {
	p := MustDefault().Pack(English)
	assert.Equal(t, "Retrying... (1/2)", p.Text(Retrying, "attempt", "1", "max", "2"))
	assert.Equal(t, p.Strings[Welcome], p.Text(Welcome))
}

func TestCatalogFallsBackToEnglish(t *testing.T) {
	c := MustDefault()
	assert.Equal(t, English, c.Pack("fr").Locale)
	assert.False(t, c.Has("fr"))
}

func TestLoadRejectsMissingKey(t *testing.T) {
	fsys := embeddedCopy(t)
	hi := string(fsys["hi.yaml"].Data)
	var kept []string
	for _, line := range strings.Split(hi, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), string(RatingFailed)+":") {
			continue
		}
		kept = append(kept, line)
	}
	fsys["hi.yaml"] = &fstest.MapFile{Data: []byte(strings.Join(kept, "\n"))}

	_, err := Load(fsys)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Contains(t, err.Error(), string(RatingFailed))
}

func TestLoadRejectsMissingLocale(t *testing.T) {
	fsys := embeddedCopy(t)
	delete(fsys, "mr.yaml")

	_, err := Load(fsys)
	assert.ErrorIs(t, err, ErrInvalidPack)
}

func embeddedCopy(t *testing.T) fstest.MapFS {
	t.Helper()
	sub, err := fs.Sub(embedded, "locales")
	require.NoError(t, err)
	out := fstest.MapFS{}
	for _, l := range Locales {
		data, err := fs.ReadFile(sub, string(l)+".yaml")
		require.NoError(t, err)
		out[string(l)+".yaml"] = &fstest.MapFile{Data: data}
	}
	return out
}
