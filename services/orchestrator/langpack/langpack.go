// Package langpack holds the per-locale strings and tables the conversation
// engine renders. Packs are YAML documents embedded in the binary and are
// checked for key completeness when loaded, so a missing translation fails at
// startup (and in tests) instead of rendering an empty bubble.
package langpack

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var embedded embed.FS

var (
	ErrUnknownLocale = errors.New("unknown locale")
	ErrMissingKey    = errors.New("missing language pack key")
	ErrInvalidPack   = errors.New("invalid language pack")
)

// Locale identifies a supported widget language.
type Locale string

const (
	English Locale = "en"
	Hindi   Locale = "hi"
	Marathi Locale = "mr"
)

// Locales lists the supported locales in display order.
var Locales = []Locale{English, Hindi, Marathi}

// ParseLocale maps a client supplied language code to a Locale.
func ParseLocale(s string) (Locale, error) {
	l := Locale(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Locales {
		if l == known {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLocale, s)
}

// Suggestion is a quick-reply phrase offered instead of free text.
type Suggestion struct {
	Key  string `yaml:"key" json:"key"`
	Text string `yaml:"text" json:"text"`
}

// Link is an external destination shown to the citizen.
type Link struct {
	Label string `yaml:"label" json:"label"`
	URL   string `yaml:"url" json:"url"`
}

// Pack is the immutable string table for one locale.
type Pack struct {
	Locale            Locale         `yaml:"locale"`
	Name              string         `yaml:"name"`
	Strings           map[Key]string `yaml:"strings"`
	Suggestions       []Suggestion   `yaml:"suggestions"`
	RatingLabels      map[int]string `yaml:"rating_labels"`
	Greetings         []string       `yaml:"greetings"`
	StatusTerms       []string       `yaml:"status_terms"`
	RegisterTerms     []string       `yaml:"register_terms"`
	FeedbackTerms     []string       `yaml:"feedback_terms"`
	YesWords          []string       `yaml:"yes_words"`
	NoWords           []string       `yaml:"no_words"`
	RegistrationLinks []Link         `yaml:"registration_links"`
}

// Text returns the string for key with {name} placeholders replaced from
// the name/value pairs in args.
func (p *Pack) Text(key Key, args ...string) string {
	s := p.Strings[key]
	if len(args) < 2 {
		return s
	}
	pairs := make([]string, 0, len(args))
	for i := 0; i+1 < len(args); i += 2 {
		pairs = append(pairs, "{"+args[i]+"}", args[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// Options returns the yes/no labels in option index order.
func (p *Pack) Options() []string {
	return []string{p.Strings[OptionYes], p.Strings[OptionNo]}
}

// Suggestion looks up a suggestion by key.
func (p *Pack) Suggestion(key string) (Suggestion, bool) {
	for _, s := range p.Suggestions {
		if s.Key == key {
			return s, true
		}
	}
	return Suggestion{}, false
}

// Catalog holds one Pack per supported locale.
type Catalog struct {
	packs map[Locale]*Pack
}

// Pack returns the pack for l, falling back to English for unknown locales.
func (c *Catalog) Pack(l Locale) *Pack {
	if p, ok := c.packs[l]; ok {
		return p
	}
	return c.packs[English]
}

// Has reports whether the catalog carries a pack for l.
func (c *Catalog) Has(l Locale) bool {
	_, ok := c.packs[l]
	return ok
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the catalog built from the embedded locale files.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embedded, "locales")
		if err != nil {
			defaultErr = err
			return
		}
		defaultCatalog, defaultErr = Load(sub)
	})
	return defaultCatalog, defaultErr
}

// MustDefault is Default for program initialization.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads every *.yaml file at the root of fsys and validates that each
// supported locale is present and complete.
func Load(fsys fs.FS) (*Catalog, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	c := &Catalog{packs: make(map[Locale]*Pack)}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		var p Pack
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		if p.Locale == "" {
			p.Locale = Locale(strings.TrimSuffix(path.Base(name), ".yaml"))
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		c.packs[p.Locale] = &p
	}

	for _, l := range Locales {
		if _, ok := c.packs[l]; !ok {
			return nil, fmt.Errorf("%w: no pack for %s", ErrInvalidPack, l)
		}
	}
	return c, nil
}

func (p *Pack) validate() error {
	if _, err := ParseLocale(string(p.Locale)); err != nil {
		return err
	}
	var missing []string
	for _, k := range RequiredKeys {
		if strings.TrimSpace(p.Strings[k]) == "" {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}
	for n := 1; n <= 5; n++ {
		if p.RatingLabels[n] == "" {
			return fmt.Errorf("%w: rating label %d", ErrMissingKey, n)
		}
	}
	if len(p.Suggestions) == 0 {
		return fmt.Errorf("%w: no suggestions", ErrInvalidPack)
	}
	if len(p.Greetings) == 0 || len(p.YesWords) == 0 || len(p.NoWords) == 0 {
		return fmt.Errorf("%w: greeting and yes/no word lists are required", ErrInvalidPack)
	}
	return nil
}
