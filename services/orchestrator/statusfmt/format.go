// Package statusfmt turns the semi-structured status text returned by the
// grievance backend into an ordered list of label/value fields.
package statusfmt

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Field is one line of a formatted status.
type Field struct {
	Label       string `json:"label,omitempty"`
	Value       string `json:"value"`
	Highlighted bool   `json:"highlighted,omitempty"`
}

// minDescriptiveLen is the length an unlabeled line needs to be kept.
const minDescriptiveLen = 10

var englishLabels = []string{
	"Grievance ID", "Grievance Number", "Grievance Status", "Current Status", "Status",
	"Logged Date", "Registered Date", "Registration Date", "Date",
	"Organization", "Department", "Grievance Name", "Grievance Type", "Category",
	"Sub Grievance Name", "Sub Grievance Type", "Sub Grievance", "Sub Type",
	"District", "Block", "Taluka", "Gram Panchayat", "Village",
	"Resolved Date", "Resolved By", "Closed Date", "Verified By", "Remarks", "Message",
}

var regionalLabels = []string{
	// Hindi
	"शिकायत आईडी", "शिकायत संख्या", "शिकायत की स्थिति", "स्थिति", "दर्ज करने की तिथि", "तिथि",
	"विभाग", "संगठन", "शिकायत का प्रकार", "उप प्रकार", "जिला", "ब्लॉक", "ग्राम पंचायत", "गांव",
	"निवारण तिथि", "निवारणकर्ता", "बंद करने की तिथि", "सत्यापनकर्ता", "टिप्पणी",
	// Marathi
	"तक्रार क्रमांक", "तक्रारीची स्थिती", "सद्यस्थिती", "स्थिती", "नोंदणी दिनांक", "दिनांक",
	"कार्यालय", "तक्रारीचा प्रकार", "उप प्रकार", "जिल्हा", "तालुका", "ग्रामपंचायत", "गाव",
	"निवारण दिनांक", "निवारण करणारे", "बंद दिनांक", "पडताळणी करणारे", "शेरा",
}

var statusLabels = map[string]bool{
	"status":            true,
	"grievance status":  true,
	"current status":    true,
	"स्थिति":            true,
	"शिकायत की स्थिति":  true,
	"स्थिती":            true,
	"तक्रारीची स्थिती":  true,
	"सद्यस्थिती":        true,
}

var (
	englishLabelPattern  = labelPattern(englishLabels)
	regionalLabelPattern = labelPattern(append(append([]string{}, regionalLabels...), englishLabels...))
	emphasis             = strings.NewReplacer("**", "", "__", "")
)

// labelPattern matches any label followed by a colon. Longer labels are tried
// first so "Grievance Status" wins over "Status" at the same position.
func labelPattern(labels []string) *regexp.Regexp {
	sorted := append([]string{}, labels...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i]) > utf8.RuneCountInString(sorted[j])
	})
	quoted := make([]string, len(sorted))
	for i, l := range sorted {
		quoted[i] = regexp.QuoteMeta(l)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)\s*[:：]`)
}

// Format parses text into fields in their original order. It never fails:
// chunks it cannot make sense of are dropped.
func Format(text string) []Field {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = emphasis.Replace(text)

	pattern := englishLabelPattern
	if hasNonLatin(text) {
		pattern = regionalLabelPattern
	}

	var fields []Field
	for _, chunk := range strings.Split(breakBeforeLabels(text, pattern), "\n") {
		if f, ok := parseChunk(chunk); ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// breakBeforeLabels inserts a newline before a known label that follows an
// earlier field or a full sentence on the same line. A label must start a word, so "Application
// Status:" stays one label.
func breakBeforeLabels(text string, pattern *regexp.Regexp) string {
	locs := pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		start := loc[0]
		if start == 0 || !wordStart(text[:start]) {
			continue
		}
		begin := last
		if i := strings.LastIndexByte(text[:start], '\n'); i+1 > begin {
			begin = i + 1
		}
		if seg := text[begin:start]; !strings.ContainsAny(seg, ":：") && !sentenceEnd(seg) {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteByte('\n')
		last = start
	}
	b.WriteString(text[last:])
	return b.String()
}

func sentenceEnd(s string) bool {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "।")
}

func wordStart(prefix string) bool {
	r, _ := utf8.DecodeLastRuneInString(prefix)
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
}

func parseChunk(chunk string) (Field, bool) {
	chunk = strings.TrimFunc(chunk, isSeparator)
	if chunk == "" {
		return Field{}, false
	}
	i := strings.IndexAny(chunk, ":：")
	if i < 0 {
		if utf8.RuneCountInString(chunk) > minDescriptiveLen {
			return Field{Value: chunk}, true
		}
		return Field{}, false
	}
	_, size := utf8.DecodeRuneInString(chunk[i:])
	label := strings.TrimFunc(chunk[:i], isSeparator)
	value := strings.TrimFunc(chunk[i+size:], isSeparator)
	if label == "" || value == "" {
		return Field{}, false
	}
	return Field{
		Label:       label,
		Value:       value,
		Highlighted: statusLabels[strings.ToLower(label)],
	}, true
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == '-' || r == '•' || r == '*' || r == '|' || r == ','
}

func hasNonLatin(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}
