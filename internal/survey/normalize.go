package survey

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks applies compatibility decomposition and drops the combining
// marks, so "você" becomes "voce", "ﬁ" becomes "fi" and "Ⅻ" becomes "XII".
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Letters with no canonical decomposition.
var asciiFallback = map[rune]string{
	'ß': "ss", 'ẞ': "SS",
	'æ': "ae", 'Æ': "AE",
	'œ': "oe", 'Œ': "OE",
	'ø': "o", 'Ø': "O",
	'đ': "d", 'Đ': "D",
	'ð': "d", 'Ð': "D",
	'ł': "l", 'Ł': "L",
	'þ': "th", 'Þ': "TH",
	'ı': "i",
	'‘': "'", '’': "'", '‚': "'",
	'“': `"`, '”': `"`, '„': `"`,
	'–': "-", '—': "-", '‐': "-", '‑': "-",
	'…': "...",
}

var separators = strings.NewReplacer(
	" ", "_",
	"?", "_",
	".", "_",
	"(", "_",
	")", "_",
	"-", "_",
	"/", "_",
	",", "_",
)

// ASCIIFold transliterates s to its closest ASCII spelling. Any whitespace
// rune becomes a plain space; runes with no known transliteration are dropped.
func ASCIIFold(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r < unicode.MaxASCII:
			b.WriteRune(r)
		default:
			if rep, ok := asciiFallback[r]; ok {
				b.WriteString(rep)
			}
		}
	}
	return b.String()
}

// CanonicalName maps a raw column header (or option text) to a storage-safe
// identifier: ASCII-folded, trimmed, lower-cased, with each space, '?', '.',
// '(', ')', '-', '/' and ',' replaced by one underscore.
//
// CanonicalName is total and deterministic, and CanonicalName(CanonicalName(s))
// == CanonicalName(s).
func CanonicalName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(ASCIIFold(raw)))
	return separators.Replace(s)
}

// CanonicalHeaders canonicalizes every header and fails with a
// *CollisionError when two headers share a canonical name. Repeated
// identical raw headers collide too.
func CanonicalHeaders(headers []string) ([]string, error) {
	out := make([]string, len(headers))
	seen := newCollisions()
	for i, h := range headers {
		out[i] = CanonicalName(h)
		seen.addEach(out[i], h)
	}
	if c := seen.conflicts(); c != nil {
		return nil, &CollisionError{Scope: "header", Collisions: c}
	}
	return out, nil
}
