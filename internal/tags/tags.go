// Package tags checks that inline {\...} override tags survive translation.
package tags

import (
	"fmt"
	"strings"

	"github.com/oukeidos/subflow/internal/codec"
	"github.com/rivo/uniseg"
)

// sampleTextLimit caps each text shown in a mismatch sample, in grapheme clusters.
const sampleTextLimit = 120

// Extract returns every {\...} block in order of appearance. An unterminated
// block ends extraction.
func Extract(s string) []string {
	var out []string
	rest := s
	for {
		start := strings.Index(rest, `{\`)
		if start < 0 {
			return out
		}
		after := rest[start+1:]
		end := strings.IndexByte(after, '}')
		if end < 0 {
			return out
		}
		out = append(out, "{"+after[:end]+"}")
		rest = after[end+1:]
	}
}

// directives lists the override names that take a parameter glued to the
// name, longest first within each shared prefix.
var directives = []string{
	"xbord", "ybord", "xshad", "yshad", "iclip", "alpha",
	"bord", "shad", "blur", "fscx", "fscy", "fade", "clip", "move",
	"pos", "org", "fsp", "frx", "fry", "frz", "fax", "fay", "pbo",
	"fs", "fn", "fr", "fe", "an", "be", "kf", "ko",
	"1c", "2c", "3c", "4c", "1a", "2a", "3a", "4a",
	"a", "b", "c", "i", "k", "p", "q", "r", "s", "t", "u",
}

// Normalize reduces a tag to its lower-cased directive names, as in
// {\pos\fs}. Every parameter is dropped, including colour and alpha literals
// and the arguments in parentheses; names nested in \t(...) are kept.
func Normalize(tag string) string {
	lower := strings.ToLower(tag)
	var b strings.Builder
	b.WriteByte('{')
	for {
		slash := strings.IndexByte(lower, '\\')
		if slash < 0 {
			break
		}
		lower = lower[slash+1:]
		name := directiveName(lower)
		b.WriteByte('\\')
		b.WriteString(name)
		lower = lower[len(name):]
	}
	b.WriteByte('}')
	return b.String()
}

func directiveName(s string) string {
	for _, d := range directives {
		if strings.HasPrefix(s, d) {
			return d
		}
	}
	n := 0
	for n < len(s) && isLetter(s[n]) {
		n++
	}
	return s[:n]
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' }

// Compatible reports whether both strings carry the same multiset of
// normalized tags. Order is ignored.
func Compatible(original, translated string) bool {
	orig := Extract(original)
	trans := Extract(translated)
	if len(orig) == 0 && len(trans) == 0 {
		return true
	}
	if len(orig) == 0 || len(trans) == 0 {
		return false
	}
	counts := make(map[string]int, len(orig))
	for _, tag := range orig {
		counts[Normalize(tag)]++
	}
	for _, tag := range trans {
		key := Normalize(tag)
		if counts[key] == 0 {
			return false
		}
		counts[key]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

// Mismatch records a translated entry whose tags do not match the original.
type Mismatch struct {
	Index      int
	Original   string
	Translated string
}

// Check splits decoded entries into those whose tags match the original
// text and those that do not. Entries without a known original are checked
// against the empty string.
func Check(originals map[int]string, entries []codec.Entry) ([]codec.Entry, []Mismatch) {
	kept := make([]codec.Entry, 0, len(entries))
	var bad []Mismatch
	for _, e := range entries {
		orig := originals[e.Index]
		if Compatible(orig, e.Text) {
			kept = append(kept, e)
			continue
		}
		bad = append(bad, Mismatch{Index: e.Index, Original: orig, Translated: e.Text})
	}
	return kept, bad
}

// FormatSample renders up to n mismatches for an error message.
func FormatSample(mismatches []Mismatch, n int) string {
	if n > len(mismatches) {
		n = len(mismatches)
	}
	parts := make([]string, 0, n)
	for _, m := range mismatches[:n] {
		parts = append(parts, fmt.Sprintf("#%d\nORIGINAL: %s\nTRANSLATED: %s",
			m.Index, truncate(m.Original, sampleTextLimit), truncate(m.Translated, sampleTextLimit)))
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, limit int) string {
	if uniseg.GraphemeClusterCount(s) <= limit {
		return s
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(s)
	for i := 0; i < limit && g.Next(); i++ {
		b.WriteString(g.Str())
	}
	return b.String() + "…"
}
