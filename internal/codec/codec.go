// Package codec implements the line-oriented INDEX|TEXT protocol used to carry
// a batch of subtitle entries through a single free-form LLM message.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oukeidos/subflow/internal/apperrors"
)

// Entry is one subtitle fragment. Index is the only correlation key between
// request and response.
type Entry struct {
	Index int
	Text  string
}

// NewlinePlaceholder stands in for line breaks inside a single entry.
const NewlinePlaceholder = "<<NEWLINE>>"

const fence = "```"

// ErrEmptyResponse is returned when a response contains no INDEX|TEXT line.
var ErrEmptyResponse = errors.New("failed to parse translation response")

var (
	encodeReplacer = strings.NewReplacer(
		`\N`, NewlinePlaceholder,
		`\n`, NewlinePlaceholder,
		"\n", NewlinePlaceholder,
	)
	decodeReplacer = strings.NewReplacer(
		NewlinePlaceholder, "\n",
		`\N`, "\n",
		`\n`, "\n",
	)
)

// EncodeText replaces literal newlines and \N / \n escapes with the placeholder.
func EncodeText(s string) string {
	return encodeReplacer.Replace(s)
}

// DecodeText converts the placeholder and any escapes the model emitted back
// into real newlines.
func DecodeText(s string) string {
	return decodeReplacer.Replace(s)
}

// Encode renders entries as one INDEX|TEXT line each.
func Encode(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(e.Index))
		b.WriteByte('|')
		b.WriteString(EncodeText(e.Text))
	}
	return b.String()
}

// Instruction appends the fixed format rules to the caller's translation prompt.
func Instruction(systemPrompt string) string {
	return fmt.Sprintf(`%s

---
CRITICAL FORMAT INSTRUCTIONS:
1. Return translations in EXACTLY this format: INDEX|TRANSLATED_TEXT
2. Each subtitle must be on its own line: number|translated text
3. The marker %[2]s represents a LINE BREAK within a subtitle. You MUST preserve it exactly as-is in your translation.
   Example input:  5|It's a special event%[2]sthat everyone attends
   Example output: 5|Es un evento especial%[2]sal que todos asisten
4. Do NOT remove, split, or modify %[2]s markers - they indicate where line breaks occur in the subtitle display.
5. Keep every {\...} styling tag exactly where it belongs; do not translate or drop them.`,
		systemPrompt, NewlinePlaceholder)
}

// ParseLine parses a single "digits|rest" line. Surrounding whitespace on the
// index is tolerated; the text is returned still encoded.
func ParseLine(line string) (Entry, bool) {
	sep := strings.IndexByte(line, '|')
	if sep <= 0 {
		return Entry{}, false
	}
	idxStr := strings.TrimSpace(line[:sep])
	if idxStr == "" {
		return Entry{}, false
	}
	for _, r := range idxStr {
		if r < '0' || r > '9' {
			return Entry{}, false
		}
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Index: idx, Text: line[sep+1:]}, true
}

// StripThink removes paired <think>...</think> blocks. An unterminated opener
// stops stripping and the remainder is left untouched.
func StripThink(s string) string {
	for {
		start := strings.Index(s, thinkOpen)
		if start < 0 {
			return s
		}
		end := strings.Index(s[start+len(thinkOpen):], thinkClose)
		if end < 0 {
			return s
		}
		end += start + len(thinkOpen) + len(thinkClose)
		s = s[:start] + s[end:]
	}
}

// Decode parses a complete model response into entries. Lines that do not
// open a new INDEX| record are appended to the currently open one.
func Decode(response string) ([]Entry, error) {
	var d decoder
	for _, raw := range strings.Split(StripThink(response), "\n") {
		d.line(strings.TrimRight(raw, " \t\r"))
	}
	d.flush()
	if len(d.out) == 0 {
		return nil, apperrors.Decode(ErrEmptyResponse)
	}
	return d.out, nil
}

// decoder is the open-index + accumulating-text state machine.
type decoder struct {
	open bool
	cur  Entry
	text strings.Builder
	out  []Entry
}

func (d *decoder) line(line string) {
	if line == "" || strings.HasPrefix(strings.TrimSpace(line), fence) {
		return
	}
	if e, ok := ParseLine(line); ok {
		d.flush()
		d.open = true
		d.cur = e
		d.text.WriteString(e.Text)
		return
	}
	if !d.open {
		return
	}
	if d.text.Len() > 0 {
		d.text.WriteByte('\n')
	}
	d.text.WriteString(line)
}

func (d *decoder) flush() {
	if !d.open {
		return
	}
	d.out = append(d.out, Entry{Index: d.cur.Index, Text: DecodeText(d.text.String())})
	d.open = false
	d.text.Reset()
}
