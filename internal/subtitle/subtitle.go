// Package subtitle loads subtitle files into indexed entries and writes
// translations back, keeping timing and styling.
package subtitle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/asticode/go-astisub"
	"github.com/oukeidos/subflow/internal/codec"
	"github.com/oukeidos/subflow/internal/files"
)

var (
	ErrNoItems = errors.New("no subtitles found in file")
	ErrNoText  = errors.New("file contains subtitles but no dialogue text")
)

// Document is a parsed subtitle file. Entry indices are 1-based positions.
type Document struct {
	subs *astisub.Subtitles
}

// Load reads a subtitle file; the format is detected from the extension.
func Load(path string) (*Document, error) {
	subs, err := astisub.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load subtitles: %w", err)
	}
	return &Document{subs: subs}, nil
}

// ReadSRT parses SRT content.
func ReadSRT(r io.Reader) (*Document, error) {
	subs, err := astisub.ReadFromSRT(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SRT: %w", err)
	}
	return &Document{subs: subs}, nil
}

// Len returns the number of cues.
func (d *Document) Len() int { return len(d.subs.Items) }

// Validate checks that the document has timed cues with some text.
func (d *Document) Validate() error {
	if len(d.subs.Items) == 0 {
		return ErrNoItems
	}
	hasText := false
	for i, item := range d.subs.Items {
		if item.EndAt < item.StartAt {
			return fmt.Errorf("end time is before start time at cue %d", i+1)
		}
		if strings.TrimSpace(itemText(item)) != "" {
			hasText = true
		}
	}
	if !hasText {
		return ErrNoText
	}
	return nil
}

// Entries returns one entry per cue. Multi-line cues are joined with "\n";
// SSA override blocks stay in the text.
func (d *Document) Entries() []codec.Entry {
	entries := make([]codec.Entry, 0, len(d.subs.Items))
	for i, item := range d.subs.Items {
		entries = append(entries, codec.Entry{Index: i + 1, Text: itemText(item)})
	}
	return entries
}

// Apply replaces the text of the cues named by the translations' indices and
// returns how many were applied. Indices outside the document are skipped.
func (d *Document) Apply(translations []codec.Entry) int {
	applied := 0
	for _, e := range translations {
		if e.Index < 1 || e.Index > len(d.subs.Items) {
			continue
		}
		item := d.subs.Items[e.Index-1]
		item.Lines = textLines(e.Text)
		applied++
	}
	return applied
}

// Save writes the document, choosing the format by the extension of path.
// Unknown extensions are written as SRT.
func (d *Document) Save(path string) error {
	var buf bytes.Buffer
	if err := d.Write(&buf, filepath.Ext(path)); err != nil {
		return err
	}
	return files.AtomicWrite(path, buf.Bytes(), 0o600)
}

// Write encodes the document in the format named by ext (".srt", ".vtt",
// ".ass", ".ssa", ".ttml" or ".stl").
func (d *Document) Write(w io.Writer, ext string) error {
	var err error
	switch strings.ToLower(ext) {
	case ".vtt":
		err = d.subs.WriteToWebVTT(w)
	case ".ssa", ".ass":
		err = d.writeSSA(w)
	case ".ttml":
		err = d.subs.WriteToTTML(w)
	case ".stl":
		err = d.subs.WriteToSTL(w)
	default:
		err = d.subs.WriteToSRT(w)
	}
	if err != nil {
		return fmt.Errorf("failed to encode subtitles: %w", err)
	}
	return nil
}

// Checksum returns a stable sha256 of the entry list. Session logs use it to
// detect that the input changed between runs.
func Checksum(entries []codec.Entry) string {
	h := sha256.New()
	io.WriteString(h, "entries_v1\n")
	io.WriteString(h, strconv.Itoa(len(entries)))
	io.WriteString(h, "\n")
	for _, e := range entries {
		io.WriteString(h, strconv.Itoa(e.Index))
		io.WriteString(h, ":")
		io.WriteString(h, strconv.Itoa(len(e.Text)))
		io.WriteString(h, ":")
		io.WriteString(h, e.Text)
		io.WriteString(h, "\n")
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// OutputPath derives "<base>_<lang><ext>" next to the input, avoiding
// existing files.
func OutputPath(inputPath, lang string) (string, error) {
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(inputPath, ext)
	path, _, err := files.SafePath(fmt.Sprintf("%s_%s%s", base, lang, ext))
	return path, err
}

func itemText(item *astisub.Item) string {
	lines := make([]string, 0, len(item.Lines))
	for _, l := range item.Lines {
		var b strings.Builder
		for _, li := range l.Items {
			if li.InlineStyle != nil && li.InlineStyle.SSAEffect != "" {
				b.WriteString(li.InlineStyle.SSAEffect)
			}
			b.WriteString(li.Text)
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func textLines(text string) []astisub.Line {
	parts := strings.Split(text, "\n")
	lines := make([]astisub.Line, 0, len(parts))
	for _, p := range parts {
		lines = append(lines, astisub.Line{Items: []astisub.LineItem{{Text: p}}})
	}
	return lines
}
