package codec

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// LineDecoder turns incrementally delivered response text into entries, one
// per completed INDEX|TEXT line. Lines inside a <think> region are held back
// until the region closes; if it never does, Flush parses them as ordinary
// lines. It is not safe for concurrent use.
type LineDecoder struct {
	buf strings.Builder

	thinking bool
	// prefix is the text before the open <think> on its line.
	prefix string
	// held are the lines seen since <think> opened, the first one starting
	// at the opener.
	held []string
}

// Write consumes a text fragment and returns the entries completed by it.
func (d *LineDecoder) Write(fragment string) []Entry {
	var out []Entry
	for {
		nl := strings.IndexByte(fragment, '\n')
		if nl < 0 {
			d.buf.WriteString(fragment)
			return out
		}
		d.buf.WriteString(fragment[:nl])
		fragment = fragment[nl+1:]
		line := d.buf.String()
		d.buf.Reset()
		if e, ok := d.line(line); ok {
			out = append(out, e)
		}
	}
}

// Flush parses whatever partial line remains at end of stream, then any lines
// held by an unterminated <think>.
func (d *LineDecoder) Flush() []Entry {
	var out []Entry
	line := d.buf.String()
	d.buf.Reset()
	if e, ok := d.line(line); ok {
		out = append(out, e)
	}
	if d.thinking {
		for _, held := range d.held {
			if e, ok := parse(held); ok {
				out = append(out, e)
			}
		}
		d.thinking = false
		d.prefix = ""
		d.held = nil
	}
	return out
}

func (d *LineDecoder) line(raw string) (Entry, bool) {
	line, ok := d.skipThink(raw)
	if !ok {
		return Entry{}, false
	}
	return parse(line)
}

// skipThink removes closed <think> regions from a line. It returns false when
// the line ends inside an open region and was held instead.
func (d *LineDecoder) skipThink(line string) (string, bool) {
	if d.thinking {
		end := strings.Index(line, thinkClose)
		if end < 0 {
			d.held = append(d.held, line)
			return "", false
		}
		line = d.prefix + line[end+len(thinkClose):]
		d.thinking = false
		d.prefix = ""
		d.held = nil
	}
	for {
		start := strings.Index(line, thinkOpen)
		if start < 0 {
			return line, true
		}
		rest := line[start+len(thinkOpen):]
		if end := strings.Index(rest, thinkClose); end >= 0 {
			line = line[:start] + rest[end+len(thinkClose):]
			continue
		}
		d.thinking = true
		d.prefix = line[:start]
		d.held = append(d.held, line)
		return "", false
	}
}

func parse(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, fence) {
		return Entry{}, false
	}
	e, ok := ParseLine(line)
	if !ok {
		return Entry{}, false
	}
	e.Text = DecodeText(e.Text)
	return e, true
}
