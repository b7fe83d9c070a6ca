package subtitle

import (
	"bytes"
	"io"
	"strings"

	"github.com/asticode/go-astisub"
)

func (d *Document) writeSSA(w io.Writer) error {
	injected := false
	if d.subs.Metadata == nil {
		d.subs.Metadata = &astisub.Metadata{SSAScriptType: "v4.00+"}
	}
	if len(d.subs.Styles) == 0 {
		d.subs.Styles = map[string]*astisub.Style{"Default": defaultASSStyle()}
		injected = true
	}
	items := d.subs.Items
	d.subs.Items = hardBreakItems(items)
	defer func() { d.subs.Items = items }()

	var buf bytes.Buffer
	if err := d.subs.WriteToSSA(&buf); err != nil {
		return err
	}
	content := buf.Bytes()
	if injected {
		content = standardStylesSection(content)
	}
	_, err := w.Write(content)
	return err
}

// hardBreakItems returns items with every multi-line cue folded into a single
// line joined by \N, the in-cue break players expect. Items inside a line are
// joined with a space as the encoder does. Cues are copied, not modified.
func hardBreakItems(items []*astisub.Item) []*astisub.Item {
	out := make([]*astisub.Item, len(items))
	for i, item := range items {
		if len(item.Lines) < 2 {
			out[i] = item
			continue
		}
		lines := make([]string, 0, len(item.Lines))
		for _, l := range item.Lines {
			parts := make([]string, 0, len(l.Items))
			for _, li := range l.Items {
				text := li.Text
				if li.InlineStyle != nil && li.InlineStyle.SSAEffect != "" {
					text = li.InlineStyle.SSAEffect + text
				}
				parts = append(parts, text)
			}
			lines = append(lines, strings.Join(parts, " "))
		}
		clone := *item
		clone.Lines = []astisub.Line{{
			VoiceName: item.Lines[0].VoiceName,
			Items:     []astisub.LineItem{{Text: strings.Join(lines, `\N`)}},
		}}
		out[i] = &clone
	}
	return out
}

// standardStylesSection swaps the generated style block for the standard
// 23-field V4+ layout.
func standardStylesSection(content []byte) []byte {
	const standard = "[V4+ Styles]\n" +
		"Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n" +
		"Style: Default,Arial,20,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,1,2,10,10,10,1\n\n"

	endIdx := bytes.Index(content, []byte("\n[Events]"))
	startIdx := bytes.Index(content, []byte("[V4+ Styles]"))
	if startIdx == -1 {
		startIdx = bytes.Index(content, []byte("[V4 Styles]"))
	}
	if startIdx == -1 || endIdx == -1 || startIdx >= endIdx {
		return content
	}
	var out bytes.Buffer
	out.Write(content[:startIdx])
	out.WriteString(standard)
	out.Write(content[endIdx+1:])
	return out.Bytes()
}

func ptr[T any](v T) *T { return &v }

func defaultASSStyle() *astisub.Style {
	return &astisub.Style{
		ID: "Default",
		InlineStyle: &astisub.StyleAttributes{
			SSAFontName:        "Arial",
			SSAFontSize:        ptr(20.0),
			SSAPrimaryColour:   &astisub.Color{Red: 255, Green: 255, Blue: 255},
			SSASecondaryColour: &astisub.Color{Red: 255},
			SSAOutlineColour:   &astisub.Color{},
			SSABackColour:      &astisub.Color{},
			SSABold:            ptr(false),
			SSAItalic:          ptr(false),
			SSAUnderline:       ptr(false),
			SSAStrikeout:       ptr(false),
			SSAScaleX:          ptr(100.0),
			SSAScaleY:          ptr(100.0),
			SSASpacing:         ptr(0.0),
			SSAAngle:           ptr(0.0),
			SSABorderStyle:     ptr(1),
			SSAOutline:         ptr(2.0),
			SSAShadow:          ptr(1.0),
			SSAAlignment:       ptr(2),
			SSAMarginLeft:      ptr(10),
			SSAMarginRight:     ptr(10),
			SSAMarginVertical:  ptr(10),
			SSAEncoding:        ptr(1),
		},
	}
}
