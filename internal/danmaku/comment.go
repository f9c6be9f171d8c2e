package danmaku

import (
	"strconv"
	"strings"
)

const (
	// DefaultAttribute is used for comments that carry no packed attribute.
	DefaultAttribute = "0,1,25,16777215"
	// DefaultSize is inserted when a packed attribute is missing the font size.
	DefaultSize = 25

	// TagImportedXML marks comments read from an uploaded XML document.
	TagImportedXML = "[custom_xml]"
	// TagImportedText marks comments converted from the line-oriented text format.
	TagImportedText = "[custom_text]"
)

// Comment is one timed entry of a track.
type Comment struct {
	Time  float64  `json:"time"`
	Mode  int      `json:"mode"`
	Size  int      `json:"size"`
	Color int      `json:"color"`
	Extra []string `json:"extra,omitempty"`
	Text  string   `json:"text"`
	// Raw holds the packed attribute verbatim when it could not be split
	// into the four core fields. It takes precedence during generation.
	Raw string `json:"raw,omitempty"`
}

// FromPacked builds a comment from a provider's packed "p" attribute. Fields
// are parsed best-effort; the attribute itself is preserved in Raw.
func FromPacked(p, text string) Comment {
	c := Comment{Text: text, Raw: p}
	parts := strings.Split(p, ",")
	core := coreFieldCount(parts)
	switch {
	case core >= 4:
		if parsed, ok := parseCore(parts[:4]); ok {
			parsed.Text = text
			parsed.Extra = append([]string(nil), parts[4:]...)
			parsed.Raw = p
			return parsed
		}
	case core == 3:
		t, errT := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		mode, errM := strconv.Atoi(strings.TrimSpace(parts[1]))
		color, errC := strconv.Atoi(strings.TrimSpace(parts[2]))
		if errT == nil && errM == nil && errC == nil {
			c.Time, c.Mode, c.Size, c.Color = t, mode, DefaultSize, color
		}
	}
	return c
}

// Attribute renders the packed "p" attribute, applying the default-size repair.
func (c Comment) Attribute() string {
	p := c.Raw
	if p == "" {
		if c.Mode == 0 && c.Size == 0 && c.Color == 0 && c.Time == 0 && len(c.Extra) == 0 {
			return DefaultAttribute
		}
		fields := []string{
			strconv.FormatFloat(c.Time, 'f', -1, 64),
			strconv.Itoa(c.Mode),
			strconv.Itoa(c.Size),
			strconv.Itoa(c.Color),
		}
		fields = append(fields, c.Extra...)
		return strings.Join(fields, ",")
	}
	parts := strings.Split(p, ",")
	if coreFieldCount(parts) == 3 {
		repaired := make([]string, 0, len(parts)+1)
		repaired = append(repaired, parts[:2]...)
		repaired = append(repaired, strconv.Itoa(DefaultSize))
		repaired = append(repaired, parts[2:]...)
		return strings.Join(repaired, ",")
	}
	return p
}

// coreFieldCount returns how many leading fields precede the first bracketed tag.
func coreFieldCount(parts []string) int {
	for i, part := range parts {
		if strings.Contains(part, "[") && strings.Contains(part, "]") {
			return i
		}
	}
	return len(parts)
}

func parseCore(parts []string) (Comment, bool) {
	t, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Comment{}, false
	}
	mode, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Comment{}, false
	}
	size, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Comment{}, false
	}
	color, err := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err != nil {
		return Comment{}, false
	}
	return Comment{Time: t, Mode: mode, Size: size, Color: color}, true
}
