package danmaku

import (
	"strings"
	"unicode/utf8"
)

// ConvertText turns "time,mode,size,color,... | text" lines into an
// interchange document. Lines without a pipe or with fewer than four
// parameters are skipped.
func ConvertText(content string) []byte {
	var entries []entry
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		params, text, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		fields := strings.Split(params, ",")
		if len(fields) < 4 {
			continue
		}
		for i := range fields[:4] {
			fields[i] = strings.TrimSpace(fields[i])
		}
		p := strings.Join(fields[:4], ",") + "," + TagImportedText
		entries = append(entries, entry{p: p, text: strings.TrimSpace(text)})
	}
	return render(sourceConverted, entries)
}

// LooksLikeXML reports whether content should be parsed as XML rather than
// converted from the text format.
func LooksLikeXML(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "<")
}

// CleanText removes characters that are not allowed in XML 1.0 documents.
func CleanText(s string) string {
	clean := true
	for _, r := range s {
		if !validXMLRune(r) {
			clean = false
			break
		}
	}
	if clean && utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == utf8.RuneError || !validXMLRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func validXMLRune(r rune) bool {
	switch {
	case r == 0x09 || r == 0x0A || r == 0x0D:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	default:
		return false
	}
}
