package danmaku

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	sourceGenerated = "kuyun"
	sourceConverted = "misaka"
)

// ParseXML streams an interchange document. Entries with at least four packed
// fields are normalized to "t,mode,size,color,[custom_xml]"; shorter or
// unparsable attributes are kept verbatim in Raw. On a syntax error the
// comments decoded so far are returned together with the error.
func ParseXML(r io.Reader) ([]Comment, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var comments []Comment
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return comments, nil
		}
		if err != nil {
			return comments, fmt.Errorf("parse danmaku xml: %w", err)
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "d" {
			continue
		}
		p, hasP := attr(start, "p")
		var text string
		if err := decoder.DecodeElement(&text, &start); err != nil {
			return comments, fmt.Errorf("parse danmaku entry: %w", err)
		}
		if !hasP || strings.TrimSpace(text) == "" {
			continue
		}
		comments = append(comments, fromDocument(p, text))
	}
}

// ParseXMLString is a convenience wrapper around ParseXML.
func ParseXMLString(doc string) ([]Comment, error) {
	return ParseXML(strings.NewReader(doc))
}

func fromDocument(p, text string) Comment {
	parts := strings.Split(p, ",")
	if len(parts) < 4 {
		return FromPacked(p, text)
	}
	normalized := strings.Join(parts[:4], ",") + "," + TagImportedXML
	c, ok := parseCore(parts[:4])
	if !ok {
		return Comment{Raw: normalized, Text: text}
	}
	c.Extra = []string{TagImportedXML}
	c.Text = text
	return c
}

func attr(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// GenerateXML writes the comments as an interchange document.
func GenerateXML(w io.Writer, comments []Comment) error {
	_, err := w.Write(Document(comments))
	return err
}

// Document renders the comments as an interchange document.
func Document(comments []Comment) []byte {
	entries := make([]entry, 0, len(comments))
	for _, c := range comments {
		entries = append(entries, entry{p: c.Attribute(), text: c.Text})
	}
	return render(sourceGenerated, entries)
}

type entry struct {
	p    string
	text string
}

func render(source string, entries []entry) []byte {
	var buf bytes.Buffer
	buf.Grow(256 + len(entries)*64)
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString("<i>\n")
	buf.WriteString("  <chatserver>danmu</chatserver>\n")
	buf.WriteString("  <chatid>0</chatid>\n")
	buf.WriteString("  <mission>0</mission>\n")
	buf.WriteString("  <maxlimit>" + strconv.Itoa(len(entries)) + "</maxlimit>\n")
	buf.WriteString("  <source>" + source + "</source>\n")
	for _, e := range entries {
		buf.WriteString(`  <d p="`)
		escape(&buf, e.p)
		buf.WriteString(`">`)
		escape(&buf, CleanText(e.text))
		buf.WriteString("</d>\n")
	}
	buf.WriteString("</i>")
	return buf.Bytes()
}

func escape(buf *bytes.Buffer, s string) {
	_ = xml.EscapeText(buf, []byte(s))
}
