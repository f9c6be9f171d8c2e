// Package danmaku reads and writes comment tracks in the XML interchange
// format served to players.
//
// ParseXML streams a document and keeps every <d> entry, falling back to the
// raw packed attribute when it cannot be split into core fields. Document and
// GenerateXML emit the canonical header and repair three-field attributes by
// inserting the default font size. ConvertText turns the line-oriented
// "params | text" export into the same format, and FormatRanges renders
// episode index sets for job summaries.
package danmaku
