// Package hl7v2 builds HL7 v2.5.1 ADT messages for admissions, transfers and
// discharges and delivers them to an interface engine over MLLP.
package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

// Message is a parsed HL7 v2 message. Only the header fields the sender
// needs are lifted out of MSH.
type Message struct {
	Type      string // MSH-9, e.g. "ADT^A01"
	ControlID string // MSH-10
	Version   string // MSH-12
	Timestamp time.Time
	Segments  []Segment
}

type Segment struct {
	Name   string
	Fields []Field
}

type Field struct {
	Value      string
	Components []string
}

// Parse splits raw into segments. Segments may be separated by \r, \n or
// \r\n; the first segment must be MSH.
func Parse(raw []byte) (*Message, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")

	var lines []string
	for _, line := range strings.Split(text, "\r") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("hl7v2: empty message")
	}
	if !strings.HasPrefix(lines[0], "MSH|") {
		return nil, fmt.Errorf("hl7v2: message must start with MSH")
	}

	msg := &Message{}
	for _, line := range lines {
		msg.Segments = append(msg.Segments, parseSegment(line))
	}

	msh := &msg.Segments[0]
	msg.Type = msh.GetField(9)
	msg.ControlID = msh.GetField(10)
	msg.Version = msh.GetField(12)
	if ts, err := parseTimestamp(msh.GetField(7)); err == nil {
		msg.Timestamp = ts
	}
	return msg, nil
}

// parseSegment stores fields so that Fields[i] is field i+1. For MSH the
// field separator itself counts as MSH-1.
func parseSegment(line string) Segment {
	name, rest, _ := strings.Cut(line, "|")
	seg := Segment{Name: name}
	if name == "MSH" {
		seg.Fields = append(seg.Fields, Field{Value: "|", Components: []string{"|"}})
	}
	for _, raw := range strings.Split(rest, "|") {
		first, _, _ := strings.Cut(raw, "~")
		seg.Fields = append(seg.Fields, Field{Value: raw, Components: strings.Split(first, "^")})
	}
	return seg
}

func parseTimestamp(s string) (time.Time, error) {
	switch {
	case len(s) >= 14:
		return time.Parse("20060102150405", s[:14])
	case len(s) >= 8:
		return time.Parse("20060102", s[:8])
	}
	return time.Time{}, fmt.Errorf("hl7v2: bad timestamp %q", s)
}

// Segment returns the first segment named name, or nil.
func (m *Message) Segment(name string) *Segment {
	for i := range m.Segments {
		if m.Segments[i].Name == name {
			return &m.Segments[i]
		}
	}
	return nil
}

// GetField returns field index (1-based) or "".
func (s *Segment) GetField(index int) string {
	if index < 1 || index > len(s.Fields) {
		return ""
	}
	return s.Fields[index-1].Value
}

// GetComponent returns component comp (1-based) of field index.
func (s *Segment) GetComponent(index, comp int) string {
	if index < 1 || index > len(s.Fields) {
		return ""
	}
	c := s.Fields[index-1].Components
	if comp < 1 || comp > len(c) {
		return ""
	}
	return c[comp-1]
}

// escape applies the HL7 escape sequences to free text.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\E\`)
	s = strings.ReplaceAll(s, "|", `\F\`)
	s = strings.ReplaceAll(s, "^", `\S\`)
	s = strings.ReplaceAll(s, "~", `\R\`)
	s = strings.ReplaceAll(s, "&", `\T\`)
	return s
}
