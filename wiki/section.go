package wiki

import (
	"fmt"
	"strconv"
	"strings"
)

// IntroSection is the name given to the implicit section before the first
// heading. It always exists, even for empty documents.
const IntroSection = "intro"

// Section is one contiguous span of a document's wikitext. The heading
// line itself belongs to the section it opens; the intro has no heading.
type Section struct {
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	Depth  int    `json:"depth"` // 0 for the intro, 1-6 for headings
	Name   string `json:"name"`
}

// SectionIndex is a table of sections in document order. Index 0 is always
// the intro. Names are unique: a repeated heading gets a _2, _3, ...
// suffix in order of first appearance. The index is rebuilt from scratch
// whenever the text changes; offsets shift unpredictably under edits so
// incremental patching is never attempted.
type SectionIndex struct {
	sections []Section
	byName   map[string]int
	textLen  int
}

// BuildSectionIndex scans wikitext for heading lines and returns the
// section table. A heading line is a run of 1-6 '=' characters, any
// content, the same run again, and nothing but spaces or tabs before the
// end of the line. Text with no headings yields a single intro entry
// spanning the whole document.
func BuildSectionIndex(text string) *SectionIndex {
	idx := &SectionIndex{
		sections: []Section{{Offset: 0, Depth: 0, Name: IntroSection}},
		byName:   map[string]int{IntroSection: 0},
		textLen:  len(text),
	}

	pos := 0
	for pos <= len(text) {
		end := strings.IndexByte(text[pos:], '\n')
		var line string
		if end < 0 {
			line = text[pos:]
			end = len(text)
		} else {
			line = text[pos : pos+end]
			end = pos + end + 1
		}

		if depth, name, ok := parseHeading(line); ok {
			idx.close(pos)
			idx.add(Section{Offset: pos, Depth: depth, Name: name})
		}

		if end <= pos {
			break
		}
		pos = end
	}
	idx.close(len(text))

	return idx
}

// parseHeading reports whether line is a heading and extracts its depth
// and name. The opening and closing runs must balance.
func parseHeading(line string) (depth int, name string, ok bool) {
	trimmed := strings.TrimRight(line, " \t")
	if len(trimmed) < 2 || trimmed[0] != '=' || trimmed[len(trimmed)-1] != '=' {
		return 0, "", false
	}

	open := 0
	for open < len(trimmed) && trimmed[open] == '=' {
		open++
	}
	closing := 0
	for closing < len(trimmed) && trimmed[len(trimmed)-1-closing] == '=' {
		closing++
	}

	// A line of nothing but '=' counts both runs over the same bytes
	if open+closing > len(trimmed) {
		return 0, "", false
	}
	if open != closing || open > 6 {
		return 0, "", false
	}

	name = strings.TrimSpace(trimmed[open : len(trimmed)-closing])
	return open, name, true
}

// close finalizes the length of the most recent section up to offset
func (x *SectionIndex) close(offset int) {
	last := &x.sections[len(x.sections)-1]
	last.Length = offset - last.Offset
}

// add appends a section, disambiguating its name against earlier entries
func (x *SectionIndex) add(s Section) {
	if _, taken := x.byName[s.Name]; taken {
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s_%d", s.Name, n)
			if _, taken := x.byName[candidate]; !taken {
				s.Name = candidate
				break
			}
		}
	}
	x.byName[s.Name] = len(x.sections)
	x.sections = append(x.sections, s)
}

// Len returns the number of sections, intro included
func (x *SectionIndex) Len() int {
	return len(x.sections)
}

// At returns the section at the given document-order position
func (x *SectionIndex) At(i int) (Section, bool) {
	if i < 0 || i >= len(x.sections) {
		return Section{}, false
	}
	return x.sections[i], true
}

// Sections returns a copy of the table in document order
func (x *SectionIndex) Sections() []Section {
	out := make([]Section, len(x.sections))
	copy(out, x.sections)
	return out
}

// Selector addresses a section by position, by resolved name, or as the
// not-yet-existing section appended by a write ("new").
type Selector struct {
	kind  selectorKind
	index int
	name  string
}

type selectorKind int

const (
	selectByIndex selectorKind = iota
	selectByName
	selectNew
)

// ByIndex selects the section at a document-order position (0 = intro)
func ByIndex(i int) Selector {
	return Selector{kind: selectByIndex, index: i}
}

// ByName selects a section by its disambiguated heading name
func ByName(name string) Selector {
	return Selector{kind: selectByName, name: name}
}

// NewSection selects a section that does not exist yet; it is meaningful
// only to the write path, which appends it to the document.
func NewSection() Selector {
	return Selector{kind: selectNew}
}

// IsNew reports whether the selector names a section to be appended
func (s Selector) IsNew() bool {
	return s.kind == selectNew
}

func (s Selector) String() string {
	switch s.kind {
	case selectByIndex:
		return strconv.Itoa(s.index)
	case selectByName:
		return s.name
	default:
		return "new"
	}
}

// ParseSelector interprets a user-supplied section reference: the literal
// "new", a decimal index, or a heading name.
func ParseSelector(s string) Selector {
	if s == "new" {
		return NewSection()
	}
	if i, err := strconv.Atoi(s); err == nil {
		return ByIndex(i)
	}
	return ByName(s)
}

// Resolve maps a selector to a position in the table. The "new" sentinel
// never resolves; neither do unknown names or out-of-range indexes.
func (x *SectionIndex) Resolve(sel Selector) (int, bool) {
	switch sel.kind {
	case selectByIndex:
		if sel.index < 0 || sel.index >= len(x.sections) {
			return 0, false
		}
		return sel.index, true
	case selectByName:
		i, ok := x.byName[sel.name]
		return i, ok
	default:
		return 0, false
	}
}

// SectionText extracts one section's text from the document the index was
// built from. With includeSubsections, the span extends over every
// immediately following section whose depth is strictly greater, stopping
// at the first sibling or shallower heading. With includeHeading false the
// heading line is dropped; the intro has no heading to drop.
func (x *SectionIndex) SectionText(text string, sel Selector, includeHeading, includeSubsections bool) (string, bool) {
	i, ok := x.Resolve(sel)
	if !ok {
		return "", false
	}

	entry := x.sections[i]
	length := entry.Length
	if includeSubsections && entry.Offset > 0 {
		for j := i + 1; j < len(x.sections); j++ {
			if x.sections[j].Depth <= entry.Depth {
				break
			}
			length += x.sections[j].Length
		}
	}

	section := text[entry.Offset : entry.Offset+length]
	if !includeHeading && entry.Offset > 0 {
		if nl := strings.IndexByte(section, '\n'); nl >= 0 {
			section = section[nl+1:]
		}
	}
	return section, true
}

// Keying modes for AllSections
const (
	KeyedByIndex = "index"
	KeyedByName  = "name"
)

// AllSections returns every section's text keyed by position (as decimal
// strings) or by resolved name. Subsections are not folded in; each key
// maps to exactly its own span.
func (x *SectionIndex) AllSections(text string, includeHeading bool, keyedBy string) (map[string]string, error) {
	if keyedBy != KeyedByIndex && keyedBy != KeyedByName {
		return nil, &ValidationError{
			Field:      "keyedBy",
			Value:      keyedBy,
			Message:    "unrecognized keying mode",
			Suggestion: fmt.Sprintf("Use %q or %q.", KeyedByIndex, KeyedByName),
		}
	}

	out := make(map[string]string, len(x.sections))
	for i, entry := range x.sections {
		body, _ := x.SectionText(text, ByIndex(i), includeHeading, false)
		if keyedBy == KeyedByName {
			out[entry.Name] = body
		} else {
			out[strconv.Itoa(i)] = body
		}
	}
	return out, nil
}
