package wiki

import (
	"strings"
	"testing"
)

// exampleText is the canonical two-level document used across tests
const exampleText = "intro\n== A ==\nbody A\n=== A1 ===\nbody A1\n== B ==\nbody B\n"

func TestBuildSectionIndex_NoHeadings(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"plain text", "just a paragraph\nand another line\n"},
		{"equals inside a line", "a = b and a == b are not headings\n"},
		{"unbalanced heading", "== almost a heading ===\n"},
		{"too deep", "======= seven =======\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := BuildSectionIndex(tt.text)
			if idx.Len() != 1 {
				t.Fatalf("Len() = %d, want 1", idx.Len())
			}
			s, _ := idx.At(0)
			if s.Offset != 0 || s.Length != len(tt.text) || s.Depth != 0 || s.Name != IntroSection {
				t.Errorf("intro = %+v, want offset 0, length %d, depth 0, name %q", s, len(tt.text), IntroSection)
			}
		})
	}
}

func TestBuildSectionIndex_Example(t *testing.T) {
	idx := BuildSectionIndex(exampleText)

	want := []Section{
		{Offset: 0, Length: 6, Depth: 0, Name: "intro"},
		{Offset: 6, Length: 15, Depth: 2, Name: "A"},
		{Offset: 21, Length: 19, Depth: 3, Name: "A1"},
		{Offset: 40, Length: 15, Depth: 2, Name: "B"},
	}
	if idx.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", idx.Len(), len(want))
	}
	for i, w := range want {
		got, _ := idx.At(i)
		if got != w {
			t.Errorf("section %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestBuildSectionIndex_Partition(t *testing.T) {
	texts := []string{
		"",
		exampleText,
		"== A ==\nstarts with a heading\n",
		"no trailing newline\n== End ==",
		"= top =\ntext\n====== deep ======\ntext\n== mid ==\n",
		"intro\n== A ==\n== A ==\n== A ==\ntail",
	}

	for _, text := range texts {
		idx := BuildSectionIndex(text)

		total := 0
		prevEnd := 0
		for i := 0; i < idx.Len(); i++ {
			s, _ := idx.At(i)
			if s.Offset != prevEnd {
				t.Errorf("text %q: section %d offset %d, want %d (gap or overlap)", text, i, s.Offset, prevEnd)
			}
			if s.Length < 0 {
				t.Errorf("text %q: section %d has negative length", text, i)
			}
			prevEnd = s.Offset + s.Length
			total += s.Length
		}
		if total != len(text) {
			t.Errorf("text %q: lengths sum to %d, want %d", text, total, len(text))
		}
	}
}

func TestBuildSectionIndex_DuplicateNames(t *testing.T) {
	text := "start\n== Notes ==\none\n== Notes ==\ntwo\n== Notes ==\nthree\n"
	idx := BuildSectionIndex(text)

	wantNames := []string{"intro", "Notes", "Notes_2", "Notes_3"}
	if idx.Len() != len(wantNames) {
		t.Fatalf("Len() = %d, want %d", idx.Len(), len(wantNames))
	}
	for i, name := range wantNames {
		s, _ := idx.At(i)
		if s.Name != name {
			t.Errorf("section %d name = %q, want %q", i, s.Name, name)
		}
	}

	// Names resolve back to their own entries
	for i, name := range wantNames {
		j, ok := idx.Resolve(ByName(name))
		if !ok || j != i {
			t.Errorf("Resolve(%q) = %d, %v, want %d, true", name, j, ok, i)
		}
	}
}

func TestSectionText_RoundTrip(t *testing.T) {
	texts := []string{
		exampleText,
		"== A ==\nno intro text\n=== A1 ===\ndeep\n",
		"plain document without headings\n",
		"intro\n== Dup ==\nx\n== Dup ==\ny",
	}

	for _, text := range texts {
		idx := BuildSectionIndex(text)
		var rebuilt strings.Builder
		for i := 0; i < idx.Len(); i++ {
			part, ok := idx.SectionText(text, ByIndex(i), true, false)
			if !ok {
				t.Fatalf("text %q: section %d did not resolve", text, i)
			}
			rebuilt.WriteString(part)
		}
		if rebuilt.String() != text {
			t.Errorf("round trip mismatch:\n got %q\nwant %q", rebuilt.String(), text)
		}
	}
}

func TestSectionText_Subsections(t *testing.T) {
	idx := BuildSectionIndex(exampleText)

	got, ok := idx.SectionText(exampleText, ByName("A"), false, true)
	if !ok {
		t.Fatal("section A did not resolve")
	}
	want := "body A\n=== A1 ===\nbody A1\n"
	if got != want {
		t.Errorf("SectionText(A) = %q, want %q", got, want)
	}

	// B has no subsections; aggregation adds nothing
	got, _ = idx.SectionText(exampleText, ByName("B"), false, true)
	if got != "body B\n" {
		t.Errorf("SectionText(B) = %q, want %q", got, "body B\n")
	}

	// A sibling at the same depth stops the scan
	text := "x\n== S ==\na\n=== S1 ===\nb\n== T ==\nc\n=== T1 ===\nd\n"
	idx = BuildSectionIndex(text)
	got, _ = idx.SectionText(text, ByName("S"), true, true)
	want = "== S ==\na\n=== S1 ===\nb\n"
	if got != want {
		t.Errorf("SectionText(S) = %q, want %q", got, want)
	}
}

func TestSectionText_SubsectionLengthInvariant(t *testing.T) {
	text := "x\n= A =\na\n== B ==\nb\n=== C ===\nc\n== D ==\nd\n= E =\ne\n"
	idx := BuildSectionIndex(text)

	i, _ := idx.Resolve(ByName("A"))
	own, _ := idx.At(i)
	wantLen := own.Length
	for j := i + 1; j < idx.Len(); j++ {
		s, _ := idx.At(j)
		if s.Depth <= own.Depth {
			break
		}
		wantLen += s.Length
	}

	got, _ := idx.SectionText(text, ByName("A"), true, true)
	if len(got) != wantLen {
		t.Errorf("aggregated length = %d, want %d", len(got), wantLen)
	}
}

func TestSectionText_HeadingHandling(t *testing.T) {
	idx := BuildSectionIndex(exampleText)

	withHeading, _ := idx.SectionText(exampleText, ByIndex(1), true, false)
	if withHeading != "== A ==\nbody A\n" {
		t.Errorf("with heading = %q", withHeading)
	}

	withoutHeading, _ := idx.SectionText(exampleText, ByIndex(1), false, false)
	if withoutHeading != "body A\n" {
		t.Errorf("without heading = %q", withoutHeading)
	}

	// The intro has no heading line to strip
	intro, _ := idx.SectionText(exampleText, ByIndex(0), false, false)
	if intro != "intro\n" {
		t.Errorf("intro = %q", intro)
	}
}

func TestSectionText_NotFound(t *testing.T) {
	idx := BuildSectionIndex(exampleText)

	for _, sel := range []Selector{ByIndex(99), ByIndex(-1), ByName("Nope"), NewSection()} {
		if _, ok := idx.SectionText(exampleText, sel, true, false); ok {
			t.Errorf("selector %v resolved, want miss", sel)
		}
	}
}

func TestAllSections(t *testing.T) {
	idx := BuildSectionIndex(exampleText)

	byName, err := idx.AllSections(exampleText, false, KeyedByName)
	if err != nil {
		t.Fatalf("AllSections by name: %v", err)
	}
	if len(byName) != 4 {
		t.Fatalf("len = %d, want 4", len(byName))
	}
	if byName["A"] != "body A\n" {
		t.Errorf("byName[A] = %q", byName["A"])
	}
	if byName["intro"] != "intro\n" {
		t.Errorf("byName[intro] = %q", byName["intro"])
	}

	byIndex, err := idx.AllSections(exampleText, true, KeyedByIndex)
	if err != nil {
		t.Fatalf("AllSections by index: %v", err)
	}
	if byIndex["3"] != "== B ==\nbody B\n" {
		t.Errorf("byIndex[3] = %q", byIndex["3"])
	}

	if _, err := idx.AllSections(exampleText, true, "offset"); err == nil {
		t.Error("expected error for unrecognized keying mode")
	}
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in   string
		want Selector
	}{
		{"new", NewSection()},
		{"0", ByIndex(0)},
		{"7", ByIndex(7)},
		{"Notes", ByName("Notes")},
		{"Notes_2", ByName("Notes_2")},
	}
	for _, tt := range tests {
		if got := ParseSelector(tt.in); got != tt.want {
			t.Errorf("ParseSelector(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseHeading(t *testing.T) {
	tests := []struct {
		line      string
		wantDepth int
		wantName  string
		wantOK    bool
	}{
		{"== A ==", 2, "A", true},
		{"= A =", 1, "A", true},
		{"====== deep ======", 6, "deep", true},
		{"== A ==   ", 2, "A", true},
		{"== A ==\t", 2, "A", true},
		{"==A==", 2, "A", true},
		{"== ==", 2, "", true},
		{"== A ===", 0, "", false},
		{"=A", 0, "", false},
		{"==", 0, "", false},
		{"======= seven =======", 0, "", false},
		{"text == A ==", 0, "", false},
		{"== A == trailing", 0, "", false},
	}
	for _, tt := range tests {
		depth, name, ok := parseHeading(tt.line)
		if ok != tt.wantOK || depth != tt.wantDepth || name != tt.wantName {
			t.Errorf("parseHeading(%q) = (%d, %q, %v), want (%d, %q, %v)",
				tt.line, depth, name, ok, tt.wantDepth, tt.wantName, tt.wantOK)
		}
	}
}
