package executor_test

import (
	"reflect"
	"testing"

	"github.com/redcentre/carbonsvc/internal/executor"
)

const sampleOXT = "[Titles]\r\nMy Report\r\n[MetaData]\r\nTitles RowCount=3\r\ndisplay columnletters=TRUE\r\nDisplay RowLetters=false\r\n[Table]\r\nrow1\r\nrow2\r\n[Footer]\r\nend\r\n"

func TestParseOutputFull(t *testing.T) {
	res := executor.ParseOutput(sampleOXT, false)

	if len(res.Lines) != 11 {
		t.Fatalf("len(Lines) = %d, want 11: %q", len(res.Lines), res.Lines)
	}
	if res.Lines[0] != "[Titles]" || res.Lines[10] != "end" {
		t.Errorf("unexpected first/last lines: %q / %q", res.Lines[0], res.Lines[10])
	}
	if res.TitlesRowCount == nil || *res.TitlesRowCount != 3 {
		t.Errorf("TitlesRowCount = %v, want 3", res.TitlesRowCount)
	}
	if res.DisplayColumnLetters == nil || !*res.DisplayColumnLetters {
		t.Errorf("DisplayColumnLetters = %v, want true", res.DisplayColumnLetters)
	}
	if res.DisplayRowLetters == nil || *res.DisplayRowLetters {
		t.Errorf("DisplayRowLetters = %v, want false", res.DisplayRowLetters)
	}
	if res.SignificanceShowLetters != nil {
		t.Errorf("SignificanceShowLetters = %v, want nil", *res.SignificanceShowLetters)
	}
}

func TestParseOutputTableOnly(t *testing.T) {
	res := executor.ParseOutput(sampleOXT, true)

	want := []string{"[Table]", "row1", "row2"}
	if !reflect.DeepEqual(res.Lines, want) {
		t.Errorf("Lines = %q, want %q", res.Lines, want)
	}
	// Metadata still comes from the full text.
	if res.TitlesRowCount == nil || *res.TitlesRowCount != 3 {
		t.Errorf("TitlesRowCount = %v, want 3", res.TitlesRowCount)
	}
}

func TestParseOutputMetadataOutsideSectionIgnored(t *testing.T) {
	res := executor.ParseOutput("Titles RowCount=9\n[Table]\nx\n", false)
	if res.TitlesRowCount != nil {
		t.Errorf("TitlesRowCount = %d, want nil outside [MetaData]", *res.TitlesRowCount)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"a", []string{"a"}},
		{"a\nb\n", []string{"a", "b"}},
		{"a\r\nb", []string{"a", "b"}},
		{"a\n\nb", []string{"a", "", "b"}},
	}
	for _, tt := range tests {
		if got := executor.SplitLines(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSectionMissing(t *testing.T) {
	got := executor.Section([]string{"[A]", "x"}, "Table")
	if len(got) != 0 {
		t.Errorf("Section() = %q, want empty", got)
	}
}
