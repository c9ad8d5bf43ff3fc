package executor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/redcentre/carbonsvc/internal/model"
)

// Section names and metadata keys in OXT report text.
const (
	sectionTable    = "Table"
	sectionMetaData = "MetaData"

	metaTitlesRowCount          = "Titles RowCount"
	metaDisplayColumnLetters    = "Display ColumnLetters"
	metaDisplayRowLetters       = "Display RowLetters"
	metaSignificanceShowLetters = "Significance ShowLetters"
)

// ParseOutput converts raw report text into a ReportResult. Metadata is always
// read from the full text. When tableOnly is set, only the lines of the
// [Table] section are kept.
func ParseOutput(text string, tableOnly bool) *model.ReportResult {
	lines := SplitLines(text)
	res := &model.ReportResult{
		TitlesRowCount:          metaInt(lines, metaTitlesRowCount),
		DisplayColumnLetters:    metaBool(lines, metaDisplayColumnLetters),
		DisplayRowLetters:       metaBool(lines, metaDisplayRowLetters),
		SignificanceShowLetters: metaBool(lines, metaSignificanceShowLetters),
	}
	if tableOnly {
		lines = Section(lines, sectionTable)
	}
	res.Lines = lines
	return res
}

// SplitLines splits text on LF or CRLF. A trailing newline does not produce a
// final empty line.
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// Section returns the lines of the named section, starting at its "[name]"
// header and stopping before the next header of a different section.
func Section(lines []string, name string) []string {
	header := "[" + name + "]"
	start := -1
	for i, l := range lines {
		if strings.HasPrefix(l, header) {
			start = i
			break
		}
	}
	if start < 0 {
		return []string{}
	}
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "[") && !strings.HasPrefix(lines[i], "["+name) {
			end = i
			break
		}
	}
	return append([]string(nil), lines[start:end]...)
}

func metaValue(lines []string, key, valuePattern string) (string, bool) {
	re := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(key) + `=(` + valuePattern + `)`)
	for _, l := range Section(lines, sectionMetaData) {
		if m := re.FindStringSubmatch(l); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func metaInt(lines []string, key string) *int {
	v, ok := metaValue(lines, key, `\d+`)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func metaBool(lines []string, key string) *bool {
	v, ok := metaValue(lines, key, `true|false`)
	if !ok {
		return nil
	}
	b := strings.EqualFold(v, "true")
	return &b
}
