package executor

import (
	"fmt"
	"strings"

	"github.com/redcentre/carbonsvc/internal/model"
)

// ComposeFilter joins the filter fragments of a batch request into one engine
// filter expression. Period filters are folded into a single range term placed
// first: two period filters become "Label(A/B)", one becomes "Label(A)". The
// remaining filters contribute their syntax in request order. Fragments with
// an empty label or syntax are ignored, as are period filters when more than
// two are given. Terms are joined with "&".
func ComposeFilter(filters []model.FilterPair) string {
	var periods, others []model.FilterPair
	for _, f := range filters {
		if f.Label == "" || f.Syntax == "" {
			continue
		}
		if f.IsPeriod {
			periods = append(periods, f)
		} else {
			others = append(others, f)
		}
	}

	var parts []string
	switch len(periods) {
	case 1:
		parts = append(parts, fmt.Sprintf("%s(%s)", periods[0].Label, periods[0].Syntax))
	case 2:
		parts = append(parts, fmt.Sprintf("%s(%s/%s)", periods[0].Label, periods[0].Syntax, periods[1].Syntax))
	}

	for _, f := range others {
		parts = append(parts, f.Syntax)
	}
	return strings.Join(parts, "&")
}

// NormalizeReportName trims surrounding slashes and converts backslashes to
// forward slashes.
func NormalizeReportName(name string) string {
	name = strings.Trim(name, `/\`)
	return strings.ReplaceAll(name, `\`, "/")
}
