package workflow

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Indicator phrases suggesting a query spans multiple concerns.
var multiAgentIndicators = []string{
	"compare",
	"contrast",
	"versus",
	" vs ",
	"both",
	"as well as",
	"in addition",
	"and also",
	"difference between",
}

// Enumeration markers suggesting a multi-part question.
var sequenceMarkers = []string{
	"first",
	"second",
	"then",
	"1.",
	"2.",
	"also",
}

// DetectMultiAgentQuery reports whether a query likely needs more than one
// agent, along with the indicators that matched: comparison phrasing,
// several question marks, or enumerated parts. The signal is advisory; the
// orchestrator routes on agent relevance scores, not on query surface.
func DetectMultiAgentQuery(query string) (bool, []string) {
	q := strings.ToLower(query)

	var reasons []string
	for _, ind := range multiAgentIndicators {
		if strings.Contains(q, ind) {
			reasons = append(reasons, "comparison phrasing "+strconv.Quote(ind))
		}
	}
	if n := strings.Count(q, "?"); n > 1 {
		reasons = append(reasons, fmt.Sprintf("%d question marks", n))
	}
	for _, marker := range sequenceMarkers {
		if strings.Contains(q, marker) {
			reasons = append(reasons, "enumeration marker "+strconv.Quote(marker))
		}
	}
	return len(reasons) > 0, reasons
}

func sortDurations(d []time.Duration) {
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
}

// percentile computes the p-th percentile of sorted durations with linear
// interpolation between adjacent ranks.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + time.Duration(frac*float64(sorted[hi]-sorted[lo]))
}
