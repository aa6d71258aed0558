package breaker

import (
	"regexp"
	"strconv"
	"strings"
)

// coverageTotalRe matches the summary line of a coverage report, e.g.
// "TOTAL    120    14    88%". The last integer is the coverage percentage.
var coverageTotalRe = regexp.MustCompile(`^TOTAL\s+\d+\s+\d+\s+(\d+)%`)

// ParseCoverage scans report output for the TOTAL line and returns the
// coverage percentage. The second return is false when no TOTAL line matched.
func ParseCoverage(output string) (float64, bool) {
	for _, line := range strings.Split(output, "\n") {
		match := coverageTotalRe.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		pct, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		return float64(pct), true
	}
	return 0, false
}
