package session

import (
	"regexp"
	"strings"
)

var resultLineRe = regexp.MustCompile(`^[\w/.:-]+::[\w_]+\s+(PASSED|FAILED|ERROR|SKIPPED)`)

// countResults tallies pass/fail totals from test output lines. ERROR counts
// as a failure; SKIPPED counts as neither.
func countResults(output string) (passed, failed int) {
	for _, line := range strings.Split(output, "\n") {
		match := resultLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		switch match[1] {
		case "PASSED":
			passed++
		case "FAILED", "ERROR":
			failed++
		}
	}
	return passed, failed
}
