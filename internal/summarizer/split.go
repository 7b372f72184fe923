package summarizer

import (
	"regexp"
	"strconv"
	"strings"
)

// numberMarker matches "[3]" at the start of a line, optionally wrapped in a
// paragraph or bold tag as models sometimes do.
var numberMarker = regexp.MustCompile(`(?m)^\s*(?:<p>\s*|<strong>\s*|\*\*)?\[(\d+)\]\s*(?:</strong>|\*\*)?`)

// SplitNumbered splits a reply into n parts on "[1]".."[n]" markers. It
// reports false unless the markers are exactly 1..n in order.
func SplitNumbered(reply string, n int) ([]string, bool) {
	if n <= 0 {
		return nil, false
	}
	locs := numberMarker.FindAllStringSubmatchIndex(reply, -1)
	if len(locs) != n {
		return nil, false
	}
	parts := make([]string, n)
	for i, loc := range locs {
		num, err := strconv.Atoi(reply[loc[2]:loc[3]])
		if err != nil || num != i+1 {
			return nil, false
		}
		end := len(reply)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		part := strings.TrimSpace(reply[loc[1]:end])
		if strings.Contains(reply[loc[0]:loc[1]], "<p>") {
			part = "<p>" + part
		}
		if part == "" || part == "<p>" {
			return nil, false
		}
		parts[i] = part
	}
	return parts, true
}
