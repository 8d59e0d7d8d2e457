// Package busyness turns the accessible labels of a venue page into
// structured percentages.
package busyness

import (
	"regexp"
	"strconv"
)

var (
	// "Currently 12% busy, usually 18% busy."
	liveRegex = regexp.MustCompile(`(?i)currently\s+(\d+)%\s*busy,?\s*usually\s+(\d+)%`)
	// "41% busy at 9 PM."
	hourlyRegex = regexp.MustCompile(`(?i)(\d+)%\s*busy\s+at`)
)

// Parse extracts the live and typical percentages from a busyness label.
// The live form always wins; the hourly form only yields a typical figure.
// Either value is nil when the text does not carry it.
func Parse(text string) (live, typical *int) {
	if m := liveRegex.FindStringSubmatch(text); m != nil {
		return atoi(m[1]), atoi(m[2])
	}
	if m := hourlyRegex.FindStringSubmatch(text); m != nil {
		return nil, atoi(m[1])
	}
	return nil, nil
}

func atoi(s string) *int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
