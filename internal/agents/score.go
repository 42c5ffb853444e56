package agents

import (
	"regexp"
	"strconv"
)

var digitRun = regexp.MustCompile(`\d+`)

// ExtractScore pulls the accuracy score out of the model's free-form review
// text: the first integer in [0,100]. Larger numbers (years, counts) are
// skipped. Returns ErrScoreUnparseable when no candidate is found.
func ExtractScore(text string) (int, error) {
	for _, match := range digitRun.FindAllString(text, -1) {
		n, err := strconv.Atoi(match)
		if err != nil {
			continue // overflow on absurdly long digit runs
		}
		if n <= 100 {
			return n, nil
		}
	}
	return 0, ErrScoreUnparseable
}
