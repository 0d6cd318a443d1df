// Package tally derives read-only poll results from the option vote counters.
// It never mutates anything — the counters are owned by the storage layer.
package tally

import (
	"math"

	"github.com/polly-app/polly/internal/model"
)

// OptionResult is one option's share of the results.
type OptionResult struct {
	OptionID   string `json:"optionId"`
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
	Winning    bool   `json:"winning"`
}

// Result is the full derived view of a poll's outcome.
//
// Percentages are rounded independently per option, so they may not sum to
// exactly 100. The raw vote counts are the authoritative numbers; TotalVotes
// always equals their sum.
type Result struct {
	PollID     string         `json:"pollId"`
	TotalVotes int            `json:"totalVotes"`
	Options    []OptionResult `json:"options"`
}

// Percentage returns votes as an integer share of total, rounded to the
// nearest whole percent with ties going away from zero. A zero total yields 0
// for every option — never a division by zero.
func Percentage(votes, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(votes) / float64(total) * 100))
}

// Compute builds the result view for a poll.
//
// An option is winning iff no other option has a strictly greater count, so
// ties produce multiple winners.
func Compute(poll *model.Poll) *Result {
	max := 0
	total := 0
	for i := range poll.Options {
		total += poll.Options[i].Votes
		if poll.Options[i].Votes > max {
			max = poll.Options[i].Votes
		}
	}

	result := &Result{
		PollID:     poll.ID,
		TotalVotes: total,
		Options:    make([]OptionResult, 0, len(poll.Options)),
	}

	for i := range poll.Options {
		opt := &poll.Options[i]
		result.Options = append(result.Options, OptionResult{
			OptionID:   opt.ID,
			Text:       opt.Text,
			Votes:      opt.Votes,
			Percentage: Percentage(opt.Votes, total),
			Winning:    opt.Votes == max,
		})
	}

	return result
}
