package model

import "time"

// Vote records one user's endorsement of one option in one poll.
// The (UserID, PollID, OptionID) triple is unique — enforced by the store.
type Vote struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PollID    string    `json:"pollId"`
	OptionID  string    `json:"optionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// DashboardStats is the per-user summary shown on the dashboard page.
type DashboardStats struct {
	TotalPolls   int `json:"totalPolls"`   // polls visible to the user
	TotalVotes   int `json:"totalVotes"`   // votes received across the user's own polls
	PollsCreated int `json:"pollsCreated"` // polls the user owns
	PollsVoted   int `json:"pollsVoted"`   // distinct polls the user has voted on
}
