package model

import "time"

// Poll is the votable entity: a question, its options, and the configuration
// flags that govern how voting behaves.
//
// TotalVotes is derived state — always the sum of the option counters. The
// repository recomputes it whenever it loads a poll's options, so the invariant
// TotalVotes == sum(option.Votes) holds at every point a Poll leaves the
// storage layer.
type Poll struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Options            []Option   `json:"options"`
	CreatorID          string     `json:"creatorId"`
	IsPublic           bool       `json:"isPublic"`
	AllowMultipleVotes bool       `json:"allowMultipleVotes"`
	AllowAddOptions    bool       `json:"allowAddOptions"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"` // nil = never expires
	TotalVotes         int        `json:"totalVotes"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Expired reports whether the poll's expiry has passed at the given instant.
// Polls with no expiry never expire.
func (p *Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// OptionByID returns the option with the given id, or nil if the poll has no
// such option.
func (p *Poll) OptionByID(id string) *Option {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i]
		}
	}
	return nil
}

// RecountTotal recomputes TotalVotes from the option counters.
func (p *Poll) RecountTotal() {
	total := 0
	for i := range p.Options {
		total += p.Options[i].Votes
	}
	p.TotalVotes = total
}

// Option is one selectable choice within a poll. Votes is a running counter
// maintained by the storage layer with atomic increments — it is never written
// back from a value read in Go code.
type Option struct {
	ID       string `json:"id"`
	PollID   string `json:"pollId"`
	Text     string `json:"text"`
	Votes    int    `json:"votes"`
	Position int    `json:"position"` // stable display order within the poll
}
