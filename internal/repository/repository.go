// Package repository defines the storage interfaces the service layer depends
// on. The sqlite subpackage provides the real implementation; tests inject
// in-memory mocks.
package repository

import (
	"context"

	"github.com/polly-app/polly/internal/model"
)

// PollSort names the supported list orderings.
type PollSort string

const (
	SortCreated PollSort = "created" // newest first by default
	SortVotes   PollSort = "votes"
	SortTitle   PollSort = "title"
)

// PollListOptions controls pagination, filtering, and visibility for List.
//
// Visibility rule: a poll is visible if it is public, or if ViewerID matches
// its creator. An empty ViewerID means an anonymous request (public only).
type PollListOptions struct {
	Limit     int
	Offset    int
	Search    string   // substring match on title and description
	ViewerID  string   // requesting user, "" for anonymous
	CreatorID string   // only polls created by this user
	VoterID   string   // only polls this user has voted on
	SortBy    PollSort // defaults to SortCreated
	Ascending bool     // defaults to descending
}

type PollRepository interface {
	// Create inserts the poll and its options, assigning IDs and timestamps.
	Create(ctx context.Context, poll *model.Poll) error
	// GetByID loads a poll with its options (ordered by position) and its
	// derived total.
	GetByID(ctx context.Context, id string) (*model.Poll, error)
	// List returns one page of visible polls plus the total match count.
	List(ctx context.Context, opts PollListOptions) ([]model.Poll, int, error)
	// Update rewrites the poll row and reconciles the option set: options
	// carrying an ID are kept (counts preserved, position updated), options
	// with an empty ID are inserted fresh, and stored options absent from
	// poll.Options are deleted along with their votes.
	Update(ctx context.Context, poll *model.Poll) error
	// Delete removes the poll; options and votes cascade.
	Delete(ctx context.Context, id string) error
	// AddOption appends a single option to an existing poll.
	AddOption(ctx context.Context, opt *model.Option) error
	// DashboardStats aggregates the per-user dashboard counters.
	DashboardStats(ctx context.Context, userID string) (*model.DashboardStats, error)
}

type VoteRepository interface {
	// ListByUserAndPoll returns the user's current votes on one poll.
	ListByUserAndPoll(ctx context.Context, userID, pollID string) ([]model.Vote, error)
	// Cast applies an admissible vote in a single transaction. With replace
	// set, the user's prior votes on the poll are removed (decrementing their
	// option counters) before the new votes are inserted. Inserts are
	// idempotent on the (user, poll, option) key: an already-held vote is
	// kept as-is and its counter is not incremented again. Returns the
	// user's resulting vote set for the poll.
	Cast(ctx context.Context, userID, pollID string, optionIDs []string, replace bool) ([]model.Vote, error)
	// Withdraw removes all of the user's votes on a poll, decrementing the
	// affected counters. Returns how many votes were removed.
	Withdraw(ctx context.Context, userID, pollID string) (int, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertGitHub inserts or refreshes a user keyed by their GitHub ID.
	UpsertGitHub(ctx context.Context, user *model.User) error
}
