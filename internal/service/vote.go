package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polly-app/polly/internal/apperror"
	"github.com/polly-app/polly/internal/model"
	"github.com/polly-app/polly/internal/repository"
)

// VoteService implements the voting policy: it decides whether a vote-cast
// request is admissible against the poll's configuration and the user's
// voting history, then delegates the state change to the vote repository.
type VoteService struct {
	polls  repository.PollRepository
	votes  repository.VoteRepository
	logger *slog.Logger
}

func NewVoteService(polls repository.PollRepository, votes repository.VoteRepository, logger *slog.Logger) *VoteService {
	return &VoteService{polls: polls, votes: votes, logger: logger}
}

// Cast validates and applies a vote, returning the user's resulting vote set
// on the poll.
//
// Preconditions are checked in order, failing fast on the first violation:
// identity present, poll resolves (and is visible to the voter), poll not
// expired, selection non-empty with known and distinct option ids, selection
// size compatible with AllowMultipleVotes.
//
// On a single-vote poll a new cast replaces the user's previous vote; on a
// multi-vote poll casts are additive and re-casting a held option is an
// idempotent no-op, never a second increment. Re-casting an identical vote
// therefore succeeds with unchanged counts — it is not an error.
func (s *VoteService) Cast(ctx context.Context, userID, pollID string, optionIDs []string) ([]model.Vote, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	poll, err := s.polls.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !poll.IsPublic && poll.CreatorID != userID {
		return nil, apperror.NotFound("poll", pollID)
	}

	if poll.Expired(time.Now()) {
		return nil, apperror.Expired("poll", pollID)
	}

	if len(optionIDs) == 0 {
		return nil, apperror.ValidationFailed("optionIds", "at least one option must be selected")
	}
	seen := make(map[string]bool, len(optionIDs))
	for _, optID := range optionIDs {
		if poll.OptionByID(optID) == nil {
			return nil, apperror.ValidationFailed("optionIds",
				fmt.Sprintf("poll has no option with id %s", optID))
		}
		if seen[optID] {
			return nil, apperror.ValidationFailed("optionIds",
				fmt.Sprintf("option %s selected more than once", optID))
		}
		seen[optID] = true
	}

	if !poll.AllowMultipleVotes && len(optionIDs) > 1 {
		return nil, apperror.Conflict("this poll does not allow voting for multiple options")
	}

	// Single-vote polls replace on revote; multi-vote polls accumulate.
	replace := !poll.AllowMultipleVotes

	votes, err := s.votes.Cast(ctx, userID, pollID, optionIDs, replace)
	if err != nil {
		s.logger.Error("failed to cast vote",
			slog.String("pollID", pollID),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("casting vote: %w", err)
	}

	s.logger.Info("vote cast",
		slog.String("pollID", pollID),
		slog.String("userID", userID),
		slog.Int("options", len(optionIDs)),
		slog.Bool("replaced", replace),
	)

	return votes, nil
}

// Withdraw removes all of the user's votes on a poll. Withdrawing when the
// user holds no votes succeeds as a no-op.
func (s *VoteService) Withdraw(ctx context.Context, userID, pollID string) error {
	if userID == "" {
		return apperror.Unauthorized("authentication required")
	}

	poll, err := s.polls.GetByID(ctx, pollID)
	if err != nil {
		return err
	}
	if !poll.IsPublic && poll.CreatorID != userID {
		return apperror.NotFound("poll", pollID)
	}

	removed, err := s.votes.Withdraw(ctx, userID, pollID)
	if err != nil {
		s.logger.Error("failed to withdraw vote",
			slog.String("pollID", pollID),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("withdrawing vote: %w", err)
	}

	s.logger.Info("vote withdrawn",
		slog.String("pollID", pollID),
		slog.String("userID", userID),
		slog.Int("removed", removed),
	)

	return nil
}

// UserVotes returns the user's current votes on a poll. Used to enrich poll
// responses with hasVoted/userVotes for the requesting viewer.
func (s *VoteService) UserVotes(ctx context.Context, userID, pollID string) ([]model.Vote, error) {
	if userID == "" {
		return nil, nil
	}

	votes, err := s.votes.ListByUserAndPoll(ctx, userID, pollID)
	if err != nil {
		return nil, fmt.Errorf("listing user votes: %w", err)
	}
	return votes, nil
}
