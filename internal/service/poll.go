package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/polly-app/polly/internal/apperror"
	"github.com/polly-app/polly/internal/model"
	"github.com/polly-app/polly/internal/repository"
)

// Validation bounds for polls. Option-text uniqueness is a case-sensitive
// exact match after trimming — "Tea" and "tea" are two different options.
const (
	MinTitleLength       = 3
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MinOptions           = 2
	MaxOptions           = 10
	MaxOptionTextLength  = 100
	MaxPollLifetime      = 365 * 24 * time.Hour

	DefaultListLimit = 10
	MaxListLimit     = 50
)

// PollInput carries the caller-supplied fields for creating or updating a
// poll. Options is the full desired option set, as plain texts.
type PollInput struct {
	Title              string
	Description        string
	Options            []string
	IsPublic           bool
	AllowMultipleVotes bool
	AllowAddOptions    bool
	ExpiresAt          *time.Time
}

// ListParams is the caller-facing shape of list queries; the service clamps
// and translates it into repository options.
type ListParams struct {
	Page      int
	Limit     int
	Search    string
	SortBy    string // "created", "votes", or "title"
	SortOrder string // "asc" or "desc"
}

// PollService implements the poll lifecycle/ownership policy and the
// option-addition policy.
type PollService struct {
	polls  repository.PollRepository
	logger *slog.Logger
}

func NewPollService(polls repository.PollRepository, logger *slog.Logger) *PollService {
	return &PollService{polls: polls, logger: logger}
}

// Create validates and stores a new poll owned by userID.
func (s *PollService) Create(ctx context.Context, userID string, in PollInput) (*model.Poll, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	title, description, err := validateTitleAndDescription(in.Title, in.Description)
	if err != nil {
		return nil, err
	}

	texts, err := validateOptionTexts(in.Options)
	if err != nil {
		return nil, err
	}

	if err := validateExpiry(in.ExpiresAt, time.Now()); err != nil {
		return nil, err
	}

	poll := &model.Poll{
		Title:              title,
		Description:        description,
		CreatorID:          userID,
		IsPublic:           in.IsPublic,
		AllowMultipleVotes: in.AllowMultipleVotes,
		AllowAddOptions:    in.AllowAddOptions,
		ExpiresAt:          in.ExpiresAt,
	}
	for _, text := range texts {
		poll.Options = append(poll.Options, model.Option{Text: text})
	}

	if err := s.polls.Create(ctx, poll); err != nil {
		s.logger.Error("failed to create poll",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating poll: %w", err)
	}

	s.logger.Info("poll created",
		slog.String("id", poll.ID),
		slog.String("creatorID", userID),
		slog.Int("options", len(poll.Options)),
	)

	return poll, nil
}

// Get returns a poll if the viewer may see it. Private polls are only visible
// to their creator; for anyone else they behave as if they don't exist.
func (s *PollService) Get(ctx context.Context, viewerID, id string) (*model.Poll, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "poll ID is required")
	}

	poll, err := s.polls.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !poll.IsPublic && poll.CreatorID != viewerID {
		return nil, apperror.NotFound("poll", id)
	}

	return poll, nil
}

// List returns a page of polls visible to the viewer: public polls plus the
// viewer's own private ones.
func (s *PollService) List(ctx context.Context, viewerID string, p ListParams) ([]model.Poll, int, error) {
	opts := listOptions(p)
	opts.ViewerID = viewerID
	return s.list(ctx, opts)
}

// ListMine returns a page of polls created by userID, public or not.
func (s *PollService) ListMine(ctx context.Context, userID string, p ListParams) ([]model.Poll, int, error) {
	if userID == "" {
		return nil, 0, apperror.Unauthorized("authentication required")
	}
	opts := listOptions(p)
	opts.CreatorID = userID
	return s.list(ctx, opts)
}

// ListVoted returns a page of polls the user has cast votes on.
func (s *PollService) ListVoted(ctx context.Context, userID string, p ListParams) ([]model.Poll, int, error) {
	if userID == "" {
		return nil, 0, apperror.Unauthorized("authentication required")
	}
	opts := listOptions(p)
	opts.ViewerID = userID
	opts.VoterID = userID
	return s.list(ctx, opts)
}

func (s *PollService) list(ctx context.Context, opts repository.PollListOptions) ([]model.Poll, int, error) {
	polls, total, err := s.polls.List(ctx, opts)
	if err != nil {
		s.logger.Error("failed to list polls", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("listing polls: %w", err)
	}
	return polls, total, nil
}

func listOptions(p ListParams) repository.PollListOptions {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	page := p.Page
	if page < 1 {
		page = 1
	}

	sortBy := repository.SortCreated
	switch p.SortBy {
	case "votes":
		sortBy = repository.SortVotes
	case "title":
		sortBy = repository.SortTitle
	}

	return repository.PollListOptions{
		Limit:     limit,
		Offset:    (page - 1) * limit,
		Search:    strings.TrimSpace(p.Search),
		SortBy:    sortBy,
		Ascending: p.SortOrder == "asc",
	}
}

// Update replaces a poll's content and option set. Only the creator may
// update. Submitted option texts that match an existing option keep that
// option (and its votes); other existing options are removed along with
// their votes, and unmatched texts become fresh zero-vote options.
func (s *PollService) Update(ctx context.Context, userID, pollID string, in PollInput) (*model.Poll, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	poll, err := s.Get(ctx, userID, pollID)
	if err != nil {
		return nil, err
	}
	if poll.CreatorID != userID {
		return nil, apperror.Forbidden("only the creator may edit this poll")
	}

	title, description, err := validateTitleAndDescription(in.Title, in.Description)
	if err != nil {
		return nil, err
	}

	texts, err := validateOptionTexts(in.Options)
	if err != nil {
		return nil, err
	}

	if err := validateExpiry(in.ExpiresAt, time.Now()); err != nil {
		return nil, err
	}

	existing := make(map[string]model.Option, len(poll.Options))
	for _, opt := range poll.Options {
		existing[opt.Text] = opt
	}

	options := make([]model.Option, 0, len(texts))
	for _, text := range texts {
		if opt, ok := existing[text]; ok {
			options = append(options, opt)
		} else {
			options = append(options, model.Option{Text: text})
		}
	}

	poll.Title = title
	poll.Description = description
	poll.IsPublic = in.IsPublic
	poll.AllowMultipleVotes = in.AllowMultipleVotes
	poll.AllowAddOptions = in.AllowAddOptions
	poll.ExpiresAt = in.ExpiresAt
	poll.Options = options

	if err := s.polls.Update(ctx, poll); err != nil {
		s.logger.Error("failed to update poll",
			slog.String("id", pollID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating poll: %w", err)
	}

	s.logger.Info("poll updated", slog.String("id", pollID))

	// Reload so counters and derived totals reflect any option removals.
	return s.polls.GetByID(ctx, pollID)
}

// Delete removes a poll. Only the creator may delete; options and votes are
// removed with it.
func (s *PollService) Delete(ctx context.Context, userID, pollID string) error {
	if userID == "" {
		return apperror.Unauthorized("authentication required")
	}

	poll, err := s.Get(ctx, userID, pollID)
	if err != nil {
		return err
	}
	if poll.CreatorID != userID {
		return apperror.Forbidden("only the creator may delete this poll")
	}

	if err := s.polls.Delete(ctx, pollID); err != nil {
		return err
	}

	s.logger.Info("poll deleted", slog.String("id", pollID))
	return nil
}

// AddOption implements the option-addition policy: appends a new zero-vote
// option to an existing poll. The AllowAddOptions gate applies to everyone,
// creator included; a creator reshapes a locked poll through Update instead.
// Nobody may extend an expired poll.
func (s *PollService) AddOption(ctx context.Context, userID, pollID, text string) (*model.Poll, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	poll, err := s.Get(ctx, userID, pollID)
	if err != nil {
		return nil, err
	}

	if !poll.AllowAddOptions {
		return nil, apperror.Conflict("this poll does not allow adding options")
	}

	if poll.Expired(time.Now()) {
		return nil, apperror.Expired("poll", pollID)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "option text is required")
	}
	if len(text) > MaxOptionTextLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("option text must be %d characters or less", MaxOptionTextLength))
	}
	for _, opt := range poll.Options {
		if opt.Text == text {
			return nil, apperror.ValidationFailed("text", "an option with this text already exists")
		}
	}
	if len(poll.Options) >= MaxOptions {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("a poll can have at most %d options", MaxOptions))
	}

	opt := &model.Option{PollID: pollID, Text: text}
	if err := s.polls.AddOption(ctx, opt); err != nil {
		s.logger.Error("failed to add option",
			slog.String("pollID", pollID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("adding option: %w", err)
	}

	s.logger.Info("option added",
		slog.String("pollID", pollID),
		slog.String("optionID", opt.ID),
	)

	return s.polls.GetByID(ctx, pollID)
}

// DashboardStats returns the per-user dashboard counters.
func (s *PollService) DashboardStats(ctx context.Context, userID string) (*model.DashboardStats, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	stats, err := s.polls.DashboardStats(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load dashboard stats",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("loading dashboard stats: %w", err)
	}

	return stats, nil
}

func validateTitleAndDescription(title, description string) (string, string, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	if len(title) < MinTitleLength || len(title) > MaxTitleLength {
		return "", "", apperror.ValidationFailed("title",
			fmt.Sprintf("title must be between %d and %d characters", MinTitleLength, MaxTitleLength))
	}
	if len(description) > MaxDescriptionLength {
		return "", "", apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}

	return title, description, nil
}

func validateOptionTexts(options []string) ([]string, error) {
	texts := make([]string, 0, len(options))
	seen := make(map[string]bool, len(options))

	for _, raw := range options {
		text := strings.TrimSpace(raw)
		if text == "" {
			return nil, apperror.ValidationFailed("options", "option text must not be empty")
		}
		if len(text) > MaxOptionTextLength {
			return nil, apperror.ValidationFailed("options",
				fmt.Sprintf("option text must be %d characters or less", MaxOptionTextLength))
		}
		if seen[text] {
			return nil, apperror.ValidationFailed("options",
				fmt.Sprintf("duplicate option %q", text))
		}
		seen[text] = true
		texts = append(texts, text)
	}

	if len(texts) < MinOptions {
		return nil, apperror.ValidationFailed("options",
			fmt.Sprintf("a poll needs at least %d options", MinOptions))
	}
	if len(texts) > MaxOptions {
		return nil, apperror.ValidationFailed("options",
			fmt.Sprintf("a poll can have at most %d options", MaxOptions))
	}

	return texts, nil
}

func validateExpiry(expiresAt *time.Time, now time.Time) error {
	if expiresAt == nil {
		return nil
	}
	if !expiresAt.After(now) {
		return apperror.ValidationFailed("expiresAt", "expiry must be in the future")
	}
	if expiresAt.After(now.Add(MaxPollLifetime)) {
		return apperror.ValidationFailed("expiresAt", "expiry must be within one year")
	}
	return nil
}
