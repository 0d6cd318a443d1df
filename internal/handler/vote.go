package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/polly-app/polly/internal/auth"
	"github.com/polly-app/polly/internal/service"
)

// VoteHandler exposes vote casting and withdrawal.
type VoteHandler struct {
	polls  *service.PollService
	votes  *service.VoteService
	logger *slog.Logger
}

func NewVoteHandler(polls *service.PollService, votes *service.VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{polls: polls, votes: votes, logger: logger}
}

type castRequest struct {
	OptionIDs []string `json:"optionIds"`
}

// HandleCast records the authenticated user's vote and returns the poll with
// refreshed counts. Re-casting an identical selection succeeds unchanged.
//
// HTTP: POST /api/polls/{pollID}/vote (RequireAuth)
func (h *VoteHandler) HandleCast(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	pollID := chi.URLParam(r, "pollID")

	var req castRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	votes, err := h.votes.Cast(r.Context(), userID, pollID, req.OptionIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	poll, err := h.polls.Get(r.Context(), userID, pollID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := pollResponse{Poll: poll, HasVoted: true}
	for _, v := range votes {
		resp.UserVotes = append(resp.UserVotes, v.OptionID)
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleWithdraw removes all of the user's votes on a poll. Withdrawing with
// nothing held still returns 200.
//
// HTTP: DELETE /api/polls/{pollID}/vote (RequireAuth)
func (h *VoteHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	pollID := chi.URLParam(r, "pollID")

	if err := h.votes.Withdraw(r.Context(), userID, pollID); err != nil {
		writeError(w, err)
		return
	}

	poll, err := h.polls.Get(r.Context(), userID, pollID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pollResponse{Poll: poll})
}
