package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/polly-app/polly/internal/auth"
	"github.com/polly-app/polly/internal/model"
	"github.com/polly-app/polly/internal/service"
	"github.com/polly-app/polly/internal/tally"
)

// PollHandler exposes the poll lifecycle: create, read, list, update, delete,
// option addition, results, and the dashboard counters.
type PollHandler struct {
	polls  *service.PollService
	votes  *service.VoteService
	logger *slog.Logger
}

func NewPollHandler(polls *service.PollService, votes *service.VoteService, logger *slog.Logger) *PollHandler {
	return &PollHandler{polls: polls, votes: votes, logger: logger}
}

type pollRequest struct {
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Options            []string   `json:"options"`
	IsPublic           *bool      `json:"isPublic"`
	AllowMultipleVotes bool       `json:"allowMultipleVotes"`
	AllowAddOptions    bool       `json:"allowAddOptions"`
	ExpiresAt          *time.Time `json:"expiresAt"`
}

func (req *pollRequest) toInput() service.PollInput {
	in := service.PollInput{
		Title:              req.Title,
		Description:        req.Description,
		Options:            req.Options,
		IsPublic:           true, // default when the field is omitted
		AllowMultipleVotes: req.AllowMultipleVotes,
		AllowAddOptions:    req.AllowAddOptions,
		ExpiresAt:          req.ExpiresAt,
	}
	if req.IsPublic != nil {
		in.IsPublic = *req.IsPublic
	}
	return in
}

// pollResponse decorates a poll with the requesting viewer's voting state.
type pollResponse struct {
	*model.Poll
	HasVoted  bool     `json:"hasVoted"`
	UserVotes []string `json:"userVotes,omitempty"` // option IDs the viewer holds
}

type listResponse struct {
	Polls []pollResponse `json:"polls"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// HandleCreate creates a poll owned by the authenticated user.
//
// HTTP: POST /api/polls (RequireAuth)
func (h *PollHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req pollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	poll, err := h.polls.Create(r.Context(), userID, req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pollResponse{Poll: poll})
}

// HandleGet returns one poll with the viewer's voting state attached.
//
// HTTP: GET /api/polls/{pollID} (OptionalAuth)
func (h *PollHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	pollID := chi.URLParam(r, "pollID")

	poll, err := h.polls.Get(r.Context(), viewerID, pollID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.decorate(r, viewerID, poll)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleList returns a page of polls visible to the viewer.
//
// HTTP: GET /api/polls?page=&limit=&search=&sort=&order= (OptionalAuth)
func (h *PollHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	params := listParamsFromQuery(r)

	polls, total, err := h.polls.List(r.Context(), viewerID, params)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeList(w, r, viewerID, polls, total, params)
}

// HandleListMine returns the authenticated user's own polls, private included.
//
// HTTP: GET /api/polls/mine (RequireAuth)
func (h *PollHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	params := listParamsFromQuery(r)

	polls, total, err := h.polls.ListMine(r.Context(), userID, params)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeList(w, r, userID, polls, total, params)
}

// HandleListVoted returns the polls the authenticated user has voted on.
//
// HTTP: GET /api/polls/voted (RequireAuth)
func (h *PollHandler) HandleListVoted(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	params := listParamsFromQuery(r)

	polls, total, err := h.polls.ListVoted(r.Context(), userID, params)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeList(w, r, userID, polls, total, params)
}

// HandleUpdate rewrites a poll's settings and option set. Creator only.
//
// HTTP: PUT /api/polls/{pollID} (RequireAuth)
func (h *PollHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	pollID := chi.URLParam(r, "pollID")

	var req pollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	poll, err := h.polls.Update(r.Context(), userID, pollID, req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.decorate(r, userID, poll)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleDelete removes a poll and everything under it. Creator only.
//
// HTTP: DELETE /api/polls/{pollID} (RequireAuth)
func (h *PollHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	pollID := chi.URLParam(r, "pollID")

	if err := h.polls.Delete(r.Context(), userID, pollID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type addOptionRequest struct {
	Text string `json:"text"`
}

// HandleAddOption appends one option to an existing poll.
//
// HTTP: POST /api/polls/{pollID}/options (RequireAuth)
func (h *PollHandler) HandleAddOption(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	pollID := chi.URLParam(r, "pollID")

	var req addOptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	poll, err := h.polls.AddOption(r.Context(), userID, pollID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.decorate(r, userID, poll)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleResults returns the tallied results: per-option counts, integer
// percentages, and winner marks.
//
// HTTP: GET /api/polls/{pollID}/results (OptionalAuth)
func (h *PollHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	pollID := chi.URLParam(r, "pollID")

	poll, err := h.polls.Get(r.Context(), viewerID, pollID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tally.Compute(poll))
}

// HandleDashboardStats returns the authenticated user's dashboard counters.
//
// HTTP: GET /api/dashboard/stats (RequireAuth)
func (h *PollHandler) HandleDashboardStats(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	stats, err := h.polls.DashboardStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// decorate attaches the viewer's voting state to a poll response.
func (h *PollHandler) decorate(r *http.Request, viewerID string, poll *model.Poll) (pollResponse, error) {
	resp := pollResponse{Poll: poll}

	votes, err := h.votes.UserVotes(r.Context(), viewerID, poll.ID)
	if err != nil {
		return resp, err
	}
	for _, v := range votes {
		resp.UserVotes = append(resp.UserVotes, v.OptionID)
	}
	resp.HasVoted = len(resp.UserVotes) > 0

	return resp, nil
}

func (h *PollHandler) writeList(w http.ResponseWriter, r *http.Request, viewerID string, polls []model.Poll, total int, params service.ListParams) {
	resp := listResponse{
		Polls: make([]pollResponse, 0, len(polls)),
		Total: total,
		Page:  params.Page,
		Limit: params.Limit,
	}
	if resp.Page < 1 {
		resp.Page = 1
	}
	if resp.Limit < 1 {
		resp.Limit = service.DefaultListLimit
	}

	for i := range polls {
		decorated, err := h.decorate(r, viewerID, &polls[i])
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Polls = append(resp.Polls, decorated)
	}

	writeJSON(w, http.StatusOK, resp)
}

func listParamsFromQuery(r *http.Request) service.ListParams {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return service.ListParams{
		Page:      page,
		Limit:     limit,
		Search:    q.Get("search"),
		SortBy:    q.Get("sort"),
		SortOrder: q.Get("order"),
	}
}
