package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The tests here exercise the whole stack — router, middleware, handlers,
// services, and the real SQLite store — through plain HTTP calls. Each test
// server runs on its own in-memory database.

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(Config{
		DBPath:    ":memory:",
		JWTSecret: "integration-test-secret-0123456789",
	}, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

// client returns an HTTP client with a cookie jar, so the session cookie set
// at registration rides along on later requests like a browser would send it.
func client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func postJSON(t *testing.T, c *http.Client, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := c.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func doJSON(t *testing.T, c *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func register(t *testing.T, c *http.Client, baseURL, email string) map[string]any {
	t.Helper()
	resp := postJSON(t, c, baseURL+"/api/auth/register", map[string]string{
		"email":    email,
		"username": "tester",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user map[string]any
	decodeBody(t, resp, &user)
	return user
}

func createPoll(t *testing.T, c *http.Client, baseURL string, body map[string]any) map[string]any {
	t.Helper()
	resp := postJSON(t, c, baseURL+"/api/polls", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var poll map[string]any
	decodeBody(t, resp, &poll)
	return poll
}

func optionIDs(t *testing.T, poll map[string]any) []string {
	t.Helper()
	raw, ok := poll["options"].([]any)
	require.True(t, ok, "poll has no options array: %v", poll)
	ids := make([]string, len(raw))
	for i, o := range raw {
		ids[i] = o.(map[string]any)["id"].(string)
	}
	return ids
}

func TestRegisterLoginAndMe(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)

	user := register(t, c, ts.URL, "alice@example.com")
	assert.Equal(t, "alice@example.com", user["email"])
	assert.NotContains(t, user, "passwordHash", "hash must never serialize")

	// The session cookie from registration authenticates /api/me.
	resp, err := c.Get(ts.URL + "/api/me")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var me map[string]any
	decodeBody(t, resp, &me)
	assert.Equal(t, user["id"], me["id"])

	// Logout clears the cookie; /api/me turns 401.
	resp = postJSON(t, c, ts.URL+"/api/auth/logout", nil)
	resp.Body.Close()

	resp, err = c.Get(ts.URL + "/api/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A fresh client can log back in with the password.
	c2 := client(t)
	resp = postJSON(t, c2, ts.URL+"/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)
	register(t, c, ts.URL, "bob@example.com")

	resp := postJSON(t, client(t), ts.URL+"/api/auth/login", map[string]string{
		"email":    "bob@example.com",
		"password": "wrong-password",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreatePollRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, client(t), ts.URL+"/api/polls", map[string]any{
		"title":   "Anonymous poll",
		"options": []string{"a", "b"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPollLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)
	register(t, c, ts.URL, "carol@example.com")

	poll := createPoll(t, c, ts.URL, map[string]any{
		"title":       "Team lunch?",
		"description": "weekly vote",
		"options":     []string{"Pizza", "Sushi", "Tacos"},
	})
	pollID := poll["id"].(string)
	assert.Equal(t, float64(0), poll["totalVotes"])

	// Anonymous viewers can read a public poll.
	resp, err := client(t).Get(ts.URL + "/api/polls/" + pollID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Update the title.
	resp = doJSON(t, c, http.MethodPut, ts.URL+"/api/polls/"+pollID, map[string]any{
		"title":   "Team lunch (final)?",
		"options": []string{"Pizza", "Sushi", "Tacos"},
	})
	var updated map[string]any
	decodeBody(t, resp, &updated)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Team lunch (final)?", updated["title"])

	// A stranger cannot delete it.
	c2 := client(t)
	register(t, c2, ts.URL, "mallory@example.com")
	resp = doJSON(t, c2, http.MethodDelete, ts.URL+"/api/polls/"+pollID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The creator can.
	resp = doJSON(t, c, http.MethodDelete, ts.URL+"/api/polls/"+pollID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = client(t).Get(ts.URL + "/api/polls/" + pollID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVoteFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	creator := client(t)
	register(t, creator, ts.URL, "owner@example.com")
	poll := createPoll(t, creator, ts.URL, map[string]any{
		"title":   "A or B?",
		"options": []string{"A", "B"},
	})
	pollID := poll["id"].(string)
	opts := optionIDs(t, poll)

	voter := client(t)
	register(t, voter, ts.URL, "voter@example.com")

	// Vote A.
	resp := postJSON(t, voter, ts.URL+"/api/polls/"+pollID+"/vote", map[string]any{
		"optionIds": []string{opts[0]},
	})
	var after map[string]any
	decodeBody(t, resp, &after)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, after["hasVoted"])
	assert.Equal(t, float64(1), after["totalVotes"])

	// Revote B: the vote moves, the total stays 1.
	resp = postJSON(t, voter, ts.URL+"/api/polls/"+pollID+"/vote", map[string]any{
		"optionIds": []string{opts[1]},
	})
	decodeBody(t, resp, &after)
	assert.Equal(t, float64(1), after["totalVotes"])
	assert.Equal(t, []any{opts[1]}, after["userVotes"].([]any))

	// Selecting both options on a single-vote poll is a conflict.
	resp = postJSON(t, voter, ts.URL+"/api/polls/"+pollID+"/vote", map[string]any{
		"optionIds": []string{opts[0], opts[1]},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// An unknown option is a validation error.
	resp = postJSON(t, voter, ts.URL+"/api/polls/"+pollID+"/vote", map[string]any{
		"optionIds": []string{"bogus"},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Results: B holds 100% and is the sole winner.
	resp, err := voter.Get(ts.URL + "/api/polls/" + pollID + "/results")
	require.NoError(t, err)
	var results struct {
		TotalVotes int `json:"totalVotes"`
		Options    []struct {
			OptionID   string `json:"optionId"`
			Votes      int    `json:"votes"`
			Percentage int    `json:"percentage"`
			Winning    bool   `json:"winning"`
		} `json:"options"`
	}
	decodeBody(t, resp, &results)
	require.Len(t, results.Options, 2)
	assert.Equal(t, 1, results.TotalVotes)
	assert.Equal(t, 0, results.Options[0].Percentage)
	assert.Equal(t, 100, results.Options[1].Percentage)
	assert.False(t, results.Options[0].Winning)
	assert.True(t, results.Options[1].Winning)

	// Withdraw resets the voter's state.
	resp = doJSON(t, voter, http.MethodDelete, ts.URL+"/api/polls/"+pollID+"/vote", nil)
	decodeBody(t, resp, &after)
	assert.Equal(t, float64(0), after["totalVotes"])
	assert.Equal(t, false, after["hasVoted"])
}

func TestAddOptionPolicyOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	creator := client(t)
	register(t, creator, ts.URL, "owner@example.com")
	poll := createPoll(t, creator, ts.URL, map[string]any{
		"title":           "Locked options",
		"options":         []string{"a", "b"},
		"allowAddOptions": false,
	})
	pollID := poll["id"].(string)

	// The allowAddOptions flag gates everyone, the creator included.
	other := client(t)
	register(t, other, ts.URL, "other@example.com")
	for _, c := range []*http.Client{other, creator} {
		resp := postJSON(t, c, ts.URL+"/api/polls/"+pollID+"/options", map[string]string{"text": "c"})
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	}

	// On an open poll any authenticated user may append.
	open := createPoll(t, creator, ts.URL, map[string]any{
		"title":           "Open options",
		"options":         []string{"a", "b"},
		"allowAddOptions": true,
	})
	openID := open["id"].(string)
	resp := postJSON(t, other, ts.URL+"/api/polls/"+openID+"/options", map[string]string{"text": "c"})
	var updated map[string]any
	decodeBody(t, resp, &updated)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, updated["options"].([]any), 3)
}

func TestPrivatePollHiddenOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	creator := client(t)
	register(t, creator, ts.URL, "owner@example.com")
	poll := createPoll(t, creator, ts.URL, map[string]any{
		"title":    "Private matters",
		"options":  []string{"a", "b"},
		"isPublic": false,
	})
	pollID := poll["id"].(string)

	// The creator still sees it.
	resp, err := creator.Get(ts.URL + "/api/polls/" + pollID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Anonymous viewers get 404, not 403 — the poll's existence is hidden.
	resp, err = client(t).Get(ts.URL + "/api/polls/" + pollID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDashboardStatsOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	c := client(t)
	register(t, c, ts.URL, "stats@example.com")
	poll := createPoll(t, c, ts.URL, map[string]any{
		"title":   "Self vote",
		"options": []string{"a", "b"},
	})
	opts := optionIDs(t, poll)

	resp := postJSON(t, c, ts.URL+"/api/polls/"+poll["id"].(string)+"/vote", map[string]any{
		"optionIds": []string{opts[0]},
	})
	resp.Body.Close()

	resp, err := c.Get(ts.URL + "/api/dashboard/stats")
	require.NoError(t, err)
	var stats map[string]any
	decodeBody(t, resp, &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), stats["pollsCreated"])
	assert.Equal(t, float64(1), stats["pollsVoted"])
	assert.Equal(t, float64(1), stats["totalVotes"])
}

func TestValidationErrorsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)
	register(t, c, ts.URL, "val@example.com")

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "title too short", body: map[string]any{"title": "ab", "options": []string{"a", "b"}}},
		{name: "one option", body: map[string]any{"title": "Valid title", "options": []string{"a"}}},
		{name: "duplicate options", body: map[string]any{"title": "Valid title", "options": []string{"a", "a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, c, ts.URL+"/api/polls", tt.body)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "validation_error", body["error"])
		})
	}
}

func TestListPaginationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	c := client(t)
	register(t, c, ts.URL, "pager@example.com")

	for i := 0; i < 12; i++ {
		createPoll(t, c, ts.URL, map[string]any{
			"title":   fmt.Sprintf("Poll number %02d", i),
			"options": []string{"a", "b"},
		})
	}

	resp, err := c.Get(ts.URL + "/api/polls?page=2&limit=5")
	require.NoError(t, err)
	var page map[string]any
	decodeBody(t, resp, &page)
	assert.Equal(t, float64(12), page["total"])
	assert.Equal(t, float64(2), page["page"])
	assert.Len(t, page["polls"].([]any), 5)
}
