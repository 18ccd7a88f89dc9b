package votes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/votestream/internal/fakeserver"
)

const (
	token  = "vs-token"
	xetera = "205680187394752512"
)

func setup(t *testing.T, cfg Config) (*Client, *fakeserver.Server) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	srv := fakeserver.New(fakeserver.Config{Token: token}, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg.BaseURL = ts.URL + "/v1"
	return New(cfg, logger, nil), srv
}

func boolPtr(b bool) *bool { return &b }

func TestNoToken(t *testing.T) {
	c, srv := setup(t, Config{})

	res := c.GetUser(context.Background(), xetera)
	assert.False(t, res.OK())
	assert.Equal(t, "token not provided", res.Message())

	reminders := c.SetUserReminders(context.Background(), xetera, nil)
	assert.Equal(t, "token not provided", reminders.Message())

	assert.Zero(t, srv.Requests(http.MethodGet, "/v1/users/"+xetera))
}

func TestGetUser(t *testing.T) {
	c, srv := setup(t, Config{Token: token})

	res := c.GetUser(context.Background(), xetera)
	require.True(t, res.OK(), res.Message())
	assert.Equal(t, User{ID: xetera, Username: "Xetera", RemindersEnabled: true}, res.Value())

	c.GetUser(context.Background(), xetera)
	assert.Equal(t, 1, srv.Requests(http.MethodGet, "/v1/users/"+xetera))
}

func TestGetUser_Unauthorized(t *testing.T) {
	c, _ := setup(t, Config{Token: "wrong"})

	res := c.GetUser(context.Background(), xetera)
	assert.False(t, res.OK())
	assert.Equal(t, "401 Unauthorized: Unauthorized", res.Message())
}

func TestSetUserReminders_RejectsNil(t *testing.T) {
	c, srv := setup(t, Config{Token: token})

	res := c.SetUserReminders(context.Background(), xetera, nil)
	assert.False(t, res.OK())
	assert.Equal(t, "remindersEnabled must be true or false", res.Message())
	assert.Zero(t, srv.Requests(http.MethodPatch, "/v1/users/"+xetera))
}

func TestSetUserReminders_InvalidatesUser(t *testing.T) {
	c, srv := setup(t, Config{Token: token})
	ctx := context.Background()

	require.True(t, c.GetUser(ctx, xetera).Value().RemindersEnabled)
	require.True(t, c.GetUserVotes(ctx, xetera, VotesQuery{}).OK())

	res := c.SetUserReminders(ctx, xetera, boolPtr(false))
	require.True(t, res.OK(), res.Message())
	assert.False(t, res.Value().RemindersEnabled)

	user := c.GetUser(ctx, xetera)
	require.True(t, user.OK())
	assert.False(t, user.Value().RemindersEnabled)
	assert.Equal(t, 2, srv.Requests(http.MethodGet, "/v1/users/"+xetera))

	c.GetUserVotes(ctx, xetera, VotesQuery{})
	assert.Equal(t, 1, srv.Requests(http.MethodGet, "/v1/users/"+xetera+"/votes"), "vote history stays cached")
}

func TestVotesPaging(t *testing.T) {
	c, srv := setup(t, Config{Token: token})
	for i := int64(1); i <= 5; i++ {
		srv.Store().AddVote(fakeserver.Vote{UserID: "u", EntityID: "bot", CreatedAt: i})
	}

	page := c.GetEntityVotes(context.Background(), "bot", VotesQuery{Limit: 2})
	require.True(t, page.OK(), page.Message())
	require.Len(t, page.Value().Votes, 2)
	assert.True(t, page.Value().HasMore)
	assert.Equal(t, int64(5), page.Value().Votes[0].CreatedAt)

	last := page.Value().Votes[1].CreatedAt
	page = c.GetUserVotes(context.Background(), "u", VotesQuery{Limit: 10, Before: last})
	require.True(t, page.OK(), page.Message())
	require.Len(t, page.Value().Votes, 3)
	assert.False(t, page.Value().HasMore)
	assert.Equal(t, int64(3), page.Value().Votes[0].CreatedAt)
	assert.Equal(t, int64(3), page.Value().Votes[0].Time().UnixMilli())
}

func TestHasVoted(t *testing.T) {
	c, srv := setup(t, Config{Token: token})
	srv.Store().AddVote(fakeserver.Vote{UserID: "u", EntityID: "bot", CreatedAt: 1})

	res := c.HasVoted(context.Background(), "bot", "u")
	require.True(t, res.OK(), res.Message())
	assert.True(t, res.Value())

	res = c.HasVoted(context.Background(), "other", "u")
	require.True(t, res.OK())
	assert.False(t, res.Value())
}

func TestHasVoted_PropagatesFailure(t *testing.T) {
	c, _ := setup(t, Config{Token: "wrong"})

	inner := c.GetUserVotes(context.Background(), "u", VotesQuery{Limit: hasVotedWindow})
	res := c.HasVoted(context.Background(), "bot", "u")

	assert.False(t, res.OK())
	assert.Equal(t, inner.Message(), res.Message())
}
