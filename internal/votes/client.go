// Package votes wraps the vote service's REST API: users, their reminder
// setting and vote history.
package votes

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/votestream/internal/api"
	"github.com/dgnsrekt/votestream/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.votestream.dev/v1"
	NoTokenMessage = "token not provided"

	// hasVotedWindow is how many recent votes HasVoted inspects.
	hasVotedWindow = 100

	apiName = "votes"
)

// User is a vote-service user.
type User struct {
	ID               string `json:"id"`
	Username         string `json:"username,omitempty"`
	RemindersEnabled bool   `json:"remindersEnabled"`
}

// Vote is one recorded vote. CreatedAt is in milliseconds since the epoch
// and matches the gateway marker of the frame that announced it.
type Vote struct {
	UserID    string `json:"userId"`
	EntityID  string `json:"entityId"`
	IsWeekend bool   `json:"isWeekend"`
	Query     string `json:"query,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// Time returns CreatedAt as a time.
func (v Vote) Time() time.Time {
	return time.UnixMilli(v.CreatedAt)
}

// VotesPage is one page of votes, newest first.
type VotesPage struct {
	Votes   []Vote `json:"votes"`
	HasMore bool   `json:"hasMore"`
}

// VotesQuery pages through votes. Before is an exclusive CreatedAt bound;
// zero fields are omitted.
type VotesQuery struct {
	Limit  int
	Before int64
}

func (q VotesQuery) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Before > 0 {
		v.Set("before", strconv.FormatInt(q.Before, 10))
	}
	return v
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Token      string
	CacheTTL   time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client is the vote-service API wrapper.
type Client struct {
	api *api.Client
}

// New creates a Client. m may be nil.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	transport := api.NewTransport(api.TransportConfig{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
	}, logger)

	return &Client{
		api: api.NewClient(transport, api.ClientConfig{
			Name:           apiName,
			NoTokenMessage: NoTokenMessage,
			CacheTTL:       cfg.CacheTTL,
			Recorder:       m.CacheRecorder(apiName),
			OnRateLimited:  func() { m.RateLimited(apiName) },
			Now:            cfg.Now,
		}, logger),
	}
}

// API exposes the underlying caching client.
func (c *Client) API() *api.Client {
	return c.api
}

// GetUser fetches a user.
func (c *Client) GetUser(ctx context.Context, id string) api.Result[User] {
	if id == "" {
		return fail[User](c, "user id is required")
	}
	return api.Get[User](ctx, c.api, userPath(id), nil)
}

// GetUserVotes lists votes cast by a user.
func (c *Client) GetUserVotes(ctx context.Context, id string, q VotesQuery) api.Result[VotesPage] {
	if id == "" {
		return fail[VotesPage](c, "user id is required")
	}
	return api.Get[VotesPage](ctx, c.api, userPath(id)+"/votes", q.values())
}

// GetEntityVotes lists votes received by an entity.
func (c *Client) GetEntityVotes(ctx context.Context, id string, q VotesQuery) api.Result[VotesPage] {
	if id == "" {
		return fail[VotesPage](c, "entity id is required")
	}
	return api.Get[VotesPage](ctx, c.api, "/entities/"+url.PathEscape(id)+"/votes", q.values())
}

// SetUserReminders turns vote reminders on or off. A nil enabled is
// rejected without a request. On success the cached user is dropped.
func (c *Client) SetUserReminders(ctx context.Context, id string, enabled *bool) api.Result[User] {
	if id == "" {
		return fail[User](c, "user id is required")
	}
	if enabled == nil {
		return fail[User](c, "remindersEnabled must be true or false")
	}
	path := userPath(id)
	body := map[string]bool{"remindersEnabled": *enabled}
	return api.Send[User](ctx, c.api, http.MethodPatch, path, body, path)
}

// HasVoted reports whether userID has a recent vote for entityID.
func (c *Client) HasVoted(ctx context.Context, entityID, userID string) api.Result[bool] {
	if entityID == "" {
		return fail[bool](c, "entity id is required")
	}
	res := c.GetUserVotes(ctx, userID, VotesQuery{Limit: hasVotedWindow})
	return api.Map(res, func(p VotesPage) bool {
		for _, v := range p.Votes {
			if v.EntityID == entityID {
				return true
			}
		}
		return false
	})
}

func userPath(id string) string {
	return "/users/" + url.PathEscape(id)
}

func fail[T any](c *Client, msg string) api.Result[T] {
	if refusal, ok := c.api.Precheck(); !ok {
		return api.Failure[T](refusal)
	}
	return api.Failure[T](msg)
}
