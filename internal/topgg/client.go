// Package topgg wraps the bot-listing REST API.
//
// Every call returns an api.Result. Responses to GET calls are cached per
// client; a 429 locks the client out for the configured cooldown.
package topgg

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dgnsrekt/votestream/internal/api"
	"github.com/dgnsrekt/votestream/internal/metrics"
)

const (
	DefaultBaseURL           = "https://top.gg/api"
	DefaultRateLimitCooldown = 60 * time.Second
	NoTokenMessage           = "Top.gg token not provided"

	apiName = "topgg"
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	Token             string
	CacheTTL          time.Duration
	RateLimitCooldown time.Duration
	Timeout           time.Duration
	HTTPClient        *http.Client
	Now               func() time.Time
}

// Client is the bot-listing API wrapper.
type Client struct {
	api      *api.Client
	validate *validator.Validate
}

// New creates a Client. m may be nil.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = DefaultRateLimitCooldown
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
			Lockout:        api.NewLockout(cfg.RateLimitCooldown, cfg.Now),
			Recorder:       m.CacheRecorder(apiName),
			OnRateLimited:  func() { m.RateLimited(apiName) },
			Now:            cfg.Now,
		}, logger),
		validate: validator.New(),
	}
}

// API exposes the underlying caching client.
func (c *Client) API() *api.Client {
	return c.api
}

// GetBot fetches a bot by id.
func (c *Client) GetBot(ctx context.Context, id string) api.Result[Bot] {
	if id == "" {
		return fail[Bot](c, "bot id is required")
	}
	return api.Get[Bot](ctx, c.api, botPath(id), nil)
}

// GetBots searches listed bots.
func (c *Client) GetBots(ctx context.Context, q BotsQuery) api.Result[BotsResponse] {
	return api.Get[BotsResponse](ctx, c.api, "/bots", q.values())
}

// GetBotStats fetches the posted stats of a bot.
func (c *Client) GetBotStats(ctx context.Context, id string) api.Result[BotStats] {
	if id == "" {
		return fail[BotStats](c, "bot id is required")
	}
	return api.Get[BotStats](ctx, c.api, botPath(id)+"/stats", nil)
}

// PostBotStats posts stats for a bot. On success the cached stats and bot
// detail are dropped.
func (c *Client) PostBotStats(ctx context.Context, id string, stats BotStats) api.Result[struct{}] {
	if id == "" {
		return fail[struct{}](c, "bot id is required")
	}
	if err := c.validate.Struct(stats); err != nil {
		return fail[struct{}](c, fmt.Sprintf("invalid stats: %v", err))
	}
	path := botPath(id)
	return api.Send[struct{}](ctx, c.api, http.MethodPost, path+"/stats", stats, path+"/stats", path)
}

// GetVotes lists the most recent voters of a bot. Page 0 omits the
// parameter.
func (c *Client) GetVotes(ctx context.Context, id string, page int) api.Result[[]Voter] {
	if id == "" {
		return fail[[]Voter](c, "bot id is required")
	}
	var q url.Values
	if page > 0 {
		q = url.Values{"page": {strconv.Itoa(page)}}
	}
	return api.Get[[]Voter](ctx, c.api, botPath(id)+"/votes", q)
}

// GetUser fetches a user profile.
func (c *Client) GetUser(ctx context.Context, id string) api.Result[User] {
	if id == "" {
		return fail[User](c, "user id is required")
	}
	return api.Get[User](ctx, c.api, "/users/"+url.PathEscape(id), nil)
}

// HasVoted reports whether userID voted for botID in the last 12 hours.
func (c *Client) HasVoted(ctx context.Context, botID, userID string) api.Result[bool] {
	if botID == "" || userID == "" {
		return fail[bool](c, "bot id and user id are required")
	}
	res := api.Get[checkResponse](ctx, c.api, botPath(botID)+"/check", url.Values{"userId": {userID}})
	return api.Map(res, func(r checkResponse) bool { return r.Voted == 1 })
}

// IsWeekend reports whether the weekend vote multiplier is active.
func (c *Client) IsWeekend(ctx context.Context) api.Result[bool] {
	res := api.Get[weekendResponse](ctx, c.api, "/weekend", nil)
	return api.Map(res, func(r weekendResponse) bool { return r.IsWeekend })
}

func botPath(id string) string {
	return "/bots/" + url.PathEscape(id)
}

// fail reports msg unless the call would have been refused anyway, in which
// case the refusal wins.
func fail[T any](c *Client, msg string) api.Result[T] {
	if refusal, ok := c.api.Precheck(); !ok {
		return api.Failure[T](refusal)
	}
	return api.Failure[T](msg)
}
