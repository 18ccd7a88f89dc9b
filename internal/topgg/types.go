package topgg

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Bot is a listed bot.
type Bot struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"clientid,omitempty"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator"`
	Avatar        string    `json:"avatar,omitempty"`
	DefAvatar     string    `json:"defAvatar,omitempty"`
	Prefix        string    `json:"prefix"`
	ShortDesc     string    `json:"shortdesc"`
	LongDesc      string    `json:"longdesc,omitempty"`
	Tags          []string  `json:"tags"`
	Website       string    `json:"website,omitempty"`
	Support       string    `json:"support,omitempty"`
	GitHub        string    `json:"github,omitempty"`
	Owners        []string  `json:"owners"`
	Guilds        []string  `json:"guilds,omitempty"`
	Invite        string    `json:"invite,omitempty"`
	Date          time.Time `json:"date"`
	ServerCount   int       `json:"server_count,omitempty"`
	ShardCount    int       `json:"shard_count,omitempty"`
	CertifiedBot  bool      `json:"certifiedBot"`
	Vanity        string    `json:"vanity,omitempty"`
	Points        int       `json:"points"`
	MonthlyPoints int       `json:"monthlyPoints"`
}

// BotsQuery filters a bot search. Zero fields are omitted.
type BotsQuery struct {
	Limit  int
	Offset int
	Search string
	Sort   string
	Fields []string
}

func (q BotsQuery) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if len(q.Fields) > 0 {
		v.Set("fields", strings.Join(q.Fields, ","))
	}
	return v
}

// BotsResponse is one page of search results.
type BotsResponse struct {
	Results []Bot `json:"results"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Count   int   `json:"count"`
	Total   int   `json:"total"`
}

// BotStats are the server and shard counts a bot posts.
type BotStats struct {
	ServerCount int   `json:"server_count" validate:"gt=0"`
	Shards      []int `json:"shards,omitempty" validate:"omitempty,dive,gte=0"`
	ShardID     *int  `json:"shard_id,omitempty" validate:"omitempty,gte=0"`
	ShardCount  int   `json:"shard_count,omitempty" validate:"gte=0"`
}

// Voter is a user who voted for a bot.
type Voter struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Social holds a user's linked accounts.
type Social struct {
	YouTube   string `json:"youtube,omitempty"`
	Reddit    string `json:"reddit,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	GitHub    string `json:"github,omitempty"`
}

// User is a bot-listing user profile.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar,omitempty"`
	DefAvatar     string `json:"defAvatar,omitempty"`
	Bio           string `json:"bio,omitempty"`
	Banner        string `json:"banner,omitempty"`
	Social        Social `json:"social"`
	Color         string `json:"color,omitempty"`
	Supporter     bool   `json:"supporter"`
	CertifiedDev  bool   `json:"certifiedDev"`
	Mod           bool   `json:"mod"`
	WebMod        bool   `json:"webMod"`
	Admin         bool   `json:"admin"`
}

type checkResponse struct {
	Voted int `json:"voted"`
}

type weekendResponse struct {
	IsWeekend bool `json:"is_weekend"`
}
