package fakeserver

import (
	"sort"
	"strings"
	"sync"
)

// Bot is the listing record served under /topgg.
type Bot struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	Discriminator string   `json:"discriminator"`
	Prefix        string   `json:"prefix"`
	ShortDesc     string   `json:"shortdesc"`
	Tags          []string `json:"tags"`
	Owners        []string `json:"owners"`
	Date          string   `json:"date"`
	ServerCount   int      `json:"server_count,omitempty"`
	ShardCount    int      `json:"shard_count,omitempty"`
	Shards        []int    `json:"shards,omitempty"`
	Points        int      `json:"points"`
	MonthlyPoints int      `json:"monthlyPoints"`
}

// ListingUser is a bot-listing user profile.
type ListingUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Bio           string `json:"bio,omitempty"`
	Supporter     bool   `json:"supporter"`
	CertifiedDev  bool   `json:"certifiedDev"`
	Mod           bool   `json:"mod"`
	WebMod        bool   `json:"webMod"`
	Admin         bool   `json:"admin"`
}

// User is a vote-service user.
type User struct {
	ID               string `json:"id"`
	Username         string `json:"username,omitempty"`
	RemindersEnabled bool   `json:"remindersEnabled"`
}

// Vote is a recorded vote. CreatedAt doubles as the gateway marker.
type Vote struct {
	UserID    string `json:"userId"`
	EntityID  string `json:"entityId"`
	IsWeekend bool   `json:"isWeekend"`
	Query     string `json:"query,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// Store is the in-memory data behind both REST surfaces.
type Store struct {
	mu      sync.RWMutex
	bots    map[string]*Bot
	listing map[string]*ListingUser
	users   map[string]*User
	votes   []Vote
	weekend bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		bots:    make(map[string]*Bot),
		listing: make(map[string]*ListingUser),
		users:   make(map[string]*User),
	}
}

// Seed fills the store with a small fixed data set.
func (st *Store) Seed() {
	st.PutBot(Bot{
		ID:            "264811613708746752",
		Username:      "Luca",
		Discriminator: "1375",
		Prefix:        "- or @Luca",
		ShortDesc:     "Luca is a bot for managing and informing members of the server",
		Tags:          []string{"Moderation", "Fun"},
		Owners:        []string{"129908908096487424"},
		Date:          "2017-04-26T18:08:17.125Z",
		ServerCount:   2,
		Points:        397,
		MonthlyPoints: 19,
	})
	st.PutBot(Bot{
		ID:            "422087909634736160",
		Username:      "Tallybot",
		Discriminator: "0001",
		Prefix:        "t!",
		ShortDesc:     "Counts things",
		Tags:          []string{"Utility"},
		Owners:        []string{"205680187394752512"},
		Date:          "2018-03-19T11:02:44.000Z",
		ServerCount:   118,
		Points:        12,
		MonthlyPoints: 3,
	})
	st.PutListingUser(ListingUser{ID: "205680187394752512", Username: "Xetera", Discriminator: "0001", Supporter: true})
	st.PutUser(User{ID: "205680187394752512", Username: "Xetera", RemindersEnabled: true})
	st.PutUser(User{ID: "129908908096487424", Username: "Tonkku"})
}

func (st *Store) PutBot(b Bot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.bots[b.ID] = &b
}

func (st *Store) Bot(id string) (Bot, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	b, ok := st.bots[id]
	if !ok {
		return Bot{}, false
	}
	return *b, true
}

// SearchBots returns bots whose username contains search, ordered by id.
func (st *Store) SearchBots(search string, limit, offset int) ([]Bot, int) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var all []Bot
	for _, b := range st.bots {
		if search == "" || strings.Contains(strings.ToLower(b.Username), strings.ToLower(search)) {
			all = append(all, *b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total
}

// SetBotStats updates the posted stats of bot id.
func (st *Store) SetBotStats(id string, serverCount, shardCount int, shards []int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	b, ok := st.bots[id]
	if !ok {
		return false
	}
	b.ServerCount = serverCount
	b.ShardCount = shardCount
	b.Shards = shards
	return true
}

func (st *Store) PutListingUser(u ListingUser) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.listing[u.ID] = &u
}

func (st *Store) ListingUser(id string) (ListingUser, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	u, ok := st.listing[id]
	if !ok {
		return ListingUser{}, false
	}
	return *u, true
}

func (st *Store) PutUser(u User) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.users[u.ID] = &u
}

func (st *Store) User(id string) (User, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	u, ok := st.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// SetReminders updates the reminder flag, creating the user when needed.
func (st *Store) SetReminders(id string, enabled bool) User {
	st.mu.Lock()
	defer st.mu.Unlock()
	u, ok := st.users[id]
	if !ok {
		u = &User{ID: id}
		st.users[id] = u
	}
	u.RemindersEnabled = enabled
	return *u
}

// AddVote records v.
func (st *Store) AddVote(v Vote) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.votes = append(st.votes, v)
}

// Votes returns matching votes newest first. Zero before means no bound.
func (st *Store) Votes(match func(Vote) bool, before int64, limit int) []Vote {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := []Vote{}
	for i := len(st.votes) - 1; i >= 0; i-- {
		v := st.votes[i]
		if before > 0 && v.CreatedAt >= before {
			continue
		}
		if !match(v) {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (st *Store) SetWeekend(on bool) {
	st.mu.Lock()
	st.weekend = on
	st.mu.Unlock()
}

func (st *Store) Weekend() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.weekend
}
