package fakeserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const defaultVotesLimit = 50

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) getBot(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.store.Bot(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (s *Server) listBots(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	results, total := s.store.SearchBots(r.URL.Query().Get("search"), limit, offset)

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"limit":   limit,
		"offset":  offset,
		"count":   len(results),
		"total":   total,
	})
}

func (s *Server) getBotStats(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.store.Bot(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"server_count": bot.ServerCount,
		"shard_count":  bot.ShardCount,
		"shards":       bot.Shards,
	})
}

func (s *Server) postBotStats(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ServerCount *int  `json:"server_count"`
		ShardCount  int   `json:"shard_count"`
		Shards      []int `json:"shards"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ServerCount == nil {
		writeError(w, http.StatusBadRequest, "server_count is required")
		return
	}
	if !s.store.SetBotStats(chi.URLParam(r, "id"), *body.ServerCount, body.ShardCount, body.Shards) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getBotVotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	votes := s.store.Votes(func(v Vote) bool { return v.EntityID == id }, 0, 1000)

	voters := make([]map[string]string, 0, len(votes))
	for _, v := range votes {
		name := v.UserID
		if u, ok := s.store.ListingUser(v.UserID); ok {
			name = u.Username
		}
		voters = append(voters, map[string]string{"id": v.UserID, "username": name})
	}
	writeJSON(w, http.StatusOK, voters)
}

func (s *Server) checkVote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	votes := s.store.Votes(func(v Vote) bool { return v.EntityID == id && v.UserID == userID }, 0, 1)
	voted := 0
	if len(votes) > 0 {
		voted = 1
	}
	writeJSON(w, http.StatusOK, map[string]int{"voted": voted})
}

func (s *Server) getListingUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.store.ListingUser(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) getWeekend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"is_weekend": s.store.Weekend()})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.store.User(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) patchUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RemindersEnabled *bool `json:"remindersEnabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RemindersEnabled == nil {
		writeError(w, http.StatusBadRequest, "remindersEnabled must be true or false")
		return
	}
	writeJSON(w, http.StatusOK, s.store.SetReminders(chi.URLParam(r, "id"), *body.RemindersEnabled))
}

func (s *Server) getUserVotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.writeVotes(w, r, func(v Vote) bool { return v.UserID == id })
}

func (s *Server) getEntityVotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.writeVotes(w, r, func(v Vote) bool { return v.EntityID == id })
}

func (s *Server) writeVotes(w http.ResponseWriter, r *http.Request, match func(Vote) bool) {
	limit := queryInt(r, "limit", defaultVotesLimit)
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)

	// One extra row tells us whether there are more.
	votes := s.store.Votes(match, before, limit+1)
	hasMore := len(votes) > limit
	if hasMore {
		votes = votes[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"votes": votes, "hasMore": hasMore})
}
