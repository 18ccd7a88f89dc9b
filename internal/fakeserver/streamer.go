package fakeserver

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Streamer emits synthetic votes to every connected session.
type Streamer struct {
	server   *Server
	entities []string
	interval time.Duration
	rng      *rand.Rand
	logger   *zap.Logger
}

// NewStreamer creates a Streamer voting for entities every interval.
func NewStreamer(server *Server, entities []string, interval time.Duration, logger *zap.Logger) *Streamer {
	if len(entities) == 0 {
		entities = []string{"264811613708746752"}
	}
	return &Streamer{
		server:   server,
		entities: entities,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger,
	}
}

// Run starts the streaming loop. Call in a goroutine.
// Returns when context is cancelled.
func (s *Streamer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("streamer started",
		zap.Duration("interval", s.interval),
		zap.Strings("entities", s.entities),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("streamer stopping")
			return

		case <-ticker.C:
			s.sendNext()
		}
	}
}

// sendNext broadcasts one vote, or a reminder one time in ten.
func (s *Streamer) sendNext() {
	if s.server.Sessions() == 0 {
		return
	}

	entity := s.entities[s.rng.Intn(len(s.entities))]
	user := strconv.FormatInt(100000000000000000+s.rng.Int63n(900000000000000000), 10)

	if s.rng.Intn(10) == 0 {
		ts, err := s.server.SendReminder(user, entity)
		if err != nil {
			s.logger.Debug("failed to send reminder", zap.Error(err))
			return
		}
		s.logger.Debug("sent reminder", zap.String("user", user), zap.Int64("ts", ts))
		return
	}

	ts, err := s.server.SendVote(Vote{
		UserID:    user,
		EntityID:  entity,
		IsWeekend: s.server.Store().Weekend(),
	})
	if err != nil {
		s.logger.Debug("failed to send vote", zap.Error(err))
		return
	}
	s.logger.Debug("sent vote",
		zap.String("user", user),
		zap.String("entity", entity),
		zap.Int64("ts", ts),
	)
}
