package votestream

import (
	"github.com/dgnsrekt/votestream/internal/api"
	"github.com/dgnsrekt/votestream/internal/checkpoint"
	"github.com/dgnsrekt/votestream/internal/gateway"
	"github.com/dgnsrekt/votestream/internal/topgg"
	"github.com/dgnsrekt/votestream/internal/votes"
)

// Gateway events.
type (
	Ready         = gateway.Ready
	Vote          = gateway.Vote
	Test          = gateway.Test
	Reminder      = gateway.Reminder
	UnknownOp     = gateway.UnknownOp
	Disconnect    = gateway.Disconnect
	State         = gateway.State
	ProtocolError = gateway.ProtocolError
)

// Result is the outcome of an API call: a value or a failure message.
type Result[T any] = api.Result[T]

// Bot-listing API types.
type (
	Bot          = topgg.Bot
	BotsQuery    = topgg.BotsQuery
	BotsResponse = topgg.BotsResponse
	BotStats     = topgg.BotStats
	Voter        = topgg.Voter
	TopggUser    = topgg.User
)

// Vote-service API types.
type (
	User       = votes.User
	VoteRecord = votes.Vote
	VotesPage  = votes.VotesPage
	VotesQuery = votes.VotesQuery
)

const (
	StateIdle    = gateway.StateIdle
	StateOpening = gateway.StateOpening
	StateOpen    = gateway.StateOpen
	StateClosing = gateway.StateClosing
	StateClosed  = gateway.StateClosed
)

// Event names.
const (
	EventReady        = gateway.EventReady
	EventVote         = gateway.EventVote
	EventTest         = gateway.EventTest
	EventReminder     = gateway.EventReminder
	EventUnknownOp    = gateway.EventUnknownOp
	EventDisconnected = gateway.EventDisconnected
	EventError        = gateway.EventError
)

var (
	ErrAlreadyConnected  = gateway.ErrAlreadyConnected
	ErrDisconnectTimeout = gateway.ErrDisconnectTimeout
	ErrPersistence       = checkpoint.ErrPersistence
)
