package gateway

import "time"

// Disconnect describes a closed session.
type Disconnect struct {
	Code   int
	Reason string
	// Reconnecting is true when another attempt has been scheduled.
	Reconnecting bool
	RetryIn      time.Duration
	Attempt      int
}

// Handler receives gateway events. Calls are made from the connection's read
// goroutine in wire order; a slow handler delays the frames behind it.
type Handler interface {
	HandleReady(Ready)
	HandleVote(Vote)
	HandleTest(Test)
	HandleReminder(Reminder)
	HandleUnknownOp(UnknownOp)
	HandleDisconnected(Disconnect)
	HandleError(error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Ready        func(Ready)
	Vote         func(Vote)
	Test         func(Test)
	Reminder     func(Reminder)
	UnknownOp    func(UnknownOp)
	Disconnected func(Disconnect)
	Error        func(error)
}

func (h HandlerFuncs) HandleReady(ev Ready) {
	if h.Ready != nil {
		h.Ready(ev)
	}
}

func (h HandlerFuncs) HandleVote(ev Vote) {
	if h.Vote != nil {
		h.Vote(ev)
	}
}

func (h HandlerFuncs) HandleTest(ev Test) {
	if h.Test != nil {
		h.Test(ev)
	}
}

func (h HandlerFuncs) HandleReminder(ev Reminder) {
	if h.Reminder != nil {
		h.Reminder(ev)
	}
}

func (h HandlerFuncs) HandleUnknownOp(ev UnknownOp) {
	if h.UnknownOp != nil {
		h.UnknownOp(ev)
	}
}

func (h HandlerFuncs) HandleDisconnected(ev Disconnect) {
	if h.Disconnected != nil {
		h.Disconnected(ev)
	}
}

func (h HandlerFuncs) HandleError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}
