// Package model contains the write commands passed from the service to the
// single-writer worker pool.
package model

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
)

// Kind identifies what a command does to the ledger.
type Kind string

// Command kinds.
const (
	KindRegisterPlayer Kind = "register_player"
	KindSubmitGame     Kind = "submit_game"
)

// Command is one ledger mutation waiting to be applied.
type Command struct {
	ID   string // trace id
	Kind Kind
	At   time.Time

	Player string            // KindRegisterPlayer
	Game   ledger.GameRecord // KindSubmitGame; Game.ID is the submission id

	// EnqueuedAt is stamped by the queue.
	EnqueuedAt time.Time

	reply chan Reply
}

// Reply carries the outcome of an applied command.
type Reply struct {
	Ledger *ledger.Ledger
	Board  ranking.Board
	Game   ledger.GameRecord
	// Duplicate is true when the submission id was already in the ledger.
	// Ledger and Board are then the current state and nothing was saved.
	Duplicate bool
	Attempts  int
	Err       error
}

// NewRegisterPlayer builds a registration command.
func NewRegisterPlayer(name string, at time.Time) Command {
	return Command{
		ID:     uuid.NewString(),
		Kind:   KindRegisterPlayer,
		At:     at,
		Player: name,
		reply:  make(chan Reply, 1),
	}
}

// NewSubmitGame builds a submission command. A blank g.ID gets a fresh uuid;
// g.Timestamp defaults to at.
func NewSubmitGame(g ledger.GameRecord, at time.Time) Command {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Timestamp.IsZero() {
		g.Timestamp = at
	}
	return Command{
		ID:    uuid.NewString(),
		Kind:  KindSubmitGame,
		At:    at,
		Game:  g,
		reply: make(chan Reply, 1),
	}
}

// Apply returns the ledger with the command applied. duplicate is true when
// a submission with the same id is already recorded; l is then returned as is.
func (c Command) Apply(l *ledger.Ledger) (next *ledger.Ledger, duplicate bool, err error) {
	switch c.Kind {
	case KindRegisterPlayer:
		next, err = l.RegisterPlayer(c.Player, c.At)
		return next, false, err
	case KindSubmitGame:
		if i := slices.IndexFunc(l.Games, func(g ledger.GameRecord) bool { return g.ID == c.Game.ID }); i >= 0 {
			return l, true, nil
		}
		next, err = l.SubmitGame(c.Game)
		return next, false, err
	}
	return nil, false, ErrUnknownKind
}

// Respond delivers r to the waiting caller. It never blocks: the reply
// channel holds exactly one value and each command is answered once.
func (c Command) Respond(r Reply) {
	if c.reply == nil {
		return
	}
	select {
	case c.reply <- r:
	default:
	}
}

// Wait blocks until the command is answered or ctx is done.
func (c Command) Wait(ctx context.Context) (Reply, error) {
	if c.reply == nil {
		return Reply{}, ErrNoReply
	}
	select {
	case r := <-c.reply:
		return r, r.Err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}
