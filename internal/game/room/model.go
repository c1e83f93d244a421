// Package room holds the room aggregate and the in-memory Store that owns every
// live room.
//
// Every function taking a *Room requires the caller to hold that room's lock.
package room

import (
	"sync"
	"time"

	"github.com/cory-johannsen/hetman/internal/game/deck"
	"github.com/cory-johannsen/hetman/internal/game/timer"
)

// Phase is a state of the round state machine.
type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseHetmanPicking Phase = "hetmanPicking"
	PhaseSubmitting    Phase = "submitting"
	PhaseJudging       Phase = "judging"
	PhaseReveal        Phase = "reveal"
	PhaseRoundEnd      Phase = "roundEnd"
	PhaseGameOver      Phase = "gameOver"
)

// Revealed reports whether submissions are shown with their authors.
func (p Phase) Revealed() bool {
	return p == PhaseReveal || p == PhaseRoundEnd || p == PhaseGameOver
}

// Player is one seat at the table.
type Player struct {
	ID string
	// Token authenticates the seat's connection. It is never sent to other players.
	Token       string
	Name        string
	IsBot       bool
	IsConnected bool
	IsHost      bool
	Points      int
	Hand        []string
}

// HandIndex returns the position of card in the hand, or -1.
func (p *Player) HandIndex(card string) int {
	for i, c := range p.Hand {
		if c == card {
			return i
		}
	}
	return -1
}

// Submission is one answer card played in the current round.
type Submission struct {
	// AnonymousID identifies the submission to the hetman without naming its author.
	AnonymousID string
	PlayerID    string
	Card        string
	IsWinner    bool
}

// Room is the aggregate for one game table.
type Room struct {
	mu sync.Mutex

	Code     string
	HostID   string
	Players  []*Player
	Phase    Phase
	Settings Settings

	CurrentRound int
	HetmanID     string
	BlackCard    string
	Offered      []string
	Submissions  []*Submission

	PromptDeck *deck.Deck
	AnswerDeck *deck.Deck

	CreatedAt          time.Time
	StartedAt          time.Time
	LastActivityAt     time.Time
	SubmissionDeadline time.Time

	Timers *timer.Registry

	closed bool
}

// Lock acquires the room lock.
func (r *Room) Lock() { r.mu.Lock() }

// Unlock releases the room lock.
func (r *Room) Unlock() { r.mu.Unlock() }

// Closed reports whether the room has been torn down. Handlers holding a stale
// *Room must check it after locking.
func (r *Room) Closed() bool { return r.closed }

// MarkClosed flags the room as torn down and closes its timer registry.
func (r *Room) MarkClosed() {
	r.closed = true
	r.Timers.Close()
}

// Player returns the player with id, or nil.
func (r *Room) Player(id string) *Player {
	if i := r.PlayerIndex(id); i >= 0 {
		return r.Players[i]
	}
	return nil
}

// PlayerIndex returns the seat index of id, or -1.
func (r *Room) PlayerIndex(id string) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Hetman returns the current judge, or nil in the lobby.
func (r *Room) Hetman() *Player {
	if r.HetmanID == "" {
		return nil
	}
	return r.Player(r.HetmanID)
}

// Host returns the host player.
func (r *Room) Host() *Player {
	return r.Player(r.HostID)
}

// Eligible returns every player expected to submit this round, in seat order.
func (r *Room) Eligible() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.ID != r.HetmanID {
			out = append(out, p)
		}
	}
	return out
}

// HasSubmitted reports whether playerID has a submission this round.
func (r *Room) HasSubmitted(playerID string) bool {
	for _, s := range r.Submissions {
		if s.PlayerID == playerID {
			return true
		}
	}
	return false
}

// Submission returns the submission with the given anonymous id, or nil.
func (r *Room) Submission(anonymousID string) *Submission {
	for _, s := range r.Submissions {
		if s.AnonymousID == anonymousID {
			return s
		}
	}
	return nil
}

// Pending returns the eligible players who have not submitted, in seat order.
func (r *Room) Pending() []*Player {
	var out []*Player
	for _, p := range r.Eligible() {
		if !r.HasSubmitted(p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// IsOffered reports whether card is among the offered prompt choices.
func (r *Room) IsOffered(card string) bool {
	for _, c := range r.Offered {
		if c == card {
			return true
		}
	}
	return false
}
