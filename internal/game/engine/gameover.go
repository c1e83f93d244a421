package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/game/event"
	"github.com/cory-johannsen/hetman/internal/game/room"
	"github.com/cory-johannsen/hetman/internal/game/timer"
	"github.com/cory-johannsen/hetman/internal/observability"
)

var zeroTime time.Time

// Result is the final outcome of a game. A game that ends before its first round
// has no winner.
type Result struct {
	Code       string
	Reason     EndReason
	Rounds     int
	WinnerID   string
	WinnerName string
	// TiedIDs lists every player sharing the top score, in seat order, when more
	// than one does. WinnerID is always TiedIDs[0] in that case.
	TiedIDs    []string
	Scoreboard []event.ScoreEntry
	Bots       map[string]bool
	StartedAt  time.Time
	EndedAt    time.Time
}

// EndGame moves r to gameOver, cancels every timer, publishes the result and
// schedules the room's removal. Calling it on a finished game does nothing.
func (e *Engine) EndGame(r *room.Room, reason EndReason) {
	if r.Closed() || r.Phase == room.PhaseGameOver {
		return
	}
	r.Timers.CancelAll()
	r.Phase = room.PhaseGameOver
	r.Offered = nil
	r.SubmissionDeadline = zeroTime

	res := e.result(r, reason)
	e.pub.PublishRoom(r.Code, event.New(event.GameOver, event.GameOverData{
		Reason:     string(reason),
		WinnerID:   res.WinnerID,
		WinnerName: res.WinnerName,
		TiedIDs:    res.TiedIDs,
		Rounds:     res.Rounds,
		Scoreboard: res.Scoreboard,
	}))
	observability.RoomLogger(e.logger, r.Code).Info("game over",
		zap.String("reason", string(reason)),
		zap.Int("rounds", res.Rounds),
		zap.String("winner", res.WinnerID),
	)
	e.hooks.GameOver(r, res)

	r.Timers.Schedule(timer.Cleanup, e.cfg.GameOverLinger, func() { e.CloseRoom(r) })
}

// CloseRoom tears r down: every timer stops, the store forgets it and RoomClosed
// is notified. Closing a closed room does nothing.
func (e *Engine) CloseRoom(r *room.Room) {
	if r.Closed() {
		return
	}
	r.MarkClosed()
	e.store.Delete(r.Code)
	e.hooks.RoomClosed(r.Code)
}

func (e *Engine) result(r *room.Room, reason EndReason) Result {
	res := Result{
		Code:       r.Code,
		Reason:     reason,
		Rounds:     r.CurrentRound,
		Scoreboard: room.Scoreboard(r),
		Bots:       make(map[string]bool),
		StartedAt:  r.StartedAt,
		EndedAt:    e.clock.Now(),
	}
	top := -1
	var tied []*room.Player
	for _, p := range r.Players {
		res.Bots[p.ID] = p.IsBot
		switch {
		case p.Points > top:
			top = p.Points
			tied = []*room.Player{p}
		case p.Points == top:
			tied = append(tied, p)
		}
	}
	if res.Rounds == 0 {
		return res
	}
	if len(tied) > 0 {
		res.WinnerID = tied[0].ID
		res.WinnerName = tied[0].Name
	}
	if len(tied) > 1 {
		for _, p := range tied {
			res.TiedIDs = append(res.TiedIDs, p.ID)
		}
	}
	return res
}
