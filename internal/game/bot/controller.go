// Package bot drives AI seats. Bots act through the same engine entry points a
// human client uses, after a randomized think time.
package bot

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/game/rng"
	"github.com/cory-johannsen/hetman/internal/game/room"
	"github.com/cory-johannsen/hetman/internal/game/timer"
	"github.com/cory-johannsen/hetman/internal/observability"
)

// Bot actions, used in timer names.
const (
	ActionPick   = "pick"
	ActionSubmit = "submit"
	ActionJudge  = "judge"
)

// Actor is the subset of the engine a bot may call.
type Actor interface {
	PickBlackCard(r *room.Room, hetmanID, card string) error
	SubmitCard(r *room.Room, playerID, card string) error
	SelectWinner(r *room.Room, hetmanID, anonymousID string) error
}

// Controller schedules one think-time timer per bot seat and action. Every method
// requires the caller to hold the room lock.
type Controller struct {
	actor    Actor
	src      rng.Source
	minThink time.Duration
	maxThink time.Duration
	logger   *zap.Logger
}

// New creates a Controller whose bots wait between minThink and maxThink.
//
// Precondition: actor, src and logger must be non-nil; 0 < minThink <= maxThink.
func New(actor Actor, src rng.Source, minThink, maxThink time.Duration, logger *zap.Logger) *Controller {
	return &Controller{
		actor:    actor,
		src:      src,
		minThink: minThink,
		maxThink: maxThink,
		logger:   logger,
	}
}

// HetmanPicking schedules the prompt pick when the hetman is a bot.
func (c *Controller) HetmanPicking(r *room.Room) {
	if h := r.Hetman(); h != nil && h.IsBot {
		c.schedule(r, h.ID, ActionPick, c.pick)
	}
}

// SubmissionsOpen schedules a submission for every bot that still owes one.
func (c *Controller) SubmissionsOpen(r *room.Room) {
	for _, p := range r.Pending() {
		if p.IsBot {
			c.schedule(r, p.ID, ActionSubmit, c.submit)
		}
	}
}

// JudgingStarted schedules the winner selection when the hetman is a bot.
func (c *Controller) JudgingStarted(r *room.Room) {
	if h := r.Hetman(); h != nil && h.IsBot {
		c.schedule(r, h.ID, ActionJudge, c.judge)
	}
}

// Resume schedules whatever bots owe in the current phase. It is used after a
// human seat is handed to a bot mid-round.
func (c *Controller) Resume(r *room.Room) {
	switch r.Phase {
	case room.PhaseHetmanPicking:
		c.HetmanPicking(r)
	case room.PhaseSubmitting:
		c.SubmissionsOpen(r)
	case room.PhaseJudging:
		c.JudgingStarted(r)
	}
}

// ThinkTime returns a delay in [minThink, maxThink].
func (c *Controller) ThinkTime() time.Duration {
	return time.Duration(rng.Between(c.src, int64(c.minThink), int64(c.maxThink)))
}

func (c *Controller) schedule(r *room.Room, botID, action string, act func(r *room.Room, botID string)) {
	round := r.CurrentRound
	r.Timers.ScheduleOnce(timer.Bot(botID, action), c.ThinkTime(), func() {
		if r.Closed() || r.CurrentRound != round {
			return
		}
		if p := r.Player(botID); p == nil || !p.IsBot {
			return
		}
		act(r, botID)
	})
}

func (c *Controller) pick(r *room.Room, botID string) {
	if r.Phase != room.PhaseHetmanPicking || r.HetmanID != botID || len(r.Offered) == 0 {
		return
	}
	c.report(r, botID, ActionPick, c.actor.PickBlackCard(r, botID, rng.Pick(c.src, r.Offered)))
}

func (c *Controller) submit(r *room.Room, botID string) {
	p := r.Player(botID)
	if r.Phase != room.PhaseSubmitting || r.HetmanID == botID || r.HasSubmitted(botID) || len(p.Hand) == 0 {
		return
	}
	c.report(r, botID, ActionSubmit, c.actor.SubmitCard(r, botID, rng.Pick(c.src, p.Hand)))
}

func (c *Controller) judge(r *room.Room, botID string) {
	if r.Phase != room.PhaseJudging || r.HetmanID != botID || len(r.Submissions) == 0 {
		return
	}
	sub := rng.Pick(c.src, r.Submissions)
	c.report(r, botID, ActionJudge, c.actor.SelectWinner(r, botID, sub.AnonymousID))
}

func (c *Controller) report(r *room.Room, botID, action string, err error) {
	log := observability.RoomLogger(c.logger, r.Code)
	if err != nil {
		log.Debug("bot action aborted", zap.String("bot", botID), zap.String("action", action), zap.Error(err))
		return
	}
	log.Debug("bot acted", zap.String("bot", botID), zap.String("action", action))
}
