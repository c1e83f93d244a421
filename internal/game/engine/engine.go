// Package engine implements the round state machine of a room:
//
//	lobby -> hetmanPicking -> submitting -> judging -> reveal -> roundEnd -> {hetmanPicking | gameOver}
//
// Every exported method requires the caller to hold the room lock. Notices are
// published before the method returns, so a snapshot taken afterwards already
// reflects them.
package engine

import (
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/config"
	"github.com/cory-johannsen/hetman/internal/game/deck"
	"github.com/cory-johannsen/hetman/internal/game/event"
	"github.com/cory-johannsen/hetman/internal/game/rng"
	"github.com/cory-johannsen/hetman/internal/game/room"
	"github.com/cory-johannsen/hetman/internal/game/timer"
)

// MinPlayers is the smallest table that can start a game.
const MinPlayers = 3

// EndReason explains why a game ended.
type EndReason string

const (
	ReasonRoundsComplete EndReason = "roundsComplete"
	ReasonInactivity     EndReason = "inactivity"
	ReasonTimeLimit      EndReason = "timeLimit"
)

// Publisher delivers notices to a room's topics.
type Publisher interface {
	PublishRoom(code string, n event.Notice)
	PublishPlayer(code, playerID string, n event.Notice)
}

// Hooks observes state changes that other components react to. Methods are called
// with the room lock held and must not block.
type Hooks interface {
	// HetmanPicking is called after a round is dealt.
	HetmanPicking(r *room.Room)
	// SubmissionsOpen is called after the prompt is chosen.
	SubmissionsOpen(r *room.Room)
	// JudgingStarted is called once every eligible player has submitted.
	JudgingStarted(r *room.Room)
	// GameOver is called once per room with the final result.
	GameOver(r *room.Room, res Result)
	// RoomClosed is called after the room is removed from the store.
	RoomClosed(code string)
}

// NopHooks ignores every notification.
type NopHooks struct{}

func (NopHooks) HetmanPicking(*room.Room)    {}
func (NopHooks) SubmissionsOpen(*room.Room)  {}
func (NopHooks) JudgingStarted(*room.Room)   {}
func (NopHooks) GameOver(*room.Room, Result) {}
func (NopHooks) RoomClosed(string)           {}

// Config holds the fixed game constants.
type Config struct {
	HandSize        int
	PromptChoices   int
	RevealDelay     time.Duration
	RoundEndDelay   time.Duration
	GameOverLinger  time.Duration
	SessionLimit    time.Duration
	InactivityLimit time.Duration
}

// DefaultConfig returns the standard constants.
func DefaultConfig() Config {
	return Config{
		HandSize:        10,
		PromptChoices:   3,
		RevealDelay:     5 * time.Second,
		RoundEndDelay:   8 * time.Second,
		GameOverLinger:  60 * time.Second,
		SessionLimit:    2 * time.Hour,
		InactivityLimit: 15 * time.Minute,
	}
}

// ConfigFrom maps the game section of the application config.
func ConfigFrom(g config.GameConfig) Config {
	return Config{
		HandSize:        g.HandSize,
		PromptChoices:   g.PromptChoices,
		RevealDelay:     g.RevealDelay,
		RoundEndDelay:   g.RoundEndDelay,
		GameOverLinger:  g.GameOverLinger,
		SessionLimit:    g.SessionLimit,
		InactivityLimit: g.InactivityLimit,
	}
}

// Engine drives rooms through the round state machine.
type Engine struct {
	cfg    Config
	store  *room.Store
	lib    *deck.Library
	src    rng.Source
	clock  clockwork.Clock
	pub    Publisher
	hooks  Hooks
	logger *zap.Logger
}

// New creates an Engine with NopHooks.
//
// Precondition: every argument must be non-nil.
func New(cfg Config, store *room.Store, lib *deck.Library, src rng.Source, pub Publisher, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		lib:    lib,
		src:    src,
		clock:  store.Clock(),
		pub:    pub,
		hooks:  NopHooks{},
		logger: logger,
	}
}

// SetHooks installs the observer. It must be called before any room is driven.
func (e *Engine) SetHooks(h Hooks) {
	if h == nil {
		h = NopHooks{}
	}
	e.hooks = h
}

// Config returns the engine constants.
func (e *Engine) Config() Config {
	return e.cfg
}

// Touch records activity on r and re-arms its inactivity watchdog.
func (e *Engine) Touch(r *room.Room) {
	if r.Closed() || r.Phase == room.PhaseGameOver {
		return
	}
	r.LastActivityAt = e.clock.Now()
	r.Timers.Schedule(timer.Inactivity, e.cfg.InactivityLimit, func() {
		if r.Closed() || r.Phase == room.PhaseGameOver {
			return
		}
		e.EndGame(r, ReasonInactivity)
	})
}

// PublishRoomState sends the public view of r to the whole room.
func (e *Engine) PublishRoomState(r *room.Room) {
	e.pub.PublishRoom(r.Code, event.New(event.RoomState, room.PublicView(r)))
}
