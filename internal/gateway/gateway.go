package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/config"
	"github.com/cory-johannsen/hetman/internal/game/bot"
	"github.com/cory-johannsen/hetman/internal/game/bus"
	"github.com/cory-johannsen/hetman/internal/game/engine"
	"github.com/cory-johannsen/hetman/internal/game/event"
	"github.com/cory-johannsen/hetman/internal/game/room"
	"github.com/cory-johannsen/hetman/internal/game/timer"
	"github.com/cory-johannsen/hetman/internal/observability"
)

// Archive stores the result of a finished game.
type Archive interface {
	SaveResult(ctx context.Context, res engine.Result) error
}

// Config holds the gateway's tunables.
type Config struct {
	// ReconnectGrace is how long a disconnected player keeps their seat before a
	// bot takes it.
	ReconnectGrace time.Duration
	// SendBuffer is the number of notices queued per session.
	SendBuffer int
	// DefaultMaxRounds seeds the settings of new rooms.
	DefaultMaxRounds int
	// ArchiveTimeout bounds one SaveResult call.
	ArchiveTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectGrace:   30 * time.Second,
		SendBuffer:       64,
		DefaultMaxRounds: room.DefaultMaxRounds,
		ArchiveTimeout:   10 * time.Second,
	}
}

// ConfigFrom builds a Config from the loaded application configuration.
func ConfigFrom(g config.GameConfig, ws config.WebsocketConfig) Config {
	cfg := DefaultConfig()
	cfg.ReconnectGrace = g.ReconnectGrace
	cfg.SendBuffer = ws.SendBuffer
	if g.DefaultMaxRounds > 0 {
		cfg.DefaultMaxRounds = g.DefaultMaxRounds
	}
	return cfg
}

// Ticket identifies a seat. It is returned once, by create or join, and presented
// again on every connect.
type Ticket struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
}

// Session is one authenticated connection bound to a seat.
type Session struct {
	ID       string
	Code     string
	PlayerID string
	sub      *bus.Subscriber
}

// Events returns the encoded notices addressed to this session. The channel is
// closed when the session is superseded, dropped as slow, or its room closes.
func (s *Session) Events() <-chan []byte {
	return s.sub.Events()
}

// Gateway binds connections to seats and routes their commands.
//
// Lock order: room lock, then g.mu.
type Gateway struct {
	store   *room.Store
	eng     *engine.Engine
	bots    *bot.Controller
	bus     *bus.Bus
	archive Archive
	cfg     Config
	clock   clockwork.Clock
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	seen     map[string]bool

	archiving sync.WaitGroup
}

// New creates a Gateway and installs its hooks on eng. archive may be nil.
//
// Precondition: store, eng, bots, b and logger must be non-nil.
func New(cfg Config, store *room.Store, eng *engine.Engine, bots *bot.Controller, b *bus.Bus, archive Archive, logger *zap.Logger) *Gateway {
	g := &Gateway{
		store:    store,
		eng:      eng,
		bots:     bots,
		bus:      b,
		archive:  archive,
		cfg:      cfg,
		clock:    store.Clock(),
		logger:   logger,
		sessions: make(map[string]*Session),
		seen:     make(map[string]bool),
	}
	eng.SetHooks(&fanout{g: g})
	return g
}

func seatKey(code, playerID string) string {
	return code + ":" + playerID
}

// CreateRoom opens a lobby hosted by hostName.
//
// Postcondition: Returns the host's ticket, or INVALID_COMMAND / INVALID_SETTINGS.
func (g *Gateway) CreateRoom(hostName string, settings SettingsPayload) (Ticket, error) {
	base := room.DefaultSettings()
	base.MaxRounds = g.cfg.DefaultMaxRounds
	r, host, err := g.store.Create(hostName, base, settings.Patch())
	if err != nil {
		return Ticket{}, err
	}
	r.Lock()
	defer r.Unlock()
	g.eng.Touch(r)
	return Ticket{Code: r.Code, PlayerID: host.ID, Token: host.Token}, nil
}

// JoinRoom seats name in the lobby of room code and announces them.
//
// Postcondition: Returns the new player's ticket, or ROOM_NOT_FOUND,
// WRONG_PASSWORD, GAME_ALREADY_STARTED, ROOM_FULL, INVALID_COMMAND.
func (g *Gateway) JoinRoom(code, name, password string) (Ticket, error) {
	r, err := g.store.Get(code)
	if err != nil {
		return Ticket{}, err
	}
	if err := g.store.CheckPassword(r, password); err != nil {
		return Ticket{}, err
	}
	r.Lock()
	defer r.Unlock()
	p, err := g.store.AddPlayer(r, name)
	if err != nil {
		return Ticket{}, err
	}
	g.eng.Touch(r)
	g.bus.PublishRoom(r.Code, event.New(event.PlayerJoined, event.PlayerJoinedData{Player: room.PlayerView(r, p)}))
	return Ticket{Code: r.Code, PlayerID: p.ID, Token: p.Token}, nil
}

// Connect authenticates (code, token) and opens a session for the seat. A seat
// that already has a session loses it to the new one.
//
// Postcondition: Returns the session, or INVALID_SESSION.
func (g *Gateway) Connect(code, token string) (*Session, error) {
	r, err := g.store.Get(code)
	if err != nil {
		return nil, room.ErrInvalidSession
	}
	r.Lock()
	defer r.Unlock()
	if r.Closed() {
		return nil, room.ErrInvalidSession
	}
	p := g.store.FindByToken(r, token)
	if p == nil || p.IsBot {
		return nil, room.ErrInvalidSession
	}

	s := &Session{
		ID:       uuid.NewString(),
		Code:     r.Code,
		PlayerID: p.ID,
		sub:      bus.NewSubscriber(uuid.NewString(), g.cfg.SendBuffer),
	}
	key := seatKey(r.Code, p.ID)
	g.mu.Lock()
	old := g.sessions[key]
	returning := g.seen[key]
	g.sessions[key] = s
	g.seen[key] = true
	g.mu.Unlock()
	if old != nil {
		g.detach(old)
	}

	p.IsConnected = true
	r.Timers.Cancel(timer.Grace(p.ID))
	g.bus.Subscribe(bus.RoomTopic(r.Code), s.sub)
	g.bus.Subscribe(bus.PlayerTopic(r.Code, p.ID), s.sub)

	snap, err := room.PrivateView(r, p.ID)
	if err != nil {
		return nil, err
	}
	g.bus.PublishPlayer(r.Code, p.ID, event.New(event.Snapshot, snap))
	if returning {
		g.bus.PublishRoom(r.Code, event.New(event.PlayerReconnected, event.PlayerStatusData{PlayerID: p.ID, Name: p.Name}))
	} else {
		g.eng.PublishRoomState(r)
	}
	g.eng.Touch(r)

	observability.PlayerLogger(g.logger, r.Code, p.ID).Info("session connected",
		zap.String("session", s.ID),
		zap.Bool("returning", returning),
		zap.Bool("superseded", old != nil),
	)
	return s, nil
}

// Disconnect ends s. A superseded session is only torn down; the seat is marked
// offline and, outside the lobby and game over, its grace timer is armed.
func (g *Gateway) Disconnect(s *Session) {
	r, err := g.store.Get(s.Code)
	if err != nil {
		g.release(s)
		return
	}
	r.Lock()
	defer r.Unlock()
	if !g.release(s) || r.Closed() {
		return
	}
	p := r.Player(s.PlayerID)
	if p == nil || p.IsBot {
		return
	}

	p.IsConnected = false
	g.bus.PublishRoom(r.Code, event.New(event.PlayerDisconnected, event.PlayerStatusData{PlayerID: p.ID, Name: p.Name}))
	observability.PlayerLogger(g.logger, r.Code, p.ID).Info("session disconnected", zap.String("session", s.ID))

	if r.Phase == room.PhaseLobby || r.Phase == room.PhaseGameOver {
		return
	}
	g.armGrace(r, p.ID)
}

// armGrace gives an offline seat ReconnectGrace to come back before a bot takes
// it. Caller must hold the room lock.
func (g *Gateway) armGrace(r *room.Room, playerID string) {
	r.Timers.Schedule(timer.Grace(playerID), g.cfg.ReconnectGrace, func() {
		g.graceExpired(r, playerID)
	})
}

// armOfflineSeats arms a grace timer for every human seat that is offline when
// play begins, whether it never connected or dropped in the lobby. Caller must
// hold the room lock.
func (g *Gateway) armOfflineSeats(r *room.Room) {
	for _, p := range r.Players {
		if !p.IsBot && !p.IsConnected {
			g.armGrace(r, p.ID)
		}
	}
}

// release removes s from the session table if it is still the seat's current
// session, and detaches it either way.
//
// Postcondition: Returns true if s was current.
func (g *Gateway) release(s *Session) bool {
	key := seatKey(s.Code, s.PlayerID)
	g.mu.Lock()
	current := g.sessions[key] == s
	if current {
		delete(g.sessions, key)
	}
	g.mu.Unlock()
	g.detach(s)
	return current
}

func (g *Gateway) detach(s *Session) {
	g.bus.Unsubscribe(bus.RoomTopic(s.Code), s.sub)
	g.bus.Unsubscribe(bus.PlayerTopic(s.Code, s.PlayerID), s.sub)
	s.sub.Close()
}

// dropSeat closes whatever session is bound to playerID. Caller must hold the
// room lock.
func (g *Gateway) dropSeat(code, playerID string) {
	key := seatKey(code, playerID)
	g.mu.Lock()
	s := g.sessions[key]
	delete(g.sessions, key)
	g.mu.Unlock()
	if s != nil {
		g.detach(s)
	}
}

// graceExpired hands an absent player's seat to a bot. It runs from the grace
// timer with the room lock held.
func (g *Gateway) graceExpired(r *room.Room, playerID string) {
	if r.Closed() || r.Phase == room.PhaseGameOver {
		return
	}
	p := r.Player(playerID)
	if p == nil || p.IsBot || p.IsConnected {
		return
	}
	if err := g.replace(r, playerID); err != nil {
		observability.PlayerLogger(g.logger, r.Code, playerID).Debug("grace replacement aborted", zap.Error(err))
	}
}

// replace seats a bot in playerID's place and lets it catch up on the current
// phase. Caller must hold the room lock.
func (g *Gateway) replace(r *room.Room, playerID string) error {
	b, err := g.store.ReplaceWithBot(r, playerID)
	if err != nil {
		return err
	}
	g.dropSeat(r.Code, playerID)
	g.bus.PublishRoom(r.Code, event.New(event.PlayerReplacedByBot, event.PlayerReplacedData{
		ReplacedID: playerID,
		Bot:        room.PlayerView(r, b),
	}))
	g.eng.PublishRoomState(r)
	g.bots.Resume(r)
	return nil
}

// Handle decodes and runs one inbound frame from s. Failures are sent back to s
// as an error notice; the connection stays open.
func (g *Gateway) Handle(s *Session, data []byte) {
	r, err := g.store.Get(s.Code)
	if err != nil {
		g.reject(s, err)
		return
	}
	r.Lock()
	defer r.Unlock()
	if !g.current(s) {
		return
	}
	p := r.Player(s.PlayerID)
	if r.Closed() || p == nil || p.IsBot {
		g.reject(s, room.ErrInvalidSession)
		return
	}

	g.eng.Touch(r)
	cmd, err := Decode(data)
	if err == nil {
		err = g.dispatch(r, p, cmd)
	}
	if err != nil {
		g.fail(r, p, err)
	}
}

func (g *Gateway) current(s *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessions[seatKey(s.Code, s.PlayerID)] == s
}

// reject pushes an error straight to s, for sessions whose room is gone.
func (g *Gateway) reject(s *Session, err error) {
	n := errorNotice(err)
	data, encErr := encode(n)
	if encErr != nil {
		return
	}
	_ = s.sub.Push(data)
}

// fail reports err privately to p. Caller must hold the room lock.
func (g *Gateway) fail(r *room.Room, p *room.Player, err error) {
	code := room.CodeOf(err)
	log := observability.PlayerLogger(g.logger, r.Code, p.ID)
	if code == room.CodeInternal {
		log.Error("command failed", zap.Error(err))
	} else {
		log.Debug("command rejected", zap.String("code", string(code)))
	}
	g.bus.PublishPlayer(r.Code, p.ID, errorNotice(err))
}

// dispatch runs cmd on behalf of p. Caller must hold the room lock.
func (g *Gateway) dispatch(r *room.Room, p *room.Player, cmd Command) error {
	switch c := cmd.(type) {
	case SubmitCard:
		return g.eng.SubmitCard(r, p.ID, c.Card)
	case SelectWinner:
		if err := requireHetman(r, p); err != nil {
			return err
		}
		return g.eng.SelectWinner(r, p.ID, c.SubmissionID)
	case PickBlackCard:
		if err := requireHetman(r, p); err != nil {
			return err
		}
		return g.eng.PickBlackCard(r, p.ID, c.Card)
	case StartGame:
		if err := requireHost(r, p); err != nil {
			return err
		}
		if err := g.eng.StartGame(r); err != nil {
			return err
		}
		if err := g.eng.DealRound(r); err != nil {
			return err
		}
		g.armOfflineSeats(r)
		return nil
	case AddBot:
		if err := requireHost(r, p); err != nil {
			return err
		}
		b, err := g.store.AddBot(r)
		if err != nil {
			return err
		}
		g.bus.PublishRoom(r.Code, event.New(event.PlayerJoined, event.PlayerJoinedData{Player: room.PlayerView(r, b)}))
		return nil
	case ReplaceWithBot:
		if err := requireHost(r, p); err != nil {
			return err
		}
		if c.PlayerID == p.ID {
			return room.Errorf(room.CodeInvalidCommand, "the host cannot replace themselves")
		}
		if r.Phase == room.PhaseGameOver {
			return room.ErrWrongPhase
		}
		return g.replace(r, c.PlayerID)
	case UpdateSettings:
		if err := requireHost(r, p); err != nil {
			return err
		}
		if err := g.store.UpdateSettings(r, c.Patch()); err != nil {
			return err
		}
		g.bus.PublishRoom(r.Code, event.New(event.SettingsUpdated, event.SettingsUpdatedData{Settings: r.Settings.View()}))
		return nil
	case Chat:
		g.bus.PublishRoom(r.Code, event.New(event.Chat, event.ChatData{
			PlayerID: p.ID,
			Name:     p.Name,
			Text:     c.Text,
			SentAt:   g.clock.Now(),
		}))
		return nil
	case Ping:
		g.bus.PublishPlayer(r.Code, p.ID, event.New(event.Pong, event.PongData{ServerTime: g.clock.Now()}))
		return nil
	default:
		return room.Errorf(room.CodeInvalidCommand, "unsupported command %s", cmd.Kind())
	}
}

func requireHost(r *room.Room, p *room.Player) error {
	if r.HostID != p.ID {
		return room.ErrNotHost
	}
	return nil
}

func requireHetman(r *room.Room, p *room.Player) error {
	if r.HetmanID != p.ID {
		return room.ErrNotHetman
	}
	return nil
}

// Sessions returns the number of live sessions.
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// forgetRoom drops every session and reconnect record of code.
func (g *Gateway) forgetRoom(code string) {
	prefix := code + ":"
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.sessions {
		if strings.HasPrefix(key, prefix) {
			delete(g.sessions, key)
		}
	}
	for key := range g.seen {
		if strings.HasPrefix(key, prefix) {
			delete(g.seen, key)
		}
	}
}

// Wait blocks until every in-flight archive write has finished.
func (g *Gateway) Wait() {
	g.archiving.Wait()
}
