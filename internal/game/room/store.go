package room

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/hetman/internal/game/rng"
	"github.com/cory-johannsen/hetman/internal/game/timer"
)

const (
	// MaxPlayers is the seat cap of a room, bots included.
	MaxPlayers = 10
	// CodeLength is the length of a room code.
	CodeLength = 6
	// CodeAlphabet omits characters that are easy to confuse (0/O, 1/I).
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// MaxNameLength bounds player names, in runes.
	MaxNameLength = 24
)

var botRoster = []string{
	"Taras", "Ostap", "Andriy", "Oksana", "Bohdan",
	"Marusia", "Ivan", "Solomiia", "Mykola", "Halyna",
}

// Store is the registry of live rooms.
//
// Create, Join, Get, Delete, Len and Shutdown manage their own locking. Every other
// method taking a *Room requires the caller to hold the room lock. Lock order is
// room, then store.
type Store struct {
	clock      clockwork.Clock
	src        rng.Source
	logger     *zap.Logger
	bcryptCost int

	mu    sync.RWMutex
	rooms map[string]*Room
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) StoreOption {
	return func(s *Store) { s.bcryptCost = cost }
}

// NewStore creates an empty Store.
//
// Precondition: clock, src and logger must be non-nil.
func NewStore(clock clockwork.Clock, src rng.Source, logger *zap.Logger, opts ...StoreOption) *Store {
	s := &Store{
		clock:      clock,
		src:        src,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
		rooms:      make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the store's clock.
func (s *Store) Clock() clockwork.Clock { return s.clock }

// Create registers a new lobby room hosted by hostName. settings are the starting
// values; patch is applied on top of them, which is how a creation password is set.
//
// Postcondition: Returns the room and its host, or an INVALID_COMMAND or
// INVALID_SETTINGS error.
func (s *Store) Create(hostName string, settings Settings, patch SettingsPatch) (*Room, *Player, error) {
	name, err := cleanName(hostName)
	if err != nil {
		return nil, nil, err
	}
	settings, err = s.applyPatch(settings, patch)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	host := newPlayer(name, false)
	host.IsHost = true
	r := &Room{
		HostID:         host.ID,
		Players:        []*Player{host},
		Phase:          PhaseLobby,
		Settings:       settings,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	r.Timers = timer.NewRegistry(s.clock, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		code := s.newCode()
		if _, taken := s.rooms[code]; !taken {
			r.Code = code
			break
		}
	}
	s.rooms[r.Code] = r
	s.logger.Info("room created", zap.String("room", r.Code), zap.String("host", host.ID))
	return r, host, nil
}

func (s *Store) newCode() string {
	var b strings.Builder
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(CodeAlphabet[s.src.Intn(len(CodeAlphabet))])
	}
	return b.String()
}

// Get returns the live room with code.
func (s *Store) Get(code string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Delete removes the room with code. Removing an unknown code is a no-op.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; ok {
		delete(s.rooms, code)
		s.logger.Info("room deleted", zap.String("room", code))
	}
}

// Len returns the number of live rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Shutdown closes every room and empties the store.
func (s *Store) Shutdown() {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.rooms = make(map[string]*Room)
	s.mu.Unlock()

	for _, r := range rooms {
		r.Lock()
		r.MarkClosed()
		r.Unlock()
	}
}

// Join seats a new human player in the lobby of room code.
//
// Postcondition: Fails with ROOM_NOT_FOUND, WRONG_PASSWORD, GAME_ALREADY_STARTED
// or ROOM_FULL, checked in that order.
func (s *Store) Join(code, name, password string) (*Room, *Player, error) {
	r, err := s.Get(code)
	if err != nil {
		return nil, nil, err
	}
	if err := s.CheckPassword(r, password); err != nil {
		return nil, nil, err
	}
	r.Lock()
	defer r.Unlock()
	p, err := s.AddPlayer(r, name)
	if err != nil {
		return nil, nil, err
	}
	return r, p, nil
}

// CheckPassword verifies password against the room's hash. It takes the room lock
// only to read the hash; the bcrypt comparison runs unlocked.
func (s *Store) CheckPassword(r *Room, password string) error {
	r.Lock()
	hash := r.Settings.PasswordHash
	r.Unlock()
	if len(hash) == 0 {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// AddPlayer seats a new human player. The caller must have checked the password.
func (s *Store) AddPlayer(r *Room, name string) (*Player, error) {
	if r.Closed() {
		return nil, ErrRoomNotFound
	}
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if r.Phase != PhaseLobby {
		return nil, ErrGameAlreadyStarted
	}
	if len(r.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	p := newPlayer(uniqueName(r, clean), false)
	r.Players = append(r.Players, p)
	s.logger.Info("player joined", zap.String("room", r.Code), zap.String("player", p.ID))
	return p, nil
}

// AddBot seats a bot in the lobby.
func (s *Store) AddBot(r *Room) (*Player, error) {
	if r.Phase != PhaseLobby {
		return nil, ErrGameAlreadyStarted
	}
	if len(r.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	bot := newPlayer(s.botName(r), true)
	r.Players = append(r.Players, bot)
	s.logger.Info("bot added", zap.String("room", r.Code), zap.String("player", bot.ID))
	return bot, nil
}

// ReplaceWithBot puts a bot in playerID's seat. The bot keeps the seat index,
// points, hand and any submission of the departing player, and takes over the
// hetman role. The host role passes to the first connected human, or to the bot
// when there is none. The bot gets a fresh id and token.
//
// Postcondition: Returns the bot, or PLAYER_NOT_FOUND / INVALID_COMMAND.
func (s *Store) ReplaceWithBot(r *Room, playerID string) (*Player, error) {
	i := r.PlayerIndex(playerID)
	if i < 0 {
		return nil, ErrPlayerNotFound
	}
	old := r.Players[i]
	if old.IsBot {
		return nil, Errorf(CodeInvalidCommand, "%s is already a bot", old.Name)
	}

	bot := newPlayer(s.botName(r), true)
	bot.Points = old.Points
	bot.Hand = old.Hand
	r.Players[i] = bot

	for _, sub := range r.Submissions {
		if sub.PlayerID == old.ID {
			sub.PlayerID = bot.ID
		}
	}
	if r.HetmanID == old.ID {
		r.HetmanID = bot.ID
	}
	if r.HostID == old.ID {
		s.migrateHost(r, bot)
	}
	r.Timers.Cancel(timer.Grace(old.ID))

	s.logger.Info("player replaced by bot",
		zap.String("room", r.Code),
		zap.String("player", old.ID),
		zap.String("bot", bot.ID),
	)
	return bot, nil
}

func (s *Store) migrateHost(r *Room, fallback *Player) {
	next := fallback
	for _, p := range r.Players {
		if !p.IsBot && p.IsConnected {
			next = p
			break
		}
	}
	for _, p := range r.Players {
		p.IsHost = p == next
	}
	r.HostID = next.ID
}

// UpdateSettings applies patch. Only allowed in the lobby.
func (s *Store) UpdateSettings(r *Room, patch SettingsPatch) error {
	if r.Phase != PhaseLobby {
		return ErrGameAlreadyStarted
	}
	next, err := s.applyPatch(r.Settings, patch)
	if err != nil {
		return err
	}
	r.Settings = next
	return nil
}

func (s *Store) applyPatch(base Settings, patch SettingsPatch) (Settings, error) {
	next := base
	if patch.MaxRounds != nil {
		next.MaxRounds = *patch.MaxRounds
	}
	if patch.SubmissionTimeLimit != nil {
		next.SubmissionTimeLimit = *patch.SubmissionTimeLimit
	}
	if patch.HetmanRotation != nil {
		next.HetmanRotation = *patch.HetmanRotation
	}
	if err := next.Validate(); err != nil {
		return base, err
	}
	if patch.Password != nil {
		if *patch.Password == "" {
			next.PasswordHash = nil
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), s.bcryptCost)
			if err != nil {
				if errors.Is(err, bcrypt.ErrPasswordTooLong) {
					return base, Errorf(CodeInvalidSettings, "password is too long")
				}
				return base, fmt.Errorf("hashing room password: %w", err)
			}
			next.PasswordHash = hash
		}
	}
	return next, nil
}

// FindByToken returns the player whose token equals token, or nil.
func (s *Store) FindByToken(r *Room, token string) *Player {
	if token == "" {
		return nil
	}
	var found *Player
	for _, p := range r.Players {
		if subtle.ConstantTimeCompare([]byte(p.Token), []byte(token)) == 1 {
			found = p
		}
	}
	return found
}

func (s *Store) botName(r *Room) string {
	var free []string
	for _, n := range botRoster {
		if !nameTaken(r, "Bot "+n) {
			free = append(free, "Bot "+n)
		}
	}
	if len(free) == 0 {
		return uniqueName(r, "Bot")
	}
	return rng.Pick(s.src, free)
}

func newPlayer(name string, isBot bool) *Player {
	return &Player{
		ID:          uuid.NewString(),
		Token:       uuid.NewString(),
		Name:        name,
		IsBot:       isBot,
		IsConnected: isBot,
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxNameLength {
		return "", Errorf(CodeInvalidCommand, "name must be 1-%d characters", MaxNameLength)
	}
	return name, nil
}

func nameTaken(r *Room, name string) bool {
	for _, p := range r.Players {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func uniqueName(r *Room, name string) string {
	if !nameTaken(r, name) {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s %d", name, i)
		if !nameTaken(r, candidate) {
			return candidate
		}
	}
}
