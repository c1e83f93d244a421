package room_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/hetman/internal/game/rng"
	"github.com/cory-johannsen/hetman/internal/game/room"
	"github.com/cory-johannsen/hetman/internal/game/timer"
)

func newStore(t *testing.T) *room.Store {
	t.Helper()
	return room.NewStore(clockwork.NewFakeClock(), rng.NewSeededSource(1), zaptest.NewLogger(t),
		room.WithBcryptCost(bcrypt.MinCost))
}

func ptr[T any](v T) *T { return &v }

func createRoom(t *testing.T, s *room.Store, players int) *room.Room {
	t.Helper()
	r, _, err := s.Create("Host", room.DefaultSettings(), room.SettingsPatch{})
	require.NoError(t, err)
	for i := 1; i < players; i++ {
		_, _, err := s.Join(r.Code, "Player", "")
		require.NoError(t, err)
	}
	return r
}

func TestCreate(t *testing.T) {
	s := newStore(t)
	r, host, err := s.Create("  Olena  ", room.DefaultSettings(), room.SettingsPatch{})
	require.NoError(t, err)

	assert.Len(t, r.Code, room.CodeLength)
	for _, c := range r.Code {
		assert.True(t, strings.ContainsRune(room.CodeAlphabet, c))
	}
	assert.Equal(t, room.PhaseLobby, r.Phase)
	assert.Equal(t, host.ID, r.HostID)
	assert.Equal(t, "Olena", host.Name)
	assert.True(t, host.IsHost)
	assert.False(t, host.IsConnected)
	assert.NotEmpty(t, host.Token)
	assert.Equal(t, 1, s.Len())

	got, err := s.Get(strings.ToLower(r.Code))
	require.NoError(t, err)
	assert.Same(t, r, got)
}

func TestCreate_InvalidName(t *testing.T) {
	s := newStore(t)
	_, _, err := s.Create("   ", room.DefaultSettings(), room.SettingsPatch{})
	assert.ErrorIs(t, err, room.ErrInvalidCommand)

	_, _, err = s.Create(strings.Repeat("я", room.MaxNameLength+1), room.DefaultSettings(), room.SettingsPatch{})
	assert.ErrorIs(t, err, room.ErrInvalidCommand)
}

func TestCreate_InvalidSettings(t *testing.T) {
	s := newStore(t)
	_, _, err := s.Create("Host", room.DefaultSettings(), room.SettingsPatch{MaxRounds: ptr(0)})
	assert.ErrorIs(t, err, room.ErrInvalidSettings)
	assert.Equal(t, 0, s.Len())
}

// countingSource yields zeros for the first zeros calls and ones afterwards.
type countingSource struct {
	calls int
	zeros int
}

func (c *countingSource) Intn(n int) int {
	c.calls++
	if c.calls <= c.zeros {
		return 0
	}
	return 1 % n
}

func TestCreate_RegeneratesCollidingCode(t *testing.T) {
	s := room.NewStore(clockwork.NewFakeClock(), &countingSource{zeros: 2 * room.CodeLength}, zaptest.NewLogger(t))
	r1, _, err := s.Create("A", room.DefaultSettings(), room.SettingsPatch{})
	require.NoError(t, err)
	r2, _, err := s.Create("B", room.DefaultSettings(), room.SettingsPatch{})
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", r1.Code)
	assert.Equal(t, "BBBBBB", r2.Code)
}

func TestJoin(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 1)

	got, p, err := s.Join(r.Code, "Mykola", "")
	require.NoError(t, err)
	assert.Same(t, r, got)
	assert.False(t, p.IsHost)
	assert.False(t, p.IsBot)
	assert.Len(t, r.Players, 2)
}

func TestJoin_DuplicateNamesGetSuffix(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 1)
	_, p2, err := s.Join(r.Code, "host", "")
	require.NoError(t, err)
	_, p3, err := s.Join(r.Code, "Host", "")
	require.NoError(t, err)
	assert.Equal(t, "host 2", p2.Name)
	assert.Equal(t, "Host 3", p3.Name)
}

func TestJoin_Errors(t *testing.T) {
	s := newStore(t)

	_, _, err := s.Join("ZZZZZZ", "x", "")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	r, _, err := s.Create("Host", room.DefaultSettings(), room.SettingsPatch{Password: ptr("secret")})
	require.NoError(t, err)
	assert.True(t, r.Settings.HasPassword())

	_, _, err = s.Join(r.Code, "x", "wrong")
	assert.ErrorIs(t, err, room.ErrWrongPassword)
	_, _, err = s.Join(r.Code, "x", "secret")
	assert.NoError(t, err)

	for len(r.Players) < room.MaxPlayers {
		_, _, err = s.Join(r.Code, "filler", "secret")
		require.NoError(t, err)
	}
	_, _, err = s.Join(r.Code, "late", "secret")
	assert.ErrorIs(t, err, room.ErrRoomFull)

	r2 := createRoom(t, s, 3)
	r2.Phase = room.PhaseHetmanPicking
	_, _, err = s.Join(r2.Code, "late", "")
	assert.ErrorIs(t, err, room.ErrGameAlreadyStarted)
}

func TestJoin_WrongPasswordCheckedBeforePhase(t *testing.T) {
	s := newStore(t)
	r, _, err := s.Create("Host", room.DefaultSettings(), room.SettingsPatch{Password: ptr("pw")})
	require.NoError(t, err)
	r.Phase = room.PhaseSubmitting

	_, _, err = s.Join(r.Code, "x", "nope")
	assert.ErrorIs(t, err, room.ErrWrongPassword)
}

func TestAddBot(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 1)

	r.Lock()
	defer r.Unlock()
	bot, err := s.AddBot(r)
	require.NoError(t, err)
	assert.True(t, bot.IsBot)
	assert.True(t, bot.IsConnected)
	assert.True(t, strings.HasPrefix(bot.Name, "Bot"))

	for len(r.Players) < room.MaxPlayers {
		_, err = s.AddBot(r)
		require.NoError(t, err)
	}
	_, err = s.AddBot(r)
	assert.ErrorIs(t, err, room.ErrRoomFull)

	names := map[string]bool{}
	for _, p := range r.Players {
		assert.False(t, names[p.Name], "duplicate name %s", p.Name)
		names[p.Name] = true
	}
}

func TestAddBot_OutsideLobby(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 3)
	r.Lock()
	defer r.Unlock()
	r.Phase = room.PhaseJudging
	_, err := s.AddBot(r)
	assert.ErrorIs(t, err, room.ErrGameAlreadyStarted)
}

func TestReplaceWithBot_KeepsSeatScoreAndHand(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 3)
	r.Lock()
	defer r.Unlock()

	target := r.Players[1]
	target.Points = 4
	target.Hand = []string{"a", "b"}
	r.Phase = room.PhaseJudging
	r.HetmanID = target.ID
	r.Submissions = []*room.Submission{{AnonymousID: "x", PlayerID: r.Players[2].ID, Card: "c"}}
	r.Timers.Schedule(timer.Grace(target.ID), time.Minute, func() {})

	bot, err := s.ReplaceWithBot(r, target.ID)
	require.NoError(t, err)

	assert.Same(t, bot, r.Players[1])
	assert.NotEqual(t, target.ID, bot.ID)
	assert.NotEqual(t, target.Token, bot.Token)
	assert.Equal(t, 4, bot.Points)
	assert.Equal(t, []string{"a", "b"}, bot.Hand)
	assert.Equal(t, bot.ID, r.HetmanID, "bot inherits the hetman role")
	assert.Nil(t, r.Player(target.ID))
	assert.False(t, r.Timers.Active(timer.Grace(target.ID)))
}

func TestReplaceWithBot_MovesSubmission(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 3)
	r.Lock()
	defer r.Unlock()

	target := r.Players[2]
	r.Submissions = []*room.Submission{{AnonymousID: "x", PlayerID: target.ID, Card: "c"}}
	bot, err := s.ReplaceWithBot(r, target.ID)
	require.NoError(t, err)
	assert.True(t, r.HasSubmitted(bot.ID))
}

func TestReplaceWithBot_HostMigration(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 3)
	r.Lock()
	defer r.Unlock()

	host := r.Players[0]
	r.Players[1].IsConnected = false
	r.Players[2].IsConnected = true

	bot, err := s.ReplaceWithBot(r, host.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Players[2].ID, r.HostID, "first connected human becomes host")
	assert.True(t, r.Players[2].IsHost)
	assert.False(t, bot.IsHost)

	hosts := 0
	for _, p := range r.Players {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts)
}

func TestReplaceWithBot_HostFallsBackToBot(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 3)
	r.Lock()
	defer r.Unlock()
	for _, p := range r.Players {
		p.IsConnected = false
	}

	bot, err := s.ReplaceWithBot(r, r.HostID)
	require.NoError(t, err)
	assert.Equal(t, bot.ID, r.HostID)
	assert.True(t, bot.IsHost)
}

func TestReplaceWithBot_Errors(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 3)
	r.Lock()
	defer r.Unlock()

	_, err := s.ReplaceWithBot(r, "missing")
	assert.ErrorIs(t, err, room.ErrPlayerNotFound)

	bot, err := s.AddBot(r)
	require.NoError(t, err)
	_, err = s.ReplaceWithBot(r, bot.ID)
	assert.ErrorIs(t, err, room.ErrInvalidCommand)
}

func TestUpdateSettings(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 1)
	r.Lock()
	defer r.Unlock()

	err := s.UpdateSettings(r, room.SettingsPatch{
		MaxRounds:           ptr(5),
		SubmissionTimeLimit: ptr(30 * time.Second),
		HetmanRotation:      ptr(false),
		Password:            ptr("pw"),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, r.Settings.MaxRounds)
	assert.Equal(t, 30*time.Second, r.Settings.SubmissionTimeLimit)
	assert.False(t, r.Settings.HetmanRotation)
	assert.True(t, r.Settings.HasPassword())

	require.NoError(t, s.UpdateSettings(r, room.SettingsPatch{Password: ptr("")}))
	assert.False(t, r.Settings.HasPassword())
}

func TestUpdateSettings_Rejects(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 1)
	r.Lock()
	defer r.Unlock()

	before := r.Settings
	err := s.UpdateSettings(r, room.SettingsPatch{MaxRounds: ptr(3), SubmissionTimeLimit: ptr(5 * time.Second)})
	assert.ErrorIs(t, err, room.ErrInvalidSettings)
	assert.Equal(t, before, r.Settings, "a rejected patch changes nothing")

	r.Phase = room.PhaseSubmitting
	err = s.UpdateSettings(r, room.SettingsPatch{MaxRounds: ptr(3)})
	assert.ErrorIs(t, err, room.ErrGameAlreadyStarted)
}

func TestFindByToken(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 3)
	r.Lock()
	defer r.Unlock()

	p := r.Players[1]
	assert.Same(t, p, s.FindByToken(r, p.Token))
	assert.Nil(t, s.FindByToken(r, "nope"))
	assert.Nil(t, s.FindByToken(r, ""))
}

func TestDeleteAndShutdown(t *testing.T) {
	s := newStore(t)
	r1 := createRoom(t, s, 1)
	r2 := createRoom(t, s, 1)

	s.Delete(r1.Code)
	s.Delete(r1.Code)
	_, err := s.Get(r1.Code)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	r2.Lock()
	r2.Timers.Schedule(timer.Session, time.Hour, func() {})
	r2.Unlock()

	s.Shutdown()
	assert.Equal(t, 0, s.Len())
	r2.Lock()
	defer r2.Unlock()
	assert.True(t, r2.Closed())
	assert.Empty(t, r2.Timers.Names())
}

func TestAddPlayer_ClosedRoom(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 1)
	r.Lock()
	defer r.Unlock()
	r.MarkClosed()
	_, err := s.AddPlayer(r, "late")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestErrorCodes(t *testing.T) {
	err := room.Errorf(room.CodeRoomFull, "custom %d", 1)
	assert.True(t, errors.Is(err, room.ErrRoomFull))
	assert.False(t, errors.Is(err, room.ErrWrongPassword))
	assert.Equal(t, room.CodeRoomFull, room.CodeOf(err))
	assert.Equal(t, room.CodeInternal, room.CodeOf(errors.New("boom")))
	assert.Equal(t, "ROOM_FULL: custom 1", err.Error())
}

func TestSettingsValidate_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rounds := rapid.IntRange(-5, 60).Draw(rt, "rounds")
		limitSec := rapid.IntRange(0, 400).Draw(rt, "limit")
		st := room.Settings{MaxRounds: rounds, SubmissionTimeLimit: time.Duration(limitSec) * time.Second}

		wantOK := rounds >= 1 && rounds <= 50 && (limitSec == 0 || (limitSec >= 10 && limitSec <= 300))
		err := st.Validate()
		if wantOK && err != nil {
			rt.Fatalf("rejected valid settings %+v: %v", st, err)
		}
		if !wantOK && !errors.Is(err, room.ErrInvalidSettings) {
			rt.Fatalf("accepted invalid settings %+v", st)
		}
	})
}

func TestPlayerTokenNeverSerializedInViews(t *testing.T) {
	s := newStore(t)
	r := createRoom(t, s, 3)
	r.Lock()
	defer r.Unlock()
	r.Players[1].Hand = []string{"secret card"}

	data, err := json.Marshal(room.PublicView(r))
	require.NoError(t, err)
	for _, p := range r.Players {
		assert.NotContains(t, string(data), p.Token)
	}
	assert.NotContains(t, string(data), "secret card")
}
