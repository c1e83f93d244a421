package room

import (
	"time"

	"github.com/cory-johannsen/hetman/internal/game/event"
)

const (
	DefaultMaxRounds = 10
	MinRounds        = 1
	MaxRoundsLimit   = 50

	MinSubmissionLimit = 10 * time.Second
	MaxSubmissionLimit = 300 * time.Second
)

// Settings are the host-editable rules of a room.
type Settings struct {
	MaxRounds int
	// SubmissionTimeLimit is zero when players may take as long as they like.
	SubmissionTimeLimit time.Duration
	HetmanRotation      bool
	// PasswordHash is a bcrypt hash; empty when the room is open.
	PasswordHash []byte
}

// DefaultSettings returns the settings of a freshly created room.
func DefaultSettings() Settings {
	return Settings{
		MaxRounds:      DefaultMaxRounds,
		HetmanRotation: true,
	}
}

// Validate checks the numeric bounds.
func (s Settings) Validate() error {
	if s.MaxRounds < MinRounds || s.MaxRounds > MaxRoundsLimit {
		return Errorf(CodeInvalidSettings, "maxRounds must be %d-%d, got %d", MinRounds, MaxRoundsLimit, s.MaxRounds)
	}
	if s.SubmissionTimeLimit != 0 &&
		(s.SubmissionTimeLimit < MinSubmissionLimit || s.SubmissionTimeLimit > MaxSubmissionLimit) {
		return Errorf(CodeInvalidSettings, "submission time limit must be 0 or %s-%s, got %s",
			MinSubmissionLimit, MaxSubmissionLimit, s.SubmissionTimeLimit)
	}
	return nil
}

// HasPassword reports whether joining requires a password.
func (s Settings) HasPassword() bool {
	return len(s.PasswordHash) > 0
}

// View returns the public form of s.
func (s Settings) View() event.SettingsView {
	return event.SettingsView{
		MaxRounds:              s.MaxRounds,
		SubmissionTimeLimitSec: int(s.SubmissionTimeLimit / time.Second),
		HetmanRotation:         s.HetmanRotation,
		HasPassword:            s.HasPassword(),
	}
}

// SettingsPatch carries the fields a host wants to change. Nil fields are left
// alone. A Password of "" removes the password.
type SettingsPatch struct {
	MaxRounds           *int
	SubmissionTimeLimit *time.Duration
	HetmanRotation      *bool
	Password            *string
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.MaxRounds == nil && p.SubmissionTimeLimit == nil && p.HetmanRotation == nil && p.Password == nil
}
