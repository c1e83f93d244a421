// Package gateway authenticates player connections, decodes their commands and
// routes them to the room store and the engine. It also carries the websocket
// transport and the create/join HTTP endpoints.
package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cory-johannsen/hetman/internal/game/room"
)

// Kind tags an inbound command on the wire.
type Kind string

const (
	KindSubmitCard     Kind = "submitCard"
	KindSelectWinner   Kind = "selectWinner"
	KindPickBlackCard  Kind = "pickBlackCard"
	KindStartGame      Kind = "startGame"
	KindAddBot         Kind = "addBot"
	KindReplaceWithBot Kind = "replaceWithBot"
	KindUpdateSettings Kind = "updateSettings"
	KindChat           Kind = "chat"
	KindPing           Kind = "ping"
)

// MaxChatLength is the longest chat message accepted, in runes.
const MaxChatLength = 300

// Command is a decoded inbound command.
type Command interface {
	Kind() Kind
}

type SubmitCard struct {
	Card string `json:"card"`
}

type SelectWinner struct {
	SubmissionID string `json:"submissionId"`
}

type PickBlackCard struct {
	Card string `json:"card"`
}

type StartGame struct{}

type AddBot struct{}

type ReplaceWithBot struct {
	PlayerID string `json:"playerId"`
}

// UpdateSettings carries only the fields the host wants to change.
type UpdateSettings struct {
	SettingsPayload
}

type Chat struct {
	Text string `json:"text"`
}

type Ping struct{}

func (SubmitCard) Kind() Kind     { return KindSubmitCard }
func (SelectWinner) Kind() Kind   { return KindSelectWinner }
func (PickBlackCard) Kind() Kind  { return KindPickBlackCard }
func (StartGame) Kind() Kind      { return KindStartGame }
func (AddBot) Kind() Kind         { return KindAddBot }
func (ReplaceWithBot) Kind() Kind { return KindReplaceWithBot }
func (UpdateSettings) Kind() Kind { return KindUpdateSettings }
func (Chat) Kind() Kind           { return KindChat }
func (Ping) Kind() Kind           { return KindPing }

// SettingsPayload is the wire form of a settings change, shared by the
// updateSettings command and room creation.
type SettingsPayload struct {
	MaxRounds              *int    `json:"maxRounds,omitempty"`
	SubmissionTimeLimitSec *int    `json:"submissionTimeLimitSec,omitempty"`
	HetmanRotation         *bool   `json:"hetmanRotation,omitempty"`
	Password               *string `json:"password,omitempty"`
}

// Patch converts the payload into a room.SettingsPatch.
func (s SettingsPayload) Patch() room.SettingsPatch {
	patch := room.SettingsPatch{
		MaxRounds:      s.MaxRounds,
		HetmanRotation: s.HetmanRotation,
		Password:       s.Password,
	}
	if s.SubmissionTimeLimitSec != nil {
		limit := secondsLimit(*s.SubmissionTimeLimitSec)
		patch.SubmissionTimeLimit = &limit
	}
	return patch
}

// secondsLimit converts secs to a duration. Values beyond the allowed range map to
// just outside it, so validation rejects them instead of the multiplication
// wrapping.
func secondsLimit(secs int) time.Duration {
	switch {
	case secs < 0:
		return -time.Second
	case int64(secs) > int64(room.MaxSubmissionLimit/time.Second):
		return room.MaxSubmissionLimit + time.Second
	default:
		return time.Duration(secs) * time.Second
	}
}

type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses a {"type": ..., "payload": {...}} frame into its Command and
// checks the required fields.
//
// Postcondition: Returns a Command, or an INVALID_COMMAND error.
func Decode(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, room.Errorf(room.CodeInvalidCommand, "malformed command")
	}

	switch env.Type {
	case KindSubmitCard:
		var c SubmitCard
		if err := decodePayload(env, &c); err != nil {
			return nil, err
		}
		if c.Card == "" {
			return nil, missing(env.Type, "card")
		}
		return c, nil
	case KindSelectWinner:
		var c SelectWinner
		if err := decodePayload(env, &c); err != nil {
			return nil, err
		}
		if c.SubmissionID == "" {
			return nil, missing(env.Type, "submissionId")
		}
		return c, nil
	case KindPickBlackCard:
		var c PickBlackCard
		if err := decodePayload(env, &c); err != nil {
			return nil, err
		}
		if c.Card == "" {
			return nil, missing(env.Type, "card")
		}
		return c, nil
	case KindStartGame:
		return StartGame{}, nil
	case KindAddBot:
		return AddBot{}, nil
	case KindReplaceWithBot:
		var c ReplaceWithBot
		if err := decodePayload(env, &c); err != nil {
			return nil, err
		}
		if c.PlayerID == "" {
			return nil, missing(env.Type, "playerId")
		}
		return c, nil
	case KindUpdateSettings:
		var c UpdateSettings
		if err := decodePayload(env, &c); err != nil {
			return nil, err
		}
		if c.Patch().Empty() {
			return nil, room.Errorf(room.CodeInvalidCommand, "updateSettings changes nothing")
		}
		return c, nil
	case KindChat:
		var c Chat
		if err := decodePayload(env, &c); err != nil {
			return nil, err
		}
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			return nil, missing(env.Type, "text")
		}
		if utf8.RuneCountInString(c.Text) > MaxChatLength {
			return nil, room.Errorf(room.CodeInvalidCommand, "chat text exceeds %d characters", MaxChatLength)
		}
		return c, nil
	case KindPing:
		return Ping{}, nil
	case "":
		return nil, room.Errorf(room.CodeInvalidCommand, "command type is required")
	default:
		return nil, room.Errorf(room.CodeInvalidCommand, "unknown command %q", env.Type)
	}
}

func decodePayload(env envelope, dst any) error {
	if len(env.Payload) == 0 || bytes.Equal(env.Payload, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return room.Errorf(room.CodeInvalidCommand, "malformed %s payload", env.Type)
	}
	return nil
}

func missing(k Kind, field string) error {
	return room.Errorf(room.CodeInvalidCommand, "%s requires %s", k, field)
}
