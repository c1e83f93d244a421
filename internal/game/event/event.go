// Package event defines every server-to-client notice and its payload.
package event

import "time"

// Type tags a Notice on the wire.
type Type string

const (
	RoomState           Type = "roomState"
	Snapshot            Type = "snapshot"
	RoundStarted        Type = "roundStarted"
	HandUpdated         Type = "handUpdated"
	BlackCardChoices    Type = "blackCardChoices"
	BlackCardPicked     Type = "blackCardPicked"
	SubmissionCount     Type = "submissionCount"
	JudgingStarted      Type = "judgingStarted"
	WinnerRevealed      Type = "winnerRevealed"
	RoundEnded          Type = "roundEnded"
	GameOver            Type = "gameOver"
	PlayerJoined        Type = "playerJoined"
	PlayerReconnected   Type = "playerReconnected"
	PlayerDisconnected  Type = "playerDisconnected"
	PlayerReplacedByBot Type = "playerReplacedByBot"
	SettingsUpdated     Type = "settingsUpdated"
	Chat                Type = "chat"
	Error               Type = "error"
	Pong                Type = "pong"
)

// Notice is the outbound envelope: {"type": ..., "data": {...}}.
type Notice struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

// New builds a Notice.
func New(t Type, data any) Notice {
	return Notice{Type: t, Data: data}
}

// PlayerView is the public record of a seat. It never carries the token or hand.
type PlayerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsBot       bool   `json:"isBot"`
	IsConnected bool   `json:"isConnected"`
	IsHost      bool   `json:"isHost"`
	IsHetman    bool   `json:"isHetman"`
	Points      int    `json:"points"`
	HandSize    int    `json:"handSize"`
}

// SubmissionView is a submission as shown to clients. While judging is open only
// ID and Card are set.
type SubmissionView struct {
	ID         string `json:"id"`
	Card       string `json:"card"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
	IsWinner   bool   `json:"isWinner,omitempty"`
}

// SettingsView is the public form of room settings.
type SettingsView struct {
	MaxRounds              int  `json:"maxRounds"`
	SubmissionTimeLimitSec int  `json:"submissionTimeLimitSec"`
	HetmanRotation         bool `json:"hetmanRotation"`
	HasPassword            bool `json:"hasPassword"`
}

// RoomView is the public room state every member may see.
type RoomView struct {
	Code               string           `json:"code"`
	HostID             string           `json:"hostId"`
	Phase              string           `json:"phase"`
	Settings           SettingsView     `json:"settings"`
	Players            []PlayerView     `json:"players"`
	CurrentRound       int              `json:"currentRound"`
	HetmanID           string           `json:"hetmanId,omitempty"`
	BlackCard          string           `json:"blackCard,omitempty"`
	Submissions        []SubmissionView `json:"submissions"`
	SubmissionCount    int              `json:"submissionCount"`
	SubmissionDeadline *time.Time       `json:"submissionDeadline,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
}

// SnapshotData is the private state sent once to a freshly connected session.
type SnapshotData struct {
	Room    RoomView   `json:"room"`
	Me      PlayerView `json:"me"`
	Hand    []string   `json:"hand"`
	Offered []string   `json:"offered,omitempty"`
}

// ScoreEntry is one scoreboard line.
type ScoreEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
}

type RoundStartedData struct {
	Round     int    `json:"round"`
	MaxRounds int    `json:"maxRounds"`
	HetmanID  string `json:"hetmanId"`
}

type HandUpdatedData struct {
	Hand []string `json:"hand"`
}

type BlackCardChoicesData struct {
	Choices []string `json:"choices"`
}

type BlackCardPickedData struct {
	Card     string     `json:"card"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// SubmissionCountData carries no card text and no identity.
type SubmissionCountData struct {
	Count  int `json:"count"`
	Needed int `json:"needed"`
}

type JudgingStartedData struct {
	Card        string           `json:"card"`
	Submissions []SubmissionView `json:"submissions"`
}

type WinnerRevealedData struct {
	Submission SubmissionView `json:"submission"`
	WinnerName string         `json:"winnerName"`
	Points     int            `json:"points"`
}

type RoundEndedData struct {
	Round      int          `json:"round"`
	Scoreboard []ScoreEntry `json:"scoreboard"`
}

// GameOverData reports the final result. TiedIDs lists every player sharing the
// top score when there is more than one.
type GameOverData struct {
	Reason     string       `json:"reason"`
	WinnerID   string       `json:"winnerId,omitempty"`
	WinnerName string       `json:"winnerName,omitempty"`
	TiedIDs    []string     `json:"tiedIds,omitempty"`
	Rounds     int          `json:"rounds"`
	Scoreboard []ScoreEntry `json:"scoreboard"`
}

type PlayerJoinedData struct {
	Player PlayerView `json:"player"`
}

type PlayerStatusData struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type PlayerReplacedData struct {
	ReplacedID string     `json:"replacedId"`
	Bot        PlayerView `json:"bot"`
}

type SettingsUpdatedData struct {
	Settings SettingsView `json:"settings"`
}

type ChatData struct {
	PlayerID string    `json:"playerId"`
	Name     string    `json:"name"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongData struct {
	ServerTime time.Time `json:"serverTime"`
}
