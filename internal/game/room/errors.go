package room

import (
	"errors"
	"fmt"
)

// Code classifies a domain error on the wire.
type Code string

const (
	CodeInvalidCommand     Code = "INVALID_COMMAND"
	CodeNotHost            Code = "NOT_HOST"
	CodeNotHetman          Code = "NOT_HETMAN"
	CodeWrongPhase         Code = "WRONG_PHASE"
	CodeGameAlreadyStarted Code = "GAME_ALREADY_STARTED"
	CodeNotEnoughPlayers   Code = "NOT_ENOUGH_PLAYERS"
	CodeAlreadySubmitted   Code = "ALREADY_SUBMITTED"
	CodeCardNotInHand      Code = "CARD_NOT_IN_HAND"
	CodeCardNotOffered     Code = "CARD_NOT_OFFERED"
	CodeSubmissionNotFound Code = "SUBMISSION_NOT_FOUND"
	CodePlayerNotFound     Code = "PLAYER_NOT_FOUND"
	CodeRoomNotFound       Code = "ROOM_NOT_FOUND"
	CodeRoomFull           Code = "ROOM_FULL"
	CodeWrongPassword      Code = "WRONG_PASSWORD"
	CodeInvalidSettings    Code = "INVALID_SETTINGS"
	CodeInvalidSession     Code = "INVALID_SESSION"
	CodeInternal           Code = "INTERNAL"
)

// Error is a typed domain error raised by the store and the engine.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so errors.Is(err, ErrRoomFull) holds
// for an Errorf(CodeRoomFull, ...) with a custom message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidCommand     = &Error{CodeInvalidCommand, "invalid command"}
	ErrNotHost            = &Error{CodeNotHost, "only the host can do that"}
	ErrNotHetman          = &Error{CodeNotHetman, "only the hetman can do that"}
	ErrWrongPhase         = &Error{CodeWrongPhase, "not allowed in the current phase"}
	ErrGameAlreadyStarted = &Error{CodeGameAlreadyStarted, "the game has already started"}
	ErrNotEnoughPlayers   = &Error{CodeNotEnoughPlayers, "at least 3 players are needed"}
	ErrAlreadySubmitted   = &Error{CodeAlreadySubmitted, "you already submitted a card this round"}
	ErrCardNotInHand      = &Error{CodeCardNotInHand, "that card is not in your hand"}
	ErrCardNotOffered     = &Error{CodeCardNotOffered, "that card was not offered"}
	ErrSubmissionNotFound = &Error{CodeSubmissionNotFound, "no such submission"}
	ErrPlayerNotFound     = &Error{CodePlayerNotFound, "no such player"}
	ErrRoomNotFound       = &Error{CodeRoomNotFound, "no such room"}
	ErrRoomFull           = &Error{CodeRoomFull, "the room is full"}
	ErrWrongPassword      = &Error{CodeWrongPassword, "wrong password"}
	ErrInvalidSettings    = &Error{CodeInvalidSettings, "invalid settings"}
	ErrInvalidSession     = &Error{CodeInvalidSession, "invalid session"}
)

// CodeOf returns the domain code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
