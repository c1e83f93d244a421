package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/game/engine"
	"github.com/cory-johannsen/hetman/internal/game/event"
	"github.com/cory-johannsen/hetman/internal/game/room"
	"github.com/cory-johannsen/hetman/internal/observability"
)

// fanout routes engine hooks to the bot controller, the result archive and the
// session table.
type fanout struct {
	g *Gateway
}

func (f *fanout) HetmanPicking(r *room.Room)   { f.g.bots.HetmanPicking(r) }
func (f *fanout) SubmissionsOpen(r *room.Room) { f.g.bots.SubmissionsOpen(r) }
func (f *fanout) JudgingStarted(r *room.Room)  { f.g.bots.JudgingStarted(r) }

// GameOver archives res without holding the room lock.
func (f *fanout) GameOver(r *room.Room, res engine.Result) {
	if f.g.archive == nil {
		return
	}
	log := observability.RoomLogger(f.g.logger, r.Code)
	f.g.archiving.Add(1)
	go func() {
		defer f.g.archiving.Done()
		ctx, cancel := context.WithTimeout(context.Background(), f.g.cfg.ArchiveTimeout)
		defer cancel()
		if err := f.g.archive.SaveResult(ctx, res); err != nil {
			log.Error("archiving game result", zap.Error(err))
			return
		}
		log.Info("game result archived")
	}()
}

// RoomClosed disconnects every session of code.
func (f *fanout) RoomClosed(code string) {
	f.g.bus.CloseRoom(code)
	f.g.forgetRoom(code)
}

// errorNotice converts err into the private error notice. Errors without a domain
// code are reported as INTERNAL with a generic message.
func errorNotice(err error) event.Notice {
	var de *room.Error
	if errors.As(err, &de) && de.Code != room.CodeInternal {
		return event.New(event.Error, event.ErrorData{Code: string(de.Code), Message: de.Message})
	}
	return event.New(event.Error, event.ErrorData{Code: string(room.CodeInternal), Message: "internal error"})
}

func encode(n event.Notice) ([]byte, error) {
	return json.Marshal(n)
}
