package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/hetman/internal/game/event"
	"github.com/cory-johannsen/hetman/internal/game/rng"
	"github.com/cory-johannsen/hetman/internal/game/room"
	"github.com/cory-johannsen/hetman/internal/game/timer"
	"github.com/cory-johannsen/hetman/internal/observability"
)

// StartGame prepares a lobby for play: fresh decks, the host as first hetman, the
// session limit armed and the inactivity watchdog reset. It does not deal; callers
// follow it with DealRound.
//
// Precondition: r.Phase == lobby and at least MinPlayers seats are taken.
func (e *Engine) StartGame(r *room.Room) error {
	if r.Phase != room.PhaseLobby || r.PromptDeck != nil {
		return room.ErrGameAlreadyStarted
	}
	if len(r.Players) < MinPlayers {
		return room.ErrNotEnoughPlayers
	}

	r.PromptDeck = e.lib.PromptDeck(e.src)
	r.AnswerDeck = e.lib.AnswerDeck(e.src)
	r.HetmanID = r.HostID
	r.CurrentRound = 0
	r.StartedAt = e.clock.Now()
	for _, p := range r.Players {
		p.Points = 0
		p.Hand = nil
	}

	r.Timers.Schedule(timer.Session, e.cfg.SessionLimit, func() {
		if r.Closed() || r.Phase == room.PhaseGameOver {
			return
		}
		e.EndGame(r, ReasonTimeLimit)
	})
	e.Touch(r)

	observability.RoomLogger(e.logger, r.Code).Info("game started", zap.Int("players", len(r.Players)))
	return nil
}

// DealRound opens the next round: drops bot timers left from the previous round,
// refills every hand, offers prompt choices to the hetman and notifies
// HetmanPicking.
//
// Precondition: the game has been started and r.Phase is lobby or roundEnd.
func (e *Engine) DealRound(r *room.Room) error {
	started := r.Phase == room.PhaseLobby && r.PromptDeck != nil
	if !started && r.Phase != room.PhaseRoundEnd {
		return room.ErrWrongPhase
	}

	r.Timers.CancelPrefix(timer.BotPrefix)
	r.CurrentRound++
	r.Phase = room.PhaseHetmanPicking
	r.Submissions = nil
	r.BlackCard = ""
	r.SubmissionDeadline = zeroTime

	for _, p := range r.Players {
		p.Hand = append(p.Hand, e.drawAnswers(r, e.cfg.HandSize-len(p.Hand))...)
	}
	r.Offered = r.PromptDeck.Draw(e.cfg.PromptChoices)
	if len(r.Offered) == 0 {
		r.PromptDeck = e.lib.PromptDeck(e.src)
		r.Offered = r.PromptDeck.Draw(e.cfg.PromptChoices)
	}

	e.pub.PublishRoom(r.Code, event.New(event.RoundStarted, event.RoundStartedData{
		Round:     r.CurrentRound,
		MaxRounds: r.Settings.MaxRounds,
		HetmanID:  r.HetmanID,
	}))
	e.PublishRoomState(r)
	for _, p := range r.Players {
		e.publishHand(r, p)
	}
	e.pub.PublishPlayer(r.Code, r.HetmanID, event.New(event.BlackCardChoices, event.BlackCardChoicesData{
		Choices: append([]string(nil), r.Offered...),
	}))

	e.hooks.HetmanPicking(r)
	return nil
}

// drawAnswers draws n answer cards, starting a freshly shuffled deck when the
// current one runs out.
func (e *Engine) drawAnswers(r *room.Room, n int) []string {
	if n <= 0 {
		return nil
	}
	drawn := r.AnswerDeck.Draw(n)
	if len(drawn) < n {
		r.AnswerDeck = e.lib.AnswerDeck(e.src)
		drawn = append(drawn, r.AnswerDeck.Draw(n-len(drawn))...)
	}
	return drawn
}

// PickBlackCard sets the round prompt chosen by the hetman and opens submissions.
// Unchosen choices go to the bottom of the prompt deck.
func (e *Engine) PickBlackCard(r *room.Room, hetmanID, card string) error {
	if r.Phase != room.PhaseHetmanPicking {
		return room.ErrWrongPhase
	}
	if hetmanID != r.HetmanID {
		return room.ErrNotHetman
	}
	if !r.IsOffered(card) {
		return room.ErrCardNotOffered
	}

	for _, c := range r.Offered {
		if c != card {
			r.PromptDeck.PutBottom(c)
		}
	}
	r.Offered = nil
	r.BlackCard = card
	r.Phase = room.PhaseSubmitting

	picked := event.BlackCardPickedData{Card: card}
	if limit := r.Settings.SubmissionTimeLimit; limit > 0 {
		r.SubmissionDeadline = e.clock.Now().Add(limit)
		deadline := r.SubmissionDeadline
		picked.Deadline = &deadline
		round := r.CurrentRound
		r.Timers.Schedule(timer.Submission, limit, func() { e.forceSubmit(r, round) })
	}

	e.pub.PublishRoom(r.Code, event.New(event.BlackCardPicked, picked))
	e.hooks.SubmissionsOpen(r)
	return nil
}

// SubmitCard plays card from playerID's hand. When the last eligible player
// submits, judging starts.
func (e *Engine) SubmitCard(r *room.Room, playerID, card string) error {
	if r.Phase != room.PhaseSubmitting {
		return room.ErrWrongPhase
	}
	p := r.Player(playerID)
	if p == nil {
		return room.ErrPlayerNotFound
	}
	if p.ID == r.HetmanID {
		return room.Errorf(room.CodeInvalidCommand, "the hetman does not submit a card")
	}
	if r.HasSubmitted(p.ID) {
		return room.ErrAlreadySubmitted
	}
	i := p.HandIndex(card)
	if i < 0 {
		return room.ErrCardNotInHand
	}

	p.Hand = append(p.Hand[:i:i], p.Hand[i+1:]...)
	r.Submissions = append(r.Submissions, &room.Submission{
		AnonymousID: uuid.NewString(),
		PlayerID:    p.ID,
		Card:        card,
	})

	e.publishHand(r, p)
	e.pub.PublishRoom(r.Code, event.New(event.SubmissionCount, event.SubmissionCountData{
		Count:  len(r.Submissions),
		Needed: len(r.Eligible()),
	}))

	if len(r.Pending()) == 0 {
		e.startJudging(r)
	}
	return nil
}

// forceSubmit plays a random hand card for every eligible player who has not
// submitted when the submission deadline passes.
func (e *Engine) forceSubmit(r *room.Room, round int) {
	if r.Closed() || r.Phase != room.PhaseSubmitting || r.CurrentRound != round {
		return
	}
	log := observability.RoomLogger(e.logger, r.Code)
	for _, p := range r.Pending() {
		if r.Phase != room.PhaseSubmitting {
			return
		}
		if len(p.Hand) == 0 {
			continue
		}
		card := rng.Pick(e.src, p.Hand)
		if err := e.SubmitCard(r, p.ID, card); err != nil {
			log.Debug("auto-submit skipped", zap.String("player", p.ID), zap.Error(err))
			continue
		}
		log.Debug("auto-submitted for player", zap.String("player", p.ID))
	}
	if r.Phase == room.PhaseSubmitting && len(r.Submissions) > 0 {
		e.startJudging(r)
	}
}

func (e *Engine) startJudging(r *room.Room) {
	r.Timers.Cancel(timer.Submission)
	r.SubmissionDeadline = zeroTime
	r.Phase = room.PhaseJudging
	rng.Shuffle(e.src, r.Submissions)

	e.pub.PublishRoom(r.Code, event.New(event.JudgingStarted, event.JudgingStartedData{
		Card:        r.BlackCard,
		Submissions: room.AnonymousSubmissions(r),
	}))
	e.hooks.JudgingStarted(r)
}

// SelectWinner awards the round to the submission with anonymousID, reveals its
// author and schedules the move to roundEnd and then to the next round.
func (e *Engine) SelectWinner(r *room.Room, hetmanID, anonymousID string) error {
	if r.Phase != room.PhaseJudging {
		return room.ErrWrongPhase
	}
	if hetmanID != r.HetmanID {
		return room.ErrNotHetman
	}
	sub := r.Submission(anonymousID)
	if sub == nil {
		return room.ErrSubmissionNotFound
	}

	sub.IsWinner = true
	r.Phase = room.PhaseReveal
	winner := r.Player(sub.PlayerID)
	data := event.WinnerRevealedData{Submission: room.RevealedSubmission(r, sub)}
	if winner != nil {
		winner.Points++
		data.WinnerName = winner.Name
		data.Points = winner.Points
	}
	e.pub.PublishRoom(r.Code, event.New(event.WinnerRevealed, data))

	round := r.CurrentRound
	r.Timers.Schedule(timer.Advance, e.cfg.RevealDelay, func() { e.endRound(r, round) })
	return nil
}

func (e *Engine) endRound(r *room.Room, round int) {
	if r.Closed() || r.Phase != room.PhaseReveal || r.CurrentRound != round {
		return
	}
	r.Phase = room.PhaseRoundEnd
	e.pub.PublishRoom(r.Code, event.New(event.RoundEnded, event.RoundEndedData{
		Round:      round,
		Scoreboard: room.Scoreboard(r),
	}))
	r.Timers.Schedule(timer.Advance, e.cfg.RoundEndDelay, func() {
		if r.Closed() || r.Phase != room.PhaseRoundEnd || r.CurrentRound != round {
			return
		}
		if err := e.AdvanceRound(r); err != nil {
			observability.RoomLogger(e.logger, r.Code).Debug("auto-advance skipped", zap.Error(err))
		}
	})
}

// AdvanceRound ends the game when the round limit is reached; otherwise rotates
// the hetman to the next seat (when rotation is on) and deals the next round.
func (e *Engine) AdvanceRound(r *room.Room) error {
	if r.Phase != room.PhaseRoundEnd {
		return room.ErrWrongPhase
	}
	if r.CurrentRound >= r.Settings.MaxRounds {
		e.EndGame(r, ReasonRoundsComplete)
		return nil
	}
	if r.Settings.HetmanRotation {
		r.HetmanID = NextHetman(r)
	}
	return e.DealRound(r)
}

// NextHetman returns the id of the seat after the current hetman in the live seat
// order. Bot replacements keep their seat index, so the rotation is unaffected by them.
func NextHetman(r *room.Room) string {
	if len(r.Players) == 0 {
		return ""
	}
	i := r.PlayerIndex(r.HetmanID)
	return r.Players[(i+1)%len(r.Players)].ID
}

func (e *Engine) publishHand(r *room.Room, p *room.Player) {
	if p.IsBot {
		return
	}
	e.pub.PublishPlayer(r.Code, p.ID, event.New(event.HandUpdated, event.HandUpdatedData{
		Hand: append([]string{}, p.Hand...),
	}))
}
