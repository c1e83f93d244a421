package room

import (
	"sort"

	"github.com/cory-johannsen/hetman/internal/game/event"
)

// PlayerView returns the public record of p.
func PlayerView(r *Room, p *Player) event.PlayerView {
	return event.PlayerView{
		ID:          p.ID,
		Name:        p.Name,
		IsBot:       p.IsBot,
		IsConnected: p.IsConnected,
		IsHost:      p.IsHost,
		IsHetman:    p.ID == r.HetmanID,
		Points:      p.Points,
		HandSize:    len(p.Hand),
	}
}

// PublicView returns what every room member may see. Tokens and hands are never
// included. While submissions are open only their count is shown; while judging
// they are anonymous {id, card} pairs; from reveal on they carry their authors.
func PublicView(r *Room) event.RoomView {
	v := event.RoomView{
		Code:            r.Code,
		HostID:          r.HostID,
		Phase:           string(r.Phase),
		Settings:        r.Settings.View(),
		Players:         make([]event.PlayerView, 0, len(r.Players)),
		CurrentRound:    r.CurrentRound,
		HetmanID:        r.HetmanID,
		BlackCard:       r.BlackCard,
		Submissions:     []event.SubmissionView{},
		SubmissionCount: len(r.Submissions),
		CreatedAt:       r.CreatedAt,
	}
	for _, p := range r.Players {
		v.Players = append(v.Players, PlayerView(r, p))
	}
	if r.Phase == PhaseSubmitting && !r.SubmissionDeadline.IsZero() {
		deadline := r.SubmissionDeadline
		v.SubmissionDeadline = &deadline
	}
	switch {
	case r.Phase.Revealed():
		for _, s := range r.Submissions {
			v.Submissions = append(v.Submissions, RevealedSubmission(r, s))
		}
	case r.Phase == PhaseJudging:
		v.Submissions = AnonymousSubmissions(r)
	}
	return v
}

// AnonymousSubmissions returns the submissions as {id, card} pairs in stored order.
func AnonymousSubmissions(r *Room) []event.SubmissionView {
	out := make([]event.SubmissionView, 0, len(r.Submissions))
	for _, s := range r.Submissions {
		out = append(out, event.SubmissionView{ID: s.AnonymousID, Card: s.Card})
	}
	return out
}

// RevealedSubmission returns s with its author.
func RevealedSubmission(r *Room, s *Submission) event.SubmissionView {
	v := event.SubmissionView{
		ID:       s.AnonymousID,
		Card:     s.Card,
		PlayerID: s.PlayerID,
		IsWinner: s.IsWinner,
	}
	if p := r.Player(s.PlayerID); p != nil {
		v.PlayerName = p.Name
	}
	return v
}

// PrivateView returns the snapshot sent to playerID on connect: the public view
// plus the player's own record, hand and, for a picking hetman, the offered prompts.
func PrivateView(r *Room, playerID string) (event.SnapshotData, error) {
	p := r.Player(playerID)
	if p == nil {
		return event.SnapshotData{}, ErrPlayerNotFound
	}
	snap := event.SnapshotData{
		Room: PublicView(r),
		Me:   PlayerView(r, p),
		Hand: append([]string{}, p.Hand...),
	}
	if r.Phase == PhaseHetmanPicking && p.ID == r.HetmanID {
		snap.Offered = append([]string(nil), r.Offered...)
	}
	return snap, nil
}

// Scoreboard returns every player ordered by points descending; ties keep seat order.
func Scoreboard(r *Room) []event.ScoreEntry {
	out := make([]event.ScoreEntry, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, event.ScoreEntry{PlayerID: p.ID, Name: p.Name, Points: p.Points})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	return out
}
