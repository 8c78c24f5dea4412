// Package archive keeps finished games seen by this client.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

type Record struct {
	GameID     string
	Viewer     string
	White      string
	Black      string
	Result     string
	Status     string
	Outcome    chessdto.Outcome
	FinalFEN   string
	LastMove   string
	LastMoveAt string
	FinishedAt time.Time
	PGN        string
}

// Opponent is the other seat from the viewer's side, or both players for a spectator.
func (r Record) Opponent() string {
	switch r.Viewer {
	case r.White:
		return r.Black
	case r.Black:
		return r.White
	default:
		return r.White + " / " + r.Black
	}
}

type Repository interface {
	SaveResult(ctx context.Context, rec *Record) error
	Recent(ctx context.Context, viewer string, limit int) ([]Record, error)
	Close() error
}

// NewRecord builds the archive row for a terminal state. ok is false for
// games without a result.
func NewRecord(gs *chessdto.GameState, viewer, lastMove string, now time.Time) (*Record, bool) {
	if gs == nil || !gs.Status.Terminal() || gs.ResultText() == "" {
		return nil, false
	}
	finished := now
	if t, ok := gs.LastMoveTime(); ok {
		finished = t
	}
	rec := &Record{
		GameID:     gs.GameID,
		Viewer:     viewer,
		White:      gs.WhiteName(),
		Black:      gs.BlackName(),
		Result:     gs.ResultText(),
		Status:     string(gs.Status),
		Outcome:    chessdto.ClassifyOutcome(gs, viewer),
		FinalFEN:   gs.FEN,
		LastMove:   lastMove,
		LastMoveAt: gs.LastMoveAt,
		FinishedAt: finished.UTC(),
	}
	rec.PGN = buildPGN(rec)
	return rec, true
}

// buildPGN writes a headers-only PGN: the client never sees the move list,
// so the final position is carried in a FEN tag.
func buildPGN(r *Record) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	date := r.FinishedAt
	if date.IsZero() {
		date = time.Now().UTC()
	}
	b.WriteString("[Event \"Cheese Online\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizePGN(r.GameID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(orUnknown(r.White))))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(orUnknown(r.Black))))
	if r.Status != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(r.Status)))
	}
	if r.FinalFEN != "" {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizePGN(r.FinalFEN)))
	}
	result := r.Result
	if result == "" {
		result = "*"
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "?"
	}
	return s
}
