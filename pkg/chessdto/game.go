package chessdto

import (
	"fmt"
	"strings"
	"time"
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// ParseColor accepts white/black and their one-letter forms.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return "", false
	}
}

type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusOngoing     Status = "ongoing"
	StatusCheckmate   Status = "checkmate"
	StatusStalemate   Status = "stalemate"
	StatusDraw        Status = "draw"
	StatusResignation Status = "resignation"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCheckmate, StatusStalemate, StatusDraw, StatusResignation:
		return true
	default:
		return false
	}
}

func (s Status) Known() bool {
	return s == StatusWaiting || s == StatusOngoing || s.Terminal()
}

const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
)

// GameState is one complete server snapshot of a game.
type GameState struct {
	GameID             string  `json:"game_id"`
	FEN                string  `json:"fen"`
	Status             Status  `json:"status"`
	Result             *string `json:"result"`
	Turn               Color   `json:"turn"`
	PlayerWhite        *string `json:"player_white"`
	PlayerBlack        *string `json:"player_black"`
	LastMoveAt         string  `json:"last_move_at"`
	RematchRequestedBy *string `json:"rematch_requested_by"`
}

// Validate rejects snapshots that cannot be held as current.
func (g *GameState) Validate() error {
	if g == nil {
		return fmt.Errorf("nil game state")
	}
	if strings.TrimSpace(g.GameID) == "" {
		return fmt.Errorf("game state without game_id")
	}
	if !g.Status.Known() {
		return fmt.Errorf("game %s: unknown status %q", g.GameID, g.Status)
	}
	hasResult := g.Result != nil && strings.TrimSpace(*g.Result) != ""
	if hasResult != g.Status.Terminal() {
		return fmt.Errorf("game %s: status %q inconsistent with result %q", g.GameID, g.Status, deref(g.Result))
	}
	if hasResult {
		switch *g.Result {
		case ResultWhiteWins, ResultBlackWins, ResultDraw:
		default:
			return fmt.Errorf("game %s: unknown result %q", g.GameID, *g.Result)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (g *GameState) Clone() *GameState {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Result = cloneStr(g.Result)
	cp.PlayerWhite = cloneStr(g.PlayerWhite)
	cp.PlayerBlack = cloneStr(g.PlayerBlack)
	cp.RematchRequestedBy = cloneStr(g.RematchRequestedBy)
	return &cp
}

func (g *GameState) ResultText() string       { return deref(g.Result) }
func (g *GameState) WhiteName() string        { return deref(g.PlayerWhite) }
func (g *GameState) BlackName() string        { return deref(g.PlayerBlack) }
func (g *GameState) RematchRequester() string { return deref(g.RematchRequestedBy) }

// HasPlayer reports whether username occupies either seat.
func (g *GameState) HasPlayer(username string) bool {
	if g == nil || username == "" {
		return false
	}
	return g.WhiteName() == username || g.BlackName() == username
}

var lastMoveLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123,
	time.RFC1123Z,
	"Mon, 02 Jan 2006 15:04:05 GMT",
}

// LastMoveTime parses last_move_at. Zone-less timestamps are read as UTC.
func (g *GameState) LastMoveTime() (time.Time, bool) {
	if g == nil {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(g.LastMoveAt)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range lastMoveLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// OlderThan reports whether g is strictly older than other by last_move_at.
// Unparseable timestamps never count as older.
func (g *GameState) OlderThan(other *GameState) bool {
	a, ok := g.LastMoveTime()
	if !ok {
		return false
	}
	b, ok := other.LastMoveTime()
	if !ok {
		return false
	}
	return a.Before(b)
}

type Evaluation struct {
	Label           string  `json:"label"`
	ProbabilityGood float64 `json:"probability_good"`
}

// MoveOutcome is the response to a move, and the shape of game_update pushes.
type MoveOutcome struct {
	GameState
	LastMove   string      `json:"last_move,omitempty"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}

type OpenGameSummary struct {
	GameID      string `json:"game_id"`
	NeedsPlayer Color  `json:"needs_player"`
	CreatedAt   string `json:"created_at"`
}

func StringPtr(s string) *string { return &s }

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
