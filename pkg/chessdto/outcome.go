package chessdto

// Outcome is a finished game seen from one viewer.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeWin       Outcome = "win"
	OutcomeLoss      Outcome = "loss"
	OutcomeDraw      Outcome = "draw"
	OutcomeSpectator Outcome = "spectator"
)

// ClassifyOutcome maps the result onto viewer. OutcomeNone while the game has no result.
func ClassifyOutcome(g *GameState, viewer string) Outcome {
	if g == nil || g.Result == nil {
		return OutcomeNone
	}
	isWhite := viewer != "" && g.WhiteName() == viewer
	isBlack := viewer != "" && g.BlackName() == viewer
	if !isWhite && !isBlack {
		return OutcomeSpectator
	}
	switch *g.Result {
	case ResultWhiteWins:
		if isWhite {
			return OutcomeWin
		}
		return OutcomeLoss
	case ResultBlackWins:
		if isBlack {
			return OutcomeWin
		}
		return OutcomeLoss
	case ResultDraw:
		return OutcomeDraw
	default:
		return OutcomeNone
	}
}

// Winner returns the winning color, or "" for a draw or an unfinished game.
func Winner(g *GameState) Color {
	if g == nil || g.Result == nil {
		return ""
	}
	switch *g.Result {
	case ResultWhiteWins:
		return White
	case ResultBlackWins:
		return Black
	default:
		return ""
	}
}

// Orientation is the side shown at the bottom of the board for viewer.
func Orientation(g *GameState, viewer string) Color {
	if g != nil && viewer != "" && g.BlackName() == viewer {
		return Black
	}
	return White
}

// SeatOf returns the viewer's color, or "" when not seated.
func SeatOf(g *GameState, viewer string) Color {
	switch {
	case g == nil || viewer == "":
		return ""
	case g.WhiteName() == viewer:
		return White
	case g.BlackName() == viewer:
		return Black
	default:
		return ""
	}
}
