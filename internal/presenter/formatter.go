package presenter

import (
	"fmt"
	"strings"

	"github.com/park285/Cheese-chess-client/internal/archive"
	"github.com/park285/Cheese-chess-client/internal/gamesession"
	"github.com/park285/Cheese-chess-client/internal/livechan"
	"github.com/park285/Cheese-chess-client/internal/msgcat"
	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

// Formatter renders session views into console text using the message catalog.
type Formatter struct {
	cat *msgcat.Catalog
}

func NewFormatter(cat *msgcat.Catalog) *Formatter {
	if cat == nil {
		cat = msgcat.MustNew()
	}
	return &Formatter{cat: cat}
}

type kv = map[string]any

func (f *Formatter) Identity(id *chessdto.Identity) string {
	if id == nil {
		return f.cat.Text("identity.anonymous", nil)
	}
	return f.cat.Text("identity.header", kv{"Username": id.Username, "Rating": id.Rating})
}

func (f *Formatter) Registered(username string) string {
	return f.cat.Text("identity.registered", kv{"Username": username})
}

func (f *Formatter) LoggedOut() string { return f.cat.Text("identity.logged_out", nil) }

// EvaluationText is "Label / 82.0%": probability_good as a percentage with one decimal.
func EvaluationText(e *chessdto.Evaluation) string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s / %.1f%%", e.Label, e.ProbabilityGood*100)
}

func (f *Formatter) ColorName(c chessdto.Color) string {
	switch c {
	case chessdto.White:
		return f.cat.Text("color.white", nil)
	case chessdto.Black:
		return f.cat.Text("color.black", nil)
	default:
		return string(c)
	}
}

func (f *Formatter) seat(name string) string {
	if name == "" {
		return f.cat.Text("status.open_seat", nil)
	}
	return name
}

// Status renders the whole game panel for viewer.
func (f *Formatter) Status(v gamesession.View, viewer string) string {
	var lines []string
	if v.Notice != "" {
		lines = append(lines, f.cat.Text("status.notice", kv{"Text": v.Notice}))
	}
	gs := v.Game
	if gs == nil {
		lines = append(lines, f.cat.Text("status.no_game", nil))
		return strings.Join(lines, "\n")
	}

	lines = append(lines,
		f.cat.Text("status.title", kv{"GameID": gs.GameID}),
		f.cat.Text("status.players", kv{"White": f.seat(gs.WhiteName()), "Black": f.seat(gs.BlackName())}),
	)
	if seat := chessdto.SeatOf(gs, viewer); seat != "" {
		lines = append(lines, f.cat.Text("status.you", kv{"Color": f.ColorName(seat)}))
	} else if viewer != "" && gs.Status != chessdto.StatusWaiting {
		lines = append(lines, f.cat.Text("status.spectating", nil))
	}

	switch {
	case gs.Status == chessdto.StatusWaiting:
		lines = append(lines, f.cat.Text("status.waiting", kv{"GameID": gs.GameID}))
	case gs.Status == chessdto.StatusOngoing:
		lines = append(lines, f.cat.Text("status.ongoing", kv{"Turn": f.ColorName(gs.Turn), "Yours": chessdto.SeatOf(gs, viewer) == gs.Turn}))
	case gs.Status.Terminal():
		lines = append(lines, f.cat.Text("status.finished", kv{"Result": gs.ResultText()}))
	}
	if v.LastMove != "" {
		lines = append(lines, f.cat.Text("status.last_move", kv{"Move": v.LastMove}))
	}
	if v.Evaluation != nil {
		lines = append(lines, f.cat.Text("evaluation.panel", kv{"Label": v.Evaluation.Label, "Percent": fmt.Sprintf("%.1f%%", v.Evaluation.ProbabilityGood*100)}))
	}
	if v.Suggestion != "" {
		lines = append(lines, f.cat.Text("suggestion.line", kv{"Move": v.Suggestion}))
	}
	if gs.Status.Terminal() {
		title, desc := f.ResultOverlay(gs, viewer)
		lines = append(lines, title, desc)
	}
	if by := gs.RematchRequester(); by != "" {
		seated := chessdto.SeatOf(gs, viewer) != ""
		lines = append(lines, f.cat.Text("status.rematch_requested", kv{"By": by, "CanAccept": seated && by != viewer}))
	}
	if v.Pending != gamesession.ActionNone {
		lines = append(lines, f.cat.Text("status.pending", kv{"Action": strings.ReplaceAll(string(v.Pending), "_", " ")}))
	}
	if v.Live != livechan.StateConnected {
		lines = append(lines, f.cat.Text("status.live", kv{"State": v.Live.String()}))
	}
	return strings.Join(lines, "\n")
}

// ResultOverlay returns the title and description shown when a game ends.
func (f *Formatter) ResultOverlay(gs *chessdto.GameState, viewer string) (string, string) {
	if gs == nil || gs.ResultText() == "" {
		return "", ""
	}
	var title string
	switch chessdto.ClassifyOutcome(gs, viewer) {
	case chessdto.OutcomeWin:
		title = f.cat.Text("result.win", nil)
	case chessdto.OutcomeLoss:
		title = f.cat.Text("result.loss", nil)
	case chessdto.OutcomeDraw:
		title = f.cat.Text("result.draw", nil)
	default:
		switch chessdto.Winner(gs) {
		case chessdto.White:
			title = f.cat.Text("result.white_wins", nil)
		case chessdto.Black:
			title = f.cat.Text("result.black_wins", nil)
		default:
			title = f.cat.Text("result.draw", nil)
		}
	}

	var desc string
	switch gs.Status {
	case chessdto.StatusCheckmate:
		desc = f.cat.Text("result.checkmate", nil)
	case chessdto.StatusStalemate:
		desc = f.cat.Text("result.stalemate", nil)
	case chessdto.StatusDraw:
		desc = f.cat.Text("result.draw_status", nil)
	case chessdto.StatusResignation:
		desc = f.cat.Text("result.resignation", nil)
	default:
		desc = f.cat.Text("result.final", kv{"Result": gs.ResultText()})
	}
	return title, desc
}

func (f *Formatter) OpenGames(games []chessdto.OpenGameSummary) string {
	if len(games) == 0 {
		return f.cat.Text("games.empty", nil)
	}
	lines := []string{f.cat.Text("games.header", nil)}
	for _, g := range games {
		lines = append(lines, f.cat.Text("games.row", kv{"GameID": g.GameID, "Needs": f.ColorName(g.NeedsPlayer), "CreatedAt": g.CreatedAt}))
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) History(records []archive.Record) string {
	if len(records) == 0 {
		return f.cat.Text("history.empty", nil)
	}
	lines := []string{f.cat.Text("history.header", nil)}
	for _, r := range records {
		lines = append(lines, f.cat.Text("history.row", kv{
			"FinishedAt": r.FinishedAt.Format("2006-01-02 15:04"),
			"GameID":     r.GameID,
			"Result":     r.Result,
			"Outcome":    string(r.Outcome),
			"Opponent":   r.Opponent(),
		}))
	}
	return strings.Join(lines, "\n")
}

// BoardCaptions returns the HUD header and footer for the rendered board.
func (f *Formatter) BoardCaptions(gs *chessdto.GameState) (string, string) {
	if gs == nil {
		return "", ""
	}
	header := f.seat(gs.WhiteName()) + " vs " + f.seat(gs.BlackName())
	switch {
	case gs.Status == chessdto.StatusOngoing:
		return header, f.cat.Text("board.hud_turn", kv{"Turn": f.ColorName(gs.Turn)})
	case gs.Status.Terminal():
		return header, f.cat.Text("board.hud_result", kv{"Result": gs.ResultText(), "Status": string(gs.Status)})
	default:
		return header, string(gs.Status)
	}
}

func (f *Formatter) BoardSaved(path string) string {
	return f.cat.Text("board.saved", kv{"Path": path})
}

func (f *Formatter) Help() string { return strings.TrimRight(f.cat.Text("help", nil), "\n") }

// Error renders err as a one-line notice.
func (f *Formatter) Error(err error) string {
	if err == nil {
		return ""
	}
	return f.cat.Text("status.notice", kv{"Text": chessdto.UserMessage(err)})
}
