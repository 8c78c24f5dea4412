package presenter

import (
	"context"
	"strings"

	"github.com/park285/Cheese-chess-client/internal/board"
	"github.com/park285/Cheese-chess-client/internal/gamesession"
	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

// Presenter delivers formatted text and board images through injected sinks.
type Presenter struct {
	format      *Formatter
	renderer    *board.Renderer
	sendMessage func(message string) error
	sendImage   func(gameID string, png []byte) error
}

func NewPresenter(format *Formatter, renderer *board.Renderer, sendMessage func(string) error, sendImage func(string, []byte) error) *Presenter {
	if format == nil {
		format = NewFormatter(nil)
	}
	if renderer == nil {
		renderer = board.NewRenderer()
	}
	return &Presenter{format: format, renderer: renderer, sendMessage: sendMessage, sendImage: sendImage}
}

func (p *Presenter) Formatter() *Formatter { return p.format }

func (p *Presenter) Text(message string) error {
	if p == nil || p.sendMessage == nil || strings.TrimSpace(message) == "" {
		return nil
	}
	return p.sendMessage(message)
}

// View sends the status block for v.
func (p *Presenter) View(v gamesession.View, viewer string) error {
	return p.Text(p.format.Status(v, viewer))
}

// Board sends message, then the board for v rendered from viewer's side.
func (p *Presenter) Board(ctx context.Context, message string, v gamesession.View, viewer string) error {
	if p == nil {
		return nil
	}
	if err := p.Text(message); err != nil {
		return err
	}
	if v.Game == nil || p.sendImage == nil {
		return nil
	}
	header, footer := p.format.BoardCaptions(v.Game)
	png, err := p.renderer.RenderPNG(ctx, v.Game.FEN, board.Options{
		Orientation: chessdto.Orientation(v.Game, viewer),
		LastMove:    v.LastMove,
		Header:      header,
		Footer:      footer,
	})
	if err != nil {
		return err
	}
	return p.sendImage(v.Game.GameID, png)
}
