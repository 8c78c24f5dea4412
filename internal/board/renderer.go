// Package board draws a FEN position to PNG.
package board

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

type Options struct {
	// Orientation is the side drawn at the bottom. Empty means white.
	Orientation chessdto.Color
	// LastMove is highlighted when it parses as UCI, e.g. "e2e4".
	LastMove string
	Header   string
	Footer   string
}

type Renderer struct {
	squareSize int
	pieces     *pieceCache
}

func NewRenderer() *Renderer {
	return &Renderer{squareSize: 64, pieces: newPieceCache()}
}

const (
	sideMargin   = 28
	topMargin    = 64
	bottomMargin = 28
	panelHeight  = 28
	panelRadius  = 8
)

var (
	lightSquare     = color.RGBA{R: 0xee, G: 0xee, B: 0xd2, A: 255}
	darkSquare      = color.RGBA{R: 0x76, G: 0x96, B: 0x56, A: 255}
	backgroundColor = color.RGBA{R: 0x26, G: 0x24, B: 0x21, A: 255}
	lastMoveFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	hudPanelColor   = color.NRGBA{R: 0x3d, G: 0x3d, B: 0x3d, A: 245}
	hudShadowColor  = color.NRGBA{A: 60}
	hudTextColor    = color.NRGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 255}
	coordTextColor  = color.NRGBA{R: 0xb3, G: 0xb3, B: 0xb3, A: 255}
)

// RenderPNG parses fen and draws it. The FEN is only read, never validated as a game.
func (r *Renderer) RenderPNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	b, err := parseFEN(fen)
	if err != nil {
		return nil, err
	}
	flipped := opts.Orientation == chessdto.Black
	size := r.squareSize
	boardPx := size * 8
	origin := image.Point{X: sideMargin, Y: topMargin}

	img := image.NewRGBA(image.Rect(0, 0, boardPx+sideMargin*2, boardPx+topMargin+bottomMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	drawSquares(img, size, origin, flipped)
	if from, to, ok := parseUCI(opts.LastMove); ok {
		drawSquareOverlay(img, squareRect(from, size, origin, flipped), lastMoveFill)
		drawSquareOverlay(img, squareRect(to, size, origin, flipped), lastMoveFill)
	}
	if err := r.drawPieces(img, b, size, origin, flipped); err != nil {
		return nil, err
	}
	drawCoordinates(img, size, origin, flipped)
	drawHUD(img, image.Rect(origin.X, origin.Y, origin.X+boardPx, origin.Y+boardPx), opts)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func parseFEN(fen string) (*nchess.Board, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return nil, fmt.Errorf("empty fen")
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return nchess.NewGame(opt).Position().Board(), nil
}

// parseUCI reads the from/to squares of a UCI move. Promotion suffixes are ignored.
func parseUCI(move string) (nchess.Square, nchess.Square, bool) {
	move = strings.ToLower(strings.TrimSpace(move))
	if len(move) < 4 {
		return 0, 0, false
	}
	from, ok1 := parseSquare(move[0:2])
	to, ok2 := parseSquare(move[2:4])
	if !ok1 || !ok2 || from == to {
		return 0, 0, false
	}
	return from, to, true
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

var (
	allRanks = []nchess.Rank{nchess.Rank1, nchess.Rank2, nchess.Rank3, nchess.Rank4, nchess.Rank5, nchess.Rank6, nchess.Rank7, nchess.Rank8}
	allFiles = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
)

func drawSquares(dst *image.RGBA, size int, origin image.Point, flipped bool) {
	for _, rank := range allRanks {
		for _, file := range allFiles {
			sq := nchess.NewSquare(file, rank)
			imagedraw.Draw(dst, squareRect(sq, size, origin, flipped), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func (r *Renderer) drawPieces(dst *image.RGBA, b *nchess.Board, size int, origin image.Point, flipped bool) error {
	for sq, piece := range b.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		img, err := r.pieces.get(piece, size)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, squareRect(sq, size, origin, flipped), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

// squareRect maps a square to pixels. White at the bottom unless flipped.
func squareRect(sq nchess.Square, size int, origin image.Point, flipped bool) image.Rectangle {
	col, row := int(sq.File()), 7-int(sq.Rank())
	if flipped {
		col, row = 7-col, 7-row
	}
	x := origin.X + col*size
	y := origin.Y + row*size
	return image.Rect(x, y, x+size, y+size)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func drawSquareOverlay(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawCoordinates(dst *image.RGBA, size int, origin image.Point, flipped bool) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordTextColor)}
	ascent := face.Metrics().Ascent.Ceil()
	boardBottom := origin.Y + 8*size

	for _, rank := range allRanks {
		rect := squareRect(nchess.NewSquare(nchess.FileA, rank), size, origin, flipped)
		drawCenteredText(drawer, rank.String(), origin.X-sideMargin/2, rect.Min.Y+size/2+ascent/2)
	}
	for _, file := range allFiles {
		rect := squareRect(nchess.NewSquare(file, nchess.Rank1), size, origin, flipped)
		drawCenteredText(drawer, file.String(), rect.Min.X+size/2, boardBottom+ascent+4)
	}
}

func drawHUD(img *image.RGBA, boardRect image.Rectangle, opts Options) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Face: face}

	header := strings.TrimSpace(opts.Header)
	footer := strings.TrimSpace(opts.Footer)
	if header == "" && footer == "" {
		return
	}
	bottom := boardRect.Min.Y - 12
	top := bottom - panelHeight
	half := boardRect.Dx() / 2

	if header != "" {
		rect := image.Rect(boardRect.Min.X, top, boardRect.Min.X+half-6, bottom)
		drawRoundedPanel(img, rect.Add(image.Pt(0, 3)), panelRadius, hudShadowColor)
		drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
		drawCenteredString(drawer, rect, truncateWithEllipsis(face, header, rect.Dx()-16), hudTextColor)
	}
	if footer != "" {
		rect := image.Rect(boardRect.Max.X-half+6, top, boardRect.Max.X, bottom)
		drawRoundedPanel(img, rect.Add(image.Pt(0, 3)), panelRadius, hudShadowColor)
		drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
		drawCenteredString(drawer, rect, truncateWithEllipsis(face, footer, rect.Dx()-16), hudTextColor)
	}
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	if text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	if text == "" || maxWidth <= 0 {
		return text
	}
	d := font.Drawer{Face: face}
	if d.MeasureString(text).Round() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if c := string(runes) + "..."; d.MeasureString(c).Round() <= maxWidth {
			return c
		}
	}
	return ""
}
