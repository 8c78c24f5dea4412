package board

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece outlines on a 45x45 grid. {F} and {S} are fill and stroke.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="15" r="5" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<polygon points="17,34 28,34 25.5,21 19.5,21" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	nchess.Rook: `<polygon points="13,9 17,9 17,12 20.5,12 20.5,9 24.5,9 24.5,12 28,12 28,9 32,9 32,16 13,16" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<polygon points="15.5,16 29.5,16 31,34 14,34" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	nchess.Knight: `<polygon points="14,34 31,34 30.5,22 28,13 23,9 21,12 15.5,16 12.5,22 15,24.5 20,21.5 21.5,25 15.5,30" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<circle cx="21" cy="15" r="1.2" fill="{S}" stroke="{S}" stroke-width="0.5"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="9" r="2.5" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<ellipse cx="22.5" cy="21" rx="6.5" ry="9" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<polygon points="17,34 28,34 26,29 19,29" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<line x1="20" y1="19" x2="25" y2="19" stroke="{S}" stroke-width="1.5"/>`,
	nchess.Queen: `<polygon points="11,31 34,31 36.5,13 29,24 27,10 22.5,23 18,10 16,24 8.5,13" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<circle cx="8.5" cy="12" r="2" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<circle cx="18" cy="9" r="2" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<circle cx="27" cy="9" r="2" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<circle cx="36.5" cy="12" r="2" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	nchess.King: `<rect x="21" y="5" width="3" height="11" fill="{F}" stroke="{S}" stroke-width="1.2"/>
<rect x="18" y="8" width="9" height="3" fill="{F}" stroke="{S}" stroke-width="1.2"/>
<ellipse cx="22.5" cy="23" rx="10" ry="7" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<polygon points="14,27 31,27 30,34 15,34" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
}

const pieceBase = `<rect x="11" y="34" width="23" height="4" fill="{F}" stroke="{S}" stroke-width="1.5"/>`

func pieceSVG(piece nchess.Piece) (string, error) {
	shape, ok := pieceShapes[piece.Type()]
	if !ok {
		return "", fmt.Errorf("no outline for piece %v", piece)
	}
	fill, stroke := "#ffffff", "#1a1a1a"
	if piece.Color() == nchess.Black {
		fill, stroke = "#2b2b2b", "#000000"
	}
	body := strings.NewReplacer("{F}", fill, "{S}", stroke).Replace(shape + "\n" + pieceBase)
	return `<svg xmlns="http://www.w3.org/2000/svg" width="45" height="45" viewBox="0 0 45 45">` + body + `</svg>`, nil
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

type pieceCache struct {
	mu     sync.RWMutex
	images map[pieceCacheKey]image.Image
}

func newPieceCache() *pieceCache {
	return &pieceCache{images: make(map[pieceCacheKey]image.Image)}
}

func (c *pieceCache) get(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}
	c.mu.RLock()
	img, ok := c.images[key]
	c.mu.RUnlock()
	if ok {
		return img, nil
	}

	src, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	c.mu.Lock()
	c.images[key] = rgba
	c.mu.Unlock()
	return rgba, nil
}

func (c *pieceCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}
