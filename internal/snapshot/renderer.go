package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize   = 72
	boardSquares = 8
	boardSize    = squareSize * boardSquares
	margin       = 28
	totalSize    = boardSize + margin*2
)

var (
	lightSquare  = color.RGBA{233, 207, 163, 255}
	darkSquare   = color.RGBA{187, 136, 96, 255}
	background   = color.NRGBA{R: 240, G: 237, B: 230, A: 255}
	lastMoveFill = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	coordColor   = color.NRGBA{R: 96, G: 90, B: 82, A: 255}
)

// Options는 한 장짜리 국면 스냅샷의 렌더 선택지.
type Options struct {
	// LastMoveUCI가 있으면 출발/도착 칸을 노랗게 칠한다.
	LastMoveUCI string
	// Flip이면 흑 시점(8랭크가 아래)으로 그린다.
	Flip bool
}

// Renderer는 체스 국면을 PNG로 그린다. 종료 판 보관용 스냅샷에 쓴다.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// RenderFEN은 FEN 국면을 그대로 그린다. record.Snapshotter 구현.
func (r *Renderer) RenderFEN(fen string, lastMoveUCI string, flip bool) ([]byte, error) {
	option, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	game := nchess.NewGame(option)
	pos := game.Position()
	if pos == nil {
		return nil, fmt.Errorf("empty position for fen %q", fen)
	}
	return r.Render(pos.Board(), Options{LastMoveUCI: lastMoveUCI, Flip: flip})
}

func (r *Renderer) Render(board *nchess.Board, opts Options) ([]byte, error) {
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}

	img := image.NewRGBA(image.Rect(0, 0, totalSize, totalSize))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, imagedraw.Src)

	drawSquares(img, opts.Flip)
	if err := drawPieces(img, board, opts.Flip); err != nil {
		return nil, err
	}
	if from, to, ok := uciSquares(opts.LastMoveUCI); ok {
		tintSquare(img, from, opts.Flip, lastMoveFill)
		tintSquare(img, to, opts.Flip, lastMoveFill)
	}
	drawCoordinates(img, opts.Flip)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawSquares(img *image.RGBA, flip bool) {
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			sq := nchess.NewSquare(file, rank)
			rect := squareRect(sq, flip)
			imagedraw.Draw(img, rect, image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(img *image.RGBA, board *nchess.Board, flip bool) error {
	boardMap := board.SquareMap()
	for sq, piece := range boardMap {
		if piece == nchess.NoPiece {
			continue
		}
		sprite, err := pieceSprite(piece, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(img, squareRect(sq, flip), sprite, image.Point{}, imagedraw.Over)
	}
	return nil
}

func tintSquare(img *image.RGBA, sq nchess.Square, flip bool, clr color.Color) {
	imagedraw.Draw(img, squareRect(sq, flip), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawCoordinates(img *image.RGBA, flip bool) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Face: face,
		Src:  image.NewUniform(coordColor),
	}
	ascent := face.Metrics().Ascent.Ceil()

	for i := 0; i < boardSquares; i++ {
		rankLabel := string('8' - rune(i))
		fileLabel := string('a' + rune(i))
		if flip {
			rankLabel = string('1' + rune(i))
			fileLabel = string('h' - rune(i))
		}

		rankBaseline := margin + i*squareSize + squareSize/2 + ascent/2
		drawCenteredText(drawer, rankLabel, margin/2, rankBaseline)

		fileCenter := margin + i*squareSize + squareSize/2
		fileBaseline := margin + boardSize + (margin+ascent)/2
		drawCenteredText(drawer, fileLabel, fileCenter, fileBaseline)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

// squareRect는 칸의 픽셀 영역. Flip이면 180도 돌려 배치한다.
func squareRect(sq nchess.Square, flip bool) image.Rectangle {
	col := int(sq.File())
	row := 7 - int(sq.Rank())
	if flip {
		col = 7 - col
		row = 7 - row
	}
	x := margin + col*squareSize
	y := margin + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

// uciSquares는 UCI 좌표 문자열에서 출발/도착 칸을 뽑는다. 승격 접미는 무시.
func uciSquares(uci string) (from, to nchess.Square, ok bool) {
	if len(uci) < 4 {
		return 0, 0, false
	}
	ff := int(uci[0] - 'a')
	fr := int(uci[1] - '1')
	tf := int(uci[2] - 'a')
	tr := int(uci[3] - '1')
	if ff < 0 || ff > 7 || fr < 0 || fr > 7 || tf < 0 || tf > 7 || tr < 0 || tr > 7 {
		return 0, 0, false
	}
	from = nchess.NewSquare(nchess.File(ff), nchess.Rank(fr))
	to = nchess.NewSquare(nchess.File(tf), nchess.Rank(tr))
	return from, to, true
}
