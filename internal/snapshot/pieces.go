package snapshot

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/pieces/*.svg
var pieceFiles embed.FS

type spriteKey struct {
	piece nchess.Piece
	size  int
}

// 기물 스프라이트는 한 번 래스터화해 캐시한다. 판마다 다시 그릴 이유가 없다.
var (
	spriteCache   = map[spriteKey]image.Image{}
	spriteCacheMu sync.RWMutex
)

func pieceSprite(piece nchess.Piece, size int) (image.Image, error) {
	key := spriteKey{piece: piece, size: size}

	spriteCacheMu.RLock()
	if img, ok := spriteCache[key]; ok {
		spriteCacheMu.RUnlock()
		return img, nil
	}
	spriteCacheMu.RUnlock()

	name := pieceAssetName(piece)
	data, err := pieceFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read piece asset %s: %w", name, err)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(normalizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", name, err)
	}
	if icon.ViewBox.W <= 0 {
		icon.ViewBox.W = float64(size)
	}
	if icon.ViewBox.H <= 0 {
		icon.ViewBox.H = float64(size)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	spriteCacheMu.Lock()
	spriteCache[key] = img
	spriteCacheMu.Unlock()

	return img, nil
}

func pieceAssetName(piece nchess.Piece) string {
	var prefix string
	if piece.Color() == nchess.White {
		prefix = "w"
	} else {
		prefix = "b"
	}

	var suffix string
	switch piece.Type() {
	case nchess.King:
		suffix = "K"
	case nchess.Queen:
		suffix = "Q"
	case nchess.Rook:
		suffix = "R"
	case nchess.Bishop:
		suffix = "B"
	case nchess.Knight:
		suffix = "N"
	case nchess.Pawn:
		suffix = "P"
	}

	return fmt.Sprintf("assets/pieces/%s%s.svg", prefix, suffix)
}

// normalizeSVG는 파서가 걸려 넘어지는 style 표기 변형을 정리한다.
func normalizeSVG(svg []byte) []byte {
	fixed := bytes.ReplaceAll(svg, []byte("fill: #"), []byte("fill:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("stroke: #"), []byte("stroke:#"))
	fixed = bytes.ReplaceAll(fixed, []byte("stop-color: #"), []byte("stop-color:#"))
	return fixed
}
