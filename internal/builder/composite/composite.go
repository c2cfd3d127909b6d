// Package composite writes debug PNG grids of a tile's representative
// thumbnails, gated behind the Tile Builder's --images flag. This is a
// visualization aid only: the Clusters and Image-To-Tile collections
// never reference these files.
package composite

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	ximagedraw "golang.org/x/image/draw"

	"github.com/aeyemap/aeye/internal/model"
)

const (
	thumbSize = 64
	cols      = 8
)

// Options tunes where WriteTile writes its output.
type Options struct {
	Dir string
}

// WriteTile lays tile's representative thumbnails out on a grid, each
// scaled to fill a thumbSize square (the source aspect ratio is not
// preserved), and writes the result as
// <dir>/z{Z}_x{X}_y{Y}.png. A representative whose source image can't be
// opened or decoded leaves a blank cell rather than failing the whole
// tile, since these files are a debugging aid, not part of the persisted
// pyramid.
//
// Grounded on original_source's resize_images.py (fixed-size
// thumbnailing while building a dataset's visual index) and the
// golang.org/x/image/webp transcoding idiom in the example pack's
// webp_to_png tool (image.Decode against registered format decoders,
// golang.org/x/image for the scale step stdlib doesn't provide).
func WriteTile(tile model.Tile, opts Options) error {
	if len(tile.Data) == 0 {
		return nil
	}
	rows := (len(tile.Data) + cols - 1) / cols
	canvas := image.NewRGBA(image.Rect(0, 0, cols*thumbSize, rows*thumbSize))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for i, rep := range tile.Data {
		cx := (i % cols) * thumbSize
		cy := (i / cols) * thumbSize
		cell := image.Rect(cx, cy, cx+thumbSize, cy+thumbSize)
		pasteThumbnail(canvas, cell, rep.Path)
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("z%d_x%d_y%d.png", tile.Zoom(), tile.TileX(), tile.TileY())
	f, err := os.Create(filepath.Join(opts.Dir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, canvas)
}

func pasteThumbnail(canvas *image.RGBA, cell image.Rectangle, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return
	}
	ximagedraw.ApproxBiLinear.Scale(canvas, cell, src, src.Bounds(), ximagedraw.Over, nil)
}
