package composite

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/aeyemap/aeye/internal/model"
)

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func TestWriteTileProducesPNG(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "source.png")
	writeTestPNG(t, imgPath)

	tile := model.Tile{
		ZoomPlusTile: [3]float64{2, 1, 3},
		Data: []model.Representative{
			{Index: 1, Path: imgPath},
			{Index: 2, Path: filepath.Join(dir, "missing.png")},
		},
	}

	outDir := filepath.Join(dir, "out")
	if err := WriteTile(tile, Options{Dir: outDir}); err != nil {
		t.Fatalf("WriteTile: %v", err)
	}

	outPath := filepath.Join(outDir, "z2_x1_y3.png")
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected %s to exist: %v", outPath, err)
	}
}

func TestWriteTileSkipsEmptyTile(t *testing.T) {
	dir := t.TempDir()
	tile := model.Tile{ZoomPlusTile: [3]float64{0, 0, 0}}
	if err := WriteTile(tile, Options{Dir: dir}); err != nil {
		t.Fatalf("WriteTile on empty tile: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no files written for an empty tile, got %d", len(entries))
	}
}
