// smolviz renders a heap image as a PNG block map: one rectangle per
// block, scaled by byte size, colored by type, reachable blocks saturated
// and garbage faded.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	smol "github.com/ink-splatters/smol-world"
)

var (
	outPath  = flag.String("o", "heap.png", "output PNG path")
	fontPath = flag.String("font", "", "TTF font for labels (labels omitted if unset)")
	width    = flag.Int("w", 1280, "image width")
	height   = flag.Int("h", 720, "image height")
)

var typeColors = map[smol.Type]color.RGBA{
	smol.TFloat:  {0x8e, 0x44, 0xad, 0xff},
	smol.TBigInt: {0x9b, 0x59, 0xb6, 0xff},
	smol.TString: {0x27, 0xae, 0x60, 0xff},
	smol.TSymbol: {0x16, 0xa0, 0x85, 0xff},
	smol.TBlob:   {0x7f, 0x8c, 0x8d, 0xff},
	smol.TArray:  {0x29, 0x80, 0xb9, 0xff},
	smol.TVector: {0x34, 0x98, 0xdb, 0xff},
	smol.TDict:   {0xe6, 0x7e, 0x22, 0xff},
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: smolviz [flags] <image>")
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	h, err := smol.Adopt(data, uint32(len(data)))
	if err != nil {
		log.Fatal(err)
	}

	live := map[smol.Pos]bool{}
	h.Visit(func(b smol.Pos) bool { live[b] = true; return true })

	c := gg.NewContext(*width, *height)
	c.SetRGB(1, 1, 1)
	c.DrawRectangle(0, 0, float64(*width), float64(*height))
	c.Fill()

	if *fontPath != "" {
		if err := setFontFace(c, *fontPath, 14); err != nil {
			log.Fatal(err)
		}
	}

	const margin = 24
	const rowH = 36
	const rowGap = 8
	usable := float64(*width - 2*margin)
	bytesPerRow := float64(h.Used()) / float64((*height-2*margin)/(rowH+rowGap))
	if bytesPerRow < 1 {
		bytesPerRow = float64(h.Used())
	}
	scale := usable / bytesPerRow

	blockRect := func(b smol.Pos, size uint32) (x, y, w float64, row int) {
		off := float64(uint32(b))
		row = int(off / bytesPerRow)
		x = float64(margin) + (off-float64(row)*bytesPerRow)*scale
		y = float64(margin + row*(rowH+rowGap))
		w = float64(size) * scale
		return
	}

	type blockInfo struct {
		pos  smol.Pos
		typ  smol.Type
		size uint32
	}
	var blocks []blockInfo
	h.VisitAll(func(b smol.Pos) bool {
		blocks = append(blocks, blockInfo{b, h.BlockType(b), h.BlockSize(b)})
		return true
	})

	for _, b := range blocks {
		x, y, w, _ := blockRect(b.pos, b.size+8)
		col := typeColors[b.typ]
		if !live[b.pos] {
			// Garbage: fade toward the background.
			col = color.RGBA{
				R: uint8((int(col.R) + 3*255) / 4),
				G: uint8((int(col.G) + 3*255) / 4),
				B: uint8((int(col.B) + 3*255) / 4),
				A: 0xff,
			}
		}
		c.SetColor(col)
		c.DrawRectangle(x, y, maxf(w, 2), rowH)
		c.Fill()
		if *fontPath != "" && w > 48 {
			c.SetColor(color.Black)
			c.DrawStringAnchored(b.typ.String(), x+4, y+rowH/2, 0, 0.5)
		}
	}

	// Legend.
	if *fontPath != "" {
		lx := float64(margin)
		ly := float64(*height - margin)
		for t := smol.TFloat; t <= smol.TDict; t++ {
			c.SetColor(typeColors[t])
			c.DrawRectangle(lx, ly-12, 12, 12)
			c.Fill()
			c.SetColor(color.Black)
			c.DrawStringAnchored(t.String(), lx+16, ly-6, 0, 0.5)
			lx += 100
		}
	}

	if err := c.SavePNG(*outPath); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s: %d blocks, %d reachable, %d/%d bytes used\n",
		*outPath, len(blocks), len(live), h.Used(), h.Capacity())
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

var (
	fontCache = map[string]*truetype.Font{}
	faceCache = map[string]font.Face{}
)

func setFontFace(c *gg.Context, path string, size float64) error {
	key := fmt.Sprintf("%s@%g", path, size)
	if f, ok := faceCache[key]; ok {
		c.SetFontFace(f)
		return nil
	}
	ft, ok := fontCache[path]
	if !ok {
		fontBytes, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		ft, err = truetype.Parse(fontBytes)
		if err != nil {
			return err
		}
		fontCache[path] = ft
	}
	f := truetype.NewFace(ft, &truetype.Options{Size: size})
	faceCache[key] = f
	c.SetFontFace(f)
	return nil
}
