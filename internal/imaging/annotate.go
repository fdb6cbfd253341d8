package imaging

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/basicfont"
)

// Overlay is one box to draw on an annotated frame.
type Overlay struct {
	Box        Box
	Label      string
	Confidence float64
}

// Palette hands out a stable, distinct color per class label.
type Palette struct {
	mu     sync.Mutex
	colors map[string]colorful.Color
}

// NewPalette creates a palette seeded with the traffic classes.
func NewPalette() *Palette {
	p := &Palette{colors: make(map[string]colorful.Color)}
	// Rider red, helmet green, no-helmet blue, plate yellow.
	p.colors["Rider"] = colorful.Hsv(0, 1, 1)
	p.colors["Helmet"] = colorful.Hsv(120, 1, 1)
	p.colors["No Helmet"] = colorful.Hsv(240, 1, 1)
	p.colors["LP"] = colorful.Hsv(60, 1, 1)
	return p
}

// Color returns the color for label. Unknown labels get a hue derived from
// the label text so the same class is always drawn the same way.
func (p *Palette) Color(label string) color.Color {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.colors[label]; ok {
		return c
	}

	h := fnv.New32a()
	h.Write([]byte(label))
	hue := float64(h.Sum32() % 360)
	c := colorful.Hcl(hue, 0.7, 0.6).Clamped()
	p.colors[label] = c
	return c
}

// Annotate draws every overlay onto a copy of img as a labeled rectangle.
// The source image is left untouched.
func Annotate(img image.Image, overlays []Overlay, palette *Palette) image.Image {
	if palette == nil {
		palette = NewPalette()
	}

	dc := gg.NewContextForImage(img)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetLineWidth(3)

	for _, o := range overlays {
		c := palette.Color(o.Label)
		x := float64(o.Box.X1)
		y := float64(o.Box.Y1)
		w := float64(o.Box.X2 - o.Box.X1)
		h := float64(o.Box.Y2 - o.Box.Y1)

		dc.SetColor(c)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()

		text := fmt.Sprintf("%s %.2f", o.Label, o.Confidence)
		tw, th := dc.MeasureString(text)
		ty := y - th - 4
		if ty < 0 {
			ty = y
		}
		dc.DrawRectangle(x, ty, tw+4, th+4)
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawString(text, x+2, ty+th+1)
	}

	return dc.Image()
}
