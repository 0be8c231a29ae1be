package chart

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/acuitylab/acuity/pkg/optotype"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 400

	arcSegments = 96

	// maxRingScale bounds ring diameters to this multiple of the canvas
	// diagonal. Rasterizing cost grows with ring size.
	maxRingScale = 4
)

var (
	colorVisible   = color.RGBA{R: 0x00, G: 0x80, B: 0x00, A: 0xff}
	colorInvisible = color.RGBA{R: 0xcc, G: 0x00, B: 0x00, A: 0xff}
	colorDistance  = color.RGBA{R: 0x00, G: 0x00, B: 0xff, A: 0xff}
	colorOverlay   = color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xe6}
)

// Render draws v onto a white canvas of the given size.
func Render(v View, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, pkgerrors.Errorf("invalid canvas size %dx%d", width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	switch v.Mode {
	case ModeCalibration:
		if v.Calibration == nil {
			return nil, pkgerrors.New("calibration view without calibration data")
		}
		drawCalibration(img, v.Calibration)
	case ModeRow:
		if v.Row == nil {
			return nil, pkgerrors.New("row view without row data")
		}
		drawRow(img, v.Row)
	case ModeSummary:
		if v.Summary == nil {
			return nil, pkgerrors.New("summary view without summary data")
		}
		drawSummary(img, v.Summary)
	default:
		return nil, pkgerrors.Errorf("unknown view mode %q", v.Mode)
	}

	return img, nil
}

// RenderPNG renders v and writes it as a PNG.
func RenderPNG(w io.Writer, v View, width, height int) error {
	img, err := Render(v, width, height)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return pkgerrors.Wrap(err, "failed to encode chart")
	}
	return nil
}

// fitRing clamps a ring's diameter to the canvas and reports whether any of
// its bounding box lands on it.
func fitRing(cx, cy, size float64, canvas image.Point) (float64, bool) {
	size = math.Min(size, maxRingScale*math.Hypot(float64(canvas.X), float64(canvas.Y)))
	r := size / 2
	visible := size > 0 &&
		cx+r >= 0 && cx-r <= float64(canvas.X) &&
		cy+r >= 0 && cy-r <= float64(canvas.Y)
	return size, visible
}

// landoltC adds a ring of outer diameter size centered at (cx, cy), with
// stroke size/5 and the gap facing o, to the rasterizer path.
func landoltC(z *vector.Rasterizer, cx, cy, size float64, o optotype.Orientation) {
	size, ok := fitRing(cx, cy, size, z.Size())
	if !ok {
		return
	}
	outer := size / 2
	inner := outer - size/5
	from := o.Angle() + optotype.GapHalfAngle
	to := o.Angle() + 2*math.Pi - optotype.GapHalfAngle

	pt := func(r, a float64) (float32, float32) {
		return float32(cx + r*math.Cos(a)), float32(cy + r*math.Sin(a))
	}

	z.MoveTo(pt(outer, from))
	for i := 1; i <= arcSegments; i++ {
		z.LineTo(pt(outer, from+(to-from)*float64(i)/arcSegments))
	}
	for i := arcSegments; i >= 0; i-- {
		z.LineTo(pt(inner, from+(to-from)*float64(i)/arcSegments))
	}
	z.ClosePath()
}

func fillRect(img draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

func strokeRect(img draw.Image, r image.Rectangle, width int, c color.Color) {
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fillRect(img, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fillRect(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fillRect(img, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}

type textAlign int

const (
	alignLeft textAlign = iota
	alignCenter
	alignRight
)

func drawText(img draw.Image, s string, x, y int, align textAlign, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
	}
	switch align {
	case alignCenter:
		x -= d.MeasureString(s).Round() / 2
	case alignRight:
		x -= d.MeasureString(s).Round()
	}
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

func drawCalibration(img *image.RGBA, c *Calibration) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	x0 := int(math.Round((float64(w) - c.WidthPx) / 2))
	y0 := h/2 - 50
	rect := image.Rect(x0, y0, x0+int(math.Round(c.WidthPx)), y0+int(math.Round(c.HeightPx)))
	strokeRect(img, rect, 2, color.Black)

	drawText(img, "Adjust the slider until the rectangle matches your reference object", w/2, h/2+100, alignCenter, color.Black)
	drawText(img, "("+c.ObjectName+")", w/2, h/2+130, alignCenter, color.Black)
}

func drawRow(img *image.RGBA, r *Row) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	z := vector.NewRasterizer(w, h)
	total := float64(len(r.Orientations)) * r.SpacingPx
	startX := (float64(w)-total)/2 + r.SpacingPx/2
	for i, o := range r.Orientations {
		landoltC(z, startX+float64(i)*r.SpacingPx, float64(h)/2, r.SizePx, o)
	}
	z.Draw(img, b, image.Black, image.Point{})

	label := string(r.Level)
	if r.Refining {
		label += " (refinement)"
	}
	drawText(img, label, w-20, h-70, alignRight, color.Black)
	drawText(img, "Viewing distance: "+strconv.FormatFloat(r.ViewingDistanceCm, 'f', -1, 64)+" cm", 20, h-70, alignLeft, colorDistance)
	drawText(img, "Identify the direction of the gaps in the symbols", w/2, h-40, alignCenter, color.Black)
}

func drawSummary(img *image.RGBA, s *Summary) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	n := len(s.Lines)
	rowHeight := math.Min(float64(h)*0.8/math.Max(float64(n-1), 1), 50)

	z := vector.NewRasterizer(w, h)
	for i, line := range s.Lines {
		y := float64(h)*0.1 + float64(i)*rowHeight
		x := float64(w)/2 - line.SizePx
		landoltC(z, x, y, line.SizePx, optotype.Right)

		c, state := colorInvisible, "Not visible"
		if line.CouldSee {
			c, state = colorVisible, "Visible"
		}
		drawText(img, string(line.Level)+" - "+state, int(x+line.SizePx*1.5), int(y+5), alignLeft, c)
	}
	z.Draw(img, b, image.Black, image.Point{})

	fillRect(img, image.Rect(w/2-200, h/2-50, w/2+200, h/2+50), colorOverlay)
	drawText(img, "Your visual acuity is approximately: "+string(s.FinalAcuity), w/2, h/2, alignCenter, color.Black)
	drawText(img, s.Message, w/2, h/2+20, alignCenter, color.Black)
}
