package stats

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	apperr "github.com/youruser/avatarframe/internal/errors"
	imagepkg "github.com/youruser/avatarframe/internal/image"
	"github.com/youruser/avatarframe/internal/util"
)

const (
	chartWidth  = 800
	chartHeight = 600

	marginLeft   = 70
	marginRight  = 30
	marginTop    = 70
	marginBottom = 80

	markerRadius = 3
	yTicks       = 5
)

var (
	chartBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	chartGrid       = color.NRGBA{R: 221, G: 221, B: 221, A: 255}
	chartAxis       = color.NRGBA{R: 40, G: 40, B: 40, A: 255}
	chartLine       = color.NRGBA{R: 31, G: 119, B: 180, A: 255}
	chartText       = color.NRGBA{R: 20, G: 20, B: 20, A: 255}
)

// TickLabel abbreviates a date to its last five characters ("01-31").
func TickLabel(date string) string {
	if len(date) <= 5 {
		return date
	}
	return date[len(date)-5:]
}

// RenderChart draws the daily counts as a line with point markers. The
// title carries the total and the generation time.
func RenderChart(a Aggregate, now time.Time) *image.NRGBA {
	img := imaging.New(chartWidth, chartHeight, chartBackground)
	face := basicfont.Face7x13

	plot := image.Rect(marginLeft, marginTop, chartWidth-marginRight, chartHeight-marginBottom)

	maxCount := 0
	for _, d := range a.Days {
		if d.Count > maxCount {
			maxCount = d.Count
		}
	}
	step := niceStep(maxCount, yTicks)
	yMax := step * yTicks
	yPos := func(v int) int {
		return plot.Max.Y - v*plot.Dy()/yMax
	}

	for i := 0; i <= yTicks; i++ {
		v := i * step
		y := yPos(v)
		hline(img, plot.Min.X, plot.Max.X, y, chartGrid)
		label := strconv.Itoa(v)
		drawText(img, face, label, plot.Min.X-8-textWidth(face, label), y+4, chartText)
	}

	n := len(a.Days)
	xPos := func(i int) int {
		if n == 1 {
			return plot.Min.X + plot.Dx()/2
		}
		return plot.Min.X + i*plot.Dx()/(n-1)
	}
	// skip labels that would overlap their neighbours
	every := 1
	if n > 1 {
		labelW := textWidth(face, "00-00") + 6
		for every*plot.Dx()/(n-1) < labelW {
			every++
		}
	}
	for i, d := range a.Days {
		x := xPos(i)
		vline(img, x, plot.Min.Y, plot.Max.Y, chartGrid)
		if i%every == 0 {
			label := TickLabel(d.Date)
			drawText(img, face, label, x-textWidth(face, label)/2, plot.Max.Y+18, chartText)
		}
	}

	hline(img, plot.Min.X, plot.Max.X, plot.Max.Y, chartAxis)
	vline(img, plot.Min.X, plot.Min.Y, plot.Max.Y, chartAxis)

	for i := 1; i < n; i++ {
		line(img, xPos(i-1), yPos(a.Days[i-1].Count), xPos(i), yPos(a.Days[i].Count), chartLine)
	}
	for i, d := range a.Days {
		marker(img, xPos(i), yPos(d.Count), chartLine)
	}

	title := fmt.Sprintf("Total: %d", a.Total)
	stamp := now.Format("2006-01-02 15:04")
	drawText(img, face, title, (chartWidth-textWidth(face, title))/2, 28, chartText)
	drawText(img, face, stamp, (chartWidth-textWidth(face, stamp))/2, 46, chartText)
	drawText(img, face, "Chats", 8, plot.Min.Y-12, chartText)
	drawText(img, face, "Date", (chartWidth-textWidth(face, "Date"))/2, chartHeight-24, chartText)
	return img
}

// niceStep picks the smallest 1/2/5 x 10^k step with step*ticks >= top.
func niceStep(top, ticks int) int {
	if top <= 0 {
		return 1
	}
	for mag := 1; ; mag *= 10 {
		for _, m := range []int{1, 2, 5} {
			if s := m * mag; s*ticks >= top {
				return s
			}
		}
	}
}

func textWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

func drawText(img *image.NRGBA, face font.Face, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func set(img *image.NRGBA, x, y int, c color.NRGBA) {
	if image.Pt(x, y).In(img.Rect) {
		img.SetNRGBA(x, y, c)
	}
}

func hline(img *image.NRGBA, x0, x1, y int, c color.NRGBA) {
	for x := x0; x <= x1; x++ {
		set(img, x, y, c)
	}
}

func vline(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	for y := y0; y <= y1; y++ {
		set(img, x, y, c)
	}
}

// line draws a two pixel thick segment (Bresenham).
func line(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	dx, sx := abs(x1-x0), 1
	if x0 > x1 {
		sx = -1
	}
	dy, sy := -abs(y1-y0), 1
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		set(img, x0, y0, c)
		set(img, x0, y0+1, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		if e2 := 2 * e; e2 >= dy {
			e += dy
			x0 += sx
		} else {
			e += dx
			y0 += sy
		}
	}
}

func marker(img *image.NRGBA, x, y int, c color.NRGBA) {
	for dy := -markerRadius; dy <= markerRadius; dy++ {
		for dx := -markerRadius; dx <= markerRadius; dx++ {
			set(img, x+dx, y+dy, c)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ChartWriter owns the chart output file. Concurrent writers are
// serialized and the file is replaced atomically; the last writer wins.
type ChartWriter struct {
	path string
	mu   sync.Mutex
}

// NewChartWriter returns a writer for path.
func NewChartWriter(path string) *ChartWriter {
	return &ChartWriter{path: path}
}

// Path is the chart output file.
func (w *ChartWriter) Path() string {
	return w.path
}

// Write encodes img as PNG and replaces the chart file with it.
func (w *ChartWriter) Write(img image.Image) error {
	b, err := imagepkg.EncodePNG(img)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := util.WriteFileAtomic(w.path, b); err != nil {
		return apperr.Wrap(apperr.ErrCodeIO, err, "write chart %s", w.path)
	}
	return nil
}
