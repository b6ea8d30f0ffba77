package app

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

const (
	dpi            = 120.0
	fontSize       = 12.0
	tickMarkLength = 5
	pixelsPerLabel = 150.0

	panelHeight  = 220
	panelGap     = 30
	panelPadding = 0.05 // fraction of the value range kept clear above and below

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 90
	defaultBottomBorder = 45
	defaultRightBorder  = 30

	defaultTimeFormat     = "15:04"
	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the chart panels
type BorderConfig struct {
	Top    int // Space above the first panel
	Left   int // Space for value scales
	Bottom int // Space for the time scale and information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for trend visualization
type RenderConfig struct {
	// Time display configuration
	TimeFormat     string         // Format string for time display (e.g. "15:04")
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display

	// Visual configuration
	FontPath string  // Path to a TrueType font file
	FontSize float64 // Font size in points
	Width    int     // Total image width in pixels

	// Border configuration
	BorderConfig BorderConfig

	// Skip scales, titles and the information bar
	NoAnnotations bool
}

// Per-panel line colors, in panel order
var seriesColors = []color.RGBA{
	{R: 0x1F, G: 0x4E, B: 0xD8, A: 0xFF}, // battery voltage
	{R: 0xC0, G: 0x26, B: 0x26, A: 0xFF}, // temperature
	{R: 0x0A, G: 0x7D, B: 0x33, A: 0xFF}, // power
}

var (
	frameColor = color.RGBA{R: 0x90, G: 0x90, B: 0x90, A: 0xFF}
	gridColor  = color.RGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF}
)

// TrendRenderer handles the visualization of telemetry trend data as a
// stack of per-channel strip charts sharing one time axis.
type TrendRenderer struct {
	config RenderConfig
}

// NewTrendRenderer creates a new trend renderer with the given configuration
func NewTrendRenderer(config RenderConfig) (*TrendRenderer, error) {
	// Set defaults for zero values
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &TrendRenderer{config: config}, nil
}

// Render creates an image of the trend data with annotations
func (r *TrendRenderer) Render(data *TrendData) (*image.RGBA, error) {
	if data.Len() < 2 {
		return nil, errors.New("not enough samples to chart, need at least 2")
	}

	panels := data.panels()
	plotWidth := r.config.Width - r.config.BorderConfig.Left - r.config.BorderConfig.Right
	fullHeight := r.config.BorderConfig.Top +
		len(panels)*panelHeight + (len(panels)-1)*panelGap +
		r.config.BorderConfig.Bottom
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, fullHeight))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	var ann *annotator
	if !r.config.NoAnnotations {
		var err error
		if ann, err = newAnnotator(annotatorConfig{
			TimeFormat:     r.config.TimeFormat,
			DatetimeFormat: r.config.DatetimeFormat,
			Location:       r.config.Location,
			FontPath:       r.config.FontPath,
			FontSize:       r.config.FontSize,
			Borders:        r.config.BorderConfig,
		}); err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		ann.context.SetClip(img.Bounds())
		ann.context.SetDst(img)
	}

	for i, series := range panels {
		top := r.config.BorderConfig.Top + i*(panelHeight+panelGap)
		area := image.Rect(
			r.config.BorderConfig.Left,
			top,
			r.config.BorderConfig.Left+plotWidth,
			top+panelHeight,
		)

		if ann != nil {
			if err := ann.annotatePanel(img, area, data, series); err != nil {
				return nil, fmt.Errorf("annotating %s panel: %w", series.Name, err)
			}
		}
		r.renderSeries(img, area, data, series, seriesColors[i%len(seriesColors)])
	}

	if ann != nil {
		if err := ann.drawTimeScale(img, data); err != nil {
			return nil, fmt.Errorf("drawing time scale: %w", err)
		}
		if err := ann.drawInfoBar(img, data, plotWidth); err != nil {
			return nil, fmt.Errorf("drawing info bar: %w", err)
		}
	}

	return img, nil
}

// renderSeries draws the panel frame and the channel polyline
func (r *TrendRenderer) renderSeries(img *image.RGBA, area image.Rectangle, data *TrendData, series *ChannelSeries, lineColor color.RGBA) {
	drawRect(img, area, frameColor)

	lo, hi := paddedBounds(series)
	span := data.End.Sub(data.Start)

	prevX, prevY := -1, -1
	for i, v := range series.Values {
		var xRatio float64
		if span > 0 {
			xRatio = float64(data.Times[i].Sub(data.Start)) / float64(span)
		}
		x := area.Min.X + int(xRatio*float64(area.Dx()-1))
		y := valueToY(v, lo, hi, area)

		if prevX >= 0 {
			drawLine(img, prevX, prevY, x, y, lineColor)
		}
		prevX, prevY = x, y
	}
}

// paddedBounds expands the observed value range so the polyline never
// touches the panel frame. A flat series gets a symmetric band around it.
func paddedBounds(series *ChannelSeries) (lo, hi float64) {
	lo, hi = series.Min, series.Max
	if lo == hi {
		pad := math.Max(math.Abs(lo)*panelPadding, 0.5)
		return lo - pad, hi + pad
	}
	pad := (hi - lo) * panelPadding
	return lo - pad, hi + pad
}

func valueToY(v, lo, hi float64, area image.Rectangle) int {
	ratio := (v - lo) / (hi - lo)
	return area.Max.Y - 1 - int(ratio*float64(area.Dy()-1))
}

func drawRect(img *image.RGBA, area image.Rectangle, c color.RGBA) {
	for x := area.Min.X; x < area.Max.X; x++ {
		img.Set(x, area.Min.Y, c)
		img.Set(x, area.Max.Y-1, c)
	}
	for y := area.Min.Y; y < area.Max.Y; y++ {
		img.Set(area.Min.X, y, c)
		img.Set(area.Max.X-1, y, c)
	}
}

// drawLine draws a line segment using the integer Bresenham walk
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Internal annotator implementation
type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontPath       string
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	fontBytes, err := os.ReadFile(config.FontPath)
	if err != nil {
		return nil, fmt.Errorf("reading font file: %w", err)
	}

	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

// annotatePanel draws the panel title, the value scale and its gridlines
func (a *annotator) annotatePanel(img *image.RGBA, area image.Rectangle, data *TrendData, series *ChannelSeries) error {
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	// Title sits just above the panel frame
	title := fmt.Sprintf("%s (%s)", series.Name, series.Unit)
	pt := freetype.Pt(area.Min.X, area.Min.Y-4)
	if _, err := a.context.DrawString(title, pt); err != nil {
		return fmt.Errorf("drawing panel title: %w", err)
	}

	lo, hi := paddedBounds(series)
	step := calculateNiceValueStep(hi-lo, area.Dy())
	start := math.Ceil(lo/step) * step

	for v := start; v <= hi; v += step {
		y := valueToY(v, lo, hi, area)

		// Gridline across the panel, then a tick mark outside it
		for x := area.Min.X + 1; x < area.Max.X-1; x++ {
			img.Set(x, y, gridColor)
		}
		for x := area.Min.X - tickMarkLength; x < area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatValue(v)
		width := font.MeasureString(a.fontFace, label)
		textY := y + fontHeight/2 - metrics.Descent.Round()
		pt = freetype.Pt(area.Min.X-tickMarkLength-3-width.Round(), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing value label: %w", err)
		}
	}
	return nil
}

// drawTimeScale labels the shared time axis under the bottom panel
func (a *annotator) drawTimeScale(img *image.RGBA, data *TrendData) error {
	duration := data.End.Sub(data.Start)
	if duration <= 0 {
		return nil
	}
	timeStep := calculateNiceTimeStep(duration)

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	bottom := img.Bounds().Max.Y - a.config.Borders.Bottom
	left := a.config.Borders.Left
	plotWidth := img.Bounds().Max.X - left - a.config.Borders.Right

	// Ticks start on the first step boundary after the range start
	first := data.Start.Truncate(timeStep)
	if first.Before(data.Start) {
		first = first.Add(timeStep)
	}

	for t := first; !t.After(data.End); t = t.Add(timeStep) {
		xRatio := float64(t.Sub(data.Start)) / float64(duration)
		x := left + int(xRatio*float64(plotWidth-1))

		for y := bottom; y < bottom+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := t.In(a.config.Location).Format(a.config.TimeFormat)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-(width.Round()/2), bottom+tickMarkLength+fontHeight)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, data *TrendData, plotWidth int) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		data.Start.In(a.config.Location).Format(a.config.DatetimeFormat),
		data.End.In(a.config.Location).Format(a.config.DatetimeFormat)))

	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("%s samples", humanize.Comma(int64(data.Len()))))

	// Time resolution of one horizontal pixel
	perPixel := data.End.Sub(data.Start) / time.Duration(plotWidth)
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("1px = %s", perPixel.Round(time.Second)))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - 4 - metrics.Descent.Round()

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// Helper functions

func calculateNiceValueStep(range_ float64, height int) float64 {
	desiredSteps := float64(height) / 45
	targetStep := range_ / desiredSteps

	// 1-2-5 progression across decades
	magnitude := math.Pow(10, math.Floor(math.Log10(targetStep)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= targetStep {
			return step
		}
	}
	return 10 * magnitude
}

func formatValue(v float64) string {
	switch {
	case math.Abs(v) >= 100:
		return fmt.Sprintf("%.0f", v)
	case math.Abs(v) >= 10:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func calculateNiceTimeStep(duration time.Duration) time.Duration {
	seconds := duration.Seconds()
	roughStep := seconds / 8 // Aim for about 8 time labels

	// Nice time intervals in seconds
	niceIntervals := []float64{
		1,     // 1 second
		10,    // 10 seconds
		60,    // 1 minute
		300,   // 5 minutes
		600,   // 10 minutes
		900,   // 15 minutes
		1800,  // 30 minutes
		3600,  // 1 hour
		7200,  // 2 hours
		14400, // 4 hours
	}

	// Find the first interval larger than our rough step
	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return time.Duration(interval) * time.Second
		}
	}

	return time.Hour * 6 // Default for very long durations
}
