// Package artifact renders the refresh summary image. The artifact is a
// disposable cache of aggregate snapshot state; the store stays authoritative.
package artifact

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	imageWidth  = 640
	imageHeight = 320

	marginX    = 24
	titleY     = 48
	lineHeight = 28

	// gdpPlaceholder is shown for entries whose estimated GDP is null
	gdpPlaceholder = "n/a"
)

// RankedCountry is one entry of the top-N ranking drawn on the artifact
type RankedCountry struct {
	Name         string
	EstimatedGDP *float64
}

// Summary is the aggregate state rendered onto the artifact
type Summary struct {
	TotalCountries int64
	RefreshedAt    time.Time
	Top            []RankedCountry
}

// Renderer produces the summary artifact from aggregate snapshot state
//
//go:generate mockgen -destination=mocks/mock_renderer.go -package=mocks -source=renderer.go Renderer
type Renderer interface {
	// Render writes the artifact for the given summary. A concurrent reader
	// never observes a partially-written file.
	Render(ctx context.Context, summary Summary) error
}

// PNGRenderer renders the summary as a PNG at a fixed path
type PNGRenderer struct {
	path string
}

// NewPNGRenderer creates a renderer writing to the given canonical path
func NewPNGRenderer(path string) *PNGRenderer {
	return &PNGRenderer{path: path}
}

// Path returns the canonical artifact path
func (r *PNGRenderer) Path() string {
	return r.path
}

// Render draws the summary and atomically replaces the artifact file. It
// renders to a temporary path first and renames over the canonical path.
func (r *PNGRenderer) Render(_ context.Context, summary Summary) error {
	img := image.NewRGBA(image.Rect(0, 0, imageWidth, imageHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}

	y := titleY
	drawLine(drawer, y, fmt.Sprintf("Countries: %d", summary.TotalCountries))

	y += lineHeight
	drawLine(drawer, y, "Refreshed at: "+summary.RefreshedAt.UTC().Format(time.RFC3339))

	y += lineHeight + lineHeight/2
	drawLine(drawer, y, "Top estimated GDP:")

	for i, entry := range summary.Top {
		y += lineHeight
		drawLine(drawer, y, fmt.Sprintf("%d. %s  %s", i+1, entry.Name, formatGDP(entry.EstimatedGDP)))
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0750); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tempPath := r.path + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary artifact file: %w", err)
	}

	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to close temporary artifact file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, r.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename artifact file: %w", err)
	}

	return nil
}

// drawLine draws one line of text at the left margin
func drawLine(d *font.Drawer, y int, text string) {
	d.Dot = fixed.P(marginX, y)
	d.DrawString(text)
}

// formatGDP renders an estimated GDP value with thousands separators, or the
// placeholder when the value is null
func formatGDP(gdp *float64) string {
	if gdp == nil {
		return gdpPlaceholder
	}

	whole := strconv.FormatFloat(*gdp, 'f', 0, 64)
	negative := strings.HasPrefix(whole, "-")
	if negative {
		whole = whole[1:]
	}

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if negative {
		return "-" + b.String()
	}
	return b.String()
}
