// Package watermark renders the tiled brand mark onto free-tier artifacts.
// Watermarking must never block artifact delivery: any internal failure falls
// back to returning the original bytes unmodified.
package watermark

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"os"
	"sync"

	_ "image/jpeg"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"server/internal/infra"
)

// Position hints where the mark is anchored. The compositor tiles the mark
// diagonally across the whole frame, so the hint only exists for API
// compatibility with callers that persist it.
type Position string

const (
	PositionDiagonal    Position = "diagonal"
	PositionBottomRight Position = "bottom_right"
	PositionBottomLeft  Position = "bottom_left"
	PositionCenter      Position = "center"
)

const (
	markText        = "GRADGEN.AI"
	markOpacity     = 0.35
	shadowOpacity   = markOpacity * 0.6
	fontHeightRatio = 0.15
	spacingRatio    = 2.2
)

var fontCandidates = []string{
	"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/google-noto/NotoSans-Bold.ttf",
	"/usr/share/fonts/truetype/noto/NotoSans-Bold.ttf",
	"/System/Library/Fonts/Supplemental/Arial Bold.ttf",
}

// Compositor applies the brand mark to generated portraits.
type Compositor struct {
	logger infra.Logger

	mu       sync.Mutex
	fontData *truetype.Font
	fontErr  error
	fontOnce bool
}

// NewCompositor builds a compositor. Font parsing is deferred to first use.
func NewCompositor(logger infra.Logger) *Compositor {
	return &Compositor{logger: logger}
}

// Apply returns a watermarked copy of imageBytes. On any failure the original
// bytes come back untouched.
func (c *Compositor) Apply(imageBytes []byte, position Position) []byte {
	src, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		c.logger.Warn().Err(err).Msg("watermark: decode failed, returning original")
		return imageBytes
	}

	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	if w == 0 || h == 0 {
		return imageBytes
	}

	face, err := c.face(float64(h) * fontHeightRatio)
	if err != nil {
		c.logger.Warn().Err(err).Msg("watermark: no usable font, returning original")
		return imageBytes
	}

	dc := gg.NewContext(w, h)
	dc.DrawImage(src, 0, 0)
	dc.SetFontFace(face)

	textW, textH := dc.MeasureString(markText)
	spacingX := textW * spacingRatio
	spacingY := textH * spacingRatio
	shadowOffset := math.Max(2, textH/8)

	// Rotate about the frame center and tile well past the corners so the
	// 45 degree bands cover the whole image.
	dc.RotateAbout(gg.Radians(-45), float64(w)/2, float64(h)/2)
	diag := math.Hypot(float64(w), float64(h))
	for y := -diag; y <= diag*2; y += spacingY {
		for x := -diag; x <= diag*2; x += spacingX {
			dc.SetRGBA(0, 0, 0, shadowOpacity)
			dc.DrawString(markText, x+shadowOffset, y+shadowOffset)
			dc.SetRGBA(1, 1, 1, markOpacity)
			dc.DrawString(markText, x, y)
		}
	}

	out := &bytes.Buffer{}
	if err := png.Encode(out, dc.Image()); err != nil {
		c.logger.Warn().Err(err).Msg("watermark: encode failed, returning original")
		return imageBytes
	}

	c.logger.Debug().Str("position", string(position)).Msg("watermark: applied")
	return out.Bytes()
}

func (c *Compositor) face(size float64) (font.Face, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fontOnce {
		c.fontOnce = true
		c.fontData, c.fontErr = loadFirstFont(fontCandidates)
	}
	if c.fontErr != nil {
		return nil, c.fontErr
	}
	return truetype.NewFace(c.fontData, &truetype.Options{Size: size}), nil
}

func loadFirstFont(paths []string) (*truetype.Font, error) {
	var lastErr error = os.ErrNotExist
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			lastErr = err
			continue
		}
		parsed, err := truetype.Parse(data)
		if err != nil {
			lastErr = err
			continue
		}
		return parsed, nil
	}
	return nil, lastErr
}
