// Package colorutil provides the overlay colours used to draw classified beads.
package colorutil

import (
	"fmt"
	"image/color"
	"strings"
)

// Common overlay colors.
var (
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Cyan  = color.RGBA{R: 0, G: 255, B: 255, A: 255}
)

// Unclassified is used for beads outside every size bin.
var Unclassified = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 255}

// classPalette maps the standard size classes (mm) to colours.
var classPalette = map[int]color.RGBA{
	4:  {R: 0x00, G: 0xBF, B: 0xFF, A: 255}, // deep sky blue
	6:  {R: 0x00, G: 0xFF, B: 0x00, A: 255}, // green
	8:  {R: 0xFF, G: 0x6B, B: 0x6B, A: 255}, // salmon
	10: {R: 0xFF, G: 0xD7, B: 0x00, A: 255}, // gold
}

// fallback is cycled through for labels without a fixed colour.
var fallback = []color.RGBA{
	{R: 0xFF, G: 0x00, B: 0xFF, A: 255},
	{R: 0xFF, G: 0xA5, B: 0x00, A: 255},
	{R: 0x7F, G: 0xFF, B: 0xD4, A: 255},
	{R: 0xDA, G: 0x70, B: 0xD6, A: 255},
}

// ClassColor returns the overlay colour for a size class label.
func ClassColor(label int) color.RGBA {
	if label <= 0 {
		return Unclassified
	}
	if c, ok := classPalette[label]; ok {
		return c
	}
	return fallback[label%len(fallback)]
}

// Hex formats c as #RRGGBB.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ParseHex parses #RRGGBB (the leading # is optional).
func ParseHex(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: want 6 hex digits", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
