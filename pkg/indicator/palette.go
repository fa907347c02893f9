package indicator

import (
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Palette resolves utility color names ("blue-500", "white") to hex.
type Palette struct {
	bases map[string]colorful.Color
	fixed map[string]string
}

// base500 holds the 500 shade of each hue; other shades are derived.
var base500 = map[string]string{
	"slate":   "#64748b",
	"gray":    "#6b7280",
	"zinc":    "#71717a",
	"neutral": "#737373",
	"stone":   "#78716c",
	"red":     "#ef4444",
	"orange":  "#f97316",
	"amber":   "#f59e0b",
	"yellow":  "#eab308",
	"lime":    "#84cc16",
	"green":   "#22c55e",
	"emerald": "#10b981",
	"teal":    "#14b8a6",
	"cyan":    "#06b6d4",
	"sky":     "#0ea5e9",
	"blue":    "#3b82f6",
	"indigo":  "#6366f1",
	"violet":  "#8b5cf6",
	"purple":  "#a855f7",
	"fuchsia": "#d946ef",
	"pink":    "#ec4899",
	"rose":    "#f43f5e",
}

var shades = map[int]bool{
	50: true, 100: true, 200: true, 300: true, 400: true, 500: true,
	600: true, 700: true, 800: true, 900: true, 950: true,
}

// DefaultPalette returns the stock palette.
func DefaultPalette() *Palette {
	p := &Palette{
		bases: make(map[string]colorful.Color, len(base500)),
		fixed: map[string]string{"white": "#ffffff", "black": "#000000"},
	}
	for name, hex := range base500 {
		c, err := colorful.Hex(hex)
		if err != nil {
			continue
		}
		p.bases[name] = c
	}
	return p
}

var (
	white = colorful.Color{R: 1, G: 1, B: 1}
	black = colorful.Color{}
)

// Resolve maps a color name to hex. ok is false for unknown names.
// Arbitrary values in brackets ("[#1e293b]") are accepted when they parse.
func (p *Palette) Resolve(name string) (hex string, ok bool) {
	if hex, ok := p.fixed[name]; ok {
		return hex, true
	}
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		c, err := colorful.Hex(strings.Trim(name, "[]"))
		if err != nil {
			return "", false
		}
		return c.Hex(), true
	}
	hue, shade, found := splitShade(name)
	if !found {
		return "", false
	}
	base, ok := p.bases[hue]
	if !ok || !shades[shade] {
		return "", false
	}
	return derive(base, shade).Hex(), true
}

// Known reports whether hue is a palette color name, regardless of shade.
func (p *Palette) Known(hue string) bool {
	if _, ok := p.fixed[hue]; ok {
		return true
	}
	_, ok := p.bases[hue]
	return ok
}

// derive blends the 500 shade toward white for lighter shades and toward
// black for darker ones, in Lab space.
func derive(base colorful.Color, shade int) colorful.Color {
	switch {
	case shade < 500:
		return base.BlendLab(white, float64(500-shade)/500*0.95).Clamped()
	case shade > 500:
		return base.BlendLab(black, float64(shade-500)/500*0.8).Clamped()
	default:
		return base
	}
}

func splitShade(name string) (hue string, shade int, ok bool) {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return "", 0, false
	}
	return name[:i], n, true
}
