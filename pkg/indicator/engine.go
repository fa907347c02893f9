// Package indicator derives small, ranked property badges from an entity's
// style tokens and content props.
package indicator

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/composer/pkg/metrics"
	"github.com/vanderheijden86/composer/pkg/model"
)

// Type is the kind of property an indicator summarizes.
type Type string

const (
	TypeColor   Type = "color"
	TypeText    Type = "text"
	TypeSpacing Type = "spacing"
	TypeSize    Type = "size"
	TypeImage   Type = "image"
)

// Priority returns the fixed rank of t; higher sorts first.
func (t Type) Priority() int {
	switch t {
	case TypeColor:
		return 5
	case TypeText:
		return 4
	case TypeSpacing:
		return 3
	case TypeSize:
		return 2
	case TypeImage:
		return 1
	}
	return 0
}

// Defaults for Engine options left at zero.
const (
	DefaultMaxIndicators = 5
	DefaultDisplayWidth  = 25
)

// Indicator is one badge. It is recomputed on demand and never stored.
type Indicator struct {
	Type         Type   `json:"type"`
	Value        string `json:"value"`
	DisplayValue string `json:"displayValue"`
	Tooltip      string `json:"tooltip"`
	Priority     int    `json:"priority"`
	IsValid      bool   `json:"isValid"`
	// Hex is the resolved color for color indicators.
	Hex string `json:"hex,omitempty"`
}

// Analysis is the full result behind For.
type Analysis struct {
	Indicators []Indicator
	// Unresolved lists color-like tokens that matched no palette entry.
	Unresolved []string
	// Truncated counts candidates cut by the maximum.
	Truncated int
}

// NeedsFallback reports whether a renderer should draw the single
// "unresolvable color" badge: colors were attempted and none resolved.
func (a Analysis) NeedsFallback() bool {
	if len(a.Unresolved) == 0 {
		return false
	}
	for _, ind := range a.Indicators {
		if ind.Type == TypeColor {
			return false
		}
	}
	return true
}

// Engine computes indicators. It is stateless after construction and safe
// for concurrent use.
type Engine struct {
	max     int
	width   int
	palette *Palette
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIndicators caps the number of indicators returned.
func WithMaxIndicators(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.max = n
		}
	}
}

// WithDisplayWidth sets the cell width display values are truncated to.
func WithDisplayWidth(w int) Option {
	return func(e *Engine) {
		if w > 1 {
			e.width = w
		}
	}
}

// WithPalette replaces the color palette.
func WithPalette(p *Palette) Option {
	return func(e *Engine) {
		if p != nil {
			e.palette = p
		}
	}
}

// NewEngine returns an Engine with the stock palette and limits.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{max: DefaultMaxIndicators, width: DefaultDisplayWidth, palette: DefaultPalette()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// For returns the ranked indicators for ent: priority descending, value
// ascending within a priority, at most the configured maximum.
func (e *Engine) For(ent model.Entity) []Indicator {
	return e.Analyze(ent).Indicators
}

// Analyze is For plus the diagnostics a renderer may want.
func (e *Engine) Analyze(ent model.Entity) Analysis {
	defer metrics.Timer(metrics.IndicatorCompute)()

	var a Analysis
	var cands []Indicator
	seen := make(map[string]bool)
	add := func(ind Indicator) {
		key := string(ind.Type) + "\x00" + ind.Value
		if seen[key] {
			return
		}
		seen[key] = true
		ind.Priority = ind.Type.Priority()
		ind.IsValid = true
		ind.DisplayValue = e.truncate(ind.DisplayValue)
		cands = append(cands, ind)
	}

	for _, tok := range ent.Style {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if ind, ok, colorLike := e.color(tok); ok {
			add(ind)
			continue
		} else if colorLike {
			a.Unresolved = append(a.Unresolved, tok)
			continue
		}
		if ind, ok := spacing(tok); ok {
			add(ind)
			continue
		}
		if ind, ok := size(tok); ok {
			add(ind)
		}
	}
	if ind, ok := text(ent); ok {
		add(ind)
	}
	if ind, ok := image(ent); ok {
		add(ind)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Priority != cands[j].Priority {
			return cands[i].Priority > cands[j].Priority
		}
		return cands[i].Value < cands[j].Value
	})
	if len(cands) > e.max {
		a.Truncated = len(cands) - e.max
		cands = cands[:e.max]
	}
	a.Indicators = cands
	return a
}

func (e *Engine) truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, e.width, "…")
}

var colorPrefixes = []struct {
	prefix string
	role   string
}{
	{"bg-", "background"},
	{"text-", "text"},
	{"border-", "border"},
}

// shapeOfColor matches suffixes that look like an attempted palette color
// ("mauve-300") as opposed to other utilities sharing the prefix ("lg").
var shapeOfColor = regexp.MustCompile(`^([a-z]+-\d{2,3}|\[.*\])$`)

// color resolves a bg-/text-/border- token. colorLike is true when the
// token looks like a color but did not resolve.
func (e *Engine) color(tok string) (ind Indicator, ok, colorLike bool) {
	for _, p := range colorPrefixes {
		name, found := strings.CutPrefix(tok, p.prefix)
		if !found {
			continue
		}
		if hex, ok := e.palette.Resolve(name); ok {
			return Indicator{
				Type:         TypeColor,
				Value:        tok,
				DisplayValue: tok,
				Tooltip:      fmt.Sprintf("%s: %s", p.role, hex),
				Hex:          hex,
			}, true, false
		}
		hue, _, split := splitShade(name)
		if !split {
			hue = name
		}
		return Indicator{}, false, shapeOfColor.MatchString(name) || e.palette.Known(hue)
	}
	return Indicator{}, false, false
}

var spacingRoles = map[string]string{
	"p": "padding", "px": "padding-x", "py": "padding-y",
	"pt": "padding-top", "pr": "padding-right", "pb": "padding-bottom", "pl": "padding-left",
	"m": "margin", "mx": "margin-x", "my": "margin-y",
	"mt": "margin-top", "mr": "margin-right", "mb": "margin-bottom", "ml": "margin-left",
	"gap": "gap", "gap-x": "column-gap", "gap-y": "row-gap",
	"space-x": "space-x", "space-y": "space-y",
}

func spacing(tok string) (Indicator, bool) {
	i := strings.LastIndexByte(tok, '-')
	if i <= 0 {
		return Indicator{}, false
	}
	role, ok := spacingRoles[tok[:i]]
	if !ok {
		return Indicator{}, false
	}
	px, ok := scalePixels(tok[i+1:])
	if !ok {
		return Indicator{}, false
	}
	return Indicator{
		Type:         TypeSpacing,
		Value:        tok,
		DisplayValue: tok,
		Tooltip:      fmt.Sprintf("%s: %s", role, px),
	}, true
}

var sizeRoles = map[string]string{"w": "width", "h": "height", "size": "size"}

var sizeKeywords = map[string]string{
	"full":   "100%",
	"screen": "100vw/vh",
	"auto":   "auto",
	"min":    "min-content",
	"max":    "max-content",
	"fit":    "fit-content",
}

func size(tok string) (Indicator, bool) {
	role, val, found := strings.Cut(tok, "-")
	name, ok := sizeRoles[role]
	if !found || !ok {
		return Indicator{}, false
	}
	var resolved string
	if kw, ok := sizeKeywords[val]; ok {
		resolved = kw
	} else if num, den, isFrac := strings.Cut(val, "/"); isFrac {
		n, err1 := strconv.Atoi(num)
		d, err2 := strconv.Atoi(den)
		if err1 != nil || err2 != nil || d == 0 || n <= 0 || n > d {
			return Indicator{}, false
		}
		resolved = strconv.FormatFloat(float64(n)*100/float64(d), 'f', -1, 64) + "%"
	} else if px, ok := scalePixels(val); ok {
		resolved = px
	} else {
		return Indicator{}, false
	}
	return Indicator{
		Type:         TypeSize,
		Value:        tok,
		DisplayValue: tok,
		Tooltip:      fmt.Sprintf("%s: %s", name, resolved),
	}, true
}

// scalePixels maps a spacing-scale step to pixels: 1 step is 4px, "px" is
// 1px. Steps above 12 must be whole numbers from the scale.
func scalePixels(step string) (string, bool) {
	if step == "px" {
		return "1px", true
	}
	v, err := strconv.ParseFloat(step, 64)
	if err != nil || v < 0 {
		return "", false
	}
	if v <= 12 {
		if v*2 != float64(int(v*2)) || (v > 3.5 && v != float64(int(v))) {
			return "", false
		}
	} else if !largeSteps[v] {
		return "", false
	}
	return strconv.FormatFloat(v*4, 'f', -1, 64) + "px", true
}

var largeSteps = map[float64]bool{
	14: true, 16: true, 20: true, 24: true, 28: true, 32: true, 36: true,
	40: true, 44: true, 48: true, 52: true, 56: true, 60: true, 64: true,
	72: true, 80: true, 96: true,
}

// TextFields lists the content props a text indicator is drawn from, in
// lookup order.
var TextFields = []string{"content", "text", "label", "placeholder", "title", "children"}

func text(ent model.Entity) (Indicator, bool) {
	for _, field := range TextFields {
		v := strings.TrimSpace(ent.Prop(field))
		if v == "" {
			continue
		}
		return Indicator{
			Type:         TypeText,
			Value:        v,
			DisplayValue: strconv.Quote(v),
			Tooltip:      fmt.Sprintf("%s: %s", field, v),
		}, true
	}
	return Indicator{}, false
}

// ImageFields lists the props an image indicator is drawn from.
var ImageFields = []string{"src", "image", "backgroundImage"}

func image(ent model.Entity) (Indicator, bool) {
	for _, field := range ImageFields {
		v := strings.TrimSpace(ent.Prop(field))
		if v == "" {
			continue
		}
		return Indicator{
			Type:         TypeImage,
			Value:        v,
			DisplayValue: path.Base(v),
			Tooltip:      fmt.Sprintf("%s: %s", field, v),
		}, true
	}
	return Indicator{}, false
}
