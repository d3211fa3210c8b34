package refine

import (
	"time"
)

type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityMedium   Complexity = "medium"
	ComplexityDetailed Complexity = "detailed"
)

type AgeGroup string

const (
	AgeKids   AgeGroup = "kids"
	AgeTeens  AgeGroup = "teens"
	AgeAdults AgeGroup = "adults"
)

type LineThickness string

const (
	LineThin   LineThickness = "thin"
	LineMedium LineThickness = "medium"
	LineThick  LineThickness = "thick"
)

type Border string

const (
	BorderWith    Border = "with"
	BorderWithout Border = "without"
)

type Theme string

const (
	ThemeAnimals  Theme = "animals"
	ThemeMandalas Theme = "mandalas"
	ThemeFantasy  Theme = "fantasy"
	ThemeNature   Theme = "nature"
	ThemeVehicles Theme = "vehicles"
	ThemeFood     Theme = "food"
	ThemeHolidays Theme = "holidays"
	ThemeSports   Theme = "sports"
)

// Preferences is the validated style configuration. A zero field means the
// caller did not set it.
type Preferences struct {
	Complexity    Complexity    `json:"complexity,omitempty"`
	AgeGroup      AgeGroup      `json:"ageGroup,omitempty"`
	LineThickness LineThickness `json:"lineThickness,omitempty"`
	Border        Border        `json:"border,omitempty"`
	Theme         Theme         `json:"theme,omitempty"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Complexity:    ComplexityMedium,
		AgeGroup:      AgeKids,
		LineThickness: LineMedium,
		Border:        BorderWith,
	}
}

// WithDefaults fills every unset field from DefaultPreferences. Theme has no
// default and stays empty.
func (p Preferences) WithDefaults() Preferences {
	d := DefaultPreferences()
	if p.Complexity == "" {
		p.Complexity = d.Complexity
	}
	if p.AgeGroup == "" {
		p.AgeGroup = d.AgeGroup
	}
	if p.LineThickness == "" {
		p.LineThickness = d.LineThickness
	}
	if p.Border == "" {
		p.Border = d.Border
	}
	return p
}

type Method string

const (
	MethodTemplate Method = "template-based"
	MethodGPT      Method = "gpt-enhanced"
	MethodFallback Method = "fallback"
)

// Options are per-call switches supplied by the caller.
type Options struct {
	UseGPT bool `json:"useGPT,omitempty"`
	// Timeout bounds the completion call. Zero uses the service default.
	Timeout time.Duration `json:"-"`
}

// Request is the caller contract. Prompt is deliberately untyped so that
// malformed payloads reach validation instead of failing at decode time.
type Request struct {
	Prompt         any            `json:"prompt"`
	Customizations map[string]any `json:"customizations,omitempty"`
	Options        Options        `json:"options,omitempty"`
}

type Metadata struct {
	Method           Method `json:"method"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	RequestID        string `json:"requestId"`
	Model            string `json:"model,omitempty"`
	Cached           bool   `json:"cached,omitempty"`
	CompletionError  string `json:"completionError,omitempty"`
	ErrorKind        string `json:"errorKind,omitempty"`
}

type Result struct {
	Success          bool        `json:"success"`
	RefinedPrompt    string      `json:"refinedPrompt"`
	OriginalInput    string      `json:"originalInput"`
	DetectedCategory string      `json:"detectedCategory,omitempty"`
	AppliedSettings  Preferences `json:"appliedSettings"`
	Metadata         Metadata    `json:"metadata"`
	Error            string      `json:"error,omitempty"`
	Timestamp        time.Time   `json:"timestamp"`
}

var (
	complexities   = []Complexity{ComplexitySimple, ComplexityMedium, ComplexityDetailed}
	ageGroups      = []AgeGroup{AgeKids, AgeTeens, AgeAdults}
	lineThickneses = []LineThickness{LineThin, LineMedium, LineThick}
	borders        = []Border{BorderWith, BorderWithout}
	themes         = []Theme{ThemeAnimals, ThemeMandalas, ThemeFantasy, ThemeNature, ThemeVehicles, ThemeFood, ThemeHolidays, ThemeSports}
)

// PreferenceField describes one recognized customization key and its allowed
// values, in the order callers should present them.
type PreferenceField struct {
	Key     string   `json:"key"`
	Values  []string `json:"values"`
	Default string   `json:"default,omitempty"`
}

func PreferenceFields() []PreferenceField {
	d := DefaultPreferences()
	return []PreferenceField{
		{Key: fieldComplexity, Values: toStrings(complexities), Default: string(d.Complexity)},
		{Key: fieldAgeGroup, Values: toStrings(ageGroups), Default: string(d.AgeGroup)},
		{Key: fieldLineThickness, Values: toStrings(lineThickneses), Default: string(d.LineThickness)},
		{Key: fieldBorder, Values: toStrings(borders), Default: string(d.Border)},
		{Key: fieldTheme, Values: toStrings(themes)},
	}
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, string(v))
	}
	return out
}
