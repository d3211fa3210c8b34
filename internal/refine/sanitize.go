package refine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	MinPromptLength = 1
	MaxPromptLength = 500
)

const (
	fieldPrompt        = "prompt"
	fieldComplexity    = "complexity"
	fieldAgeGroup      = "ageGroup"
	fieldLineThickness = "lineThickness"
	fieldBorder        = "border"
	fieldTheme         = "theme"
)

const strippedChars = "<>\"'`"

// SanitizeText normalizes a raw prompt and checks its length. Only strings
// (or non-nil *string) are accepted.
func SanitizeText(input any) (string, error) {
	var text string
	switch v := input.(type) {
	case nil:
		return "", &ValidationError{Field: fieldPrompt, Reason: "is required"}
	case string:
		text = v
	case *string:
		if v == nil {
			return "", &ValidationError{Field: fieldPrompt, Reason: "is required"}
		}
		text = *v
	default:
		return "", &ValidationError{Field: fieldPrompt, Reason: fmt.Sprintf("must be text, got %T", input)}
	}

	text = normalizeText(text)

	n := utf8.RuneCountInString(text)
	switch {
	case n < MinPromptLength:
		return "", &ValidationError{Field: fieldPrompt, Reason: "must not be empty"}
	case n > MaxPromptLength:
		return "", &ValidationError{Field: fieldPrompt, Reason: fmt.Sprintf("must be at most %d characters, got %d", MaxPromptLength, n)}
	}
	return text, nil
}

// normalizeText folds compatibility forms (so full-width brackets are caught
// by the strip step), removes markup characters and collapses whitespace.
// The output is NFC and a fixed point of this function.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(strippedChars, r) {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(s)
}

// ValidateCustomizations checks every recognized key present in raw. Absent
// keys and nil values stay unset. Present values must match an allowed value
// exactly; surrounding whitespace or an empty string is rejected. Unknown keys
// are ignored.
func ValidateCustomizations(raw map[string]any) (Preferences, error) {
	var (
		prefs Preferences
		err   error
	)
	if prefs.Complexity, err = enumField(raw, fieldComplexity, complexities); err != nil {
		return Preferences{}, err
	}
	if prefs.AgeGroup, err = enumField(raw, fieldAgeGroup, ageGroups); err != nil {
		return Preferences{}, err
	}
	if prefs.LineThickness, err = enumField(raw, fieldLineThickness, lineThickneses); err != nil {
		return Preferences{}, err
	}
	if prefs.Border, err = enumField(raw, fieldBorder, borders); err != nil {
		return Preferences{}, err
	}
	if prefs.Theme, err = enumField(raw, fieldTheme, themes); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// salvagePreferences keeps each field that would pass validation on its own
// and drops the rest.
func salvagePreferences(raw map[string]any) Preferences {
	var prefs Preferences
	prefs.Complexity, _ = enumField(raw, fieldComplexity, complexities)
	prefs.AgeGroup, _ = enumField(raw, fieldAgeGroup, ageGroups)
	prefs.LineThickness, _ = enumField(raw, fieldLineThickness, lineThickneses)
	prefs.Border, _ = enumField(raw, fieldBorder, borders)
	prefs.Theme, _ = enumField(raw, fieldTheme, themes)
	return prefs
}

func enumField[T ~string](raw map[string]any, key string, allowed []T) (T, error) {
	var zero T
	value, ok := raw[key]
	if !ok || value == nil {
		return zero, nil
	}

	var s string
	switch v := value.(type) {
	case string:
		s = v
	case T:
		s = string(v)
	default:
		return zero, &ValidationError{Field: key, Reason: fmt.Sprintf("must be one of %s", joinEnum(allowed))}
	}

	for _, candidate := range allowed {
		if string(candidate) == s {
			return candidate, nil
		}
	}
	return zero, &ValidationError{Field: key, Reason: fmt.Sprintf("%q is not one of %s", s, joinEnum(allowed))}
}

func joinEnum[T ~string](values []T) string {
	return strings.Join(toStrings(values), ", ")
}
