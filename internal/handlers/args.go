package handlers

import (
	"strings"
)

// Args is the parsed form of "/refine adults thick theme=nature a cozy cabin".
type Args struct {
	Customizations map[string]string
	UseGPT         *bool
	Text           string
}

var shortcutTokens = map[string][2]string{
	"simple":     {"complexity", "simple"},
	"medium":     {"complexity", "medium"},
	"detailed":   {"complexity", "detailed"},
	"kids":       {"ageGroup", "kids"},
	"teens":      {"ageGroup", "teens"},
	"adults":     {"ageGroup", "adults"},
	"thin":       {"lineThickness", "thin"},
	"thick":      {"lineThickness", "thick"},
	"border":     {"border", "with"},
	"noborder":   {"border", "without"},
	"borderless": {"border", "without"},
}

var keyAliases = map[string]string{
	"complexity":    "complexity",
	"c":             "complexity",
	"age":           "ageGroup",
	"agegroup":      "ageGroup",
	"lines":         "lineThickness",
	"line":          "lineThickness",
	"linethickness": "lineThickness",
	"border":        "border",
	"theme":         "theme",
}

// ParseArgs reads option tokens from the start of raw. The first token that
// is not an option starts the free text, so subject words such as "kids" are
// left alone once the description has begun. Values are not validated here.
func ParseArgs(raw string) Args {
	args := Args{Customizations: map[string]string{}}
	fields := strings.Fields(raw)

	i := 0
	for ; i < len(fields); i++ {
		tok := strings.ToLower(fields[i])

		switch tok {
		case "gpt", "ai":
			on := true
			args.UseGPT = &on
			continue
		case "nogpt", "noai":
			off := false
			args.UseGPT = &off
			continue
		}

		if kv, ok := shortcutTokens[tok]; ok {
			args.Customizations[kv[0]] = kv[1]
			continue
		}

		if key, value, ok := strings.Cut(tok, "="); ok {
			if field, known := keyAliases[key]; known && value != "" {
				args.Customizations[field] = value
				continue
			}
		}
		break
	}

	args.Text = strings.Join(fields[i:], " ")
	return args
}

// toCustomizations merges saved values with per-message overrides.
func toCustomizations(saved, override map[string]string) map[string]any {
	out := make(map[string]any, len(saved)+len(override))
	for k, v := range saved {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
