package refine

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// GeneralCategory is the catch-all returned when no keyword matches.
const GeneralCategory = "general"

//go:embed catalog.yaml
var catalogYAML []byte

type Category struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

type blockGroup struct {
	Group string   `yaml:"group"`
	Terms []string `yaml:"terms"`
}

type catalogFile struct {
	Categories []Category   `yaml:"categories"`
	Blocklist  []blockGroup `yaml:"blocklist"`
	Allowlist  []string     `yaml:"allowlist"`
}

// Catalog holds the ordered subject categories and the moderation
// block-list. It is immutable after ParseCatalog returns.
type Catalog struct {
	categories []Category
	blocked    []string
	allowed    []string
}

var loadDefaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
})

// LoadDefaultCatalog parses the embedded catalog on first use and returns the
// shared instance afterwards.
func LoadDefaultCatalog() (*Catalog, error) {
	return loadDefaultCatalog()
}

// DefaultCatalog is LoadDefaultCatalog for callers that treat a broken
// embedded catalog as a programming error.
func DefaultCatalog() *Catalog {
	c, err := loadDefaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, errors.New("catalog has no categories")
	}

	c := &Catalog{categories: make([]Category, 0, len(file.Categories))}
	seen := make(map[string]struct{}, len(file.Categories))
	for i, cat := range file.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return nil, fmt.Errorf("category #%d has no name", i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate category %q", name)
		}
		seen[name] = struct{}{}

		keywords := make([]string, 0, len(cat.Keywords))
		for _, kw := range cat.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				return nil, fmt.Errorf("category %q has an empty keyword", name)
			}
			keywords = append(keywords, kw)
		}
		keywords = uniq(keywords)

		if name == GeneralCategory && len(keywords) > 0 {
			return nil, fmt.Errorf("category %q must not have keywords", GeneralCategory)
		}
		c.categories = append(c.categories, Category{Name: name, Keywords: keywords})
	}
	if c.categories[len(c.categories)-1].Name != GeneralCategory {
		return nil, fmt.Errorf("catalog must end with %q", GeneralCategory)
	}

	for _, group := range file.Blocklist {
		for _, term := range group.Terms {
			term = strings.ToLower(strings.TrimSpace(term))
			if term == "" {
				return nil, fmt.Errorf("blocklist group %q has an empty term", group.Group)
			}
			c.blocked = append(c.blocked, term)
		}
	}
	c.blocked = uniq(c.blocked)
	if len(c.blocked) == 0 {
		return nil, errors.New("catalog has an empty blocklist")
	}

	for _, phrase := range file.Allowlist {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			return nil, errors.New("allowlist has an empty phrase")
		}
		c.allowed = append(c.allowed, phrase)
	}
	c.allowed = uniq(c.allowed)

	return c, nil
}

// Categories returns a copy of the categories in declaration order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, 0, len(c.categories))
	for _, cat := range c.categories {
		keywords := make([]string, len(cat.Keywords))
		copy(keywords, cat.Keywords)
		out = append(out, Category{Name: cat.Name, Keywords: keywords})
	}
	return out
}

func (c *Catalog) Has(name string) bool {
	for _, cat := range c.categories {
		if cat.Name == name {
			return true
		}
	}
	return false
}

type CategoryScore struct {
	Category string   `json:"category"`
	Score    int      `json:"score"`
	Matched  []string `json:"matched,omitempty"`
}

// Scores reports, per category in declaration order, which keywords occur in
// text. Each keyword counts once however often it appears.
func (c *Catalog) Scores(text string) []CategoryScore {
	lower := lowerText(text)
	out := make([]CategoryScore, 0, len(c.categories))
	for _, cat := range c.categories {
		s := CategoryScore{Category: cat.Name}
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				s.Score++
				s.Matched = append(s.Matched, kw)
			}
		}
		out = append(out, s)
	}
	return out
}

// DetectCategory returns the highest scoring category. A later category
// replaces the current best only with a strictly greater score, so ties go
// to the earlier declaration.
func (c *Catalog) DetectCategory(text string) string {
	lower := lowerText(text)
	best, bestScore := GeneralCategory, 0
	for _, cat := range c.categories {
		score := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = cat.Name, score
		}
	}
	return best
}

// CheckFamilyFriendly returns a *ModerationError naming every blocked term
// found in text, or nil. A term matches at the start of a word and may be
// followed by more letters, so "zombies" and "gunfight" are caught. Allow-list
// phrases ("warm", "killer whale") are blanked out before the scan.
func (c *Catalog) CheckFamilyFriendly(text string) error {
	lower := maskWords(lowerText(text), c.allowed)
	var found []string
	for _, term := range c.blocked {
		if hasWordPrefix(lower, term) {
			found = append(found, term)
		}
	}
	if len(found) > 0 {
		return &ModerationError{Terms: found}
	}
	return nil
}

// lowerText builds a fresh Caser per call; Casers are not safe for
// concurrent use.
func lowerText(s string) string {
	return cases.Lower(language.Und).String(s)
}

// hasWordPrefix reports whether term occurs in s at the start of a word.
func hasWordPrefix(s, term string) bool {
	for offset := 0; offset <= len(s)-len(term); {
		idx := strings.Index(s[offset:], term)
		if idx < 0 {
			return false
		}
		start := offset + idx

		before, _ := utf8.DecodeLastRuneInString(s[:start])
		if start == 0 || !isWordRune(before) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		offset = start + size
	}
	return false
}

// maskWords replaces every whole-word occurrence of each phrase with spaces
// of the same byte length.
func maskWords(s string, phrases []string) string {
	if len(phrases) == 0 {
		return s
	}
	b := []byte(s)
	for _, phrase := range phrases {
		p := []byte(phrase)
		for offset := 0; offset <= len(b)-len(p); {
			idx := bytes.Index(b[offset:], p)
			if idx < 0 {
				break
			}
			start := offset + idx
			end := start + len(p)

			before, _ := utf8.DecodeLastRune(b[:start])
			after, _ := utf8.DecodeRune(b[end:])
			if (start == 0 || !isWordRune(before)) && (end == len(b) || !isWordRune(after)) {
				for i := start; i < end; i++ {
					b[i] = ' '
				}
				offset = end
				continue
			}
			_, size := utf8.DecodeRune(b[start:])
			offset = start + size
		}
	}
	return string(b)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
