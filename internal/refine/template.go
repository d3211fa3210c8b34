package refine

import (
	"strings"
)

const subjectPlaceholder = "{subject}"

// Separator joins instruction clauses. Consumers split on it when logging.
const Separator = ". "

const GenericInstruction = "Create a simple black-and-white coloring page of a friendly cartoon animal in a sunny meadow" +
	Separator + "Thick, clear outlines on a white background" +
	Separator + "No shading or gray tones."

type complexityTemplates struct {
	Simple   string
	Medium   string
	Detailed string
}

func (t complexityTemplates) forComplexity(c Complexity) string {
	switch c {
	case ComplexitySimple:
		return t.Simple
	case ComplexityDetailed:
		return t.Detailed
	default:
		return t.Medium
	}
}

var categoryTemplates = map[string]complexityTemplates{
	"domesticAnimals": {
		Simple:   "a friendly {subject} with a big round head, simple body shapes and a happy face",
		Medium:   "a charming {subject} with soft fur texture lines, expressive eyes and a cozy home or farmyard setting",
		Detailed: "a lifelike {subject} with detailed fur patterns, individual whiskers and paws, surrounded by a richly drawn home or farm scene",
	},
	"wildAnimals": {
		Simple:   "a cute {subject} drawn with bold simple shapes and a cheerful expression",
		Medium:   "a {subject} in its natural habitat with visible fur or skin texture and a few plants around it",
		Detailed: "a majestic {subject} with intricate fur, mane or skin patterns, set in a lush habitat full of foliage and terrain details",
	},
	"birds": {
		Simple:   "a round, friendly {subject} with large simple wings and a small beak",
		Medium:   "a {subject} perched on a branch with clearly separated feather groups and a leafy background",
		Detailed: "an elegant {subject} with every feather outlined, fine wing detail and an ornate branch with leaves and blossoms",
	},
	"prehistoricAnimals": {
		Simple:   "a smiling cartoon {subject} with chunky shapes and a few big spots",
		Medium:   "a {subject} in a prehistoric landscape with ferns, volcano silhouettes and scale texture lines",
		Detailed: "a scientifically inspired {subject} with detailed scales, claws and ridges in a dense prehistoric jungle with volcanoes and giant ferns",
	},
	"marineLife": {
		Simple:   "a happy {subject} with simple fins and a few bubbles around it",
		Medium:   "a {subject} swimming among coral, seaweed and bubbles with clear fin and scale lines",
		Detailed: "a {subject} in a vibrant underwater reef scene with intricate coral structures, shells, schools of tiny fish and flowing seaweed",
	},
	"insects": {
		Simple:   "a cute {subject} with large simple wings or body segments and a smiling face",
		Medium:   "a {subject} resting on a flower or leaf with patterned wings or shell and visible legs and antennae",
		Detailed: "a {subject} with highly detailed wing veins, segmented body and delicate antennae on an intricate botanical background",
	},
	"fantasyCreatures": {
		Simple:   "a friendly {subject} with simple magical shapes, stars and sparkles",
		Medium:   "a magical {subject} in an enchanted setting with swirling patterns, stars and fairy-tale details",
		Detailed: "an epic {subject} with ornate scales, feathers or robes, surrounded by an elaborate enchanted world of castles, clouds and magical flourishes",
	},
	"nature": {
		Simple:   "a simple {subject} made of large, easy shapes with a sun and a few clouds",
		Medium:   "a {subject} scene with leaves, petals and natural textures arranged in a balanced composition",
		Detailed: "a richly detailed {subject} landscape with layered foliage, intricate petals, bark textures and depth in the background",
	},
	"space": {
		Simple:   "a fun {subject} with big round planets, simple stars and a smiling moon",
		Medium:   "a {subject} among planets, stars and swirling galaxies with clean geometric details",
		Detailed: "a {subject} in a vast cosmic scene with ringed planets, constellations, nebula swirls and finely drawn spacecraft details",
	},
	"vehicles": {
		Simple:   "a chunky cartoon {subject} with big wheels and simple windows",
		Medium:   "a {subject} with visible doors, windows, lights and wheels on a simple road or track",
		Detailed: "a realistic {subject} with detailed panels, bolts, lights and mechanical parts in a busy street, track or harbor scene",
	},
	"food": {
		Simple:   "a cute {subject} with a smiling face and simple rounded shapes",
		Medium:   "a delicious {subject} with texture details like seeds, sprinkles or crumbs on a plate",
		Detailed: "a mouth-watering {subject} arrangement with intricate textures, garnishes and decorative tableware on a patterned tablecloth",
	},
	"household": {
		Simple:   "a simple {subject} with clean outlines and a friendly look",
		Medium:   "a {subject} in a cozy room setting with a few decorative objects around it",
		Detailed: "an ornate {subject} with decorative patterns and fine craftsmanship details in a fully furnished interior",
	},
	"sports": {
		Simple:   "a fun {subject} scene with a ball or simple equipment and a happy player",
		Medium:   "an action {subject} moment with motion lines, equipment details and a stadium or field outline",
		Detailed: "a dynamic {subject} scene with detailed athletes, uniforms, equipment and a crowded stadium background",
	},
	"holidays": {
		Simple:   "a festive {subject} with simple decorations and a cheerful mood",
		Medium:   "a {subject} celebration scene with decorations, gifts and seasonal details",
		Detailed: "an elaborate {subject} scene filled with ornate decorations, patterned gift wrap, garlands and seasonal ornaments",
	},
	"instruments": {
		Simple:   "a simple {subject} with a few music notes floating around it",
		Medium:   "a {subject} with visible strings, keys or valves and flowing music notes",
		Detailed: "a finely crafted {subject} with ornate wood grain, precise mechanical details and a swirling sheet-music background",
	},
	"mandalas": {
		Simple:   "a simple {subject} mandala with a few large symmetrical petals and circles",
		Medium:   "a {subject} mandala with several rings of symmetrical petals, dots and geometric shapes",
		Detailed: "an intricate {subject} mandala with many concentric rings of fine symmetrical patterns, lace-like details and tiny repeated motifs",
	},
	"abstractArt": {
		Simple:   "an abstract {subject} composition of large bold shapes and gentle curves",
		Medium:   "an abstract {subject} design with overlapping shapes, swirls and patterned sections",
		Detailed: "a complex abstract {subject} artwork with interlocking shapes, optical patterns and finely subdivided regions",
	},
	GeneralCategory: {
		Simple:   "a simple drawing of {subject} with large, easy-to-color shapes",
		Medium:   "an illustration of {subject} with a moderate amount of detail and a simple background",
		Detailed: "a highly detailed illustration of {subject} with intricate textures and a full background scene",
	},
}

var ageSuffixes = map[AgeGroup]string{
	AgeKids:   "designed for young children with big, easy-to-color areas and a friendly, cheerful look",
	AgeTeens:  "designed for teenagers with a stylish look and moderately intricate areas",
	AgeAdults: "designed for adults with sophisticated, intricate detail for relaxing, mindful coloring",
}

const neutralAgeSuffix = "suitable for colorists of all ages"

var complexityClauses = map[Complexity]string{
	ComplexitySimple:   "Complexity: simple, with few large shapes and minimal detail",
	ComplexityMedium:   "Complexity: medium, with a balanced amount of detail",
	ComplexityDetailed: "Complexity: detailed, with intricate patterns and fine elements",
}

var audienceClauses = map[AgeGroup]string{
	AgeKids:   "Audience: young children",
	AgeTeens:  "Audience: teenagers",
	AgeAdults: "Audience: adults",
}

var lineClauses = map[LineThickness]string{
	LineThin:   "Line thickness: thin, delicate outlines",
	LineMedium: "Line thickness: medium, even outlines",
	LineThick:  "Line thickness: thick, bold outlines",
}

var borderClauses = map[Border]string{
	BorderWith:    "Border: include a simple decorative border around the page",
	BorderWithout: "Border: no border, artwork extends to the page edges",
}

const roleFraming = "Create a printable black-and-white coloring page illustration"

// styleConstraints always close the instruction, in this order.
var styleConstraints = []string{
	"No shading, gradients or gray tones",
	"High contrast pure black lines on a white background",
	"Clear, closed outlines with distinct areas to color",
	"Print-ready at 300 DPI resolution",
}

// StyleSuffix is the exact text every successful instruction ends with.
func StyleSuffix() string {
	return strings.Join(styleConstraints, Separator) + "."
}

// TemplateEngine expands a subject into category, complexity and age aware
// wording. The zero value is not usable; use NewTemplateEngine.
type TemplateEngine struct {
	templates map[string]complexityTemplates
}

func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{templates: categoryTemplates}
}

// HasTemplates reports whether category has its own templates rather than
// falling back to general.
func (e *TemplateEngine) HasTemplates(category string) bool {
	_, ok := e.templates[category]
	return ok
}

func (e *TemplateEngine) Expand(text, category string, complexity Complexity, age AgeGroup) string {
	tpl, ok := e.templates[category]
	if !ok {
		tpl = e.templates[GeneralCategory]
	}

	desc := strings.ReplaceAll(tpl.forComplexity(complexity), subjectPlaceholder, text)

	suffix, ok := ageSuffixes[age]
	if !ok {
		suffix = neutralAgeSuffix
	}
	return desc + ", " + suffix
}

// BuildInstruction wraps an elaborated description in the production
// clauses. prefs must already carry defaults.
func BuildInstruction(description string, prefs Preferences) string {
	clauses := make([]string, 0, 8+len(styleConstraints))
	clauses = append(clauses,
		roleFraming,
		"Subject: "+trimClause(description),
		complexityClauses[prefs.Complexity],
		audienceClauses[prefs.AgeGroup],
		lineClauses[prefs.LineThickness],
		borderClauses[prefs.Border],
	)
	if prefs.Theme != "" {
		clauses = append(clauses, "Theme: weave in "+string(prefs.Theme)+" motifs")
	}
	clauses = append(clauses, styleConstraints...)

	var b strings.Builder
	b.Grow(512)
	for i, clause := range uniq(clauses) {
		if i > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(clause)
	}
	b.WriteString(".")
	return b.String()
}

// appendStyle closes free-form text (a completion) with the same style
// constraints the template path uses.
func appendStyle(text string) string {
	return trimClause(text) + Separator + StyleSuffix()
}

func trimClause(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), " .;,")
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
