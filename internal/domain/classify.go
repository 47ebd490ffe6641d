package domain

import (
	"sort"
	"strings"
	"time"
)

// Category is the coarse event class. The set is exhaustive; anything that
// matches no keyword table scores as CategoryOther.
type Category string

const (
	CategoryConflict  Category = "conflict"
	CategoryDisaster  Category = "disaster"
	CategoryPolitical Category = "political"
	CategoryOther     Category = "other"
)

// WeightedKeyword is one scored term in a category table.
type WeightedKeyword struct {
	Term   string
	Weight int
}

// RecencyCeiling caps severity for events older than Age.
type RecencyCeiling struct {
	Age time.Duration
	Max int
}

// ClassifierConfig holds every scoring knob. Weights and thresholds are policy
// choices, not structural requirements, so they live in configuration.
type ClassifierConfig struct {
	Categories map[Category][]WeightedKeyword
	Topics     map[string][]string

	// SeverityTiers maps a severity level (5 down to 2) to the phrases that
	// trigger it; anything unmatched scores 1.
	SeverityTiers map[int][]string

	// SourceTiers maps a source label to a reliability tier (1 = low,
	// 2 = normal, 3 = high). Tier-1 sources have their severity discounted
	// by one level. Unlisted sources are tier 2.
	SourceTiers map[string]int

	// RecencyCeilings cap severity by event age, most recent first.
	RecencyCeilings []RecencyCeiling

	// BreakingThreshold is the minimum severity for the breaking flag.
	BreakingThreshold int

	// BreakingWindow is how recently an event must have been published to be
	// flagged breaking.
	BreakingWindow time.Duration
}

// DefaultClassifierConfig returns the illustrative keyword tables and
// thresholds used when no overrides are configured.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Categories: map[Category][]WeightedKeyword{
			CategoryConflict: {
				{"airstrike", 2}, {"missile", 2}, {"shelling", 2}, {"offensive", 2},
				{"attack", 1}, {"explosion", 1}, {"troops", 1}, {"battle", 1},
				{"war", 1}, {"military", 1}, {"drone", 1}, {"killed", 1},
				{"wounded", 1}, {"bomb", 1}, {"forces", 1}, {"ceasefire", 1},
				{"strike", 1}, {"gunman", 1},
			},
			CategoryDisaster: {
				{"earthquake", 2}, {"tsunami", 2}, {"eruption", 2},
				{"flood", 1}, {"hurricane", 1}, {"tornado", 1}, {"wildfire", 1},
				{"cyclone", 1}, {"storm", 1}, {"landslide", 1}, {"drought", 1},
				{"fire", 1},
			},
			CategoryPolitical: {
				{"coup", 2}, {"sanctions", 2},
				{"election", 1}, {"protest", 1}, {"president", 1}, {"minister", 1},
				{"government", 1}, {"parliament", 1}, {"treaty", 1}, {"vote", 1},
				{"arrested", 1},
			},
		},
		Topics: map[string][]string{
			"war": {
				"war", "invasion", "offensive", "airstrike", "shelling", "artillery",
				"troops", "front line", "frontline", "combat", "battle", "siege",
				"ceasefire", "missile strike", "drone strike", "armed forces",
				"casualties", "counter-offensive", "occupation",
			},
			"protests": {
				"protest", "riot", "demonstration", "unrest", "uprising",
				"demonstrators", "tear gas", "water cannon", "civil unrest",
				"blockade", "looting", "barricade", "crackdown", "rally",
				"insurrection",
			},
			"terrorism": {
				"terrorist", "terrorism", "terror attack", "suicide bomber",
				"suicide bombing", "ied", "jihadist", "car bomb", "knife attack",
				"mass shooting", "hostage", "kidnapping", "massacre", "gunman",
				"active shooter", "claimed responsibility", "explosive device",
				"detonated",
			},
			"natural_disasters": {
				"earthquake", "magnitude", "tremor", "aftershock", "flood",
				"flooding", "flash flood", "hurricane", "typhoon", "cyclone",
				"tropical storm", "tornado", "wildfire", "forest fire", "tsunami",
				"volcanic eruption", "volcano", "landslide", "mudslide", "avalanche",
				"drought", "famine", "heatwave", "storm surge", "blizzard",
				"death toll", "evacuated",
			},
		},
		SeverityTiers: map[int][]string{
			5: {"mass casualty", "nuclear", "catastrophic", "major offensive", "capital seized"},
			4: {"dozens killed", "city under attack", "state of emergency", "coup"},
			3: {"casualties", "explosion", "airstrike", "protest", "arrested"},
			2: {"clashes", "tensions", "evacuation", "warning"},
		},
		SourceTiers: map[string]int{},
		RecencyCeilings: []RecencyCeiling{
			{Age: 6 * time.Hour, Max: 4},
			{Age: 24 * time.Hour, Max: 2},
		},
		BreakingThreshold: 4,
		BreakingWindow:    30 * time.Minute,
	}
}

// Classifier scores category, topics, severity, and the breaking flag for
// normalized drafts. It is stateless and safe for concurrent use.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier builds a Classifier, filling zero-valued config fields from
// the defaults.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	def := DefaultClassifierConfig()
	if cfg.Categories == nil {
		cfg.Categories = def.Categories
	}
	if cfg.Topics == nil {
		cfg.Topics = def.Topics
	}
	if cfg.SeverityTiers == nil {
		cfg.SeverityTiers = def.SeverityTiers
	}
	if cfg.SourceTiers == nil {
		cfg.SourceTiers = def.SourceTiers
	}
	if cfg.RecencyCeilings == nil {
		cfg.RecencyCeilings = def.RecencyCeilings
	}
	if cfg.BreakingThreshold == 0 {
		cfg.BreakingThreshold = def.BreakingThreshold
	}
	if cfg.BreakingWindow == 0 {
		cfg.BreakingWindow = def.BreakingWindow
	}
	return &Classifier{cfg: cfg}
}

// Classify scores the draft and writes category, topics, severity, and the
// breaking flag onto the event.
func (c *Classifier) Classify(event *Event) {
	text := strings.ToLower(event.Title + " " + event.Excerpt)

	event.Category = c.category(text)
	event.Topics = c.topics(text)
	event.Severity = c.severity(text, event.Source, event.PublishedAt)
	event.Breaking = c.breaking(event.Severity, event.PublishedAt, event.SourceCount)
}

// category returns the highest-scoring category, or CategoryOther when no
// keyword matches. Ties break in fixed order so results are deterministic.
func (c *Classifier) category(text string) Category {
	best := CategoryOther
	bestScore := 0
	for _, cat := range []Category{CategoryConflict, CategoryDisaster, CategoryPolitical} {
		score := 0
		for _, kw := range c.cfg.Categories[cat] {
			if strings.Contains(text, kw.Term) {
				score += kw.Weight
			}
		}
		if score > bestScore {
			best = cat
			bestScore = score
		}
	}
	return best
}

// topics returns every matching topic label, sorted for stable output.
func (c *Classifier) topics(text string) []string {
	var matched []string
	for topic, terms := range c.cfg.Topics {
		for _, term := range terms {
			if strings.Contains(text, term) {
				matched = append(matched, topic)
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}

// severity combines keyword tiers, the source reliability tier, and recency
// ceilings into a 1–5 score.
func (c *Classifier) severity(text, source string, published time.Time) int {
	sev := 1
	for _, level := range []int{5, 4, 3, 2} {
		if matchAny(text, c.cfg.SeverityTiers[level]) {
			sev = level
			break
		}
	}

	if tier, ok := c.cfg.SourceTiers[source]; ok && tier <= 1 && sev > 1 {
		sev--
	}

	age := clock.Now().Sub(published)
	for _, ceiling := range c.cfg.RecencyCeilings {
		if age > ceiling.Age && sev > ceiling.Max {
			sev = ceiling.Max
		}
	}
	if sev < 1 {
		sev = 1
	}
	return sev
}

func (c *Classifier) breaking(severity int, published time.Time, sourceCount int) bool {
	if sourceCount < 1 {
		sourceCount = 1
	}
	return severity >= c.cfg.BreakingThreshold &&
		clock.Now().Sub(published) <= c.cfg.BreakingWindow &&
		sourceCount >= 1
}

func matchAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
