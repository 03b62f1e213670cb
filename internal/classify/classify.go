// Package classify implements the rule-based classification engine. It is a
// pure function of the item's text and origin group: no I/O, no randomness,
// no external state, so the same input always produces the same verdict.
package classify

import (
	"fmt"
	"strings"

	"github.com/painradar/aggregation-service/internal/models"
)

const (
	baseConfidenceProblem    = 0.5
	baseConfidenceNonProblem = 0.2
)

// Classifier applies a fixed rule set to canonical items.
type Classifier struct {
	rules Rules
}

// New creates a classifier over the given rule set.
func New(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// Classify produces the deterministic verdict for one canonical item.
func (c *Classifier) Classify(item models.CanonicalItem) models.Classification {
	text := strings.ToLower(strings.TrimSpace(item.Title + " " + item.BodyText))
	words := len(strings.Fields(text))

	isProblem := c.detectProblem(text, words)
	category := c.categorize(item.OriginGroup, text)

	return models.Classification{
		IsRealProblem: isProblem,
		Category:      category,
		Confidence:    c.confidence(isProblem, text, words),
		Reasoning:     c.reasoning(isProblem, category),
		Keywords:      c.extractKeywords(text),
	}
}

// detectProblem decides whether the text describes a genuine unmet need.
// Disqualifying phrases always win over qualifying ones; this precedence is
// deliberate and covered by its own tests.
func (c *Classifier) detectProblem(text string, words int) bool {
	for _, phrase := range c.rules.DisqualifyingPhrases {
		if strings.Contains(text, phrase) {
			return false
		}
	}
	for _, phrase := range c.rules.StrongProblemPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	// Short casual mentions of "problem" are noise; long-form ones usually
	// describe a substantive pain point.
	if words > c.rules.FallbackMinWords {
		for _, word := range c.rules.GenericProblemWords {
			if strings.Contains(text, word) {
				return true
			}
		}
	}
	return false
}

// categorize picks the topical category. A recognized origin group
// short-circuits keyword scoring; otherwise the category with the strictly
// highest keyword occurrence count wins, ties resolving to the
// first-declared category. An all-zero score yields general.
func (c *Classifier) categorize(originGroup, text string) models.Category {
	origin := strings.ToLower(strings.TrimSpace(originGroup))
	for _, rule := range c.rules.Origins {
		for _, group := range rule.Groups {
			if origin == group {
				return rule.Category
			}
		}
	}

	best := models.CategoryGeneral
	bestScore := 0
	for _, rule := range c.rules.Categories {
		score := 0
		for _, keyword := range rule.Keywords {
			score += strings.Count(text, keyword)
		}
		if score > bestScore {
			bestScore = score
			best = rule.Name
		}
	}
	return best
}

// confidence computes the clamped confidence score per the fixed adjustment
// table: base by verdict, then text length, very-strong phrases, and a weak
// rhetorical-post penalty for question-heavy text.
func (c *Classifier) confidence(isProblem bool, text string, words int) float64 {
	conf := baseConfidenceNonProblem
	if isProblem {
		conf = baseConfidenceProblem
	}

	switch {
	case words > 100:
		conf += 0.2
	case words >= 50:
		conf += 0.1
	case words < 10:
		conf -= 0.2
	}

	for _, phrase := range c.rules.VeryStrongPhrases {
		if strings.Contains(text, phrase) {
			conf += 0.2
			break
		}
	}

	if strings.Count(text, "?") > 2 {
		conf -= 0.1
	}

	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

func (c *Classifier) reasoning(isProblem bool, category models.Category) string {
	explanation := c.rules.Explanations[category]
	if isProblem {
		return fmt.Sprintf("Describes an unmet need; categorized as %s because %s.", category, explanation)
	}
	return fmt.Sprintf("No actionable problem signal; categorized as %s because %s.", category, explanation)
}

// extractKeywords returns the master-list keywords literally present in the
// text, in master-list order.
func (c *Classifier) extractKeywords(text string) []string {
	var found []string
	for _, keyword := range c.rules.MasterKeywords {
		if strings.Contains(text, keyword) {
			found = append(found, keyword)
		}
	}
	return found
}
