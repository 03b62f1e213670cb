package classify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/painradar/aggregation-service/internal/models"
)

// CategoryRule holds one category's keyword table. Declaration order is the
// tie-break order during scoring.
type CategoryRule struct {
	Name     models.Category `json:"name"`
	Keywords []string        `json:"keywords"`
}

// OriginRule maps origin-group names straight to a category, short-circuiting
// keyword scoring.
type OriginRule struct {
	Category models.Category `json:"category"`
	Groups   []string        `json:"groups"`
}

// Rules is the full classification rule set. It is configuration data, not
// code: loadable from JSON so behavior changes don't require a rebuild.
type Rules struct {
	StrongProblemPhrases []string                   `json:"strong_problem_phrases"`
	VeryStrongPhrases    []string                   `json:"very_strong_phrases"`
	DisqualifyingPhrases []string                   `json:"disqualifying_phrases"`
	GenericProblemWords  []string                   `json:"generic_problem_words"`
	FallbackMinWords     int                        `json:"fallback_min_words"`
	Categories           []CategoryRule             `json:"categories"`
	Origins              []OriginRule               `json:"origins"`
	MasterKeywords       []string                   `json:"master_keywords"`
	Explanations         map[models.Category]string `json:"explanations"`
}

// LoadRules reads a rule set from a JSON file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules file: %w", err)
	}
	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parsing rules file: %w", err)
	}
	scored := make(map[models.Category]bool)
	for _, c := range models.ScoredCategories() {
		scored[c] = true
	}
	for _, cat := range rules.Categories {
		if !scored[cat.Name] {
			return Rules{}, fmt.Errorf("unknown category %q in rules file", cat.Name)
		}
	}
	if rules.FallbackMinWords <= 0 {
		rules.FallbackMinWords = DefaultRules().FallbackMinWords
	}
	return rules, nil
}

// DefaultRules returns the compiled-in rule set.
func DefaultRules() Rules {
	return Rules{
		StrongProblemPhrases: []string{
			"i wish there was",
			"someone should make",
			"would pay for",
			"why is there no",
			"there should be an app",
			"is there a tool",
			"looking for a solution",
			"so frustrating",
			"such a pain",
			"i can't find a way",
		},
		VeryStrongPhrases: []string{
			"i wish there was",
			"someone should make",
			"would pay for",
		},
		DisqualifyingPhrases: []string{
			"help me with my homework",
			"dating advice",
			"my ex",
			"settle a bet",
			"unpopular opinion",
			"shower thought",
		},
		GenericProblemWords: []string{
			"problem",
			"issue",
			"struggle",
			"challenge",
			"need help",
		},
		FallbackMinWords: 50,
		Categories: []CategoryRule{
			{
				Name: models.CategoryBusiness,
				Keywords: []string{
					"business", "startup", "entrepreneur", "freelance", "invoice",
					"client", "marketing", "revenue", "saas", "customer",
				},
			},
			{
				Name: models.CategoryEducation,
				Keywords: []string{
					"school", "college", "study", "course", "learning",
					"teacher", "student", "exam", "curriculum", "tutoring",
				},
			},
			{
				Name: models.CategoryTechnology,
				Keywords: []string{
					"software", "app", "api", "code", "developer",
					"automation", "website", "integration", "data", "device",
				},
			},
			{
				Name: models.CategoryFinance,
				Keywords: []string{
					"money", "budget", "investing", "tax", "debt",
					"savings", "banking", "insurance", "expense", "payroll",
				},
			},
			{
				Name: models.CategorySocial,
				Keywords: []string{
					"community", "relationship", "friends", "social", "communication",
					"networking", "family", "loneliness", "neighborhood", "meetup",
				},
			},
		},
		Origins: []OriginRule{
			{Category: models.CategoryBusiness, Groups: []string{"entrepreneur", "startups", "smallbusiness", "sideproject", "business"}},
			{Category: models.CategoryEducation, Groups: []string{"college", "teachers", "gradschool", "studytips"}},
			{Category: models.CategoryTechnology, Groups: []string{"programming", "webdev", "techsupport", "software", "stackoverflow"}},
			{Category: models.CategoryFinance, Groups: []string{"personalfinance", "investing", "frugal", "financialindependence"}},
			{Category: models.CategorySocial, Groups: []string{"relationships", "socialskills", "makenewfriendshere"}},
		},
		MasterKeywords: []string{
			"i wish there was", "someone should make", "would pay for",
			"need help", "problem", "issue", "struggle", "challenge",
			"automation", "freelance", "invoice", "startup", "budget",
			"saas", "tool", "manual", "spreadsheet", "workflow",
		},
		Explanations: map[models.Category]string{
			models.CategoryBusiness:   "the text centers on business operations, customers or revenue",
			models.CategoryEducation:  "the text centers on studying, teaching or coursework",
			models.CategoryTechnology: "the text centers on software, devices or technical workflows",
			models.CategoryFinance:    "the text centers on money management or financial products",
			models.CategorySocial:     "the text centers on relationships or community",
			models.CategoryGeneral:    "no category keywords dominated the text",
		},
	}
}
