package classify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painradar/aggregation-service/internal/models"
)

func newTestClassifier() *Classifier {
	return New(DefaultRules())
}

func item(title, body, origin string) models.CanonicalItem {
	return models.CanonicalItem{
		ID:          "test:1",
		Title:       title,
		BodyText:    body,
		OriginGroup: origin,
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := newTestClassifier()
	in := item("I wish there was a tool for this", "tracking invoices by hand is such a pain", "Entrepreneur")

	first := c.Classify(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(in))
	}
}

func TestStrongPhraseDetectsProblem(t *testing.T) {
	c := newTestClassifier()
	verdict := c.Classify(item("Someone should make a scheduling app for dog walkers", "", "general"))
	assert.True(t, verdict.IsRealProblem)
}

func TestDisqualifyingPhraseOverridesStrongPhrase(t *testing.T) {
	c := newTestClassifier()
	verdict := c.Classify(item(
		"i wish there was a way to forget my ex",
		"seriously, i wish there was an app for this",
		"relationships",
	))
	assert.False(t, verdict.IsRealProblem)
}

func TestFallbackRequiresLengthAndGenericWord(t *testing.T) {
	c := newTestClassifier()

	// Short mention of a generic problem word is noise.
	short := c.Classify(item("big problem today", "", "general"))
	assert.False(t, short.IsRealProblem)

	// Long-form text with a generic problem word qualifies.
	longBody := strings.Repeat("the spreadsheet workflow keeps breaking and ", 15) + "this is a real problem for our team"
	long := c.Classify(item("Our reporting pipeline", longBody, "general"))
	assert.True(t, long.IsRealProblem)

	// Long-form text without any generic problem word does not.
	neutral := c.Classify(item("Our reporting pipeline", strings.Repeat("we generate weekly reports for the team and ", 15), "general"))
	assert.False(t, neutral.IsRealProblem)
}

func TestOriginGroupShortCircuitsCategory(t *testing.T) {
	c := newTestClassifier()
	// Text keywords lean technology, but the origin wins.
	verdict := c.Classify(item("An app with an api for developer automation", "software code", "Entrepreneur"))
	assert.Equal(t, models.CategoryBusiness, verdict.Category)
}

func TestCategoryTieBreakIsDeclarationOrder(t *testing.T) {
	c := newTestClassifier()
	// One business keyword, one education keyword, unknown origin.
	verdict := c.Classify(item("my startup and my college", "", "unknown-group"))
	assert.Equal(t, models.CategoryBusiness, verdict.Category)
}

func TestCategoryAllZeroYieldsGeneral(t *testing.T) {
	c := newTestClassifier()
	verdict := c.Classify(item("the weather is nice", "sunny outside", "unknown-group"))
	assert.Equal(t, models.CategoryGeneral, verdict.Category)
}

func TestConfidenceClamped(t *testing.T) {
	c := newTestClassifier()

	// Maximum stacking: real problem, very strong phrase, long text.
	longBody := strings.Repeat("invoice tracking workflow ", 60) + "i wish there was a tool"
	high := c.Classify(item("I would pay for this", longBody, "Entrepreneur"))
	assert.LessOrEqual(t, high.Confidence, 1.0)
	assert.GreaterOrEqual(t, high.Confidence, 0.0)

	// Minimum stacking: not a problem, tiny text, question-heavy.
	low := c.Classify(item("eh? what? why?", "", "unknown-group"))
	assert.GreaterOrEqual(t, low.Confidence, 0.0)
	assert.LessOrEqual(t, low.Confidence, 1.0)
}

func TestQuestionMarksLowerConfidence(t *testing.T) {
	c := newTestClassifier()
	base := c.Classify(item("i wish there was an app to manage my freelance invoice backlog today", "", "Entrepreneur"))
	rhetorical := c.Classify(item("i wish there was an app to manage my freelance invoice backlog? why? how?", "", "Entrepreneur"))
	assert.InDelta(t, base.Confidence-0.1, rhetorical.Confidence, 1e-9)
}

func TestFreelanceInvoiceScenario(t *testing.T) {
	c := newTestClassifier()
	verdict := c.Classify(item(
		"I wish there was an app to track my freelance invoices",
		"it's such a pain to do manually",
		"Entrepreneur",
	))

	assert.True(t, verdict.IsRealProblem)
	assert.Equal(t, models.CategoryBusiness, verdict.Category)
	assert.GreaterOrEqual(t, verdict.Confidence, 0.7)
	assert.Contains(t, verdict.Keywords, "i wish there was")
}

func TestHomeworkScenario(t *testing.T) {
	c := newTestClassifier()
	verdict := c.Classify(item("can someone help me with my homework", "", "College"))
	assert.False(t, verdict.IsRealProblem)
}

func TestKeywordsFollowMasterListOrder(t *testing.T) {
	c := newTestClassifier()
	verdict := c.Classify(item(
		"startup invoice problem",
		"i wish there was automation for this",
		"unknown-group",
	))

	rules := DefaultRules()
	positions := make(map[string]int)
	for i, kw := range rules.MasterKeywords {
		positions[kw] = i
	}
	for i := 1; i < len(verdict.Keywords); i++ {
		assert.Less(t, positions[verdict.Keywords[i-1]], positions[verdict.Keywords[i]])
	}
	assert.Contains(t, verdict.Keywords, "startup")
	assert.Contains(t, verdict.Keywords, "invoice")
	assert.Contains(t, verdict.Keywords, "problem")
}

func TestReasoningNamesCategory(t *testing.T) {
	c := newTestClassifier()
	verdict := c.Classify(item("i wish there was a budgeting tool", "tracking my budget and savings is hard", "unknown-group"))
	assert.Contains(t, verdict.Reasoning, string(verdict.Category))
}

func TestLoadRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `{
		"strong_problem_phrases": ["i wish there was"],
		"very_strong_phrases": ["i wish there was"],
		"disqualifying_phrases": ["dating advice"],
		"generic_problem_words": ["problem"],
		"fallback_min_words": 20,
		"categories": [{"name": "business", "keywords": ["invoice"]}],
		"origins": [{"category": "business", "groups": ["entrepreneur"]}],
		"master_keywords": ["invoice"],
		"explanations": {"business": "business text", "general": "nothing matched"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 20, rules.FallbackMinWords)
	require.Len(t, rules.Categories, 1)
	assert.Equal(t, models.CategoryBusiness, rules.Categories[0].Name)

	c := New(rules)
	verdict := c.Classify(item("i wish there was invoice software", "", "Entrepreneur"))
	assert.True(t, verdict.IsRealProblem)
	assert.Equal(t, models.CategoryBusiness, verdict.Category)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadRulesRejectsUnknownCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `{"categories": [{"name": "sports", "keywords": ["goal"]}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sports")
}

func TestDefaultRulesCategoryOrder(t *testing.T) {
	var got []models.Category
	for _, cat := range DefaultRules().Categories {
		got = append(got, cat.Name)
	}
	assert.Equal(t, models.ScoredCategories(), got)
}
