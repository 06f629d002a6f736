// Package reduce prepares fetched HTML for a provider call: it strips
// non-content markup, prefers structured recipe data when the page carries
// it, and enforces a per-mode character budget.
package reduce

import (
	"strings"

	"recipeengine/internal/core/fault"
	"recipeengine/internal/logger"
	"recipeengine/internal/utils/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Mode selects the character budget for the fallback text path.
type Mode string

const (
	// ModeGeneral is the html-fallback budget for capable providers.
	ModeGeneral Mode = "general"
	// ModeCompact is for token-constrained providers.
	ModeCompact Mode = "compact"
)

const (
	// StructuredPrefix marks output taken from a JSON-LD recipe block.
	StructuredPrefix = "JSON-LD Recipe Data: "

	generalBudget = 100_000
	compactBudget = 50_000
	sectionBudget = 25_000

	// Reduced content below this size is unusable for extraction.
	minUsableChars = 100
)

// recipeSectionClasses match elements that recipe sites commonly use to wrap
// the actual recipe.
var recipeSectionClasses = []string{
	"recipe-card", "recipe-content", "recipe-instructions",
	"ingredients", "directions", "recipe-summary",
}

type Service struct {
	log *logger.Logger
}

func New() *Service {
	return &Service{log: logger.New("Reduce")}
}

// Reduce cleans rawHTML and returns provider-ready text. The paths, in
// preference order: JSON-LD recipe payload (no truncation), recipe-labeled
// sections (25k cap), fully cleaned page text (mode budget). Output smaller
// than the usable minimum is CONTENT_TOO_SPARSE.
func (s *Service) Reduce(rawHTML string, mode Mode) (string, error) {
	doc, err := htmlutil.Parse(rawHTML)
	if err != nil {
		return "", fault.Wrap(fault.CodeContentTooSparse, err, "unparseable html")
	}

	// JSON-LD blocks are read before boilerplate stripping removes the
	// script tags that carry them.
	if ld := findRecipeJSONLD(doc); ld != "" {
		s.log.LogDebugf("structured data path: %d chars", len(ld))
		return StructuredPrefix + ld, nil
	}

	root := htmlutil.StripBoilerplate(doc)

	if section := collectRecipeSections(root); len(section) > 1000 {
		s.log.LogDebugf("recipe section path: %d chars", len(section))
		return htmlutil.Truncate(section, sectionBudget), nil
	}

	text := htmlutil.ToMarkdown(root)
	if text == "" {
		text = htmlutil.CollapseWhitespace(root.Text())
	}
	text = htmlutil.Truncate(text, budgetFor(mode))

	if len(text) < minUsableChars {
		return "", fault.New(fault.CodeContentTooSparse, "reduced content is %d chars", len(text))
	}
	s.log.LogDebugf("general path (%s): %d chars", mode, len(text))
	return text, nil
}

func budgetFor(mode Mode) int {
	if mode == ModeCompact {
		return compactBudget
	}
	return generalBudget
}

func findRecipeJSONLD(doc *goquery.Document) string {
	var payload string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		body := strings.TrimSpace(sel.Text())
		if body == "" {
			return true
		}
		if strings.Contains(strings.ToLower(body), "recipe") {
			payload = body
			return false
		}
		return true
	})
	return payload
}

func collectRecipeSections(root *goquery.Selection) string {
	var parts []string
	root.Find("[class]").Each(func(_ int, sel *goquery.Selection) {
		classVal, _ := sel.Attr("class")
		lower := strings.ToLower(classVal)
		for _, kw := range recipeSectionClasses {
			if strings.Contains(lower, kw) {
				if t := htmlutil.CollapseWhitespace(sel.Text()); t != "" {
					parts = append(parts, t)
				}
				break
			}
		}
	})
	return strings.Join(parts, "\n\n")
}
