// Package htmlutil holds the DOM cleanup helpers shared by the content
// reducer. It strips page chrome and converts what remains to markdown so
// providers see prose instead of markup.
package htmlutil

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// boilerplateSelectors are removed wholesale before any content extraction.
const boilerplateSelectors = "script, style, noscript, nav, header, footer, aside, form, iframe, svg, button, input"

// chromeKeywords flag elements whose class or id marks them as page chrome
// rather than recipe content.
var chromeKeywords = []string{
	"cookie", "consent", "banner", "navbar", "nav-", "menu-",
	"pagination", "share", "signup", "signin", "login",
	"ad-", "advert", "promo", "modal", "popup", "dialog",
	"breadcrumb", "sidebar", "comment",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Parse builds a goquery document from raw HTML.
func Parse(rawHTML string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
}

// StripBoilerplate removes non-content elements and HTML comments from the
// document in place and returns the content root (a main/content landmark
// when one exists, otherwise body).
func StripBoilerplate(doc *goquery.Document) *goquery.Selection {
	var root *goquery.Selection
	for _, sel := range []string{"main", "[role=\"main\"]", "#content", "#main"} {
		if doc.Find(sel).Length() > 0 {
			root = doc.Find(sel).First()
			break
		}
	}
	if root == nil {
		root = doc.Find("body")
	}

	root.Find(boilerplateSelectors).Each(func(_ int, s *goquery.Selection) { s.Remove() })
	root.Find("[role=\"navigation\"], [role=\"banner\"], [role=\"contentinfo\"], [aria-modal]").Each(func(_ int, s *goquery.Selection) { s.Remove() })

	root.Find("[class], [id]").Each(func(_ int, sel *goquery.Selection) {
		classVal, _ := sel.Attr("class")
		idVal, _ := sel.Attr("id")
		lower := strings.ToLower(classVal + " " + idVal)
		for _, kw := range chromeKeywords {
			if strings.Contains(lower, kw) {
				sel.Remove()
				break
			}
		}
	})

	removeComments(root)
	return root
}

func removeComments(sel *goquery.Selection) {
	for _, node := range sel.Nodes {
		stripCommentNodes(node)
	}
}

func stripCommentNodes(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			stripCommentNodes(c)
		}
		c = next
	}
}

// ToMarkdown converts a cleaned selection to trimmed markdown text.
func ToMarkdown(sel *goquery.Selection) string {
	body, err := sel.Html()
	if err != nil {
		return ""
	}

	conv := md.NewConverter("", true, nil)
	out, err := conv.ConvertString(body)
	if err != nil {
		return ""
	}

	out = dropImageOnlyLines(out)
	out = regexp.MustCompile(`\n{3,}`).ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

var imageLineRe = regexp.MustCompile(`!\[[^\]]*\]\([^\)]+\)`)

func dropImageOnlyLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		line := strings.TrimSpace(l)
		if line != "" && imageLineRe.MatchString(line) &&
			strings.TrimSpace(imageLineRe.ReplaceAllString(line, "")) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// CollapseWhitespace folds whitespace runs into single spaces and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Truncate applies a hard character cutoff. The cutoff may land mid-sentence;
// callers accept the loss.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit]
}
