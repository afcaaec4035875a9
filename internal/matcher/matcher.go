// Package matcher classifies rendered pages against site rules. Classify is
// pure: the same (site, outcome) pair always yields the same status.
package matcher

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"

	"github.com/osintlabs/profiler/internal/profiler"
)

// Classify maps a site rule and a render outcome to a status plus an optional
// error message. Render failures and rule misconfiguration both classify as
// an error outcome rather than returning a Go error, so a broken site can
// never abort a batch.
func Classify(site profiler.Site, outcome profiler.RenderOutcome) (profiler.Status, string) {
	if outcome.Failed() {
		return profiler.StatusError, outcome.Err
	}
	if !site.HasRule() {
		return profiler.StatusError, "site has neither a status code nor a match rule"
	}

	statusOK := site.StatusCode == nil || outcome.StatusCode == *site.StatusCode

	matchOK, errMsg := evaluateMatch(site, outcome.HTML)
	if errMsg != "" {
		return profiler.StatusError, errMsg
	}

	if statusOK && matchOK {
		return profiler.StatusFound, ""
	}
	return profiler.StatusNotFound, ""
}

func evaluateMatch(site profiler.Site, html string) (bool, string) {
	if site.MatchKind == "" {
		return true, ""
	}

	switch site.MatchKind {
	case profiler.MatchText:
		text, err := visibleText(html)
		if err != nil {
			return false, fmt.Sprintf("parse html: %v", err)
		}
		return strings.Contains(text, site.MatchExpr), ""
	case profiler.MatchCSS:
		return matchCSS(site.MatchExpr, html)
	case profiler.MatchXPath:
		return matchXPath(site.MatchExpr, html)
	default:
		return false, fmt.Sprintf("unknown match kind %q", site.MatchKind)
	}
}

// visibleText concatenates the text of all non-script/non-style nodes and
// collapses runs of whitespace to single spaces.
func visibleText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

func matchCSS(expr, html string) (bool, string) {
	sel, err := cascadia.Compile(expr)
	if err != nil {
		return false, fmt.Sprintf("invalid css selector %q: %v", expr, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Sprintf("parse html: %v", err)
	}
	return doc.FindMatcher(sel).Length() > 0, ""
}

func matchXPath(expr, html string) (bool, string) {
	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		return false, fmt.Sprintf("parse html: %v", err)
	}
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return false, fmt.Sprintf("invalid xpath %q: %v", expr, err)
	}
	return len(nodes) > 0, ""
}
