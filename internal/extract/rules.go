package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rule is one step of a fallback chain: it either produces a value or passes.
type rule[T any] func(row *goquery.Selection) (T, bool)

// firstMatch evaluates rules in order and returns the first value produced.
func firstMatch[T any](row *goquery.Selection, rules []rule[T]) (T, bool) {
	for _, r := range rules {
		if v, ok := r(row); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// minTitleLength is the shortest structural title accepted; shorter cells are
// usually row numbers or status badges.
const minTitleLength = 5

// fallbackTitleTokens bounds the title taken from raw row text.
const fallbackTitleTokens = 10

var titleSelectors = []string{
	"td:first-child",
	"h1, h2, h3, h4, h5",
	"a[href*='detail']",
	"a[href*='bid']",
	".title, .bid-title",
}

var linkSelectors = []string{
	"a[href*='detail']",
	"a[href*='bid']",
	"a[href*='view']",
	"a[href]",
}

func titleRules() []rule[string] {
	rules := make([]rule[string], 0, len(titleSelectors))
	for _, sel := range titleSelectors {
		rules = append(rules, func(row *goquery.Selection) (string, bool) {
			text := rowText(row.Find(sel).First())
			return text, len(text) > minTitleLength
		})
	}
	return rules
}

// fallbackTitle takes the leading tokens of the row text.
func fallbackTitle(text string) string {
	tokens := strings.Fields(text)
	if len(tokens) > fallbackTitleTokens {
		tokens = tokens[:fallbackTitleTokens]
	}
	return strings.Join(tokens, " ")
}

func linkRules(base *url.URL) []rule[string] {
	rules := make([]rule[string], 0, len(linkSelectors))
	for _, sel := range linkSelectors {
		rules = append(rules, func(row *goquery.Selection) (string, bool) {
			var link string
			row.Find(sel).EachWithBreak(func(_ int, a *goquery.Selection) bool {
				if resolved, ok := resolveHref(base, a.AttrOr("href", "")); ok {
					link = resolved
					return false
				}
				return true
			})
			return link, link != ""
		})
	}
	return rules
}

// resolveHref resolves href against base, ignoring in-page anchors and script
// links.
func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return "", false
	}
	return u.String(), true
}

// Patterns matched against the collapsed row text.
var (
	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d{1,2})?`),
		regexp.MustCompile(`(?i)\b(?:amount|value|budget|estimated?)\s*:?\s*\$?\s?\d[\d,]*(?:\.\d{1,2})?`),
		regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d{1,2})?\s?(?:USD|dollars)\b`),
	}

	quantityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:qty|quantity)\.?\s*[:#]?\s*(\d+(?:,\d{3})*)`),
		regexp.MustCompile(`(?i)\b(\d+(?:,\d{3})*)\s+(?:units?|each|ea|pcs|pieces|items|boxes|cases|lots?)\b`),
	}

	externalIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:requisition|req)\.?\s*(?:no\.?|number|#)?\s*[:#]?\s*([a-z0-9][\w-]*\d[\w-]*)`),
		regexp.MustCompile(`(?i)\bbid\s*(?:no\.?|number|#)\s*[:#]?\s*([a-z0-9][\w-]*\d[\w-]*)`),
		regexp.MustCompile(`(?i)\b(?:rfp|rfq|rfi|ifb|itb)[\s#:-]*(\d[\w-]*)`),
		regexp.MustCompile(`(?i)\bsolicitation\s*(?:no\.?|number|#)?\s*[:#]?\s*([a-z0-9][\w-]*\d[\w-]*)`),
		regexp.MustCompile(`#\s?([A-Za-z0-9][\w-]*)`),
	}

	amountStrip = regexp.MustCompile(`[^0-9,.$]`)
)

// textRule builds a rule over the row text. With group > 0 the capture group
// is returned, otherwise the whole match.
func textRule(re *regexp.Regexp, group int) rule[string] {
	return func(row *goquery.Selection) (string, bool) {
		m := re.FindStringSubmatch(rowText(row))
		if m == nil || group >= len(m) || m[group] == "" {
			return "", false
		}
		return m[group], true
	}
}

func textRules(patterns []*regexp.Regexp, group int) []rule[string] {
	rules := make([]rule[string], 0, len(patterns))
	for _, re := range patterns {
		rules = append(rules, textRule(re, group))
	}
	return rules
}

// normalizeAmount keeps digits, separators and the dollar sign. A trailing
// separator is sentence punctuation ("$4,250, due Friday") and is dropped.
func normalizeAmount(raw string) string {
	return strings.TrimRight(amountStrip.ReplaceAllString(raw, ""), ",.")
}

// documentPattern decides whether an anchor is an attachment from its
// lowercased href and link text.
type documentPattern func(href, text string) bool

var documentPatterns = []documentPattern{
	func(href, _ string) bool {
		switch strings.ToLower(path.Ext(stripQuery(href))) {
		case ".pdf", ".doc", ".docx", ".xls", ".xlsx":
			return true
		}
		return false
	},
	func(href, _ string) bool {
		return strings.Contains(href, "document") || strings.Contains(href, "attachment")
	},
	func(_, text string) bool {
		return strings.Contains(text, "download") || strings.Contains(text, "document")
	},
}

func stripQuery(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		return href[:i]
	}
	return href
}

// blockElements are the elements a browser renders apart from their
// neighbours. Their text is kept separate from adjacent text.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "caption": true, "dd": true, "div": true, "dl": true,
	"dt": true, "footer": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"li": true, "ol": true, "p": true, "section": true, "table": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true,
	"tr": true, "ul": true,
}

// rowText returns the collapsed text of s with block and cell boundaries
// rendered as spaces, so "<td>a</td><td>b</td>" reads "a b" rather than "ab".
func rowText(s *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch name := goquery.NodeName(c); {
			case name == "#text":
				sb.WriteString(c.Text())
			case name == "script" || name == "style":
			case blockElements[name]:
				sb.WriteByte(' ')
				walk(c)
				sb.WriteByte(' ')
			default:
				walk(c)
			}
		})
	}
	walk(s)
	return collapse(sb.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
