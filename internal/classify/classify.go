// Package classify decides whether a piece of listing text looks like a bid
// notice at all.
package classify

import "strings"

// DefaultKeywords is the procurement vocabulary a row title must touch to be
// kept. A single hit is enough; the filter favours recall.
var DefaultKeywords = []string{
	"solicitation",
	"bid",
	"proposal",
	"rfp",
	"rfq",
	"rfi",
	"ifb",
	"tender",
	"contract",
	"procurement",
	"purchase",
	"vendor",
	"supplier",
	"requisition",
	"quote",
	"quotation",
	"award",
	"maintenance",
	"construction",
	"services",
	"service",
	"supply",
	"supplies",
	"equipment",
	"repair",
	"installation",
	"renovation",
	"project",
}

// Classifier matches text against a fixed keyword list, case-insensitively.
type Classifier struct {
	keywords []string
}

// New builds a Classifier. With no keywords it falls back to DefaultKeywords.
func New(keywords ...string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		lowered = append(lowered, k)
	}
	return &Classifier{keywords: lowered}
}

// IsBid reports whether text contains any keyword as a substring.
func (c *Classifier) IsBid(text string) bool {
	_, ok := c.Match(text)
	return ok
}

// Match returns the first keyword found in text, in list order.
func (c *Classifier) Match(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, k := range c.keywords {
		if strings.Contains(lowered, k) {
			return k, true
		}
	}
	return "", false
}
