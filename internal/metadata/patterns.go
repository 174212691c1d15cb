package metadata

import (
	"regexp"
	"strings"
)

// Rule describes how one field is pulled out of document text. Rules are
// data: the parser walks them in order and knows nothing field-specific.
type Rule struct {
	Field string
	// Patterns are tried in order; the first one that yields a value wins.
	Patterns []*regexp.Regexp
	// Group is the submatch carrying the value, 0 for the whole match.
	Group int
	// Raw matches the original text. Other rules see whitespace runs
	// collapsed to one space.
	Raw bool
	// Clean post-processes the captured value. nil means TrimSpace.
	Clean func(string) string
	// Exclude drops candidates overlapping group 1 of any Exclude match.
	Exclude *regexp.Regexp
}

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reNotNumeric = regexp.MustCompile(`[^\d.]`)

	reHSLabel    = regexp.MustCompile(`(?i)\bHS[:\s]*([0-9]{4,10})\b`)
	reHSBare     = regexp.MustCompile(`\b([0-9]{6})\b`)
	reCurrency   = regexp.MustCompile(`\b(AED|USD|EUR|GBP|JPY|CHF|SAR|INR)\b`)
	reValue      = regexp.MustCompile(`([£€$]?\s?[\d.,]{3,}\b)`)
	reContainer  = regexp.MustCompile(`\b([A-Z]{4}\d{7})\b`)
	reBolAwb     = regexp.MustCompile(`(?i)\b(AWB[:\s-]*\w+|\d{3}\s?\d{8}|\bAWB[\w-]{3,}\b)\b`)
	reConsignee  = regexp.MustCompile(`(?i)Consignee[:\s]*(.{1,80}?)\s{2,}`)
	reConsignee2 = regexp.MustCompile(`(?i)Consignee[:\s]*(\w[\w\s,\-.]{1,80})`)
	reShipper    = regexp.MustCompile(`(?i)Shipper[:\s]*(.{1,80}?)\s{2,}`)
	reShipper2   = regexp.MustCompile(`(?i)Shipper[:\s]*(\w[\w\s,\-.]{1,80})`)
)

// Currencies is the closed set recognised as a currency token.
var Currencies = []string{"AED", "USD", "EUR", "GBP", "JPY", "CHF", "SAR", "INR"}

// Rules is the default extraction table.
var Rules = []Rule{
	{Field: "hs_code", Patterns: []*regexp.Regexp{reHSLabel, reHSBare}, Group: 1},
	{Field: "currency", Patterns: []*regexp.Regexp{reCurrency}, Group: 1},
	{Field: "value", Patterns: []*regexp.Regexp{reValue}, Group: 1, Clean: numericOnly, Exclude: reHSLabel},
	{Field: "container_number", Patterns: []*regexp.Regexp{reContainer}, Group: 1},
	{Field: "bol_awb_number", Patterns: []*regexp.Regexp{reBolAwb}, Group: 0},
	{Field: "consignee", Patterns: []*regexp.Regexp{reConsignee, reConsignee2}, Group: 1, Raw: true},
	{Field: "shipper", Patterns: []*regexp.Regexp{reShipper, reShipper2}, Group: 1, Raw: true},
}

// numericOnly keeps digits and dots: "$1,250.00" -> "1250.00".
func numericOnly(s string) string {
	return reNotNumeric.ReplaceAllString(s, "")
}

func collapseWhitespace(s string) string {
	return reWhitespace.ReplaceAllString(s, " ")
}

func (r Rule) clean(s string) string {
	if r.Clean != nil {
		return strings.TrimSpace(r.Clean(s))
	}
	return strings.TrimSpace(s)
}
