package metadata

import "regexp"

// Fields maps a metadata key to the value parsed out of text.
type Fields map[string]string

// Parser applies an ordered rule table to document text.
type Parser struct {
	rules []Rule
}

// NewParser returns a parser over rules, or the default table when nil.
func NewParser(rules []Rule) *Parser {
	if rules == nil {
		rules = Rules
	}
	return &Parser{rules: rules}
}

var defaultParser = NewParser(nil)

// Parse runs the default rule table over text.
func Parse(text string) Fields {
	return defaultParser.Parse(text)
}

// Parse extracts the first match of every rule. A rule without a match, or
// whose cleaned value is blank, leaves its key out.
func (p *Parser) Parse(text string) Fields {
	out := Fields{}
	if text == "" {
		return out
	}
	normalized := collapseWhitespace(text)
	for _, r := range p.rules {
		src := normalized
		if r.Raw {
			src = text
		}
		if v, ok := r.first(src); ok {
			out[r.Field] = v
		}
	}
	return out
}

func (r Rule) first(src string) (string, bool) {
	var excluded [][]int
	if r.Exclude != nil {
		for _, m := range r.Exclude.FindAllStringSubmatchIndex(src, -1) {
			if len(m) >= 4 && m[2] >= 0 {
				excluded = append(excluded, m[2:4])
			}
		}
	}
	for _, re := range r.Patterns {
		if v, ok := r.firstOf(re, src, excluded); ok {
			return v, true
		}
	}
	return "", false
}

func (r Rule) firstOf(re *regexp.Regexp, src string, excluded [][]int) (string, bool) {
	n := 1
	if len(excluded) > 0 {
		n = -1
	}
	for _, m := range re.FindAllStringSubmatchIndex(src, n) {
		g := 2 * r.Group
		if g+1 >= len(m) || m[g] < 0 {
			continue
		}
		if overlapsAny(m[g], m[g+1], excluded) {
			continue
		}
		v := r.clean(src[m[g]:m[g+1]])
		if v == "" {
			// the first match decides; a blank value means no value
			return "", false
		}
		return v, true
	}
	return "", false
}

func overlapsAny(start, end int, spans [][]int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}
