package extract

import "github.com/joseph-ayodele/tradedocs/internal/metadata"

// RulesParser adapts the pattern-table parser to FieldParser.
type RulesParser struct {
	parser *metadata.Parser
}

// NewRulesParser wraps p, or the default rule table when p is nil.
func NewRulesParser(p *metadata.Parser) *RulesParser {
	if p == nil {
		p = metadata.NewParser(nil)
	}
	return &RulesParser{parser: p}
}

func (r *RulesParser) ParseFields(text string) map[string]string {
	return r.parser.Parse(text)
}
