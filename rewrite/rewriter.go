package rewrite

import (
	"strings"

	"go.uber.org/zap"

	"github.com/gpsalud/consultaflow/entity"
)

// Rule maps a normalized phrase pattern to an expansion phrase. Patterns
// are matched as substrings of the normalized query; rules are applied in
// registration order.
type Rule struct {
	Pattern   string `yaml:"pattern" json:"pattern"`
	Expansion string `yaml:"expansion" json:"expansion"`
}

// Table is the read-only synonym table: ordered expansion rules plus
// per-entity contextual keywords.
type Table struct {
	rules           []Rule
	normPatterns    []string
	contextKeywords map[string][]string
}

// NewTable builds a table. Patterns are normalized once here; the entity
// keyword map is keyed by upper-cased entity ID.
func NewTable(rules []Rule, contextKeywords map[string][]string) *Table {
	t := &Table{
		rules:           rules,
		normPatterns:    make([]string, len(rules)),
		contextKeywords: make(map[string][]string, len(contextKeywords)),
	}
	for i, r := range rules {
		t.normPatterns[i] = entity.Normalize(r.Pattern)
	}
	for id, kws := range contextKeywords {
		t.contextKeywords[strings.ToUpper(id)] = kws
	}
	return t
}

// Rules returns the rules in registration order.
func (t *Table) Rules() []Rule { return t.rules }

// Rewriter expands queries against an immutable table. Safe for concurrent
// use.
type Rewriter struct {
	table  *Table
	logger *zap.Logger
}

// NewRewriter creates a rewriter over the given table.
func NewRewriter(table *Table, logger *zap.Logger) *Rewriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rewriter{
		table:  table,
		logger: logger.With(zap.String("component", "query_rewriter")),
	}
}

// Rewrite appends the expansion of every rule whose pattern occurs in the
// normalized query, in registration order, without de-duplicating across
// rules. When entityFilter is set and not already mentioned in the output,
// its contextual keywords are appended last. The original query is always a
// prefix of the result; identical inputs always produce identical output.
func (r *Rewriter) Rewrite(query string, entityFilter string) string {
	if query == "" {
		return ""
	}

	normalized := entity.Normalize(query)

	var expansions []string
	for i, pattern := range r.table.normPatterns {
		if pattern != "" && strings.Contains(normalized, pattern) {
			expansions = append(expansions, r.table.rules[i].Expansion)
		}
	}

	rewritten := query
	if len(expansions) > 0 {
		rewritten = query + " " + strings.Join(expansions, " ")
	}

	if entityFilter != "" {
		key := strings.ToUpper(entityFilter)
		if keywords, ok := r.table.contextKeywords[key]; ok {
			if !strings.Contains(strings.ToUpper(rewritten), key) {
				rewritten = rewritten + " " + strings.Join(keywords, " ")
			}
		}
	}

	if rewritten != query {
		r.logger.Debug("query rewritten",
			zap.Int("expansions", len(expansions)),
			zap.String("entity_filter", entityFilter))
	}

	return rewritten
}

// Variations generates up to three query variants for multi-query
// retrieval: the original plus common colloquial-to-document substitutions.
func (r *Rewriter) Variations(query string) []string {
	variations := []string{query}
	lower := strings.ToLower(query)

	replacements := [][2]string{
		{"cuanto", "valor precio"},
		{"cuesta", "coseguro"},
		{"pediatra", "médico familia"},
		{"necesito", "requisitos"},
	}

	for _, rep := range replacements {
		if strings.Contains(lower, rep[0]) {
			variations = append(variations, strings.ReplaceAll(lower, rep[0], rep[1]))
		}
		if len(variations) == 3 {
			break
		}
	}

	return variations
}
