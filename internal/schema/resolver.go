// Package schema resolves a target schema and candidate tables for a request.
package schema

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"sql-agent-workers/internal/archive"
	"sql-agent-workers/internal/catalog"
	"sql-agent-workers/internal/models"
)

const (
	scoreExact       = 1.0
	scoreInflection  = 0.9
	partialWeight    = 0.8
	minTableScore    = 0.5
	maxInferredTable = 3
)

var (
	schemaPatterns = []*regexp.Regexp{
		regexp.MustCompile(`in schema ['"]?([a-zA-Z0-9_]+)['"]?`),
		regexp.MustCompile(`from schema ['"]?([a-zA-Z0-9_]+)['"]?`),
		regexp.MustCompile(`database ['"]?([a-zA-Z0-9_]+)['"]?`),
	}
	tablePatterns = []*regexp.Regexp{
		regexp.MustCompile(`from ['"]?([a-zA-Z0-9_]+)['"]?`),
		regexp.MustCompile(`tables? ['"]?([a-zA-Z0-9_]+)['"]?`),
		regexp.MustCompile(`in ['"]?([a-zA-Z0-9_]+)['"]? table`),
	}
	tokenPattern = regexp.MustCompile(`\b[a-zA-Z0-9_]{3,}\b`)
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Resolver picks a schema and ranked tables from the cached catalog.
type Resolver struct {
	cache   *catalog.Cache
	archive archive.Appender
	logger  Logger
}

func NewResolver(cache *catalog.Cache, store archive.Appender, log Logger) *Resolver {
	return &Resolver{cache: cache, archive: store, logger: log}
}

// Resolve never fails: an empty catalog yields an empty selection.
func (r *Resolver) Resolve(ctx context.Context, request string, hints models.SchemaHints) models.SchemaSelection {
	lowered := strings.ToLower(request)
	schemas := r.cache.Schemas()

	selected := r.resolveSchema(lowered, hints.SuggestedSchema, schemas)

	var tables []string
	switch {
	case len(hints.SuggestedTables) > 0:
		tables = dedupe(hints.SuggestedTables)
	default:
		tables = r.extractTables(lowered)
		if len(tables) == 0 && selected != "" {
			tables = RankTables(lowered, r.cache.Tables(selected))
		}
	}
	if tables == nil {
		tables = []string{}
	}

	selection := models.SchemaSelection{
		AvailableSchemas: schemas,
		SelectedSchema:   selected,
		SelectedTables:   tables,
		TableColumns:     make(map[string][]string, len(tables)),
	}
	for _, t := range tables {
		if cols, ok := r.cache.Columns(selected, t); ok {
			selection.TableColumns[t] = cols
		}
	}

	r.logger.Debug("schema resolved", map[string]interface{}{
		"schema": selected,
		"tables": tables,
	})

	if r.archive != nil {
		if err := r.archive.Append(ctx, archive.CategorySchemaSelections, selection, nil); err != nil {
			r.logger.Warn("failed to archive schema selection", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return selection
}

// Catalog returns the full schema to table to columns listing.
func (r *Resolver) Catalog() map[string]map[string][]string {
	return r.cache.Dump()
}

func (r *Resolver) resolveSchema(lowered, hint string, schemas []string) string {
	if hint != "" && r.cache.HasSchema(hint) {
		return hint
	}
	for _, p := range schemaPatterns {
		if m := p.FindStringSubmatch(lowered); m != nil && r.cache.HasSchema(m[1]) {
			return m[1]
		}
	}
	if len(schemas) > 0 {
		return schemas[0]
	}
	return ""
}

// extractTables collects explicit table references that exist in some schema.
func (r *Resolver) extractTables(lowered string) []string {
	var out []string
	for _, p := range tablePatterns {
		for _, m := range p.FindAllStringSubmatch(lowered, -1) {
			if r.cache.HasTable(m[1]) {
				out = append(out, m[1])
			}
		}
	}
	return dedupe(out)
}

type scored struct {
	table string
	score float64
}

// RankTables scores tables against the word tokens of lowered and returns at
// most three names scoring at least 0.5, best first. Ties keep the order of
// tables.
func RankTables(lowered string, tables []string) []string {
	tokens := Tokenize(lowered)
	if len(tokens) == 0 || len(tables) == 0 {
		return nil
	}

	candidates := make([]scored, 0, len(tables))
	for _, t := range tables {
		if s := Score(t, tokens); s > 0 {
			candidates = append(candidates, scored{table: t, score: s})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var out []string
	for _, c := range candidates {
		if c.score < minTableScore {
			break
		}
		out = append(out, c.table)
		if len(out) == maxInferredTable {
			break
		}
	}
	return out
}

// Score rates how well table matches a token set: 1.0 exact, 0.9 for a
// singular or plural form, otherwise at most 0.8 for substring overlap.
func Score(table string, tokens map[string]struct{}) float64 {
	name := strings.ToLower(table)
	if _, ok := tokens[name]; ok {
		return scoreExact
	}

	singular, plural := name, name+"s"
	if strings.HasSuffix(name, "s") {
		singular, plural = strings.TrimSuffix(name, "s"), name
	}
	if _, ok := tokens[singular]; ok {
		return scoreInflection
	}
	if _, ok := tokens[plural]; ok {
		return scoreInflection
	}

	best := 0.0
	for tok := range tokens {
		if !strings.Contains(tok, name) && !strings.Contains(name, tok) {
			continue
		}
		shorter, longer := len(tok), len(name)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		if s := float64(shorter) / float64(longer) * partialWeight; s > best {
			best = s
		}
	}
	return best
}

// Tokenize returns the distinct word tokens of at least three characters.
func Tokenize(text string) map[string]struct{} {
	words := tokenPattern.FindAllString(text, -1)
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
