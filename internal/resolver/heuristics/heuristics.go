// Package heuristics holds the static keyword tables used by the resolver.
// The tables are embedded at build time, parsed once, and never mutated.
package heuristics

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed heuristics.yaml
var defaultHeuristicsYAML []byte

// KeywordGroup maps a canonical name to the phrases that signal it.
type KeywordGroup struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Tables is the parsed heuristics file. Safe for concurrent use after Load.
type Tables struct {
	EntityNouns        []string          `yaml:"entity_nouns"`
	AttributeKeywords  []string          `yaml:"attribute_keywords"`
	EntitySynonyms     map[string]string `yaml:"entity_synonyms"`
	Operations         []KeywordGroup    `yaml:"operations"`
	Aggregations       []KeywordGroup    `yaml:"aggregations"`
	Intents            []KeywordGroup    `yaml:"intents"`
	TemporalPatterns   []string          `yaml:"temporal_patterns"`
	NumericColumnHints []string          `yaml:"numeric_column_hints"`
	DateColumnHints    []string          `yaml:"date_column_hints"`
	TextColumnHints    []string          `yaml:"text_column_hints"`
	DescendingKeywords []string          `yaml:"descending_keywords"`
	StopWords          []string          `yaml:"stop_words"`
	ListVerbs          []string          `yaml:"list_verbs"`
	ListBoundaries     []string          `yaml:"list_boundaries"`

	temporal   []*regexp.Regexp
	stopWords  map[string]struct{}
	boundaries map[string]struct{}
}

var (
	cachedTables *Tables
	tablesOnce   sync.Once
	tablesErr    error
)

// Load parses the embedded tables on first call and returns the cached copy afterwards.
func Load() (*Tables, error) {
	tablesOnce.Do(func() {
		cachedTables, tablesErr = Parse(defaultHeuristicsYAML)
	})
	return cachedTables, tablesErr
}

// MustLoad is Load for callers that cannot continue without the tables.
func MustLoad() *Tables {
	t, err := Load()
	if err != nil {
		panic(err)
	}
	return t
}

// Parse builds a Tables value from YAML. Exposed for tests and custom vocabularies.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing heuristics: %w", err)
	}

	t.temporal = make([]*regexp.Regexp, 0, len(t.TemporalPatterns))
	for _, p := range t.TemporalPatterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("compiling temporal pattern %q: %w", p, err)
		}
		t.temporal = append(t.temporal, re)
	}

	t.stopWords = make(map[string]struct{}, len(t.StopWords))
	for _, w := range t.StopWords {
		t.stopWords[w] = struct{}{}
	}
	t.boundaries = make(map[string]struct{}, len(t.ListBoundaries))
	for _, w := range t.ListBoundaries {
		t.boundaries[w] = struct{}{}
	}
	return &t, nil
}

func (t *Tables) TemporalRegexps() []*regexp.Regexp {
	return t.temporal
}

func (t *Tables) IsStopWord(w string) bool {
	_, ok := t.stopWords[strings.ToLower(w)]
	return ok
}

func (t *Tables) IsListBoundary(w string) bool {
	_, ok := t.boundaries[strings.ToLower(w)]
	return ok
}

// Synonym returns the canonical entity for a word, if one is listed.
func (t *Tables) Synonym(word string) (string, bool) {
	s, ok := t.EntitySynonyms[strings.ToLower(word)]
	return s, ok
}

// ContainsKeyword reports whether the lower-cased text contains the keyword
// on word boundaries.
func ContainsKeyword(text, keyword string) bool {
	return IndexKeyword(text, keyword) >= 0
}

// IndexKeyword returns the byte offset of the first whole-word occurrence of
// keyword in text, or -1.
func IndexKeyword(text, keyword string) int {
	if keyword == "" {
		return -1
	}
	offset := 0
	for {
		i := strings.Index(text[offset:], keyword)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(keyword)
		if isBoundary(text, start-1) && isBoundary(text, end) {
			return start
		}
		offset = start + 1
		if offset >= len(text) {
			return -1
		}
	}
}

func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_')
}
