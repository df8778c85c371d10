package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ReturnsSameInstance(t *testing.T) {
	first, err := Load()
	require.NoError(t, err)
	second, err := Load()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotEmpty(t, first.EntityNouns)
	assert.Len(t, first.TemporalRegexps(), len(first.TemporalPatterns))
}

func TestIntentPriorityOrder(t *testing.T) {
	tables := MustLoad()
	require.Len(t, tables.Intents, 3)
	assert.Equal(t, "reporting", tables.Intents[0].Name)
	assert.Equal(t, "analytics", tables.Intents[1].Name)
	assert.Equal(t, "lookup", tables.Intents[2].Name)
}

func TestSynonym(t *testing.T) {
	tables := MustLoad()

	s, ok := tables.Synonym("Client")
	assert.True(t, ok)
	assert.Equal(t, "customer", s)

	_, ok = tables.Synonym("customers")
	assert.False(t, ok)
}

func TestParse_InvalidPattern(t *testing.T) {
	_, err := Parse([]byte("temporal_patterns: ['(unclosed']"))
	assert.Error(t, err)
}

func TestIndexKeyword(t *testing.T) {
	assert.Equal(t, 0, IndexKeyword("sort by name", "sort"))
	assert.Equal(t, -1, IndexKeyword("resorted list", "sort"))
	assert.Equal(t, 9, IndexKeyword("show all orders", "orders"))
	assert.True(t, ContainsKeyword("how many customers", "how many"))
	assert.False(t, ContainsKeyword("overall", "over"))
	assert.Equal(t, -1, IndexKeyword("anything", ""))
}

func TestInflection(t *testing.T) {
	tests := []struct {
		plural, singular string
	}{
		{"customers", "customer"},
		{"categories", "category"},
		{"addresses", "address"},
		{"boxes", "box"},
		{"status", "status"},
		{"class", "class"},
	}
	for _, tt := range tests {
		t.Run(tt.plural, func(t *testing.T) {
			assert.Equal(t, tt.singular, Singularize(tt.plural))
		})
	}

	assert.Equal(t, "categories", Pluralize("category"))
	assert.Equal(t, "keys", Pluralize("key"))
	assert.Equal(t, "orders", Pluralize("order"))
	assert.True(t, SameNoun("Orders", "order"))
	assert.False(t, SameNoun("orders", "customers"))
}
