package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlq-resolver/pkg/registry"
)

func TestValidateJobVariables(t *testing.T) {
	tests := []struct {
		name      string
		taskType  string
		variables string
		valid     bool
		field     string
	}{
		{"valid query", "resolve-nl-query", `{"query":"show customers","maxRows":10}`, true, ""},
		{"missing query", "resolve-nl-query", `{"maxRows":10}`, false, "query"},
		{"empty query", "resolve-nl-query", `{"query":""}`, false, "query"},
		{"rows out of range", "resolve-nl-query", `{"query":"x","maxRows":0}`, false, "maxRows"},
		{"wrong type", "validate-sql", `{"sql":42}`, false, "sql"},
		{"confidence above one", "extract-query-context", `{"query":"x","minConfidence":2}`, false, "minConfidence"},
		{"not json", "validate-sql", `{`, false, "(root)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateJobVariables(tt.taskType, tt.variables)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid, result.GetErrorMessages())
			if tt.field != "" {
				assert.True(t, result.HasErrors(tt.field), result.GetErrorMessages())
			}
		})
	}
}

func TestValidateJobVariables_UnknownTaskType(t *testing.T) {
	_, err := ValidateJobVariables("send-email", `{}`)
	assert.Error(t, err)
}

func TestRegistryActivityNaming(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)
	for _, a := range reg.Activities {
		assert.NoError(t, ValidateActivityNaming(a.ID), a.ID)
	}
	assert.Error(t, ValidateActivityNaming("Resolve-Query"))
}
