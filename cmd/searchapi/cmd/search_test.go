package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchapi/internal/query"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		raw   string
		key   string
		op    query.Operator
		value any
	}{
		{"category=guide", "category", query.Equal, "guide"},
		{"year>=2020", "year", query.GreaterOrEqual, "2020"},
		{"year<=2024", "year", query.LessOrEqual, "2024"},
		{"year<2024", "year", query.Less, "2024"},
		{"year>1999", "year", query.Greater, "1999"},
		{"category<>draft", "category", query.NotEqual, "draft"},
		{"title = a=b", "title", query.Equal, "a=b"},
		{"author=NULL", "author", query.Equal, nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			key, op, value, err := parseCondition(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.op, op)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestParseCondition_Invalid(t *testing.T) {
	for _, raw := range []string{"title", "=value", ""} {
		_, _, _, err := parseCondition(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseSort(t *testing.T) {
	key, dir, err := parseSort("modified:desc")
	require.NoError(t, err)
	assert.Equal(t, "modified", key)
	assert.Equal(t, query.Desc, dir)

	key, dir, err = parseSort("path")
	require.NoError(t, err)
	assert.Equal(t, "path", key)
	assert.Equal(t, query.Asc, dir)

	_, _, err = parseSort("path:sideways")
	assert.Error(t, err)
}
