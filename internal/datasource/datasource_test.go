package datasource

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchapi/internal/config"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/mapping"
)

type fixedSource struct{ id string }

func (f fixedSource) ID() string                     { return f.id }
func (f fixedSource) Type() string                   { return "fixed" }
func (f fixedSource) Properties() []mapping.Property { return nil }
func (f fixedSource) ItemIDs(context.Context) ([]string, error) {
	return []string{"1"}, nil
}
func (f fixedSource) LoadMultiple(context.Context, []string) (map[string]map[string]any, error) {
	return nil, nil
}

func TestOptions(t *testing.T) {
	opts := Options{
		"s":     "text",
		"n":     42,
		"f":     3.0,
		"b":     true,
		"list":  []any{"a", 1},
		"csv":   "a, b,,c",
		"other": 7,
	}

	assert.Equal(t, "text", opts.String("s", "x"))
	assert.Equal(t, "7", opts.String("other", "x"))
	assert.Equal(t, "x", opts.String("missing", "x"))
	assert.Equal(t, 42, opts.Int("n", 0))
	assert.Equal(t, 3, opts.Int("f", 0))
	assert.Equal(t, 9, opts.Int("s", 9))
	assert.True(t, opts.Bool("b", false))
	assert.True(t, opts.Bool("missing", true))
	assert.Equal(t, []string{"a", "1"}, opts.Strings("list"))
	assert.Equal(t, []string{"a", "b", "c"}, opts.Strings("csv"))
	assert.Nil(t, opts.Strings("missing"))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fixed", func(cfg Config) (Datasource, error) {
		return fixedSource{id: cfg.ID}, nil
	})
	reg.Register("broken", func(Config) (Datasource, error) {
		return nil, fmt.Errorf("bad options")
	})

	assert.Equal(t, []string{"broken", "fixed"}, reg.Types())

	ds, err := reg.Create("fixed", Config{ID: "one"})
	require.NoError(t, err)
	assert.Equal(t, "one", ds.ID())

	_, err = reg.Create("broken", Config{ID: "two"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodePluginInvalid, errors.GetCode(err))

	_, err = reg.Create("nope", Config{ID: "three"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodePluginUnknown, errors.GetCode(err))
	assert.True(t, errors.IsPluginResolution(err))
}

func TestConfigFrom_ConvertsProperties(t *testing.T) {
	// Given: a datasource declaring a nested property
	dc := config.DatasourceConfig{
		ID:      "people",
		Type:    "records",
		Options: map[string]any{"path": "people.json"},
		Properties: []config.PropertyConfig{
			{Key: "name", Type: "string"},
			{Key: "address", Type: "object", Main: "city", Children: []config.PropertyConfig{
				{Key: "city", Label: "City", Type: "string"},
				{Key: "zip", Type: "string"},
			}},
		},
	}

	// When: building the creation config
	cfg := ConfigFrom(dc, "/base", nil)

	// Then: options and the property tree are carried over
	assert.Equal(t, "people", cfg.ID)
	assert.Equal(t, "/base", cfg.BaseDir)
	assert.Equal(t, "people.json", cfg.Options.String("path", ""))
	require.Len(t, cfg.Properties, 2)
	addr := cfg.Properties[1]
	assert.True(t, addr.IsComplex())
	assert.Equal(t, "city", addr.Main)
	city, ok := addr.Child("city")
	require.True(t, ok)
	assert.Equal(t, "City", city.Label)
}

func TestProperties_Empty(t *testing.T) {
	assert.Nil(t, Properties(nil))
}
