package processor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/field"
	"github.com/Aman-CERP/searchapi/internal/item"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// splitter tokenizes on spaces.
type splitter struct{ Base }

func (s *splitter) Process(v string) field.Value {
	var tokens []field.Token
	for _, w := range strings.Fields(v) {
		tokens = append(tokens, field.Token{Value: w, Score: 1})
	}
	return field.TokenList(tokens)
}

// upper uppercases strings.
type upper struct{ Base }

func (u *upper) Process(v string) field.Value { return field.Scalar(strings.ToUpper(v)) }

// dropper returns "" for a given word.
type dropper struct {
	Base
	word string
}

func (d *dropper) Process(v string) field.Value {
	if v == d.word {
		return field.Scalar("")
	}
	return field.Scalar(v)
}

// recorder logs hook calls into a shared journal.
type recorder struct {
	id      string
	journal *[]string
}

func (r *recorder) ID() string { return r.id }
func (r *recorder) PreprocessSearchQuery(q *query.Query) {
	*r.journal = append(*r.journal, "pre:"+r.id)
}
func (r *recorder) PostprocessSearchResults(rs *query.ResultSet, q *query.Query) {
	*r.journal = append(*r.journal, "post:"+r.id)
}

// pipelineIndex adapts a pipeline to query.Index for tests.
type pipelineIndex struct {
	*field.StaticSchema
	pipeline *Pipeline
}

func (p *pipelineIndex) PreprocessQuery(q *query.Query) { p.pipeline.PreprocessQuery(q) }
func (p *pipelineIndex) Search(_ context.Context, q *query.Query) (*query.ResultSet, error) {
	return query.NewResultSet(q), nil
}
func (p *pipelineIndex) PostprocessResults(rs *query.ResultSet, q *query.Query) {
	p.pipeline.PostprocessResults(rs, q)
}

func testSchema() *field.StaticSchema {
	return field.NewSchema("idx",
		field.Definition{Key: "title", Type: field.Text},
		field.Definition{Key: "tags", Type: field.ListOf(field.String)},
		field.Definition{Key: "category", Type: field.String},
		field.Definition{Key: "count", Type: field.Integer},
	)
}

func TestProcessValue_TokenPromotion(t *testing.T) {
	// Given: a list of two strings and a processor tokenizing only "a b"
	fn := func(s string) field.Value {
		if s == "a b" {
			return field.TokenList([]field.Token{{Value: "a", Score: 1}, {Value: "b", Score: 1}})
		}
		return field.Scalar(s)
	}

	// When: processing
	typ, v := ProcessValue(field.ListOf(field.String), field.Strings("a b", "c"), fn)

	// Then: the list is list<tokens> and every element is a token list
	assert.Equal(t, field.ListOf(field.Tokens), typ)
	require.Len(t, v.List(), 2)
	for _, e := range v.List() {
		assert.Equal(t, field.KindTokens, e.Kind())
	}
	assert.Equal(t, []field.Token{{Value: "c", Score: 1}}, v.List()[1].Tokens())
}

func TestProcessValue_AllElementsTokenized(t *testing.T) {
	s := &splitter{NewBase("split", nil, nil)}

	typ, v := ProcessValue(field.ListOf(field.String), field.Strings("a", "b"), s.Process)

	assert.Equal(t, field.ListOf(field.Tokens), typ)
	assert.Equal(t, field.List([]field.Value{
		field.TokenList([]field.Token{{Value: "a", Score: 1}}),
		field.TokenList([]field.Token{{Value: "b", Score: 1}}),
	}), v)
}

func TestProcessValue_TokenScoresMultiply(t *testing.T) {
	in := field.TokenList([]field.Token{{Value: "x y", Score: 2}, {Value: "gone", Score: 5}})
	fn := func(s string) field.Value {
		if s == "gone" {
			return field.Scalar("")
		}
		return field.TokenList([]field.Token{{Value: "x", Score: 0.5}, {Value: "y", Score: 1}})
	}

	typ, v := ProcessValue(field.Tokens, in, fn)

	assert.Equal(t, field.Tokens, typ)
	assert.Equal(t, []field.Token{{Value: "x", Score: 1}, {Value: "y", Score: 2}}, v.Tokens())
}

func TestProcessValue_NonStringScalarUntouched(t *testing.T) {
	typ, v := ProcessValue(field.Integer, field.Scalar(int64(3)), func(string) field.Value {
		t.Fatal("must not be called")
		return field.Null()
	})

	assert.Equal(t, field.Integer, typ)
	assert.Equal(t, field.Scalar(int64(3)), v)
}

func TestProcessItems_RespectsSelection(t *testing.T) {
	// Given: an uppercaser restricted to title
	u := &upper{NewBase("upper", []string{"title"}, nil)}
	it := field.NewItem(item.New("d", "1"), nil)
	schema := testSchema()
	title, _ := schema.Field("title")
	cat, _ := schema.Field("category")
	it.Set(title, field.Scalar("hello"))
	it.Set(cat, field.Scalar("news"))

	// When: running the default traversal
	ProcessItems(u, []*field.Item{it})

	// Then: only title changed
	assert.Equal(t, field.Scalar("HELLO"), it.Fields["title"].Value)
	assert.Equal(t, field.Scalar("news"), it.Fields["category"].Value)
}

func TestSelection_TypeDefaults(t *testing.T) {
	sel := &Selection{}
	assert.True(t, sel.Selects(field.Definition{Type: field.ListOf(field.String)}))
	assert.False(t, sel.Selects(field.Definition{Type: field.Integer}))

	fulltext := &Selection{Types: FulltextTypes}
	assert.False(t, fulltext.Selects(field.Definition{Type: field.String}))
	assert.True(t, fulltext.SelectsFulltext(testSchema()))
}

func TestProcessQuery_Keys(t *testing.T) {
	// Given: a query whose second term splits and third is dropped
	schema := testSchema()
	idx := &pipelineIndex{StaticSchema: schema, pipeline: NewPipeline(nil)}
	q := query.New(idx, query.Options{}).SetKeys(`foo "bar baz" the 0`)
	nested := query.NewKeys(query.Or, "the")
	q.Keys().Children = append(q.Keys().Children, nested)

	s := &splitter{NewBase("split", nil, FulltextTypes)}
	ProcessQuery(s, q)
	d := &dropper{Base: NewBase("drop", nil, FulltextTypes), word: "the"}
	ProcessQuery(d, q)

	// Then: the phrase became an AND group, "the" and the emptied group are gone, "0" stays
	keys := q.Keys()
	require.Len(t, keys.Children, 3)
	assert.Equal(t, query.Term("foo"), keys.Children[0])
	assert.Equal(t, query.NewKeys(query.And, "bar", "baz"), keys.Children[1])
	assert.Equal(t, query.Term("0"), keys.Children[2])
}

func TestProcessQuery_KeysSkippedWithoutFulltextSelection(t *testing.T) {
	schema := testSchema()
	idx := &pipelineIndex{StaticSchema: schema, pipeline: NewPipeline(nil)}
	q := query.New(idx, query.Options{}).SetKeys("foo")

	ProcessQuery(&upper{NewBase("upper", []string{"category"}, nil)}, q)

	assert.Equal(t, []string{"foo"}, q.Keys().Terms())
}

func TestProcessQuery_Conditions(t *testing.T) {
	// Given: conditions that become empty, were already empty, or are non-string
	schema := testSchema()
	idx := &pipelineIndex{StaticSchema: schema, pipeline: NewPipeline(nil)}
	q := query.New(idx, query.Options{})
	q.Condition("category", "the", query.Equal).
		Condition("category", "", query.Equal).
		Condition("count", 3, query.Equal).
		AddFilter(query.NewFilter(query.Or).Condition("title", "the", query.Equal).Condition("title", "keep", query.Equal))

	// When: a processor drops "the"
	ProcessQuery(&dropper{Base: NewBase("drop", nil, nil), word: "the"}, q)

	// Then: only the genuinely emptied conditions are removed
	conds := q.Filter().Conditions()
	require.Len(t, conds, 3)
	assert.Equal(t, "", conds[0].Value)
	assert.Equal(t, 3, conds[1].Value)
	assert.Equal(t, "keep", conds[2].Value)
}

func TestProcessQuery_ConditionTokensJoined(t *testing.T) {
	schema := testSchema()
	idx := &pipelineIndex{StaticSchema: schema, pipeline: NewPipeline(nil)}
	q := query.New(idx, query.Options{}).Condition("title", "a  b", query.Equal)

	ProcessQuery(&splitter{NewBase("split", nil, nil)}, q)

	assert.Equal(t, "a b", q.Filter().Conditions()[0].Value)
}

func TestPipeline_OrderAndReversal(t *testing.T) {
	// Given: P2 (weight 10) registered before P1 (weight 0)
	var journal []string
	p := NewPipeline(nil,
		Entry{ID: "p2", Weight: 10, Processor: &recorder{id: "p2", journal: &journal}},
		Entry{ID: "p1", Weight: 0, Processor: &recorder{id: "p1", journal: &journal}},
	)
	idx := &pipelineIndex{StaticSchema: testSchema(), pipeline: p}

	// When: executing a query through the pipeline
	_, err := query.New(idx, query.Options{}).SetKeys("x").Execute(context.Background())

	// Then: preprocessing runs P1, P2 and postprocessing P2, P1
	require.NoError(t, err)
	assert.Equal(t, []string{"pre:p1", "pre:p2", "post:p2", "post:p1"}, journal)
	assert.Equal(t, []string{"p1", "p2"}, p.IDs())
}

func TestPipeline_EqualWeightsOrderByID(t *testing.T) {
	p := NewPipeline(nil,
		Entry{ID: "b", Processor: &upper{NewBase("b", nil, nil)}},
		Entry{ID: "a", Processor: &upper{NewBase("a", nil, nil)}},
	)

	assert.Equal(t, []string{"a", "b"}, p.IDs())
}

type evenFilter struct{ id string }

func (e *evenFilter) ID() string { return e.id }
func (e *evenFilter) AlterItems(items []*field.Item) []*field.Item {
	var out []*field.Item
	for _, it := range items {
		if it.ID.Raw() != "odd" {
			out = append(out, it)
		}
	}
	return out
}

func TestPipeline_AlterItems(t *testing.T) {
	keep := field.NewItem(item.New("d", "even"), nil)
	drop := field.NewItem(item.New("d", "odd"), nil)
	p := NewPipeline(nil, Entry{ID: "f", Processor: &evenFilter{id: "f"}})

	kept, dropped := p.AlterItems([]*field.Item{keep, drop})

	assert.Equal(t, []*field.Item{keep}, kept)
	assert.Equal(t, []*field.Item{drop}, dropped)
}

type picky struct{ Base }

func (p *picky) Process(s string) field.Value { return field.Scalar(s) }
func (p *picky) SupportsIndex(schema field.Schema) bool {
	_, ok := schema.Field("body")
	return ok
}

func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry()
	reg.Register("upper", func(_ field.Schema, cfg Config) (Processor, error) {
		return &upper{NewBase("upper", cfg.Fields, nil)}, nil
	})
	reg.Register("broken", func(field.Schema, Config) (Processor, error) {
		return nil, fmt.Errorf("bad settings")
	})
	reg.Register("picky", func(field.Schema, Config) (Processor, error) {
		return &picky{NewBase("picky", nil, nil)}, nil
	})
	schema := testSchema()

	p, err := reg.Create("upper", schema, Config{Fields: []string{"title"}})
	require.NoError(t, err)
	assert.Equal(t, "upper", p.ID())

	_, err = reg.Create("missing", schema, Config{})
	assert.Equal(t, errors.ErrCodePluginUnknown, errors.GetCode(err))
	assert.True(t, errors.IsPluginResolution(err))

	_, err = reg.Create("broken", schema, Config{})
	assert.Equal(t, errors.ErrCodePluginInvalid, errors.GetCode(err))

	_, err = reg.Create("picky", schema, Config{})
	assert.Equal(t, errors.ErrCodePluginNotApplicable, errors.GetCode(err))

	assert.Equal(t, []string{"broken", "picky", "upper"}, reg.IDs())
}

func TestBuild_SkipsUnresolvable(t *testing.T) {
	// Given: one valid, one unknown and one disabled processor
	reg := NewRegistry()
	reg.Register("upper", func(_ field.Schema, cfg Config) (Processor, error) {
		return &upper{NewBase("upper", cfg.Fields, nil)}, nil
	})

	// When: building
	p, skipped := Build(reg, testSchema(), map[string]Config{
		"upper":    {Enabled: true, Weight: 1},
		"unknown":  {Enabled: true},
		"disabled": {Enabled: false},
	}, nil)

	// Then: the pipeline keeps going with the valid processor
	assert.Equal(t, []string{"upper"}, p.IDs())
	require.Len(t, skipped, 1)
	assert.True(t, errors.IsPluginResolution(skipped[0]))
}

func TestConfig_Settings(t *testing.T) {
	cfg := Config{Settings: map[string]any{
		"n": 3.0, "s": "x", "b": true, "list": []any{"a", 1}, "csv": "a, b c", "f": 2,
	}}

	assert.Equal(t, 3, cfg.Int("n", 0))
	assert.Equal(t, 7, cfg.Int("missing", 7))
	assert.Equal(t, "x", cfg.String("s", ""))
	assert.True(t, cfg.Bool("b", false))
	assert.Equal(t, 2.0, cfg.Float("f", 0))
	assert.Equal(t, []string{"a", "1"}, cfg.Strings("list"))
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Strings("csv"))
}
