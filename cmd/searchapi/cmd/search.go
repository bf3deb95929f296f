package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchapi/internal/backend"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/index"
	"github.com/Aman-CERP/searchapi/internal/output"
	"github.com/Aman-CERP/searchapi/internal/query"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	mode        string
	conjunction string
	fields      []string
	filters     []string
	matchAny    bool // OR the filters instead of AND
	sorts       []string
	facets      []string
	offset      int
	limit       int
	asJSON      bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <index-id> [keys...]",
		Short: "Search an index",
		Long: `Search an index with fulltext keys, filters and sorts.

Filters have the form <field><op><value> with op one of =, <>, <, <=, >, >=.
The value NULL matches items without a value. Sorts have the form
<field>[:asc|:desc]; search_api_relevance sorts by score.

Examples:
  searchapi search docs "quick start"
  searchapi search docs install --filter category=guide --sort modified:desc
  searchapi search docs --filter "year>=2020" --filter "year<2024" --limit 5
  searchapi search docs ranking --facet category --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], strings.Join(args[1:], " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Key parse mode: direct, single, terms (default: the index's parse_mode)")
	cmd.Flags().StringVar(&opts.conjunction, "conjunction", "", "Join parsed terms with AND or OR (default: the index's setting)")
	cmd.Flags().StringSliceVar(&opts.fields, "fields", nil, "Fulltext fields to search (default: all)")
	cmd.Flags().StringArrayVarP(&opts.filters, "filter", "f", nil, "Filter condition (repeatable)")
	cmd.Flags().BoolVar(&opts.matchAny, "any", false, "Match any filter instead of all")
	cmd.Flags().StringArrayVarP(&opts.sorts, "sort", "s", nil, "Sort criterion (repeatable)")
	cmd.Flags().StringArrayVar(&opts.facets, "facet", nil, "Count values of a field (repeatable)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Skip the first results")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results (-1 for all)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, indexID, keys string, opts searchOptions) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	o, err := a.manager.Index(indexID)
	if err != nil {
		return err
	}
	q, err := buildQuery(o, keys, opts)
	if err != nil {
		return err
	}

	slog.Info("search_started",
		slog.String("index", indexID),
		slog.String("query_id", q.ID()),
		slog.String("keys", keys))
	rs, err := q.Execute(cmd.Context())
	if err != nil {
		return err
	}
	slog.Info("search_complete",
		slog.String("query_id", q.ID()),
		slog.Int("results", rs.ResultCount()))

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rs)
	}
	out := output.NewColored(cmd.OutOrStdout(), colorOutput(cmd))
	out.Results(rs)
	if v, ok := rs.Extra(backend.FacetsOption); ok {
		if facets, ok := v.(map[string][]backend.FacetValue); ok {
			out.Facets(facets)
		}
	}
	return nil
}

// buildQuery turns CLI options into a query against o.
func buildQuery(o *index.Orchestrator, keys string, opts searchOptions) (*query.Query, error) {
	qopts := query.Options{
		ParseMode:   o.Index().Options.ParseMode,
		Conjunction: o.Index().Options.Conjunction,
	}
	if opts.mode != "" {
		mode, err := query.ParseParseMode(opts.mode)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidQuery, err.Error(), err)
		}
		qopts.ParseMode = mode
	}
	if opts.conjunction != "" {
		conj, err := query.ParseConjunction(opts.conjunction)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidQuery, err.Error(), err)
		}
		qopts.Conjunction = conj
	}

	q := query.New(o, qopts)
	if strings.TrimSpace(keys) != "" {
		q.SetKeys(keys)
	}
	if len(opts.fields) > 0 {
		if err := q.SetFields(opts.fields...); err != nil {
			return nil, err
		}
	}

	conj := query.And
	if opts.matchAny {
		conj = query.Or
	}
	filter := query.NewFilter(conj)
	for _, raw := range opts.filters {
		key, op, value, err := parseCondition(raw)
		if err != nil {
			return nil, err
		}
		filter.Condition(key, value, op)
	}
	if !filter.IsEmpty() {
		if err := filter.Validate(o); err != nil {
			return nil, err
		}
		q.AddFilter(filter)
	}

	for _, raw := range opts.sorts {
		key, dir, err := parseSort(raw)
		if err != nil {
			return nil, err
		}
		if err := q.Sort(key, dir); err != nil {
			return nil, err
		}
	}

	if len(opts.facets) > 0 {
		facets := make([]backend.Facet, 0, len(opts.facets))
		for _, f := range opts.facets {
			if _, ok := o.Field(f); !ok {
				return nil, errors.InvalidField(f, "unknown field")
			}
			facets = append(facets, backend.Facet{Field: f, Limit: 10, MinCount: 1})
		}
		q.SetOption(backend.FacetsOption, facets)
	}

	q.Range(opts.offset, opts.limit)
	return q, nil
}

// parseCondition splits "<field><op><value>". The value NULL becomes nil.
func parseCondition(raw string) (string, query.Operator, any, error) {
	best, at := query.Operator(""), -1
	for _, op := range query.Operators {
		i := strings.Index(raw, string(op))
		if i <= 0 {
			continue
		}
		// Earliest operator wins; at equal positions the longer one does,
		// which Operators' order guarantees.
		if at < 0 || i < at {
			best, at = op, i
		}
	}
	if at < 0 {
		return "", "", nil, errors.New(errors.ErrCodeInvalidQuery,
			fmt.Sprintf("invalid filter %q, expected <field><op><value>", raw), nil).
			WithSuggestion("Use one of =, <>, <, <=, >, >=, e.g. --filter year>=2020")
	}
	key := strings.TrimSpace(raw[:at])
	value := strings.TrimSpace(raw[at+len(best):])
	if value == "NULL" {
		return key, best, nil, nil
	}
	return key, best, value, nil
}

// parseSort splits "<field>[:asc|:desc]".
func parseSort(raw string) (string, query.Direction, error) {
	key, dir, found := strings.Cut(raw, ":")
	if !found {
		return key, query.Asc, nil
	}
	switch strings.ToUpper(dir) {
	case "ASC":
		return key, query.Asc, nil
	case "DESC":
		return key, query.Desc, nil
	}
	return "", "", errors.New(errors.ErrCodeInvalidQuery, fmt.Sprintf("invalid sort direction %q", dir), nil)
}
