package config

// Example returns a starter configuration: one Bleve server, a file
// datasource over ./docs and an index over it.
func Example() *Config {
	cfg := NewConfig()
	cfg.Servers = []ServerConfig{{
		ID:      "local",
		Name:    "Local Bleve",
		Backend: "bleve",
	}}
	cfg.Datasources = []DatasourceConfig{{
		ID:   "docs",
		Type: "file",
		Options: map[string]any{
			"root":       "docs",
			"extensions": []string{".md", ".txt"},
			"meta":       []string{"tags", "author"},
		},
	}}
	cfg.Indexes = []IndexConfig{{
		ID:          "docs",
		Name:        "Documentation",
		Server:      "local",
		Datasources: []string{"docs"},
		Fields: map[string]FieldConfig{
			"title":    {Type: "text", Boost: 5, Datasource: "docs", Property: "title"},
			"body":     {Type: "text", Boost: 1, Datasource: "docs", Property: "body"},
			"path":     {Type: "string", Datasource: "docs", Property: "path"},
			"modified": {Type: "date", Datasource: "docs", Property: "modified"},
		},
		Processors: map[string]ProcessorConfig{
			"html_filter": {Weight: -10},
			"ignorecase":  {Weight: 0},
			"tokenizer":   {Weight: 10},
			"stopwords":   {Weight: 20},
			"highlight":   {Weight: 30},
		},
		Options: IndexOptions{
			CronLimit:          DefaultCronLimit,
			ParseMode:          DefaultParseMode,
			DefaultConjunction: DefaultConjunction,
		},
	}}
	return cfg
}
