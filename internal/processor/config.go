package processor

import (
	"fmt"
	"strings"
)

// Config is the per-index configuration of one processor.
type Config struct {
	Enabled  bool
	Weight   int
	Fields   []string
	Settings map[string]any
}

// String returns a string setting.
func (c Config) String(key, def string) string {
	if v, ok := c.Settings[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return def
}

// Int returns an integer setting. YAML and JSON decoding produce int,
// int64 or float64.
func (c Config) Int(key string, def int) int {
	switch v := c.Settings[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Float returns a float setting.
func (c Config) Float(key string, def float64) float64 {
	switch v := c.Settings[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Bool returns a boolean setting.
func (c Config) Bool(key string, def bool) bool {
	if v, ok := c.Settings[key].(bool); ok {
		return v
	}
	return def
}

// Strings returns a list setting. A single string is split on whitespace
// and commas.
func (c Config) Strings(key string) []string {
	switch v := c.Settings[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		return strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n' || r == '\t'
		})
	}
	return nil
}
