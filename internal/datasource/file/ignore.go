package file

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// ignoreFile is the per-directory ignore file honoured when
// respect_gitignore is set.
const ignoreFile = ".gitignore"

// matcher evaluates gitignore-style patterns against slash-separated paths
// relative to the datasource root. Later rules win, "!" re-includes.
type matcher struct {
	rules []rule
}

type rule struct {
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool
	anchored bool
	base     string // directory the rule was declared in, "" for root
}

func (m *matcher) add(pattern, base string) {
	escapedSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	r := rule{base: base}
	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
	case strings.HasPrefix(pattern, "!"):
		r.negation = true
		pattern = pattern[1:]
	}
	if escapedSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = pattern[1:]
	}
	// "doc/frotz" is anchored, "**/frotz" and "*/x" are not.
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}
	if pattern == "" {
		return
	}
	r.regex = regexp.MustCompile("^" + globRegex(pattern) + "$")
	m.rules = append(m.rules, r)
}

func (m *matcher) addFile(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.add(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}
	return nil
}

// match reports whether rel is ignored.
func (m *matcher) match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, isDir) {
			ignored = !r.negation
		}
	}
	return ignored
}

func (r rule) matches(rel string, isDir bool) bool {
	if r.base != "" {
		if !strings.HasPrefix(rel, r.base+"/") {
			return false
		}
		rel = strings.TrimPrefix(rel, r.base+"/")
	}
	parts := strings.Split(rel, "/")

	if r.anchored {
		if r.regex.MatchString(rel) {
			return !r.dirOnly || isDir
		}
		// Files below a matched directory.
		for i := 1; i < len(parts); i++ {
			if r.regex.MatchString(strings.Join(parts[:i], "/")) {
				return true
			}
		}
		return false
	}

	for i, part := range parts {
		if !r.regex.MatchString(part) {
			continue
		}
		if r.dirOnly && i == len(parts)-1 {
			return isDir
		}
		return true
	}
	return !r.dirOnly && r.regex.MatchString(rel)
}

// globRegex converts a gitignore glob to a regular expression body.
func globRegex(pattern string) string {
	var sb strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					sb.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				if i == 0 || pattern[i-1] == '/' {
					sb.WriteString(".*")
					i++
					continue
				}
			}
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		case '[':
			j := strings.IndexByte(pattern[i+1:], ']')
			if j < 0 {
				sb.WriteString(`\[`)
				continue
			}
			sb.WriteString(pattern[i : i+j+2])
			i += j + 1
		case '\\':
			if i+1 < len(pattern) {
				i++
				sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
			} else {
				sb.WriteString(`\\`)
			}
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}

// defaultExcludes are never indexed.
var defaultExcludes = []string{".git/", ".hg/", ".svn/", "node_modules/", ".DS_Store", ignoreFile}

// newMatcher builds a matcher holding the default and configured excludes.
func newMatcher(excludes []string) *matcher {
	m := &matcher{}
	for _, p := range defaultExcludes {
		m.add(p, "")
	}
	for _, p := range excludes {
		m.add(p, "")
	}
	return m
}

// loadIgnoreFiles adds the ignore files found in root and every directory
// on the way to rel's parent.
func (m *matcher) loadIgnoreFiles(root, rel string) {
	dir := path.Dir(filepath.ToSlash(rel))
	var dirs []string
	for dir != "." && dir != "/" {
		dirs = append([]string{dir}, dirs...)
		dir = path.Dir(dir)
	}
	dirs = append([]string{""}, dirs...)
	for _, d := range dirs {
		_ = m.addFile(filepath.Join(root, filepath.FromSlash(d), ignoreFile), d)
	}
}
