// Package file provides a datasource whose items are the text files below a
// directory. Markdown-style front matter is exposed as the "meta" property.
package file

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/searchapi/internal/datasource"
	"github.com/Aman-CERP/searchapi/internal/errors"
	"github.com/Aman-CERP/searchapi/internal/mapping"
)

// Type is the registry id of this datasource.
const Type = "file"

// Option keys.
const (
	OptionRoot             = "root"
	OptionExtensions       = "extensions"
	OptionExclude          = "exclude"
	OptionRespectGitignore = "respect_gitignore"
	OptionMaxFileSize      = "max_file_size"
	OptionMeta             = "meta"
	OptionMetaMain         = "meta_main"
)

// Property keys of a loaded file.
const (
	PropPath      = "path"
	PropName      = "name"
	PropExtension = "extension"
	PropSize      = "size"
	PropModified  = "modified"
	PropTitle     = "title"
	PropBody      = "body"
	PropMeta      = "meta"
)

// DefaultMaxFileSize is the largest file indexed unless configured.
const DefaultMaxFileSize = 1 << 20

// DefaultExtensions are indexed when no extensions are configured.
var DefaultExtensions = []string{".md", ".markdown", ".txt", ".html", ".htm"}

// Register adds the file datasource to reg.
func Register(reg *datasource.Registry) {
	reg.Register(Type, func(cfg datasource.Config) (datasource.Datasource, error) {
		return New(cfg)
	})
}

// Datasource enumerates the files below a root directory.
type Datasource struct {
	id          string
	root        string
	extensions  map[string]bool
	excludes    []string
	gitignore   bool
	maxFileSize int64
	properties  []mapping.Property
	logger      *slog.Logger
}

// New creates a file datasource. The root option is required; relative
// roots are resolved against cfg.BaseDir.
func New(cfg datasource.Config) (*Datasource, error) {
	root := cfg.Options.String(OptionRoot, "")
	if root == "" {
		return nil, errors.ConfigError(
			fmt.Sprintf("datasource %q: option %q is required", cfg.ID, OptionRoot), nil)
	}
	if !filepath.IsAbs(root) && cfg.BaseDir != "" {
		root = filepath.Join(cfg.BaseDir, root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.ConfigError(
			fmt.Sprintf("datasource %q: invalid root", cfg.ID), err)
	}

	exts := cfg.Options.Strings(OptionExtensions)
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		extSet[e] = true
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Datasource{
		id:          cfg.ID,
		root:        abs,
		extensions:  extSet,
		excludes:    cfg.Options.Strings(OptionExclude),
		gitignore:   cfg.Options.Bool(OptionRespectGitignore, true),
		maxFileSize: int64(cfg.Options.Int(OptionMaxFileSize, DefaultMaxFileSize)),
		properties:  fileProperties(cfg),
		logger:      logger,
	}, nil
}

func fileProperties(cfg datasource.Config) []mapping.Property {
	meta := append([]mapping.Property(nil), cfg.Properties...)
	declared := make(map[string]bool, len(meta))
	for _, p := range meta {
		declared[p.Key] = true
	}
	for _, key := range cfg.Options.Strings(OptionMeta) {
		if !declared[key] {
			meta = append(meta, mapping.Property{Key: key, Type: "string"})
			declared[key] = true
		}
	}

	props := []mapping.Property{
		{Key: PropPath, Label: "Path", Type: "string", Description: "Path relative to the datasource root."},
		{Key: PropName, Label: "File name", Type: "string"},
		{Key: PropExtension, Label: "Extension", Type: "string"},
		{Key: PropSize, Label: "Size", Type: "integer", Description: "Size in bytes."},
		{Key: PropModified, Label: "Modified", Type: "date"},
		{Key: PropTitle, Label: "Title", Type: "text"},
		{Key: PropBody, Label: "Body", Type: "text"},
	}
	if len(meta) > 0 {
		main := cfg.Options.String(OptionMetaMain, meta[0].Key)
		props = append(props, mapping.Property{
			Key:         PropMeta,
			Label:       "Front matter",
			Type:        "object",
			Main:        main,
			Description: "Front matter values.",
			Children:    meta,
		})
	}
	return props
}

// ID returns the datasource id.
func (d *Datasource) ID() string { return d.id }

// Type returns "file".
func (d *Datasource) Type() string { return Type }

// Root returns the absolute root directory.
func (d *Datasource) Root() string { return d.root }

// Properties describes a loaded file.
func (d *Datasource) Properties() []mapping.Property { return d.properties }

// ItemIDs walks the root and returns the relative, slash-separated paths of
// every indexable file in lexical order.
func (d *Datasource) ItemIDs(ctx context.Context) ([]string, error) {
	m := newMatcher(d.excludes)
	if d.gitignore {
		_ = m.addFile(filepath.Join(d.root, ignoreFile), "")
	}

	var ids []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == d.root {
				return err
			}
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if m.match(rel, true) {
				return filepath.SkipDir
			}
			if d.gitignore {
				_ = m.addFile(filepath.Join(path, ignoreFile), rel)
			}
			return nil
		}
		if entry.Type()&fs.ModeSymlink != 0 || !entry.Type().IsRegular() {
			return nil
		}
		if !d.extensions[strings.ToLower(filepath.Ext(rel))] || m.match(rel, false) {
			return nil
		}
		info, err := entry.Info()
		if err != nil || info.Size() > d.maxFileSize {
			return nil
		}
		if isBinary(path) {
			return nil
		}
		ids = append(ids, rel)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New(errors.ErrCodeDatasource, fmt.Sprintf("datasource %q: failed to walk %s", d.id, d.root), err)
	}

	d.logger.Debug("file_datasource_scanned",
		slog.String("datasource", d.id),
		slog.String("root", d.root),
		slog.Int("files", len(ids)))
	return ids, nil
}

// RawID maps an absolute path to the raw id of the file it names. It
// reports false for paths outside the root or excluded from indexing.
func (d *Datasource) RawID(path string) (string, bool) {
	rel, ok := d.relative(path)
	if !ok {
		return "", false
	}
	if !d.extensions[strings.ToLower(filepath.Ext(rel))] {
		return "", false
	}
	m := newMatcher(d.excludes)
	if d.gitignore {
		m.loadIgnoreFiles(d.root, rel)
	}
	if m.match(rel, false) {
		return "", false
	}
	return rel, true
}

func (d *Datasource) relative(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.root, path)
	}
	rel, err := filepath.Rel(d.root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// LoadMultiple reads the files named by ids. Files that are missing,
// excluded, too large or binary are left out of the result.
func (d *Datasource) LoadMultiple(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, ok := d.RawID(filepath.Join(d.root, filepath.FromSlash(id)))
		if !ok || rel != id {
			continue
		}
		obj, err := d.load(rel)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.New(errors.ErrCodeDatasource, fmt.Sprintf("datasource %q: failed to load %s", d.id, rel), err)
		}
		if obj != nil {
			out[id] = obj
		}
	}
	return out, nil
}

func (d *Datasource) load(rel string) (map[string]any, error) {
	path := filepath.Join(d.root, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() || info.Size() > d.maxFileSize {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.IndexByte(head(content), 0) >= 0 {
		return nil, nil
	}

	meta, body, err := splitFrontMatter(content)
	if err != nil {
		d.logger.Warn("file_front_matter_invalid",
			slog.String("datasource", d.id),
			slog.String("path", rel),
			slog.String("error", err.Error()))
	}

	name := filepath.Base(rel)
	ext := filepath.Ext(name)
	obj := map[string]any{
		PropPath:      rel,
		PropName:      name,
		PropExtension: strings.TrimPrefix(strings.ToLower(ext), "."),
		PropSize:      info.Size(),
		PropModified:  info.ModTime().UTC(),
		PropTitle:     title(meta, body, strings.TrimSuffix(name, ext)),
		PropBody:      strings.TrimSpace(string(body)),
	}
	if len(meta) > 0 {
		obj[PropMeta] = meta
	}
	return obj, nil
}

// title prefers a front matter title, then the first Markdown heading,
// then the file name.
func title(meta map[string]any, body []byte, fallback string) string {
	if t, ok := meta["title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return fallback
}

func head(content []byte) []byte {
	if len(content) > 512 {
		return content[:512]
	}
	return content
}

// isBinary looks for a NUL byte in the first 512 bytes.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
