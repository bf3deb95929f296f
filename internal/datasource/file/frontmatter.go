package file

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	yamlFence = []byte("---")
	tomlFence = []byte("+++")
)

// splitFrontMatter separates a leading YAML ("---") or TOML ("+++") block
// from the document body. Content without a closed block is all body.
func splitFrontMatter(content []byte) (map[string]any, []byte, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	var fence []byte
	switch {
	case bytes.HasPrefix(content, yamlFence):
		fence = yamlFence
	case bytes.HasPrefix(content, tomlFence):
		fence = tomlFence
	default:
		return nil, content, nil
	}

	first := bytes.IndexByte(content, '\n')
	if first < 0 || len(bytes.TrimSpace(content[:first])) != len(fence) {
		return nil, content, nil
	}
	rest := content[first+1:]

	var block, body []byte
	closed := false
	for offset := 0; offset <= len(rest); {
		end := bytes.IndexByte(rest[offset:], '\n')
		var line []byte
		next := len(rest) + 1
		if end < 0 {
			line = rest[offset:]
		} else {
			line = rest[offset : offset+end]
			next = offset + end + 1
		}
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), fence) {
			block = rest[:offset]
			if next <= len(rest) {
				body = rest[next:]
			}
			closed = true
			break
		}
		offset = next
	}
	if !closed {
		return nil, content, nil
	}

	meta := make(map[string]any)
	var err error
	if bytes.Equal(fence, yamlFence) {
		err = yaml.Unmarshal(block, &meta)
	} else {
		err = toml.Unmarshal(block, &meta)
	}
	if err != nil {
		return nil, body, fmt.Errorf("invalid front matter: %w", err)
	}
	return meta, body, nil
}
