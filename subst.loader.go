package subst

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// LoadReplacements reads a shortcut replacement map in the given format
// ("yaml", "yml", "json" or "env"). YAML keeps key order at every level, JSON
// keeps top-level key order, env files are returned in sorted key order.
func LoadReplacements(r io.Reader, format string) (*Map, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewReplacementFileError(ErrMsgReplacementReadFile, "", format, err)
	}

	switch strings.ToLower(format) {
	case FormatYAML, FormatYML:
		return decodeYAMLReplacements(data)
	case FormatJSON:
		return decodeJSONReplacements(data)
	case FormatEnv:
		return decodeEnvReplacements(data)
	default:
		return nil, NewReplacementFileError(ErrMsgUnsupportedFormat, "", format, nil)
	}
}

// LoadReplacementsFile reads a replacement file, picking the format from its
// extension.
func LoadReplacementsFile(path string) (*Map, error) {
	format := ReplacementFormat(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, NewReplacementFileError(ErrMsgReplacementReadFile, path, format, err)
	}
	defer f.Close()

	m, err := LoadReplacements(f, format)
	if err != nil {
		return nil, NewReplacementFileError(ErrMsgReplacementDecode, path, format, err)
	}
	return m, nil
}

// ReplacementFormat derives the replacement format from a file name.
func ReplacementFormat(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// MergeMaps returns a new map holding the entries of every map in order.
// Later maps overwrite the values of earlier keys in place.
func MergeMaps(maps ...*Map) *Map {
	out := NewMap()
	for _, m := range maps {
		if m == nil {
			continue
		}
		for pair := m.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, pair.Value)
		}
	}
	return out
}

func decodeYAMLReplacements(data []byte) (*Map, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewReplacementFileError(ErrMsgReplacementDecode, "", FormatYAML, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return NewMap(), nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.AliasNode {
		root = root.Alias
	}
	if root.Kind != yaml.MappingNode {
		return nil, NewReplacementFileError(ErrMsgReplacementNotAMap, "", FormatYAML, nil)
	}

	v, err := yamlValue(root)
	if err != nil {
		return nil, NewReplacementFileError(ErrMsgReplacementDecode, "", FormatYAML, err)
	}
	return v.(*Map), nil
}

// yamlValue converts a node into replacement values. Mappings become ordered
// maps so nested key order survives flattening.
func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			value, err := yamlValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(key, value)
		}
		return m, nil
	case yaml.SequenceNode:
		items := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			value, err := yamlValue(c)
			if err != nil {
				return nil, err
			}
			items = append(items, value)
		}
		return items, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func decodeJSONReplacements(data []byte) (*Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewMap(), nil
	}
	m := orderedmap.New[string, any]()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, NewReplacementFileError(ErrMsgReplacementDecode, "", FormatJSON, err)
	}
	return m, nil
}

func decodeEnvReplacements(data []byte) (*Map, error) {
	env, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, NewReplacementFileError(ErrMsgReplacementDecode, "", FormatEnv, err)
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := NewMap()
	for _, k := range keys {
		m.Set(k, env[k])
	}
	return m, nil
}
